// Package discovery resolves the ordered candidate server list the
// connection manager dials from: a configured static list, or a
// dynamically discovered one backed by etcd.
//
// Unlike a service registry, a STOMP client never registers itself —
// brokers are the thing being discovered, not the client. This package
// therefore keeps only the read side (Discover/Watch) of the registry
// interface its teacher package exposed for RPC servers.
package discovery

import "context"

// Server is one candidate broker endpoint, carrying the connection
// parameters named in spec §3's ConnectionParameters plus an optional
// Weight for loadbalance.WeightedRandom.
type Server struct {
	Host     string
	Port     int
	Login    string
	Passcode string
	Weight   int
}

// Discovery resolves the set of candidate servers for a STOMP cluster.
type Discovery interface {
	// Discover returns the currently known candidate servers.
	Discover(ctx context.Context) ([]Server, error)

	// Watch returns a channel that emits the updated server list whenever
	// cluster membership changes. Implementations that have no notion of
	// change (Static) may return a channel that is never written to.
	Watch(ctx context.Context) (<-chan []Server, error)
}

// Static implements Discovery over a fixed, caller-supplied server list —
// the common case of spec §6's `servers` option.
type Static struct {
	servers []Server
}

// NewStatic returns a Discovery over a fixed list of servers.
func NewStatic(servers []Server) Static {
	return Static{servers: servers}
}

// Discover implements Discovery.
func (s Static) Discover(ctx context.Context) ([]Server, error) {
	out := make([]Server, len(s.servers))
	copy(out, s.servers)
	return out, nil
}

// Watch implements Discovery. A static list never changes, so the
// returned channel is closed immediately without emitting.
func (s Static) Watch(ctx context.Context) (<-chan []Server, error) {
	ch := make(chan []Server)
	close(ch)
	return ch, nil
}
