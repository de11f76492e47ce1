package loadbalance

import (
	"sync"

	"stompclient/discovery"
)

// ServerRing is the rotating candidate list spec §4.3 requires of the
// connect-attempt loop: "the manager tries them in order, rotating the
// head after each successful attempt to distribute load" and, on a
// failed pass, "a failed server rotates to the end so different servers
// are tried first next pass".
//
// It is a plain slice guarded by a mutex, not a borrow/return pool like
// the teacher's exclusive-connection ConnPool: where ConnPool hands out
// and reclaims *connections* for reuse under concurrent borrowers,
// ServerRing hands out *candidate addresses* one pass at a time to the
// single connect loop that owns it — there is never more than one
// borrower, matching spec §3's "at most one active connection"
// invariant.
type ServerRing struct {
	mu      sync.Mutex
	servers []discovery.Server
}

// NewServerRing returns a ring seeded with servers in the given order.
func NewServerRing(servers []discovery.Server) *ServerRing {
	r := &ServerRing{}
	r.Reset(servers)
	return r
}

// Reset replaces the ring's membership, preserving relative order for any
// server present in both the old and new lists is not attempted — a
// fresh discovery result simply becomes the new pass order.
func (r *ServerRing) Reset(servers []discovery.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append([]discovery.Server(nil), servers...)
}

// Snapshot returns the current pass order without mutating it.
func (r *ServerRing) Snapshot() []discovery.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]discovery.Server(nil), r.servers...)
}

// RotateToEnd moves the server at index 0 of the current pass order to
// the end.
func (r *ServerRing) RotateToEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.servers) < 2 {
		return
	}
	head := r.servers[0]
	r.servers = append(r.servers[1:], head)
}

// RotateHeadToEnd moves the given server to the end of the pass order.
// The connect loop calls it after a failed attempt, so a different
// server is tried first next pass, and after a successful connect, so
// the next connect attempt (after a future reconnect) prefers a
// different server — spec §4.3's "rotating the head after each
// successful attempt to distribute load".
func (r *ServerRing) RotateHeadToEnd(s discovery.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.servers {
		if candidate == s {
			r.servers = append(append(append([]discovery.Server(nil), r.servers[:i]...), r.servers[i+1:]...), s)
			return
		}
	}
}

// Len returns the number of candidate servers currently in the ring.
func (r *ServerRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.servers)
}
