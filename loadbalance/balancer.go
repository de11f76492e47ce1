// Package loadbalance provides broker-candidate selection strategies.
//
// A STOMP cluster of several brokers needs the same two list-based
// policies an RPC service mesh needs when picking an instance to call:
//   - RoundRobin:      equal-capacity brokers, even distribution
//   - WeightedRandom:  heterogeneous brokers, capacity-proportional traffic
//
// None of these are required by spec.md directly, but §4.3's "rotating
// the head after each successful attempt" and §6's "servers are presented
// as an ordered sequence" both describe a selection policy over an
// ordered list of candidates; ServerRing (ring.go) implements that exact
// rotation, and the strategies here are alternatives a caller may plug in
// ahead of it.
package loadbalance

import "stompclient/discovery"

// Balancer selects one server from a candidate list.
type Balancer interface {
	// Pick selects one server from the available list. Called once per
	// connect pass to choose the server tried first — must be
	// goroutine-safe.
	Pick(servers []discovery.Server) (*discovery.Server, error)

	// Name returns the strategy name, for logging.
	Name() string
}
