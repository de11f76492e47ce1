package loadbalance

import (
	"fmt"
	"sync/atomic"

	"stompclient/discovery"
)

// RoundRobinBalancer distributes connection attempts evenly across all
// candidate servers in order. Uses an atomic counter for lock-free,
// goroutine-safe operation.
//
// Best for: brokers of similar capacity.
type RoundRobinBalancer struct {
	counter int64 // Atomic counter, incremented on each Pick()
}

// Pick selects the next server in round-robin order.
func (b *RoundRobinBalancer) Pick(servers []discovery.Server) (*discovery.Server, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("loadbalance: no servers available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(servers))
	return &servers[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
