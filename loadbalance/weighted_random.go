package loadbalance

import (
	"fmt"
	"math/rand"

	"stompclient/discovery"
)

// WeightedRandomBalancer selects servers probabilistically based on Weight.
// A server with weight 10 gets roughly 2x the traffic of one with weight 5.
// A server with Weight 0 is treated as weight 1, so an unweighted server
// list still gets even distribution.
//
// Algorithm:
//  1. Sum all weights → totalWeight
//  2. Generate random number r in [0, totalWeight)
//  3. Subtract each server's weight from r until r < 0
//  4. The server that makes r negative is selected
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(servers []discovery.Server) (*discovery.Server, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("loadbalance: no servers available")
	}

	totalWeight := 0
	for _, s := range servers {
		totalWeight += effectiveWeight(s)
	}

	r := rand.Intn(totalWeight)
	for i := range servers {
		r -= effectiveWeight(servers[i])
		if r < 0 {
			return &servers[i], nil
		}
	}

	return nil, fmt.Errorf("loadbalance: unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func effectiveWeight(s discovery.Server) int {
	if s.Weight <= 0 {
		return 1
	}
	return s.Weight
}
