// Package testutils provides shared cluster fixtures for dgxsim
// testing. The fixtures are fully deterministic so rendered output can
// be asserted byte for byte.
package testutils

import (
	"dgxsim/internal/cluster"
	"dgxsim/pkg/simtypes"
)

// NewHealthyStore returns a store over the default synthetic cluster
// with the given node count and no faults.
func NewHealthyStore(nodes int) *cluster.Store {
	return cluster.NewStore(cluster.NewDefaultCluster(nodes))
}

// NewFaultyStore returns a two node store carrying one of each fault
// class on dgx-node01: XID 79 on GPU 0, overtemperature on GPU 1,
// double-bit ECC on GPU 2, and NVLink 3 down on GPU 4.
func NewFaultyStore() *cluster.Store {
	s := NewHealthyStore(2)
	host := s.Cluster().Nodes[0].Hostname

	_ = s.AddXIDError(host, 0, 79)
	_ = s.UpdateGPU(host, 1, func(g *simtypes.GPU) {
		g.Temperature = 94
		g.ThermalEvent = true
	})
	_ = s.UpdateGPU(host, 2, func(g *simtypes.GPU) {
		g.ECCErrors.Aggregate.DoubleBit = 2
		g.ECCErrors.Volatile.DoubleBit = 2
	})
	_ = s.UpdateGPU(host, 4, func(g *simtypes.GPU) {
		g.NVLinks[3].Status = simtypes.LinkDown
	})
	return s
}

// Context builds a command context logged into the store's first node.
func Context(s *cluster.Store) *simtypes.CommandContext {
	c := s.Cluster()
	return &simtypes.CommandContext{
		CurrentNode: c.Nodes[0].Hostname,
		Environment: map[string]string{"USER": "root"},
		Cluster:     c,
	}
}
