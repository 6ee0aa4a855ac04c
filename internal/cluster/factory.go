// Package cluster owns the virtual cluster state: construction of the
// default topology, loading topologies from YAML, the named mutator
// API simulators go through for every write, and health derivation.
package cluster

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"dgxsim/pkg/simtypes"
)

// Reference clock for synthesized log streams. A fixed instant keeps
// replayed sessions byte-identical.
var defaultBootTime = time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC)

// NewDefaultCluster builds the stock training topology: nodeCount DGX
// H100 nodes with 8 GPUs and 4 IB HCAs each, one batch partition, and
// a healthy fault state. Deterministic UUIDs come from a fixed UUID
// namespace so two sessions see the same hardware.
func NewDefaultCluster(nodeCount int) *simtypes.ClusterConfig {
	if nodeCount <= 0 {
		nodeCount = 4
	}
	c := &simtypes.ClusterConfig{
		Name:     "dgx-superpod",
		GPUType:  "h100",
		BootTime: defaultBootTime,
	}
	for i := 0; i < nodeCount; i++ {
		c.Nodes = append(c.Nodes, newDGXNode(i))
	}
	names := c.Hostnames()
	c.Slurm = simtypes.SlurmState{
		ControllerUp: true,
		Partitions: []simtypes.SlurmPartition{
			{Name: "batch", Default: true, State: "up", TimeLimit: "infinite", Nodes: names},
			{Name: "debug", State: "up", TimeLimit: "1:00:00", Nodes: names[:1]},
		},
		NextJobID: 1001,
		GresUsed:  make(map[string]int),
	}
	return c
}

func newDGXNode(idx int) *simtypes.DGXNode {
	hostname := fmt.Sprintf("dgx-node%02d", idx+1)
	node := &simtypes.DGXNode{
		Hostname:      hostname,
		IPAddress:     fmt.Sprintf("10.0.1.%d", 10+idx),
		Category:      "dgx-h100",
		Model:         "DGX H100",
		Status:        "up",
		SerialNumber:  fmt.Sprintf("1234567890%02d", idx+1),
		BiosVersion:   "1.6.2",
		DriverVersion: "550.54.15",
		CUDAVersion:   "12.4",
		CPUSockets:    2,
		CPUCores:      112,
		MemoryGB:      2048,
		BMC: simtypes.BMCInfo{
			IPAddress:  fmt.Sprintf("10.0.2.%d", 10+idx),
			MACAddress: fmt.Sprintf("5c:ff:35:d1:%02x:%02x", 0x10+idx, 0x01),
			Firmware:   "24.09.14",
		},
		PoweredOn: true,
	}
	for g := 0; g < 8; g++ {
		node.GPUs = append(node.GPUs, newGPU(hostname, g))
	}
	for h := 0; h < 4; h++ {
		node.HCAs = append(node.HCAs, &simtypes.InfiniBandHCA{
			Device:    fmt.Sprintf("mlx5_%d", h),
			Port:      1,
			State:     "Active",
			PhysState: "LinkUp",
			RateGbps:  400,
			LinkLayer: "InfiniBand",
			GUID:      fmt.Sprintf("0x0c42a103%02x%04x", idx, h),
			NetDev:    fmt.Sprintf("ibp%ds0", 24+h*30),
		})
	}
	return node
}

func newGPU(hostname string, idx int) *simtypes.GPU {
	// uuid.NewSHA1 is stable for a given (namespace, name) pair.
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/gpu%d", hostname, idx)))
	g := &simtypes.GPU{
		Index:          idx,
		UUID:           "GPU-" + id.String(),
		Model:          "NVIDIA H100 80GB HBM3",
		PCIAddress:     fmt.Sprintf("00000000:%02X:00.0", 0x1B+idx*0x20),
		Temperature:    34 + idx,
		PowerDrawW:     71.5,
		PowerLimitW:    700,
		MemoryUsedMiB:  1,
		MemoryTotalMiB: 81559,
		UtilizationPct: 0,
	}
	for l := 0; l < 18; l++ {
		g.NVLinks = append(g.NVLinks, simtypes.NVLinkConnection{
			LinkID:  l,
			PeerGPU: (idx + 1 + l%7) % 8,
			Status:  simtypes.LinkUp,
		})
	}
	g.Health = simtypes.HealthOK
	return g
}
