package cluster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dgxsim/pkg/simtypes"
)

// LoadTopology reads a cluster topology from a YAML file. Fields the
// file omits are filled from the default node template so a topology
// file only has to name hostnames and the faults it wants pre-injected.
func LoadTopology(path string) (*simtypes.ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology %s: %w", path, err)
	}
	return ParseTopology(data)
}

// ParseTopology parses YAML topology bytes into a runnable cluster.
func ParseTopology(data []byte) (*simtypes.ClusterConfig, error) {
	var c simtypes.ClusterConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}
	if len(c.Nodes) == 0 {
		return nil, fmt.Errorf("topology defines no nodes")
	}
	if c.Name == "" {
		c.Name = "dgx-superpod"
	}
	if c.GPUType == "" {
		c.GPUType = "h100"
	}
	c.BootTime = defaultBootTime
	for i, n := range c.Nodes {
		fillNodeDefaults(n, i)
	}
	names := c.Hostnames()
	c.Slurm = simtypes.SlurmState{
		ControllerUp: true,
		Partitions: []simtypes.SlurmPartition{
			{Name: "batch", Default: true, State: "up", TimeLimit: "infinite", Nodes: names},
		},
		NextJobID: 1001,
		GresUsed:  make(map[string]int),
	}
	refreshHealth(&c)
	return &c, nil
}

// fillNodeDefaults completes a sparse YAML node with the stock DGX
// H100 template: declared fields win, everything else comes from the
// template node at the same position.
func fillNodeDefaults(n *simtypes.DGXNode, idx int) {
	tmpl := newDGXNode(idx)
	if n.Hostname == "" {
		n.Hostname = tmpl.Hostname
	}
	if n.IPAddress == "" {
		n.IPAddress = tmpl.IPAddress
	}
	if n.Category == "" {
		n.Category = tmpl.Category
	}
	if n.Model == "" {
		n.Model = tmpl.Model
	}
	if n.Status == "" {
		n.Status = tmpl.Status
	}
	if n.SerialNumber == "" {
		n.SerialNumber = tmpl.SerialNumber
	}
	if n.BiosVersion == "" {
		n.BiosVersion = tmpl.BiosVersion
	}
	if n.DriverVersion == "" {
		n.DriverVersion = tmpl.DriverVersion
	}
	if n.CUDAVersion == "" {
		n.CUDAVersion = tmpl.CUDAVersion
	}
	if n.CPUSockets == 0 {
		n.CPUSockets = tmpl.CPUSockets
	}
	if n.CPUCores == 0 {
		n.CPUCores = tmpl.CPUCores
	}
	if n.MemoryGB == 0 {
		n.MemoryGB = tmpl.MemoryGB
	}
	if n.BMC.IPAddress == "" {
		n.BMC = tmpl.BMC
	}
	if len(n.GPUs) == 0 {
		n.GPUs = tmpl.GPUs
	} else {
		for gi, g := range n.GPUs {
			fillGPUDefaults(g, n.Hostname, gi)
		}
	}
	if len(n.HCAs) == 0 {
		n.HCAs = tmpl.HCAs
	}
	n.PoweredOn = true
}

func fillGPUDefaults(g *simtypes.GPU, hostname string, idx int) {
	tmpl := newGPU(hostname, idx)
	if g.Index == 0 {
		g.Index = idx
	}
	if g.UUID == "" {
		g.UUID = tmpl.UUID
	}
	if g.Model == "" {
		g.Model = tmpl.Model
	}
	if g.PCIAddress == "" {
		g.PCIAddress = tmpl.PCIAddress
	}
	if g.Temperature == 0 {
		g.Temperature = tmpl.Temperature
	}
	if g.PowerLimitW == 0 {
		g.PowerLimitW = tmpl.PowerLimitW
	}
	if g.PowerDrawW == 0 {
		g.PowerDrawW = tmpl.PowerDrawW
	}
	if g.MemoryTotalMiB == 0 {
		g.MemoryTotalMiB = tmpl.MemoryTotalMiB
	}
	if len(g.NVLinks) == 0 {
		g.NVLinks = tmpl.NVLinks
	}
}
