package cluster

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dgxsim/internal/logger"
	"dgxsim/pkg/simtypes"
)

func TestNewDefaultCluster(t *testing.T) {
	c := NewDefaultCluster(4)

	assert.Equal(t, "dgx-superpod", c.Name)
	assert.Equal(t, "h100", c.GPUType)
	require.Len(t, c.Nodes, 4)
	assert.Equal(t, []string{"dgx-node01", "dgx-node02", "dgx-node03", "dgx-node04"}, c.Hostnames())

	n := c.Nodes[0]
	assert.Len(t, n.GPUs, 8)
	assert.Len(t, n.HCAs, 4)
	assert.Equal(t, "550.54.15", n.DriverVersion)
	assert.Equal(t, "10.0.1.10", n.IPAddress)
	assert.Equal(t, "10.0.2.10", n.BMC.IPAddress)
	assert.True(t, n.PoweredOn)

	g := n.GPUs[0]
	assert.Equal(t, "00000000:1B:00.0", g.PCIAddress)
	assert.Len(t, g.NVLinks, 18)
	assert.Equal(t, simtypes.HealthOK, g.Health)

	require.Len(t, c.Slurm.Partitions, 2)
	assert.Equal(t, "batch", c.Slurm.Partitions[0].Name)
	assert.True(t, c.Slurm.Partitions[0].Default)
	assert.Equal(t, []string{"dgx-node01"}, c.Slurm.Partitions[1].Nodes)
}

func TestNewDefaultClusterDeterministic(t *testing.T) {
	a := NewDefaultCluster(2)
	b := NewDefaultCluster(2)
	for i := range a.Nodes {
		for j := range a.Nodes[i].GPUs {
			assert.Equal(t, a.Nodes[i].GPUs[j].UUID, b.Nodes[i].GPUs[j].UUID)
		}
	}
	assert.Equal(t, a.BootTime, b.BootTime)
}

func TestNewDefaultClusterNodeCountFloor(t *testing.T) {
	assert.Len(t, NewDefaultCluster(0).Nodes, 4)
	assert.Len(t, NewDefaultCluster(-3).Nodes, 4)
}

func TestStoreUpdateGPURederivesHealth(t *testing.T) {
	s := NewStore(NewDefaultCluster(2))

	err := s.UpdateGPU("dgx-node01", 3, func(g *simtypes.GPU) {
		g.Temperature = 95
	})
	require.NoError(t, err)
	assert.Equal(t, simtypes.HealthCritical, s.Cluster().Nodes[0].GPUs[3].Health)

	err = s.UpdateGPU("dgx-node01", 3, func(g *simtypes.GPU) {
		g.Temperature = 85
	})
	require.NoError(t, err)
	assert.Equal(t, simtypes.HealthWarning, s.Cluster().Nodes[0].GPUs[3].Health)
}

func TestStoreUpdateGPUErrors(t *testing.T) {
	s := NewStore(NewDefaultCluster(1))
	assert.Error(t, s.UpdateGPU("no-such-node", 0, func(*simtypes.GPU) {}))
	assert.Error(t, s.UpdateGPU("dgx-node01", 8, func(*simtypes.GPU) {}))
	assert.Error(t, s.UpdateGPU("dgx-node01", -1, func(*simtypes.GPU) {}))
}

func TestStoreAddXIDError(t *testing.T) {
	s := NewStore(NewDefaultCluster(1))
	require.NoError(t, s.AddXIDError("dgx-node01", 0, 79))

	g := s.Cluster().Nodes[0].GPUs[0]
	require.Len(t, g.XIDErrors, 1)
	assert.Equal(t, 79, g.XIDErrors[0].Code)
	assert.Equal(t, simtypes.HealthCritical, g.Health)
	assert.True(t, g.XIDErrors[0].Timestamp.After(s.Cluster().BootTime))
}

func TestStoreAddXIDErrorLogsFaultInjection(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = log.New(&buf)
	logger.Logger.SetLevel(log.DebugLevel)
	t.Cleanup(func() { logger.Logger = prev })

	s := NewStore(NewDefaultCluster(1))
	require.NoError(t, s.AddXIDError("dgx-node01", 0, 79))

	out := buf.String()
	assert.Contains(t, out, "Fault injected")
	assert.Contains(t, out, "kind=xid")
	assert.Contains(t, out, "node=dgx-node01")
}

func TestStoreJobAllocation(t *testing.T) {
	s := NewStore(NewDefaultCluster(2))

	id, err := s.AllocateGPUsForJob("train", "root", "batch", []string{"dgx-node01", "dgx-node02"}, 8)
	require.NoError(t, err)
	assert.Equal(t, 1001, id)
	assert.Equal(t, 8, s.Cluster().Slurm.GresUsed["dgx-node01"])

	// Both nodes are now full.
	_, err = s.AllocateGPUsForJob("train2", "root", "batch", []string{"dgx-node01"}, 1)
	assert.Error(t, err)

	require.NoError(t, s.DeallocateGPUsForJob(id))
	assert.Equal(t, 0, s.Cluster().Slurm.GresUsed["dgx-node01"])
	assert.Equal(t, "CANCELLED", s.Cluster().Slurm.Jobs[0].State)

	id2, err := s.AllocateGPUsForJob("train3", "root", "batch", []string{"dgx-node01"}, 4)
	require.NoError(t, err)
	assert.Equal(t, 1002, id2, "job ids keep incrementing")
}

func TestStoreDeallocateUnknownJob(t *testing.T) {
	s := NewStore(NewDefaultCluster(1))
	assert.Error(t, s.DeallocateGPUsForJob(42))
}

func TestStoreSetSlurmState(t *testing.T) {
	s := NewStore(NewDefaultCluster(2))

	require.NoError(t, s.SetSlurmState("dgx-node02", "drain"))
	assert.Equal(t, "drained", s.Cluster().Nodes[1].Status)

	require.NoError(t, s.SetSlurmState("dgx-node02", "idle"))
	assert.Equal(t, "up", s.Cluster().Nodes[1].Status)

	assert.Error(t, s.SetSlurmState("no-such-node", "drain"))
}

func TestStoreReset(t *testing.T) {
	s := NewStore(NewDefaultCluster(2))
	require.NoError(t, s.AddXIDError("dgx-node01", 0, 79))

	s.Reset()
	assert.Len(t, s.Cluster().Nodes, 2)
	assert.Empty(t, s.Cluster().Nodes[0].GPUs[0].XIDErrors)
	assert.Equal(t, simtypes.HealthOK, s.Cluster().Nodes[0].GPUs[0].Health)
}

func TestParseTopology(t *testing.T) {
	data := []byte(`
name: training-lab
nodes:
  - hostname: lab-node01
    gpus:
      - index: 0
        temperature: 92
      - index: 1
  - hostname: lab-node02
`)
	c, err := ParseTopology(data)
	require.NoError(t, err)

	assert.Equal(t, "training-lab", c.Name)
	require.Len(t, c.Nodes, 2)
	assert.Equal(t, "lab-node01", c.Nodes[0].Hostname)

	// Declared fields win, the rest comes from the template.
	g := c.Nodes[0].GPUs[0]
	assert.Equal(t, 92, g.Temperature)
	assert.Equal(t, "NVIDIA H100 80GB HBM3", g.Model)
	assert.NotEmpty(t, g.UUID)
	assert.Equal(t, simtypes.HealthCritical, g.Health, "pre-injected faults classify on load")

	// Sparse second node gets the full template.
	assert.Len(t, c.Nodes[1].GPUs, 8)
	assert.Len(t, c.Nodes[1].HCAs, 4)
	assert.Equal(t, "10.0.1.11", c.Nodes[1].IPAddress)

	assert.True(t, c.Slurm.ControllerUp)
	require.Len(t, c.Slurm.Partitions, 1)
	assert.Equal(t, []string{"lab-node01", "lab-node02"}, c.Slurm.Partitions[0].Nodes)
}

func TestParseTopologyErrors(t *testing.T) {
	_, err := ParseTopology([]byte("nodes: []"))
	assert.Error(t, err)

	_, err = ParseTopology([]byte("::not yaml::"))
	assert.Error(t, err)
}
