package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dgxsim/internal/testutils"
	"dgxsim/pkg/simtypes"
)

func TestIbstatFullReport(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewIBToolsSimulator()

	result := s.Execute(parseFor(s, "ibstat"), ctx)
	require.Equal(t, 0, result.ExitCode)

	out := result.Output
	for _, device := range []string{"mlx5_0", "mlx5_1", "mlx5_2", "mlx5_3"} {
		assert.Contains(t, out, "CA '"+device+"'")
	}
	assert.Contains(t, out, "CA type: MT4129")
	assert.Contains(t, out, "Firmware version: 28.39.2048")
	assert.Contains(t, out, "State: Active")
	assert.Contains(t, out, "Physical state: LinkUp")
	assert.Contains(t, out, "Rate: 400")
	assert.Contains(t, out, "Base lid: 11")
	assert.Contains(t, out, "Link layer: InfiniBand")
}

func TestIbstatSingleDevice(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewIBToolsSimulator()

	result := s.Execute(parseFor(s, "ibstat mlx5_2"), ctx)
	assert.Contains(t, result.Output, "CA 'mlx5_2'")
	assert.NotContains(t, result.Output, "mlx5_0")

	result = s.Execute(parseFor(s, "ibstat mlx9_9"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "ibstat: 'mlx9_9' IB device can't be found", result.Output)
}

func TestIbstatListAndShort(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewIBToolsSimulator()

	result := s.Execute(parseFor(s, "ibstat -l"), ctx)
	assert.Equal(t, "mlx5_0\nmlx5_1\nmlx5_2\nmlx5_3", result.Output)

	result = s.Execute(parseFor(s, "ibstat -s"), ctx)
	assert.Contains(t, result.Output, "CA 'mlx5_0'")
	assert.NotContains(t, result.Output, "Port 1:")
}

func TestIbstatDownPort(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	hca := store.Cluster().Nodes[0].HCAs[1]
	hca.State = "Down"
	hca.PhysState = "Disabled"
	s := NewIBToolsSimulator()

	result := s.Execute(parseFor(s, "ibstat mlx5_1"), ctx)
	assert.Contains(t, result.Output, "State: Down")
	assert.Contains(t, result.Output, "Physical state: Disabled")
	assert.Contains(t, result.Output, "Rate: 10")
}

func TestIbdev2netdev(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	store.Cluster().Nodes[0].HCAs[3].State = "Down"
	s := NewIBToolsSimulator()

	result := s.Execute(parseFor(s, "ibdev2netdev"), ctx)
	lines := strings.Split(result.Output, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "mlx5_0 port 1 ==> ibp24s0 (Up)", lines[0])
	assert.Equal(t, "mlx5_3 port 1 ==> ibp114s0 (Down)", lines[3])
}

func TestIBToolsNoCluster(t *testing.T) {
	s := NewIBToolsSimulator()
	result := s.Execute(parseFor(s, "ibstat"), &simtypes.CommandContext{})
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Output, "stat of IB device failed")
}
