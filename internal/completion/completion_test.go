package completion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dgxsim/internal/cluster"
	"dgxsim/internal/sim"
	"dgxsim/internal/sim/tools"
	"dgxsim/internal/testutils"
	"dgxsim/pkg/simtypes"
)

func newTestCompleter(t *testing.T, nodes int) (*Completer, *sim.Engine, *simtypes.CommandContext, *cluster.Store) {
	t.Helper()
	store := testutils.NewHealthyStore(nodes)
	ctx := testutils.Context(store)
	registry := sim.NewRegistry()
	require.NoError(t, tools.RegisterAll(registry, store))
	engine := sim.NewEngine(registry)
	return New(engine, ctx), engine, ctx, store
}

// complete reconstructs the full candidate words the completer offers
// for a line with the cursor at its end.
func complete(c *Completer, line string) []string {
	suffixes, _ := c.Do([]rune(line), len(line))
	word := line
	if i := strings.LastIndexAny(line, " ="); i >= 0 {
		word = line[i+1:]
	}
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, word+string(s))
	}
	return out
}

func TestCompleteBaseCommands(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "sin")
	assert.Equal(t, []string{"sinfo"}, got)

	got = complete(c, "nvidia-")
	assert.Contains(t, got, "nvidia-smi")
	assert.Contains(t, got, "nvidia-bug-report.sh")

	got = complete(c, "")
	assert.Contains(t, got, "help")
	assert.Contains(t, got, "exit")
	assert.Contains(t, got, "cmsh")
}

func TestCompleteSubcommands(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "dcgmi d")
	assert.Contains(t, got, "discovery")
	assert.Contains(t, got, "diag")
	assert.NotContains(t, got, "health")

	got = complete(c, "ipmitool s")
	assert.Contains(t, got, "sensor")
	assert.Contains(t, got, "sel")
}

func TestCompleteFlags(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "nvidia-smi --query")
	assert.Contains(t, got, "--query-gpu")
}

func TestCompleteHostnamesAfterNodeFlags(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 2)

	got := complete(c, "sinfo -n dgx-")
	assert.Equal(t, []string{"dgx-node01", "dgx-node02"}, got)

	got = complete(c, "squeue -w dgx-node0")
	assert.Contains(t, got, "dgx-node02")
}

func TestCompleteJournalctlUnits(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "journalctl -u nvidia-")
	assert.Contains(t, got, "nvidia-dcgm.service")
	assert.Contains(t, got, "nvidia-fabricmanager.service")
	assert.NotContains(t, got, "slurmd.service")
}

func TestCompleteLspciVendors(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "lspci -d 1")
	assert.Equal(t, []string{"10de:", "15b3:"}, got)
}

func TestCompleteSystemctlUnits(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "systemctl status nv")
	assert.Contains(t, got, "nvidia-dcgm.service")
	assert.Contains(t, got, "nvsm.service")
}

func TestCompleteScontrolVocabulary(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 2)

	got := complete(c, "scontrol show ")
	assert.Contains(t, got, "node")
	assert.Contains(t, got, "partition")

	got = complete(c, "scontrol show node dgx-node0")
	assert.Contains(t, got, "dgx-node01")
	assert.Contains(t, got, "dgx-node02")
}

func TestCompleteIbstatDevices(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)

	got := complete(c, "ibstat mlx5_")
	assert.Equal(t, []string{"mlx5_0", "mlx5_1", "mlx5_2", "mlx5_3"}, got)
}

func TestCompleteInsideCmshSession(t *testing.T) {
	c, engine, ctx, _ := newTestCompleter(t, 2)

	result := engine.Run("cmsh", ctx)
	require.True(t, result.Interactive)

	got := complete(c, "dev")
	assert.Equal(t, []string{"device"}, got)

	engine.Run("device", ctx)
	got = complete(c, "use dgx-")
	assert.Contains(t, got, "dgx-node01")
	assert.Contains(t, got, "dgx-node02")
}

func TestCompleteInsideNVSMSession(t *testing.T) {
	c, engine, ctx, _ := newTestCompleter(t, 1)

	result := engine.Run("nvsm", ctx)
	require.True(t, result.Interactive)

	got := complete(c, "cd sys")
	assert.Equal(t, []string{"systems"}, got)

	engine.Run("cd /systems/localhost/gpus", ctx)
	got = complete(c, "show GPU")
	assert.Len(t, got, 8)
	assert.Contains(t, got, "GPU0")
}

func TestCompleteUnknownBase(t *testing.T) {
	c, _, _, _ := newTestCompleter(t, 1)
	assert.Empty(t, complete(c, "frobnicate --fl"))
}
