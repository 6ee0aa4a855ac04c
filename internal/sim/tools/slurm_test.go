package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dgxsim/internal/testutils"
)

func TestSinfoGroupsByState(t *testing.T) {
	store := testutils.NewHealthyStore(4)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "sinfo"), ctx)
	require.Equal(t, 0, result.ExitCode)

	lines := strings.Split(result.Output, "\n")
	assert.Contains(t, lines[0], "PARTITION")
	assert.Contains(t, lines[0], "NODELIST")
	assert.NotContains(t, result.Output, "+--")

	// All four nodes are idle, so batch collapses into one row with the
	// bracket-compressed node list. The default partition carries "*".
	assert.Contains(t, result.Output, "batch*")
	assert.Contains(t, result.Output, "dgx-node[01-04]")
	assert.Contains(t, result.Output, "idle")
	assert.Contains(t, result.Output, "debug")
}

func TestSinfoNodeOriented(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "sinfo -N"), ctx)
	lines := strings.Split(result.Output, "\n")
	assert.Contains(t, lines[0], "NODELIST")
	// dgx-node01 is in batch and debug, dgx-node02 only in batch.
	require.Len(t, lines, 4)
	assert.Contains(t, result.Output, "dgx-node02")
}

func TestSinfoFormatString(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, `sinfo -o "%n %G %t"`), ctx)
	lines := strings.Split(result.Output, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "dgx-node01 gpu:h100:8 idle", lines[0])
	assert.Equal(t, "dgx-node02 gpu:h100:8 idle", lines[1])
}

func TestSbatchLifecycle(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "sbatch -N 2 --gres=gpu:8 -J train job.sh"), ctx)
	require.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "Submitted batch job 1001", result.Output)

	result = s.Execute(parseFor(s, "squeue"), ctx)
	assert.Contains(t, result.Output, "1001")
	assert.Contains(t, result.Output, "train")
	assert.Contains(t, result.Output, "R")
	assert.Contains(t, result.Output, "dgx-node[01-02]")

	// Both nodes are full now.
	result = s.Execute(parseFor(s, "sinfo"), ctx)
	assert.Contains(t, result.Output, "alloc")
	assert.NotContains(t, result.Output, "idle")

	result = s.Execute(parseFor(s, "scancel 1001"), ctx)
	assert.Equal(t, 0, result.ExitCode)

	result = s.Execute(parseFor(s, "squeue"), ctx)
	assert.NotContains(t, result.Output, "1001")

	result = s.Execute(parseFor(s, "sinfo"), ctx)
	assert.Contains(t, result.Output, "idle")
}

func TestSbatchJobIDsIncrement(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	first := s.Execute(parseFor(s, "sbatch --gres=gpu:2 job.sh"), ctx)
	second := s.Execute(parseFor(s, "sbatch --gres=gpu:2 job.sh"), ctx)
	assert.Equal(t, "Submitted batch job 1001", first.Output)
	assert.Equal(t, "Submitted batch job 1002", second.Output)
}

func TestSbatchRejectsImpossibleRequest(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "sbatch -N 8 job.sh"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "sbatch: error: Batch job submission failed: Requested node configuration is not available", result.Output)
}

func TestScancelUnknownJob(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "scancel 9999"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Output, "Invalid job id specified")
}

func TestScontrolShowNode(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "scontrol show node dgx-node01"), ctx)
	require.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "NodeName=dgx-node01")
	assert.Contains(t, result.Output, "Gres=gpu:h100:8")
	assert.Contains(t, result.Output, "GresUsed=gpu:h100:0")
	assert.Contains(t, result.Output, "State=IDLE")
	assert.Contains(t, result.Output, "Partitions=batch,debug")
	assert.NotContains(t, result.Output, "dgx-node02")

	result = s.Execute(parseFor(s, "scontrol show node dgx-node99"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Node dgx-node99 not found", result.Output)
}

func TestScontrolShowNodeMixedState(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	_, err := store.AllocateGPUsForJob("train", "student", "batch", []string{"dgx-node01"}, 2)
	require.NoError(t, err)

	result := s.Execute(parseFor(s, "scontrol show node dgx-node01"), ctx)
	assert.Contains(t, result.Output, "State=MIXED")
	assert.Contains(t, result.Output, "GresUsed=gpu:h100:2")
}

func TestScontrolShowPartition(t *testing.T) {
	store := testutils.NewHealthyStore(4)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "scontrol show partition batch"), ctx)
	assert.Contains(t, result.Output, "PartitionName=batch")
	assert.Contains(t, result.Output, "Default=YES")
	assert.Contains(t, result.Output, "Nodes=dgx-node[01-04]")
	assert.NotContains(t, result.Output, "PartitionName=debug")
}

func TestScontrolUpdateDrain(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)
	s := NewSlurmSimulator(store)

	result := s.Execute(parseFor(s, "scontrol update NodeName=dgx-node01 State=drain"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "scontrol: error: You must specify a reason when DOWNING or DRAINING a node", result.Output)

	result = s.Execute(parseFor(s, `scontrol update NodeName=dgx-node01 State=drain Reason="GPU fault"`), ctx)
	require.Equal(t, 0, result.ExitCode)

	result = s.Execute(parseFor(s, "sinfo"), ctx)
	assert.Contains(t, result.Output, "drain")

	result = s.Execute(parseFor(s, "scontrol show node dgx-node01"), ctx)
	assert.Contains(t, result.Output, "State=DRAIN")

	// resume brings the node back.
	result = s.Execute(parseFor(s, "scontrol update NodeName=dgx-node01 State=resume"), ctx)
	require.Equal(t, 0, result.ExitCode)
	result = s.Execute(parseFor(s, "scontrol show node dgx-node01"), ctx)
	assert.Contains(t, result.Output, "State=IDLE")
}

func TestSlurmControllerDown(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	store.Cluster().Slurm.ControllerUp = false
	s := NewSlurmSimulator(store)

	for _, line := range []string{"sinfo", "squeue", "sbatch job.sh", "scontrol show node"} {
		result := s.Execute(parseFor(s, line), ctx)
		assert.Equal(t, 1, result.ExitCode, line)
		assert.Equal(t, noControllerMsg, result.Output, line)
	}
}

func TestCompressHostnames(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"empty", nil, ""},
		{"single", []string{"dgx-node01"}, "dgx-node01"},
		{"contiguous", []string{"dgx-node01", "dgx-node02", "dgx-node03", "dgx-node04"}, "dgx-node[01-04]"},
		{"gap", []string{"dgx-node01", "dgx-node03"}, "dgx-node01,dgx-node03"},
		{"mixed prefixes", []string{"dgx-node01", "gpu-node02"}, "dgx-node01,gpu-node02"},
		{"no trailing digits", []string{"login", "dgx-node01"}, "login,dgx-node01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compressHostnames(tt.names))
		})
	}
}
