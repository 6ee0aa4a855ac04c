package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dgxsim/internal/cluster"
	"dgxsim/internal/format"
	"dgxsim/internal/testutils"
)

// A single injected XID must read identically everywhere: the same
// code, the same canonical description, the same severity, regardless
// of which tool the learner reaches for.
func TestXid79VisibleAcrossAllTools(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	require.NoError(t, store.AddXIDError("dgx-node01", 0, 79))
	ctx := testutils.Context(store)

	const desc = "GPU has fallen off the bus"

	smi := NewNvidiaSMISimulator()
	result := smi.Execute(parseFor(smi, "nvidia-smi -q -d XID"), ctx)
	assert.Contains(t, result.Output, "Xid 79")
	assert.Contains(t, result.Output, desc)

	dcgmi := NewDCGMISimulator()
	result = dcgmi.Execute(parseFor(dcgmi, "dcgmi health -c"), ctx)
	out := format.StripANSI(result.Output)
	assert.Contains(t, out, "Overall Health: Failure")
	assert.Contains(t, out, "GPU 0: XID 79 ("+desc+")")

	pci := NewPCIToolsSimulator()
	result = pci.Execute(parseFor(pci, "journalctl -k"), ctx)
	assert.Contains(t, result.Output, "NVRM: Xid (PCI:0000:1b:00.0): 79,")
	assert.Contains(t, result.Output, desc)

	result = pci.Execute(parseFor(pci, "lspci -v -d 10de:"), ctx)
	assert.Contains(t, result.Output, "Device is in error state (XID 79: "+desc+")")

	nvsm := NewNVSMSimulator()
	result = nvsm.Execute(parseFor(nvsm, "nvsm show health --detailed"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	out = format.StripANSI(result.Output)
	assert.Contains(t, out, "Overall system status: Critical")

	report := NewBugReportSimulator()
	result = report.Execute(parseFor(report, "nvidia-bug-report.sh"), ctx)
	assert.Contains(t, result.Output, "Xid 79 - "+desc)
}

// Draining a node through scontrol must surface in cmsh device status.
func TestDrainVisibleInCmsh(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)

	slurm := NewSlurmSimulator(store)
	result := slurm.Execute(parseFor(slurm, `scontrol update NodeName=dgx-node02 State=drain Reason=maintenance`), ctx)
	require.Equal(t, 0, result.ExitCode)

	cmsh := startCmsh(t, ctx)
	cmsh.ExecuteInteractive("device", ctx)
	result = cmsh.ExecuteInteractive("list", ctx)
	assert.Contains(t, result.Output, "[ CLOSED ]")
}

// Powering a node off through ipmitool must read back as down in sinfo.
func TestPowerOffVisibleInSlurm(t *testing.T) {
	store := testutils.NewHealthyStore(2)
	ctx := testutils.Context(store)

	ipmi := NewIPMIToolSimulator(store)
	result := ipmi.Execute(parseFor(ipmi, "ipmitool power off"), ctx)
	require.Equal(t, 0, result.ExitCode)

	slurm := NewSlurmSimulator(store)
	result = slurm.Execute(parseFor(slurm, "sinfo"), ctx)
	assert.Contains(t, result.Output, "down")
	assert.Contains(t, result.Output, "dgx-node01")
}

// Reset returns the whole cluster to the pristine topology.
func TestStoreResetClearsFaults(t *testing.T) {
	store := cluster.NewStore(cluster.NewDefaultCluster(2))
	require.NoError(t, store.AddXIDError("dgx-node01", 0, 79))
	ctx := testutils.Context(store)

	store.Reset()
	ctx.Cluster = store.Cluster()

	smi := NewNvidiaSMISimulator()
	result := smi.Execute(parseFor(smi, "nvidia-smi -q -d XID"), ctx)
	assert.Contains(t, result.Output, "XID Errors                            : None")
	assert.NotContains(t, result.Output, "Xid 79")
}
