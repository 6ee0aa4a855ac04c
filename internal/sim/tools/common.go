// Package tools implements the per-tool simulators. Each one reads
// the shared cluster state through the command context and renders
// tool-specific text; the only writes are the explicit allocation
// commands, which go through the cluster store's named mutators.
package tools

import (
	"fmt"

	"dgxsim/internal/cluster"
	"dgxsim/internal/faults"
	"dgxsim/pkg/simtypes"
)

// RegisterAll populates a registry with fresh instances of every
// simulator. The Slurm and PCI families register one instance under
// several base command names. Simulators holding interactive state
// must be freshly constructed per session, so there is no package
// level instance of anything here.
func RegisterAll(r registrar, store *cluster.Store) error {
	slurm := NewSlurmSimulator(store)
	pci := NewPCIToolsSimulator()
	ib := NewIBToolsSimulator()

	entries := []struct {
		name string
		s    simtypes.Simulator
	}{
		{"nvidia-smi", NewNvidiaSMISimulator()},
		{"dcgmi", NewDCGMISimulator()},
		{"ipmitool", NewIPMIToolSimulator(store)},
		{"sinfo", slurm},
		{"squeue", slurm},
		{"sbatch", slurm},
		{"scontrol", slurm},
		{"scancel", slurm},
		{"cmsh", NewCmshSimulator()},
		{"nvsm", NewNVSMSimulator()},
		{"lspci", pci},
		{"journalctl", pci},
		{"nvidia-bug-report.sh", NewBugReportSimulator()},
		{"ibstat", ib},
		{"ibdev2netdev", ib},
		{"systemctl", NewSystemctlSimulator()},
	}
	for _, e := range entries {
		if err := r.Register(e.name, e.s); err != nil {
			return err
		}
	}
	return nil
}

// registrar is the slice of sim.Registry the tools need; an interface
// here avoids an import cycle with the sim package.
type registrar interface {
	Register(name string, s simtypes.Simulator) error
}

// nonInteractive supplies the ExecuteInteractive stub for tools
// without a REPL.
type nonInteractive struct {
	tool string
}

func (n nonInteractive) ExecuteInteractive(_ string, _ *simtypes.CommandContext) *simtypes.CommandResult {
	return &simtypes.CommandResult{
		Output:   fmt.Sprintf("%s: no interactive session", n.tool),
		ExitCode: 1,
	}
}

func textResult(output string) *simtypes.CommandResult {
	return &simtypes.CommandResult{Output: output, ExitCode: 0}
}

func failResult(output string) *simtypes.CommandResult {
	return &simtypes.CommandResult{Output: output, ExitCode: 1}
}

// requireCluster returns the cluster or the daemon-style failure the
// given tool reports when it cannot reach its backend.
func requireCluster(ctx *simtypes.CommandContext, noClusterMsg string) (*simtypes.ClusterConfig, *simtypes.CommandResult) {
	if ctx == nil || ctx.Cluster == nil || len(ctx.Cluster.Nodes) == 0 {
		return nil, failResult(noClusterMsg)
	}
	return ctx.Cluster, nil
}

// xidDescription resolves the canonical description for an XID code.
func xidDescription(code int) string {
	return faults.Info(code).Description
}

// contextNode resolves the node the session is logged into, falling
// back to the first node when the context names none.
func contextNode(ctx *simtypes.CommandContext, c *simtypes.ClusterConfig) *simtypes.DGXNode {
	if ctx != nil && ctx.CurrentNode != "" {
		if n := c.Node(ctx.CurrentNode); n != nil {
			return n
		}
	}
	return c.Nodes[0]
}
