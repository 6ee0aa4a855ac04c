package tools

import (
	"fmt"
	"strings"
	"time"

	"dgxsim/pkg/simtypes"
)

// managedService is one simulated systemd unit.
type managedService struct {
	unit        string
	description string
	mainProcess string
	pid         int
}

// managedServices is the fixed unit inventory a DGX node ships with,
// in list-units order.
var managedServices = []managedService{
	{"nvidia-dcgm.service", "NVIDIA DCGM service", "nv-hostengine", 2104},
	{"nvidia-fabricmanager.service", "NVIDIA fabric manager service", "nv-fabricmanager", 1987},
	{"nvsm.service", "NVIDIA System Management", "nvsm-core", 2310},
	{"slurmd.service", "Slurm node daemon", "slurmd", 2455},
}

// ServiceUnits returns the unit names of the managed inventory.
func ServiceUnits() []string {
	units := make([]string, 0, len(managedServices))
	for _, svc := range managedServices {
		units = append(units, svc.unit)
	}
	return units
}

// SystemctlSimulator answers systemctl status and list-units over the
// fixed DGX service inventory.
type SystemctlSimulator struct {
	nonInteractive
}

// NewSystemctlSimulator creates a fresh systemctl simulator.
func NewSystemctlSimulator() *SystemctlSimulator {
	return &SystemctlSimulator{nonInteractive: nonInteractive{tool: "systemctl"}}
}

// Metadata describes systemctl for help and completion.
func (s *SystemctlSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "systemctl",
		Version:     "249",
		Description: "Queries the state of DGX system services",
		Commands: []simtypes.ToolCommand{
			{Name: "status", Description: "Show runtime status of one or more units"},
			{Name: "list-units", Description: "List loaded units",
				Flags: []simtypes.ToolFlag{
					{Name: "--type", Description: "Unit type filter", TakesValue: true},
					{Name: "--all", Description: "Include inactive units"},
				}},
			{Name: "is-active", Description: "Check whether units are active"},
		},
	}
}

// Execute dispatches on the systemctl verb.
func (s *SystemctlSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	c, errRes := requireCluster(ctx, "Failed to connect to bus: No such file or directory")
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	switch cmd.Subcommand {
	case "status":
		return s.status(cmd, c, node)
	case "list-units", "":
		return s.listUnits(node)
	case "is-active":
		return s.isActive(cmd, node)
	default:
		return failResult(fmt.Sprintf("Unknown command verb %s.", cmd.Subcommand))
	}
}

// serviceActive reports whether a unit is running on the node. A
// drained node keeps slurmd running, so every unit follows node power.
func serviceActive(svc managedService, node *simtypes.DGXNode) bool {
	return node.PoweredOn
}

func findService(name string) (managedService, bool) {
	unit := name
	if !strings.HasSuffix(unit, ".service") {
		unit += ".service"
	}
	for _, svc := range managedServices {
		if svc.unit == unit {
			return svc, true
		}
	}
	return managedService{}, false
}

func (s *SystemctlSimulator) status(cmd *simtypes.ParsedCommand, c *simtypes.ClusterConfig, node *simtypes.DGXNode) *simtypes.CommandResult {
	if len(cmd.PositionalArgs) == 0 {
		return s.listUnits(node)
	}
	svc, ok := findService(cmd.PositionalArgs[0])
	if !ok {
		return failResult(fmt.Sprintf("Unit %s could not be found.", cmd.PositionalArgs[0]))
	}

	active := serviceActive(svc, node)
	state, dot := "active (running)", "●"
	if !active {
		state = "inactive (dead)"
	}
	since := c.BootTime.Add(12 * time.Second)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s - %s\n", dot, svc.unit, svc.description)
	fmt.Fprintf(&b, "     Loaded: loaded (/lib/systemd/system/%s; enabled; vendor preset: enabled)\n", svc.unit)
	fmt.Fprintf(&b, "     Active: %s since %s\n", state, since.Format("Mon 2006-01-02 15:04:05 MST"))
	if active {
		fmt.Fprintf(&b, "   Main PID: %d (%s)\n", svc.pid, svc.mainProcess)
		fmt.Fprintf(&b, "      Tasks: 14\n")
		fmt.Fprintf(&b, "     Memory: 38.2M\n")
		fmt.Fprintf(&b, "     CGroup: /system.slice/%s\n", svc.unit)
		fmt.Fprintf(&b, "             └─%d /usr/bin/%s\n", svc.pid, svc.mainProcess)
	}
	result := textResult(strings.TrimRight(b.String(), "\n"))
	if !active {
		result.ExitCode = 3
	}
	return result
}

func (s *SystemctlSimulator) listUnits(node *simtypes.DGXNode) *simtypes.CommandResult {
	var b strings.Builder
	fmt.Fprintf(&b, "  %-30s %-6s %-6s %-8s %s\n", "UNIT", "LOAD", "ACTIVE", "SUB", "DESCRIPTION")
	loaded := 0
	for _, svc := range managedServices {
		active, sub := "active", "running"
		if !serviceActive(svc, node) {
			active, sub = "inactive", "dead"
		}
		fmt.Fprintf(&b, "  %-30s %-6s %-6s %-8s %s\n", svc.unit, "loaded", active, sub, svc.description)
		loaded++
	}
	b.WriteString("\n")
	b.WriteString("LOAD   = Reflects whether the unit definition was properly loaded.\n")
	b.WriteString("ACTIVE = The high-level unit activation state, i.e. generalization of SUB.\n")
	b.WriteString("SUB    = The low-level unit activation state, values depend on unit type.\n\n")
	fmt.Fprintf(&b, "%d loaded units listed.", loaded)
	return textResult(b.String())
}

func (s *SystemctlSimulator) isActive(cmd *simtypes.ParsedCommand, node *simtypes.DGXNode) *simtypes.CommandResult {
	if len(cmd.PositionalArgs) == 0 {
		return failResult("Too few arguments.")
	}
	svc, ok := findService(cmd.PositionalArgs[0])
	if !ok || !serviceActive(svc, node) {
		result := textResult("inactive")
		result.ExitCode = 3
		return result
	}
	return textResult("active")
}
