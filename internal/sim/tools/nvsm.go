package tools

import (
	"fmt"
	"sort"
	"strings"

	"dgxsim/internal/faults"
	"dgxsim/internal/format"
	"dgxsim/internal/parser"
	"dgxsim/pkg/simtypes"
)

const nvsmVersion = "22.03.04"

// healthTruncateAt is how many check lines `show health` prints before
// folding the rest behind a "... N more checks" trailer. --detailed
// lifts the limit.
const healthTruncateAt = 20

// NVSMSimulator is the NVIDIA System Management shell: a single
// hierarchical target tree navigated with cd, inspected with show,
// and the fault-aware `show health` report. Session state is the
// current path only.
type NVSMSimulator struct {
	path string // "" means the default path; otherwise absolute
}

// NewNVSMSimulator creates a fresh nvsm simulator at the default path.
func NewNVSMSimulator() *NVSMSimulator {
	return &NVSMSimulator{}
}

// Metadata describes nvsm for help and completion.
func (s *NVSMSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "nvsm",
		Version:     nvsmVersion,
		Description: "NVIDIA System Management interface",
		Commands: []simtypes.ToolCommand{
			{Name: "show", Description: "Show a target or run `show health`", Flags: []simtypes.ToolFlag{
				{Name: "--detailed", Description: "Full health check list"},
			}},
			{Name: "cd", Description: "Change the current target path"},
			{Name: "exit", Description: "Leave the shell"},
		},
	}
}

// Execute enters the shell, or runs one verb directly when arguments
// are given (`nvsm show health` works without a session).
func (s *NVSMSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	if cmd.HasFlag("--help") || cmd.HasFlag("-h") {
		return textResult("Usage: nvsm [command]\n  show [target]        show a target path\n  show health          run the health check\n  cd <target>          change target path\nWith no arguments nvsm starts an interactive session.")
	}
	if cmd.HasFlag("--version") {
		return textResult("NVSM " + nvsmVersion)
	}
	if _, errRes := requireCluster(ctx, "ERROR: Unable to connect to the NVSM daemon. Is nvsm.service running?"); errRes != nil {
		return errRes
	}

	// Direct one-shot form: rebuild the verb line from the parsed
	// command and run it without keeping a session open.
	if cmd.Subcommand != "" || len(cmd.PositionalArgs) > 0 {
		verbLine := strings.TrimSpace(cmd.Subcommand + " " + strings.Join(cmd.PositionalArgs, " "))
		if cmd.HasFlag("--detailed") {
			verbLine += " --detailed"
		}
		result := s.runVerb(verbLine, ctx)
		return &simtypes.CommandResult{Output: result.Output, ExitCode: result.ExitCode}
	}

	s.path = ""
	return &simtypes.CommandResult{
		Output:      fmt.Sprintf("NVIDIA System Management Interface -- Version %s\nCopyright (C) NVIDIA Corporation", nvsmVersion),
		ExitCode:    0,
		Prompt:      s.prompt(),
		Interactive: true,
	}
}

// ExecuteInteractive runs one line inside the session.
func (s *NVSMSimulator) ExecuteInteractive(line string, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	fields := parser.Fields(line)
	if len(fields) == 0 {
		return s.stay("", 0)
	}
	switch fields[0] {
	case "exit", "quit":
		return &simtypes.CommandResult{ExitCode: 0}
	}
	result := s.runVerb(strings.TrimSpace(line), ctx)
	return s.stay(result.Output, result.ExitCode)
}

// CompletionCandidates returns the verbs plus the child targets of
// the session's current path.
func (s *NVSMSimulator) CompletionCandidates(ctx *simtypes.CommandContext) []string {
	candidates := []string{"cd", "show", "health", "help", "exit", "quit"}
	if ctx != nil {
		candidates = append(candidates, NVSMTargetNames(ctx.Cluster, s.currentPath())...)
	}
	return candidates
}

func (s *NVSMSimulator) stay(output string, exitCode int) *simtypes.CommandResult {
	return &simtypes.CommandResult{
		Output:      output,
		ExitCode:    exitCode,
		Prompt:      s.prompt(),
		Interactive: true,
	}
}

// prompt renders `nvsm> ` at the default path and `nvsm(<path>)> `
// anywhere else. The arrow separator belongs to cmsh, never nvsm.
func (s *NVSMSimulator) prompt() string {
	if s.path == "" {
		return "nvsm> "
	}
	return fmt.Sprintf("nvsm(%s)> ", s.path)
}

func (s *NVSMSimulator) runVerb(line string, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	fields := parser.Fields(line)
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "help":
		return textResult("Verbs:\n    cd <target>\n    show [target]\n    show health [--detailed]\n    exit")
	case "cd":
		return s.cd(args, ctx)
	case "show":
		if len(args) > 0 && args[0] == "health" {
			detailed := containsStr(args, "--detailed")
			return s.showHealth(ctx, detailed)
		}
		return s.show(args, ctx)
	default:
		return failResult(fmt.Sprintf("Command not found: %s", verb))
	}
}

func (s *NVSMSimulator) cd(args []string, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	target := "/"
	if len(args) > 0 {
		target = args[0]
	}
	resolved := s.resolve(target)
	node := lookupTarget(ctx.Cluster, resolved)
	if node == nil {
		parentPath := s.currentPath()
		parent := lookupTarget(ctx.Cluster, parentPath)
		msg := fmt.Sprintf("Error: Target path '%s' does not exist", target)
		if parent != nil && len(parent.children) > 0 {
			msg += "\nAvailable targets:\n    " + strings.Join(parent.childNames(), "\n    ")
		}
		return failResult(msg)
	}
	s.path = resolved
	return textResult("")
}

func (s *NVSMSimulator) show(args []string, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	path := s.currentPath()
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		path = s.resolve(args[0])
	}
	node := lookupTarget(ctx.Cluster, path)
	if node == nil {
		return failResult(fmt.Sprintf("Error: Target path '%s' does not exist", path))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nProperties:\n", path)
	for _, p := range node.properties {
		fmt.Fprintf(&b, "    %s = %s\n", p[0], p[1])
	}
	b.WriteString("Targets:\n")
	for _, name := range node.childNames() {
		fmt.Fprintf(&b, "    %s\n", name)
	}
	b.WriteString("Verbs:\n    cd\n    show")
	return textResult(b.String())
}

// currentPath is the effective absolute path of the session.
func (s *NVSMSimulator) currentPath() string {
	if s.path == "" {
		return "/"
	}
	return s.path
}

// resolve turns an absolute or relative target (including ..) into a
// normalized absolute path.
func (s *NVSMSimulator) resolve(target string) string {
	var parts []string
	if !strings.HasPrefix(target, "/") {
		parts = splitPath(s.currentPath())
	}
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

func splitPath(path string) []string {
	var parts []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

// targetNode is one entry in the nvsm target tree, built on demand
// from the cluster state.
type targetNode struct {
	children   map[string]*targetNode
	properties [][2]string
}

func (t *targetNode) childNames() []string {
	names := make([]string, 0, len(t.children))
	for name := range t.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newTarget() *targetNode {
	return &targetNode{children: map[string]*targetNode{}}
}

// NVSMTargetNames returns the child target names under an absolute
// path, for tab completion inside an nvsm session.
func NVSMTargetNames(c *simtypes.ClusterConfig, path string) []string {
	if c == nil || len(c.Nodes) == 0 {
		return nil
	}
	node := lookupTarget(c, path)
	if node == nil {
		return nil
	}
	return node.childNames()
}

// lookupTarget resolves an absolute path in the target tree, or nil.
func lookupTarget(c *simtypes.ClusterConfig, path string) *targetNode {
	node := buildTargetTree(c)
	for _, seg := range splitPath(path) {
		next, ok := node.children[seg]
		if !ok {
			return nil
		}
		node = next
	}
	return node
}

func buildTargetTree(c *simtypes.ClusterConfig) *targetNode {
	node := c.Nodes[0]

	gpus := newTarget()
	for _, g := range node.GPUs {
		gt := newTarget()
		gt.properties = [][2]string{
			{"Inventory_DeviceName", g.Model},
			{"Inventory_UUID", g.UUID},
			{"Inventory_PCILocation", g.PCIAddress},
			{"Temperature_Current", fmt.Sprintf("%d C", g.Temperature)},
			{"Power_Draw", fmt.Sprintf("%.1f W", g.PowerDrawW)},
			{"Health", string(faults.GPUHealth(g))},
		}
		gpus.children[fmt.Sprintf("GPU%d", g.Index)] = gt
	}

	processors := newTarget()
	for i := 0; i < node.CPUSockets; i++ {
		ct := newTarget()
		ct.properties = [][2]string{
			{"Model", "Intel(R) Xeon(R) Platinum 8480C"},
			{"Cores", fmt.Sprintf("%d", node.CPUCores/node.CPUSockets)},
			{"Health", "OK"},
		}
		processors.children[fmt.Sprintf("CPU%d", i)] = ct
	}

	memory := newTarget()
	memory.properties = [][2]string{
		{"TotalSystemMemoryGiB", fmt.Sprintf("%d", node.MemoryGB)},
		{"Health", "OK"},
	}

	storage := newTarget()
	storage.properties = [][2]string{
		{"NumberOfDrives", "8"},
		{"Health", "OK"},
	}

	network := newTarget()
	for _, h := range node.HCAs {
		ht := newTarget()
		ht.properties = [][2]string{
			{"State", h.State},
			{"PhysState", h.PhysState},
			{"Rate", fmt.Sprintf("%d Gb/sec", h.RateGbps)},
			{"LinkLayer", h.LinkLayer},
		}
		network.children[h.Device] = ht
	}

	localhost := newTarget()
	localhost.children["gpus"] = gpus
	localhost.children["processors"] = processors
	localhost.children["memory"] = memory
	localhost.children["storage"] = storage
	localhost.children["network"] = network
	localhost.properties = [][2]string{
		{"Hostname", node.Hostname},
		{"Model", node.Model},
		{"SerialNumber", node.SerialNumber},
		{"BiosVersion", node.BiosVersion},
	}

	systems := newTarget()
	systems.children["localhost"] = localhost

	thermal := newTarget()
	thermal.properties = [][2]string{{"FanCount", "10"}, {"Health", "OK"}}
	power := newTarget()
	power.properties = [][2]string{{"PSUCount", "6"}, {"Health", "OK"}}

	chassisHost := newTarget()
	chassisHost.children["thermal"] = thermal
	chassisHost.children["power"] = power

	chassis := newTarget()
	chassis.children["localhost"] = chassisHost

	root := newTarget()
	root.children["systems"] = systems
	root.children["chassis"] = chassis
	return root
}

// healthCheck is one named entry of the health report.
type healthCheck struct {
	description string
	status      simtypes.HealthStatus
}

// buildHealthChecks assembles the ordered check list: GPU temperature,
// ECC, PCIe link per GPU, NVLink per link, XID per GPU, IB ports per
// HCA, then DIMM/CPU/filesystem checks.
func buildHealthChecks(c *simtypes.ClusterConfig) []healthCheck {
	node := c.Nodes[0]
	var checks []healthCheck

	for _, g := range node.GPUs {
		checks = append(checks, healthCheck{
			fmt.Sprintf("GPU%d Temperature (%d C)", g.Index, g.Temperature),
			faults.TemperatureStatus(g.Temperature),
		})
	}
	for _, g := range node.GPUs {
		checks = append(checks, healthCheck{
			fmt.Sprintf("GPU%d ECC Status", g.Index),
			faults.ECCStatus(g.ECCErrors),
		})
	}
	for _, g := range node.GPUs {
		status := simtypes.HealthOK
		for _, e := range g.XIDErrors {
			if e.Code == 79 {
				status = simtypes.HealthCritical
			}
		}
		checks = append(checks, healthCheck{
			fmt.Sprintf("GPU%d PCIe Link Speed/Width (Gen5 x16)", g.Index),
			status,
		})
	}
	for _, g := range node.GPUs {
		for _, l := range g.NVLinks {
			status := simtypes.HealthOK
			if l.Status == simtypes.LinkDown {
				status = simtypes.HealthCritical
			}
			checks = append(checks, healthCheck{
				fmt.Sprintf("GPU%d NVLink Link %d Status", g.Index, l.LinkID),
				status,
			})
		}
	}
	for _, g := range node.GPUs {
		checks = append(checks, healthCheck{
			fmt.Sprintf("GPU%d XID Error Check", g.Index),
			faults.XIDStatus(g.XIDErrors),
		})
	}
	for _, h := range node.HCAs {
		status := simtypes.HealthOK
		if h.State != "Active" {
			status = simtypes.HealthCritical
		}
		checks = append(checks, healthCheck{
			fmt.Sprintf("InfiniBand %s Port %d State", h.Device, h.Port),
			status,
		})
	}
	checks = append(checks,
		healthCheck{"DIMM Configuration Check", simtypes.HealthOK},
		healthCheck{"CPU Configuration Check", simtypes.HealthOK},
		healthCheck{"Filesystem Utilization Check", simtypes.HealthOK},
	)
	return checks
}

// showHealth renders the health report. Every check line is padded to
// exactly 70 visible characters via the shared dot-leader.
func (s *NVSMSimulator) showHealth(ctx *simtypes.CommandContext, detailed bool) *simtypes.CommandResult {
	checks := buildHealthChecks(ctx.Cluster)

	healthy := 0
	overall := simtypes.HealthOK
	for _, ch := range checks {
		if ch.status == simtypes.HealthOK {
			healthy++
		}
		overall = faults.Worst(overall, ch.status)
	}

	shown := checks
	hidden := 0
	if !detailed && len(checks) > healthTruncateAt {
		shown = checks[:healthTruncateAt]
		hidden = len(checks) - healthTruncateAt
	}

	var b strings.Builder
	for _, ch := range shown {
		b.WriteString(format.DotLeader(ch.description, format.Colorize(ch.status), format.HealthReportWidth))
		b.WriteString("\n")
	}
	if hidden > 0 {
		fmt.Fprintf(&b, "... %d more checks\n", hidden)
	}

	overallWord := "Healthy"
	if overall == simtypes.HealthWarning {
		overallWord = "Warning"
	} else if overall == simtypes.HealthCritical {
		overallWord = "Critical"
	}
	fmt.Fprintf(&b, "\nHealth Summary\n")
	fmt.Fprintf(&b, "  %d out of %d checks are healthy\n", healthy, len(checks))
	fmt.Fprintf(&b, "Overall system status: %s", format.ColorizeWord(overallWord, overall))

	exitCode := 0
	if overall == simtypes.HealthCritical {
		exitCode = 1
	}
	return &simtypes.CommandResult{Output: b.String(), ExitCode: exitCode}
}
