package tools

import (
	"fmt"
	"sort"
	"strings"

	"dgxsim/internal/format"
	"dgxsim/internal/parser"
	"dgxsim/pkg/simtypes"
)

const cmshVersion = "trunk (build 160723)"

// cmshModes are the object modes reachable from the cmsh root, in the
// order help lists them.
var cmshModes = []string{"category", "device", "network", "partition", "softwareimage"}

// CmshModes returns the object modes reachable from the cmsh root,
// for tab completion inside a cmsh session.
func CmshModes() []string {
	return append([]string(nil), cmshModes...)
}

// cmshState is the explicit state of one cmsh session: the active
// mode and the object selected with `use`. Transitions are pure; the
// simulator instance stores only the current state.
type cmshState struct {
	mode       string // "" means root
	selectedID string
}

// CmshSimulator is the cluster-manager shell state machine. Session
// state lives on the instance and is reset each time the tool is
// re-entered, so one instance serves at most one terminal session.
type CmshSimulator struct {
	state cmshState
}

// NewCmshSimulator creates a fresh cmsh simulator at the root mode.
func NewCmshSimulator() *CmshSimulator {
	return &CmshSimulator{}
}

// Metadata describes cmsh for help and completion.
func (s *CmshSimulator) Metadata() simtypes.SimulatorMetadata {
	commands := []simtypes.ToolCommand{
		{Name: "list", Description: "List objects of the current mode", Flags: []simtypes.ToolFlag{
			{Name: "-d", Description: "Delimited output; '{}' selects JSON", TakesValue: true},
		}},
		{Name: "use", Description: "Select an object"},
		{Name: "show", Description: "Show the selected object"},
		{Name: "get", Description: "Get one parameter of the selected object"},
		{Name: "home", Description: "Return to the root mode"},
		{Name: "exit", Description: "Leave the current mode or the shell"},
		{Name: "quit", Description: "Leave the shell"},
	}
	for _, m := range cmshModes {
		commands = append(commands, simtypes.ToolCommand{Name: m, Description: "Enter " + m + " mode"})
	}
	return simtypes.SimulatorMetadata{
		Name:        "cmsh",
		Version:     cmshVersion,
		Description: "Cluster management shell",
		Commands:    commands,
	}
}

// Execute enters the shell. `--help` and `--version` short-circuit
// without starting a session; anything else resets the state machine
// to the root mode and returns the banner plus the initial prompt.
func (s *CmshSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	if cmd.HasFlag("--help") || cmd.HasFlag("-h") {
		return textResult("Usage: cmsh [options]\n  --help     show this help\n  --version  show version\nWith no arguments cmsh starts an interactive session.")
	}
	if cmd.HasFlag("--version") {
		return textResult("cmsh version " + cmshVersion)
	}
	if _, errRes := requireCluster(ctx, "Cannot connect to cluster management daemon on localhost:8081"); errRes != nil {
		return errRes
	}

	s.state = cmshState{}
	banner := fmt.Sprintf("[%s]%% Cluster Manager %s\n\nType \"help\" for a list of commands.", clusterLabel(ctx), cmshVersion)
	return &simtypes.CommandResult{
		Output:      banner,
		ExitCode:    0,
		Prompt:      s.prompt(ctx),
		Interactive: true,
	}
}

// ExecuteInteractive runs one line inside the session.
func (s *CmshSimulator) ExecuteInteractive(line string, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	next, result := s.step(s.state, line, ctx)
	s.state = next
	return result
}

// CompletionCandidates returns everything the current cmsh state can
// accept as a first or second word: verbs, modes at the root, and the
// current mode's object names.
func (s *CmshSimulator) CompletionCandidates(ctx *simtypes.CommandContext) []string {
	candidates := []string{"list", "use", "show", "get", "home", "help", "exit", "quit"}
	if s.state.mode == "" {
		candidates = append(candidates, cmshModes...)
	} else if ctx != nil && ctx.Cluster != nil {
		candidates = append(candidates, s.objectIDs(ctx, s.state.mode)...)
	}
	return candidates
}

// step is the pure transition function of the state machine.
func (s *CmshSimulator) step(state cmshState, line string, ctx *simtypes.CommandContext) (cmshState, *simtypes.CommandResult) {
	fields := parser.Fields(line)
	if len(fields) == 0 {
		return state, s.stay(ctx, state, "", 0)
	}
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "exit":
		if state.mode != "" {
			state = cmshState{}
			return state, s.stay(ctx, state, "", 0)
		}
		return state, &simtypes.CommandResult{ExitCode: 0}
	case "quit":
		return state, &simtypes.CommandResult{ExitCode: 0}
	case "home", "main":
		state = cmshState{}
		return state, s.stay(ctx, state, "", 0)
	case "help":
		return state, s.stay(ctx, state, s.helpText(state), 0)
	case "list":
		out, code := s.list(ctx, state, args)
		return state, s.stay(ctx, state, out, code)
	case "use":
		return s.use(ctx, state, args)
	case "show":
		out, code := s.show(ctx, state, args)
		return state, s.stay(ctx, state, out, code)
	case "get":
		out, code := s.get(ctx, state, args)
		return state, s.stay(ctx, state, out, code)
	}

	for _, m := range cmshModes {
		if verb == m {
			state = cmshState{mode: m}
			return state, s.stay(ctx, state, "", 0)
		}
	}

	return state, s.stay(ctx, state, fmt.Sprintf("Unknown verb: %s", verb), 1)
}

func (s *CmshSimulator) stay(ctx *simtypes.CommandContext, state cmshState, output string, exitCode int) *simtypes.CommandResult {
	return &simtypes.CommandResult{
		Output:      output,
		ExitCode:    exitCode,
		Prompt:      s.promptFor(ctx, state),
		Interactive: true,
	}
}

func (s *CmshSimulator) prompt(ctx *simtypes.CommandContext) string {
	return s.promptFor(ctx, s.state)
}

// promptFor renders the cmsh prompt: [label]% , [label->mode]% , or
// [label->mode[selected]]% .
func (s *CmshSimulator) promptFor(ctx *simtypes.CommandContext, state cmshState) string {
	label := clusterLabel(ctx)
	switch {
	case state.mode == "":
		return fmt.Sprintf("[%s]%% ", label)
	case state.selectedID == "":
		return fmt.Sprintf("[%s->%s]%% ", label, state.mode)
	default:
		return fmt.Sprintf("[%s->%s[%s]]%% ", label, state.mode, state.selectedID)
	}
}

func clusterLabel(ctx *simtypes.CommandContext) string {
	if ctx != nil && ctx.Cluster != nil && ctx.Cluster.Name != "" {
		return ctx.Cluster.Name
	}
	return "dgxsim"
}

func (s *CmshSimulator) use(ctx *simtypes.CommandContext, state cmshState, args []string) (cmshState, *simtypes.CommandResult) {
	if state.mode == "" {
		return state, s.stay(ctx, state, "use: not in an object mode", 1)
	}
	if len(args) == 0 {
		return state, s.stay(ctx, state, "use: an object name is required", 1)
	}
	id := args[0]
	if !containsStr(s.objectIDs(ctx, state.mode), id) {
		return state, s.stay(ctx, state, fmt.Sprintf("%s not found", id), 1)
	}
	state.selectedID = id
	return state, s.stay(ctx, state, "", 0)
}

// objectIDs enumerates the object names of a mode, in listing order.
func (s *CmshSimulator) objectIDs(ctx *simtypes.CommandContext, mode string) []string {
	c := ctx.Cluster
	switch mode {
	case "device":
		return c.Hostnames()
	case "category":
		seen := map[string]bool{}
		var ids []string
		for _, n := range c.Nodes {
			if !seen[n.Category] {
				seen[n.Category] = true
				ids = append(ids, n.Category)
			}
		}
		return ids
	case "partition":
		var ids []string
		for _, p := range c.Slurm.Partitions {
			ids = append(ids, p.Name)
		}
		return ids
	case "softwareimage":
		return []string{"default-image"}
	case "network":
		return []string{"internalnet", "ipminet"}
	}
	return nil
}

func (s *CmshSimulator) list(ctx *simtypes.CommandContext, state cmshState, args []string) (string, int) {
	if state.mode == "" {
		// Root list shows the available modes.
		return strings.Join(cmshModes, "\n"), 0
	}
	if wantsJSON(args) {
		return s.listJSON(ctx, state.mode)
	}

	c := ctx.Cluster
	switch state.mode {
	case "device":
		headers := []string{"Type", "Hostname (key)", "MAC", "Category", "IP", "Status"}
		var rows [][]string
		for _, n := range c.Nodes {
			rows = append(rows, []string{"PhysicalNode", n.Hostname, n.BMC.MACAddress, n.Category, n.IPAddress, deviceStatus(n)})
		}
		return format.Table(headers, rows), 0
	case "category":
		headers := []string{"Name (key)", "Software image", "Nodes"}
		var rows [][]string
		for _, id := range s.objectIDs(ctx, "category") {
			count := 0
			for _, n := range c.Nodes {
				if n.Category == id {
					count++
				}
			}
			rows = append(rows, []string{id, "default-image", fmt.Sprintf("%d", count)})
		}
		return format.Table(headers, rows), 0
	case "partition":
		headers := []string{"Name (key)", "Nodes"}
		var rows [][]string
		for _, p := range c.Slurm.Partitions {
			rows = append(rows, []string{p.Name, compressHostnames(p.Nodes)})
		}
		return format.Table(headers, rows), 0
	case "softwareimage":
		headers := []string{"Name (key)", "Path", "Kernel version"}
		rows := [][]string{{"default-image", "/cm/images/default-image", "5.15.0-1053-nvidia"}}
		return format.Table(headers, rows), 0
	case "network":
		headers := []string{"Name (key)", "Type", "Netmask", "Base address"}
		rows := [][]string{
			{"internalnet", "Internal", "255.255.255.0", "10.0.1.0"},
			{"ipminet", "Internal", "255.255.255.0", "10.0.2.0"},
		}
		return format.Table(headers, rows), 0
	}
	return "", 0
}

// wantsJSON detects `list -d {}`.
func wantsJSON(args []string) bool {
	for i, a := range args {
		if a == "-d" && i+1 < len(args) && args[i+1] == "{}" {
			return true
		}
	}
	return false
}

// listJSON renders the structured listing: a JSON array with
// Capitalized user-facing keys, never the internal lowerCamel names.
func (s *CmshSimulator) listJSON(ctx *simtypes.CommandContext, mode string) (string, int) {
	c := ctx.Cluster
	var records []map[string]any
	switch mode {
	case "device":
		for _, n := range c.Nodes {
			records = append(records, map[string]any{
				"Hostname (key)": n.Hostname,
				"Type":           "PhysicalNode",
				"MAC":            n.BMC.MACAddress,
				"Category":       n.Category,
				"IPAddress":      n.IPAddress,
				"Status":         deviceStatus(n),
			})
		}
	case "category":
		for _, id := range s.objectIDs(ctx, "category") {
			records = append(records, map[string]any{
				"Name (key)":    id,
				"SoftwareImage": "default-image",
			})
		}
	case "partition":
		for _, p := range c.Slurm.Partitions {
			records = append(records, map[string]any{
				"Name (key)": p.Name,
				"Nodes":      compressHostnames(p.Nodes),
			})
		}
	default:
		for _, id := range s.objectIDs(ctx, mode) {
			records = append(records, map[string]any{"Name (key)": id})
		}
	}
	out, err := format.MarshalCapitalized(records)
	if err != nil {
		return err.Error(), 1
	}
	return out, 0
}

func (s *CmshSimulator) show(ctx *simtypes.CommandContext, state cmshState, args []string) (string, int) {
	if state.mode == "" {
		return "show: not in an object mode", 1
	}
	id := state.selectedID
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		return "No object selected", 1
	}
	if !containsStr(s.objectIDs(ctx, state.mode), id) {
		return fmt.Sprintf("%s not found", id), 1
	}

	pairs := s.objectParameters(ctx, state.mode, id)
	var rows [][]string
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return format.Table([]string{"Parameter", "Value"}, rows), 0
}

func (s *CmshSimulator) get(ctx *simtypes.CommandContext, state cmshState, args []string) (string, int) {
	if state.selectedID == "" {
		return "No object selected", 1
	}
	if len(args) == 0 {
		return "get: a parameter name is required", 1
	}
	want := strings.ToLower(args[0])
	for _, p := range s.objectParameters(ctx, state.mode, state.selectedID) {
		if strings.ToLower(strings.ReplaceAll(p[0], " ", "")) == strings.ReplaceAll(want, " ", "") {
			return p[1], 0
		}
	}
	return fmt.Sprintf("No parameter %s", args[0]), 1
}

// objectParameters renders the Parameter/Value pairs of one object.
func (s *CmshSimulator) objectParameters(ctx *simtypes.CommandContext, mode, id string) [][2]string {
	c := ctx.Cluster
	switch mode {
	case "device":
		n := c.Node(id)
		if n == nil {
			return nil
		}
		power := "ON"
		if !n.PoweredOn {
			power = "OFF"
		}
		return [][2]string{
			{"Hostname", n.Hostname},
			{"Type", "PhysicalNode"},
			{"Category", n.Category},
			{"IP", n.IPAddress},
			{"MAC", n.BMC.MACAddress},
			{"Status", deviceStatus(n)},
			{"Power status", power},
			{"GPUs", fmt.Sprintf("%d", len(n.GPUs))},
			{"Serial number", n.SerialNumber},
			{"Software image", "default-image"},
		}
	case "category":
		count := 0
		for _, n := range c.Nodes {
			if n.Category == id {
				count++
			}
		}
		return [][2]string{
			{"Name", id},
			{"Software image", "default-image"},
			{"Nodes", fmt.Sprintf("%d", count)},
		}
	case "partition":
		for _, p := range c.Slurm.Partitions {
			if p.Name == id {
				return [][2]string{
					{"Name", p.Name},
					{"Nodes", compressHostnames(p.Nodes)},
					{"State", p.State},
					{"Time limit", p.TimeLimit},
				}
			}
		}
	case "softwareimage":
		return [][2]string{
			{"Name", id},
			{"Path", "/cm/images/" + id},
			{"Kernel version", "5.15.0-1053-nvidia"},
		}
	case "network":
		base := "10.0.1.0"
		if id == "ipminet" {
			base = "10.0.2.0"
		}
		return [][2]string{
			{"Name", id},
			{"Type", "Internal"},
			{"Netmask", "255.255.255.0"},
			{"Base address", base},
		}
	}
	return nil
}

func deviceStatus(n *simtypes.DGXNode) string {
	switch {
	case !n.PoweredOn:
		return "[ DOWN ]"
	case n.Status == "drained":
		return "[ CLOSED ]"
	default:
		return "[ UP ]"
	}
}

func (s *CmshSimulator) helpText(state cmshState) string {
	modes := append([]string(nil), cmshModes...)
	sort.Strings(modes)
	lines := []string{
		"Object modes:",
		"  " + strings.Join(modes, "  "),
		"",
		"Commands:",
		"  list [-d {}]   List objects of the current mode",
		"  use <object>   Select an object",
		"  show [object]  Show the selected object's parameters",
		"  get <param>    Print a single parameter",
		"  home           Return to the root mode",
		"  exit / quit    Leave the mode or the shell",
	}
	if state.mode != "" {
		lines = append([]string{"Current mode: " + state.mode, ""}, lines...)
	}
	return strings.Join(lines, "\n")
}
