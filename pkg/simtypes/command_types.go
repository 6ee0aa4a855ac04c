// Package simtypes defines the public types shared by the command
// simulation engine: the parsed command structure, the per-session
// command context, the simulator contract, and the virtual cluster
// data model every simulator renders from.
package simtypes

// ParsedCommand is the structured form of one entered line. It is
// immutable once produced by the parser.
type ParsedCommand struct {
	BaseCommand    string            // first token, e.g. "nvidia-smi"
	Subcommand     string            // second token when the tool declares it, e.g. "show"
	Flags          map[string]string // valued flags, e.g. {"-o": "%n %G"}
	BoolFlags      map[string]bool   // presence-only flags, e.g. {"-v": true}
	PositionalArgs []string          // remaining tokens, order preserved
	Raw            string            // the original line
}

// Flag returns the value of a valued flag, checking both the given
// spelling and its single/double-dash twin.
func (p *ParsedCommand) Flag(name string) string {
	if v, ok := p.Flags[name]; ok {
		return v
	}
	if v, ok := p.Flags[twinSpelling(name)]; ok {
		return v
	}
	return ""
}

// HasFlag reports whether a flag was given at all, valued or not.
func (p *ParsedCommand) HasFlag(name string) bool {
	if p.BoolFlags[name] || p.BoolFlags[twinSpelling(name)] {
		return true
	}
	_, ok := p.Flags[name]
	if !ok {
		_, ok = p.Flags[twinSpelling(name)]
	}
	return ok
}

func twinSpelling(name string) string {
	if len(name) > 2 && name[:2] == "--" {
		return name[1:]
	}
	return "-" + name
}

// CommandContext carries per-session state into every simulator call.
// It is owned by the terminal collaborator and passed by reference.
type CommandContext struct {
	CurrentNode string            // hostname the session is "logged into"
	CurrentPath string            // working directory shown in prompts
	Environment map[string]string // session environment variables
	History     []string          // previously entered lines
	Cluster     *ClusterConfig    // shared cluster state, nil when disconnected
}

// CommandResult is the outcome of one simulator invocation.
// Interactive is true while a sub-session (cmsh, nvsm) remains active;
// Prompt then carries the prompt for the next line. A result with
// Interactive false signals the REPL should return to the outer shell.
type CommandResult struct {
	Output      string
	ExitCode    int
	Prompt      string
	Interactive bool
}

// ToolFlag describes one flag a tool accepts, for help and completion.
type ToolFlag struct {
	Name        string
	Description string
	TakesValue  bool
}

// ToolCommand describes one subcommand (or verb) of a tool.
type ToolCommand struct {
	Name        string
	Description string
	Flags       []ToolFlag
}

// SimulatorMetadata is the static descriptive information a simulator
// exposes for help output and tab completion.
type SimulatorMetadata struct {
	Name        string
	Version     string
	Description string
	Commands    []ToolCommand
}

// Simulator is the contract every simulated tool implements.
//
// Execute handles a single non-interactive invocation. Tools with a
// REPL return an Interactive result from Execute when invoked bare;
// the caller then routes subsequent lines through ExecuteInteractive
// on the same instance until a result drops Interactive. Tools without
// a REPL implement ExecuteInteractive as a no-session error.
type Simulator interface {
	Execute(cmd *ParsedCommand, ctx *CommandContext) *CommandResult
	ExecuteInteractive(line string, ctx *CommandContext) *CommandResult
	Metadata() SimulatorMetadata
}
