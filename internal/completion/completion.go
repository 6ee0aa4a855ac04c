// Package completion provides tab completion over the simulator
// registry. It implements the readline.AutoCompleter interface so the
// terminal loop can plug it straight into its line editor.
package completion

import (
	"sort"
	"strings"

	"dgxsim/internal/sim"
	"dgxsim/internal/sim/tools"
	"dgxsim/pkg/simtypes"
)

// sessionCompleter is implemented by interactive simulators that can
// name their own candidates (cmsh modes and objects, nvsm targets).
type sessionCompleter interface {
	CompletionCandidates(ctx *simtypes.CommandContext) []string
}

// Completer resolves completions from the engine's registry metadata
// and the live command context.
type Completer struct {
	engine *sim.Engine
	ctx    *simtypes.CommandContext
}

// New creates a Completer over an engine and the context the terminal
// session runs with.
func New(engine *sim.Engine, ctx *simtypes.CommandContext) *Completer {
	return &Completer{engine: engine, ctx: ctx}
}

// Do implements the readline.AutoCompleter interface. It analyzes the
// current input line and cursor position and returns the suffixes that
// would complete the word under the cursor.
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, offset int) {
	lineStr := string(line)
	if pos > len(lineStr) {
		pos = len(lineStr)
	}

	wordStart := findWordStart(lineStr, pos)
	currentWord := lineStr[wordStart:pos]

	candidates := c.candidates(lineStr[:wordStart], currentWord)
	sort.Strings(candidates)

	var suggestions [][]rune
	seen := map[string]bool{}
	for _, candidate := range candidates {
		if !strings.HasPrefix(candidate, currentWord) || seen[candidate] {
			continue
		}
		seen[candidate] = true
		suggestions = append(suggestions, []rune(strings.TrimPrefix(candidate, currentWord)))
	}
	return suggestions, len(currentWord)
}

// findWordStart finds the start position of the word being completed.
func findWordStart(line string, pos int) int {
	for i := pos - 1; i >= 0; i-- {
		if line[i] == ' ' || line[i] == '=' {
			return i + 1
		}
	}
	return 0
}

// candidates resolves the completion set from context: the open
// interactive session's own candidates, base command names at the
// start of a line, and subcommands, flags, hostnames, unit names, or
// flag values after a base command.
func (c *Completer) candidates(before, currentWord string) []string {
	if active := c.engine.Active(); active != nil {
		if sc, ok := active.(sessionCompleter); ok {
			return sc.CompletionCandidates(c.ctx)
		}
		return nil
	}

	fields := strings.Fields(before)
	if len(fields) == 0 {
		return c.baseCommands()
	}

	base := fields[0]
	s, ok := c.engine.Registry().Get(base)
	if !ok {
		return nil
	}

	// Values for flags that take one.
	if len(fields) > 1 {
		if vals := c.flagValues(base, fields[len(fields)-1]); vals != nil {
			return vals
		}
	}

	meta := s.Metadata()
	var out []string
	if len(fields) == 1 {
		for _, cmd := range meta.Commands {
			if cmd.Name != "" {
				out = append(out, cmd.Name)
			}
		}
	}
	if strings.HasPrefix(currentWord, "-") || len(out) == 0 || len(fields) > 1 {
		for _, cmd := range meta.Commands {
			for _, f := range cmd.Flags {
				out = append(out, f.Name)
			}
		}
	}
	out = append(out, c.positionalCandidates(base, fields)...)
	return out
}

func (c *Completer) baseCommands() []string {
	names := c.engine.Registry().Names()
	return append(names, "help", "exit")
}

// flagValues returns the value set for flags whose argument is
// enumerable from cluster state.
func (c *Completer) flagValues(base, prevWord string) []string {
	if c.ctx == nil || c.ctx.Cluster == nil {
		return nil
	}
	switch prevWord {
	case "-n", "-w", "--nodes", "--nodelist":
		if base == "sinfo" || base == "squeue" || base == "sbatch" || base == "scontrol" {
			return c.ctx.Cluster.Hostnames()
		}
	case "-u", "--unit":
		if base == "journalctl" {
			return tools.ServiceUnits()
		}
	case "-d":
		if base == "lspci" {
			return []string{"10de:", "15b3:"}
		}
	}
	return nil
}

// positionalCandidates covers the per-tool positional vocabularies the
// flag metadata cannot express.
func (c *Completer) positionalCandidates(base string, fields []string) []string {
	switch base {
	case "systemctl":
		if len(fields) >= 2 {
			return tools.ServiceUnits()
		}
	case "scontrol":
		if len(fields) == 2 && (fields[1] == "show" || fields[1] == "update") {
			return []string{"node", "job", "partition", "nodename="}
		}
		if len(fields) >= 3 && fields[1] == "show" && c.ctx != nil && c.ctx.Cluster != nil {
			return c.ctx.Cluster.Hostnames()
		}
	case "ibstat":
		if c.ctx != nil && c.ctx.Cluster != nil && len(c.ctx.Cluster.Nodes) > 0 {
			var names []string
			for _, h := range c.ctx.Cluster.Nodes[0].HCAs {
				names = append(names, h.Device)
			}
			return names
		}
	case "cmsh":
		return tools.CmshModes()
	}
	return nil
}
