// Package shell provides the interactive terminal loop and script
// runner. It wires the dispatch engine, the completion engine, and the
// line editor together and owns the session's command context.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/muesli/termenv"

	"dgxsim/internal/cluster"
	"dgxsim/internal/completion"
	"dgxsim/internal/format"
	"dgxsim/internal/logger"
	"dgxsim/internal/sim"
	"dgxsim/internal/sim/tools"
	"dgxsim/pkg/simtypes"
)

// Terminal is one learner-facing session over a cluster store.
type Terminal struct {
	engine    *sim.Engine
	store     *cluster.Store
	ctx       *simtypes.CommandContext
	completer *completion.Completer
	toolUses  map[string]int
	color     bool
}

// New builds a terminal session: fresh registry, fresh simulators,
// engine, and completer over the given store.
func New(store *cluster.Store) (*Terminal, error) {
	registry := sim.NewRegistry()
	if err := tools.RegisterAll(registry, store); err != nil {
		return nil, fmt.Errorf("failed to register simulators: %w", err)
	}

	c := store.Cluster()
	ctx := &simtypes.CommandContext{
		CurrentNode: c.Nodes[0].Hostname,
		Environment: map[string]string{"USER": "root"},
		Cluster:     c,
	}

	t := &Terminal{
		engine:   sim.NewEngine(registry),
		store:    store,
		ctx:      ctx,
		toolUses: map[string]int{},
		color:    termenv.ColorProfile() != termenv.Ascii,
	}
	t.completer = completion.New(t.engine, ctx)
	trace := logger.NewStyledLogger("shell")
	t.engine.OnToolUsed(func(base string) {
		t.toolUses[base]++
		trace.Debug("Tool used", "tool", base, "count", t.toolUses[base])
	})
	return t, nil
}

// Engine exposes the dispatch engine, mainly for tests.
func (t *Terminal) Engine() *sim.Engine {
	return t.engine
}

// ToolUses returns how often each base command has been run this
// session. The learning layer polls this for tier progression.
func (t *Terminal) ToolUses() map[string]int {
	out := make(map[string]int, len(t.toolUses))
	for k, v := range t.toolUses {
		out[k] = v
	}
	return out
}

// hostPrompt renders the outer shell prompt for the current node.
func (t *Terminal) hostPrompt() string {
	return fmt.Sprintf("[root@%s ~]# ", t.ctx.CurrentNode)
}

// Run drives the interactive loop until EOF or an exit command.
func (t *Terminal) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          t.hostPrompt(),
		AutoComplete:    t.completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize line editor: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}

		trimmed := strings.TrimSpace(line)
		if !t.engine.InteractiveActive() && (trimmed == "exit" || trimmed == "quit") {
			return nil
		}

		t.ctx.History = append(t.ctx.History, line)
		result := t.engine.Run(line, t.ctx)
		t.print(rl.Stdout(), result)

		if result.Interactive {
			rl.SetPrompt(result.Prompt)
		} else {
			rl.SetPrompt(t.hostPrompt())
		}
	}
}

// RunScript executes newline-separated commands from a reader, in
// order, printing each result to w. Blank lines and '#' comments are
// skipped outside interactive sessions.
func (t *Terminal) RunScript(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if !t.engine.InteractiveActive() && (trimmed == "" || strings.HasPrefix(trimmed, "#")) {
			continue
		}
		t.ctx.History = append(t.ctx.History, line)
		result := t.engine.Run(line, t.ctx)
		t.print(w, result)
	}
	return nil
}

func (t *Terminal) print(w io.Writer, result *simtypes.CommandResult) {
	if result.Output == "" {
		return
	}
	output := result.Output
	if !t.color {
		output = format.StripANSI(output)
	}
	fmt.Fprintln(w, output)
}

// LoadStore builds the cluster store from a topology file or the
// default synthetic cluster.
func LoadStore(topologyPath string, nodeCount int) (*cluster.Store, error) {
	if topologyPath != "" {
		c, err := cluster.LoadTopology(topologyPath)
		if err != nil {
			return nil, err
		}
		return cluster.NewStore(c), nil
	}
	return cluster.NewStore(cluster.NewDefaultCluster(nodeCount)), nil
}

// Env returns an environment value, preferring the session context
// over the process environment.
func (t *Terminal) Env(key string) string {
	if v, ok := t.ctx.Environment[key]; ok {
		return v
	}
	return os.Getenv(key)
}
