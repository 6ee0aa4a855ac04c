package sim

import (
	"fmt"
	"strings"

	"dgxsim/internal/logger"
	"dgxsim/internal/parser"
	"dgxsim/pkg/simtypes"
)

// ToolUsedFunc is the observer the learning layer registers to record
// "tool used" events. It receives the resolved base command only.
type ToolUsedFunc func(baseCommand string)

// Engine ties the parser, the registry, and the active interactive
// session together. One engine serves one terminal session; execution
// is strictly sequential, so no locking happens here.
type Engine struct {
	registry *Registry
	parser   *parser.Parser
	active   simtypes.Simulator // non-nil while a sub-session is open
	onTool   ToolUsedFunc
}

// NewEngine builds an engine over a populated registry and feeds each
// simulator's metadata into the parser schemas.
func NewEngine(registry *Registry) *Engine {
	p := parser.New()
	for _, name := range registry.Names() {
		s, _ := registry.Get(name)
		meta := s.Metadata()
		var subs, boolFlags []string
		for _, c := range meta.Commands {
			if c.Name != "" {
				subs = append(subs, c.Name)
			}
			for _, f := range c.Flags {
				if !f.TakesValue {
					boolFlags = append(boolFlags, f.Name)
				}
			}
		}
		p.RegisterTool(name, subs, boolFlags)
	}
	return &Engine{registry: registry, parser: p}
}

// OnToolUsed registers the tool-usage observer.
func (e *Engine) OnToolUsed(fn ToolUsedFunc) {
	e.onTool = fn
}

// Parser exposes the schema-aware parser, mainly for the completion
// engine and tests.
func (e *Engine) Parser() *parser.Parser {
	return e.parser
}

// Registry exposes the registry for completion and help.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// InteractiveActive reports whether a sub-session is currently open.
func (e *Engine) InteractiveActive() bool {
	return e.active != nil
}

// Active returns the simulator holding the open sub-session, or nil.
func (e *Engine) Active() simtypes.Simulator {
	return e.active
}

// Run executes one entered line. While an interactive sub-session is
// open the line goes to that simulator's ExecuteInteractive; otherwise
// the line is parsed and dispatched through the registry. The terminal
// collaborator appends to ctx.History; the engine does not.
func (e *Engine) Run(line string, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	if e.active != nil {
		result := e.active.ExecuteInteractive(line, ctx)
		if !result.Interactive {
			e.active = nil
		}
		return result
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return &simtypes.CommandResult{ExitCode: 0}
	}

	cmd := e.parser.Parse(trimmed)
	logger.ToolDispatch(cmd.BaseCommand, trimmed)

	s, ok := e.registry.Get(cmd.BaseCommand)
	if !ok {
		return e.notFound(cmd.BaseCommand)
	}

	if e.onTool != nil {
		e.onTool(cmd.BaseCommand)
	}

	result := s.Execute(cmd, ctx)
	if result.Interactive {
		e.active = s
	}
	return result
}

func (e *Engine) notFound(name string) *simtypes.CommandResult {
	msg := fmt.Sprintf("%s: command not found", name)
	if suggestion := e.registry.Suggest(name); suggestion != "" {
		msg += fmt.Sprintf("\nDid you mean '%s'?", suggestion)
	}
	return &simtypes.CommandResult{Output: msg, ExitCode: 1}
}
