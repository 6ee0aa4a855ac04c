// Package parser turns a raw terminal line into a ParsedCommand:
// base command, optional subcommand, flags, and positional arguments,
// with shell-like quote handling. Parsing never fails; malformed or
// empty input degrades to a zero-value command that simulators handle
// as a normal error case.
package parser

import (
	"strings"

	"dgxsim/pkg/simtypes"
)

// Parser tokenizes lines against per-tool schemas. Tools register
// their known subcommands (second token promotion) and their
// value-less flags (so `lspci -v somearg` keeps somearg positional).
type Parser struct {
	subcommands map[string]map[string]bool
	boolFlags   map[string]map[string]bool
}

// New creates an empty Parser. Without registered schemas it still
// tokenizes correctly; every flag then follows the greedy value rule.
func New() *Parser {
	return &Parser{
		subcommands: make(map[string]map[string]bool),
		boolFlags:   make(map[string]map[string]bool),
	}
}

// RegisterTool declares a tool's subcommands and value-less flags.
// Called by the engine from simulator metadata at startup.
func (p *Parser) RegisterTool(base string, subcommands []string, boolFlags []string) {
	subs := make(map[string]bool, len(subcommands))
	for _, s := range subcommands {
		subs[s] = true
	}
	p.subcommands[base] = subs

	bools := make(map[string]bool, len(boolFlags))
	for _, f := range boolFlags {
		bools[f] = true
	}
	p.boolFlags[base] = bools
}

// Parse converts a line into a ParsedCommand. It never returns an
// error: empty input parses to a command with an empty BaseCommand.
func (p *Parser) Parse(line string) *simtypes.ParsedCommand {
	cmd := &simtypes.ParsedCommand{
		Flags:     make(map[string]string),
		BoolFlags: make(map[string]bool),
		Raw:       line,
	}

	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return cmd
	}

	cmd.BaseCommand = tokens[0].text
	rest := tokens[1:]

	if len(rest) > 0 && !rest[0].quoted && p.subcommands[cmd.BaseCommand][rest[0].text] {
		cmd.Subcommand = rest[0].text
		rest = rest[1:]
	}

	bools := p.boolFlags[cmd.BaseCommand]
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if !isFlagToken(tok) {
			cmd.PositionalArgs = append(cmd.PositionalArgs, tok.text)
			continue
		}
		name := tok.text
		if eq := strings.Index(name, "="); eq >= 0 {
			cmd.Flags[name[:eq]] = name[eq+1:]
			continue
		}
		if bools[name] {
			cmd.BoolFlags[name] = true
			continue
		}
		if i+1 < len(rest) && !isFlagToken(rest[i+1]) {
			cmd.Flags[name] = rest[i+1].text
			i++
			continue
		}
		cmd.BoolFlags[name] = true
	}

	return cmd
}

type token struct {
	text   string
	quoted bool
}

func isFlagToken(t token) bool {
	return !t.quoted && len(t.text) > 1 && t.text[0] == '-'
}

// Tokenize splits a line on whitespace outside single/double quotes.
// Quotes are stripped from the resulting token; embedded spaces are
// preserved. An unterminated quote consumes the rest of the line.
func Tokenize(line string) []token {
	var tokens []token
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	started := false
	quoted := false

	flush := func() {
		if started {
			tokens = append(tokens, token{text: current.String(), quoted: quoted})
			current.Reset()
			started = false
			quoted = false
		}
	}

	for _, c := range line {
		switch {
		case !inQuotes && (c == '"' || c == '\''):
			inQuotes = true
			quoteChar = c
			started = true
			quoted = true
		case inQuotes && c == quoteChar:
			inQuotes = false
			quoteChar = 0
		case !inQuotes && (c == ' ' || c == '\t'):
			flush()
		default:
			current.WriteRune(c)
			started = true
		}
	}
	flush()

	return tokens
}

// Fields returns only the token texts of a line, for callers that
// just need whitespace-and-quote splitting (the interactive engines).
func Fields(line string) []string {
	tokens := Tokenize(line)
	fields := make([]string, len(tokens))
	for i, t := range tokens {
		fields[i] = t.text
	}
	return fields
}
