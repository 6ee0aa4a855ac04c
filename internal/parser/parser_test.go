package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	p := New()
	p.RegisterTool("dcgmi", []string{"discovery", "health", "diag", "stats", "group"}, []string{"-l", "-v"})
	p.RegisterTool("nvidia-smi", []string{"topo"}, []string{"-L", "-q", "-m"})
	p.RegisterTool("sinfo", nil, []string{"-N", "-l", "-s"})
	p.RegisterTool("scontrol", []string{"show", "update"}, nil)
	return p
}

func TestParseBasicCommand(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		base       string
		subcommand string
		positional []string
	}{
		{
			name:  "bare command",
			input: "nvidia-smi",
			base:  "nvidia-smi",
		},
		{
			name:       "known subcommand is promoted",
			input:      "dcgmi discovery -l",
			base:       "dcgmi",
			subcommand: "discovery",
		},
		{
			name:       "unknown second token stays positional",
			input:      "dcgmi bogus",
			base:       "dcgmi",
			positional: []string{"bogus"},
		},
		{
			name:       "scontrol show node",
			input:      "scontrol show node dgx-node01",
			base:       "scontrol",
			subcommand: "show",
			positional: []string{"node", "dgx-node01"},
		},
	}
	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := p.Parse(tt.input)
			assert.Equal(t, tt.base, cmd.BaseCommand)
			assert.Equal(t, tt.subcommand, cmd.Subcommand)
			assert.Equal(t, tt.positional, cmd.PositionalArgs)
			assert.Equal(t, tt.input, cmd.Raw)
		})
	}
}

func TestParseFlags(t *testing.T) {
	p := newTestParser()

	t.Run("bool flag does not consume a value", func(t *testing.T) {
		cmd := p.Parse("sinfo -N nodes")
		assert.True(t, cmd.BoolFlags["-N"])
		assert.Equal(t, []string{"nodes"}, cmd.PositionalArgs)
	})

	t.Run("value flag consumes next token", func(t *testing.T) {
		cmd := p.Parse("sinfo -p batch")
		assert.Equal(t, "batch", cmd.Flags["-p"])
		assert.Empty(t, cmd.PositionalArgs)
	})

	t.Run("equals form splits on first equals", func(t *testing.T) {
		cmd := p.Parse("nvidia-smi --query-gpu=temperature.gpu --format=csv,noheader")
		assert.Equal(t, "temperature.gpu", cmd.Flags["--query-gpu"])
		assert.Equal(t, "csv,noheader", cmd.Flags["--format"])
	})

	t.Run("trailing value flag becomes bool", func(t *testing.T) {
		cmd := p.Parse("sinfo -p")
		assert.True(t, cmd.BoolFlags["-p"])
	})

	t.Run("undeclared flags use the greedy value rule", func(t *testing.T) {
		cmd := p.Parse("unknowntool -x value -y")
		assert.Equal(t, "value", cmd.Flags["-x"])
		assert.True(t, cmd.BoolFlags["-y"])
	})
}

func TestParseQuoting(t *testing.T) {
	p := newTestParser()

	t.Run("quoted value with spaces binds to flag", func(t *testing.T) {
		cmd := p.Parse(`sinfo -o "%n %G %t"`)
		assert.Equal(t, "%n %G %t", cmd.Flags["-o"])
	})

	t.Run("single quotes behave like double quotes", func(t *testing.T) {
		cmd := p.Parse(`scontrol update nodename=dgx-node02 state=drain reason='bad gpu'`)
		require.Equal(t, "update", cmd.Subcommand)
		assert.Contains(t, cmd.PositionalArgs, "nodename=dgx-node02")
		assert.Contains(t, cmd.PositionalArgs, "reason=bad gpu")
	})

	t.Run("quoted dash token is never a flag", func(t *testing.T) {
		cmd := p.Parse(`echo "-not-a-flag"`)
		assert.Equal(t, []string{"-not-a-flag"}, cmd.PositionalArgs)
		assert.Empty(t, cmd.BoolFlags)
	})

	t.Run("quoted second token is never a subcommand", func(t *testing.T) {
		cmd := p.Parse(`dcgmi "discovery"`)
		assert.Empty(t, cmd.Subcommand)
		assert.Equal(t, []string{"discovery"}, cmd.PositionalArgs)
	})

	t.Run("unterminated quote consumes the rest", func(t *testing.T) {
		cmd := p.Parse(`sinfo -o "%n %G`)
		assert.Equal(t, "%n %G", cmd.Flags["-o"])
	})
}

func TestParseEmptyInput(t *testing.T) {
	p := newTestParser()
	for _, input := range []string{"", "   ", "\t"} {
		cmd := p.Parse(input)
		require.NotNil(t, cmd)
		assert.Empty(t, cmd.BaseCommand)
		assert.Empty(t, cmd.PositionalArgs)
	}
}

func TestFlagLookupTwinSpelling(t *testing.T) {
	p := newTestParser()

	cmd := p.Parse("somecmd --verbose -o out.log")
	assert.True(t, cmd.HasFlag("-verbose"), "double-dash flag found via single-dash lookup")
	assert.Equal(t, "out.log", cmd.Flag("--o"), "single-dash flag found via double-dash lookup")
	assert.Equal(t, "", cmd.Flag("--missing"))
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain words", "a b c", []string{"a", "b", "c"}},
		{"collapsed whitespace", "a   b\t c", []string{"a", "b", "c"}},
		{"quoted group", `a "b c" d`, []string{"a", "b c", "d"}},
		{"empty quoted token", `a "" b`, []string{"a", "", "b"}},
		{"mid-token quote", `--reason="maintenance window"`, []string{"--reason=maintenance window"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fields(tt.input))
		})
	}
}
