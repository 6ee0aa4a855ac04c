// Package format provides the shared text-formatting utilities every
// simulator renders through: pipe-delimited tables, fixed-width
// dot-leader report lines, ANSI-safe width computation, and the
// capitalized-key JSON used by structured list output.
//
// Keeping these in one place is what lets independent tools agree
// byte-for-byte on how the same cluster state looks.
package format

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// HealthReportWidth is the visible width every dot-leader health line
// is padded to, ANSI escapes excluded.
const HealthReportWidth = 70

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// VisibleWidth returns the display width of a string with ANSI escape
// sequences excluded from the count.
func VisibleWidth(s string) int {
	return ansi.StringWidth(s)
}

// Table renders a pipe-delimited table with a header row and aligned
// columns. There are deliberately no box-drawing or markdown separator
// rows; "+--" style rulers never appear in simulator output.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = VisibleWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && VisibleWidth(cell) > widths[i] {
				widths[i] = VisibleWidth(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString(" | ")
			}
			if i == len(cells)-1 {
				b.WriteString(cell)
			} else {
				b.WriteString(pad(cell, widths[i]))
			}
		}
		b.WriteString("\n")
	}
	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

// pad right-pads a cell to the target visible width, leaving any ANSI
// escapes intact.
func pad(s string, width int) string {
	gap := width - VisibleWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// DotLeader renders "description....status" padded to exactly width
// visible characters. Descriptions that nearly fill the width still
// get at least one dot; the line then exceeds width rather than losing
// the leader.
func DotLeader(description, status string, width int) string {
	dots := width - VisibleWidth(description) - VisibleWidth(status)
	if dots < 1 {
		dots = 1
	}
	return description + strings.Repeat(".", dots) + status
}

// KeyValue renders an aligned "key : value" block, the layout used by
// scontrol-style and cmsh get output.
func KeyValue(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, "%-*s : %s\n", width, p[0], p[1])
	}
	return strings.TrimRight(b.String(), "\n")
}
