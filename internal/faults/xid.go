// Package faults holds the single canonical fault vocabulary shared by
// every simulator: the XID code table, the severity thresholds, and
// the kernel-log follow-up lines. Tools must never carry their own
// copy of any of these; cross-tool agreement on an injected fault is a
// hard invariant of the engine.
package faults

import (
	"fmt"
	"sort"

	"dgxsim/pkg/simtypes"
)

// XIDInfo is the canonical description and severity of one XID code.
type XIDInfo struct {
	Description string
	Severity    simtypes.Severity
}

// xidTable is the one table of truth for XID codes. Every simulator
// that mentions an XID resolves it here.
var xidTable = map[int]XIDInfo{
	8:   {"GPU stopped processing", simtypes.SeverityWarning},
	13:  {"Graphics Engine Exception", simtypes.SeverityWarning},
	31:  {"GPU memory page fault", simtypes.SeverityWarning},
	32:  {"Invalid or corrupted push buffer stream", simtypes.SeverityWarning},
	43:  {"GPU stopped processing", simtypes.SeverityWarning},
	45:  {"Preemptive cleanup, due to previous errors", simtypes.SeverityWarning},
	48:  {"Double Bit ECC Error", simtypes.SeverityCritical},
	61:  {"Internal micro-controller breakpoint/warning", simtypes.SeverityWarning},
	62:  {"Internal micro-controller halt", simtypes.SeverityCritical},
	63:  {"ECC page retirement or row remapping recording event", simtypes.SeverityWarning},
	64:  {"ECC page retirement or row remapper recording failure", simtypes.SeverityCritical},
	74:  {"NVLink Error", simtypes.SeverityCritical},
	79:  {"GPU has fallen off the bus", simtypes.SeverityCritical},
	92:  {"High single-bit ECC error rate", simtypes.SeverityWarning},
	94:  {"Contained ECC error", simtypes.SeverityWarning},
	95:  {"Uncontained ECC error", simtypes.SeverityCritical},
	119: {"GSP RPC timeout", simtypes.SeverityCritical},
	120: {"GSP error", simtypes.SeverityCritical},
}

// followUps are the extra kernel-log lines the driver emits after
// certain XID codes, rendered by journalctl and the bug report.
var followUps = map[int][]string{
	8:  {"NVRM: GPU at PCI:%s: GPU is lost. Reboot the system to recover this GPU"},
	43: {"NVRM: Robust Channel Preemptive Removal"},
	48: {"NVRM: A double bit error has occurred. The GPU memory is unreliable"},
	63: {"NVRM: Row remapping event recorded, pending remap on next reset"},
	74: {"NVRM: NVLink: fatal error detected on link, link has been disabled"},
	79: {
		"NVRM: GPU %s: GPU has fallen off the bus.",
		"NVRM: GPU %s: GPU serial number is unavailable",
		"NVRM: A GPU crash dump has been created",
	},
}

// Info resolves an XID code to its canonical description and severity.
// Unknown codes resolve to a generic warning so injected experimental
// codes still render consistently everywhere.
func Info(code int) XIDInfo {
	if info, ok := xidTable[code]; ok {
		return info
	}
	return XIDInfo{Description: fmt.Sprintf("Unknown Error (Xid %d)", code), Severity: simtypes.SeverityWarning}
}

// FollowUps returns the kernel-log follow-up lines for a code, with
// %s placeholders for the GPU's PCI address already substituted.
func FollowUps(code int, pciAddr string) []string {
	tmpl, ok := followUps[code]
	if !ok {
		return nil
	}
	lines := make([]string, len(tmpl))
	for i, t := range tmpl {
		lines[i] = sprintfIfNeeded(t, pciAddr)
	}
	return lines
}

func sprintfIfNeeded(tmpl, arg string) string {
	for i := 0; i+1 < len(tmpl); i++ {
		if tmpl[i] == '%' && tmpl[i+1] == 's' {
			return fmt.Sprintf(tmpl, arg)
		}
	}
	return tmpl
}

// KnownCodes returns every code in the table, ascending. Used by help
// output and tests.
func KnownCodes() []int {
	codes := make([]int, 0, len(xidTable))
	for c := range xidTable {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}
