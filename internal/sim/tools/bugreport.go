package tools

import (
	"fmt"
	"strings"

	"dgxsim/internal/faults"
	"dgxsim/pkg/simtypes"
)

// bugReportSections is the collection order nvidia-bug-report.sh walks.
var bugReportSections = []string{
	"Gathering system information",
	"Gathering NVIDIA driver information",
	"Gathering GPU state (nvidia-smi -q)",
	"Gathering kernel log (dmesg)",
	"Gathering Xorg and display logs",
	"Gathering NVLink and fabric state",
	"Gathering DCGM diagnostics",
	"Compressing report",
}

// bugReportExtraSections are collected only with --extra-system-data.
var bugReportExtraSections = []string{
	"Gathering lspci verbose output",
	"Gathering dmidecode output",
	"Gathering loaded kernel modules",
}

// BugReportSimulator renders the nvidia-bug-report.sh collection run
// and a findings summary derived from the node's fault state.
type BugReportSimulator struct {
	nonInteractive
}

// NewBugReportSimulator creates a fresh bug report simulator.
func NewBugReportSimulator() *BugReportSimulator {
	return &BugReportSimulator{nonInteractive: nonInteractive{tool: "nvidia-bug-report.sh"}}
}

// Metadata describes nvidia-bug-report.sh for help and completion.
func (s *BugReportSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "nvidia-bug-report.sh",
		Version:     nvidiaSMIVersion,
		Description: "Collects NVIDIA diagnostic data into a report archive",
		Commands: []simtypes.ToolCommand{
			{Flags: []simtypes.ToolFlag{
				{Name: "-o", Description: "Output file name", TakesValue: true},
				{Name: "--output-file", Description: "Output file name", TakesValue: true},
				{Name: "-v", Description: "Verbose collection progress"},
				{Name: "--no-compress", Description: "Skip gzip compression"},
				{Name: "--extra-system-data", Description: "Collect additional system data"},
			}},
		},
	}
}

// Execute runs the collection narrative and appends the findings summary.
func (s *BugReportSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	c, errRes := requireCluster(ctx, "ERROR: NVIDIA driver is not loaded")
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	outFile := cmd.Flag("-o")
	if outFile == "" {
		outFile = cmd.Flag("--output-file")
	}
	if outFile == "" {
		outFile = "nvidia-bug-report.log"
	}
	compressed := !cmd.HasFlag("--no-compress")
	if compressed && !strings.HasSuffix(outFile, ".gz") {
		outFile += ".gz"
	}

	sections := append([]string(nil), bugReportSections...)
	if !compressed {
		sections = sections[:len(sections)-1]
	}
	if cmd.HasFlag("--extra-system-data") {
		merged := make([]string, 0, len(sections)+len(bugReportExtraSections))
		merged = append(merged, sections[0])
		merged = append(merged, bugReportExtraSections...)
		merged = append(merged, sections[1:]...)
		sections = merged
	}

	var b strings.Builder
	b.WriteString("nvidia-bug-report.sh will now collect information about your\n")
	b.WriteString("system and create the file '" + outFile + "' in the current\n")
	b.WriteString("directory.  It may take several seconds to run.\n\n")
	b.WriteString("If the bug report script hangs after this point consider running with\n")
	b.WriteString("the --safe-mode and --extra-system-data command line arguments.\n\n")
	b.WriteString("Running nvidia-bug-report.sh...")

	if cmd.HasFlag("-v") || cmd.HasFlag("--verbose") {
		b.WriteString("\n")
		for i, section := range sections {
			fmt.Fprintf(&b, "\n[%d/%d] %s... done", i+1, len(sections), section)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("\n\n")
		for _, section := range sections {
			b.WriteString("  - " + section + "\n")
		}
		b.WriteString("\ncomplete.\n")
	}

	size := "1432 KB"
	if !compressed {
		size = "18.6 MB"
	}
	fmt.Fprintf(&b, "\nThe file %s (%s) has been created.\n", outFile, size)
	b.WriteString("Please include the log file when reporting problems to NVIDIA.\n\n")
	b.WriteString(findingsSummary(node))
	return textResult(strings.TrimRight(b.String(), "\n"))
}

// findingsSummary condenses the fault state the collected logs would
// contain, so learners see what the report is for without opening it.
func findingsSummary(node *simtypes.DGXNode) string {
	var findings, recommendations []string
	for _, g := range node.GPUs {
		for _, e := range g.XIDErrors {
			findings = append(findings, fmt.Sprintf("GPU %d (%s): Xid %d - %s",
				g.Index, g.PCIAddress, e.Code, xidDescription(e.Code)))
			switch e.Code {
			case 79:
				recommendations = append(recommendations,
					fmt.Sprintf("GPU %d has fallen off the bus; power cycle the node and reseat the GPU if the error persists", g.Index))
			case 48, 63, 64:
				recommendations = append(recommendations,
					fmt.Sprintf("GPU %d reports uncontained memory errors; drain the node and run dcgmi diag -r 3", g.Index))
			case 74:
				recommendations = append(recommendations,
					fmt.Sprintf("GPU %d reports an NVLink error; check fabric manager logs and cable seating", g.Index))
			}
		}
		if status := faults.TemperatureStatus(g.Temperature); status != simtypes.HealthOK {
			findings = append(findings, fmt.Sprintf("GPU %d: temperature %d C (%s)", g.Index, g.Temperature, status))
			recommendations = append(recommendations,
				fmt.Sprintf("GPU %d is running hot; verify chassis fans and inlet temperature", g.Index))
		}
		if status := faults.ECCStatus(g.ECCErrors); status != simtypes.HealthOK {
			findings = append(findings, fmt.Sprintf("GPU %d: ECC errors (aggregate SBE=%d DBE=%d)",
				g.Index, g.ECCErrors.Aggregate.SingleBit, g.ECCErrors.Aggregate.DoubleBit))
			if g.ECCErrors.Aggregate.DoubleBit > 0 {
				recommendations = append(recommendations,
					fmt.Sprintf("GPU %d has double-bit ECC errors; retire the affected pages or replace the GPU", g.Index))
			}
		}
		for _, l := range g.NVLinks {
			if l.Status == simtypes.LinkDown {
				findings = append(findings, fmt.Sprintf("GPU %d: NVLink %d is Down", g.Index, l.LinkID))
			}
		}
	}

	var b strings.Builder
	b.WriteString("Summary of findings:\n")
	if len(findings) == 0 {
		b.WriteString("  No XID errors recorded. All GPUs healthy.\n")
		return b.String()
	}
	for _, f := range findings {
		b.WriteString("  " + f + "\n")
	}
	if len(recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range recommendations {
			b.WriteString("  - " + r + "\n")
		}
	}
	return b.String()
}
