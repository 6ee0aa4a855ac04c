package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dgxsim/internal/faults"
	"dgxsim/pkg/simtypes"
)

// PCIToolsSimulator answers lspci and journalctl from one instance;
// both synthesize their narrative from the same node and fault state,
// which is what keeps a single injected XID identical across the bus
// listing and the kernel log.
type PCIToolsSimulator struct {
	nonInteractive
}

// NewPCIToolsSimulator creates a fresh PCI tools simulator.
func NewPCIToolsSimulator() *PCIToolsSimulator {
	return &PCIToolsSimulator{nonInteractive: nonInteractive{tool: "lspci"}}
}

// Metadata describes the PCI tool family for help and completion.
func (s *PCIToolsSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "pcitools",
		Version:     "3.10.0",
		Description: "PCI bus listing and system journal tools",
		Commands: []simtypes.ToolCommand{
			{Flags: []simtypes.ToolFlag{
				{Name: "-v", Description: "Verbose (subsystem, flags, fault annotations)"},
				{Name: "-vv", Description: "Very verbose (adds link capability/status)"},
				{Name: "-d", Description: "Filter by vendor id, e.g. 10de:", TakesValue: true},
				{Name: "-p", Description: "journalctl: priority filter", TakesValue: true},
				{Name: "-u", Description: "journalctl: unit filter", TakesValue: true},
				{Name: "-n", Description: "journalctl: last N lines", TakesValue: true},
				{Name: "-b", Description: "journalctl: current boot"},
				{Name: "-k", Description: "journalctl: kernel messages only"},
				{Name: "--no-pager", Description: "journalctl: no pager"},
			}},
		},
	}
}

// Execute dispatches by the base command the line was entered under.
func (s *PCIToolsSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	switch cmd.BaseCommand {
	case "lspci":
		return s.lspci(cmd, ctx)
	case "journalctl":
		return s.journalctl(cmd, ctx)
	default:
		return failResult(fmt.Sprintf("Unknown PCI tool: %s", cmd.BaseCommand))
	}
}

// pciDevice is one synthesized bus entry.
type pciDevice struct {
	address   string
	class     string
	vendor    string // pci vendor id
	name      string
	subsystem string
	gpu       *simtypes.GPU // set for GPU functions
}

func busDevices(node *simtypes.DGXNode) []pciDevice {
	devices := []pciDevice{
		{address: "00:00.0", class: "Host bridge", vendor: "8086",
			name: "Intel Corporation Device 09a2 (rev 04)"},
		{address: "00:01.0", class: "PCI bridge", vendor: "8086",
			name: "Intel Corporation Device 09a4 (rev 04)"},
	}
	for _, g := range node.GPUs {
		devices = append(devices, pciDevice{
			address:   shortPCIAddress(g.PCIAddress),
			class:     "3D controller",
			vendor:    "10de",
			name:      "NVIDIA Corporation GH100 [H100 SXM5 80GB] (rev a1)",
			subsystem: "NVIDIA Corporation Device 16c1",
			gpu:       g,
		})
	}
	for i, h := range node.HCAs {
		devices = append(devices, pciDevice{
			address:   fmt.Sprintf("%02x:00.0", 0x0c+i*0x10),
			class:     "Infiniband controller",
			vendor:    "15b3",
			name:      "Mellanox Technologies MT2910 Family [ConnectX-7]",
			subsystem: fmt.Sprintf("Mellanox Technologies Device 0023 (%s)", h.Device),
		})
	}
	return devices
}

// shortPCIAddress renders the bus:device.function form lspci prints.
func shortPCIAddress(full string) string {
	if i := strings.LastIndex(full, ":"); i > 0 && i >= 2 {
		return strings.ToLower(full[i-2:])
	}
	return strings.ToLower(full)
}

func (s *PCIToolsSimulator) lspci(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	c, errRes := requireCluster(ctx, "pcilib: Cannot open /sys/bus/pci/devices: No such file or directory")
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	verbose := 0
	if cmd.HasFlag("-v") {
		verbose = 1
	}
	if cmd.HasFlag("-vv") || cmd.HasFlag("-vvv") {
		verbose = 2
	}

	vendorFilter := strings.TrimSuffix(cmd.Flag("-d"), ":")

	var b strings.Builder
	for _, d := range busDevices(node) {
		if vendorFilter != "" && d.vendor != vendorFilter {
			continue
		}
		fmt.Fprintf(&b, "%s %s: %s\n", d.address, d.class, d.name)
		if verbose == 0 {
			continue
		}
		if d.subsystem != "" {
			fmt.Fprintf(&b, "\tSubsystem: %s\n", d.subsystem)
		}
		fmt.Fprintf(&b, "\tFlags: bus master, fast devsel, latency 0\n")
		if d.gpu != nil {
			// Fault annotations appear only in verbose mode.
			for _, e := range d.gpu.XIDErrors {
				fmt.Fprintf(&b, "\tDevice is in error state (XID %d: %s)\n", e.Code, xidDescription(e.Code))
			}
			if d.gpu.ThermalEvent || faults.TemperatureStatus(d.gpu.Temperature) != simtypes.HealthOK {
				fmt.Fprintf(&b, "\tThermal throttling active\n")
			}
		}
		if verbose >= 2 {
			fmt.Fprintf(&b, "\tLnkCap: Port #0, Speed 32GT/s, Width x16\n")
			status := "Speed 32GT/s, Width x16"
			if d.gpu != nil && faults.XIDStatus(d.gpu.XIDErrors) == simtypes.HealthCritical {
				status = "Speed 2.5GT/s (downgraded), Width x1 (downgraded)"
			}
			fmt.Fprintf(&b, "\tLnkSta: %s\n", status)
		}
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return failResult(fmt.Sprintf("lspci: -d: no devices match vendor %s", vendorFilter))
	}
	return textResult(out)
}

// journalEntry is one synthesized log line.
type journalEntry struct {
	at       time.Time
	priority int // syslog: 2 crit, 3 err, 4 warning, 6 info
	unit     string
	process  string
	message  string
}

// journalPriorities maps journalctl -p arguments to numeric levels.
var journalPriorities = map[string]int{
	"emerg": 0, "alert": 1, "crit": 2, "err": 3, "error": 3,
	"warning": 4, "warn": 4, "notice": 5, "info": 6, "debug": 7,
}

func (s *PCIToolsSimulator) journalctl(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	c, errRes := requireCluster(ctx, "No journal files were found.")
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	entries := buildJournal(c, node)

	if maxPrio, ok := parsePriority(cmd.Flag("-p")); ok {
		var kept []journalEntry
		for _, e := range entries {
			if e.priority <= maxPrio {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if unit := cmd.Flag("-u"); unit != "" {
		var kept []journalEntry
		for _, e := range entries {
			if e.unit == unit || e.unit == unit+".service" {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if cmd.HasFlag("-k") {
		var kept []journalEntry
		for _, e := range entries {
			if e.process == "kernel" {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if n, err := strconv.Atoi(cmd.Flag("-n")); err == nil && n > 0 && n < len(entries) {
		entries = entries[len(entries)-n:]
	}

	if len(entries) == 0 {
		return textResult("-- No entries --")
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf("-- Logs begin at %s --", entries[0].at.Format("Mon 2006-01-02 15:04:05 MST")))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s %s: %s",
			e.at.Format("Jan 02 15:04:05"), node.Hostname, e.process, e.message))
	}
	return textResult(strings.Join(lines, "\n"))
}

func parsePriority(arg string) (int, bool) {
	if arg == "" {
		return 0, false
	}
	if level, ok := journalPriorities[strings.ToLower(arg)]; ok {
		return level, true
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 0 && n <= 7 {
		return n, true
	}
	return 0, false
}

// buildJournal synthesizes the boot-ordered log stream: boot and
// service start lines, then one cluster of lines per injected fault,
// all timed against the cluster's reference clock.
func buildJournal(c *simtypes.ClusterConfig, node *simtypes.DGXNode) []journalEntry {
	boot := c.BootTime
	entries := []journalEntry{
		{boot, 6, "kernel", "kernel", "Linux version 5.15.0-1053-nvidia (buildd@dgx) (gcc 11.4.0)"},
		{boot.Add(2 * time.Second), 6, "kernel", "kernel", fmt.Sprintf("NVRM: loading NVIDIA UNIX x86_64 Kernel Module  %s", node.DriverVersion)},
		{boot.Add(8 * time.Second), 6, "nvidia-dcgm.service", "nv-hostengine", "DCGM initialized"},
		{boot.Add(9 * time.Second), 6, "nvidia-fabricmanager.service", "nv-fabricmanager", "Successfully configured all the available GPUs and NVSwitches"},
		{boot.Add(12 * time.Second), 6, "slurmd.service", "slurmd", fmt.Sprintf("slurmd version 23.11.4 started on %s", node.Hostname)},
	}

	for _, g := range node.GPUs {
		pci := "PCI:0000:" + shortPCIAddress(g.PCIAddress)
		for i, e := range g.XIDErrors {
			info := faults.Info(e.Code)
			prio := 4
			if info.Severity == simtypes.SeverityCritical {
				prio = 3
			}
			at := e.Timestamp
			if at.IsZero() {
				at = boot.Add(time.Duration(17+13*i) * time.Minute)
			}
			entries = append(entries, journalEntry{
				at, prio, "kernel", "kernel",
				fmt.Sprintf("NVRM: Xid (%s): %d, pid=%d, Ch %08x, %s", pci, e.Code, 8792+g.Index, 8+i, info.Description),
			})
			for j, line := range faults.FollowUps(e.Code, pci) {
				entries = append(entries, journalEntry{
					at.Add(time.Duration(j+1) * time.Second), prio, "kernel", "kernel", line,
				})
			}
		}
		if tmp := faults.TemperatureStatus(g.Temperature); tmp != simtypes.HealthOK {
			prio := 4
			if tmp == simtypes.HealthCritical {
				prio = 2
			}
			entries = append(entries, journalEntry{
				boot.Add(21 * time.Minute), prio, "kernel", "kernel",
				fmt.Sprintf("NVRM: GPU %d: temperature %d C exceeds threshold, clocks throttled", g.Index, g.Temperature),
			})
		}
		if g.ECCErrors.Aggregate.DoubleBit > 0 {
			entries = append(entries, journalEntry{
				boot.Add(25 * time.Minute), 3, "kernel", "kernel",
				fmt.Sprintf("NVRM: GPU %d: double-bit ECC error detected, %d aggregate errors recorded", g.Index, g.ECCErrors.Aggregate.DoubleBit),
			})
		}
		for _, l := range g.NVLinks {
			if l.Status == simtypes.LinkDown {
				entries = append(entries, journalEntry{
					boot.Add(27 * time.Minute), 3, "nvidia-fabricmanager.service", "nv-fabricmanager",
					fmt.Sprintf("NVLink link %d on GPU %d is down", l.LinkID, g.Index),
				})
			}
		}
	}
	for _, h := range node.HCAs {
		if h.State != "Active" {
			entries = append(entries, journalEntry{
				boot.Add(29 * time.Minute), 3, "kernel", "kernel",
				fmt.Sprintf("mlx5_core %s: Port 1 link down", h.Device),
			})
		}
	}
	return entries
}
