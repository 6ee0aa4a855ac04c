package tools

import (
	"fmt"
	"strconv"
	"strings"

	"dgxsim/internal/format"
	"dgxsim/pkg/simtypes"
)

const nvidiaSMIVersion = "550.54.15"

const noDriverMsg = "NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver. " +
	"Make sure that the latest NVIDIA driver is installed and running."

// NvidiaSMISimulator renders nvidia-smi output for the node the
// session is logged into.
type NvidiaSMISimulator struct {
	nonInteractive
}

// NewNvidiaSMISimulator creates a fresh nvidia-smi simulator.
func NewNvidiaSMISimulator() *NvidiaSMISimulator {
	return &NvidiaSMISimulator{nonInteractive: nonInteractive{tool: "nvidia-smi"}}
}

// Metadata describes nvidia-smi for help and completion.
func (s *NvidiaSMISimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "nvidia-smi",
		Version:     nvidiaSMIVersion,
		Description: "NVIDIA System Management Interface",
		Commands: []simtypes.ToolCommand{
			{Name: "topo", Description: "Display GPU topology", Flags: []simtypes.ToolFlag{
				{Name: "-m", Description: "Show connection matrix"},
			}},
			{Flags: []simtypes.ToolFlag{
				{Name: "-L", Description: "List GPUs"},
				{Name: "-q", Description: "Detailed query"},
				{Name: "-i", Description: "Target GPU index", TakesValue: true},
				{Name: "-d", Description: "Query section (ECC, TEMPERATURE, XID)", TakesValue: true},
				{Name: "--query-gpu", Description: "Comma-separated fields", TakesValue: true},
				{Name: "--format", Description: "Output format (csv[,noheader])", TakesValue: true},
			}},
		},
	}
}

// Execute dispatches one nvidia-smi invocation.
func (s *NvidiaSMISimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	if cmd.HasFlag("--help") || cmd.HasFlag("-h") {
		return textResult(s.helpText())
	}
	if cmd.HasFlag("--version") {
		return textResult(fmt.Sprintf("NVIDIA-SMI version  : %s\nDRIVER version      : %s\nCUDA Version        : 12.4", nvidiaSMIVersion, nvidiaSMIVersion))
	}

	c, errRes := requireCluster(ctx, noDriverMsg)
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	gpus, errRes := s.selectGPUs(cmd, node)
	if errRes != nil {
		return errRes
	}

	switch {
	case cmd.Subcommand == "topo":
		return s.topoMatrix(node)
	case cmd.HasFlag("-L"):
		return s.listGPUs(gpus)
	case cmd.Flag("--query-gpu") != "":
		return s.queryGPU(cmd, gpus)
	case cmd.HasFlag("-q"):
		return s.detailedQuery(cmd, node, gpus)
	default:
		return s.summary(node, gpus)
	}
}

func (s *NvidiaSMISimulator) selectGPUs(cmd *simtypes.ParsedCommand, node *simtypes.DGXNode) ([]*simtypes.GPU, *simtypes.CommandResult) {
	idxStr := cmd.Flag("-i")
	if idxStr == "" {
		idxStr = cmd.Flag("--id")
	}
	if idxStr == "" {
		return node.GPUs, nil
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 || idx >= len(node.GPUs) {
		return nil, failResult(fmt.Sprintf("No devices were found matching the specified ID \"%s\".", idxStr))
	}
	return []*simtypes.GPU{node.GPUs[idx]}, nil
}

func (s *NvidiaSMISimulator) summary(node *simtypes.DGXNode, gpus []*simtypes.GPU) *simtypes.CommandResult {
	var b strings.Builder
	fmt.Fprintf(&b, "NVIDIA-SMI %s    Driver Version: %s    CUDA Version: %s\n\n",
		nvidiaSMIVersion, node.DriverVersion, node.CUDAVersion)

	headers := []string{"GPU", "Name", "Temp", "Pwr:Usage/Cap", "Memory-Usage", "GPU-Util", "Uncorr. ECC"}
	var rows [][]string
	for _, g := range gpus {
		rows = append(rows, []string{
			strconv.Itoa(g.Index),
			g.Model,
			fmt.Sprintf("%dC", g.Temperature),
			fmt.Sprintf("%.0fW / %.0fW", g.PowerDrawW, g.PowerLimitW),
			fmt.Sprintf("%dMiB / %dMiB", g.MemoryUsedMiB, g.MemoryTotalMiB),
			fmt.Sprintf("%d%%", g.UtilizationPct),
			strconv.Itoa(g.ECCErrors.Aggregate.DoubleBit),
		})
	}
	b.WriteString(format.Table(headers, rows))
	b.WriteString("\n\nProcesses:\nNo running processes found")
	return textResult(b.String())
}

func (s *NvidiaSMISimulator) listGPUs(gpus []*simtypes.GPU) *simtypes.CommandResult {
	var lines []string
	for _, g := range gpus {
		lines = append(lines, fmt.Sprintf("GPU %d: %s (UUID: %s)", g.Index, g.Model, g.UUID))
	}
	return textResult(strings.Join(lines, "\n"))
}

func (s *NvidiaSMISimulator) detailedQuery(cmd *simtypes.ParsedCommand, node *simtypes.DGXNode, gpus []*simtypes.GPU) *simtypes.CommandResult {
	section := strings.ToUpper(cmd.Flag("-d"))

	var b strings.Builder
	fmt.Fprintf(&b, "==============NVSMI LOG==============\n\n")
	fmt.Fprintf(&b, "Driver Version                            : %s\n", node.DriverVersion)
	fmt.Fprintf(&b, "CUDA Version                              : %s\n", node.CUDAVersion)
	fmt.Fprintf(&b, "Attached GPUs                             : %d\n", len(node.GPUs))

	for _, g := range gpus {
		fmt.Fprintf(&b, "\nGPU %s\n", g.PCIAddress)
		switch section {
		case "ECC":
			s.writeECC(&b, g)
		case "TEMPERATURE":
			s.writeTemperature(&b, g)
		case "XID":
			s.writeXIDs(&b, g)
		default:
			fmt.Fprintf(&b, "    Product Name                          : %s\n", g.Model)
			fmt.Fprintf(&b, "    GPU UUID                              : %s\n", g.UUID)
			fmt.Fprintf(&b, "    Serial Number                         : %s\n", node.SerialNumber)
			fmt.Fprintf(&b, "    Utilization                           : %d %%\n", g.UtilizationPct)
			fmt.Fprintf(&b, "    FB Memory Usage\n")
			fmt.Fprintf(&b, "        Total                             : %d MiB\n", g.MemoryTotalMiB)
			fmt.Fprintf(&b, "        Used                              : %d MiB\n", g.MemoryUsedMiB)
			s.writeTemperature(&b, g)
			fmt.Fprintf(&b, "    Power Readings\n")
			fmt.Fprintf(&b, "        Power Draw                        : %.2f W\n", g.PowerDrawW)
			fmt.Fprintf(&b, "        Power Limit                       : %.2f W\n", g.PowerLimitW)
			s.writeECC(&b, g)
		}
	}
	return textResult(strings.TrimRight(b.String(), "\n"))
}

func (s *NvidiaSMISimulator) writeTemperature(b *strings.Builder, g *simtypes.GPU) {
	fmt.Fprintf(b, "    Temperature\n")
	fmt.Fprintf(b, "        GPU Current Temp                  : %d C\n", g.Temperature)
	fmt.Fprintf(b, "        GPU Shutdown Temp                 : 95 C\n")
	fmt.Fprintf(b, "        GPU Slowdown Temp                 : 90 C\n")
	if g.ThermalEvent {
		fmt.Fprintf(b, "        Thermal Throttling                : Active\n")
	}
}

func (s *NvidiaSMISimulator) writeECC(b *strings.Builder, g *simtypes.GPU) {
	fmt.Fprintf(b, "    ECC Errors\n")
	fmt.Fprintf(b, "        Volatile\n")
	fmt.Fprintf(b, "            Single Bit                    : %d\n", g.ECCErrors.Volatile.SingleBit)
	fmt.Fprintf(b, "            Double Bit                    : %d\n", g.ECCErrors.Volatile.DoubleBit)
	fmt.Fprintf(b, "        Aggregate\n")
	fmt.Fprintf(b, "            Single Bit                    : %d\n", g.ECCErrors.Aggregate.SingleBit)
	fmt.Fprintf(b, "            Double Bit                    : %d\n", g.ECCErrors.Aggregate.DoubleBit)
}

func (s *NvidiaSMISimulator) writeXIDs(b *strings.Builder, g *simtypes.GPU) {
	if len(g.XIDErrors) == 0 {
		fmt.Fprintf(b, "    XID Errors                            : None\n")
		return
	}
	fmt.Fprintf(b, "    XID Errors\n")
	for _, e := range g.XIDErrors {
		fmt.Fprintf(b, "        Xid %d                             : %s\n", e.Code, xidDescription(e.Code))
	}
}

func (s *NvidiaSMISimulator) topoMatrix(node *simtypes.DGXNode) *simtypes.CommandResult {
	n := len(node.GPUs)
	headers := make([]string, 0, n+2)
	headers = append(headers, "")
	for i := 0; i < n; i++ {
		headers = append(headers, fmt.Sprintf("GPU%d", i))
	}
	headers = append(headers, "CPU Affinity")

	var rows [][]string
	for i := 0; i < n; i++ {
		row := make([]string, 0, n+2)
		row = append(row, fmt.Sprintf("GPU%d", i))
		for j := 0; j < n; j++ {
			if i == j {
				row = append(row, "X")
			} else {
				row = append(row, "NV18")
			}
		}
		row = append(row, fmt.Sprintf("0-%d", node.CPUCores-1))
		rows = append(rows, row)
	}
	out := format.Table(headers, rows) +
		"\n\nLegend:\n  X    = Self\n  NV#  = Connection traversing a bonded set of # NVLinks"
	return textResult(out)
}

// queryGPU handles --query-gpu=fields --format=csv[,noheader].
func (s *NvidiaSMISimulator) queryGPU(cmd *simtypes.ParsedCommand, gpus []*simtypes.GPU) *simtypes.CommandResult {
	fields := strings.Split(cmd.Flag("--query-gpu"), ",")
	formatSpec := cmd.Flag("--format")
	if formatSpec == "" {
		return failResult("Missing required flag: --format")
	}
	noHeader := strings.Contains(formatSpec, "noheader")

	var lines []string
	if !noHeader {
		var names []string
		for _, f := range fields {
			names = append(names, strings.TrimSpace(f))
		}
		lines = append(lines, strings.Join(names, ", "))
	}
	for _, g := range gpus {
		var vals []string
		for _, f := range fields {
			vals = append(vals, queryField(strings.TrimSpace(f), g))
		}
		lines = append(lines, strings.Join(vals, ", "))
	}
	return textResult(strings.Join(lines, "\n"))
}

func queryField(field string, g *simtypes.GPU) string {
	switch field {
	case "index":
		return strconv.Itoa(g.Index)
	case "name", "gpu_name":
		return g.Model
	case "uuid", "gpu_uuid":
		return g.UUID
	case "temperature.gpu":
		return strconv.Itoa(g.Temperature)
	case "utilization.gpu":
		return fmt.Sprintf("%d %%", g.UtilizationPct)
	case "memory.used":
		return fmt.Sprintf("%d MiB", g.MemoryUsedMiB)
	case "memory.total":
		return fmt.Sprintf("%d MiB", g.MemoryTotalMiB)
	case "power.draw":
		return fmt.Sprintf("%.2f W", g.PowerDrawW)
	case "ecc.errors.uncorrected.aggregate.total":
		return strconv.Itoa(g.ECCErrors.Aggregate.DoubleBit)
	case "pci.bus_id":
		return g.PCIAddress
	default:
		return "[N/A]"
	}
}

func (s *NvidiaSMISimulator) helpText() string {
	return strings.Join([]string{
		"NVIDIA System Management Interface -- v" + nvidiaSMIVersion,
		"",
		"Usage: nvidia-smi [OPTION1 [ARG1]] [OPTION2 [ARG2]] ...",
		"",
		"    -h, --help            Print usage information and exit",
		"    -L, --list-gpus       Display a list of GPUs connected to the system",
		"    -q                    Display GPU or unit info",
		"    -i, --id=             Target a specific GPU",
		"    -d                    Display only selected information (ECC, TEMPERATURE, XID)",
		"    topo -m               Display the GPUDirect communication matrix",
		"    --query-gpu=          Information to query (comma-separated fields)",
		"    --format=             Format of query output (csv[,noheader])",
	}, "\n")
}
