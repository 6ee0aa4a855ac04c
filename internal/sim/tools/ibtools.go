package tools

import (
	"fmt"
	"strings"

	"dgxsim/pkg/simtypes"
)

// IBToolsSimulator answers ibstat and ibdev2netdev from the node's
// HCA inventory.
type IBToolsSimulator struct {
	nonInteractive
}

// NewIBToolsSimulator creates a fresh InfiniBand tools simulator.
func NewIBToolsSimulator() *IBToolsSimulator {
	return &IBToolsSimulator{nonInteractive: nonInteractive{tool: "ibstat"}}
}

// Metadata describes the InfiniBand tool family.
func (s *IBToolsSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "ibtools",
		Version:     "5.9.0",
		Description: "InfiniBand device state and netdev mapping tools",
		Commands: []simtypes.ToolCommand{
			{Flags: []simtypes.ToolFlag{
				{Name: "-l", Description: "ibstat: list channel adapter names only"},
				{Name: "-s", Description: "ibstat: short output (CA lines only)"},
			}},
		},
	}
}

// Execute dispatches by the base command the line was entered under.
func (s *IBToolsSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	c, errRes := requireCluster(ctx, "ibpanic: [ibstat] stat of IB device failed: No such file or directory")
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	switch cmd.BaseCommand {
	case "ibstat":
		return s.ibstat(cmd, node)
	case "ibdev2netdev":
		return s.ibdev2netdev(node)
	default:
		return failResult(fmt.Sprintf("Unknown InfiniBand tool: %s", cmd.BaseCommand))
	}
}

func (s *IBToolsSimulator) ibstat(cmd *simtypes.ParsedCommand, node *simtypes.DGXNode) *simtypes.CommandResult {
	hcas := node.HCAs
	if len(cmd.PositionalArgs) > 0 {
		want := cmd.PositionalArgs[0]
		var matched []*simtypes.InfiniBandHCA
		for _, h := range hcas {
			if h.Device == want {
				matched = append(matched, h)
			}
		}
		if len(matched) == 0 {
			return failResult(fmt.Sprintf("ibstat: '%s' IB device can't be found", want))
		}
		hcas = matched
	}

	if cmd.HasFlag("-l") {
		names := make([]string, 0, len(hcas))
		for _, h := range hcas {
			names = append(names, h.Device)
		}
		return textResult(strings.Join(names, "\n"))
	}

	var b strings.Builder
	for i, h := range hcas {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "CA '%s'\n", h.Device)
		if cmd.HasFlag("-s") {
			continue
		}
		fmt.Fprintf(&b, "\tCA type: MT4129\n")
		fmt.Fprintf(&b, "\tNumber of ports: 1\n")
		fmt.Fprintf(&b, "\tFirmware version: 28.39.2048\n")
		fmt.Fprintf(&b, "\tHardware version: 0\n")
		fmt.Fprintf(&b, "\tNode GUID: %s\n", h.GUID)
		fmt.Fprintf(&b, "\tSystem image GUID: %s\n", h.GUID)
		fmt.Fprintf(&b, "\tPort %d:\n", h.Port)
		fmt.Fprintf(&b, "\t\tState: %s\n", h.State)
		fmt.Fprintf(&b, "\t\tPhysical state: %s\n", h.PhysState)
		rate := h.RateGbps
		if h.State != "Active" {
			rate = 10
		}
		fmt.Fprintf(&b, "\t\tRate: %d\n", rate)
		fmt.Fprintf(&b, "\t\tBase lid: %d\n", 11+i)
		fmt.Fprintf(&b, "\t\tLMC: 0\n")
		fmt.Fprintf(&b, "\t\tSM lid: 1\n")
		fmt.Fprintf(&b, "\t\tCapability mask: 0xa651e848\n")
		fmt.Fprintf(&b, "\t\tPort GUID: %s\n", h.GUID)
		fmt.Fprintf(&b, "\t\tLink layer: %s\n", h.LinkLayer)
	}
	return textResult(strings.TrimRight(b.String(), "\n"))
}

func (s *IBToolsSimulator) ibdev2netdev(node *simtypes.DGXNode) *simtypes.CommandResult {
	lines := make([]string, 0, len(node.HCAs))
	for _, h := range node.HCAs {
		state := "Up"
		if h.State != "Active" {
			state = "Down"
		}
		lines = append(lines, fmt.Sprintf("%s port %d ==> %s (%s)", h.Device, h.Port, h.NetDev, state))
	}
	return textResult(strings.Join(lines, "\n"))
}
