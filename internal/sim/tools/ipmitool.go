package tools

import (
	"fmt"
	"strings"
	"time"

	"dgxsim/internal/cluster"
	"dgxsim/internal/faults"
	"dgxsim/internal/format"
	"dgxsim/pkg/simtypes"
)

const noBMCMsg = "Could not open device at /dev/ipmi0 or /dev/ipmi/0 or /dev/ipmidev/0: No such file or directory\n" +
	"Cannot connect to the BMC daemon"

// IPMIToolSimulator renders ipmitool output from the node's BMC data
// and mirrors injected faults into the sensor and event log views.
// Power chassis commands write through the store.
type IPMIToolSimulator struct {
	nonInteractive
	store *cluster.Store
}

// NewIPMIToolSimulator creates a fresh ipmitool simulator.
func NewIPMIToolSimulator(store *cluster.Store) *IPMIToolSimulator {
	return &IPMIToolSimulator{nonInteractive: nonInteractive{tool: "ipmitool"}, store: store}
}

// Metadata describes ipmitool for help and completion.
func (s *IPMIToolSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "ipmitool",
		Version:     "1.8.19",
		Description: "IPMI management utility",
		Commands: []simtypes.ToolCommand{
			{Name: "sensor", Description: "Sensor readings"},
			{Name: "sel", Description: "System event log"},
			{Name: "chassis", Description: "Chassis status and control"},
			{Name: "lan", Description: "BMC LAN configuration"},
			{Name: "fru", Description: "Field replaceable unit data"},
			{Name: "power", Description: "Chassis power control"},
		},
	}
}

// Execute dispatches one ipmitool invocation.
func (s *IPMIToolSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	if cmd.HasFlag("--help") || cmd.HasFlag("-h") || cmd.Subcommand == "" {
		return textResult(s.helpText())
	}

	c, errRes := requireCluster(ctx, noBMCMsg)
	if errRes != nil {
		return errRes
	}
	node := contextNode(ctx, c)

	verb := ""
	if len(cmd.PositionalArgs) > 0 {
		verb = cmd.PositionalArgs[0]
	}

	switch cmd.Subcommand {
	case "sensor":
		return s.sensorList(node)
	case "sel":
		return s.selList(c, node)
	case "chassis":
		if verb == "status" || verb == "" {
			return s.chassisStatus(node)
		}
		return failResult(fmt.Sprintf("Invalid chassis command: %s", verb))
	case "lan":
		return s.lanPrint(node)
	case "fru":
		return s.fruPrint(node)
	case "power":
		return s.power(node, verb)
	default:
		return failResult(fmt.Sprintf("Invalid command: %s", cmd.Subcommand))
	}
}

func (s *IPMIToolSimulator) sensorList(node *simtypes.DGXNode) *simtypes.CommandResult {
	headers := []string{"Sensor", "Reading", "Units", "Status"}
	var rows [][]string
	bad := func(status simtypes.HealthStatus) string {
		switch status {
		case simtypes.HealthCritical:
			return format.ColorizeWord("cr", status)
		case simtypes.HealthWarning:
			return format.ColorizeWord("nc", status)
		default:
			return "ok"
		}
	}
	for _, g := range node.GPUs {
		rows = append(rows, []string{
			fmt.Sprintf("GPU%d Temp", g.Index),
			fmt.Sprintf("%d", g.Temperature),
			"degrees C",
			bad(faults.TemperatureStatus(g.Temperature)),
		})
	}
	rows = append(rows,
		[]string{"Inlet Temp", "24", "degrees C", "ok"},
		[]string{"Exhaust Temp", "41", "degrees C", "ok"},
		[]string{"PSU1 Power", "1840", "Watts", "ok"},
		[]string{"PSU2 Power", "1835", "Watts", "ok"},
		[]string{"Fan1A", "9240", "RPM", "ok"},
		[]string{"Fan2A", "9180", "RPM", "ok"},
	)
	return textResult(format.Table(headers, rows))
}

func (s *IPMIToolSimulator) selList(c *simtypes.ClusterConfig, node *simtypes.DGXNode) *simtypes.CommandResult {
	var lines []string
	id := 1
	stamp := func(minOffset int) string {
		t := c.BootTime.Add(time.Duration(minOffset) * time.Minute)
		return t.Format("01/02/2006") + " | " + t.Format("15:04:05")
	}
	lines = append(lines, fmt.Sprintf("%4x | %s | Event Logging Disabled #0x51 | Log area reset/cleared | Asserted", id, stamp(0)))
	id++
	for _, g := range node.GPUs {
		if faults.TemperatureStatus(g.Temperature) != simtypes.HealthOK {
			lines = append(lines, fmt.Sprintf("%4x | %s | Temperature GPU%d Temp | Upper Critical going high | Asserted", id, stamp(12), g.Index))
			id++
		}
		if g.ECCErrors.Aggregate.DoubleBit > 0 {
			lines = append(lines, fmt.Sprintf("%4x | %s | Memory GPU%d | Uncorrectable ECC | Asserted", id, stamp(23), g.Index))
			id++
		}
		for range g.XIDErrors {
			lines = append(lines, fmt.Sprintf("%4x | %s | Processor GPU%d | IERR | Asserted", id, stamp(31), g.Index))
			id++
		}
	}
	if len(lines) == 1 {
		lines = append(lines, "SEL has no additional entries")
	}
	return textResult(strings.Join(lines, "\n"))
}

func (s *IPMIToolSimulator) chassisStatus(node *simtypes.DGXNode) *simtypes.CommandResult {
	power := "on"
	if !node.PoweredOn {
		power = "off"
	}
	return textResult(format.KeyValue([][2]string{
		{"System Power", power},
		{"Power Overload", "false"},
		{"Power Interlock", "inactive"},
		{"Main Power Fault", "false"},
		{"Power Restore Policy", "always-on"},
		{"Last Power Event", ""},
		{"Chassis Intrusion", "inactive"},
		{"Front-Panel Lockout", "inactive"},
		{"Drive Fault", "false"},
		{"Cooling/Fan Fault", "false"},
	}))
}

func (s *IPMIToolSimulator) lanPrint(node *simtypes.DGXNode) *simtypes.CommandResult {
	return textResult(format.KeyValue([][2]string{
		{"Set in Progress", "Set Complete"},
		{"IP Address Source", "Static Address"},
		{"IP Address", node.BMC.IPAddress},
		{"Subnet Mask", "255.255.255.0"},
		{"MAC Address", node.BMC.MACAddress},
		{"Default Gateway IP", "10.0.2.1"},
		{"802.1q VLAN ID", "Disabled"},
		{"RMCP+ Cipher Suites", "1,2,3,6,7,8,11,12"},
	}))
}

func (s *IPMIToolSimulator) fruPrint(node *simtypes.DGXNode) *simtypes.CommandResult {
	return textResult(format.KeyValue([][2]string{
		{"FRU Device Description", "Builtin FRU Device (ID 0)"},
		{"Chassis Type", "Rack Mount Chassis"},
		{"Chassis Serial", node.SerialNumber},
		{"Board Mfg", "NVIDIA"},
		{"Board Product", node.Model},
		{"Board Serial", node.SerialNumber},
		{"Product Manufacturer", "NVIDIA"},
		{"Product Name", node.Model},
		{"Product Version", node.BiosVersion},
	}))
}

func (s *IPMIToolSimulator) power(node *simtypes.DGXNode, verb string) *simtypes.CommandResult {
	switch verb {
	case "status", "":
		if node.PoweredOn {
			return textResult("Chassis Power is on")
		}
		return textResult("Chassis Power is off")
	case "on":
		_ = s.store.SetNodePower(node.Hostname, true)
		return textResult("Chassis Power Control: Up/On")
	case "off":
		_ = s.store.SetNodePower(node.Hostname, false)
		return textResult("Chassis Power Control: Down/Off")
	case "cycle":
		_ = s.store.SetNodePower(node.Hostname, true)
		return textResult("Chassis Power Control: Cycle")
	default:
		return failResult(fmt.Sprintf("Invalid chassis power command: %s", verb))
	}
}

func (s *IPMIToolSimulator) helpText() string {
	return strings.Join([]string{
		"ipmitool version 1.8.19",
		"",
		"Commands:",
		"        sensor list    Print sensor readings and thresholds",
		"        sel list       Print the system event log",
		"        chassis status Show chassis status",
		"        lan print      Show BMC LAN configuration",
		"        fru print      Show FRU inventory",
		"        power status   Show chassis power status",
		"        power on|off|cycle",
	}, "\n")
}
