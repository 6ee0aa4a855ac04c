package tools

import (
	"fmt"
	"strconv"
	"strings"

	"dgxsim/internal/cluster"
	"dgxsim/internal/format"
	"dgxsim/pkg/simtypes"
)

const noControllerMsg = "slurm_load_partitions: Unable to contact slurm controller (connect failure)"

// SlurmSimulator answers the whole Slurm tool family: sinfo, squeue,
// sbatch, scontrol, and scancel. One instance is registered under all
// five names; the entered base command selects the behavior. sbatch,
// scancel, and scontrol update are the only simulator paths that write
// cluster state, always through the store mutators.
type SlurmSimulator struct {
	nonInteractive
	store *cluster.Store
}

// NewSlurmSimulator creates a fresh Slurm family simulator.
func NewSlurmSimulator(store *cluster.Store) *SlurmSimulator {
	return &SlurmSimulator{nonInteractive: nonInteractive{tool: "slurm"}, store: store}
}

// Metadata describes the Slurm tools for help and completion.
func (s *SlurmSimulator) Metadata() simtypes.SimulatorMetadata {
	return simtypes.SimulatorMetadata{
		Name:        "slurm",
		Version:     "23.11.4",
		Description: "Slurm workload manager tools",
		Commands: []simtypes.ToolCommand{
			{Name: "show", Description: "scontrol show node|job|partition"},
			{Name: "update", Description: "scontrol update NodeName= State="},
			{Flags: []simtypes.ToolFlag{
				{Name: "-N", Description: "Node-oriented sinfo / sbatch node count", TakesValue: true},
				{Name: "-o", Description: "sinfo output format", TakesValue: true},
				{Name: "-p", Description: "Partition", TakesValue: true},
				{Name: "-J", Description: "Job name", TakesValue: true},
				{Name: "--gres", Description: "Generic resources per node", TakesValue: true},
				{Name: "--wrap", Description: "Command line to wrap", TakesValue: true},
			}},
		},
	}
}

// Execute dispatches by the base command the line was entered under.
func (s *SlurmSimulator) Execute(cmd *simtypes.ParsedCommand, ctx *simtypes.CommandContext) *simtypes.CommandResult {
	if cmd.HasFlag("--help") {
		return textResult(s.helpText(cmd.BaseCommand))
	}
	if cmd.HasFlag("--version") || cmd.HasFlag("-V") {
		return textResult("slurm 23.11.4")
	}

	c, errRes := requireCluster(ctx, noControllerMsg)
	if errRes != nil {
		return errRes
	}
	if !c.Slurm.ControllerUp {
		return failResult(noControllerMsg)
	}

	switch cmd.BaseCommand {
	case "sinfo":
		return s.sinfo(cmd, c)
	case "squeue":
		return s.squeue(c)
	case "sbatch":
		return s.sbatch(cmd, c)
	case "scontrol":
		return s.scontrol(cmd, c)
	case "scancel":
		return s.scancel(cmd)
	default:
		return failResult(fmt.Sprintf("%s: command not found", cmd.BaseCommand))
	}
}

// nodeState maps a node to its scheduler state token.
func (s *SlurmSimulator) nodeState(c *simtypes.ClusterConfig, n *simtypes.DGXNode) string {
	switch {
	case n.Status == "drained":
		return "drain"
	case !n.PoweredOn || n.Status == "down":
		return "down"
	case c.Slurm.GresUsed[n.Hostname] >= len(n.GPUs):
		return "alloc"
	case c.Slurm.GresUsed[n.Hostname] > 0:
		return "mix"
	default:
		return "idle"
	}
}

func (s *SlurmSimulator) gres(c *simtypes.ClusterConfig, n *simtypes.DGXNode) string {
	return fmt.Sprintf("gpu:%s:%d", c.GPUType, len(n.GPUs))
}

func (s *SlurmSimulator) gresUsed(c *simtypes.ClusterConfig, n *simtypes.DGXNode) string {
	return fmt.Sprintf("gpu:%s:%d", c.GPUType, c.Slurm.GresUsed[n.Hostname])
}

func (s *SlurmSimulator) sinfo(cmd *simtypes.ParsedCommand, c *simtypes.ClusterConfig) *simtypes.CommandResult {
	if fmtSpec := cmd.Flag("-o"); fmtSpec != "" {
		return s.sinfoFormatted(fmtSpec, c)
	}
	if cmd.HasFlag("-N") {
		headers := []string{"NODELIST", "NODES", "PARTITION", "STATE"}
		var rows [][]string
		for _, n := range c.Nodes {
			for _, p := range c.Slurm.Partitions {
				if containsStr(p.Nodes, n.Hostname) {
					rows = append(rows, []string{n.Hostname, "1", partitionLabel(p), s.nodeState(c, n)})
				}
			}
		}
		return textResult(format.Table(headers, rows))
	}

	headers := []string{"PARTITION", "AVAIL", "TIMELIMIT", "NODES", "STATE", "NODELIST"}
	var rows [][]string
	for _, p := range c.Slurm.Partitions {
		byState := map[string][]string{}
		for _, hostname := range p.Nodes {
			if n := c.Node(hostname); n != nil {
				state := s.nodeState(c, n)
				byState[state] = append(byState[state], hostname)
			}
		}
		for _, state := range []string{"alloc", "mix", "drain", "down", "idle"} {
			nodes := byState[state]
			if len(nodes) == 0 {
				continue
			}
			rows = append(rows, []string{
				partitionLabel(p), p.State, p.TimeLimit,
				strconv.Itoa(len(nodes)), state, compressHostnames(nodes),
			})
		}
	}
	return textResult(format.Table(headers, rows))
}

// sinfoFormatted expands a -o format string per node. The supported
// tokens cover the specifiers the training scenarios exercise.
func (s *SlurmSimulator) sinfoFormatted(fmtSpec string, c *simtypes.ClusterConfig) *simtypes.CommandResult {
	var lines []string
	for _, n := range c.Nodes {
		line := fmtSpec
		line = strings.ReplaceAll(line, "%n", n.Hostname)
		line = strings.ReplaceAll(line, "%G", s.gres(c, n))
		line = strings.ReplaceAll(line, "%P", defaultPartitionName(c))
		line = strings.ReplaceAll(line, "%t", s.nodeState(c, n))
		line = strings.ReplaceAll(line, "%D", "1")
		line = strings.ReplaceAll(line, "%c", strconv.Itoa(n.CPUCores))
		line = strings.ReplaceAll(line, "%m", strconv.Itoa(n.MemoryGB*1024))
		lines = append(lines, line)
	}
	return textResult(strings.Join(lines, "\n"))
}

func (s *SlurmSimulator) squeue(c *simtypes.ClusterConfig) *simtypes.CommandResult {
	headers := []string{"JOBID", "PARTITION", "NAME", "USER", "ST", "TIME", "NODES", "NODELIST(REASON)"}
	var rows [][]string
	for _, j := range c.Slurm.Jobs {
		if j.State != "RUNNING" && j.State != "PENDING" {
			continue
		}
		st := "R"
		nodelist := compressHostnames(j.Nodes)
		if j.State == "PENDING" {
			st = "PD"
			nodelist = "(Resources)"
		}
		rows = append(rows, []string{
			strconv.Itoa(j.ID), j.Partition, j.Name, j.User, st, "0:42",
			strconv.Itoa(len(j.Nodes)), nodelist,
		})
	}
	return textResult(format.Table(headers, rows))
}

func (s *SlurmSimulator) sbatch(cmd *simtypes.ParsedCommand, c *simtypes.ClusterConfig) *simtypes.CommandResult {
	nodeCount := 1
	if v, err := strconv.Atoi(cmd.Flag("-N")); err == nil && v > 0 {
		nodeCount = v
	}
	if nodeCount > len(c.Nodes) {
		return failResult("sbatch: error: Batch job submission failed: Requested node configuration is not available")
	}

	gpusPer := 0
	if gres := cmd.Flag("--gres"); gres != "" {
		// gpu:N or gpu:type:N; the last segment is the count.
		parts := strings.Split(gres, ":")
		if v, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			gpusPer = v
		}
	}

	name := cmd.Flag("-J")
	if name == "" {
		name = cmd.Flag("--job-name")
	}
	if name == "" {
		if len(cmd.PositionalArgs) > 0 {
			name = cmd.PositionalArgs[0]
		} else {
			name = "wrap"
		}
	}

	partition := cmd.Flag("-p")
	if partition == "" {
		partition = defaultPartitionName(c)
	}

	// First-fit node selection over free GPU capacity.
	var nodes []string
	for _, n := range c.Nodes {
		if n.Status != "up" || !n.PoweredOn {
			continue
		}
		if c.Slurm.GresUsed[n.Hostname]+gpusPer <= len(n.GPUs) {
			nodes = append(nodes, n.Hostname)
			if len(nodes) == nodeCount {
				break
			}
		}
	}
	if len(nodes) < nodeCount {
		return failResult("sbatch: error: Batch job submission failed: Requested node configuration is not available")
	}

	id, err := s.store.AllocateGPUsForJob(name, "student", partition, nodes, gpusPer)
	if err != nil {
		return failResult("sbatch: error: " + err.Error())
	}
	return textResult(fmt.Sprintf("Submitted batch job %d", id))
}

func (s *SlurmSimulator) scancel(cmd *simtypes.ParsedCommand) *simtypes.CommandResult {
	if len(cmd.PositionalArgs) == 0 {
		return failResult("scancel: error: No job identification provided")
	}
	id, err := strconv.Atoi(cmd.PositionalArgs[0])
	if err != nil {
		return failResult(fmt.Sprintf("scancel: error: Invalid job id %s", cmd.PositionalArgs[0]))
	}
	if err := s.store.DeallocateGPUsForJob(id); err != nil {
		return failResult(fmt.Sprintf("scancel: error: Kill job error on job id %d: Invalid job id specified", id))
	}
	return textResult("")
}

func (s *SlurmSimulator) scontrol(cmd *simtypes.ParsedCommand, c *simtypes.ClusterConfig) *simtypes.CommandResult {
	switch cmd.Subcommand {
	case "show":
		return s.scontrolShow(cmd, c)
	case "update":
		return s.scontrolUpdate(cmd)
	default:
		return failResult(fmt.Sprintf("scontrol: invalid entity: %s", cmd.Subcommand))
	}
}

func (s *SlurmSimulator) scontrolShow(cmd *simtypes.ParsedCommand, c *simtypes.ClusterConfig) *simtypes.CommandResult {
	if len(cmd.PositionalArgs) == 0 {
		return failResult("scontrol: error: show requires an entity (node, job, partition)")
	}
	entity := cmd.PositionalArgs[0]
	arg := ""
	if len(cmd.PositionalArgs) > 1 {
		arg = cmd.PositionalArgs[1]
	}

	switch entity {
	case "node":
		return s.showNode(c, arg)
	case "job":
		return s.showJob(c, arg)
	case "partition":
		return s.showPartition(c, arg)
	default:
		return failResult(fmt.Sprintf("scontrol: invalid entity: %s", entity))
	}
}

func (s *SlurmSimulator) showNode(c *simtypes.ClusterConfig, hostname string) *simtypes.CommandResult {
	nodes := c.Nodes
	if hostname != "" {
		n := c.Node(hostname)
		if n == nil {
			return failResult(fmt.Sprintf("Node %s not found", hostname))
		}
		nodes = []*simtypes.DGXNode{n}
	}

	var blocks []string
	for _, n := range nodes {
		state := strings.ToUpper(s.nodeState(c, n))
		if state == "MIX" {
			state = "MIXED"
		}
		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("NodeName=%s Arch=x86_64 CoresPerSocket=%d", n.Hostname, n.CPUCores/n.CPUSockets),
			fmt.Sprintf("   CPUAlloc=0 CPUTot=%d CPULoad=0.08", n.CPUCores),
			fmt.Sprintf("   Gres=%s", s.gres(c, n)),
			fmt.Sprintf("   GresUsed=%s", s.gresUsed(c, n)),
			fmt.Sprintf("   NodeAddr=%s NodeHostName=%s Version=23.11.4", n.IPAddress, n.Hostname),
			fmt.Sprintf("   RealMemory=%d Sockets=%d Boards=1", n.MemoryGB*1024, n.CPUSockets),
			fmt.Sprintf("   State=%s ThreadsPerCore=2 TmpDisk=0 Weight=1", state),
			fmt.Sprintf("   Partitions=%s", strings.Join(nodePartitions(c, n.Hostname), ",")),
		}, "\n"))
	}
	return textResult(strings.Join(blocks, "\n\n"))
}

func (s *SlurmSimulator) showJob(c *simtypes.ClusterConfig, idStr string) *simtypes.CommandResult {
	if idStr == "" {
		return failResult("scontrol: error: show job requires a job id")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return failResult(fmt.Sprintf("Invalid job id specified: %s", idStr))
	}
	for _, j := range c.Slurm.Jobs {
		if j.ID != id {
			continue
		}
		return textResult(strings.Join([]string{
			fmt.Sprintf("JobId=%d JobName=%s", j.ID, j.Name),
			fmt.Sprintf("   UserId=%s(1001) GroupId=%s(1001)", j.User, j.User),
			fmt.Sprintf("   JobState=%s Reason=None", j.State),
			fmt.Sprintf("   Partition=%s NumNodes=%d", j.Partition, len(j.Nodes)),
			fmt.Sprintf("   NodeList=%s", compressHostnames(j.Nodes)),
			fmt.Sprintf("   TresPerNode=gres:gpu:%d", j.GPUsPer),
		}, "\n"))
	}
	return failResult(fmt.Sprintf("Invalid job id specified: %d", id))
}

func (s *SlurmSimulator) showPartition(c *simtypes.ClusterConfig, name string) *simtypes.CommandResult {
	var blocks []string
	for _, p := range c.Slurm.Partitions {
		if name != "" && p.Name != name {
			continue
		}
		def := "NO"
		if p.Default {
			def = "YES"
		}
		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("PartitionName=%s", p.Name),
			fmt.Sprintf("   AllowGroups=ALL Default=%s State=%s", def, strings.ToUpper(p.State)),
			fmt.Sprintf("   MaxTime=%s Nodes=%s", p.TimeLimit, compressHostnames(p.Nodes)),
			fmt.Sprintf("   TotalNodes=%d", len(p.Nodes)),
		}, "\n"))
	}
	if len(blocks) == 0 {
		return failResult(fmt.Sprintf("Partition %s not found", name))
	}
	return textResult(strings.Join(blocks, "\n\n"))
}

// scontrolUpdate handles `scontrol update NodeName=x State=drain
// Reason=...`; the key=value tokens arrive as positional arguments.
func (s *SlurmSimulator) scontrolUpdate(cmd *simtypes.ParsedCommand) *simtypes.CommandResult {
	kv := map[string]string{}
	for _, arg := range cmd.PositionalArgs {
		if eq := strings.Index(arg, "="); eq > 0 {
			kv[strings.ToLower(arg[:eq])] = arg[eq+1:]
		}
	}
	hostname := kv["nodename"]
	state := strings.ToLower(kv["state"])
	if hostname == "" || state == "" {
		return failResult("scontrol: error: Invalid update specification: NodeName and State are required")
	}
	if (state == "drain" || state == "down") && kv["reason"] == "" {
		return failResult("scontrol: error: You must specify a reason when DOWNING or DRAINING a node")
	}
	if err := s.store.SetSlurmState(hostname, state); err != nil {
		return failResult(fmt.Sprintf("scontrol: error: %s", err.Error()))
	}
	return textResult("")
}

func (s *SlurmSimulator) helpText(base string) string {
	switch base {
	case "sinfo":
		return "Usage: sinfo [-N] [-o format] [-p partition]\n  %n hostname  %G gres  %P partition  %t state  %c cpus  %m memory"
	case "squeue":
		return "Usage: squeue [-u user] [-p partition]"
	case "sbatch":
		return "Usage: sbatch [-N count] [-J name] [-p partition] [--gres=gpu:N] [--wrap=\"command\"] [script]"
	case "scancel":
		return "Usage: scancel <job_id>"
	default:
		return "Usage: scontrol show node|job|partition [name]\n       scontrol update NodeName=<node> State=<state> Reason=<why>"
	}
}

func partitionLabel(p simtypes.SlurmPartition) string {
	if p.Default {
		return p.Name + "*"
	}
	return p.Name
}

func defaultPartitionName(c *simtypes.ClusterConfig) string {
	for _, p := range c.Slurm.Partitions {
		if p.Default {
			return p.Name
		}
	}
	if len(c.Slurm.Partitions) > 0 {
		return c.Slurm.Partitions[0].Name
	}
	return "batch"
}

func nodePartitions(c *simtypes.ClusterConfig, hostname string) []string {
	var names []string
	for _, p := range c.Slurm.Partitions {
		if containsStr(p.Nodes, hostname) {
			names = append(names, p.Name)
		}
	}
	return names
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// compressHostnames folds a run of numbered hostnames into Slurm's
// bracket notation: dgx-node[01-04]. Non-contiguous or mixed names
// fall back to a comma list.
func compressHostnames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}
	prefix, first, width, ok := splitNumbered(names[0])
	if ok {
		last := first
		for _, name := range names[1:] {
			p, n, w, ok2 := splitNumbered(name)
			if !ok2 || p != prefix || w != width || n != last+1 {
				ok = false
				break
			}
			last = n
		}
		if ok {
			return fmt.Sprintf("%s[%0*d-%0*d]", prefix, width, first, width, last)
		}
	}
	return strings.Join(names, ",")
}

func splitNumbered(name string) (prefix string, num int, width int, ok bool) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return "", 0, 0, false
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return "", 0, 0, false
	}
	return name[:i], n, len(name) - i, true
}
