package simtypes

import "time"

// HealthStatus is the derived condition of a GPU, node, or check.
type HealthStatus string

// Health status values shared by every simulator.
const (
	HealthOK       HealthStatus = "OK"
	HealthWarning  HealthStatus = "Warning"
	HealthCritical HealthStatus = "Critical"
)

// Severity classifies an XID error code.
type Severity string

// XID severity values.
const (
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// LinkStatus is the state of one NVLink connection.
type LinkStatus string

// NVLink states.
const (
	LinkUp   LinkStatus = "Up"
	LinkDown LinkStatus = "Down"
)

// ECCCounts holds single- and double-bit error counters.
type ECCCounts struct {
	SingleBit int `yaml:"singleBit"`
	DoubleBit int `yaml:"doubleBit"`
}

// ECCErrors tracks volatile (since boot) and aggregate (lifetime)
// ECC counters for one GPU.
type ECCErrors struct {
	Volatile  ECCCounts `yaml:"volatile"`
	Aggregate ECCCounts `yaml:"aggregate"`
}

// XIDError is one driver-reported fault event on a GPU.
type XIDError struct {
	Code      int       `yaml:"code"`
	Timestamp time.Time `yaml:"timestamp"`
}

// NVLinkConnection is one NVLink lane between a GPU and a peer.
type NVLinkConnection struct {
	LinkID       int        `yaml:"linkId"`
	PeerGPU      int        `yaml:"peerGpu"`
	Status       LinkStatus `yaml:"status"`
	TxErrors     int        `yaml:"txErrors"`
	RxErrors     int        `yaml:"rxErrors"`
	ReplayErrors int        `yaml:"replayErrors"`
}

// GPU is one accelerator inside a DGX node. Health is derived from the
// fault fields by the cluster store and must never be set directly.
type GPU struct {
	Index          int                `yaml:"index"`
	UUID           string             `yaml:"uuid"`
	Model          string             `yaml:"model"`
	PCIAddress     string             `yaml:"pciAddress"`
	Temperature    int                `yaml:"temperature"` // degrees C
	PowerDrawW     float64            `yaml:"powerDraw"`
	PowerLimitW    float64            `yaml:"powerLimit"`
	MemoryUsedMiB  int                `yaml:"memoryUsedMiB"`
	MemoryTotalMiB int                `yaml:"memoryTotalMiB"`
	UtilizationPct int                `yaml:"utilization"`
	MIGEnabled     bool               `yaml:"migEnabled"`
	ECCErrors      ECCErrors          `yaml:"eccErrors"`
	XIDErrors      []XIDError         `yaml:"xidErrors"`
	NVLinks        []NVLinkConnection `yaml:"nvlinks"`
	Health         HealthStatus       `yaml:"-"`
	ThermalEvent   bool               `yaml:"thermalEvent"` // active thermal throttle
}

// InfiniBandHCA is one host channel adapter port.
type InfiniBandHCA struct {
	Device    string `yaml:"device"` // e.g. mlx5_0
	Port      int    `yaml:"port"`
	State     string `yaml:"state"`     // Active, Down, Init
	PhysState string `yaml:"physState"` // LinkUp, Disabled, Polling
	RateGbps  int    `yaml:"rateGbps"`
	LinkLayer string `yaml:"linkLayer"` // InfiniBand
	GUID      string `yaml:"guid"`
	NetDev    string `yaml:"netdev"` // e.g. ibp24s0
	SymbolErr int    `yaml:"symbolErrors"`
	LinkDowns int    `yaml:"linkDowns"`
}

// BMCInfo is the node's baseboard management controller.
type BMCInfo struct {
	IPAddress  string `yaml:"ipAddress"`
	MACAddress string `yaml:"macAddress"`
	Firmware   string `yaml:"firmware"`
}

// DGXNode is one server in the virtual cluster.
type DGXNode struct {
	Hostname      string           `yaml:"hostname"`
	IPAddress     string           `yaml:"ipAddress"`
	Category      string           `yaml:"category"` // e.g. dgx-h100
	Model         string           `yaml:"model"`    // e.g. DGX H100
	Status        string           `yaml:"status"`   // up, down, drained
	SerialNumber  string           `yaml:"serialNumber"`
	BiosVersion   string           `yaml:"biosVersion"`
	DriverVersion string           `yaml:"driverVersion"`
	CUDAVersion   string           `yaml:"cudaVersion"`
	CPUSockets    int              `yaml:"cpuSockets"`
	CPUCores      int              `yaml:"cpuCores"` // total cores across sockets
	MemoryGB      int              `yaml:"memoryGB"`
	BMC           BMCInfo          `yaml:"bmc"`
	GPUs          []*GPU           `yaml:"gpus"`
	HCAs          []*InfiniBandHCA `yaml:"hcas"`
	PoweredOn     bool             `yaml:"poweredOn"`
}

// SlurmJob is one scheduled job tracked by the store.
type SlurmJob struct {
	ID        int
	Name      string
	User      string
	Partition string
	State     string // RUNNING, PENDING, CANCELLED
	Nodes     []string
	GPUsPer   int // GPUs allocated per node
	Submitted time.Time
}

// SlurmPartition is one scheduling partition.
type SlurmPartition struct {
	Name      string   `yaml:"name"`
	Default   bool     `yaml:"default"`
	State     string   `yaml:"state"` // up, down
	TimeLimit string   `yaml:"timeLimit"`
	Nodes     []string `yaml:"nodes"`
}

// SlurmState is the scheduler's view of the cluster. GresUsed maps
// hostname to GPUs currently allocated on that node; it is maintained
// exclusively by the store's allocation mutators.
type SlurmState struct {
	ControllerUp bool
	Partitions   []SlurmPartition
	Jobs         []*SlurmJob
	NextJobID    int
	GresUsed     map[string]int
}

// ClusterConfig is the root of the virtual cluster read by every
// simulator. Simulators never write to it except through the store's
// named mutators.
type ClusterConfig struct {
	Name     string     `yaml:"name"`
	GPUType  string     `yaml:"gpuType"` // GRES type token, e.g. h100
	Nodes    []*DGXNode `yaml:"nodes"`
	Slurm    SlurmState `yaml:"-"`
	BootTime time.Time  `yaml:"-"` // reference clock for synthesized logs
}

// Node returns the node with the given hostname, or nil.
func (c *ClusterConfig) Node(hostname string) *DGXNode {
	for _, n := range c.Nodes {
		if n.Hostname == hostname {
			return n
		}
	}
	return nil
}

// Hostnames returns every node name in cluster order.
func (c *ClusterConfig) Hostnames() []string {
	names := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		names = append(names, n.Hostname)
	}
	return names
}
