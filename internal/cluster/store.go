package cluster

import (
	"fmt"
	"time"

	"dgxsim/internal/faults"
	"dgxsim/internal/logger"
	"dgxsim/pkg/simtypes"
)

// Store wraps a ClusterConfig with the narrow mutator API. Simulators
// read the config freely through CommandContext but every write goes
// through a named mutator here; nothing else assigns to shared state.
type Store struct {
	cluster *simtypes.ClusterConfig
}

// NewStore wraps an existing cluster.
func NewStore(c *simtypes.ClusterConfig) *Store {
	refreshHealth(c)
	return &Store{cluster: c}
}

// Cluster returns the shared cluster state.
func (s *Store) Cluster() *simtypes.ClusterConfig {
	return s.cluster
}

// Reset replaces the cluster with a fresh default topology of the same
// node count ("Free Mode" reset).
func (s *Store) Reset() {
	s.cluster = NewDefaultCluster(len(s.cluster.Nodes))
}

// UpdateGPU applies a mutation to one GPU and re-derives its health.
func (s *Store) UpdateGPU(hostname string, index int, mutate func(*simtypes.GPU)) error {
	g, err := s.gpu(hostname, index)
	if err != nil {
		return err
	}
	mutate(g)
	g.Health = faults.GPUHealth(g)
	logger.Debug("GPU updated", "node", hostname, "gpu", index, "health", g.Health)
	return nil
}

// AddXIDError records an XID fault on a GPU, stamped relative to the
// cluster's reference clock.
func (s *Store) AddXIDError(hostname string, index int, code int) error {
	err := s.UpdateGPU(hostname, index, func(g *simtypes.GPU) {
		g.XIDErrors = append(g.XIDErrors, simtypes.XIDError{
			Code:      code,
			Timestamp: s.cluster.BootTime.Add(time.Duration(17+13*len(g.XIDErrors)) * time.Minute),
		})
	})
	if err != nil {
		return err
	}
	logger.FaultInjection("xid", hostname, "gpu", index, "code", code)
	return nil
}

// SetSlurmState sets a node's scheduler state (idle, drain, down,
// alloc) and mirrors drain/down onto the node status.
func (s *Store) SetSlurmState(hostname, state string) error {
	node := s.cluster.Node(hostname)
	if node == nil {
		return fmt.Errorf("node %s not found", hostname)
	}
	switch state {
	case "drain", "down":
		node.Status = "drained"
	default:
		node.Status = "up"
	}
	logger.Debug("Slurm state set", "node", hostname, "state", state)
	return nil
}

// AllocateGPUsForJob reserves gpusPerNode GPUs on each named node and
// registers the job. Returns the assigned job id.
func (s *Store) AllocateGPUsForJob(name, user, partition string, nodes []string, gpusPerNode int) (int, error) {
	for _, hostname := range nodes {
		node := s.cluster.Node(hostname)
		if node == nil {
			return 0, fmt.Errorf("node %s not found", hostname)
		}
		if s.cluster.Slurm.GresUsed[hostname]+gpusPerNode > len(node.GPUs) {
			return 0, fmt.Errorf("node %s: insufficient GPUs", hostname)
		}
	}
	slurm := &s.cluster.Slurm
	id := slurm.NextJobID
	slurm.NextJobID++
	for _, hostname := range nodes {
		slurm.GresUsed[hostname] += gpusPerNode
	}
	slurm.Jobs = append(slurm.Jobs, &simtypes.SlurmJob{
		ID:        id,
		Name:      name,
		User:      user,
		Partition: partition,
		State:     "RUNNING",
		Nodes:     append([]string(nil), nodes...),
		GPUsPer:   gpusPerNode,
		Submitted: s.cluster.BootTime,
	})
	logger.Debug("Job allocated", "job", id, "nodes", nodes, "gpusPerNode", gpusPerNode)
	return id, nil
}

// DeallocateGPUsForJob releases a job's GPUs and marks it cancelled.
func (s *Store) DeallocateGPUsForJob(jobID int) error {
	for _, job := range s.cluster.Slurm.Jobs {
		if job.ID != jobID || job.State != "RUNNING" {
			continue
		}
		for _, hostname := range job.Nodes {
			used := s.cluster.Slurm.GresUsed[hostname] - job.GPUsPer
			if used < 0 {
				used = 0
			}
			s.cluster.Slurm.GresUsed[hostname] = used
		}
		job.State = "CANCELLED"
		logger.Debug("Job deallocated", "job", jobID)
		return nil
	}
	return fmt.Errorf("job %d not found", jobID)
}

// SetNodePower flips chassis power for ipmitool power on/off.
func (s *Store) SetNodePower(hostname string, on bool) error {
	node := s.cluster.Node(hostname)
	if node == nil {
		return fmt.Errorf("node %s not found", hostname)
	}
	node.PoweredOn = on
	return nil
}

func (s *Store) gpu(hostname string, index int) (*simtypes.GPU, error) {
	node := s.cluster.Node(hostname)
	if node == nil {
		return nil, fmt.Errorf("node %s not found", hostname)
	}
	if index < 0 || index >= len(node.GPUs) {
		return nil, fmt.Errorf("node %s has no GPU %d", hostname, index)
	}
	return node.GPUs[index], nil
}

func refreshHealth(c *simtypes.ClusterConfig) {
	for _, n := range c.Nodes {
		for _, g := range n.GPUs {
			g.Health = faults.GPUHealth(g)
		}
	}
}
