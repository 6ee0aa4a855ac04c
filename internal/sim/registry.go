// Package sim provides the simulator plumbing shared by every tool:
// the name-to-simulator registry and the engine that parses lines,
// dispatches them, and routes interactive sub-sessions.
package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"

	"dgxsim/pkg/simtypes"
)

// Registry maps base command names to simulator instances. Several
// names may resolve to one instance (the Slurm and PCI tool families
// register every spelling they answer to).
type Registry struct {
	mu         sync.RWMutex
	simulators map[string]simtypes.Simulator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		simulators: make(map[string]simtypes.Simulator),
	}
}

// Register adds a simulator under the given base command name.
// Returns an error for an empty name or a duplicate registration.
func (r *Registry) Register(name string, s simtypes.Simulator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("simulator name cannot be empty")
	}
	if _, exists := r.simulators[name]; exists {
		return fmt.Errorf("simulator %s already registered", name)
	}

	r.simulators[name] = s
	return nil
}

// Get retrieves a simulator by base command name.
func (r *Registry) Get(name string) (simtypes.Simulator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.simulators[name]
	return s, exists
}

// Names returns every registered base command name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.simulators))
	for name := range r.simulators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Suggest returns the closest registered name within levenshtein
// distance 2, for "command not found" hints. Empty when nothing is
// close enough.
func (r *Registry) Suggest(name string) string {
	best := ""
	bestDist := 3
	for _, candidate := range r.Names() {
		d := levenshtein.ComputeDistance(name, candidate)
		if d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	return best
}
