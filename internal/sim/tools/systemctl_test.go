package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dgxsim/internal/testutils"
)

func TestSystemctlStatusRunning(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewSystemctlSimulator()

	result := s.Execute(parseFor(s, "systemctl status nvidia-dcgm"), ctx)
	require.Equal(t, 0, result.ExitCode)

	out := result.Output
	assert.Contains(t, out, "● nvidia-dcgm.service - NVIDIA DCGM service")
	assert.Contains(t, out, "Loaded: loaded (/lib/systemd/system/nvidia-dcgm.service; enabled; vendor preset: enabled)")
	assert.Contains(t, out, "Active: active (running) since")
	assert.Contains(t, out, "Main PID: 2104 (nv-hostengine)")
	assert.Contains(t, out, "CGroup: /system.slice/nvidia-dcgm.service")
}

func TestSystemctlStatusPoweredOff(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	require.NoError(t, store.SetNodePower("dgx-node01", false))
	s := NewSystemctlSimulator()

	result := s.Execute(parseFor(s, "systemctl status slurmd"), ctx)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Output, "Active: inactive (dead)")
	assert.NotContains(t, result.Output, "Main PID")
}

func TestSystemctlStatusUnknownUnit(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewSystemctlSimulator()

	result := s.Execute(parseFor(s, "systemctl status nginx"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Unit nginx could not be found.", result.Output)
}

func TestSystemctlListUnits(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewSystemctlSimulator()

	result := s.Execute(parseFor(s, "systemctl list-units --type service"), ctx)
	out := result.Output

	lines := strings.Split(out, "\n")
	assert.Contains(t, lines[0], "UNIT")
	assert.Contains(t, lines[0], "ACTIVE")
	assert.Contains(t, lines[0], "SUB")
	for _, unit := range ServiceUnits() {
		assert.Contains(t, out, unit)
	}
	assert.Contains(t, out, "LOAD   = Reflects whether the unit definition was properly loaded.")
	assert.Contains(t, out, "4 loaded units listed.")
}

func TestSystemctlBareInvocationListsUnits(t *testing.T) {
	ctx := testutils.Context(testutils.NewHealthyStore(1))
	s := NewSystemctlSimulator()

	result := s.Execute(parseFor(s, "systemctl"), ctx)
	assert.Contains(t, result.Output, "nvsm.service")
	assert.Contains(t, result.Output, "loaded units listed.")
}

func TestSystemctlIsActive(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	s := NewSystemctlSimulator()

	result := s.Execute(parseFor(s, "systemctl is-active nvidia-fabricmanager"), ctx)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "active", result.Output)

	require.NoError(t, store.SetNodePower("dgx-node01", false))
	result = s.Execute(parseFor(s, "systemctl is-active nvidia-fabricmanager"), ctx)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "inactive", result.Output)

	result = s.Execute(parseFor(s, "systemctl is-active"), ctx)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Too few arguments.", result.Output)
}

func TestSystemctlSlurmdActiveOnDrainedNode(t *testing.T) {
	store := testutils.NewHealthyStore(1)
	ctx := testutils.Context(store)
	s := NewSystemctlSimulator()

	require.NoError(t, store.SetSlurmState("dgx-node01", "drain"))
	result := s.Execute(parseFor(s, "systemctl is-active slurmd"), ctx)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "active", result.Output)
}

func TestServiceUnitsInventory(t *testing.T) {
	units := ServiceUnits()
	assert.Equal(t, []string{
		"nvidia-dcgm.service",
		"nvidia-fabricmanager.service",
		"nvsm.service",
		"slurmd.service",
	}, units)
}
