package faults

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dgxsim/pkg/simtypes"
)

func TestXIDTable(t *testing.T) {
	tests := []struct {
		code        int
		description string
		severity    simtypes.Severity
	}{
		{79, "GPU has fallen off the bus", simtypes.SeverityCritical},
		{48, "Double Bit ECC Error", simtypes.SeverityCritical},
		{74, "NVLink Error", simtypes.SeverityCritical},
		{13, "Graphics Engine Exception", simtypes.SeverityWarning},
		{31, "GPU memory page fault", simtypes.SeverityWarning},
		{63, "ECC page retirement or row remapping recording event", simtypes.SeverityWarning},
	}
	for _, tt := range tests {
		info := Info(tt.code)
		assert.Equal(t, tt.description, info.Description, "XID %d description", tt.code)
		assert.Equal(t, tt.severity, info.Severity, "XID %d severity", tt.code)
	}
}

func TestXIDUnknownCode(t *testing.T) {
	info := Info(999)
	assert.Equal(t, "Unknown Error (Xid 999)", info.Description)
	assert.Equal(t, simtypes.SeverityWarning, info.Severity)
}

func TestXIDFollowUps(t *testing.T) {
	lines := FollowUps(79, "PCI:0000:1b:00")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PCI:0000:1b:00")
	assert.Contains(t, lines[0], "fallen off the bus")

	assert.Empty(t, FollowUps(13, "PCI:0000:1b:00"), "codes without follow-ups yield none")
}

func TestTemperatureStatus(t *testing.T) {
	tests := []struct {
		tempC int
		want  simtypes.HealthStatus
	}{
		{34, simtypes.HealthOK},
		{79, simtypes.HealthOK},
		{80, simtypes.HealthWarning},
		{90, simtypes.HealthWarning},
		{91, simtypes.HealthCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TemperatureStatus(tt.tempC), "temp %d", tt.tempC)
	}
}

func TestECCStatus(t *testing.T) {
	ok := simtypes.ECCErrors{}
	assert.Equal(t, simtypes.HealthOK, ECCStatus(ok))

	highSingle := simtypes.ECCErrors{Aggregate: simtypes.ECCCounts{SingleBit: 101}}
	assert.Equal(t, simtypes.HealthWarning, ECCStatus(highSingle))

	boundarySingle := simtypes.ECCErrors{Aggregate: simtypes.ECCCounts{SingleBit: 100}}
	assert.Equal(t, simtypes.HealthOK, ECCStatus(boundarySingle), "100 single-bit is still OK")

	anyDouble := simtypes.ECCErrors{Aggregate: simtypes.ECCCounts{DoubleBit: 1}}
	assert.Equal(t, simtypes.HealthCritical, ECCStatus(anyDouble))
}

func TestNVLinkStatus(t *testing.T) {
	up := []simtypes.NVLinkConnection{{LinkID: 0, Status: simtypes.LinkUp}}
	assert.Equal(t, simtypes.HealthOK, NVLinkStatus(up))

	mixed := []simtypes.NVLinkConnection{
		{LinkID: 0, Status: simtypes.LinkUp},
		{LinkID: 1, Status: simtypes.LinkDown},
	}
	assert.Equal(t, simtypes.HealthCritical, NVLinkStatus(mixed))
}

func TestXIDStatus(t *testing.T) {
	assert.Equal(t, simtypes.HealthOK, XIDStatus(nil))
	assert.Equal(t, simtypes.HealthWarning, XIDStatus([]simtypes.XIDError{{Code: 13}}))
	assert.Equal(t, simtypes.HealthCritical, XIDStatus([]simtypes.XIDError{{Code: 13}, {Code: 79}}))
}

func TestGPUHealthCombines(t *testing.T) {
	g := &simtypes.GPU{Temperature: 40}
	assert.Equal(t, simtypes.HealthOK, GPUHealth(g))

	g.ThermalEvent = true
	assert.Equal(t, simtypes.HealthWarning, GPUHealth(g))

	g.XIDErrors = []simtypes.XIDError{{Code: 79}}
	assert.Equal(t, simtypes.HealthCritical, GPUHealth(g), "worst contributor wins")
}
