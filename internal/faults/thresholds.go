package faults

import "dgxsim/pkg/simtypes"

// Shared severity thresholds. nvsm health, lspci annotations, and the
// bug report recommendations all classify through these; the numbers
// must never diverge between tools.
const (
	TempCriticalC     = 90  // exclusive: >90 is Critical
	TempWarningC      = 80  // inclusive: 80..90 is Warning
	ECCSingleBitLimit = 100 // exclusive: >100 single-bit is Warning
)

// TemperatureStatus classifies a GPU temperature reading.
func TemperatureStatus(tempC int) simtypes.HealthStatus {
	switch {
	case tempC > TempCriticalC:
		return simtypes.HealthCritical
	case tempC >= TempWarningC:
		return simtypes.HealthWarning
	default:
		return simtypes.HealthOK
	}
}

// ECCStatus classifies aggregate ECC counters. Any double-bit error is
// Critical; a high single-bit rate is Warning.
func ECCStatus(ecc simtypes.ECCErrors) simtypes.HealthStatus {
	if ecc.Aggregate.DoubleBit > 0 {
		return simtypes.HealthCritical
	}
	if ecc.Aggregate.SingleBit > ECCSingleBitLimit {
		return simtypes.HealthWarning
	}
	return simtypes.HealthOK
}

// NVLinkStatus classifies a GPU's NVLink set: any Down link is
// Critical for that GPU's link checks.
func NVLinkStatus(links []simtypes.NVLinkConnection) simtypes.HealthStatus {
	for _, l := range links {
		if l.Status == simtypes.LinkDown {
			return simtypes.HealthCritical
		}
	}
	return simtypes.HealthOK
}

// XIDStatus classifies a GPU's recorded XID history: the worst
// recorded severity wins.
func XIDStatus(errs []simtypes.XIDError) simtypes.HealthStatus {
	status := simtypes.HealthOK
	for _, e := range errs {
		if Info(e.Code).Severity == simtypes.SeverityCritical {
			return simtypes.HealthCritical
		}
		status = simtypes.HealthWarning
	}
	return status
}

// Worst returns the more severe of two statuses.
func Worst(a, b simtypes.HealthStatus) simtypes.HealthStatus {
	if a == simtypes.HealthCritical || b == simtypes.HealthCritical {
		return simtypes.HealthCritical
	}
	if a == simtypes.HealthWarning || b == simtypes.HealthWarning {
		return simtypes.HealthWarning
	}
	return simtypes.HealthOK
}

// GPUHealth derives a GPU's overall health from its fault fields.
// This is the only place GPU health is computed.
func GPUHealth(g *simtypes.GPU) simtypes.HealthStatus {
	status := TemperatureStatus(g.Temperature)
	status = Worst(status, ECCStatus(g.ECCErrors))
	status = Worst(status, NVLinkStatus(g.NVLinks))
	status = Worst(status, XIDStatus(g.XIDErrors))
	if g.ThermalEvent {
		status = Worst(status, simtypes.HealthWarning)
	}
	return status
}
