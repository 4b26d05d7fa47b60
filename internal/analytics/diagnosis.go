package analytics

import "contador/internal/core"

// Fixed thresholds, in percentage points.
const (
	ticketRiseThreshold   = 5.0
	ticketVolumeTolerance = 2.0
	consumptionThreshold  = 10.0
	reductionThreshold    = -5.0
)

// Diagnose labels a metric's variance pattern. Rules are evaluated in
// order and the first match wins; DiagnosisNone when either variance is
// absent.
func Diagnose(m core.CategoryMetric) core.Diagnosis {
	if m.VarianceTotalPct == nil || m.VarianceTicketPct == nil {
		return core.DiagnosisNone
	}
	vt, vtk := *m.VarianceTotalPct, *m.VarianceTicketPct

	switch {
	case vtk > ticketRiseThreshold && vt <= vtk+ticketVolumeTolerance:
		return core.DiagnosisPriceIncrease
	case vt > consumptionThreshold && vtk < ticketRiseThreshold:
		return core.DiagnosisIncreasedConsumption
	case vt < reductionThreshold:
		return core.DiagnosisReducedSpending
	default:
		return core.DiagnosisNoChange
	}
}
