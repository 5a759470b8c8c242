package scorer

import "github.com/sells-group/lead-scorer/internal/model"

// HasSufficientData reports whether a primary-source record carries enough
// signal to produce a meaningful score. Any single positive metric is
// enough; the check is deliberately permissive to avoid unnecessary
// fallback lookups. Failed records are never sufficient.
func HasSufficientData(rec model.Record) bool {
	if !rec.Success {
		return false
	}
	m := rec.Metrics
	return m.YearlyRevenue > 0 ||
		m.EmployeeCount > 0 ||
		m.MonthlyVisits > 0 ||
		m.PlatformRank > 0 ||
		m.ProductCount > 0 ||
		m.TotalFunding > 0
}

// NeedsFallback reports whether a primary record should be retried against
// the secondary source. It is the single fallback trigger, shared by the
// orchestrator and any pre-flight dry run.
func NeedsFallback(rec model.Record) bool {
	return !HasSufficientData(rec)
}
