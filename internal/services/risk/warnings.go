package riskservice

import (
	"fmt"

	"hermes/internal/domain/risk"
)

// Fraction of a limit at which an early warning fires
const warnThreshold = 0.8

// evaluateWarnings re-checks every percentage limit against the freshly
// computed state and maintains the warning list. At most one
// unacknowledged warning per limit type: each evaluation that finds the
// condition met replaces the prior entry in its slot, so the latest
// values always win. Returns the replaced and appended warnings for
// publication after the lock is released. Caller holds the portfolio
// lock.
func (m *Manager) evaluateWarnings(s *risk.State) []*risk.Warning {
	lim := m.limits
	var out []*risk.Warning

	checks := []struct {
		typ      risk.LimitType
		current  float64
		limit    float64
		breachAt risk.Severity
		message  string
		advice   string
	}{
		{
			typ: risk.LimitMaxDrawdown, current: s.DrawdownPct, limit: lim.MaxDrawdownPct,
			breachAt: risk.SeverityCritical,
			message:  "drawdown %.1f%% against limit %.1f%%",
			advice:   "reduce position sizes or pause trading until equity recovers",
		},
		{
			typ: risk.LimitMaxDailyLoss, current: -s.DailyPnlPct, limit: lim.MaxDailyLossPct,
			breachAt: risk.SeverityCritical,
			message:  "daily loss %.1f%% against limit %.1f%%",
			advice:   "stop opening positions for the rest of the day",
		},
		{
			typ: risk.LimitMaxLeverage, current: s.Leverage, limit: lim.MaxLeverage,
			breachAt: risk.SeverityHigh,
			message:  "leverage %.1fx against limit %.1fx",
			advice:   "deleverage by closing or reducing positions",
		},
		{
			typ: risk.LimitMaxExposure, current: s.ExposurePct, limit: lim.MaxExposurePct,
			breachAt: risk.SeverityHigh,
			message:  "exposure %.1f%% of equity against limit %.1f%%",
			advice:   "close positions to bring exposure back under the cap",
		},
		{
			typ: risk.LimitMaxCorrelation, current: s.CorrelationRisk, limit: lim.MaxCorrelation,
			breachAt: risk.SeverityHigh,
			message:  "directional concentration %.2f against limit %.2f",
			advice:   "diversify position direction across strategies",
		},
	}

	for _, c := range checks {
		var severity risk.Severity
		switch {
		case c.current >= c.limit:
			severity = c.breachAt
		case c.current >= c.limit*warnThreshold:
			severity = risk.SeverityWarning
		default:
			continue
		}

		prev, slot := s.UnacknowledgedWarning(c.typ)
		w := risk.NewWarning(c.typ, severity, fmt.Sprintf(c.message, c.current, c.limit), c.current, c.limit, risk.ScopePortfolio)
		w.Recommendation = c.advice
		if prev != nil {
			s.Warnings[slot] = w
		} else {
			s.Warnings = append(s.Warnings, w)
		}
		out = append(out, w)
	}

	return out
}
