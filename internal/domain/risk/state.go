package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level buckets the composite risk score
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// LevelForScore maps a 0-100 score to its level
func LevelForScore(score float64) Level {
	switch {
	case score < 40:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// State is the full risk picture of one portfolio. It is recomputed
// wholesale on every update; peak equity and the period baselines are the
// only fields that carry over, and they only move through explicit
// period resets.
type State struct {
	PortfolioID string

	Equity           decimal.Decimal
	AvailableBalance decimal.Decimal
	UsedMargin       decimal.Decimal
	UnrealizedPnl    decimal.Decimal

	DailyPnl    decimal.Decimal
	DailyPnlPct float64

	PeakEquity  decimal.Decimal
	Drawdown    decimal.Decimal
	DrawdownPct float64 // percent of peak-ever equity

	Leverage    float64 // gross notional / used margin, 1 when margin is zero
	Exposure    decimal.Decimal
	ExposurePct float64 // percent of equity

	// Gross notional per exchange and per bot, feeding the exposure caps
	ExchangeExposure map[string]decimal.Decimal
	BotExposure      map[string]decimal.Decimal

	OpenPositions int
	OpenOrders    int

	CorrelationRisk float64 // 0..1 directional concentration

	RiskScore float64
	RiskLevel Level

	Warnings []*Warning

	// Baseline equities for period PnL; reset only by the explicit
	// period-reset calls
	DailyBaseline   decimal.Decimal
	WeeklyBaseline  decimal.Decimal
	MonthlyBaseline decimal.Decimal

	UpdatedAt time.Time
}

// Clone returns a deep copy safe for callers to inspect without holding
// the portfolio lock
func (s *State) Clone() *State {
	cp := *s

	cp.ExchangeExposure = make(map[string]decimal.Decimal, len(s.ExchangeExposure))
	for k, v := range s.ExchangeExposure {
		cp.ExchangeExposure[k] = v
	}
	cp.BotExposure = make(map[string]decimal.Decimal, len(s.BotExposure))
	for k, v := range s.BotExposure {
		cp.BotExposure[k] = v
	}

	cp.Warnings = make([]*Warning, len(s.Warnings))
	for i, w := range s.Warnings {
		wc := *w
		cp.Warnings[i] = &wc
	}
	return &cp
}

// UnacknowledgedWarning returns the active warning of the given type, if any
func (s *State) UnacknowledgedWarning(t LimitType) (*Warning, int) {
	for i, w := range s.Warnings {
		if w.Type == t && !w.Acknowledged {
			return w, i
		}
	}
	return nil, -1
}

// UnacknowledgedCount counts active warnings
func (s *State) UnacknowledgedCount() int {
	n := 0
	for _, w := range s.Warnings {
		if !w.Acknowledged {
			n++
		}
	}
	return n
}
