package riskservice

import (
	"github.com/shopspring/decimal"

	"hermes/internal/domain/exchange"
	"hermes/internal/domain/risk"
)

// Component weights of the composite 0-100 risk score. Each component
// saturates at its weight when the metric hits its limit.
const (
	weightDrawdown    = 30.0
	weightDailyLoss   = 25.0
	weightLeverage    = 20.0
	weightExposure    = 15.0
	weightCorrelation = 10.0
)

// computeScore maps the current state onto a 0-100 score. Every
// component is the ratio of the metric to its limit, scaled by the
// component weight and clamped there.
func computeScore(lim risk.PortfolioLimits, s *risk.State) float64 {
	score := 0.0
	score += clamp(s.DrawdownPct/lim.MaxDrawdownPct*weightDrawdown, weightDrawdown)
	if s.DailyPnlPct < 0 {
		score += clamp(-s.DailyPnlPct/lim.MaxDailyLossPct*weightDailyLoss, weightDailyLoss)
	}
	score += clamp(s.Leverage/lim.MaxLeverage*weightLeverage, weightLeverage)
	score += clamp(s.ExposurePct/lim.MaxExposurePct*weightExposure, weightExposure)
	score += clamp(s.CorrelationRisk*weightCorrelation, weightCorrelation)

	if score > 100 {
		score = 100
	}
	return score
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// correlationRisk measures directional concentration: the share of
// positions on the majority side. Zero with fewer than two positions.
func correlationRisk(positions []exchange.PositionSnapshot) float64 {
	if len(positions) < 2 {
		return 0
	}

	long, short := 0, 0
	for _, p := range positions {
		switch p.Side {
		case exchange.SideLong, exchange.SideBuy:
			long++
		default:
			short++
		}
	}

	majority := long
	if short > majority {
		majority = short
	}
	return float64(majority) / float64(len(positions))
}

// pctOf returns part/whole as a percentage, 0 when whole is zero
func pctOf(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
