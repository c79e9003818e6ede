package portfolioservice

import (
	"math"
	"time"

	"hermes/internal/domain/portfolio"

	"github.com/shopspring/decimal"
)

const hoursPerYear = 24 * 365

// performance derives the trade statistics and drawdown figures.
// Caller holds m.mu.
func (m *Manager) performance() portfolio.PerformanceMetrics {
	var perf portfolio.PerformanceMetrics

	pnls := make([]float64, len(m.trades))
	realized := decimal.Zero
	grossProfit, grossLoss := 0.0, 0.0
	winStreak, lossStreak := 0, 0

	for i, t := range m.trades {
		pnl := t.Pnl.InexactFloat64()
		pnls[i] = pnl
		realized = realized.Add(t.Pnl)

		if pnl > 0 {
			perf.WinningTrades++
			grossProfit += pnl
			winStreak++
			lossStreak = 0
		} else {
			perf.LosingTrades++
			grossLoss += -pnl
			lossStreak++
			winStreak = 0
		}
		if winStreak > perf.MaxConsecutiveWins {
			perf.MaxConsecutiveWins = winStreak
		}
		if lossStreak > perf.MaxConsecutiveLosses {
			perf.MaxConsecutiveLosses = lossStreak
		}
	}

	perf.TotalTrades = len(m.trades)
	perf.RealizedPnl = realized
	if perf.TotalTrades > 0 {
		perf.WinRate = float64(perf.WinningTrades) / float64(perf.TotalTrades) * 100
	}
	if grossLoss > 0 {
		perf.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		perf.ProfitFactor = math.Inf(1)
	}

	perf.SharpeRatio = meanOverStdev(pnls, pnls)
	perf.SortinoRatio = meanOverStdev(pnls, negatives(pnls))

	for _, h := range m.history {
		if h.Drawdown.GreaterThan(perf.MaxDrawdown) {
			perf.MaxDrawdown = h.Drawdown
		}
		if h.DrawdownPct > perf.MaxDrawdownPct {
			perf.MaxDrawdownPct = h.DrawdownPct
		}
	}

	perf.CalmarRatio = m.calmar(perf.MaxDrawdownPct)
	return perf
}

// calmar is the naive-annualized return since inception divided by the
// max drawdown percent. Caller holds m.mu.
func (m *Manager) calmar(maxDrawdownPct float64) float64 {
	if maxDrawdownPct == 0 || m.initialCapital.IsZero() {
		return 0
	}
	returnPct := m.equity.Sub(m.initialCapital).Div(m.initialCapital).Mul(decimal.NewFromInt(100)).InexactFloat64()

	hours := time.Since(m.initializedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	annualized := returnPct * hoursPerYear / hours
	return annualized / maxDrawdownPct
}

// meanOverStdev is mean(series) / stdev(spread), the shared shape of
// Sharpe (spread = whole series) and Sortino (spread = losses only)
func meanOverStdev(series, spread []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	sd := stdev(spread)
	if sd == 0 {
		return 0
	}
	return mean(series) / sd
}

func negatives(vals []float64) []float64 {
	var out []float64
	for _, v := range vals {
		if v < 0 {
			out = append(out, v)
		}
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stdev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mu := mean(vals)
	ss := 0.0
	for _, v := range vals {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
