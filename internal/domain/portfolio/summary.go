package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/google/uuid"
)

// TradeRecord is one realized trade result. The history is append-only;
// performance statistics are always derived from the full series.
type TradeRecord struct {
	ID         string
	Symbol     string
	Exchange   string
	Bot        string
	Pnl        decimal.Decimal
	RecordedAt time.Time
}

// NewTradeRecord creates a trade record with a fresh id
func NewTradeRecord(symbol, exch, bot string, pnl decimal.Decimal) TradeRecord {
	return TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Exchange:   exch,
		Bot:        bot,
		Pnl:        pnl,
		RecordedAt: time.Now(),
	}
}

// EquityPoint is one sample of the equity curve, recorded on every
// exchange update
type EquityPoint struct {
	Timestamp     time.Time
	Equity        decimal.Decimal
	Cash          decimal.Decimal
	PositionValue decimal.Decimal
	Drawdown      decimal.Decimal
	DrawdownPct   float64
}

// PerformanceMetrics is derived from the trade history and equity curve.
// Sharpe and Sortino are per-trade ratios without annualization.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int

	WinRate      float64 // percent
	ProfitFactor float64 // gross profit / |gross loss|
	SharpeRatio  float64
	SortinoRatio float64
	CalmarRatio  float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	RealizedPnl    decimal.Decimal
	MaxDrawdown    decimal.Decimal
	MaxDrawdownPct float64
}

// Summary is a read-only report snapshot, recomputed on demand and
// never stored
type Summary struct {
	Equity        decimal.Decimal
	Cash          decimal.Decimal
	PositionValue decimal.Decimal
	UnrealizedPnl decimal.Decimal

	DailyPnl   decimal.Decimal
	WeeklyPnl  decimal.Decimal
	MonthlyPnl decimal.Decimal

	Exposure    decimal.Decimal
	ExposurePct float64
	HedgeRatio  float64 // short notional / long notional, 0 with no longs
	AvgLeverage float64
	MaxLeverage float64

	OpenPositions int
	Performance   PerformanceMetrics

	GeneratedAt time.Time
}
