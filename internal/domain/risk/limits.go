package risk

import (
	"hermes/internal/adapters/config"
)

// LimitType identifies one portfolio risk limit
type LimitType string

const (
	LimitMaxDrawdown      LimitType = "MAX_DRAWDOWN"
	LimitMaxDailyLoss     LimitType = "MAX_DAILY_LOSS"
	LimitMaxPositionSize  LimitType = "MAX_POSITION_SIZE"
	LimitMaxLeverage      LimitType = "MAX_LEVERAGE"
	LimitMaxCorrelation   LimitType = "MAX_CORRELATION"
	LimitMaxExposure      LimitType = "MAX_EXPOSURE"
	LimitMaxOpenPositions LimitType = "MAX_OPEN_POSITIONS"
	LimitMaxOrdersPerMin  LimitType = "MAX_ORDERS_PER_MINUTE"
	LimitMinBalance       LimitType = "MIN_BALANCE"
)

// LimitUnit is the unit a limit value is expressed in
type LimitUnit string

const (
	UnitPercent  LimitUnit = "percent"
	UnitAbsolute LimitUnit = "absolute"
	UnitCount    LimitUnit = "count"
	UnitRatio    LimitUnit = "ratio"
)

// LimitScope is the entity a limit applies to
type LimitScope string

const (
	ScopePortfolio LimitScope = "portfolio"
	ScopeBot       LimitScope = "bot"
	ScopeSymbol    LimitScope = "symbol"
	ScopeExchange  LimitScope = "exchange"
)

// LimitAction is what happens when a limit is breached
type LimitAction string

const (
	ActionAlert    LimitAction = "alert"
	ActionBlock    LimitAction = "block"
	ActionReduce   LimitAction = "reduce"
	ActionCloseAll LimitAction = "close_all"
)

// Limit is a single configurable risk limit
type Limit struct {
	Type   LimitType
	Value  float64
	Unit   LimitUnit
	Scope  LimitScope
	Action LimitAction
}

// PortfolioLimits bundles one threshold per limit type plus the
// per-exchange and per-bot exposure caps
type PortfolioLimits struct {
	MaxDrawdownPct      float64 // percent of peak equity
	MaxDailyLossPct     float64 // percent of daily baseline equity
	MaxPositionSizePct  float64 // percent of equity per position
	MaxLeverage         float64 // gross notional / used margin
	MaxCorrelation      float64 // 0..1 directional concentration
	MaxExposurePct      float64 // percent of equity
	MaxOpenPositions    int
	MaxOrdersPerMinute  int
	MinBalancePct       float64 // reserve, percent of equity
	MaxExchangeExposure float64 // percent of equity per exchange
	MaxBotExposure      float64 // percent of equity per bot
}

// DefaultLimits returns the portfolio-wide defaults
func DefaultLimits() PortfolioLimits {
	return PortfolioLimits{
		MaxDrawdownPct:      15,
		MaxDailyLossPct:     5,
		MaxPositionSizePct:  10,
		MaxLeverage:         20,
		MaxCorrelation:      0.7,
		MaxExposurePct:      80,
		MaxOpenPositions:    20,
		MaxOrdersPerMinute:  30,
		MinBalancePct:       10,
		MaxExchangeExposure: 40,
		MaxBotExposure:      25,
	}
}

// LimitsFromConfig builds portfolio limits from environment configuration
func LimitsFromConfig(cfg config.RiskConfig) PortfolioLimits {
	return PortfolioLimits{
		MaxDrawdownPct:      cfg.MaxDrawdownPct,
		MaxDailyLossPct:     cfg.MaxDailyLossPct,
		MaxPositionSizePct:  cfg.MaxPositionSizePct,
		MaxLeverage:         cfg.MaxLeverage,
		MaxCorrelation:      cfg.MaxCorrelation,
		MaxExposurePct:      cfg.MaxExposurePct,
		MaxOpenPositions:    cfg.MaxOpenPositions,
		MaxOrdersPerMinute:  cfg.MaxOrdersPerMinute,
		MinBalancePct:       cfg.MinBalancePct,
		MaxExchangeExposure: cfg.MaxExchangeExposure,
		MaxBotExposure:      cfg.MaxBotExposure,
	}
}
