package events

import (
	"github.com/shopspring/decimal"
)

// Closed set of payload shapes, one per domain-entity pair. Handlers decode
// with PayloadAs to get a concrete type instead of an open map.

// SignalPayload carries a strategy signal (trading.signal.*)
type SignalPayload struct {
	Symbol     string             `json:"symbol"`
	Exchange   string             `json:"exchange"`
	Direction  string             `json:"direction"` // long | short | flat
	Strength   float64            `json:"strength"`  // 0..1
	Price      decimal.Decimal    `json:"price"`
	Strategy   string             `json:"strategy"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// OrderPayload carries an order lifecycle update (trading.order.*)
type OrderPayload struct {
	OrderID   string          `json:"orderId"`
	Symbol    string          `json:"symbol"`
	Exchange  string          `json:"exchange"`
	Side      string          `json:"side"` // buy | sell
	Type      string          `json:"type"` // market | limit
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Leverage  float64         `json:"leverage"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

// PositionPayload carries a position snapshot (trading.position.*)
type PositionPayload struct {
	Symbol        string          `json:"symbol"`
	Exchange      string          `json:"exchange"`
	Bot           string          `json:"bot"`
	Side          string          `json:"side"` // long | short
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	Leverage      float64         `json:"leverage"`
	Margin        decimal.Decimal `json:"margin"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
}

// BalancePayload carries a balance snapshot (trading.balance.*)
type BalancePayload struct {
	Asset    string          `json:"asset"`
	Exchange string          `json:"exchange"`
	Free     decimal.Decimal `json:"free"`
	Locked   decimal.Decimal `json:"locked"`
	USDValue decimal.Decimal `json:"usdValue"`
}

// RiskAlertPayload carries a risk warning (risk.alert.*)
type RiskAlertPayload struct {
	WarningID      string  `json:"warningId"`
	PortfolioID    string  `json:"portfolioId"`
	LimitType      string  `json:"limitType"`
	Severity       string  `json:"severity"`
	Message        string  `json:"message"`
	CurrentValue   float64 `json:"currentValue"`
	LimitValue     float64 `json:"limitValue"`
	Scope          string  `json:"scope"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// BotLifecyclePayload carries bot start/stop/error events (system.bot.*)
type BotLifecyclePayload struct {
	BotID    string `json:"botId"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Detail   string `json:"detail,omitempty"`
}

// TickerPayload carries a market ticker (market.ticker.*)
type TickerPayload struct {
	Symbol   string          `json:"symbol"`
	Exchange string          `json:"exchange"`
	Bid      decimal.Decimal `json:"bid"`
	Ask      decimal.Decimal `json:"ask"`
	Last     decimal.Decimal `json:"last"`
	Volume   decimal.Decimal `json:"volume"`
}
