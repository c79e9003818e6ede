package exchange

import (
	"github.com/shopspring/decimal"
)

// Data shapes reported by the per-exchange collaborators. The core never
// talks to an exchange itself; these snapshots arrive from the REST and
// WebSocket clients that live outside this repository.

// Side is the direction of a position or order
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
)

// PositionSnapshot is a point-in-time view of one position on one
// exchange, tagged with the bot that owns it
type PositionSnapshot struct {
	Symbol        string
	Exchange      string
	Bot           string
	Side          Side
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	Leverage      float64
	Margin        decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// Notional returns the economic size of the position:
// quantity x price x leverage
func (p PositionSnapshot) Notional() decimal.Decimal {
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	return p.Quantity.Abs().Mul(p.MarkPrice).Mul(decimal.NewFromFloat(lev))
}

// BalanceSnapshot is a point-in-time view of one asset on one exchange
type BalanceSnapshot struct {
	Asset    string
	Exchange string
	Free     decimal.Decimal
	Locked   decimal.Decimal
	USDValue decimal.Decimal
}

// AccountSnapshot is the full account view one exchange reports
type AccountSnapshot struct {
	Exchange  string
	Equity    decimal.Decimal
	Balances  []BalanceSnapshot
	Positions []PositionSnapshot
}
