package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/domain/exchange"
)

// PositionLedger is one exchange's (or one bot's) slice of a unified
// position. A fresh snapshot overwrites its own slot only; the
// portfolio-level aggregates are recomputed from all slots afterwards.
type PositionLedger struct {
	Side          exchange.Side
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	Notional      decimal.Decimal
	Leverage      float64
	Margin        decimal.Decimal
	UnrealizedPnl decimal.Decimal
	UpdatedAt     time.Time
}

// UnifiedPosition aggregates one symbol across every exchange and bot
// that reports it
type UnifiedPosition struct {
	Symbol string

	ByExchange map[string]*PositionLedger
	ByBot      map[string]*PositionLedger

	TotalQuantity decimal.Decimal
	AvgEntryPrice decimal.Decimal
	TotalNotional decimal.Decimal
	TotalMargin   decimal.Decimal
	TotalPnl      decimal.Decimal

	UpdatedAt time.Time
}

// NewUnifiedPosition creates an empty unified position for a symbol
func NewUnifiedPosition(symbol string) *UnifiedPosition {
	return &UnifiedPosition{
		Symbol:     symbol,
		ByExchange: make(map[string]*PositionLedger),
		ByBot:      make(map[string]*PositionLedger),
	}
}

// Apply overwrites the exchange and bot slots from a snapshot and
// recomputes the aggregates
func (p *UnifiedPosition) Apply(snap exchange.PositionSnapshot) {
	ledger := &PositionLedger{
		Side:          snap.Side,
		Quantity:      snap.Quantity,
		EntryPrice:    snap.EntryPrice,
		MarkPrice:     snap.MarkPrice,
		Notional:      snap.Notional(),
		Leverage:      snap.Leverage,
		Margin:        snap.Margin,
		UnrealizedPnl: snap.UnrealizedPnl,
		UpdatedAt:     time.Now(),
	}
	p.ByExchange[snap.Exchange] = ledger
	if snap.Bot != "" {
		botCopy := *ledger
		p.ByBot[snap.Bot] = &botCopy
	}
	p.recompute()
}

// Clone returns a deep copy safe to hand out while updates continue
func (p *UnifiedPosition) Clone() *UnifiedPosition {
	cp := *p
	cp.ByExchange = make(map[string]*PositionLedger, len(p.ByExchange))
	for k, v := range p.ByExchange {
		lc := *v
		cp.ByExchange[k] = &lc
	}
	cp.ByBot = make(map[string]*PositionLedger, len(p.ByBot))
	for k, v := range p.ByBot {
		lc := *v
		cp.ByBot[k] = &lc
	}
	return &cp
}

// recompute rebuilds every aggregate from the per-exchange ledgers.
// Average entry price is the notional-weighted mean:
// sum(entry x qty) / sum(qty).
func (p *UnifiedPosition) recompute() {
	qty := decimal.Zero
	weighted := decimal.Zero
	notional := decimal.Zero
	margin := decimal.Zero
	pnl := decimal.Zero

	for _, l := range p.ByExchange {
		qty = qty.Add(l.Quantity.Abs())
		weighted = weighted.Add(l.EntryPrice.Mul(l.Quantity.Abs()))
		notional = notional.Add(l.Notional)
		margin = margin.Add(l.Margin)
		pnl = pnl.Add(l.UnrealizedPnl)
	}

	p.TotalQuantity = qty
	if qty.IsZero() {
		p.AvgEntryPrice = decimal.Zero
	} else {
		p.AvgEntryPrice = weighted.Div(qty)
	}
	p.TotalNotional = notional
	p.TotalMargin = margin
	p.TotalPnl = pnl
	p.UpdatedAt = time.Now()
}
