package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/domain/exchange"
)

// BalanceLedger is one exchange's slice of a unified balance
type BalanceLedger struct {
	Free      decimal.Decimal
	Locked    decimal.Decimal
	USDValue  decimal.Decimal
	UpdatedAt time.Time
}

// UnifiedBalance aggregates one asset across exchanges
type UnifiedBalance struct {
	Asset string

	ByExchange map[string]*BalanceLedger

	TotalFree   decimal.Decimal
	TotalLocked decimal.Decimal
	TotalUSD    decimal.Decimal

	// Share of total portfolio equity this asset represents, percent
	AllocationPercent float64

	UpdatedAt time.Time
}

// NewUnifiedBalance creates an empty unified balance for an asset
func NewUnifiedBalance(asset string) *UnifiedBalance {
	return &UnifiedBalance{
		Asset:      asset,
		ByExchange: make(map[string]*BalanceLedger),
	}
}

// Clone returns a deep copy safe to hand out while updates continue
func (b *UnifiedBalance) Clone() *UnifiedBalance {
	cp := *b
	cp.ByExchange = make(map[string]*BalanceLedger, len(b.ByExchange))
	for k, v := range b.ByExchange {
		lc := *v
		cp.ByExchange[k] = &lc
	}
	return &cp
}

// Apply overwrites the exchange slot from a snapshot and recomputes the
// totals. AllocationPercent is recomputed by the manager once equity is
// known.
func (b *UnifiedBalance) Apply(snap exchange.BalanceSnapshot) {
	b.ByExchange[snap.Exchange] = &BalanceLedger{
		Free:      snap.Free,
		Locked:    snap.Locked,
		USDValue:  snap.USDValue,
		UpdatedAt: time.Now(),
	}

	free := decimal.Zero
	locked := decimal.Zero
	usd := decimal.Zero
	for _, l := range b.ByExchange {
		free = free.Add(l.Free)
		locked = locked.Add(l.Locked)
		usd = usd.Add(l.USDValue)
	}
	b.TotalFree = free
	b.TotalLocked = locked
	b.TotalUSD = usd
	b.UpdatedAt = time.Now()
}
