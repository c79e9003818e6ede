package portfolioservice

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/adapters/config"
	"hermes/internal/bus"
	"hermes/internal/domain/exchange"
	"hermes/internal/domain/portfolio"
	"hermes/internal/events"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Manager maintains the consolidated view of positions and balances
// reported by the per-exchange collaborators. Aggregates are always
// rebuilt from the per-exchange sub-ledgers, so a stale or duplicate
// snapshot from one exchange overwrites its own slot without
// corrupting the others.
type Manager struct {
	id     string
	cfg    config.PortfolioConfig
	bus    bus.Bus
	log    *logger.Logger
	source string

	mu          sync.Mutex
	initialized bool

	initialCapital decimal.Decimal
	initializedAt  time.Time

	equity         decimal.Decimal
	exchangeEquity map[string]decimal.Decimal
	peakEquity     decimal.Decimal

	dailyBaseline   decimal.Decimal
	weeklyBaseline  decimal.Decimal
	monthlyBaseline decimal.Decimal

	positions map[string]*portfolio.UnifiedPosition
	balances  map[string]*portfolio.UnifiedBalance
	trades    []portfolio.TradeRecord
	history   []portfolio.EquityPoint
	targets   []portfolio.AllocationTarget
}

// NewManager creates a portfolio manager publishing position updates on
// the given bus
func NewManager(id string, cfg config.PortfolioConfig, b bus.Bus, log *logger.Logger) *Manager {
	return &Manager{
		id:     id,
		cfg:    cfg,
		bus:    b,
		log:    log.With("component", "portfolio_manager"),
		source: "portfolio-manager",
	}
}

// Initialize sets the starting capital and resets all views
func (m *Manager) Initialize(startingEquity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initialized = true
	m.initialCapital = startingEquity
	m.initializedAt = time.Now()
	m.equity = startingEquity
	m.peakEquity = startingEquity
	m.dailyBaseline = startingEquity
	m.weeklyBaseline = startingEquity
	m.monthlyBaseline = startingEquity
	m.exchangeEquity = make(map[string]decimal.Decimal)
	m.positions = make(map[string]*portfolio.UnifiedPosition)
	m.balances = make(map[string]*portfolio.UnifiedBalance)
	m.trades = nil
	m.history = nil
	m.targets = nil

	m.log.Infow("Portfolio initialized", "portfolio", m.id, "equity", startingEquity)
}

func (m *Manager) ensureInitialized() error {
	if !m.initialized {
		return errors.Wrapf(errors.ErrNotInitialized, "portfolio %s", m.id)
	}
	return nil
}

// UpdateFromExchange ingests a full account snapshot from one exchange:
// its equity contribution, every balance and every position
func (m *Manager) UpdateFromExchange(ctx context.Context, snap exchange.AccountSnapshot) error {
	m.mu.Lock()
	if err := m.ensureInitialized(); err != nil {
		m.mu.Unlock()
		return err
	}

	m.exchangeEquity[snap.Exchange] = snap.Equity
	for _, b := range snap.Balances {
		m.applyBalance(b)
	}
	updated := make([]*events.Envelope, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		updated = append(updated, m.applyPosition(p))
	}

	m.recomputeEquity()
	m.recordEquityPoint()
	m.mu.Unlock()

	for _, ev := range updated {
		if err := m.bus.Publish(ctx, ev); err != nil {
			m.log.Errorw("Failed to publish position update", "error", err)
		}
	}
	return nil
}

// UpdateBalance ingests a single balance snapshot
func (m *Manager) UpdateBalance(snap exchange.BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return err
	}
	m.applyBalance(snap)
	m.refreshAllocations()
	return nil
}

// UpdatePosition ingests a single position snapshot and publishes a
// position-update event
func (m *Manager) UpdatePosition(ctx context.Context, snap exchange.PositionSnapshot) error {
	m.mu.Lock()
	if err := m.ensureInitialized(); err != nil {
		m.mu.Unlock()
		return err
	}
	ev := m.applyPosition(snap)
	m.mu.Unlock()

	if err := m.bus.Publish(ctx, ev); err != nil {
		m.log.Errorw("Failed to publish position update", "error", err)
	}
	return nil
}

// applyBalance overwrites the exchange slot of the asset's unified
// balance. Caller holds m.mu.
func (m *Manager) applyBalance(snap exchange.BalanceSnapshot) {
	b, ok := m.balances[snap.Asset]
	if !ok {
		b = portfolio.NewUnifiedBalance(snap.Asset)
		m.balances[snap.Asset] = b
	}
	b.Apply(snap)
}

// applyPosition overwrites the exchange/bot slots of the symbol's
// unified position and builds the update event. Caller holds m.mu.
func (m *Manager) applyPosition(snap exchange.PositionSnapshot) *events.Envelope {
	p, ok := m.positions[snap.Symbol]
	if !ok {
		p = portfolio.NewUnifiedPosition(snap.Symbol)
		m.positions[snap.Symbol] = p
	}
	p.Apply(snap)

	return events.New(events.DomainTrading, events.EntityPosition, events.ActionUpdated, m.source, events.PositionPayload{
		Symbol:        snap.Symbol,
		Exchange:      snap.Exchange,
		Bot:           snap.Bot,
		Side:          string(snap.Side),
		Quantity:      snap.Quantity,
		EntryPrice:    snap.EntryPrice,
		MarkPrice:     snap.MarkPrice,
		Leverage:      snap.Leverage,
		Margin:        snap.Margin,
		UnrealizedPnl: snap.UnrealizedPnl,
	}).Envelope()
}

// recomputeEquity rebuilds total equity from the per-exchange
// contributions. Caller holds m.mu.
func (m *Manager) recomputeEquity() {
	equity := decimal.Zero
	for _, e := range m.exchangeEquity {
		equity = equity.Add(e)
	}
	m.equity = equity
	if equity.GreaterThan(m.peakEquity) {
		m.peakEquity = equity
	}
	m.refreshAllocations()

	metrics.PortfolioEquity.WithLabelValues(m.id).Set(equity.InexactFloat64())
	metrics.PositionsOpen.WithLabelValues(m.id).Set(float64(len(m.positions)))
}

// refreshAllocations recomputes each asset's share of equity. Caller
// holds m.mu.
func (m *Manager) refreshAllocations() {
	for _, b := range m.balances {
		if m.equity.IsZero() {
			b.AllocationPercent = 0
			continue
		}
		b.AllocationPercent = b.TotalUSD.Div(m.equity).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
}

// recordEquityPoint appends a sample to the equity curve, bounded by
// the configured history limit. Caller holds m.mu.
func (m *Manager) recordEquityPoint() {
	drawdown := m.peakEquity.Sub(m.equity)
	ddPct := 0.0
	if !m.peakEquity.IsZero() {
		ddPct = drawdown.Div(m.peakEquity).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	positionValue := m.positionValue()
	m.history = append(m.history, portfolio.EquityPoint{
		Timestamp:     time.Now(),
		Equity:        m.equity,
		Cash:          m.equity.Sub(positionValue),
		PositionValue: positionValue,
		Drawdown:      drawdown,
		DrawdownPct:   ddPct,
	})
	if limit := m.cfg.EquityHistoryLimit; limit > 0 && len(m.history) > limit {
		m.history = m.history[len(m.history)-limit:]
	}

	metrics.PortfolioDrawdown.WithLabelValues(m.id).Set(ddPct)
}

// positionValue sums quantity x mark price over every exchange ledger.
// Caller holds m.mu.
func (m *Manager) positionValue() decimal.Decimal {
	v := decimal.Zero
	for _, p := range m.positions {
		for _, l := range p.ByExchange {
			v = v.Add(l.Quantity.Abs().Mul(l.MarkPrice))
		}
	}
	return v
}

// RecordTrade appends a realized trade result to the history
func (m *Manager) RecordTrade(symbol, exch, bot string, pnl decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return err
	}
	m.trades = append(m.trades, portfolio.NewTradeRecord(symbol, exch, bot, pnl))
	return nil
}

// GetPosition returns the unified position for a symbol
func (m *Manager) GetPosition(symbol string) (*portfolio.UnifiedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}
	p, ok := m.positions[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "position %s", symbol)
	}
	return p.Clone(), nil
}

// GetBalance returns the unified balance for an asset
func (m *Manager) GetBalance(asset string) (*portfolio.UnifiedBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}
	b, ok := m.balances[asset]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "balance %s", asset)
	}
	return b.Clone(), nil
}

// GetSummary builds the reporting snapshot on demand
func (m *Manager) GetSummary() (*portfolio.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}

	exposure := decimal.Zero
	upnl := decimal.Zero
	longNotional := decimal.Zero
	shortNotional := decimal.Zero
	levSum, levMax := 0.0, 0.0
	ledgers := 0

	for _, p := range m.positions {
		exposure = exposure.Add(p.TotalNotional)
		upnl = upnl.Add(p.TotalPnl)
		for _, l := range p.ByExchange {
			switch l.Side {
			case exchange.SideLong, exchange.SideBuy:
				longNotional = longNotional.Add(l.Notional)
			default:
				shortNotional = shortNotional.Add(l.Notional)
			}
			levSum += l.Leverage
			if l.Leverage > levMax {
				levMax = l.Leverage
			}
			ledgers++
		}
	}

	avgLev := 0.0
	if ledgers > 0 {
		avgLev = levSum / float64(ledgers)
	}
	hedge := 0.0
	if !longNotional.IsZero() {
		hedge = shortNotional.Div(longNotional).InexactFloat64()
	}
	exposurePct := 0.0
	if !m.equity.IsZero() {
		exposurePct = exposure.Div(m.equity).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	positionValue := m.positionValue()
	return &portfolio.Summary{
		Equity:        m.equity,
		Cash:          m.equity.Sub(positionValue),
		PositionValue: positionValue,
		UnrealizedPnl: upnl,
		DailyPnl:      m.equity.Sub(m.dailyBaseline),
		WeeklyPnl:     m.equity.Sub(m.weeklyBaseline),
		MonthlyPnl:    m.equity.Sub(m.monthlyBaseline),
		Exposure:      exposure,
		ExposurePct:   exposurePct,
		HedgeRatio:    hedge,
		AvgLeverage:   avgLev,
		MaxLeverage:   levMax,
		OpenPositions: len(m.positions),
		Performance:   m.performance(),
		GeneratedAt:   time.Now(),
	}, nil
}

// GetPerformanceMetrics derives statistics from the trade history and
// equity curve
func (m *Manager) GetPerformanceMetrics() (portfolio.PerformanceMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return portfolio.PerformanceMetrics{}, err
	}
	return m.performance(), nil
}

// EquityHistory returns a copy of the recorded equity curve
func (m *Manager) EquityHistory() ([]portfolio.EquityPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}
	out := make([]portfolio.EquityPoint, len(m.history))
	copy(out, m.history)
	return out, nil
}

// ResetDaily moves the daily PnL baseline to current equity
func (m *Manager) ResetDaily() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return err
	}
	m.dailyBaseline = m.equity
	return nil
}

// ResetWeekly moves the weekly PnL baseline to current equity
func (m *Manager) ResetWeekly() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return err
	}
	m.weeklyBaseline = m.equity
	return nil
}

// ResetMonthly moves the monthly PnL baseline to current equity
func (m *Manager) ResetMonthly() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return err
	}
	m.monthlyBaseline = m.equity
	return nil
}
