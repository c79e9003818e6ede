package riskservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hermes/internal/bus"
	"hermes/internal/domain/exchange"
	"hermes/internal/domain/risk"
	"hermes/internal/events"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// rate-limit window for the orders-per-minute check
const orderRateWindow = time.Minute

// OrderRequest describes a proposed order submitted for a risk check
type OrderRequest struct {
	Bot      string
	Symbol   string
	Exchange string
	Side     exchange.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Leverage float64
}

// Notional returns quantity x price x leverage
func (r OrderRequest) Notional() decimal.Decimal {
	lev := r.Leverage
	if lev <= 0 {
		lev = 1
	}
	return r.Quantity.Abs().Mul(r.Price).Mul(decimal.NewFromFloat(lev))
}

// OrderCheck is the structured result of a risk check. A rejection
// carries the first violated reason; it is never an error.
type OrderCheck struct {
	Allowed bool
	Reason  string
	Warning string
}

// Manager gates orders against portfolio limits and derives a composite
// risk score. It holds one mutable state per portfolio; all state
// transitions per portfolio are serialized behind that portfolio's lock.
type Manager struct {
	limits risk.PortfolioLimits
	bus    bus.Bus
	log    *logger.Logger
	source string

	mu         sync.RWMutex
	portfolios map[string]*portfolioRisk
}

type portfolioRisk struct {
	mu         sync.Mutex
	state      *risk.State
	orderTimes []time.Time
}

// NewManager creates a risk manager publishing alerts on the given bus
func NewManager(limits risk.PortfolioLimits, b bus.Bus, log *logger.Logger) *Manager {
	return &Manager{
		limits:     limits,
		bus:        b,
		log:        log.With("component", "risk_manager"),
		source:     "risk-manager",
		portfolios: make(map[string]*portfolioRisk),
	}
}

// Initialize creates the risk state for a portfolio. Equity, peak equity
// and all period baselines start at the given equity.
func (m *Manager) Initialize(portfolioID string, startingEquity decimal.Decimal) *risk.State {
	state := &risk.State{
		PortfolioID:      portfolioID,
		Equity:           startingEquity,
		AvailableBalance: startingEquity,
		PeakEquity:       startingEquity,
		DailyBaseline:    startingEquity,
		WeeklyBaseline:   startingEquity,
		MonthlyBaseline:  startingEquity,
		ExchangeExposure: make(map[string]decimal.Decimal),
		BotExposure:      make(map[string]decimal.Decimal),
		Leverage:         1,
		RiskLevel:        risk.LevelLow,
		UpdatedAt:        time.Now(),
	}

	m.mu.Lock()
	m.portfolios[portfolioID] = &portfolioRisk{state: state}
	m.mu.Unlock()

	m.log.Infow("Risk state initialized",
		"portfolio", portfolioID,
		"equity", startingEquity,
	)
	return state.Clone()
}

func (m *Manager) get(portfolioID string) (*portfolioRisk, error) {
	m.mu.RLock()
	p, ok := m.portfolios[portfolioID]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotInitialized, "portfolio %s", portfolioID)
	}
	return p, nil
}

// UpdateState is the sole place risk numbers are recomputed. The whole
// state is derived from the inputs; only peak equity and the period
// baselines carry over.
func (m *Manager) UpdateState(
	ctx context.Context,
	portfolioID string,
	equity decimal.Decimal,
	availableBalance decimal.Decimal,
	positions []exchange.PositionSnapshot,
	openOrders int,
) (*risk.State, error) {
	p, err := m.get(portfolioID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	s := p.state

	exposure := decimal.Zero
	margin := decimal.Zero
	upnl := decimal.Zero
	exchExp := make(map[string]decimal.Decimal)
	botExp := make(map[string]decimal.Decimal)

	for _, pos := range positions {
		n := pos.Notional()
		exposure = exposure.Add(n)
		margin = margin.Add(pos.Margin)
		upnl = upnl.Add(pos.UnrealizedPnl)
		exchExp[pos.Exchange] = exchExp[pos.Exchange].Add(n)
		if pos.Bot != "" {
			botExp[pos.Bot] = botExp[pos.Bot].Add(n)
		}
	}

	s.Equity = equity
	s.AvailableBalance = availableBalance
	s.UsedMargin = margin
	s.UnrealizedPnl = upnl
	s.Exposure = exposure
	s.ExchangeExposure = exchExp
	s.BotExposure = botExp
	s.OpenPositions = len(positions)
	s.OpenOrders = openOrders

	// Peak equity is monotonic non-decreasing
	if equity.GreaterThan(s.PeakEquity) {
		s.PeakEquity = equity
	}
	s.Drawdown = s.PeakEquity.Sub(equity)
	s.DrawdownPct = pctOf(s.Drawdown, s.PeakEquity)

	s.DailyPnl = equity.Sub(s.DailyBaseline)
	s.DailyPnlPct = pctOf(s.DailyPnl, s.DailyBaseline)

	if margin.IsZero() {
		s.Leverage = 1
	} else {
		s.Leverage = exposure.Div(margin).InexactFloat64()
	}
	s.ExposurePct = pctOf(exposure, equity)

	s.CorrelationRisk = correlationRisk(positions)

	s.RiskScore = computeScore(m.limits, s)
	s.RiskLevel = risk.LevelForScore(s.RiskScore)
	s.UpdatedAt = time.Now()

	alerts := m.evaluateWarnings(s)
	snapshot := s.Clone()
	p.mu.Unlock()

	metrics.RiskScore.WithLabelValues(portfolioID).Set(snapshot.RiskScore)
	metrics.RiskWarnings.WithLabelValues(portfolioID).Set(float64(snapshot.UnacknowledgedCount()))
	metrics.PositionsOpen.WithLabelValues(portfolioID).Set(float64(snapshot.OpenPositions))

	m.publishAlerts(ctx, portfolioID, alerts)
	return snapshot, nil
}

// CheckOrderAllowed runs the ordered, short-circuiting limit checks and
// returns the first violated reason. The check order is a contract:
// callers branch on the reason they see.
func (m *Manager) CheckOrderAllowed(ctx context.Context, portfolioID string, req OrderRequest) (OrderCheck, error) {
	p, err := m.get(portfolioID)
	if err != nil {
		return OrderCheck{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	check := m.runOrderChecks(p, s, req)

	if check.Allowed {
		p.orderTimes = append(p.orderTimes, time.Now())
		if s.RiskLevel == risk.LevelHigh || s.RiskLevel == risk.LevelCritical {
			check.Warning = fmt.Sprintf("risk level is %s (score %.0f), consider reducing size", s.RiskLevel, s.RiskScore)
		}
		metrics.OrdersChecked.WithLabelValues(portfolioID, "allowed").Inc()
	} else {
		metrics.OrdersChecked.WithLabelValues(portfolioID, "blocked").Inc()
		metrics.OrdersBlocked.WithLabelValues(portfolioID, blockReasonLabel(check.Reason)).Inc()
		m.log.Warnw("Order blocked",
			"portfolio", portfolioID,
			"bot", req.Bot,
			"symbol", req.Symbol,
			"reason", check.Reason,
		)
	}
	return check, nil
}

// runOrderChecks holds the fixed check sequence. Caller holds p.mu.
func (m *Manager) runOrderChecks(p *portfolioRisk, s *risk.State, req OrderRequest) OrderCheck {
	lim := m.limits

	// 1. Order rate: sliding 60-second window pruned on each call
	cutoff := time.Now().Add(-orderRateWindow)
	kept := p.orderTimes[:0]
	for _, t := range p.orderTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.orderTimes = kept
	if len(p.orderTimes) >= lim.MaxOrdersPerMinute {
		return blocked(fmt.Sprintf("order rate limit: %d orders in the last minute (max %d)",
			len(p.orderTimes), lim.MaxOrdersPerMinute))
	}

	// 2. Open position count
	if s.OpenPositions >= lim.MaxOpenPositions {
		return blocked(fmt.Sprintf("max open positions reached: %d (max %d)",
			s.OpenPositions, lim.MaxOpenPositions))
	}

	// 3. Requested leverage
	if req.Leverage > lim.MaxLeverage {
		return blocked(fmt.Sprintf("leverage %.1fx exceeds max %.1fx",
			req.Leverage, lim.MaxLeverage))
	}

	notional := req.Notional()

	// 4. Position size as percent of equity
	sizePct := pctOf(notional, s.Equity)
	if sizePct > lim.MaxPositionSizePct {
		return blocked(fmt.Sprintf("position size %.1f%% of equity exceeds max %.1f%%",
			sizePct, lim.MaxPositionSizePct))
	}

	// 5. Projected total exposure
	projectedPct := pctOf(s.Exposure.Add(notional), s.Equity)
	if projectedPct > lim.MaxExposurePct {
		return blocked(fmt.Sprintf("projected exposure %.1f%% exceeds max %.1f%%",
			projectedPct, lim.MaxExposurePct))
	}

	// 6. Balance reserve: margin for this order must leave the reserve intact
	requiredMargin := req.Quantity.Abs().Mul(req.Price)
	reserve := s.Equity.Mul(decimal.NewFromFloat(lim.MinBalancePct / 100))
	if s.AvailableBalance.Sub(requiredMargin).LessThan(reserve) {
		return blocked(fmt.Sprintf("insufficient balance: %s available, %s margin required, %s reserve",
			s.AvailableBalance.StringFixed(2), requiredMargin.StringFixed(2), reserve.StringFixed(2)))
	}

	// 7. Current drawdown
	if s.DrawdownPct > lim.MaxDrawdownPct {
		return blocked(fmt.Sprintf("drawdown %.1f%% exceeds limit %.1f%%",
			s.DrawdownPct, lim.MaxDrawdownPct))
	}

	// 8. Current daily loss
	if s.DailyPnlPct < -lim.MaxDailyLossPct {
		return blocked(fmt.Sprintf("daily loss %.1f%% exceeds limit %.1f%%",
			-s.DailyPnlPct, lim.MaxDailyLossPct))
	}

	// 9. Projected per-exchange exposure
	exchPct := pctOf(s.ExchangeExposure[req.Exchange].Add(notional), s.Equity)
	if exchPct > lim.MaxExchangeExposure {
		return blocked(fmt.Sprintf("exchange %s exposure %.1f%% exceeds cap %.1f%%",
			req.Exchange, exchPct, lim.MaxExchangeExposure))
	}

	// 10. Projected per-bot exposure
	botPct := pctOf(s.BotExposure[req.Bot].Add(notional), s.Equity)
	if botPct > lim.MaxBotExposure {
		return blocked(fmt.Sprintf("bot %s exposure %.1f%% exceeds cap %.1f%%",
			req.Bot, botPct, lim.MaxBotExposure))
	}

	return OrderCheck{Allowed: true}
}

func blocked(reason string) OrderCheck {
	return OrderCheck{Allowed: false, Reason: reason}
}

// blockReasonLabel collapses a human-readable reason into a low-cardinality
// metric label
func blockReasonLabel(reason string) string {
	for prefix, label := range map[string]string{
		"order rate":           "rate_limit",
		"max open positions":   "open_positions",
		"leverage":             "leverage",
		"position size":        "position_size",
		"projected exposure":   "exposure",
		"insufficient balance": "balance",
		"drawdown":             "drawdown",
		"daily loss":           "daily_loss",
		"exchange":             "exchange_exposure",
		"bot":                  "bot_exposure",
	} {
		if len(reason) >= len(prefix) && reason[:len(prefix)] == prefix {
			return label
		}
	}
	return "other"
}

// AcknowledgeWarning marks a warning handled so a later breach of the
// same type creates a fresh entry
func (m *Manager) AcknowledgeWarning(portfolioID, warningID string) error {
	p, err := m.get(portfolioID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.state.Warnings {
		if w.ID == warningID {
			w.Acknowledged = true
			return nil
		}
	}
	return errors.Wrapf(errors.ErrWarningNotFound, "%s", warningID)
}

// ResetDaily moves the daily baseline to current equity and clears
// unacknowledged non-critical warnings
func (m *Manager) ResetDaily(portfolioID string) error {
	p, err := m.get(portfolioID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	s.DailyBaseline = s.Equity
	s.DailyPnl = decimal.Zero
	s.DailyPnlPct = 0

	kept := s.Warnings[:0]
	for _, w := range s.Warnings {
		if w.Acknowledged || w.Severity == risk.SeverityCritical {
			kept = append(kept, w)
		}
	}
	s.Warnings = kept

	m.log.Infow("Daily risk baseline reset", "portfolio", portfolioID, "equity", s.Equity)
	return nil
}

// ResetWeekly moves the weekly baseline to current equity
func (m *Manager) ResetWeekly(portfolioID string) error {
	p, err := m.get(portfolioID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.state.WeeklyBaseline = p.state.Equity
	p.mu.Unlock()
	return nil
}

// ResetMonthly moves the monthly baseline to current equity
func (m *Manager) ResetMonthly(portfolioID string) error {
	p, err := m.get(portfolioID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.state.MonthlyBaseline = p.state.Equity
	p.mu.Unlock()
	return nil
}

// GetState returns a deep copy of the current risk state
func (m *Manager) GetState(portfolioID string) (*risk.State, error) {
	p, err := m.get(portfolioID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone(), nil
}

// publishAlerts emits one risk.alert.<severity> event per new or
// replaced warning. Called outside the portfolio lock so bus handlers
// can call back into the manager.
func (m *Manager) publishAlerts(ctx context.Context, portfolioID string, warnings []*risk.Warning) {
	for _, w := range warnings {
		priority := events.PriorityHigh
		if w.Severity == risk.SeverityCritical {
			priority = events.PriorityCritical
		}

		ev := events.New(events.DomainRisk, events.EntityAlert, events.Action(w.Severity), m.source, events.RiskAlertPayload{
			WarningID:      w.ID,
			PortfolioID:    portfolioID,
			LimitType:      string(w.Type),
			Severity:       string(w.Severity),
			Message:        w.Message,
			CurrentValue:   w.CurrentValue,
			LimitValue:     w.LimitValue,
			Scope:          string(w.Scope),
			Recommendation: w.Recommendation,
		}).WithPriority(priority)

		if err := m.bus.Publish(ctx, ev.Envelope()); err != nil {
			m.log.Errorw("Failed to publish risk alert", "error", err, "type", w.Type)
		}
	}
}
