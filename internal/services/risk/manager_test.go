package riskservice

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/bus"
	"hermes/internal/domain/exchange"
	"hermes/internal/domain/risk"
	"hermes/internal/events"
	"hermes/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus(logger.Get())
	require.NoError(t, b.Connect(context.Background()))
	return NewManager(risk.DefaultLimits(), b, logger.Get()), b
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func position(symbol, exch, bot string, side exchange.Side, qty, price, margin float64) exchange.PositionSnapshot {
	return exchange.PositionSnapshot{
		Symbol:    symbol,
		Exchange:  exch,
		Bot:       bot,
		Side:      side,
		Quantity:  dec(qty),
		MarkPrice: dec(price),
		Leverage:  1,
		Margin:    dec(margin),
	}
}

func TestManager_Initialize(t *testing.T) {
	m, _ := newTestManager(t)

	s := m.Initialize("main", dec(10000))

	assert.Equal(t, "main", s.PortfolioID)
	assert.True(t, s.Equity.Equal(dec(10000)))
	assert.True(t, s.PeakEquity.Equal(dec(10000)))
	assert.True(t, s.DailyBaseline.Equal(dec(10000)))
	assert.Equal(t, risk.LevelLow, s.RiskLevel)
}

func TestManager_NotInitialized(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.GetState("missing")
	assert.Error(t, err)

	_, err = m.CheckOrderAllowed(context.Background(), "missing", OrderRequest{})
	assert.Error(t, err)
}

func TestManager_UpdateState_Aggregates(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))

	positions := []exchange.PositionSnapshot{
		position("BTCUSDT", "binance", "momentum", exchange.SideLong, 0.1, 20000, 500),
		position("ETHUSDT", "bybit", "grid", exchange.SideShort, 1, 1000, 250),
	}

	s, err := m.UpdateState(context.Background(), "main", dec(10000), dec(8000), positions, 3)
	require.NoError(t, err)

	assert.True(t, s.Exposure.Equal(dec(3000)), "exposure should be 2000+1000")
	assert.True(t, s.ExchangeExposure["binance"].Equal(dec(2000)))
	assert.True(t, s.BotExposure["grid"].Equal(dec(1000)))
	assert.Equal(t, 2, s.OpenPositions)
	assert.Equal(t, 3, s.OpenOrders)
	assert.InDelta(t, 4.0, s.Leverage, 1e-9) // 3000 notional / 750 margin
	assert.InDelta(t, 30.0, s.ExposurePct, 1e-9)
}

func TestManager_PeakEquityMonotonic(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	s, err := m.UpdateState(ctx, "main", dec(12000), dec(12000), nil, 0)
	require.NoError(t, err)
	assert.True(t, s.PeakEquity.Equal(dec(12000)))

	s, err = m.UpdateState(ctx, "main", dec(11000), dec(11000), nil, 0)
	require.NoError(t, err)
	assert.True(t, s.PeakEquity.Equal(dec(12000)), "peak must not decrease")
	assert.InDelta(t, 8.333, s.DrawdownPct, 0.01)
}

func TestManager_LeverageOneWhenNoMargin(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))

	s, err := m.UpdateState(context.Background(), "main", dec(10000), dec(10000), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Leverage)
}

func TestComputeScore_ComponentClamps(t *testing.T) {
	lim := risk.DefaultLimits()

	// Everything far past its limit still caps at 100
	s := &risk.State{
		DrawdownPct:     100,
		DailyPnlPct:     -50,
		Leverage:        100,
		ExposurePct:     300,
		CorrelationRisk: 1,
	}
	assert.Equal(t, 100.0, computeScore(lim, s))

	// Drawdown exactly at its limit contributes its full weight and
	// nothing more
	s = &risk.State{DrawdownPct: lim.MaxDrawdownPct, Leverage: 0}
	assert.Equal(t, 30.0, computeScore(lim, s))

	// Positive daily PnL contributes nothing
	s = &risk.State{DailyPnlPct: 10}
	assert.Equal(t, 0.0, computeScore(lim, s))
}

func TestCorrelationRisk(t *testing.T) {
	assert.Equal(t, 0.0, correlationRisk(nil))
	assert.Equal(t, 0.0, correlationRisk([]exchange.PositionSnapshot{
		position("BTCUSDT", "binance", "a", exchange.SideLong, 1, 1, 1),
	}), "single position has no concentration")

	ps := []exchange.PositionSnapshot{
		position("BTCUSDT", "binance", "a", exchange.SideLong, 1, 1, 1),
		position("ETHUSDT", "binance", "a", exchange.SideLong, 1, 1, 1),
		position("SOLUSDT", "binance", "a", exchange.SideLong, 1, 1, 1),
		position("XRPUSDT", "binance", "a", exchange.SideShort, 1, 1, 1),
	}
	assert.InDelta(t, 0.75, correlationRisk(ps), 1e-9)
}

func TestCheckOrderAllowed_HappyPath(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()
	_, err := m.UpdateState(ctx, "main", dec(10000), dec(10000), nil, 0)
	require.NoError(t, err)

	check, err := m.CheckOrderAllowed(ctx, "main", OrderRequest{
		Bot: "momentum", Symbol: "BTCUSDT", Exchange: "binance",
		Side: exchange.SideBuy, Quantity: dec(0.01), Price: dec(20000), Leverage: 2,
	})
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Empty(t, check.Reason)
}

func TestCheckOrderAllowed_ChecksRunInOrder(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()
	_, err := m.UpdateState(ctx, "main", dec(10000), dec(10000), nil, 0)
	require.NoError(t, err)

	// Violates both leverage and position size; the leverage check runs
	// first, so its reason wins
	check, err := m.CheckOrderAllowed(ctx, "main", OrderRequest{
		Bot: "momentum", Symbol: "BTCUSDT", Exchange: "binance",
		Side: exchange.SideBuy, Quantity: dec(10), Price: dec(20000), Leverage: 50,
	})
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "leverage")
}

func TestCheckOrderAllowed_PositionSize(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()
	_, err := m.UpdateState(ctx, "main", dec(10000), dec(10000), nil, 0)
	require.NoError(t, err)

	// 2000 notional on 10000 equity is 20%, over the 10% cap
	check, err := m.CheckOrderAllowed(ctx, "main", OrderRequest{
		Bot: "momentum", Symbol: "BTCUSDT", Exchange: "binance",
		Side: exchange.SideBuy, Quantity: dec(0.1), Price: dec(20000), Leverage: 1,
	})
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "position size")
}

func TestCheckOrderAllowed_RateLimit(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(100000))
	ctx := context.Background()
	_, err := m.UpdateState(ctx, "main", dec(100000), dec(100000), nil, 0)
	require.NoError(t, err)

	req := OrderRequest{
		Bot: "momentum", Symbol: "BTCUSDT", Exchange: "binance",
		Side: exchange.SideBuy, Quantity: dec(0.001), Price: dec(20000), Leverage: 1,
	}
	for i := 0; i < risk.DefaultLimits().MaxOrdersPerMinute; i++ {
		check, err := m.CheckOrderAllowed(ctx, "main", req)
		require.NoError(t, err)
		require.True(t, check.Allowed, "order %d should pass", i)
	}

	check, err := m.CheckOrderAllowed(ctx, "main", req)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "order rate limit")
}

func TestCheckOrderAllowed_DrawdownBlocks(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	// Equity falls 16% from peak, over the 15% drawdown limit
	_, err := m.UpdateState(ctx, "main", dec(8400), dec(8400), nil, 0)
	require.NoError(t, err)

	check, err := m.CheckOrderAllowed(ctx, "main", OrderRequest{
		Bot: "momentum", Symbol: "BTCUSDT", Exchange: "binance",
		Side: exchange.SideBuy, Quantity: dec(0.001), Price: dec(20000), Leverage: 1,
	})
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "drawdown")

	s, err := m.GetState("main")
	require.NoError(t, err)
	w, _ := s.UnacknowledgedWarning(risk.LimitMaxDrawdown)
	require.NotNil(t, w)
	assert.Equal(t, risk.SeverityCritical, w.Severity)
}

func TestCheckOrderAllowed_SoftWarningAtHighRisk(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	// 13% drawdown with the daily baseline reset underneath it: no single
	// check blocks, but drawdown, leverage, exposure and directional
	// concentration together push the score into HIGH territory
	_, err := m.UpdateState(ctx, "main", dec(8700), dec(8700), nil, 0)
	require.NoError(t, err)
	require.NoError(t, m.ResetDaily("main"))

	positions := []exchange.PositionSnapshot{
		position("BTCUSDT", "binance", "momentum", exchange.SideLong, 0.15, 20000, 200),
		position("ETHUSDT", "bybit", "grid", exchange.SideLong, 3, 1000, 200),
	}
	_, err = m.UpdateState(ctx, "main", dec(8700), dec(8000), positions, 0)
	require.NoError(t, err)

	s, err := m.GetState("main")
	require.NoError(t, err)
	require.GreaterOrEqual(t, s.RiskScore, 60.0)

	check, err := m.CheckOrderAllowed(ctx, "main", OrderRequest{
		Bot: "scalper", Symbol: "SOLUSDT", Exchange: "okx",
		Side: exchange.SideBuy, Quantity: dec(1), Price: dec(100), Leverage: 1,
	})
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.NotEmpty(t, check.Warning)
}

func TestWarnings_ReplacedInPlace(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	// 13% drawdown: past 80% of the 15% limit, an early warning fires
	_, err := m.UpdateState(ctx, "main", dec(8700), dec(8700), nil, 0)
	require.NoError(t, err)

	s, _ := m.GetState("main")
	w1, slot1 := s.UnacknowledgedWarning(risk.LimitMaxDrawdown)
	require.NotNil(t, w1)
	assert.Equal(t, risk.SeverityWarning, w1.Severity)

	// Same severity again: the latest values win, fresh warning in the
	// same slot
	_, err = m.UpdateState(ctx, "main", dec(8650), dec(8650), nil, 0)
	require.NoError(t, err)
	s, _ = m.GetState("main")
	w2, slot2 := s.UnacknowledgedWarning(risk.LimitMaxDrawdown)
	require.NotNil(t, w2)
	assert.NotEqual(t, w1.ID, w2.ID)
	assert.Equal(t, slot1, slot2)
	assert.Equal(t, risk.SeverityWarning, w2.Severity)
	assert.InDelta(t, 13.5, w2.CurrentValue, 0.01)

	// Breach: escalated warning replaces the old one in its slot
	_, err = m.UpdateState(ctx, "main", dec(8000), dec(8000), nil, 0)
	require.NoError(t, err)
	s, _ = m.GetState("main")
	w3, slot3 := s.UnacknowledgedWarning(risk.LimitMaxDrawdown)
	require.NotNil(t, w3)
	assert.NotEqual(t, w1.ID, w3.ID)
	assert.Equal(t, risk.SeverityCritical, w3.Severity)
	assert.Equal(t, slot1, slot3)

	drawdownWarnings := 0
	for _, w := range s.Warnings {
		if w.Type == risk.LimitMaxDrawdown && !w.Acknowledged {
			drawdownWarnings++
		}
	}
	assert.Equal(t, 1, drawdownWarnings, "repeat breach must not grow the list")
}

func TestWarnings_AlertPublished(t *testing.T) {
	m, b := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	received := make(chan *events.Envelope, 4)
	_, err := b.Subscribe(ctx, events.PatternRiskAlerts, func(ctx context.Context, ev *events.Envelope) error {
		received <- ev
		return nil
	}, nil)
	require.NoError(t, err)

	_, err = m.UpdateState(ctx, "main", dec(8000), dec(8000), nil, 0)
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, "risk.alert.critical", ev.Topic)
		assert.Equal(t, events.PriorityCritical, ev.Priority)
		payload, err := events.PayloadAs[events.RiskAlertPayload](ev)
		require.NoError(t, err)
		assert.Equal(t, "main", payload.PortfolioID)
		assert.Equal(t, string(risk.LimitMaxDrawdown), payload.LimitType)
	case <-time.After(time.Second):
		t.Fatal("no risk alert received")
	}
}

func TestAcknowledgeWarning(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	_, err := m.UpdateState(ctx, "main", dec(8000), dec(8000), nil, 0)
	require.NoError(t, err)

	s, _ := m.GetState("main")
	w, _ := s.UnacknowledgedWarning(risk.LimitMaxDrawdown)
	require.NotNil(t, w)

	require.NoError(t, m.AcknowledgeWarning("main", w.ID))
	s, _ = m.GetState("main")
	gone, _ := s.UnacknowledgedWarning(risk.LimitMaxDrawdown)
	assert.Nil(t, gone)
	// The daily-loss breach from the same update is still outstanding
	assert.Equal(t, 1, s.UnacknowledgedCount())

	assert.Error(t, m.AcknowledgeWarning("main", "nope"))
}

func TestResetDaily(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	// Produce a critical drawdown warning and a non-critical exposure one
	positions := []exchange.PositionSnapshot{
		position("BTCUSDT", "binance", "momentum", exchange.SideLong, 0.3, 20000, 3000),
	}
	_, err := m.UpdateState(ctx, "main", dec(8000), dec(5000), positions, 0)
	require.NoError(t, err)

	s, _ := m.GetState("main")
	require.Greater(t, s.UnacknowledgedCount(), 1)

	require.NoError(t, m.ResetDaily("main"))

	s, _ = m.GetState("main")
	assert.True(t, s.DailyBaseline.Equal(dec(8000)))
	assert.True(t, s.DailyPnl.IsZero())
	for _, w := range s.Warnings {
		if !w.Acknowledged {
			assert.Equal(t, risk.SeverityCritical, w.Severity, "only critical warnings survive the daily reset")
		}
	}
}

func TestResetWeeklyAndMonthly(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))
	ctx := context.Background()

	_, err := m.UpdateState(ctx, "main", dec(11000), dec(11000), nil, 0)
	require.NoError(t, err)

	require.NoError(t, m.ResetWeekly("main"))
	require.NoError(t, m.ResetMonthly("main"))

	s, _ := m.GetState("main")
	assert.True(t, s.WeeklyBaseline.Equal(dec(11000)))
	assert.True(t, s.MonthlyBaseline.Equal(dec(11000)))
}

func TestGetState_ReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)
	m.Initialize("main", dec(10000))

	s1, err := m.GetState("main")
	require.NoError(t, err)
	s1.Equity = dec(1)
	s1.ExchangeExposure["fake"] = dec(1)

	s2, err := m.GetState("main")
	require.NoError(t, err)
	assert.True(t, s2.Equity.Equal(dec(10000)))
	assert.NotContains(t, s2.ExchangeExposure, "fake")
}
