package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/events"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

func newConnectedBus(t *testing.T) *MemoryBus {
	t.Helper()
	b := NewMemoryBus(logger.Get())
	require.NoError(t, b.Connect(context.Background()))
	return b
}

func signalEvent(source string) *events.Envelope {
	return events.New(events.DomainTrading, events.EntitySignal, events.ActionGenerated, source, events.SignalPayload{
		Symbol:    "BTCUSDT",
		Direction: "long",
		Strength:  0.8,
	}).Envelope()
}

func TestMemoryBus_RequiresConnect(t *testing.T) {
	b := NewMemoryBus(logger.Get())

	err := b.Publish(context.Background(), signalEvent("test"))
	assert.ErrorIs(t, err, errors.ErrNotConnected)

	_, err = b.Subscribe(context.Background(), "a.b", func(ctx context.Context, ev *events.Envelope) error { return nil }, nil)
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestMemoryBus_DeliveryBeforePublishReturns(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	var got *events.Envelope
	_, err := b.Subscribe(ctx, "trading.signal.*", func(ctx context.Context, ev *events.Envelope) error {
		got = ev
		return nil
	}, nil)
	require.NoError(t, err)

	ev := signalEvent("bot-1")
	require.NoError(t, b.Publish(ctx, ev))

	// No synchronization needed: delivery completes inside Publish
	require.NotNil(t, got)
	assert.Equal(t, ev.ID, got.ID)
}

func TestMemoryBus_RegistrationOrder(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := b.Subscribe(ctx, "trading.>", func(ctx context.Context, ev *events.Envelope) error {
			order = append(order, name)
			return nil
		}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(ctx, signalEvent("bot-1")))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestMemoryBus_HandlerErrorIsolated(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "trading.signal.*", func(ctx context.Context, ev *events.Envelope) error {
		return errors.New("boom")
	}, nil)
	require.NoError(t, err)

	delivered := false
	_, err = b.Subscribe(ctx, "trading.signal.*", func(ctx context.Context, ev *events.Envelope) error {
		delivered = true
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, signalEvent("bot-1")), "publish must not fail on handler error")
	assert.True(t, delivered, "failure in one handler must not block the next")

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Contains(t, stats.LastError, "boom")
}

func TestMemoryBus_NoMatchNoDelivery(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	called := false
	_, err := b.Subscribe(ctx, "risk.alert.*", func(ctx context.Context, ev *events.Envelope) error {
		called = true
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, signalEvent("bot-1")))
	assert.False(t, called)
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	calls := 0
	id, err := b.Subscribe(ctx, "trading.signal.*", func(ctx context.Context, ev *events.Envelope) error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, signalEvent("bot-1")))
	require.NoError(t, b.Unsubscribe(id))
	require.NoError(t, b.Publish(ctx, signalEvent("bot-1")))

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, b.Unsubscribe(id), errors.ErrSubscriptionNotFound)
}

func TestMemoryBus_RequestReply(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	_, err := b.Reply(ctx, "trading.order.created", func(ctx context.Context, req *events.Envelope) (*events.Envelope, error) {
		payload, err := events.PayloadAs[events.OrderPayload](req)
		if err != nil {
			return nil, err
		}
		payload.Status = "accepted"
		return events.New(events.DomainTrading, events.EntityOrder, events.ActionExecuted, "executor", payload).Envelope(), nil
	})
	require.NoError(t, err)

	req := events.New(events.DomainTrading, events.EntityOrder, events.ActionCreated, "bot-1", events.OrderPayload{
		OrderID: "o-1",
		Symbol:  "BTCUSDT",
		Side:    "buy",
	}).Envelope()

	resp, err := b.Request(ctx, req, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, req.ID, resp.CausationID)
	assert.Equal(t, "trading.order.created.reply", resp.Topic)

	payload, err := events.PayloadAs[events.OrderPayload](resp)
	require.NoError(t, err)
	assert.Equal(t, "accepted", payload.Status)
}

func TestMemoryBus_RequestTimeout(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	// No responder registered
	req := signalEvent("bot-1")
	_, err := b.Request(ctx, req, 50*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)

	// The pending waiter is removed: a late correlated publish goes nowhere
	late := signalEvent("late")
	late.CorrelationID = req.CorrelationID
	assert.NoError(t, b.Publish(ctx, late))
}

func TestMemoryBus_RequestDefaultTimeout(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	_, err := b.Reply(ctx, "trading.order.created", func(ctx context.Context, req *events.Envelope) (*events.Envelope, error) {
		payload, err := events.PayloadAs[events.OrderPayload](req)
		if err != nil {
			return nil, err
		}
		payload.Status = "accepted"
		return events.New(events.DomainTrading, events.EntityOrder, events.ActionExecuted, "executor", payload).Envelope(), nil
	})
	require.NoError(t, err)

	req := events.New(events.DomainTrading, events.EntityOrder, events.ActionCreated, "bot-1", events.OrderPayload{
		OrderID: "o-1",
	}).Envelope()

	// A zero timeout falls back to the default instead of expiring
	// immediately
	resp, err := b.Request(ctx, req, 0)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
}

func TestMemoryBus_RequestNotAnsweredByItself(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	// A subscriber that sees the request but never replies; the request
	// event carrying its own correlation id must not resolve the call
	_, err := b.Subscribe(ctx, "trading.>", func(ctx context.Context, ev *events.Envelope) error {
		return nil
	}, nil)
	require.NoError(t, err)

	_, err = b.Request(ctx, signalEvent("bot-1"), 50*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)
}

func TestMemoryBus_Stats(t *testing.T) {
	b := newConnectedBus(t)
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "trading.>", func(ctx context.Context, ev *events.Envelope) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, signalEvent("bot-1")))
	require.NoError(t, b.Publish(ctx, signalEvent("bot-2")))

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, 1, stats.Subscriptions)
}
