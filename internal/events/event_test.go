package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TopicComposition(t *testing.T) {
	ev := New(DomainTrading, EntitySignal, ActionGenerated, "bot-1", SignalPayload{Symbol: "BTCUSDT"})

	assert.Equal(t, "trading.signal.generated", ev.Topic)
	assert.NotEmpty(t, ev.ID)
	assert.Greater(t, ev.Timestamp, int64(0))
	assert.Equal(t, PriorityNormal, ev.Priority)
	assert.NoError(t, ev.Validate())

	// Action is optional
	ev2 := New(DomainSystem, EntityBot, "", "coordinator", BotLifecyclePayload{BotID: "b1"})
	assert.Equal(t, "system.bot", ev2.Topic)
	assert.NoError(t, ev2.Validate())
}

func TestValidate_TopicMismatch(t *testing.T) {
	ev := New(DomainTrading, EntitySignal, ActionGenerated, "bot-1", SignalPayload{})
	ev.Topic = "trading.order.generated"
	assert.Error(t, ev.Validate())
}

func TestBuilderMethods(t *testing.T) {
	ev := New(DomainRisk, EntityAlert, ActionTriggered, "risk-manager", RiskAlertPayload{}).
		WithPriority(PriorityCritical).
		WithCorrelation("corr-1").
		WithCausation("cause-1").
		WithMetadata("replyTo", "risk.alert.reply")

	assert.Equal(t, PriorityCritical, ev.Priority)
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Equal(t, "cause-1", ev.CausationID)
	assert.Equal(t, "risk.alert.reply", ev.Metadata["replyTo"])

	env := ev.Envelope()
	assert.Equal(t, ev.ID, env.ID)
	assert.Equal(t, ev.Topic, env.Topic)
	assert.Equal(t, PriorityCritical, env.Priority)
}

func TestParseTopic(t *testing.T) {
	d, e, a, err := ParseTopic("trading.position.updated")
	require.NoError(t, err)
	assert.Equal(t, DomainTrading, d)
	assert.Equal(t, EntityPosition, e)
	assert.Equal(t, ActionUpdated, a)

	d, e, a, err = ParseTopic("system.bot")
	require.NoError(t, err)
	assert.Equal(t, DomainSystem, d)
	assert.Equal(t, EntityBot, e)
	assert.Empty(t, a)

	_, _, _, err = ParseTopic("toolong.a.b.c")
	assert.Error(t, err)
	_, _, _, err = ParseTopic("single")
	assert.Error(t, err)
}

func TestCodec_WireRoundTrip(t *testing.T) {
	ev := New(DomainTrading, EntityOrder, ActionFilled, "executor", OrderPayload{
		OrderID:  "o-1",
		Symbol:   "BTCUSDT",
		Side:     "buy",
		Quantity: decimal.NewFromFloat(0.5),
		Price:    decimal.NewFromInt(20000),
	}).Envelope()

	data, err := Marshal(ev)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, ev.Topic, decoded.Topic)

	// After the wire trip the payload is raw JSON; PayloadAs recovers the
	// concrete type
	payload, err := PayloadAs[OrderPayload](decoded)
	require.NoError(t, err)
	assert.Equal(t, "o-1", payload.OrderID)
	assert.True(t, payload.Quantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestPayloadAs_ConcretePassthrough(t *testing.T) {
	ev := New(DomainTrading, EntitySignal, ActionGenerated, "bot-1", SignalPayload{Symbol: "ETHUSDT"}).Envelope()

	payload, err := PayloadAs[SignalPayload](ev)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", payload.Symbol)
}
