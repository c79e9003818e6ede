package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"hermes/pkg/errors"
)

// Domain is the first topic segment, grouping events by subsystem
type Domain string

const (
	DomainTrading      Domain = "trading"
	DomainMarket       Domain = "market"
	DomainRisk         Domain = "risk"
	DomainExecution    Domain = "execution"
	DomainAnalytics    Domain = "analytics"
	DomainSystem       Domain = "system"
	DomainNotification Domain = "notification"
)

// Entity is the second topic segment, naming the subject of the event
type Entity string

const (
	EntitySignal    Entity = "signal"
	EntityOrder     Entity = "order"
	EntityPosition  Entity = "position"
	EntityOrderbook Entity = "orderbook"
	EntityTicker    Entity = "ticker"
	EntityKline     Entity = "kline"
	EntityPortfolio Entity = "portfolio"
	EntityBalance   Entity = "balance"
	EntityBot       Entity = "bot"
	EntityAlert     Entity = "alert"
)

// Action is the optional third topic segment
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionDeleted   Action = "deleted"
	ActionExecuted  Action = "executed"
	ActionFilled    Action = "filled"
	ActionCancelled Action = "cancelled"
	ActionRejected  Action = "rejected"
	ActionGenerated Action = "generated"
	ActionTriggered Action = "triggered"
	ActionStarted   Action = "started"
	ActionStopped   Action = "stopped"
	ActionError     Action = "error"
)

// Priority orders events for consumers that triage by urgency
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Convenience subscription patterns used by collaborators
const (
	PatternTradingSignals   = "trading.signal.*"
	PatternTradingOrders    = "trading.order.*"
	PatternTradingPositions = "trading.position.*"
	PatternRiskAlerts       = "risk.alert.*"
)

// Event is a typed message routed by the bus. Immutable once published.
// Topic always equals Domain.Entity[.Action].
type Event[T any] struct {
	ID            string            `json:"id"`
	Topic         string            `json:"topic"`
	Domain        Domain            `json:"domain"`
	Entity        Entity            `json:"entity"`
	Action        Action            `json:"action,omitempty"`
	Timestamp     int64             `json:"timestamp"` // epoch milliseconds
	Source        string            `json:"source"`
	Priority      Priority          `json:"priority"`
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Payload       T                 `json:"payload"`
}

// Envelope is the bus-level representation of an event with an opaque payload.
// Typed producers build an Event[T] and hand its envelope to the bus; typed
// consumers recover the payload with PayloadAs.
type Envelope = Event[any]

// BuildTopic composes a topic string from its segments
func BuildTopic(d Domain, e Entity, a Action) string {
	if a == "" {
		return string(d) + "." + string(e)
	}
	return string(d) + "." + string(e) + "." + string(a)
}

// New creates a typed event with a fresh id, millisecond timestamp and
// normal priority
func New[T any](d Domain, e Entity, a Action, source string, payload T) *Event[T] {
	return &Event[T]{
		ID:        uuid.NewString(),
		Topic:     BuildTopic(d, e, a),
		Domain:    d,
		Entity:    e,
		Action:    a,
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Priority:  PriorityNormal,
		Payload:   payload,
	}
}

// WithPriority sets the event priority
func (ev *Event[T]) WithPriority(p Priority) *Event[T] {
	ev.Priority = p
	return ev
}

// WithCorrelation ties the event to a request/reply exchange
func (ev *Event[T]) WithCorrelation(id string) *Event[T] {
	ev.CorrelationID = id
	return ev
}

// WithCausation ties the event to the event that caused it
func (ev *Event[T]) WithCausation(id string) *Event[T] {
	ev.CausationID = id
	return ev
}

// WithMetadata attaches a free-form key/value pair
func (ev *Event[T]) WithMetadata(key, value string) *Event[T] {
	if ev.Metadata == nil {
		ev.Metadata = make(map[string]string)
	}
	ev.Metadata[key] = value
	return ev
}

// Envelope converts a typed event into the bus representation
func (ev *Event[T]) Envelope() *Envelope {
	return &Envelope{
		ID:            ev.ID,
		Topic:         ev.Topic,
		Domain:        ev.Domain,
		Entity:        ev.Entity,
		Action:        ev.Action,
		Timestamp:     ev.Timestamp,
		Source:        ev.Source,
		Priority:      ev.Priority,
		CorrelationID: ev.CorrelationID,
		CausationID:   ev.CausationID,
		Metadata:      ev.Metadata,
		Payload:       ev.Payload,
	}
}

// ParseTopic splits a topic into its segments and validates the shape
func ParseTopic(topic string) (Domain, Entity, Action, error) {
	parts := strings.Split(topic, ".")
	switch len(parts) {
	case 2:
		return Domain(parts[0]), Entity(parts[1]), "", nil
	case 3:
		return Domain(parts[0]), Entity(parts[1]), Action(parts[2]), nil
	default:
		return "", "", "", errors.Wrapf(errors.ErrInvalidTopic, "%q", topic)
	}
}

// Validate checks the topic invariant
func (ev *Event[T]) Validate() error {
	if ev.Topic == "" || ev.Topic != BuildTopic(ev.Domain, ev.Entity, ev.Action) {
		return errors.Wrapf(errors.ErrInvalidTopic, "topic %q does not match %s.%s.%s", ev.Topic, ev.Domain, ev.Entity, ev.Action)
	}
	return nil
}
