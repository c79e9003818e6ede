package events

import (
	"encoding/json"

	"hermes/pkg/errors"
)

// Marshal encodes an envelope for the durable backend wire format
func Marshal(ev *Envelope) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}
	return data, nil
}

// Unmarshal decodes a wire envelope. The payload comes back as
// json.RawMessage; use PayloadAs to recover the concrete type.
func Unmarshal(data []byte) (*Envelope, error) {
	var wire Event[json.RawMessage]
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.Wrap(err, "unmarshal event")
	}

	ev := &Envelope{
		ID:            wire.ID,
		Topic:         wire.Topic,
		Domain:        wire.Domain,
		Entity:        wire.Entity,
		Action:        wire.Action,
		Timestamp:     wire.Timestamp,
		Source:        wire.Source,
		Priority:      wire.Priority,
		CorrelationID: wire.CorrelationID,
		CausationID:   wire.CausationID,
		Metadata:      wire.Metadata,
		Payload:       wire.Payload,
	}
	return ev, nil
}

// PayloadAs recovers a typed payload from an envelope. In-process events
// carry the concrete type directly; events that crossed the wire carry
// json.RawMessage and are decoded here.
func PayloadAs[T any](ev *Envelope) (T, error) {
	var zero T

	switch p := ev.Payload.(type) {
	case T:
		return p, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(p, &out); err != nil {
			return zero, errors.Wrap(err, "decode payload")
		}
		return out, nil
	case nil:
		return zero, nil
	default:
		// Payload round-tripped through an intermediate representation
		// (e.g. map[string]any); re-encode to recover the concrete type.
		data, err := json.Marshal(p)
		if err != nil {
			return zero, errors.Wrap(err, "re-encode payload")
		}
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return zero, errors.Wrap(err, "decode payload")
		}
		return out, nil
	}
}
