package risk

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a risk warning
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Warning is a limit breach or near-breach. At most one unacknowledged
// warning per limit type exists at a time: a new breach of the same type
// replaces the prior unacknowledged warning in place.
type Warning struct {
	ID             string
	Type           LimitType
	Severity       Severity
	Message        string
	CurrentValue   float64
	LimitValue     float64
	Scope          LimitScope
	Bots           []string
	Symbols        []string
	Exchanges      []string
	Recommendation string
	CreatedAt      time.Time
	Acknowledged   bool
}

// NewWarning creates a warning with a fresh id
func NewWarning(t LimitType, sev Severity, message string, current, limit float64, scope LimitScope) *Warning {
	return &Warning{
		ID:           uuid.NewString(),
		Type:         t,
		Severity:     sev,
		Message:      message,
		CurrentValue: current,
		LimitValue:   limit,
		Scope:        scope,
		CreatedAt:    time.Now(),
	}
}
