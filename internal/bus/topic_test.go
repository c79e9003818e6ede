package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		// exact
		{"a.b.c", "a.b.c", true},
		{"a.b", "a.b.c", false},
		{"a.b.c.d", "a.b.c", false},
		{"a.b.c", "a.b.c.d", false},

		// single-segment wildcard
		{"a.*.c", "a.b.c", true},
		{"*.b.*", "a.b.c", true},
		{"a.*", "a.b.c", false},
		{"a.*.c", "a.b.x", false},
		{"*", "a", true},
		{"*", "a.b", false},

		// terminal multi-segment wildcard
		{"a.>", "a.b.c", true},
		{"a.>", "a.b", true},
		{"a.>", "a", false}, // > requires at least one remaining segment
		{">", "a.b.c", true},
		{"a.b.>", "a.b.c.d.e", true},
		{"a.x.>", "a.b.c", false},

		// realistic topics
		{"trading.signal.*", "trading.signal.generated", true},
		{"trading.order.*", "trading.order.filled", true},
		{"trading.order.*", "trading.position.updated", false},
		{"risk.alert.*", "risk.alert.critical", true},
		{"risk.>", "risk.alert.critical", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchTopic(tt.pattern, tt.topic),
			"pattern %q vs topic %q", tt.pattern, tt.topic)
	}
}

func TestValidatePattern(t *testing.T) {
	valid := []string{"a.b.c", "a.*.c", "a.>", ">", "*", "trading.signal.*"}
	for _, p := range valid {
		assert.NoError(t, ValidatePattern(p), "pattern %q", p)
	}

	invalid := []string{"", "a..c", "a.>.c", ">.a", "a."}
	for _, p := range invalid {
		assert.Error(t, ValidatePattern(p), "pattern %q", p)
	}
}
