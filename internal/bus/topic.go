package bus

import (
	"strings"

	"hermes/pkg/errors"
)

// MatchTopic reports whether a dot-segmented topic matches a subscription
// pattern. A literal segment must match exactly, "*" matches exactly one
// segment and ">" matches the remainder of the topic (one or more
// segments) and must be the last pattern segment. A pattern without
// wildcards must match the topic exactly, including segment count.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")

	for i, seg := range patternParts {
		if seg == ">" {
			// ">" must be terminal and consumes one or more remaining segments
			return i == len(patternParts)-1 && len(topicParts) > i
		}
		if i >= len(topicParts) {
			return false
		}
		if seg == "*" {
			continue
		}
		if seg != topicParts[i] {
			return false
		}
	}

	return len(topicParts) == len(patternParts)
}

// ValidatePattern rejects empty segments and a non-terminal ">"
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.Wrap(errors.ErrInvalidTopic, "empty pattern")
	}

	parts := strings.Split(pattern, ".")
	for i, seg := range parts {
		if seg == "" {
			return errors.Wrapf(errors.ErrInvalidTopic, "empty segment in %q", pattern)
		}
		if seg == ">" && i != len(parts)-1 {
			return errors.Wrapf(errors.ErrInvalidTopic, "%q: '>' must be the last segment", pattern)
		}
	}
	return nil
}
