// Package validate implements the resource-name and request-field
// validation contract exposed to HTTP handlers.
package validate

import (
	"unicode"

	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
)

const (
	minNameLen      = 1
	maxNameLen      = 255
	maxEventTypeLen = 256
	maxPartitions   = 1000
)

func isSpecial(r rune) bool { return r == '.' || r == '_' || r == '-' }

func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ResourceName validates a stream or topic name: 1-255 chars, starts
// and ends alphanumeric, body alphanumeric or one of . _ -, and never
// two adjacent specials.
func ResourceName(field, name string) error {
	runes := []rune(name)
	n := len(runes)
	if n < minNameLen || n > maxNameLen {
		return gwerrors.NewBadRequest(field + " must be between 1 and 255 characters")
	}
	if !isAlphaNumeric(runes[0]) {
		return gwerrors.NewBadRequest(field + " must start with an alphanumeric character")
	}
	if !isAlphaNumeric(runes[n-1]) {
		return gwerrors.NewBadRequest(field + " must end with an alphanumeric character")
	}
	for i, r := range runes {
		if isAlphaNumeric(r) {
			continue
		}
		if !isSpecial(r) {
			return gwerrors.NewBadRequest(field + " may only contain letters, digits, '.', '_' or '-'")
		}
		if i > 0 && isSpecial(runes[i-1]) {
			return gwerrors.NewBadRequest(field + " may not contain two adjacent special characters")
		}
	}
	return nil
}

// EventType validates the event_type field: 1-256 chars, no control
// characters.
func EventType(eventType string) error {
	runes := []rune(eventType)
	n := len(runes)
	if n < 1 || n > maxEventTypeLen {
		return gwerrors.NewBadRequest("event_type must be between 1 and 256 characters")
	}
	for _, r := range runes {
		if unicode.IsControl(r) {
			return gwerrors.NewBadRequest("event_type must not contain control characters")
		}
	}
	return nil
}

// PartitionCount validates a topic's partition count: 1..=1000.
func PartitionCount(n int) error {
	if n < 1 || n > maxPartitions {
		return gwerrors.NewBadRequest("partitions must be between 1 and 1000")
	}
	return nil
}

// ConsumerID validates a consumer id: >= 1.
func ConsumerID(id int64) error {
	if id < 1 {
		return gwerrors.NewBadRequest("consumer_id must be >= 1")
	}
	return nil
}

// PartitionID accepts any uint32 and always returns nil; the broker
// arbitrates existence, and out-of-range values are already rejected
// when the request is parsed.
func PartitionID(id uint32) error { return nil }
