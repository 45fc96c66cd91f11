// Package broker is a thin typed façade over the raw broker client,
// with every public operation wrapped in the operation envelope. The
// raw client itself is an external collaborator; this package depends
// only on the Client interface in client.go.
package broker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the domain event model the façade serializes to and parses
// from broker frames.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
	Source        *string         `json:"source,omitempty"`
}

// PollCursor is the request-scoped parameter set for a poll call.
// Offset == nil polls "next uncommitted" for the consumer.
type PollCursor struct {
	PartitionID uint32
	ConsumerID  int64
	Offset      *uint64
	Count       int
	AutoCommit  bool
}

// StreamInfo and TopicInfo are the admin wire shapes. The broker
// reports per-stream/topic size and message aggregates; the stats
// refresh task sums them into the cached snapshot.
type StreamInfo struct {
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	Topics        int       `json:"topics"`
	SizeBytes     uint64    `json:"size_bytes"`
	MessagesCount uint64    `json:"messages_count"`
}

type TopicInfo struct {
	Stream        string    `json:"stream"`
	Name          string    `json:"name"`
	Partitions    int       `json:"partitions"`
	CreatedAt     time.Time `json:"created_at"`
	SizeBytes     uint64    `json:"size_bytes"`
	MessagesCount uint64    `json:"messages_count"`
}

// ReceivedMessage is a single polled event with its broker-assigned
// offset.
type ReceivedMessage struct {
	Offset    uint64    `json:"offset"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishResult is the façade's return for a single-event publish.
type PublishResult struct {
	Offset      uint64 `json:"offset"`
	PartitionID uint32 `json:"partition_id"`
}

// BatchResult is the façade's return for a batch publish: one result
// per input event, in the same order.
type BatchResult struct {
	Results []PublishResult `json:"results"`
}

// RawFrame is what the broker client hands back from a poll before
// façade-side parsing into Event; malformed frames are skipped rather
// than failing the whole poll.
type RawFrame struct {
	Offset    uint64
	Raw       []byte
	Timestamp time.Time
}
