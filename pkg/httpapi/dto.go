package httpapi

import (
	"encoding/json"

	"github.com/relaywire/gatewayd/pkg/broker"
)

// Wire-format request/response DTOs for the JSON/HTTP surface. These
// carry no resilience logic of their own, just marshaling.

type CreateStreamRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateTopicRequest struct {
	Name       string `json:"name" binding:"required"`
	Partitions int    `json:"partitions" binding:"required"`
}

type SendMessageRequest struct {
	EventType     string          `json:"event_type" binding:"required"`
	Payload       json.RawMessage `json:"payload" binding:"required"`
	PartitionID   *uint32         `json:"partition_id,omitempty"`
	Key           *string         `json:"key,omitempty"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
	Source        *string         `json:"source,omitempty"`
}

type SendBatchRequest struct {
	Messages []SendMessageRequest `json:"messages" binding:"required"`
}

type SendMessageResponse struct {
	ID          string `json:"id"`
	Offset      uint64 `json:"offset"`
	PartitionID uint32 `json:"partition_id"`
}

type SendBatchResponse struct {
	Results []SendMessageResponse `json:"results"`
}

type PollMessagesResponse struct {
	Messages []broker.ReceivedMessage `json:"messages"`
}

type StreamResponse struct {
	Name          string `json:"name"`
	CreatedAt     string `json:"created_at"`
	Topics        int    `json:"topics"`
	SizeBytes     uint64 `json:"size_bytes"`
	MessagesCount uint64 `json:"messages_count"`
}

type TopicResponse struct {
	Stream        string `json:"stream"`
	Name          string `json:"name"`
	Partitions    int    `json:"partitions"`
	CreatedAt     string `json:"created_at"`
	SizeBytes     uint64 `json:"size_bytes"`
	MessagesCount uint64 `json:"messages_count"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statsResponse struct {
	StreamsCount   int     `json:"streams_count"`
	TopicsCount    int     `json:"topics_count"`
	TotalMessages  uint64  `json:"total_messages"`
	TotalSizeBytes uint64  `json:"total_size_bytes"`
	HumanSize      string  `json:"total_size_human"`
	LastRefresh    *string `json:"last_refresh,omitempty"`
	Stale          bool    `json:"stale"`
}
