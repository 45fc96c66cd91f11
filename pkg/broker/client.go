package broker

import "context"

// Client is the minimal surface the façade needs from the broker SDK.
// The real implementation (wire protocol, transport) is an external
// collaborator; this interface is the seam the
// resilience core is tested against.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	ListStreams(ctx context.Context) ([]StreamInfo, error)
	GetStream(ctx context.Context, name string) (*StreamInfo, error)
	CreateStream(ctx context.Context, name string) (*StreamInfo, error)
	DeleteStream(ctx context.Context, name string) error

	ListTopics(ctx context.Context, stream string) ([]TopicInfo, error)
	GetTopic(ctx context.Context, stream, topic string) (*TopicInfo, error)
	CreateTopic(ctx context.Context, stream, topic string, partitions int) (*TopicInfo, error)
	DeleteTopic(ctx context.Context, stream, topic string) error

	// Publish sends a single event. partition and key are mutually
	// exclusive routing hints; nil/nil lets the broker balance.
	Publish(ctx context.Context, stream, topic string, partition *uint32, key *string, event Event) (PublishResult, error)

	// PublishBatch sends every event in a single network call; an
	// empty batch is the caller's responsibility to short-circuit
	// (an empty batch never reaches the wire).
	PublishBatch(ctx context.Context, stream, topic string, partition *uint32, key *string, events []Event) (BatchResult, error)

	Poll(ctx context.Context, stream, topic string, cursor PollCursor) ([]RawFrame, error)
}

// Factory constructs a fresh, unconnected Client. The reconnector
// calls it on every attempt so a failed dial never reuses dead
// transport state.
type Factory func() Client
