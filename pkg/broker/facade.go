package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/relaywire/gatewayd/pkg/breaker"
	"github.com/relaywire/gatewayd/pkg/connstate"
	"github.com/relaywire/gatewayd/pkg/envelope"
	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/reconnect"
	"github.com/relaywire/gatewayd/pkg/validate"
)

// Facade is the broker façade: it exclusively owns the
// ConnectionHandle behind an RWMutex (readers run concurrently;
// reconnect replacement takes the writer side) and wraps every public
// operation in the operation envelope.
type Facade struct {
	mu      sync.RWMutex
	client  Client
	factory Factory

	state    *connstate.ConnectionState
	envelope *envelope.Envelope
	logger   *logging.Logger
}

// Config bundles the resilience settings the façade wires into its
// envelope and reconnector.
type Config struct {
	Reconnect reconnect.Config
	Breaker   breaker.Config
	Timeout   time.Duration
}

// New constructs a Facade. It does not connect; call Connect.
func New(factory Factory, cfg Config, logger *logging.Logger) *Facade {
	f := &Facade{factory: factory, state: connstate.New(), logger: logger}
	cb := breaker.New(cfg.Breaker)
	rc := reconnect.New(cfg.Reconnect, f.state, f.dial, f.swap, logger)
	f.envelope = envelope.New(cb, f.state, rc, cfg.Timeout, logger)
	return f
}

// Breaker exposes the breaker metrics for the stats/health surface.
func (f *Facade) Breaker() *breaker.CircuitBreaker { return f.envelope.CB }

// State exposes the connection state for the stats/health surface.
func (f *Facade) State() *connstate.ConnectionState { return f.state }

func (f *Facade) dial(ctx context.Context) (any, error) {
	client := f.factory()
	if err := client.Connect(ctx); err != nil {
		return nil, gwerrors.NewConnectionFailed("failed to connect to broker", err)
	}
	return client, nil
}

func (f *Facade) swap(c any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		_ = f.client.Close()
	}
	f.client = c.(Client)
}

func (f *Facade) getClient() Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.client
}

// Connect performs the initial connect lifecycle: construct, connect,
// mark the connection state up.
func (f *Facade) Connect(ctx context.Context) error {
	client, err := f.dial(ctx)
	if err != nil {
		return err
	}
	f.swap(client)
	f.state.SetConnected(true)
	return nil
}

// Close releases the underlying broker client.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	f.state.SetConnected(false)
	return err
}

// EnsureStream looks up name, creating it on absence. Concurrent
// creation by a peer is tolerated by re-fetching on a create
// conflict.
func (f *Facade) EnsureStream(ctx context.Context, name string) (*StreamInfo, error) {
	if err := validate.ResourceName("stream name", name); err != nil {
		return nil, err
	}
	return envelope.Run(ctx, f.envelope, "ensure_stream", func(ctx context.Context) (*StreamInfo, error) {
		client := f.getClient()
		if info, err := client.GetStream(ctx, name); err == nil {
			return info, nil
		} else if !gwerrors.HasCode(err, gwerrors.NotFound) {
			return nil, err
		}

		info, err := client.CreateStream(ctx, name)
		if err == nil {
			return info, nil
		}
		if again, gerr := client.GetStream(ctx, name); gerr == nil {
			return again, nil
		}
		return nil, err
	})
}

// EnsureTopic looks up (stream, name), creating it with the given
// partition count on absence.
func (f *Facade) EnsureTopic(ctx context.Context, stream, name string, partitions int) (*TopicInfo, error) {
	if err := validate.ResourceName("stream name", stream); err != nil {
		return nil, err
	}
	if err := validate.ResourceName("topic name", name); err != nil {
		return nil, err
	}
	if err := validate.PartitionCount(partitions); err != nil {
		return nil, err
	}
	return envelope.Run(ctx, f.envelope, "ensure_topic", func(ctx context.Context) (*TopicInfo, error) {
		client := f.getClient()
		if info, err := client.GetTopic(ctx, stream, name); err == nil {
			return info, nil
		} else if !gwerrors.HasCode(err, gwerrors.NotFound) {
			return nil, err
		}

		info, err := client.CreateTopic(ctx, stream, name, partitions)
		if err == nil {
			return info, nil
		}
		if again, gerr := client.GetTopic(ctx, stream, name); gerr == nil {
			return again, nil
		}
		return nil, err
	})
}

// Publish sends a single event. partition and key are mutually
// exclusive routing hints forwarded to the client.
func (f *Facade) Publish(ctx context.Context, stream, topic string, partition *uint32, key *string, event Event) (PublishResult, error) {
	return envelope.Run(ctx, f.envelope, "publish", func(ctx context.Context) (PublishResult, error) {
		return f.getClient().Publish(ctx, stream, topic, partition, key, event)
	})
}

// PublishBatch sends a batch of events as a single network call. An
// empty batch is a no-op success and never reaches the client or the
// breaker.
func (f *Facade) PublishBatch(ctx context.Context, stream, topic string, partition *uint32, key *string, events []Event) (BatchResult, error) {
	if len(events) == 0 {
		return BatchResult{}, nil
	}
	return envelope.Run(ctx, f.envelope, "publish_batch", func(ctx context.Context) (BatchResult, error) {
		return f.getClient().PublishBatch(ctx, stream, topic, partition, key, events)
	})
}

// Poll parses broker frames into domain events per cursor. Malformed
// frames are logged and skipped, not fatal; a frame with an invalid
// timestamp falls back to "now" with a warning.
func (f *Facade) Poll(ctx context.Context, stream, topic string, cursor PollCursor) ([]ReceivedMessage, error) {
	frames, err := envelope.Run(ctx, f.envelope, "poll", func(ctx context.Context) ([]RawFrame, error) {
		return f.getClient().Poll(ctx, stream, topic, cursor)
	})
	if err != nil {
		return nil, err
	}

	out := make([]ReceivedMessage, 0, len(frames))
	for _, frame := range frames {
		var event Event
		if jsonErr := json.Unmarshal(frame.Raw, &event); jsonErr != nil {
			f.logger.Warn("skipping malformed broker frame", "offset", frame.Offset, "error", jsonErr)
			continue
		}
		if event.Timestamp.IsZero() {
			f.logger.Warn("broker frame has invalid timestamp, defaulting to now", "offset", frame.Offset)
			event.Timestamp = time.Now()
		}
		out = append(out, ReceivedMessage{Offset: frame.Offset, Event: event, Timestamp: frame.Timestamp})
	}
	return out, nil
}

// ListStreams, GetStream, DeleteStream, ListTopics, GetTopic,
// DeleteTopic are the remaining admin pass-throughs.

func (f *Facade) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	return envelope.Run(ctx, f.envelope, "list_streams", func(ctx context.Context) ([]StreamInfo, error) {
		return f.getClient().ListStreams(ctx)
	})
}

func (f *Facade) GetStream(ctx context.Context, name string) (*StreamInfo, error) {
	if err := validate.ResourceName("stream name", name); err != nil {
		return nil, err
	}
	return envelope.Run(ctx, f.envelope, "get_stream", func(ctx context.Context) (*StreamInfo, error) {
		return f.getClient().GetStream(ctx, name)
	})
}

func (f *Facade) DeleteStream(ctx context.Context, name string) error {
	if err := validate.ResourceName("stream name", name); err != nil {
		return err
	}
	_, err := envelope.Run(ctx, f.envelope, "delete_stream", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.getClient().DeleteStream(ctx, name)
	})
	return err
}

func (f *Facade) ListTopics(ctx context.Context, stream string) ([]TopicInfo, error) {
	if err := validate.ResourceName("stream name", stream); err != nil {
		return nil, err
	}
	return envelope.Run(ctx, f.envelope, "list_topics", func(ctx context.Context) ([]TopicInfo, error) {
		return f.getClient().ListTopics(ctx, stream)
	})
}

func (f *Facade) GetTopic(ctx context.Context, stream, topic string) (*TopicInfo, error) {
	if err := validate.ResourceName("stream name", stream); err != nil {
		return nil, err
	}
	if err := validate.ResourceName("topic name", topic); err != nil {
		return nil, err
	}
	return envelope.Run(ctx, f.envelope, "get_topic", func(ctx context.Context) (*TopicInfo, error) {
		return f.getClient().GetTopic(ctx, stream, topic)
	})
}

func (f *Facade) DeleteTopic(ctx context.Context, stream, topic string) error {
	if err := validate.ResourceName("stream name", stream); err != nil {
		return err
	}
	if err := validate.ResourceName("topic name", topic); err != nil {
		return err
	}
	_, err := envelope.Run(ctx, f.envelope, "delete_topic", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.getClient().DeleteTopic(ctx, stream, topic)
	})
	return err
}
