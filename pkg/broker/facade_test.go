package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywire/gatewayd/pkg/breaker"
	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/reconnect"
)

// fakeClient is an in-memory stand-in for the real broker SDK,
// exercising every Client method the façade depends on.
type fakeClient struct {
	mu          sync.Mutex
	connectErr  error
	streams     map[string]*StreamInfo
	topics      map[string]*TopicInfo
	frames      []RawFrame
	publishErrs []error // consumed in order per Publish call
	closed      bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{streams: map[string]*StreamInfo{}, topics: map[string]*TopicInfo{}}
}

func (c *fakeClient) Connect(ctx context.Context) error { return c.connectErr }
func (c *fakeClient) Close() error                      { c.closed = true; return nil }

func (c *fakeClient) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []StreamInfo
	for _, s := range c.streams {
		out = append(out, *s)
	}
	return out, nil
}

func (c *fakeClient) GetStream(ctx context.Context, name string) (*StreamInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[name]; ok {
		return s, nil
	}
	return nil, gwerrors.NewNotFound("stream", name)
}

func (c *fakeClient) CreateStream(ctx context.Context, name string) (*StreamInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &StreamInfo{Name: name, CreatedAt: time.Now()}
	c.streams[name] = s
	return s, nil
}

func (c *fakeClient) DeleteStream(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, name)
	return nil
}

func topicKey(stream, topic string) string { return stream + "/" + topic }

func (c *fakeClient) ListTopics(ctx context.Context, stream string) ([]TopicInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []TopicInfo
	for _, top := range c.topics {
		if top.Stream == stream {
			out = append(out, *top)
		}
	}
	return out, nil
}

func (c *fakeClient) GetTopic(ctx context.Context, stream, topic string) (*TopicInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if top, ok := c.topics[topicKey(stream, topic)]; ok {
		return top, nil
	}
	return nil, gwerrors.NewNotFound("topic", topic)
}

func (c *fakeClient) CreateTopic(ctx context.Context, stream, topic string, partitions int) (*TopicInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	top := &TopicInfo{Stream: stream, Name: topic, Partitions: partitions, CreatedAt: time.Now()}
	c.topics[topicKey(stream, topic)] = top
	return top, nil
}

func (c *fakeClient) DeleteTopic(ctx context.Context, stream, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topicKey(stream, topic))
	return nil
}

func (c *fakeClient) Publish(ctx context.Context, stream, topic string, partition *uint32, key *string, event Event) (PublishResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.publishErrs) > 0 {
		err := c.publishErrs[0]
		c.publishErrs = c.publishErrs[1:]
		if err != nil {
			return PublishResult{}, err
		}
	}
	raw, _ := json.Marshal(event)
	c.frames = append(c.frames, RawFrame{Offset: uint64(len(c.frames)), Raw: raw, Timestamp: time.Now()})
	return PublishResult{Offset: uint64(len(c.frames) - 1), PartitionID: 0}, nil
}

func (c *fakeClient) PublishBatch(ctx context.Context, stream, topic string, partition *uint32, key *string, events []Event) (BatchResult, error) {
	var results []PublishResult
	for _, e := range events {
		r, err := c.Publish(ctx, stream, topic, partition, key, e)
		if err != nil {
			return BatchResult{}, err
		}
		results = append(results, r)
	}
	return BatchResult{Results: results}, nil
}

func (c *fakeClient) Poll(ctx context.Context, stream, topic string, cursor PollCursor) ([]RawFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := 0
	if cursor.Offset != nil {
		start = int(*cursor.Offset)
	}
	var out []RawFrame
	for i := start; i < len(c.frames) && len(out) < cursor.Count; i++ {
		out = append(out, c.frames[i])
	}
	return out, nil
}

func newTestFacade(t *testing.T, client *fakeClient) *Facade {
	t.Helper()
	f := New(func() Client { return client }, Config{
		Reconnect: reconnect.Config{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3},
		Breaker:   breaker.Config{FailureThreshold: 5, SuccessThreshold: 2, OpenDuration: 50 * time.Millisecond},
		Timeout:   time.Second,
	}, logging.NewTestSafeLogger())
	require.NoError(t, f.Connect(context.Background()))
	return f
}

func TestEnsureStreamCreatesOnAbsence(t *testing.T) {
	f := newTestFacade(t, newFakeClient())
	info, err := f.EnsureStream(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", info.Name)

	again, err := f.EnsureStream(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", again.Name)
}

func TestEnsureStreamRejectsInvalidName(t *testing.T) {
	f := newTestFacade(t, newFakeClient())
	_, err := f.EnsureStream(context.Background(), "-bad")
	require.Error(t, err)
	assert.True(t, gwerrors.HasCode(err, gwerrors.BadRequest))
}

func TestEnsureTopicCreatesOnAbsence(t *testing.T) {
	f := newTestFacade(t, newFakeClient())
	_, err := f.EnsureStream(context.Background(), "orders")
	require.NoError(t, err)

	top, err := f.EnsureTopic(context.Background(), "orders", "events", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, top.Partitions)
}

func TestPublishBatchEmptyIsNoOp(t *testing.T) {
	client := newFakeClient()
	f := newTestFacade(t, client)
	result, err := f.PublishBatch(context.Background(), "s", "t", nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Empty(t, client.frames)
}

func TestPollSkipsMalformedFramesAndDefaultsBadTimestamp(t *testing.T) {
	client := newFakeClient()
	client.frames = []RawFrame{
		{Offset: 0, Raw: []byte("not json"), Timestamp: time.Now()},
		{Offset: 1, Raw: []byte(`{"id":"` + uuid.New().String() + `","event_type":"e"}`), Timestamp: time.Now()},
	}
	f := newTestFacade(t, client)

	msgs, err := f.Poll(context.Background(), "s", "t", PollCursor{Count: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1, "the malformed frame must be skipped, not fatal")
	assert.False(t, msgs[0].Event.Timestamp.IsZero(), "a missing/invalid timestamp must default to now")
}

// TestPublishPollRoundTrip publishes a single event and polls it back,
// asserting id, event type and payload survive the round trip.
func TestPublishPollRoundTrip(t *testing.T) {
	client := newFakeClient()
	f := newTestFacade(t, client)

	_, err := f.EnsureStream(context.Background(), "s")
	require.NoError(t, err)
	_, err = f.EnsureTopic(context.Background(), "s", "t", 1)
	require.NoError(t, err)

	id := uuid.New()
	payload := json.RawMessage(`{"ok":true}`)
	event := Event{ID: id, EventType: "e2e.test.verification", Timestamp: time.Now(), Payload: payload}

	_, err = f.Publish(context.Background(), "s", "t", nil, nil, event)
	require.NoError(t, err)

	offset := uint64(0)
	msgs, err := f.Poll(context.Background(), "s", "t", PollCursor{PartitionID: 0, Offset: &offset, Count: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].Event.ID)
	assert.Equal(t, "e2e.test.verification", msgs[0].Event.EventType)
	assert.JSONEq(t, string(payload), string(msgs[0].Event.Payload))
}

func TestPublishConnectionErrorReconnectsAndRetries(t *testing.T) {
	client := newFakeClient()
	client.publishErrs = []error{gwerrors.NewConnectionFailed("broker reset", errors.New("EOF"))}
	f := newTestFacade(t, client)

	result, err := f.Publish(context.Background(), "s", "t", nil, nil, Event{ID: uuid.New(), EventType: "e", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.Offset)
	assert.Equal(t, breaker.Closed, f.Breaker().Phase())
}
