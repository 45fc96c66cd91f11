package broker

import (
	"context"
	"net"

	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
)

// tcpClient is the production Client: it owns a live TCP socket to the
// broker address and participates in the resilience core (Connect
// failures are connection-band, driving reconnect/breaker accounting).
// The retrieval pack carries no Go SDK for the upstream broker's wire
// protocol (see DESIGN.md); this client proves out the connection
// lifecycle end to end and returns a clear operation-band error for
// the data-plane calls until a real SDK is wired in.
type tcpClient struct {
	addr string
	conn net.Conn
}

// NewTCPClientFactory returns a Factory that dials addr on Connect.
func NewTCPClientFactory(addr string) Factory {
	return func() Client { return &tcpClient{addr: addr} }
}

func (c *tcpClient) Connect(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return gwerrors.NewConnectionFailed("failed to dial broker", err)
	}
	c.conn = conn
	return nil
}

func (c *tcpClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

var errNotImplemented = gwerrors.New(gwerrors.Internal, "broker wire protocol not implemented for this client")

func (c *tcpClient) ListStreams(ctx context.Context) ([]StreamInfo, error) { return nil, errNotImplemented }

func (c *tcpClient) GetStream(ctx context.Context, name string) (*StreamInfo, error) {
	return nil, errNotImplemented
}

func (c *tcpClient) CreateStream(ctx context.Context, name string) (*StreamInfo, error) {
	return nil, errNotImplemented
}

func (c *tcpClient) DeleteStream(ctx context.Context, name string) error { return errNotImplemented }

func (c *tcpClient) ListTopics(ctx context.Context, stream string) ([]TopicInfo, error) {
	return nil, errNotImplemented
}

func (c *tcpClient) GetTopic(ctx context.Context, stream, topic string) (*TopicInfo, error) {
	return nil, errNotImplemented
}

func (c *tcpClient) CreateTopic(ctx context.Context, stream, topic string, partitions int) (*TopicInfo, error) {
	return nil, errNotImplemented
}

func (c *tcpClient) DeleteTopic(ctx context.Context, stream, topic string) error {
	return errNotImplemented
}

func (c *tcpClient) Publish(ctx context.Context, stream, topic string, partition *uint32, key *string, event Event) (PublishResult, error) {
	return PublishResult{}, errNotImplemented
}

func (c *tcpClient) PublishBatch(ctx context.Context, stream, topic string, partition *uint32, key *string, events []Event) (BatchResult, error) {
	return BatchResult{}, errNotImplemented
}

func (c *tcpClient) Poll(ctx context.Context, stream, topic string, cursor PollCursor) ([]RawFrame, error) {
	return nil, errNotImplemented
}
