package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/relaywire/gatewayd/pkg/breaker"
	"github.com/relaywire/gatewayd/pkg/broker"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/statscache"
)

// adminFeed is the GET /admin/stream live feed: a websocket
// connection that samples the stats snapshot, the breaker phase and
// the connection state once per feedPollInterval and pushes a frame for
// each one that changed since the previous sample. Changes that revert
// within one interval are not reported.
type adminFeed struct {
	facade   *broker.Facade
	stats    *statscache.Cache
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func newAdminFeed(facade *broker.Facade, stats *statscache.Cache, logger *logging.Logger) *adminFeed {
	return &adminFeed{
		facade: facade,
		stats:  stats,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type feedFrame struct {
	Type      string               `json:"type"`
	Stats     *statscache.Snapshot `json:"stats,omitempty"`
	Phase     string               `json:"phase,omitempty"`
	Connected *bool                `json:"connected,omitempty"`
}

const feedPollInterval = time.Second

func (a *adminFeed) handle(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("admin feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	ticker := time.NewTicker(feedPollInterval)
	defer ticker.Stop()

	var lastPhase breaker.Phase = -1
	var lastConnected = struct {
		set   bool
		value bool
	}{}
	var lastRefresh time.Time

	// readPump drains and discards client frames so the connection
	// notices a client-initiated close; this feed is send-only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.stats.Get()
			if snap.LastRefresh != nil && !snap.LastRefresh.Equal(lastRefresh) {
				lastRefresh = *snap.LastRefresh
				if err := writeFrame(conn, feedFrame{Type: "stats", Stats: &snap}); err != nil {
					return
				}
			}

			phase := a.facade.Breaker().Phase()
			if phase != lastPhase {
				lastPhase = phase
				if err := writeFrame(conn, feedFrame{Type: "breaker", Phase: phase.String()}); err != nil {
					return
				}
			}

			connected := a.facade.State().IsConnected()
			if !lastConnected.set || lastConnected.value != connected {
				lastConnected.set, lastConnected.value = true, connected
				c := connected
				if err := writeFrame(conn, feedFrame{Type: "connection", Connected: &c}); err != nil {
					return
				}
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame feedFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
