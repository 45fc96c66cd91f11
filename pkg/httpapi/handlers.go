package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaywire/gatewayd/pkg/broker"
	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/statscache"
	"github.com/relaywire/gatewayd/pkg/validate"
)

// writeError maps a GatewayError onto its wire response:
// status derived from the error band, message sanitized so broker
// internals never reach the caller.
func writeError(c *gin.Context, err error) {
	ge, ok := gwerrors.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
		return
	}
	c.JSON(gwerrors.HTTPStatus(ge.Code), errorResponse{
		Error:   string(ge.Code),
		Message: gwerrors.ClientMessage(ge),
	})
}

type handlers struct {
	facade  *broker.Facade
	stats   *statscache.Cache
	statTTL time.Duration
}

func newHandlers(facade *broker.Facade, stats *statscache.Cache, statTTL time.Duration) *handlers {
	return &handlers{facade: facade, stats: stats, statTTL: statTTL}
}

func (h *handlers) createStream(c *gin.Context) {
	var req CreateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, gwerrors.NewBadRequest("invalid request body"))
		return
	}
	info, err := h.facade.EnsureStream(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStreamResponse(*info))
}

func (h *handlers) listStreams(c *gin.Context) {
	infos, err := h.facade.ListStreams(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]StreamResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toStreamResponse(info))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getStream(c *gin.Context) {
	info, err := h.facade.GetStream(c.Request.Context(), c.Param("stream"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStreamResponse(*info))
}

func (h *handlers) deleteStream(c *gin.Context) {
	if err := h.facade.DeleteStream(c.Request.Context(), c.Param("stream")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) createTopic(c *gin.Context) {
	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, gwerrors.NewBadRequest("invalid request body"))
		return
	}
	info, err := h.facade.EnsureTopic(c.Request.Context(), c.Param("stream"), req.Name, req.Partitions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTopicResponse(*info))
}

func (h *handlers) listTopics(c *gin.Context) {
	infos, err := h.facade.ListTopics(c.Request.Context(), c.Param("stream"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]TopicResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toTopicResponse(info))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getTopic(c *gin.Context) {
	info, err := h.facade.GetTopic(c.Request.Context(), c.Param("stream"), c.Param("topic"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTopicResponse(*info))
}

func (h *handlers) deleteTopic(c *gin.Context) {
	if err := h.facade.DeleteTopic(c.Request.Context(), c.Param("stream"), c.Param("topic")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) publish(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, gwerrors.NewBadRequest("invalid request body"))
		return
	}
	if err := validate.EventType(req.EventType); err != nil {
		writeError(c, err)
		return
	}

	event := requestToEvent(req)
	result, err := h.facade.Publish(c.Request.Context(), c.Param("stream"), c.Param("topic"), req.PartitionID, req.Key, event)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SendMessageResponse{ID: event.ID.String(), Offset: result.Offset, PartitionID: result.PartitionID})
}

func (h *handlers) publishBatch(c *gin.Context) {
	var req SendBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, gwerrors.NewBadRequest("invalid request body"))
		return
	}

	events := make([]broker.Event, 0, len(req.Messages))
	var partition *uint32
	var key *string
	for _, m := range req.Messages {
		if err := validate.EventType(m.EventType); err != nil {
			writeError(c, err)
			return
		}
		events = append(events, requestToEvent(m))
		if partition == nil {
			partition = m.PartitionID
		}
		if key == nil {
			key = m.Key
		}
	}

	result, err := h.facade.PublishBatch(c.Request.Context(), c.Param("stream"), c.Param("topic"), partition, key, events)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]SendMessageResponse, len(result.Results))
	for i, r := range result.Results {
		out[i] = SendMessageResponse{ID: events[i].ID.String(), Offset: r.Offset, PartitionID: r.PartitionID}
	}
	c.JSON(http.StatusOK, SendBatchResponse{Results: out})
}

func (h *handlers) poll(c *gin.Context) {
	partitionID, err := parseUint32Query(c, "partition_id")
	if err != nil {
		writeError(c, gwerrors.NewBadRequest("partition_id must be a valid integer"))
		return
	}

	consumerID, err := strconv.ParseInt(c.DefaultQuery("consumer_id", "0"), 10, 64)
	if err != nil {
		writeError(c, gwerrors.NewBadRequest("consumer_id must be a valid integer"))
		return
	}
	if err := validate.ConsumerID(consumerID); err != nil {
		writeError(c, err)
		return
	}

	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil || count <= 0 {
		writeError(c, gwerrors.NewBadRequest("count must be a positive integer"))
		return
	}

	cursor := broker.PollCursor{
		PartitionID: partitionID,
		ConsumerID:  consumerID,
		Count:       count,
		AutoCommit:  c.DefaultQuery("auto_commit", "false") == "true",
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(c, gwerrors.NewBadRequest("offset must be a valid integer"))
			return
		}
		cursor.Offset = &offset
	}

	messages, err := h.facade.Poll(c.Request.Context(), c.Param("stream"), c.Param("topic"), cursor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PollMessagesResponse{Messages: messages})
}

func (h *handlers) getStats(c *gin.Context) {
	snap := h.stats.Get()
	resp := statsResponse{
		StreamsCount:   snap.StreamsCount,
		TopicsCount:    snap.TopicsCount,
		TotalMessages:  snap.TotalMessages,
		TotalSizeBytes: snap.TotalSizeBytes,
		HumanSize:      humanize.Bytes(snap.TotalSizeBytes),
		Stale:          snap.Stale(h.statTTL),
	}
	if snap.LastRefresh != nil {
		s := snap.LastRefresh.Format(rfc3339)
		resp.LastRefresh = &s
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getHealth(c *gin.Context) {
	connected := h.facade.State().IsConnected()
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"connected":     connected,
		"breaker_phase": h.facade.Breaker().Phase().String(),
	})
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

func parseUint32Query(c *gin.Context, name string) (uint32, error) {
	raw := c.DefaultQuery(name, "0")
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func requestToEvent(req SendMessageRequest) broker.Event {
	event := broker.Event{
		ID:        uuid.New(),
		EventType: req.EventType,
		Timestamp: time.Now(),
		Payload:   req.Payload,
		Source:    req.Source,
	}
	if req.CorrelationID != nil {
		if id, err := uuid.Parse(*req.CorrelationID); err == nil {
			event.CorrelationID = &id
		}
	}
	return event
}

func toStreamResponse(info broker.StreamInfo) StreamResponse {
	return StreamResponse{
		Name:          info.Name,
		CreatedAt:     info.CreatedAt.Format(rfc3339),
		Topics:        info.Topics,
		SizeBytes:     info.SizeBytes,
		MessagesCount: info.MessagesCount,
	}
}

func toTopicResponse(info broker.TopicInfo) TopicResponse {
	return TopicResponse{
		Stream:        info.Stream,
		Name:          info.Name,
		Partitions:    info.Partitions,
		CreatedAt:     info.CreatedAt.Format(rfc3339),
		SizeBytes:     info.SizeBytes,
		MessagesCount: info.MessagesCount,
	}
}
