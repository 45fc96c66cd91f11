package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/relaywire/gatewayd/pkg/broker"
	"github.com/relaywire/gatewayd/pkg/identity"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/ratelimit"
	"github.com/relaywire/gatewayd/pkg/statscache"
)

// Config bundles everything the HTTP surface needs besides the broker
// façade and stats cache it fronts.
type Config struct {
	Addr            string
	APIKey          string
	TrustedProxies  []string
	RateLimit       ratelimit.Config
	AuthFailureRate ratelimit.Config
	StatsTTL        time.Duration
	CORSOrigins     []string
	Identity        *identity.Extractor
}

// Server wraps the gin engine and an *http.Server for graceful
// shutdown.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *logging.Logger
}

// NewServer builds the gin router and registers the gateway routes,
// wiring the middleware chain in order: correlation id, caller
// identity, rate limit, auth.
func NewServer(cfg Config, facade *broker.Facade, stats *statscache.Cache, logger *logging.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ginLoggerMiddleware(logger))

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, apiKeyHeader, correlationHeader)
	engine.Use(cors.New(corsCfg))

	if len(cfg.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.TrustedProxies)
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	requestLimiter := ratelimit.New(cfg.RateLimit)
	authFailures := ratelimit.New(cfg.AuthFailureRate)

	engine.Use(correlationIDMiddleware())
	engine.Use(identityMiddleware(cfg.Identity))
	engine.Use(rateLimitMiddleware(requestLimiter))

	h := newHandlers(facade, stats, cfg.StatsTTL)

	engine.GET("/health", h.getHealth)
	engine.GET("/stats", h.getStats)
	engine.GET("/admin/stream", newAdminFeed(facade, stats, logger).handle)

	api := engine.Group("/", authMiddleware(cfg.APIKey, authFailures))
	{
		api.POST("/streams", h.createStream)
		api.GET("/streams", h.listStreams)
		api.GET("/streams/:stream", h.getStream)
		api.DELETE("/streams/:stream", h.deleteStream)

		api.POST("/streams/:stream/topics", h.createTopic)
		api.GET("/streams/:stream/topics", h.listTopics)
		api.GET("/streams/:stream/topics/:topic", h.getTopic)
		api.DELETE("/streams/:stream/topics/:topic", h.deleteTopic)

		api.POST("/streams/:stream/topics/:topic/messages", h.publish)
		api.POST("/streams/:stream/topics/:topic/messages/batch", h.publishBatch)
		api.GET("/streams/:stream/topics/:topic/messages", h.poll)
	}

	return &Server{
		engine: engine,
		http:   &http.Server{Addr: cfg.Addr, Handler: engine},
		logger: logger,
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ginLoggerMiddleware emits one structured line per completed request.
// It runs ahead of them in the chain but logs after c.Next(), so the
// correlation id and caller key set by later middleware are available.
func ginLoggerMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		el := logging.NewEnhancedLogger(logger, c.Request.Context()).
			WithRequestID(c.GetString(correlationHeader)).
			WithCallerKey(callerKey(c))

		var reqErr error
		if len(c.Errors) > 0 {
			reqErr = c.Errors.Last()
		}
		el.LogHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), reqErr)
	}
}
