package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaywire/gatewayd/pkg/identity"
	"github.com/relaywire/gatewayd/pkg/ratelimit"
)

const (
	callerKeyContextKey = "gatewayd.caller_key"
	correlationHeader   = "X-Correlation-ID"
	apiKeyHeader        = "X-API-Key"
)

// identityMiddleware resolves the caller key once per request and
// stashes it in the gin context for downstream middleware/handlers.
func identityMiddleware(extractor *identity.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerKeyContextKey, extractor.Extract(c.Request))
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if v, ok := c.Get(callerKeyContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return identity.Unknown
}

// correlationIDMiddleware propagates an inbound correlation id or
// generates a fresh UUID when absent.
func correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Writer.Header().Set(correlationHeader, id)
		c.Set(correlationHeader, id)
		c.Next()
	}
}

// rateLimitMiddleware gates every request through the keyed request
// limiter, returning 429 with retry headers on rejection.
func rateLimitMiddleware(limiter *ratelimit.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := limiter.Allow(callerKey(c))
		if decision.Allowed {
			c.Next()
			return
		}
		writeRateLimited(c, decision)
	}
}

func writeRateLimited(c *gin.Context, d ratelimit.Decision) {
	c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
	c.Header("X-RateLimit-Limit", strconv.FormatFloat(d.Limit, 'f', -1, 64))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
		Error:   "rate_limited",
		Message: "too many requests",
	})
}

// authMiddleware checks the auth-failure limiter before credentials:
// the auth-failure bucket is consulted (without consuming a token) for
// quota exhaustion before any credential comparison runs; a token is
// consumed only on a mismatch or missing credential, never on success,
// so a legitimate high-volume client with always-valid credentials
// never depletes the bucket meant to catch brute-force guessing.
// Credential comparison is constant-time over the byte contents of the
// provided key.
func authMiddleware(expectedKey string, authFailures *ratelimit.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedKey == "" {
			c.Next()
			return
		}

		key := callerKey(c)
		if decision := authFailures.Peek(key); !decision.Allowed {
			writeRateLimited(c, decision)
			return
		}

		provided := c.GetHeader(apiKeyHeader)
		if provided == "" || !constantTimeEqual(provided, expectedKey) {
			authFailures.Allow(key)
			c.Header("WWW-Authenticate", "API-Key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error:   "unauthorized",
				Message: "missing or invalid API key",
			})
			return
		}
		c.Next()
	}
}

// constantTimeEqual compares a and b without short-circuiting on the
// first differing byte. Lengths may leak; no padding gymnastics are
// added to hide that.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
