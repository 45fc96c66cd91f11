package logging

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// ContextKey represents keys for storing values in context.
type ContextKey string

const (
	RequestIDKey     ContextKey = "request_id"
	CorrelationIDKey ContextKey = "correlation_id"
	CallerKeyKey     ContextKey = "caller_key"
	TraceIDKey       ContextKey = "trace_id"
)

// EnhancedLogger provides structured logging with request context and
// per-operation timing, layered on top of the base Logger.
type EnhancedLogger struct {
	base   *Logger
	ctx    context.Context
	fields map[string]interface{}
}

// NewEnhancedLogger creates a new enhanced logger with context.
func NewEnhancedLogger(base *Logger, ctx context.Context) *EnhancedLogger {
	return &EnhancedLogger{
		base:   base,
		ctx:    ctx,
		fields: make(map[string]interface{}),
	}
}

// WithContext creates a new logger with additional context.
func (el *EnhancedLogger) WithContext(ctx context.Context) *EnhancedLogger {
	return &EnhancedLogger{
		base:   el.base,
		ctx:    ctx,
		fields: el.copyFields(),
	}
}

// WithField adds a field to the logger context.
func (el *EnhancedLogger) WithField(key string, value interface{}) *EnhancedLogger {
	newLogger := &EnhancedLogger{
		base:   el.base,
		ctx:    el.ctx,
		fields: el.copyFields(),
	}
	newLogger.fields[key] = value
	return newLogger
}

// WithFields adds multiple fields to the logger context.
func (el *EnhancedLogger) WithFields(fields map[string]interface{}) *EnhancedLogger {
	newLogger := &EnhancedLogger{
		base:   el.base,
		ctx:    el.ctx,
		fields: el.copyFields(),
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

// WithRequestID adds the request correlation id to the logger context.
func (el *EnhancedLogger) WithRequestID(requestID string) *EnhancedLogger {
	return el.WithField("request_id", requestID)
}

// WithCallerKey adds the extracted caller identity to the logger context.
func (el *EnhancedLogger) WithCallerKey(callerKey string) *EnhancedLogger {
	return el.WithField("caller_key", callerKey)
}

// TimeOperation logs the duration of an operation.
func (el *EnhancedLogger) TimeOperation(operation string, fn func() error) error {
	start := time.Now()
	el.Debug("starting operation", "operation", operation)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		el.Error("operation failed",
			"operation", operation,
			"duration", duration,
			"error", err)
	} else {
		el.Info("operation completed",
			"operation", operation,
			"duration", duration)
	}

	return err
}

// Debug logs at debug level with context.
func (el *EnhancedLogger) Debug(msg string, args ...interface{}) {
	el.logWithContext("DEBUG", msg, args...)
}

// Info logs at info level with context.
func (el *EnhancedLogger) Info(msg string, args ...interface{}) {
	el.logWithContext("INFO", msg, args...)
}

// Warn logs at warn level with context.
func (el *EnhancedLogger) Warn(msg string, args ...interface{}) {
	el.logWithContext("WARN", msg, args...)
}

// Error logs at error level with context and the call site.
func (el *EnhancedLogger) Error(msg string, args ...interface{}) {
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, "caller", fmt.Sprintf("%s:%d", file, line))
	}
	el.logWithContext("ERROR", msg, args...)
}

// logWithContext logs a message with full context information.
func (el *EnhancedLogger) logWithContext(level string, msg string, args ...interface{}) {
	allArgs := make([]interface{}, 0, len(el.fields)*2+len(args))

	if el.ctx != nil {
		if requestID := el.ctx.Value(RequestIDKey); requestID != nil {
			allArgs = append(allArgs, "request_id", requestID)
		}
		if correlationID := el.ctx.Value(CorrelationIDKey); correlationID != nil {
			allArgs = append(allArgs, "correlation_id", correlationID)
		}
		if callerKey := el.ctx.Value(CallerKeyKey); callerKey != nil {
			allArgs = append(allArgs, "caller_key", callerKey)
		}
		if traceID := el.ctx.Value(TraceIDKey); traceID != nil {
			allArgs = append(allArgs, "trace_id", traceID)
		}
	}

	for k, v := range el.fields {
		allArgs = append(allArgs, k, v)
	}

	allArgs = append(allArgs, args...)

	if el.base == nil {
		return
	}
	switch level {
	case "DEBUG":
		el.base.Debug(msg, allArgs...)
	case "INFO":
		el.base.Info(msg, allArgs...)
	case "WARN":
		el.base.Warn(msg, allArgs...)
	case "ERROR":
		el.base.Error(msg, allArgs...)
	}
}

// copyFields creates a copy of the current fields map.
func (el *EnhancedLogger) copyFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(el.fields))
	for k, v := range el.fields {
		fields[k] = v
	}
	return fields
}

// LogHTTPRequest provides structured logging for a completed HTTP request.
func (el *EnhancedLogger) LogHTTPRequest(method, path string, statusCode int, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"http_method":   method,
		"http_path":     path,
		"http_status":   statusCode,
		"http_duration": duration,
	}

	l := el.WithFields(fields)

	switch {
	case err != nil:
		l.Error("http request failed", "error", err)
	case statusCode >= 500:
		l.Error("http request completed with server error")
	case statusCode >= 400:
		l.Warn("http request completed with client error")
	default:
		l.Info("http request completed")
	}
}

// GoroutineCount logs the current number of goroutines, useful when
// diagnosing reconnect storms or leaked background tasks.
func (el *EnhancedLogger) GoroutineCount() {
	el.Debug("goroutine count", "count", runtime.NumGoroutine())
}
