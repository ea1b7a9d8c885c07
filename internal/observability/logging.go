// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
)

// Logger wraps slog.Logger for the component loggers below.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the logger background components write to. ConfigureLogging
// replaces it; until then it writes JSON at info level to stdout.
var GlobalLogger = &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, nil))}

// LoggingConfig selects the level and which automated event logs are on.
type LoggingConfig struct {
	Level slog.Level
	// RepoWrites logs every repository create, update and delete at info.
	RepoWrites bool
	// Sockets logs websocket connects and disconnects.
	Sockets bool
	Output  io.Writer
}

var (
	repoWrites atomic.Bool
	sockets    atomic.Bool
)

func init() {
	repoWrites.Store(true)
	sockets.Store(true)
}

// ConfigureLogging installs cfg. Call it once at startup, before the loggers
// handed out by NewRepoLogger and NewWSLogger are used.
func ConfigureLogging(cfg LoggingConfig) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	GlobalLogger = &Logger{Logger: slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level}))}
	repoWrites.Store(cfg.RepoWrites)
	sockets.Store(cfg.Sockets)
}

// LoggingFor maps an APP_ENV to the default logging setup: debug and full
// event logs in development, quiet tests, info elsewhere.
func LoggingFor(env string) LoggingConfig {
	switch env {
	case "development", "dev", "":
		return LoggingConfig{Level: slog.LevelDebug, RepoWrites: true, Sockets: true}
	case "test":
		return LoggingConfig{Level: slog.LevelWarn}
	default:
		return LoggingConfig{Level: slog.LevelInfo, Sockets: true}
	}
}

// fieldAttrs turns fields into attrs in key order so log lines are stable.
func fieldAttrs(fields map[string]interface{}) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	return attrs
}

// RepoLogger tags repository log lines with their table.
type RepoLogger struct {
	table string
}

func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

func (l *RepoLogger) write(ctx context.Context, op string, fields map[string]interface{}) {
	if !repoWrites.Load() {
		return
	}
	attrs := append([]any{slog.String("table", l.table), slog.String("operation", op)}, fieldAttrs(fields)...)
	GlobalLogger.InfoContext(ctx, "repository "+op, attrs...)
}

func (l *RepoLogger) LogCreate(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "create", fields)
}

func (l *RepoLogger) LogUpdate(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "update", fields)
}

func (l *RepoLogger) LogDelete(ctx context.Context, fields map[string]interface{}) {
	l.write(ctx, "delete", fields)
}

// LogError is always written, whatever RepoWrites says.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	GlobalLogger.ErrorContext(ctx, "repository error",
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// WSLogger tags websocket log lines with their hub.
type WSLogger struct {
	hub string
}

func NewWSLogger(hub string) *WSLogger {
	return &WSLogger{hub: hub}
}

func (l *WSLogger) LogConnect(ctx context.Context, userID string) {
	if !sockets.Load() {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hub), slog.String("user_id", userID))
}

func (l *WSLogger) LogDisconnect(ctx context.Context, userID, reason string) {
	if !sockets.Load() {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hub), slog.String("user_id", userID), slog.String("reason", reason))
}

func (l *WSLogger) LogError(ctx context.Context, userID string, err error, eventType string) {
	GlobalLogger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hub),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogAsyncOperationError logs a failure in work that runs after the response
// was sent, such as notifications and event publishing.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	attrs := append([]any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
	}, fieldAttrs(fields)...)
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
