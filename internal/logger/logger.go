// Package logger wraps slog with the service's domain log helpers.
package logger

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New builds a logger writing to stdout: text at debug level, JSON otherwise.
func New(level string) *Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level string) *Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if lvl == slog.LevelDebug {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// SetAsDefault routes the package-level slog functions through l.
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("session_id", sessionID))}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

func (l *Logger) LogSessionCreated(sessionID string) {
	l.Info("Session created", slog.String("session_id", sessionID))
}

func (l *Logger) LogSessionExpired(sessionID string, idle time.Duration) {
	l.Info("Session expired", slog.String("session_id", sessionID), slog.Duration("idle", idle))
}

func (l *Logger) LogStepAdvanced(sessionID string, from, to models.Step) {
	l.Info("Booking step changed",
		slog.String("session_id", sessionID),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

func (l *Logger) LogOrderSubmitted(sessionID string, receipt models.OrderReceipt, total models.Money) {
	l.Info("Order submitted",
		slog.String("session_id", sessionID),
		slog.String("order_id", receipt.OrderID),
		slog.String("status", string(receipt.Status)),
		slog.Int64("total", int64(total)),
	)
}

func (l *Logger) LogHTTPRequest(r *http.Request, status, size int, duration time.Duration) {
	l.InfoContext(r.Context(), "HTTP Request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("query", r.URL.RawQuery),
		slog.Int("status", status),
		slog.Int("size", size),
		slog.Duration("duration", duration),
		slog.String("ip", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)
}
