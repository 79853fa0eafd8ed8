package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	// RoomIDKey carries the room occurrence through request contexts.
	RoomIDKey contextKey = "room_id"
	// ParticipantIDKey carries the acting participant.
	ParticipantIDKey contextKey = "participant_id"
	// SessionIDKey carries the active pairing, when one exists.
	SessionIDKey contextKey = "session_id"
)

// ContextLogger enriches log entries with room/participant/session fields
// pulled from the context.
type ContextLogger struct {
	logger *zap.Logger
}

// NewContextLogger wraps a zap logger.
func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a logger carrying whatever identifiers the context
// holds.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	fields := []zapcore.Field{}

	for _, key := range []contextKey{RoomIDKey, ParticipantIDKey, SessionIDKey} {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok {
				fields = append(fields, zap.String(string(key), s))
			}
		}
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// WithError adds an error field.
func (cl *ContextLogger) WithError(err error) *zap.Logger {
	return cl.logger.With(zap.Error(err))
}
