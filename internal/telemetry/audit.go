package telemetry

import (
	"context"
	"log/slog"
)

// Audit levels.
const (
	AuditInfo  = "INFO"
	AuditError = "ERROR"
)

const auditEventName = "audit_log"

// AuditRecord is the payload of an audit_log event.
type AuditRecord struct {
	Level       string  `json:"level"`
	Text        string  `json:"text"`
	UserID      *string `json:"user_id,omitempty"`
	Environment string  `json:"environment"`
}

// AuditEmitter publishes audit_log events on one routing key and mirrors them
// into the service log.
type AuditEmitter struct {
	events      *EventEmitter
	routingKey  string
	environment string
	log         *slog.Logger
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		events:      NewEventEmitter(publisher, service, log),
		routingKey:  routingKey,
		environment: environment,
		log:         log,
	}
}

// Emit records one audit line. userID is nil for anonymous callers.
func (e *AuditEmitter) Emit(ctx context.Context, level, text string, userID *string) {
	if e == nil {
		return
	}

	attrs := []any{"audit_level", level, "request_id", RequestIDFromContext(ctx)}
	if userID != nil {
		attrs = append(attrs, "user_id", *userID)
	}
	e.log.Log(ctx, mirrorLevel(level), text, attrs...)

	e.events.Emit(ctx, e.routingKey, auditEventName, AuditRecord{
		Level:       level,
		Text:        text,
		UserID:      userID,
		Environment: e.environment,
	})
}

// mirrorLevel keeps routine audit lines out of info logs.
func mirrorLevel(level string) slog.Level {
	if level == AuditError {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}
