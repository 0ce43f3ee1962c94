package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Publisher delivers an event to the bus under routingKey.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// EventEnvelope wraps domain and websocket lifecycle events on the bus.
type EventEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	EventName     string `json:"event_name"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	RequestID     string `json:"request_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	Payload       any    `json:"payload"`
}

// EventEmitter publishes best-effort events. Failures are logged only.
type EventEmitter struct {
	publisher Publisher
	service   string
	log       *slog.Logger
}

func NewEventEmitter(publisher Publisher, service string, log *slog.Logger) *EventEmitter {
	return &EventEmitter{publisher: publisher, service: service, log: log}
}

func (e *EventEmitter) Emit(ctx context.Context, routingKey, name string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		SchemaVersion: 1,
		EventType:     eventType(routingKey),
		EventName:     name,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		RequestID:     RequestIDFromContext(ctx),
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}

	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		e.log.WarnContext(ctx, "event publish failed", "event", name, "routing_key", routingKey, "error", err)
	}
}

// eventType is the routing key's first segment, e.g. "ws_events" for "ws_events.groups".
func eventType(routingKey string) string {
	prefix, _, _ := strings.Cut(routingKey, ".")
	return prefix
}
