package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents traces domain operations of the real-time layer. Without a
// configured provider the global no-op tracer makes every call free.
type BusinessEvents struct {
	tracer trace.Tracer
}

// NewBusinessEvents creates a new business events tracer
func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{
		tracer: otel.Tracer("kinfolk/realtime"),
	}
}

// TraceDirectMessage creates a span around one send attempt
func (be *BusinessEvents) TraceDirectMessage(ctx context.Context, senderID, recipientID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "dm.send",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("dm.sender_id", senderID),
			attribute.String("dm.recipient_id", recipientID),
		),
	)
}

// TraceNotification creates a span around persisting and pushing a notification
func (be *BusinessEvents) TraceNotification(ctx context.Context, kind, targetID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "notification.deliver",
		trace.WithAttributes(
			attribute.String("notification.kind", kind),
			attribute.String("notification.user_id", targetID),
		),
	)
}

// TracePresence creates a span for an online/offline transition
func (be *BusinessEvents) TracePresence(ctx context.Context, userID string, online bool, audience int) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "presence.transition",
		trace.WithAttributes(
			attribute.String("presence.user_id", userID),
			attribute.Bool("presence.online", online),
			attribute.Int("presence.audience", audience),
		),
	)
}

// RecordDelivered notes how many live connections received an event
func RecordDelivered(span trace.Span, connections int) {
	span.SetAttributes(attribute.Int("realtime.connections", connections))
}

// EndSpan records err, if any, and ends the span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
