package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentTick creates the span covering one advance and fan-out
func InstrumentTick(ctx context.Context, sessions int) (context.Context, trace.Span) {
	return StartSpan(ctx, "hub.tick",
		trace.WithAttributes(attribute.Int(AttrSessionCount, sessions)),
	)
}

// InstrumentSessionOpened creates a span that lives as long as the session
func InstrumentSessionOpened(ctx context.Context, sessionID, remoteAddr string) (context.Context, trace.Span) {
	return StartSpan(ctx, "session",
		trace.WithAttributes(SessionAttrs(sessionID, remoteAddr)...),
	)
}

// InstrumentSessionClosed marks the end of a session span
func InstrumentSessionClosed(span trace.Span, reason error) {
	AddEvent(span, "session.closed", attribute.String(AttrSessionState, "closed"))
	RecordError(span, reason)
	span.End()
}
