package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on hub and session spans
const (
	// Hub attributes
	AttrTickSeq      = "hub.tick.seq"
	AttrSessionCount = "hub.sessions"
	AttrSendFailures = "hub.send_failures"
	AttrPayloadSize  = "hub.payload_size"

	// Pipeline attributes
	AttrFocusLabel        = "focus.label"
	AttrVerdictLabel      = "verdict.label"
	AttrVerdictConfidence = "verdict.confidence"
	AttrVerdictEmitted    = "verdict.emitted"

	// Session attributes
	AttrSessionID     = "session.id"
	AttrSessionRemote = "session.remote_addr"
	AttrSessionState  = "session.state"
)

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID, remoteAddr string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrSessionRemote, remoteAddr),
	}
}

// TickAttrs creates attributes for one broadcast tick
func TickAttrs(seq uint64, sessions, payloadSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrTickSeq, int64(seq)),
		attribute.Int(AttrSessionCount, sessions),
		attribute.Int(AttrPayloadSize, payloadSize),
	}
}

// VerdictAttrs creates attributes describing the classification state
func VerdictAttrs(focus string, emitted bool, verdict string, confidence float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrFocusLabel, focus),
		attribute.Bool(AttrVerdictEmitted, emitted),
	}
	if emitted {
		attrs = append(attrs,
			attribute.String(AttrVerdictLabel, verdict),
			attribute.Float64(AttrVerdictConfidence, confidence),
		)
	}
	return attrs
}
