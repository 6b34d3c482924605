package logging

import "log/slog"

// Field names shared across log statements so operational queries can
// rely on consistent keys.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
	FieldEventType = "event_type"
	FieldSessionID = "session_id"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldSourceIP  = "source_ip"
)

// Service returns the service-name attribute.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RequestID returns the request-ID attribute.
func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

// EventType returns the event-type attribute.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// SessionID returns the session-ID attribute.
func SessionID(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// Status returns the audit-status attribute.
func Status(s string) slog.Attr {
	return slog.String(FieldStatus, s)
}

// Duration returns the duration attribute in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns the error attribute.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// SourceIP returns the client-address attribute.
func SourceIP(ip string) slog.Attr {
	return slog.String(FieldSourceIP, ip)
}
