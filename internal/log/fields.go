package log

// Canonical field name constants for structured logging, kept consistent
// across packages so log queries don't need to special-case each emitter.
const (
	FieldCorrelationID = "correlation_id"
	FieldSessionID     = "session_id"
	FieldComponent     = "component"
	FieldEvent         = "event"

	FieldScope   = "scope"
	FieldAddress = "address"
	FieldCommand = "command"

	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldVersion  = "version"

	FieldSink     = "sink"
	FieldQueueLen = "queue_len"

	FieldClientUUID = "client_uuid"
	FieldClientIP   = "client_ip"
	FieldClientPort = "client_port"

	FieldErrorKind = "error_kind"
	FieldBytes     = "bytes"
)
