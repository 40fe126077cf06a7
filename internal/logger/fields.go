package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldMemberID  = "member_id"
	FieldClassID   = "class_id"
	FieldStrategy  = "strategy"
	FieldStage     = "stage"
	FieldCacheKey  = "cache_key"
	FieldRunID     = "run_id"
)

// Metric fields, attached per entry for aggregation and alerting.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldReason     = "reason"
)
