package messagebus

// Стандартные заголовки сообщений с событиями
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderCorrelationID = "correlation_id"
	HeaderCausationID   = "causation_id"
)
