package domain

import "time"

// AuditRecord is one fire-and-forget observability event. Sinks must
// never block or fail the request path when recording one.
type AuditRecord struct {
	Level         string
	Source        string
	Action        string
	Message       string
	CorrelationID string
	TenantID      string
	Details       map[string]any
	At            time.Time
}
