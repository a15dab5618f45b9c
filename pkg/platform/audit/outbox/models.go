package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "audittrail/pkg/platform/audit"
)

// AggregateAuditEvent is the aggregate type of every entry written by Sink.
const AggregateAuditEvent = "audit_event"

// Entry is a pending audit record in the outbox table. Its ID doubles as the
// Kafka message key, which consumers use to deduplicate redeliveries.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string // resource the event is about, e.g. "folder:42"
	EventType     string
	Payload       []byte // JSON-encoded audit.Record
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published to Kafka
}

// IsPending returns true if this entry has not been processed yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// Headers are the Kafka headers published alongside the payload.
func (e *Entry) Headers() map[string]string {
	return map[string]string{
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"event_type":     e.EventType,
	}
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, createdAt time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     createdAt.UTC(),
	}
}

// ResourceAggregateID identifies the resource an event is about.
func ResourceAggregateID(r audit.ResourceContext) string {
	return fmt.Sprintf("%s:%d", r.ResourceType(), r.ResourceID())
}
