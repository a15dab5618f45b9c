package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	audit "audittrail/pkg/platform/audit"
)

// Sink enqueues audit events instead of storing them directly. The worker
// relays entries to Kafka and the audit consumer persists them.
type Sink struct {
	store Store
	now   func() time.Time
}

type SinkOption func(*Sink)

// WithSinkClock overrides the clock used for entry creation times.
func WithSinkClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

func NewSink(store Store, opts ...SinkOption) *Sink {
	s := &Sink{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save appends the event's record to the outbox. The event is not given an
// id; ids are assigned when the consumer stores it.
func (s *Sink) Save(ctx context.Context, event *audit.Event) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	entry := NewEntry(
		AggregateAuditEvent,
		ResourceAggregateID(event.Resource()),
		string(event.EventType()),
		payload,
		s.now(),
	)
	if err := s.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("enqueue audit event: %w", err)
	}
	return nil
}

// EncodeEvent is the payload format of audit entries: the event's record as JSON.
func EncodeEvent(event *audit.Event) ([]byte, error) {
	payload, err := json.Marshal(event.ToRecord())
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	return payload, nil
}
