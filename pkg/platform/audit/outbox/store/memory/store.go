// Package memory is an in-process outbox.Store for tests and single-node
// development.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/audit/outbox"
)

var _ outbox.Store = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	entries map[uuid.UUID]outbox.Entry
}

func New() *Store {
	return &Store{entries: make(map[uuid.UUID]outbox.Entry)}
}

func (s *Store) Append(_ context.Context, entry *outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "outbox entry %s already exists", entry.ID)
	}
	s.entries[entry.ID] = cloneEntry(*entry)
	return nil
}

func (s *Store) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*outbox.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.IsPending() {
			c := cloneEntry(e)
			pending = append(pending, &c)
		}
	}
	slices.SortFunc(pending, func(a, b *outbox.Entry) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return pending[:min(limit, len(pending))], nil
}

func (s *Store) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.IsPending() {
		return dErrors.Newf(dErrors.CodeNotFound, "outbox entry not found or already processed: %s", id)
	}
	at := processedAt.UTC()
	e.ProcessedAt = &at
	s.entries[id] = e
	return nil
}

func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *Store) OldestPending(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		oldest time.Time
		found  bool
	)
	for _, e := range s.entries {
		if e.IsPending() && (!found || e.CreatedAt.Before(oldest)) {
			oldest, found = e.CreatedAt, true
		}
	}
	return oldest, found, nil
}

func (s *Store) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.entries {
		if !e.IsPending() && e.ProcessedAt.Before(before) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func cloneEntry(e outbox.Entry) outbox.Entry {
	e.Payload = slices.Clone(e.Payload)
	if e.ProcessedAt != nil {
		at := *e.ProcessedAt
		e.ProcessedAt = &at
	}
	return e
}
