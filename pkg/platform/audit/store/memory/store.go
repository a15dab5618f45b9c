// Package memory is an in-process audit.Repository. It keeps serialized
// records rather than live *audit.Event values, so callers never share
// mutable state with the store.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
)

var _ audit.IdempotentRepository = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	records map[int64]audit.Record
	keys    map[uuid.UUID]int64
	nextID  int64
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used for statistics windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[int64]audit.Record),
		keys:    make(map[uuid.UUID]int64),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clear removes every record and resets the id sequence.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[int64]audit.Record)
	s.keys = make(map[uuid.UUID]int64)
	s.nextID = 0
}

func (s *Store) Save(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := event.ID(); ok {
		if _, exists := s.records[id]; !exists {
			return dErrors.Newf(dErrors.CodeNotFound, "audit event %d not found", id)
		}
		s.records[id] = event.ToRecord()
		return nil
	}

	s.insert(event)
	return nil
}

// SaveIdempotent stores the event once per key. A key whose event has since
// been deleted inserts again.
func (s *Store) SaveIdempotent(_ context.Context, key uuid.UUID, event *audit.Event) (bool, error) {
	if event.HasID() {
		return false, dErrors.New(dErrors.CodeConflict, "idempotent save requires an unsaved event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.keys[key]; ok {
		if _, exists := s.records[id]; exists {
			event.SetID(id)
			return false, nil
		}
	}
	s.keys[key] = s.insert(event)
	return true, nil
}

func (s *Store) insert(event *audit.Event) int64 {
	s.nextID++
	event.SetID(s.nextID)
	s.records[s.nextID] = event.ToRecord()
	return s.nextID
}

func (s *Store) FindByID(_ context.Context, id int64) (*audit.Event, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "audit event %d not found", id)
	}
	return audit.FromRecord(rec)
}

func (s *Store) FindByUserID(ctx context.Context, userID int64, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithUserID(userID), limit, offset)
}

func (s *Store) FindByResource(ctx context.Context, resourceType audit.ResourceType, resourceID int64, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithResource(resourceType, &resourceID), limit, offset)
}

func (s *Store) FindByEventType(ctx context.Context, eventType audit.EventType, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithEventTypes(eventType), limit, offset)
}

func (s *Store) FindByRiskLevel(ctx context.Context, level audit.RiskLevel, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithRiskLevels(level), limit, offset)
}

func (s *Store) FindByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithDateRange(from, to), limit, offset)
}

func (s *Store) FindByCourseID(ctx context.Context, courseID int64, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithCourseID(courseID), limit, offset)
}

func (s *Store) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithSessionID(sessionID), limit, offset)
}

func (s *Store) FindHighRiskEvents(ctx context.Context, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().OnlyHighRisk(), limit, offset)
}

func (s *Store) FindRecentEvents(ctx context.Context, hours, limit int) ([]*audit.Event, error) {
	now := s.now().UTC()
	return s.find(ctx, audit.NewSearchCriteria().WithDateRange(now.Add(-time.Duration(hours)*time.Hour), now), limit, 0)
}

func (s *Store) find(ctx context.Context, c audit.SearchCriteria, limit, offset int) ([]*audit.Event, error) {
	result, err := s.Search(ctx, audit.Paginate(c, limit, offset))
	if err != nil {
		return nil, err
	}
	return result.Events(), nil
}

func (s *Store) Search(_ context.Context, criteria audit.SearchCriteria) (audit.SearchResult, error) {
	matched, err := s.matching(criteria)
	if err != nil {
		return audit.SearchResult{}, err
	}
	sortEvents(matched, criteria)

	total := int64(len(matched))
	start := min(criteria.Offset(), len(matched))
	end := min(start+criteria.Limit(), len(matched))
	return audit.NewSearchResult(matched[start:end], total, criteria), nil
}

func (s *Store) CountTotal(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *Store) CountByUser(_ context.Context, userID int64) (int64, error) {
	return s.count(audit.NewSearchCriteria().WithUserID(userID))
}

func (s *Store) CountByEventType(_ context.Context, eventType audit.EventType) (int64, error) {
	return s.count(audit.NewSearchCriteria().WithEventTypes(eventType))
}

func (s *Store) CountByRiskLevel(_ context.Context, level audit.RiskLevel) (int64, error) {
	return s.count(audit.NewSearchCriteria().WithRiskLevels(level))
}

func (s *Store) count(c audit.SearchCriteria) (int64, error) {
	matched, err := s.matching(c)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store) GetStatistics(_ context.Context) (audit.Statistics, error) {
	all, err := s.matching(audit.NewSearchCriteria())
	if err != nil {
		return audit.Statistics{}, err
	}
	return buildStatistics(all, s.now()), nil
}

func (s *Store) GetEventsByDate(_ context.Context, from, to time.Time) ([]audit.DateCount, error) {
	matched, err := s.matching(audit.NewSearchCriteria().WithDateRange(from, to))
	if err != nil {
		return nil, err
	}
	return countByDate(matched), nil
}

func (s *Store) GetEventsByUser(_ context.Context, limit int) ([]audit.UserActivity, error) {
	all, err := s.matching(audit.NewSearchCriteria())
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = audit.TopN
	}
	return topUsers(all, limit), nil
}

func (s *Store) GetEventsByResourceType(_ context.Context) ([]audit.ResourceTypeCount, error) {
	all, err := s.matching(audit.NewSearchCriteria())
	if err != nil {
		return nil, err
	}
	return countByResourceType(all), nil
}

func (s *Store) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, rec := range s.records {
		e, err := audit.FromRecord(rec)
		if err != nil {
			return deleted, err
		}
		if e.Timestamp().Before(before) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteByCriteria(_ context.Context, criteria audit.SearchCriteria) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, rec := range s.records {
		e, err := audit.FromRecord(rec)
		if err != nil {
			return deleted, err
		}
		if criteria.Matches(e) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// matching rebuilds every stored record and keeps those the criteria match.
func (s *Store) matching(c audit.SearchCriteria) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*audit.Event, 0, len(s.records))
	for _, rec := range s.records {
		e, err := audit.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortEvents(events []*audit.Event, c audit.SearchCriteria) {
	column, dir := audit.ResolveSort(c)
	slices.SortFunc(events, func(a, b *audit.Event) int {
		r := compareBy(column, a, b)
		if dir == audit.SortDesc {
			r = -r
		}
		if r != 0 {
			return r
		}
		idA, _ := a.ID()
		idB, _ := b.ID()
		return cmp.Compare(idA, idB)
	})
}

func compareBy(column string, a, b *audit.Event) int {
	switch column {
	case "id":
		idA, _ := a.ID()
		idB, _ := b.ID()
		return cmp.Compare(idA, idB)
	case "event_type":
		return cmp.Compare(a.EventType(), b.EventType())
	case audit.SortColumnRiskLevel:
		return cmp.Compare(a.RiskLevel().Rank(), b.RiskLevel().Rank())
	case "user_id":
		return cmp.Compare(a.User().UserID(), b.User().UserID())
	case "resource_type":
		return cmp.Compare(a.Resource().ResourceType(), b.Resource().ResourceType())
	default:
		return a.Timestamp().Compare(b.Timestamp())
	}
}
