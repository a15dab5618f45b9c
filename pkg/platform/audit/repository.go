package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence port for audit events. Implementations are
// stateless facades over a store; reads may run concurrently.
//
// Save inserts an event without an id and assigns one with SetID, or updates
// an event that already has one. Callers must not Save the same unsaved
// event from two goroutines at once.
type Repository interface {
	Save(ctx context.Context, event *Event) error
	FindByID(ctx context.Context, id int64) (*Event, error)

	FindByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Event, error)
	FindByResource(ctx context.Context, resourceType ResourceType, resourceID int64, limit, offset int) ([]*Event, error)
	FindByEventType(ctx context.Context, eventType EventType, limit, offset int) ([]*Event, error)
	FindByRiskLevel(ctx context.Context, level RiskLevel, limit, offset int) ([]*Event, error)
	FindByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*Event, error)
	FindByCourseID(ctx context.Context, courseID int64, limit, offset int) ([]*Event, error)
	FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]*Event, error)
	FindHighRiskEvents(ctx context.Context, limit, offset int) ([]*Event, error)
	FindRecentEvents(ctx context.Context, hours, limit int) ([]*Event, error)

	Search(ctx context.Context, criteria SearchCriteria) (SearchResult, error)

	CountTotal(ctx context.Context) (int64, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	CountByEventType(ctx context.Context, eventType EventType) (int64, error)
	CountByRiskLevel(ctx context.Context, level RiskLevel) (int64, error)

	GetStatistics(ctx context.Context) (Statistics, error)
	GetEventsByDate(ctx context.Context, from, to time.Time) ([]DateCount, error)
	GetEventsByUser(ctx context.Context, limit int) ([]UserActivity, error)
	GetEventsByResourceType(ctx context.Context) ([]ResourceTypeCount, error)

	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	DeleteByCriteria(ctx context.Context, criteria SearchCriteria) (int64, error)
}

// IdempotentRepository deduplicates redelivered events by a caller-chosen key.
// A repeated key stores nothing, reports inserted=false and gives the event
// the id of the row already stored under that key.
type IdempotentRepository interface {
	Repository
	SaveIdempotent(ctx context.Context, key uuid.UUID, event *Event) (inserted bool, err error)
}

// SortColumnRiskLevel is the sort column name callers use for risk ordering.
const SortColumnRiskLevel = "risk_level"

var sortAllowList = map[string]struct{}{
	"id":                {},
	"timestamp":         {},
	"event_type":        {},
	SortColumnRiskLevel: {},
	"user_id":           {},
	"resource_type":     {},
}

// ResolveSort returns the criteria's sort if the column is allow-listed and
// falls back to timestamp DESC otherwise. Unknown columns are not an error.
func ResolveSort(c SearchCriteria) (string, SortDirection) {
	dir := c.sortDirection
	if dir != SortAsc && dir != SortDesc {
		dir = SortDesc
	}
	if _, ok := sortAllowList[c.sortColumn]; !ok {
		return DefaultSortColumn, SortDesc
	}
	return c.sortColumn, dir
}

// Paginate builds criteria for the single-dimension Find* helpers.
func Paginate(c SearchCriteria, limit, offset int) SearchCriteria {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return c.WithLimit(limit).WithOffset(offset)
}
