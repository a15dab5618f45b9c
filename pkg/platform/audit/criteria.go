package audit

import (
	"slices"
	"strings"
	"time"
)

// SortDirection orders search results.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// ParseSortDirection accepts asc/desc in any case and defaults to DESC.
func ParseSortDirection(value string) SortDirection {
	if strings.EqualFold(value, string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

const (
	DefaultSortColumn = "timestamp"
	DefaultLimit      = 50
	MaxLimit          = 1000
)

// SearchCriteria is an immutable query over stored events.
// Every WithX method returns a modified copy; the receiver is never changed,
// so a shared base criteria can be derived from freely.
type SearchCriteria struct {
	userID        *int64
	eventTypes    []EventType
	riskLevels    []RiskLevel
	resourceType  ResourceType
	resourceID    *int64
	dateFrom      *time.Time
	dateTo        *time.Time
	courseID      *int64
	sessionID     string
	searchText    string
	sortColumn    string
	sortDirection SortDirection
	limit         int
	offset        int
}

// NewSearchCriteria returns criteria with no filters, sorted by timestamp DESC.
func NewSearchCriteria() SearchCriteria {
	return SearchCriteria{
		sortColumn:    DefaultSortColumn,
		sortDirection: SortDesc,
		limit:         DefaultLimit,
	}
}

func (c SearchCriteria) WithUserID(userID int64) SearchCriteria {
	c = c.clone()
	c.userID = &userID
	return c
}

func (c SearchCriteria) WithEventTypes(types ...EventType) SearchCriteria {
	c = c.clone()
	c.eventTypes = slices.Clone(types)
	return c
}

func (c SearchCriteria) WithRiskLevels(levels ...RiskLevel) SearchCriteria {
	c = c.clone()
	c.riskLevels = slices.Clone(levels)
	return c
}

// WithResource filters by resource type, and by id when resourceID is non-nil.
func (c SearchCriteria) WithResource(resourceType ResourceType, resourceID *int64) SearchCriteria {
	c = c.clone()
	c.resourceType = resourceType
	c.resourceID = clonePtr(resourceID)
	return c
}

// WithDateRange keeps events with from <= timestamp <= to. Either bound may be zero to leave it open.
func (c SearchCriteria) WithDateRange(from, to time.Time) SearchCriteria {
	c = c.clone()
	c.dateFrom, c.dateTo = nil, nil
	if !from.IsZero() {
		f := from.UTC()
		c.dateFrom = &f
	}
	if !to.IsZero() {
		t := to.UTC()
		c.dateTo = &t
	}
	return c
}

func (c SearchCriteria) WithCourseID(courseID int64) SearchCriteria {
	c = c.clone()
	c.courseID = &courseID
	return c
}

func (c SearchCriteria) WithSessionID(sessionID string) SearchCriteria {
	c = c.clone()
	c.sessionID = strings.TrimSpace(sessionID)
	return c
}

// WithSearchText matches against description, resource name and username.
func (c SearchCriteria) WithSearchText(text string) SearchCriteria {
	c = c.clone()
	c.searchText = strings.TrimSpace(text)
	return c
}

// WithSorting stores column verbatim. Adapters resolve it against their
// allow-list with ResolveSort.
func (c SearchCriteria) WithSorting(column string, direction SortDirection) SearchCriteria {
	c = c.clone()
	c.sortColumn = column
	c.sortDirection = direction
	return c
}

// WithLimit clamps to [1, MaxLimit].
func (c SearchCriteria) WithLimit(limit int) SearchCriteria {
	c = c.clone()
	c.limit = min(max(limit, 1), MaxLimit)
	return c
}

// WithOffset clamps negative values to zero.
func (c SearchCriteria) WithOffset(offset int) SearchCriteria {
	c = c.clone()
	c.offset = max(offset, 0)
	return c
}

// OnlyHighRisk replaces any risk filter with high and critical.
func (c SearchCriteria) OnlyHighRisk() SearchCriteria {
	return c.WithRiskLevels(HighRiskLevels()...)
}

// OnlyRecentEvents limits the date range to the last hours hours.
func (c SearchCriteria) OnlyRecentEvents(hours int) SearchCriteria {
	now := time.Now().UTC()
	return c.WithDateRange(now.Add(-time.Duration(hours)*time.Hour), now)
}

func (c SearchCriteria) NextPage() SearchCriteria {
	return c.WithOffset(c.offset + c.limit)
}

func (c SearchCriteria) PreviousPage() SearchCriteria {
	return c.WithOffset(c.offset - c.limit)
}

// HasFilters reports whether any filter dimension is set. Sorting and paging are not filters.
func (c SearchCriteria) HasFilters() bool {
	return c.userID != nil ||
		len(c.eventTypes) > 0 ||
		len(c.riskLevels) > 0 ||
		c.resourceType != "" ||
		c.resourceID != nil ||
		c.dateFrom != nil ||
		c.dateTo != nil ||
		c.courseID != nil ||
		c.sessionID != "" ||
		c.searchText != ""
}

func (c SearchCriteria) UserID() (int64, bool) {
	if c.userID == nil {
		return 0, false
	}
	return *c.userID, true
}

func (c SearchCriteria) ResourceID() (int64, bool) {
	if c.resourceID == nil {
		return 0, false
	}
	return *c.resourceID, true
}

func (c SearchCriteria) CourseID() (int64, bool) {
	if c.courseID == nil {
		return 0, false
	}
	return *c.courseID, true
}

func (c SearchCriteria) DateFrom() (time.Time, bool) {
	if c.dateFrom == nil {
		return time.Time{}, false
	}
	return *c.dateFrom, true
}

func (c SearchCriteria) DateTo() (time.Time, bool) {
	if c.dateTo == nil {
		return time.Time{}, false
	}
	return *c.dateTo, true
}

func (c SearchCriteria) EventTypes() []EventType      { return slices.Clone(c.eventTypes) }
func (c SearchCriteria) RiskLevels() []RiskLevel      { return slices.Clone(c.riskLevels) }
func (c SearchCriteria) ResourceType() ResourceType   { return c.resourceType }
func (c SearchCriteria) SessionID() string            { return c.sessionID }
func (c SearchCriteria) SearchText() string           { return c.searchText }
func (c SearchCriteria) SortColumn() string           { return c.sortColumn }
func (c SearchCriteria) SortDirection() SortDirection { return c.sortDirection }
func (c SearchCriteria) Limit() int                   { return c.limit }
func (c SearchCriteria) Offset() int                  { return c.offset }

// Matches evaluates the filter dimensions against a single event. Stores
// that filter in process use it; SQL adapters translate the same rules.
func (c SearchCriteria) Matches(e *Event) bool {
	if c.userID != nil && e.user.userID != *c.userID {
		return false
	}
	if len(c.eventTypes) > 0 && !slices.Contains(c.eventTypes, e.eventType) {
		return false
	}
	if len(c.riskLevels) > 0 && !slices.Contains(c.riskLevels, e.riskLevel) {
		return false
	}
	if c.resourceType != "" && e.resource.resourceType != c.resourceType {
		return false
	}
	if c.resourceID != nil && e.resource.resourceID != *c.resourceID {
		return false
	}
	if c.dateFrom != nil && e.timestamp.Before(*c.dateFrom) {
		return false
	}
	if c.dateTo != nil && e.timestamp.After(*c.dateTo) {
		return false
	}
	if c.courseID != nil && (e.courseID == nil || *e.courseID != *c.courseID) {
		return false
	}
	if c.sessionID != "" && e.sessionID != c.sessionID {
		return false
	}
	if c.searchText != "" {
		needle := strings.ToLower(c.searchText)
		if !strings.Contains(strings.ToLower(e.description), needle) &&
			!strings.Contains(strings.ToLower(e.resource.resourceName), needle) &&
			!strings.Contains(strings.ToLower(e.user.username), needle) {
			return false
		}
	}
	return true
}

func (c SearchCriteria) clone() SearchCriteria {
	c.userID = clonePtr(c.userID)
	c.eventTypes = slices.Clone(c.eventTypes)
	c.riskLevels = slices.Clone(c.riskLevels)
	c.resourceID = clonePtr(c.resourceID)
	c.dateFrom = clonePtr(c.dateFrom)
	c.dateTo = clonePtr(c.dateTo)
	c.courseID = clonePtr(c.courseID)
	return c
}
