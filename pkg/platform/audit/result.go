package audit

import "math"

// SearchResult is one page of events together with the total match count
// and the criteria that produced it. Pagination values are derived from
// (offset, limit, totalCount) on demand.
type SearchResult struct {
	events     []*Event
	totalCount int64
	criteria   SearchCriteria
}

func NewSearchResult(events []*Event, totalCount int64, criteria SearchCriteria) SearchResult {
	if events == nil {
		events = []*Event{}
	}
	return SearchResult{events: events, totalCount: max(totalCount, 0), criteria: criteria}
}

func (r SearchResult) Events() []*Event         { return r.events }
func (r SearchResult) TotalCount() int64        { return r.totalCount }
func (r SearchResult) Criteria() SearchCriteria { return r.criteria }
func (r SearchResult) CurrentCount() int        { return len(r.events) }
func (r SearchResult) IsEmpty() bool            { return len(r.events) == 0 }

func (r SearchResult) limit() int64 {
	return int64(max(r.criteria.limit, 1))
}

func (r SearchResult) offset() int64 {
	return int64(max(r.criteria.offset, 0))
}

// HasNextPage is written without offset+limit so offsets near MaxInt64 cannot wrap.
func (r SearchResult) HasNextPage() bool {
	return r.offset() < r.totalCount && r.limit() < r.totalCount-r.offset()
}

func (r SearchResult) HasPreviousPage() bool {
	return r.offset() > 0
}

func (r SearchResult) CurrentPage() int64 {
	page := r.offset() / r.limit()
	if page == math.MaxInt64 {
		return page
	}
	return page + 1
}

func (r SearchResult) TotalPages() int64 {
	if r.totalCount == 0 {
		return 0
	}
	return (r.totalCount-1)/r.limit() + 1
}

// NextPageOffset is absent on the last page.
func (r SearchResult) NextPageOffset() (int64, bool) {
	if !r.HasNextPage() {
		return 0, false
	}
	return r.offset() + r.limit(), true
}

// PreviousPageOffset is absent on the first page.
func (r SearchResult) PreviousPageOffset() (int64, bool) {
	if !r.HasPreviousPage() {
		return 0, false
	}
	return max(r.offset()-r.limit(), 0), true
}

// SearchResultRecord is the API-facing shape of a SearchResult.
type SearchResultRecord struct {
	Events     []Record         `json:"events"`
	Pagination PaginationRecord `json:"pagination"`
}

type PaginationRecord struct {
	TotalCount         int64  `json:"total_count"`
	CurrentCount       int    `json:"current_count"`
	Offset             int    `json:"offset"`
	Limit              int    `json:"limit"`
	CurrentPage        int64  `json:"current_page"`
	TotalPages         int64  `json:"total_pages"`
	HasNextPage        bool   `json:"has_next_page"`
	HasPreviousPage    bool   `json:"has_previous_page"`
	NextPageOffset     *int64 `json:"next_page_offset"`
	PreviousPageOffset *int64 `json:"previous_page_offset"`
}

// ToRecord serializes the page. transform, when non-nil, is applied to each
// event record (the query API uses it to anonymize actors).
func (r SearchResult) ToRecord(transform func(Record) Record) SearchResultRecord {
	events := make([]Record, 0, len(r.events))
	for _, e := range r.events {
		rec := e.ToRecord()
		if transform != nil {
			rec = transform(rec)
		}
		events = append(events, rec)
	}
	p := PaginationRecord{
		TotalCount:      r.totalCount,
		CurrentCount:    len(r.events),
		Offset:          r.criteria.offset,
		Limit:           r.criteria.limit,
		CurrentPage:     r.CurrentPage(),
		TotalPages:      r.TotalPages(),
		HasNextPage:     r.HasNextPage(),
		HasPreviousPage: r.HasPreviousPage(),
	}
	if next, ok := r.NextPageOffset(); ok {
		p.NextPageOffset = &next
	}
	if prev, ok := r.PreviousPageOffset(); ok {
		p.PreviousPageOffset = &prev
	}
	return SearchResultRecord{Events: events, Pagination: p}
}

// AnonymizeRecord strips personal data from the actor in a serialized event.
func AnonymizeRecord(rec Record) Record {
	u := rec.UserContext
	if u.UserID == SystemUserID {
		return rec
	}
	anon := UserContext{userID: u.UserID, roles: u.Roles}.Anonymized()
	rec.UserContext = anon.toRecord()
	return rec
}
