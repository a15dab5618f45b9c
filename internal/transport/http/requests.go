package httptransport

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
	pstrings "audittrail/pkg/platform/strings"
	"audittrail/pkg/validation"
)

// SearchRequest carries search filters and paging for both
// GET /audit/events (query string) and POST /audit/events/search (JSON body).
type SearchRequest struct {
	UserID       *int64   `json:"user_id" validate:"omitempty,gte=0"`
	EventTypes   []string `json:"event_types"`
	RiskLevels   []string `json:"risk_levels"`
	ResourceType string   `json:"resource_type"`
	ResourceID   *int64   `json:"resource_id" validate:"omitempty,gt=0"`
	DateFrom     string   `json:"date_from"`
	DateTo       string   `json:"date_to"`
	CourseID     *int64   `json:"course_id" validate:"omitempty,gt=0"`
	SessionID    string   `json:"session_id"`
	Search       string   `json:"search"`
	SortBy       string   `json:"sort_by"`
	SortDir      string   `json:"sort_dir" validate:"omitempty,oneof=asc desc"`
	Limit        int      `json:"limit" validate:"min=0,max=1000"`
	Offset       int      `json:"offset" validate:"min=0,max=1000000000"`
	Anonymize    bool     `json:"anonymize"`
}

func (r *SearchRequest) Normalize() {
	r.EventTypes = pstrings.SplitList(r.EventTypes...)
	r.RiskLevels = pstrings.SplitList(r.RiskLevels...)
	r.ResourceType = strings.ToLower(strings.TrimSpace(r.ResourceType))
	r.DateFrom = strings.TrimSpace(r.DateFrom)
	r.DateTo = strings.TrimSpace(r.DateTo)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.Search = strings.TrimSpace(r.Search)
	r.SortBy = strings.ToLower(strings.TrimSpace(r.SortBy))
	r.SortDir = strings.ToLower(strings.TrimSpace(r.SortDir))
}

func (r *SearchRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("event_types", len(r.EventTypes), validation.MaxFilterValues); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("risk_levels", len(r.RiskLevels), validation.MaxFilterValues); err != nil {
		return err
	}
	if err := validation.CheckStringLength("search", r.Search, validation.MaxSearchTextLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("session_id", r.SessionID, validation.MaxSessionIDLength); err != nil {
		return err
	}
	_, err := r.Criteria()
	return err
}

// Criteria converts the request into domain search criteria.
func (r *SearchRequest) Criteria() (audit.SearchCriteria, error) {
	c := audit.NewSearchCriteria()

	if r.UserID != nil {
		c = c.WithUserID(*r.UserID)
	}
	if len(r.EventTypes) > 0 {
		types := make([]audit.EventType, 0, len(r.EventTypes))
		for _, v := range r.EventTypes {
			t, err := audit.ParseEventType(v)
			if err != nil {
				return c, err
			}
			types = append(types, t)
		}
		c = c.WithEventTypes(types...)
	}
	if len(r.RiskLevels) > 0 {
		levels := make([]audit.RiskLevel, 0, len(r.RiskLevels))
		for _, v := range r.RiskLevels {
			l, err := audit.ParseRiskLevel(v)
			if err != nil {
				return c, err
			}
			levels = append(levels, l)
		}
		c = c.WithRiskLevels(levels...)
	}
	switch {
	case r.ResourceType != "":
		rt, err := audit.ParseResourceType(r.ResourceType)
		if err != nil {
			return c, err
		}
		c = c.WithResource(rt, r.ResourceID)
	case r.ResourceID != nil:
		return c, dErrors.New(dErrors.CodeValidation, "resource_id requires resource_type")
	}

	from, err := parseDate("date_from", r.DateFrom, false)
	if err != nil {
		return c, err
	}
	to, err := parseDate("date_to", r.DateTo, true)
	if err != nil {
		return c, err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return c, dErrors.New(dErrors.CodeValidation, "date_from must not be after date_to")
	}
	if !from.IsZero() || !to.IsZero() {
		c = c.WithDateRange(from, to)
	}

	if r.CourseID != nil {
		c = c.WithCourseID(*r.CourseID)
	}
	if r.SessionID != "" {
		c = c.WithSessionID(r.SessionID)
	}
	if r.Search != "" {
		c = c.WithSearchText(r.Search)
	}
	if r.SortBy != "" || r.SortDir != "" {
		column := r.SortBy
		if column == "" {
			column = audit.DefaultSortColumn
		}
		c = c.WithSorting(column, audit.ParseSortDirection(r.SortDir))
	}
	if r.Limit > 0 {
		c = c.WithLimit(r.Limit)
	}
	return c.WithOffset(r.Offset), nil
}

// parseDate accepts a calendar day or an RFC 3339 timestamp. A day used as
// an upper bound covers the whole day.
func parseDate(field, value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be YYYY-MM-DD or RFC 3339", field)
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Second), nil
	}
	return day, nil
}

// searchRequestFromQuery binds query parameters. List filters may repeat or
// be comma separated.
func searchRequestFromQuery(q url.Values) (*SearchRequest, error) {
	req := &SearchRequest{
		EventTypes:   q["event_type"],
		RiskLevels:   q["risk_level"],
		ResourceType: q.Get("resource_type"),
		DateFrom:     q.Get("date_from"),
		DateTo:       q.Get("date_to"),
		SessionID:    q.Get("session_id"),
		Search:       q.Get("search"),
		SortBy:       q.Get("sort_by"),
		SortDir:      q.Get("sort_dir"),
	}

	var err error
	if req.UserID, err = queryInt64(q, "user_id"); err != nil {
		return nil, err
	}
	if req.ResourceID, err = queryInt64(q, "resource_id"); err != nil {
		return nil, err
	}
	if req.CourseID, err = queryInt64(q, "course_id"); err != nil {
		return nil, err
	}
	if req.Limit, err = queryInt(q, "limit"); err != nil {
		return nil, err
	}
	if req.Offset, err = queryInt(q, "offset"); err != nil {
		return nil, err
	}
	if req.Anonymize, err = queryBool(q, "anonymize"); err != nil {
		return nil, err
	}
	return req, nil
}

func queryInt64(q url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "%s must be an integer", key)
	}
	return &v, nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s must be an integer", key)
	}
	return v, nil
}

func queryBool(q url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a boolean", key)
	}
	return v, nil
}
