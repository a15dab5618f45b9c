package httptransport

//go:generate mockgen -source=handlers_audit.go -destination=mocks/mocks.go -package=mocks Repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"audittrail/internal/platform/metrics"
	"audittrail/internal/transport/http/mocks"
	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/store/memory"
	fixtures "audittrail/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *memory.Store
	metrics *metrics.Metrics
	router  http.Handler
	alice   audit.UserContext
	bob     audit.UserContext
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.store = memory.New(memory.WithClock(func() time.Time { return s.now }))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.alice = fixtures.MustUser(1, "alice", "teacher")
	s.bob = fixtures.MustUser(2, "bob")

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := NewHandler(s.store, logger, WithMetrics(s.metrics), WithClock(func() time.Time { return s.now }))
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) seed() {
	events := []*audit.Event{
		fixtures.NewEventBuilder().ByUser(s.alice).OfType(audit.EventFolderCreated).
			OnResource(audit.ResourceFolder, 10, "Reports").At(s.now.Add(-time.Hour)).ForCourse(7).MustBuild(),
		fixtures.NewEventBuilder().ByUser(s.alice).OfType(audit.EventFolderDeleted).
			OnResource(audit.ResourceFolder, 10, "Reports").At(s.now.Add(-30 * time.Minute)).MustBuild(),
		fixtures.NewEventBuilder().ByUser(s.bob).OfType(audit.EventItemDownloaded).
			OnResource(audit.ResourceItem, 20, "notes.txt").At(s.now.Add(-3 * 24 * time.Hour)).InSession("sess-b").MustBuild(),
		fixtures.NewEventBuilder().ByUser(s.bob).OfType(audit.EventItemViewed).
			OnResource(audit.ResourceItem, 20, "notes.txt").At(s.now.Add(-40 * 24 * time.Hour)).MustBuild(),
	}
	for _, e := range events {
		s.Require().NoError(s.store.Save(s.ctx, e))
	}
}

func (s *HandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decodePage(rec *httptest.ResponseRecorder) audit.SearchResultRecord {
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var page audit.SearchResultRecord
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func (s *HandlerSuite) TestListEvents() {
	s.seed()

	s.Run("no filters returns newest first", func() {
		page := s.decodePage(s.do(http.MethodGet, "/audit/events", ""))
		s.Require().Len(page.Events, 4)
		s.Equal("folder_deleted", page.Events[0].EventType)
		s.Equal(int64(4), page.Pagination.TotalCount)
		s.Equal(audit.DefaultLimit, page.Pagination.Limit)
		s.False(page.Pagination.HasNextPage)
	})

	s.Run("user and risk filters", func() {
		page := s.decodePage(s.do(http.MethodGet, "/audit/events?user_id=1&risk_level=high", ""))
		s.Require().Len(page.Events, 1)
		s.Equal("folder_deleted", page.Events[0].EventType)
	})

	s.Run("user zero selects system events", func() {
		system := fixtures.NewEventBuilder().ByUser(audit.SystemUser()).OfType(audit.EventItemDeleted).
			OnResource(audit.ResourceItem, 30, "stale.bin").At(s.now.Add(-2 * time.Hour)).MustBuild()
		s.Require().NoError(s.store.Save(s.ctx, system))

		page := s.decodePage(s.do(http.MethodGet, "/audit/events?user_id=0", ""))
		s.Require().Len(page.Events, 1)
		s.Equal(audit.SystemUserID, page.Events[0].UserContext.UserID)

		page = s.decodePage(s.do(http.MethodPost, "/audit/events/search", `{"user_id":0}`))
		s.Require().Len(page.Events, 1)
		s.Equal("item_deleted", page.Events[0].EventType)
	})

	s.Run("repeated and comma separated event types", func() {
		page := s.decodePage(s.do(http.MethodGet, "/audit/events?event_type=item_viewed,item_downloaded&event_type=ITEM_VIEWED", ""))
		s.Len(page.Events, 2)
	})

	s.Run("resource, course and session filters", func() {
		s.Len(s.decodePage(s.do(http.MethodGet, "/audit/events?resource_type=item&resource_id=20", "")).Events, 2)
		s.Len(s.decodePage(s.do(http.MethodGet, "/audit/events?course_id=7", "")).Events, 1)
		s.Len(s.decodePage(s.do(http.MethodGet, "/audit/events?session_id=sess-b", "")).Events, 1)
	})

	s.Run("date range covers the whole upper day", func() {
		day := s.now.Add(-3 * 24 * time.Hour).Format(time.DateOnly)
		page := s.decodePage(s.do(http.MethodGet, "/audit/events?date_from="+day+"&date_to="+day, ""))
		s.Require().Len(page.Events, 1)
		s.Equal("item_downloaded", page.Events[0].EventType)
	})

	s.Run("pagination and ascending sort", func() {
		page := s.decodePage(s.do(http.MethodGet, "/audit/events?limit=2&offset=2&sort_by=timestamp&sort_dir=asc", ""))
		s.Require().Len(page.Events, 2)
		s.Equal("folder_created", page.Events[0].EventType)
		s.True(page.Pagination.HasPreviousPage)
		s.Equal(int64(2), page.Pagination.CurrentPage)
		s.Require().NotNil(page.Pagination.PreviousPageOffset)
		s.Equal(int64(0), *page.Pagination.PreviousPageOffset)
	})

	s.Run("anonymize strips personal data", func() {
		page := s.decodePage(s.do(http.MethodGet, "/audit/events?user_id=2&anonymize=true", ""))
		s.Require().NotEmpty(page.Events)
		for _, e := range page.Events {
			s.Equal("user_2", e.UserContext.Username)
			s.NotContains(e.UserContext.Email, "bob")
			s.Nil(e.UserContext.IPAddress)
		}
		s.Equal(1.0, testutil.ToFloat64(s.metrics.AnonymizedReads))
	})
}

func (s *HandlerSuite) TestListEventsRejectsBadQueries() {
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{name: "non numeric user", query: "user_id=abc", code: "bad_request"},
		{name: "bad boolean", query: "anonymize=maybe", code: "bad_request"},
		{name: "unknown event type", query: "event_type=login", code: "validation_error"},
		{name: "unknown risk level", query: "risk_level=severe", code: "validation_error"},
		{name: "resource id without type", query: "resource_id=4", code: "validation_error"},
		{name: "unknown resource type", query: "resource_type=planet", code: "validation_error"},
		{name: "bad date", query: "date_from=03/01/2026", code: "validation_error"},
		{name: "inverted range", query: "date_from=2026-03-05&date_to=2026-03-01", code: "validation_error"},
		{name: "limit too large", query: "limit=5000", code: "validation_error"},
		{name: "negative offset", query: "offset=-1", code: "validation_error"},
		{name: "offset too large", query: "offset=9223372036854775807", code: "validation_error"},
		{name: "bad sort direction", query: "sort_dir=sideways", code: "validation_error"},
		{name: "search too long", query: "search=" + strings.Repeat("x", 201), code: "validation_error"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodGet, "/audit/events?"+tt.query, "")
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Equal(tt.code, s.errorCode(rec))
		})
	}
}

func (s *HandlerSuite) TestSearchEventsBody() {
	s.seed()

	page := s.decodePage(s.do(http.MethodPost, "/audit/events/search",
		`{"event_types":["folder_created","folder_deleted"],"search":"Reports","sort_by":"timestamp","sort_dir":"asc"}`))
	s.Require().Len(page.Events, 2)
	s.Equal("folder_created", page.Events[0].EventType)

	s.Run("unknown fields are rejected", func() {
		rec := s.do(http.MethodPost, "/audit/events/search", `{"actor":"alice"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("invalid criteria", func() {
		rec := s.do(http.MethodPost, "/audit/events/search", `{"user_id":-3}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", s.errorCode(rec))
	})
}

func (s *HandlerSuite) TestGetEvent() {
	e := fixtures.NewEventBuilder().ByUser(s.bob).MustBuild()
	s.Require().NoError(s.store.Save(s.ctx, e))
	id, _ := e.ID()
	path := "/audit/events/" + strconv.FormatInt(id, 10)

	rec := s.do(http.MethodGet, path, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var got audit.Record
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Require().NotNil(got.ID)
	s.Equal(id, *got.ID)
	s.Equal("bob", got.UserContext.Username)

	s.Run("anonymized", func() {
		rec := s.do(http.MethodGet, path+"?anonymize=1", "")
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("user_2", got.UserContext.Username)
	})

	s.Run("unknown id", func() {
		rec := s.do(http.MethodGet, "/audit/events/999", "")
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal("not_found", s.errorCode(rec))
	})

	s.Run("malformed id", func() {
		for _, raw := range []string{"abc", "0", "-4"} {
			rec := s.do(http.MethodGet, "/audit/events/"+raw, "")
			s.Equal(http.StatusBadRequest, rec.Code, raw)
		}
	})
}

func (s *HandlerSuite) TestGetStatistics() {
	s.seed()

	rec := s.do(http.MethodGet, "/audit/statistics", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))

	s.Equal(4.0, body["total_events"])
	s.Equal(1.0, body["high_risk_events"])
	s.Equal(25.0, body["high_risk_percentage"])
	s.Equal(2.0, body["events_today"])
	s.NotNil(body["most_active_user"])
	s.NotNil(body["most_common_event_type"])
}

func (s *HandlerSuite) TestGetStatisticsEmpty() {
	rec := s.do(http.MethodGet, "/audit/statistics", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(0.0, body["high_risk_percentage"])
	s.Nil(body["most_active_user"])
	s.Nil(body["most_common_event_type"])
}

func (s *HandlerSuite) TestDeleteOlderThan() {
	s.seed()

	rec := s.do(http.MethodDelete, "/audit/events?older_than=2026-03-01", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp DeleteResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(int64(1), resp.Deleted)
	s.Equal("2026-03-01", resp.OlderThan)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RetentionDeletes))

	total, err := s.store.CountTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), total)

	for _, query := range []string{"", "?older_than=yesterday", "?older_than=2026-03-11"} {
		rec := s.do(http.MethodDelete, "/audit/events"+query, "")
		s.Equal(http.StatusBadRequest, rec.Code, query)
	}
}

func (s *HandlerSuite) TestRepositoryFailures() {
	ctrl := gomock.NewController(s.T())
	repo := mocks.NewMockRepository(ctrl)
	h := NewHandler(repo, nil)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r

	s.Run("internal errors hide details", func() {
		repo.EXPECT().Search(gomock.Any(), gomock.Any()).
			Return(audit.SearchResult{}, errors.New("pq: connection reset by peer"))
		rec := s.do(http.MethodGet, "/audit/events", "")
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "pq:")
	})

	s.Run("unavailable store", func() {
		repo.EXPECT().GetStatistics(gomock.Any()).
			Return(audit.Statistics{}, dErrors.New(dErrors.CodeUnavailable, "database unavailable"))
		rec := s.do(http.MethodGet, "/audit/statistics", "")
		s.Equal(http.StatusServiceUnavailable, rec.Code)
	})

	s.Run("criteria reach the repository", func() {
		repo.EXPECT().Search(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, c audit.SearchCriteria) (audit.SearchResult, error) {
				return audit.NewSearchResult(nil, 0, c), nil
			})
		page := s.decodePage(s.do(http.MethodGet, "/audit/events?limit=5&offset=10", ""))
		s.Equal(5, page.Pagination.Limit)
		s.Equal(10, page.Pagination.Offset)
		s.Empty(page.Events)
	})

	s.Run("delete failure", func() {
		repo.EXPECT().DeleteOlderThan(gomock.Any(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).
			Return(int64(0), dErrors.New(dErrors.CodeInternal, "boom"))
		rec := s.do(http.MethodDelete, "/audit/events?older_than=2026-01-01", "")
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}
