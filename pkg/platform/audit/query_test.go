package audit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type QuerySuite struct {
	suite.Suite
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}

func (s *QuerySuite) TestCriteriaDefaults() {
	c := NewSearchCriteria()
	s.Equal("timestamp", c.SortColumn())
	s.Equal(SortDesc, c.SortDirection())
	s.Equal(50, c.Limit())
	s.Equal(0, c.Offset())
	s.False(c.HasFilters())
}

func (s *QuerySuite) TestCriteriaClamping() {
	c := NewSearchCriteria()
	s.Equal(1000, c.WithLimit(5000).Limit())
	s.Equal(1, c.WithLimit(0).Limit())
	s.Equal(1, c.WithLimit(-3).Limit())
	s.Equal(0, c.WithOffset(-5).Offset())
	s.Equal(30, c.WithOffset(30).Offset())
}

func (s *QuerySuite) TestCriteriaImmutability() {
	base := NewSearchCriteria().WithEventTypes(EventFolderCreated)

	s.Run("derived criteria leave the base untouched", func() {
		derived := base.WithUserID(3).WithEventTypes(EventItemDeleted).WithLimit(10)
		_, ok := base.UserID()
		s.False(ok)
		s.Equal([]EventType{EventFolderCreated}, base.EventTypes())
		s.Equal(50, base.Limit())
		s.Equal([]EventType{EventItemDeleted}, derived.EventTypes())
	})

	s.Run("getters return copies", func() {
		types := base.EventTypes()
		types[0] = EventDataExported
		s.Equal([]EventType{EventFolderCreated}, base.EventTypes())
	})

	s.Run("pointer filters are not shared", func() {
		id := int64(5)
		c := NewSearchCriteria().WithResource(ResourceFolder, &id)
		id = 6
		got, ok := c.ResourceID()
		s.True(ok)
		s.Equal(int64(5), got)
	})
}

func (s *QuerySuite) TestOnlyHighRisk() {
	c := NewSearchCriteria().WithRiskLevels(RiskLow).OnlyHighRisk()
	s.Equal([]RiskLevel{RiskHigh, RiskCritical}, c.RiskLevels())
	s.True(c.HasFilters())
}

func (s *QuerySuite) TestOnlyRecentEvents() {
	before := time.Now().UTC()
	c := NewSearchCriteria().OnlyRecentEvents(24)
	from, ok := c.DateFrom()
	s.Require().True(ok)
	to, ok := c.DateTo()
	s.Require().True(ok)
	s.WithinDuration(before.Add(-24*time.Hour), from, 5*time.Second)
	s.WithinDuration(before, to, 5*time.Second)
}

func (s *QuerySuite) TestSortingAndPaging() {
	c := NewSearchCriteria().WithSorting("nonexistent_column", SortAsc)
	s.Equal("nonexistent_column", c.SortColumn())
	s.False(c.HasFilters())

	col, dir := ResolveSort(c)
	s.Equal("timestamp", col)
	s.Equal(SortDesc, dir)

	col, dir = ResolveSort(NewSearchCriteria().WithSorting("risk_level", SortAsc))
	s.Equal("risk_level", col)
	s.Equal(SortAsc, dir)

	paged := NewSearchCriteria().WithLimit(10)
	s.Equal(10, paged.NextPage().Offset())
	s.Equal(0, paged.PreviousPage().Offset())

	s.Equal(SortAsc, ParseSortDirection("asc"))
	s.Equal(SortDesc, ParseSortDirection("sideways"))
}

func (s *QuerySuite) TestMatches() {
	user, err := NewUserContext(4, "bob", "bob@example.com", "Bob", nil)
	s.Require().NoError(err)
	e, err := FolderDeleted(user, 10, "Quarterly Reports", nil,
		WithTimestamp(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)), WithSessionID("s1"))
	s.Require().NoError(err)
	e.SetCourseID(3)

	base := NewSearchCriteria()
	s.True(base.Matches(e))
	s.True(base.WithUserID(4).Matches(e))
	s.False(base.WithUserID(5).Matches(e))
	s.True(base.OnlyHighRisk().Matches(e))
	s.False(base.WithRiskLevels(RiskLow).Matches(e))
	s.True(base.WithResource(ResourceFolder, nil).Matches(e))
	s.False(base.WithResource(ResourceItem, nil).Matches(e))
	s.True(base.WithCourseID(3).Matches(e))
	s.False(base.WithSessionID("s2").Matches(e))
	s.True(base.WithSearchText("quarterly").Matches(e))
	s.True(base.WithSearchText("BOB").Matches(e))
	s.False(base.WithSearchText("invoice").Matches(e))
	s.True(base.WithDateRange(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{}).Matches(e))
	s.False(base.WithDateRange(time.Time{}, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)).Matches(e))
}

func (s *QuerySuite) TestPagination() {
	s.Run("empty result", func() {
		r := NewSearchResult(nil, 0, NewSearchCriteria().WithLimit(10))
		s.Equal(int64(0), r.TotalPages())
		s.False(r.HasNextPage())
		s.False(r.HasPreviousPage())
		s.Equal(int64(1), r.CurrentPage())
		_, ok := r.NextPageOffset()
		s.False(ok)
		_, ok = r.PreviousPageOffset()
		s.False(ok)
		s.True(r.IsEmpty())
	})

	s.Run("middle page", func() {
		r := NewSearchResult(nil, 25, NewSearchCriteria().WithLimit(10).WithOffset(10))
		s.Equal(int64(2), r.CurrentPage())
		s.Equal(int64(3), r.TotalPages())
		s.True(r.HasNextPage())
		s.True(r.HasPreviousPage())
		next, ok := r.NextPageOffset()
		s.True(ok)
		s.Equal(int64(20), next)
		prev, ok := r.PreviousPageOffset()
		s.True(ok)
		s.Equal(int64(0), prev)
	})

	s.Run("last page", func() {
		r := NewSearchResult(nil, 25, NewSearchCriteria().WithLimit(10).WithOffset(20))
		s.False(r.HasNextPage())
		s.Equal(int64(3), r.CurrentPage())
	})

	s.Run("offsets near the int64 limit never wrap", func() {
		r := NewSearchResult(nil, 25, NewSearchCriteria().WithLimit(10).WithOffset(math.MaxInt64))
		s.False(r.HasNextPage())
		_, ok := r.NextPageOffset()
		s.False(ok)
		s.Equal(int64(3), r.TotalPages())
		s.Positive(r.CurrentPage())
		prev, ok := r.PreviousPageOffset()
		s.True(ok)
		s.Equal(int64(math.MaxInt64-10), prev)

		one := NewSearchResult(nil, math.MaxInt64, NewSearchCriteria().WithLimit(1).WithOffset(math.MaxInt64))
		s.False(one.HasNextPage())
		s.Equal(int64(math.MaxInt64), one.CurrentPage())
		s.Equal(int64(math.MaxInt64), one.TotalPages())
	})

	s.Run("unaligned offset", func() {
		r := NewSearchResult(nil, 100, NewSearchCriteria().WithLimit(10).WithOffset(5))
		prev, ok := r.PreviousPageOffset()
		s.True(ok)
		s.Equal(int64(0), prev)
		s.Equal(int64(1), r.CurrentPage())
	})

	s.Run("holds across a grid", func() {
		for _, total := range []int64{0, 1, 9, 10, 11, 99, 100} {
			for _, limit := range []int{1, 3, 10, 50} {
				for _, offset := range []int{0, 1, 10, 57} {
					r := NewSearchResult(nil, total, NewSearchCriteria().WithLimit(limit).WithOffset(offset))
					s.Equal(int64(offset)+int64(limit) < total, r.HasNextPage())
					s.Equal(offset > 0, r.HasPreviousPage())
					s.Equal(int64(offset/limit+1), r.CurrentPage())
					s.Equal((total+int64(limit)-1)/int64(limit), r.TotalPages())
				}
			}
		}
	})
}

func (s *QuerySuite) TestResultRecord() {
	user, err := NewUserContext(9, "carol", "carol@example.com", "Carol King", []string{"student"},
		WithIPAddress("10.1.1.1"))
	s.Require().NoError(err)
	e, err := ItemDeleted(user, 3, "notes.txt", nil)
	s.Require().NoError(err)

	r := NewSearchResult([]*Event{e}, 25, NewSearchCriteria().WithLimit(10).WithOffset(10))
	rec := r.ToRecord(nil)
	s.Require().Len(rec.Events, 1)
	s.Equal("carol", rec.Events[0].UserContext.Username)
	p := rec.Pagination
	s.Equal(int64(25), p.TotalCount)
	s.Equal(1, p.CurrentCount)
	s.Equal(10, p.Offset)
	s.Equal(10, p.Limit)
	s.Require().NotNil(p.NextPageOffset)
	s.Equal(int64(20), *p.NextPageOffset)
	s.Require().NotNil(p.PreviousPageOffset)
	s.Equal(int64(0), *p.PreviousPageOffset)

	anon := r.ToRecord(AnonymizeRecord)
	s.Equal("user_9", anon.Events[0].UserContext.Username)
	s.Equal("anonymized@example.invalid", anon.Events[0].UserContext.Email)
	s.Nil(anon.Events[0].UserContext.IPAddress)
	s.Equal([]string{"student"}, anon.Events[0].UserContext.Roles)

	last := NewSearchResult(nil, 5, NewSearchCriteria()).ToRecord(nil)
	s.Nil(last.Pagination.NextPageOffset)
	s.Nil(last.Pagination.PreviousPageOffset)
	s.NotNil(last.Events)
}

func (s *QuerySuite) TestStatistics() {
	s.Run("zero totals", func() {
		var st Statistics
		s.Equal(0.0, st.HighRiskPercentage())
		s.Equal(0.0, st.GrowthPercentage())
		_, ok := st.MostCommonEventType()
		s.False(ok)
		_, ok = st.MostActiveUser()
		s.False(ok)
		_, ok = st.MostAccessedResource()
		s.False(ok)
	})

	s.Run("percentages round to two places", func() {
		st := Statistics{TotalEvents: 3, HighRiskEvents: 1, EventsThisWeek: 3, EventsThisMonth: 13}
		s.Equal(33.33, st.HighRiskPercentage())
		s.Equal(8.33, st.GrowthPercentage())
	})

	s.Run("leaders are the first breakdown entries", func() {
		st := Statistics{
			EventsByType: []TypeCount{{EventType: EventItemViewed, Count: 9}, {EventType: EventFolderCreated, Count: 2}},
			TopUsers:     []UserActivity{{UserID: 4, Username: "bob", Count: 7}},
			TopResources: []ResourceActivity{{ResourceType: ResourceItem, ResourceID: 2, ResourceName: "a", Count: 5}},
		}
		et, ok := st.MostCommonEventType()
		s.True(ok)
		s.Equal(EventItemViewed, et)
		u, _ := st.MostActiveUser()
		s.Equal(int64(4), u.UserID)
		r, _ := st.MostAccessedResource()
		s.Equal(int64(2), r.ResourceID)
	})

	s.Run("windows", func() {
		now := time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)
		today, week, month := StatisticsWindows(now)
		s.Equal(time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), today)
		s.Equal(now.AddDate(0, 0, -7), week)
		s.Equal(now.AddDate(0, 0, -30), month)
		s.Equal("2026-05-20", DateKey(now))
	})
}
