package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/testutil"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *Store
	alice audit.UserContext
	bob   audit.UserContext
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.store = New(WithClock(func() time.Time { return s.now }))

	var err error
	s.alice, err = audit.NewUserContext(1, "alice", "alice@example.com", "Alice", []string{"admin"})
	s.Require().NoError(err)
	s.bob, err = audit.NewUserContext(2, "bob", "bob@example.com", "Bob", nil)
	s.Require().NoError(err)
}

func (s *StoreSuite) at(ago time.Duration) audit.EventOption {
	return audit.WithTimestamp(s.now.Add(-ago))
}

func (s *StoreSuite) save(e *audit.Event, err error) *audit.Event {
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(s.ctx, e))
	return e
}

func (s *StoreSuite) seed() {
	s.save(audit.FolderCreated(s.alice, 10, "Reports", nil, s.at(time.Hour)))
	s.save(audit.FolderDeleted(s.alice, 10, "Reports", nil, s.at(30*time.Minute)))
	s.save(audit.ItemUploaded(s.bob, 20, "notes.txt", 10, nil, s.at(3*24*time.Hour)))
	s.save(audit.ItemDownloaded(s.bob, 20, "notes.txt", s.at(20*24*time.Hour), audit.WithSessionID("sess-b")))
	s.save(audit.ViewAccessed(s.bob, 30, "Board", 1, s.at(60*24*time.Hour)))
}

func (s *StoreSuite) TestSave() {
	s.Run("assigns sequential ids", func() {
		first := s.save(audit.FolderCreated(s.alice, 1, "A", nil))
		second := s.save(audit.FolderCreated(s.alice, 2, "B", nil))
		id1, _ := first.ID()
		id2, _ := second.ID()
		s.Equal(int64(1), id1)
		s.Equal(int64(2), id2)
	})

	s.Run("updates an existing event", func() {
		e := s.save(audit.FolderCreated(s.alice, 3, "C", nil))
		s.Require().NoError(e.OverrideRiskLevel(audit.RiskCritical))
		s.Require().NoError(s.store.Save(s.ctx, e))

		id, _ := e.ID()
		got, err := s.store.FindByID(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(audit.RiskCritical, got.RiskLevel())
		s.Len(got.ChangeLog(), 1)
	})

	s.Run("update of unknown id is not found", func() {
		e, err := audit.FolderCreated(s.alice, 4, "D", nil)
		s.Require().NoError(err)
		e.SetID(999)
		s.True(dErrors.HasCode(s.store.Save(s.ctx, e), dErrors.CodeNotFound))
	})

	s.Run("stored copy is isolated from the caller", func() {
		e := s.save(audit.FolderCreated(s.alice, 5, "E", nil))
		e.AddDetail("after_save", true)
		id, _ := e.ID()
		got, err := s.store.FindByID(s.ctx, id)
		s.Require().NoError(err)
		_, ok := got.Detail("after_save")
		s.False(ok)
	})
}

func (s *StoreSuite) TestFindByIDNotFound() {
	_, err := s.store.FindByID(s.ctx, 12345)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *StoreSuite) TestFinders() {
	s.seed()

	events, err := s.store.FindByUserID(s.ctx, 2, 10, 0)
	s.Require().NoError(err)
	s.Len(events, 3)

	events, err = s.store.FindByResource(s.ctx, audit.ResourceFolder, 10, 10, 0)
	s.Require().NoError(err)
	s.Len(events, 2)

	events, err = s.store.FindByEventType(s.ctx, audit.EventViewAccessed, 10, 0)
	s.Require().NoError(err)
	s.Len(events, 1)

	events, err = s.store.FindByRiskLevel(s.ctx, audit.RiskMedium, 10, 0)
	s.Require().NoError(err)
	s.Len(events, 2)

	events, err = s.store.FindHighRiskEvents(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventFolderDeleted, events[0].EventType())

	events, err = s.store.FindBySessionID(s.ctx, "sess-b", 10, 0)
	s.Require().NoError(err)
	s.Len(events, 1)

	events, err = s.store.FindRecentEvents(s.ctx, 2, 10)
	s.Require().NoError(err)
	s.Len(events, 2)

	events, err = s.store.FindByDateRange(s.ctx, s.now.Add(-30*24*time.Hour), s.now, 10, 0)
	s.Require().NoError(err)
	s.Len(events, 4)

	events, err = s.store.FindByUserID(s.ctx, 2, 2, 2)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *StoreSuite) TestFindByCourseID() {
	e, err := audit.FolderCreated(s.alice, 1, "Course folder", nil)
	s.Require().NoError(err)
	e.SetCourseID(501)
	s.save(e, nil)
	s.save(audit.FolderCreated(s.alice, 2, "Other", nil))

	events, err := s.store.FindByCourseID(s.ctx, 501, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	course, _ := events[0].CourseID()
	s.Equal(int64(501), course)
}

func (s *StoreSuite) TestSearch() {
	s.seed()

	s.Run("default sort is newest first", func() {
		result, err := s.store.Search(s.ctx, audit.NewSearchCriteria())
		s.Require().NoError(err)
		s.Equal(int64(5), result.TotalCount())
		events := result.Events()
		for i := 1; i < len(events); i++ {
			s.False(events[i].Timestamp().After(events[i-1].Timestamp()))
		}
	})

	s.Run("unknown sort column falls back", func() {
		result, err := s.store.Search(s.ctx, audit.NewSearchCriteria().WithSorting("password", audit.SortAsc))
		s.Require().NoError(err)
		s.Equal(audit.EventFolderDeleted, result.Events()[0].EventType())
	})

	s.Run("sorts by risk ascending", func() {
		result, err := s.store.Search(s.ctx, audit.NewSearchCriteria().WithSorting("risk_level", audit.SortAsc))
		s.Require().NoError(err)
		events := result.Events()
		s.Equal(audit.RiskLow, events[0].RiskLevel())
		s.Equal(audit.RiskHigh, events[len(events)-1].RiskLevel())
	})

	s.Run("paginates with total count", func() {
		result, err := s.store.Search(s.ctx, audit.NewSearchCriteria().WithLimit(2).WithOffset(2))
		s.Require().NoError(err)
		s.Equal(int64(5), result.TotalCount())
		s.Equal(2, result.CurrentCount())
		s.Equal(int64(2), result.CurrentPage())
		s.True(result.HasNextPage())
	})

	s.Run("offset past the end yields an empty page", func() {
		result, err := s.store.Search(s.ctx, audit.NewSearchCriteria().WithOffset(100))
		s.Require().NoError(err)
		s.True(result.IsEmpty())
		s.Equal(int64(5), result.TotalCount())
	})

	s.Run("free text", func() {
		result, err := s.store.Search(s.ctx, audit.NewSearchCriteria().WithSearchText("notes"))
		s.Require().NoError(err)
		s.Equal(int64(2), result.TotalCount())
	})
}

func (s *StoreSuite) TestCounts() {
	s.seed()

	total, err := s.store.CountTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(5), total)

	n, err := s.store.CountByUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.store.CountByEventType(s.ctx, audit.EventItemUploaded)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.store.CountByRiskLevel(s.ctx, audit.RiskLow)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}

func (s *StoreSuite) TestStatistics() {
	s.Run("empty store", func() {
		st, err := s.store.GetStatistics(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(0), st.TotalEvents)
		s.Equal(0.0, st.HighRiskPercentage())
	})

	s.Run("aggregates", func() {
		s.seed()
		st, err := s.store.GetStatistics(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(5), st.TotalEvents)
		s.Equal(int64(1), st.HighRiskEvents)
		s.Equal(20.0, st.HighRiskPercentage())
		s.Equal(int64(2), st.EventsToday)
		s.Equal(int64(3), st.EventsThisWeek)
		s.Equal(int64(4), st.EventsThisMonth)

		user, ok := st.MostActiveUser()
		s.True(ok)
		s.Equal(int64(2), user.UserID)
		s.Equal(int64(3), user.Count)

		res, ok := st.MostAccessedResource()
		s.True(ok)
		s.Equal(audit.ResourceFolder, res.ResourceType)
		s.Equal(int64(10), res.ResourceID)

		s.Require().NotEmpty(st.EventsByRisk)
		s.Equal(audit.RiskLow, st.EventsByRisk[0].RiskLevel)
		s.Equal(int64(2), st.EventsByRisk[0].Count)
		s.Len(st.EventsByDate, 4)
	})
}

func (s *StoreSuite) TestGroupedAggregates() {
	s.seed()

	byDate, err := s.store.GetEventsByDate(s.ctx, s.now.Add(-7*24*time.Hour), s.now)
	s.Require().NoError(err)
	s.Require().Len(byDate, 2)
	s.Equal("2026-06-12", byDate[0].Date)
	s.Equal("2026-06-15", byDate[1].Date)
	s.Equal(int64(2), byDate[1].Count)

	byUser, err := s.store.GetEventsByUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(byUser, 1)
	s.Equal("bob", byUser[0].Username)

	byType, err := s.store.GetEventsByResourceType(s.ctx)
	s.Require().NoError(err)
	s.Equal([]audit.ResourceTypeCount{
		{ResourceType: audit.ResourceFolder, Count: 2},
		{ResourceType: audit.ResourceItem, Count: 2},
		{ResourceType: audit.ResourceView, Count: 1},
	}, byType)
}

func (s *StoreSuite) TestRetention() {
	s.seed()

	deleted, err := s.store.DeleteOlderThan(s.ctx, s.now.Add(-30*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	deleted, err = s.store.DeleteByCriteria(s.ctx, audit.NewSearchCriteria().WithUserID(2))
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)

	total, err := s.store.CountTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), total)
}

func (s *StoreSuite) TestConcurrentSaves() {
	res := testutil.RunConcurrent(50, func(idx int) error {
		e, err := audit.FolderCreated(s.alice, int64(idx+1), "Concurrent", nil)
		if err != nil {
			return err
		}
		return s.store.Save(s.ctx, e)
	})
	s.Equal(50, res.OK())

	total, err := s.store.CountTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(50), total)
}

func (s *StoreSuite) TestConcurrentSaveIdempotentSameKey() {
	key := uuid.New()
	res := testutil.RunConcurrent(20, func(int) error {
		e := testutil.NewEventBuilder().OfType(audit.EventItemDeleted).ByUser(s.bob).MustBuild()
		inserted, err := s.store.SaveIdempotent(s.ctx, key, e)
		if err != nil {
			return err
		}
		if !inserted {
			return dErrors.New(dErrors.CodeConflict, "duplicate delivery")
		}
		return nil
	})
	s.Equal(1, res.OK())
	s.Equal(19, res.Failed(dErrors.CodeConflict))
	s.Equal(20, res.Total())

	total, err := s.store.CountTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
}

func (s *StoreSuite) TestSaveIdempotent() {
	key := uuid.New()

	first, err := audit.FolderDeleted(s.alice, 1, "Dup", nil)
	s.Require().NoError(err)
	inserted, err := s.store.SaveIdempotent(s.ctx, key, first)
	s.Require().NoError(err)
	s.True(inserted)

	second, err := audit.FolderDeleted(s.alice, 1, "Dup", nil)
	s.Require().NoError(err)
	inserted, err = s.store.SaveIdempotent(s.ctx, key, second)
	s.Require().NoError(err)
	s.False(inserted)
	id1, _ := first.ID()
	id2, _ := second.ID()
	s.Equal(id1, id2)

	s.Run("saved events are rejected", func() {
		_, err := s.store.SaveIdempotent(s.ctx, uuid.New(), first)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("deleted key inserts again", func() {
		_, err := s.store.DeleteByCriteria(s.ctx, audit.NewSearchCriteria())
		s.Require().NoError(err)

		again, err := audit.FolderDeleted(s.alice, 1, "Dup", nil)
		s.Require().NoError(err)
		inserted, err := s.store.SaveIdempotent(s.ctx, key, again)
		s.Require().NoError(err)
		s.True(inserted)
	})
}
