//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/audit/outbox"
	outboxpostgres "audittrail/pkg/platform/audit/outbox/store/postgres"
	"audittrail/pkg/testutil/containers"
)

type OutboxStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *outboxpostgres.Store
	now      time.Time
}

func TestOutboxStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxStoreSuite))
}

func (s *OutboxStoreSuite) SetupSuite() {
	s.postgres = containers.Postgres(s.T())
	s.store = outboxpostgres.New(s.postgres.DB)
}

func (s *OutboxStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(context.Background()))
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *OutboxStoreSuite) newEntry(offset time.Duration) *outbox.Entry {
	return outbox.NewEntry(outbox.AggregateAuditEvent, "folder:9", "folder_renamed",
		[]byte(`{"event_type":"folder_renamed","details":{"old_name":"A","new_name":"B"}}`), s.now.Add(offset))
}

func (s *OutboxStoreSuite) TestAppendAndFetch() {
	ctx := context.Background()
	late := s.newEntry(time.Second)
	early := s.newEntry(-time.Second)
	s.Require().NoError(s.store.Append(ctx, late))
	s.Require().NoError(s.store.Append(ctx, early))

	pending, err := s.store.FetchUnprocessed(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(early.ID, pending[0].ID)
	s.Equal(late.ID, pending[1].ID)

	got := pending[0]
	s.Equal(outbox.AggregateAuditEvent, got.AggregateType)
	s.Equal("folder:9", got.AggregateID)
	s.Equal("folder_renamed", got.EventType)
	s.JSONEq(string(early.Payload), string(got.Payload))
	s.True(early.CreatedAt.Equal(got.CreatedAt))
	s.Nil(got.ProcessedAt)
}

func (s *OutboxStoreSuite) TestAppendDuplicateIDFails() {
	ctx := context.Background()
	entry := s.newEntry(0)
	s.Require().NoError(s.store.Append(ctx, entry))
	s.Error(s.store.Append(ctx, entry))
}

func (s *OutboxStoreSuite) TestMarkProcessed() {
	ctx := context.Background()
	entry := s.newEntry(0)
	s.Require().NoError(s.store.Append(ctx, entry))

	s.Require().NoError(s.store.MarkProcessed(ctx, entry.ID, s.now))

	count, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(count)

	err = s.store.MarkProcessed(ctx, entry.ID, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.store.MarkProcessed(ctx, uuid.New(), s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OutboxStoreSuite) TestOldestPending() {
	ctx := context.Background()

	_, ok, err := s.store.OldestPending(ctx)
	s.Require().NoError(err)
	s.False(ok)

	oldest := s.newEntry(-time.Hour)
	s.Require().NoError(s.store.Append(ctx, oldest))
	s.Require().NoError(s.store.Append(ctx, s.newEntry(-time.Minute)))

	at, ok, err := s.store.OldestPending(ctx)
	s.Require().NoError(err)
	s.True(ok)
	s.True(oldest.CreatedAt.Equal(at))
}

func (s *OutboxStoreSuite) TestDeleteProcessedBefore() {
	ctx := context.Background()
	old := s.newEntry(0)
	recent := s.newEntry(time.Millisecond)
	pending := s.newEntry(2 * time.Millisecond)
	for _, e := range []*outbox.Entry{old, recent, pending} {
		s.Require().NoError(s.store.Append(ctx, e))
	}
	s.Require().NoError(s.store.MarkProcessed(ctx, old.ID, s.now.Add(-48*time.Hour)))
	s.Require().NoError(s.store.MarkProcessed(ctx, recent.ID, s.now))

	n, err := s.store.DeleteProcessedBefore(ctx, s.now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	count, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *OutboxStoreSuite) TestAppendTx() {
	ctx := context.Background()

	s.Run("rolled back entry is discarded", func() {
		tx, err := s.store.BeginTx(ctx)
		s.Require().NoError(err)
		s.Require().NoError(s.store.AppendTx(ctx, tx, s.newEntry(0)))
		s.Require().NoError(tx.Rollback())

		count, err := s.store.CountPending(ctx)
		s.Require().NoError(err)
		s.Zero(count)
	})

	s.Run("committed entry is pending", func() {
		tx, err := s.store.BeginTx(ctx)
		s.Require().NoError(err)
		s.Require().NoError(s.store.AppendTx(ctx, tx, s.newEntry(0)))
		s.Require().NoError(tx.Commit())

		count, err := s.store.CountPending(ctx)
		s.Require().NoError(err)
		s.Equal(int64(1), count)
	})
}
