//go:build integration

package cached_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/store/cached"
	auditpostgres "audittrail/pkg/platform/audit/store/postgres"
	"audittrail/pkg/testutil/containers"
)

type CachedIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	repo     *cached.Repository
	alice    audit.UserContext
}

func TestCachedIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedIntegrationSuite))
}

func (s *CachedIntegrationSuite) SetupSuite() {
	s.postgres = containers.Postgres(s.T())
	s.redis = containers.Redis(s.T())
	s.repo = cached.New(
		auditpostgres.New(s.postgres.DB),
		cached.NewRedisCache(s.redis.Client),
		cached.WithTTL(time.Minute),
	)

	var err error
	s.alice, err = audit.NewUserContext(1, "alice", "alice@example.com", "Alice", nil)
	s.Require().NoError(err)
}

func (s *CachedIntegrationSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.Reset(ctx))
	s.Require().NoError(s.redis.Reset(ctx))
}

func (s *CachedIntegrationSuite) TestStatisticsRoundTripThroughRedis() {
	ctx := context.Background()
	e, err := audit.FolderDeleted(s.alice, 3, "Archive", nil)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.Save(ctx, e))

	fresh, err := s.repo.GetStatistics(ctx)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.TTL(ctx, cached.StatisticsKey).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	fromCache, err := s.repo.GetStatistics(ctx)
	s.Require().NoError(err)
	s.Equal(fresh.TotalEvents, fromCache.TotalEvents)
	s.Equal(fresh.EventsByRisk, fromCache.EventsByRisk)
	s.True(fresh.GeneratedAt.Equal(fromCache.GeneratedAt))

	s.Run("delete evicts the key", func() {
		_, err := s.repo.DeleteByCriteria(ctx, audit.NewSearchCriteria())
		s.Require().NoError(err)
		n, err := s.redis.Client.Exists(ctx, cached.StatisticsKey).Result()
		s.Require().NoError(err)
		s.Zero(n)
	})
}
