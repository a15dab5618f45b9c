package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	audit "audittrail/pkg/platform/audit"
)

// GetStatistics runs the aggregate queries concurrently and assembles the report.
func (s *Store) GetStatistics(ctx context.Context) (_ audit.Statistics, err error) {
	ctx, end := s.span(ctx, "audit.postgres.GetStatistics")
	defer func() { end(err) }()

	now := s.now().UTC()
	today, week, month := audit.StatisticsWindows(now)
	st := audit.Statistics{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.QueryRowContext(gctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE risk_rank >= $1),
				COUNT(*) FILTER (WHERE timestamp >= $2),
				COUNT(*) FILTER (WHERE timestamp >= $3),
				COUNT(*) FILTER (WHERE timestamp >= $4)
			FROM audit_events
		`, audit.RiskHigh.Rank(), today, week, month).Scan(
			&st.TotalEvents, &st.HighRiskEvents, &st.EventsToday, &st.EventsThisWeek, &st.EventsThisMonth,
		)
		if err != nil {
			return fmt.Errorf("query audit totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		byType, err := s.eventsByType(gctx)
		st.EventsByType = byType
		return err
	})
	g.Go(func() error {
		byRisk, err := s.eventsByRisk(gctx)
		st.EventsByRisk = byRisk
		return err
	})
	g.Go(func() error {
		byDate, err := s.eventsByDate(gctx, time.Time{}, time.Time{})
		st.EventsByDate = byDate
		return err
	})
	g.Go(func() error {
		users, err := s.topUsers(gctx, audit.TopN)
		st.TopUsers = users
		return err
	})
	g.Go(func() error {
		resources, err := s.topResources(gctx, audit.TopN)
		st.TopResources = resources
		return err
	})
	if err := g.Wait(); err != nil {
		return audit.Statistics{}, err
	}
	return st, nil
}

func (s *Store) GetEventsByDate(ctx context.Context, from, to time.Time) (_ []audit.DateCount, err error) {
	ctx, end := s.span(ctx, "audit.postgres.GetEventsByDate")
	defer func() { end(err) }()
	return s.eventsByDate(ctx, from, to)
}

func (s *Store) GetEventsByUser(ctx context.Context, limit int) (_ []audit.UserActivity, err error) {
	ctx, end := s.span(ctx, "audit.postgres.GetEventsByUser", attribute.Int("audit.limit", limit))
	defer func() { end(err) }()
	if limit <= 0 {
		limit = audit.TopN
	}
	return s.topUsers(ctx, limit)
}

func (s *Store) GetEventsByResourceType(ctx context.Context) (_ []audit.ResourceTypeCount, err error) {
	ctx, end := s.span(ctx, "audit.postgres.GetEventsByResourceType")
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, COUNT(*) AS n
		FROM audit_events
		GROUP BY resource_type
		ORDER BY n DESC, resource_type ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events by resource type: %w", err)
	}
	defer rows.Close()

	out := []audit.ResourceTypeCount{}
	for rows.Next() {
		var (
			rt    string
			count int64
		)
		if err := rows.Scan(&rt, &count); err != nil {
			return nil, fmt.Errorf("scan resource type count: %w", err)
		}
		out = append(out, audit.ResourceTypeCount{ResourceType: audit.ResourceType(rt), Count: count})
	}
	return out, rowsErr(rows)
}

func (s *Store) eventsByType(ctx context.Context) ([]audit.TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) AS n
		FROM audit_events
		GROUP BY event_type
		ORDER BY n DESC, event_type ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events by type: %w", err)
	}
	defer rows.Close()

	out := []audit.TypeCount{}
	for rows.Next() {
		var (
			et    string
			count int64
		)
		if err := rows.Scan(&et, &count); err != nil {
			return nil, fmt.Errorf("scan event type count: %w", err)
		}
		out = append(out, audit.TypeCount{EventType: audit.EventType(et), Count: count})
	}
	return out, rowsErr(rows)
}

func (s *Store) eventsByRisk(ctx context.Context) ([]audit.RiskCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT risk_rank, COUNT(*) AS n
		FROM audit_events
		GROUP BY risk_rank
		ORDER BY n DESC, risk_rank ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events by risk: %w", err)
	}
	defer rows.Close()

	out := []audit.RiskCount{}
	for rows.Next() {
		var rank, count int64
		if err := rows.Scan(&rank, &count); err != nil {
			return nil, fmt.Errorf("scan risk count: %w", err)
		}
		out = append(out, audit.RiskCount{RiskLevel: audit.RiskLevel(rank), Count: count})
	}
	return out, rowsErr(rows)
}

// eventsByDate buckets by UTC day; zero bounds are open.
func (s *Store) eventsByDate(ctx context.Context, from, to time.Time) ([]audit.DateCount, error) {
	w := buildWhere(audit.NewSearchCriteria().WithDateRange(from, to))
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM audit_events`+w.sql()+`
		GROUP BY day
		ORDER BY day ASC
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query events by date: %w", err)
	}
	defer rows.Close()

	out := []audit.DateCount{}
	for rows.Next() {
		var dc audit.DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan date count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rowsErr(rows)
}

// topUsers reports the most recent username recorded for each user id.
func (s *Store) topUsers(ctx context.Context, limit int) ([]audit.UserActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, (array_agg(username ORDER BY timestamp DESC))[1], COUNT(*) AS n
		FROM audit_events
		GROUP BY user_id
		ORDER BY n DESC, user_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events by user: %w", err)
	}
	defer rows.Close()

	out := []audit.UserActivity{}
	for rows.Next() {
		var ua audit.UserActivity
		if err := rows.Scan(&ua.UserID, &ua.Username, &ua.Count); err != nil {
			return nil, fmt.Errorf("scan user activity: %w", err)
		}
		out = append(out, ua)
	}
	return out, rowsErr(rows)
}

func (s *Store) topResources(ctx context.Context, limit int) ([]audit.ResourceActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, resource_id, (array_agg(resource_name ORDER BY timestamp DESC))[1], COUNT(*) AS n
		FROM audit_events
		GROUP BY resource_type, resource_id
		ORDER BY n DESC, resource_type ASC, resource_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events by resource: %w", err)
	}
	defer rows.Close()

	out := []audit.ResourceActivity{}
	for rows.Next() {
		var (
			ra audit.ResourceActivity
			rt string
		)
		if err := rows.Scan(&rt, &ra.ResourceID, &ra.ResourceName, &ra.Count); err != nil {
			return nil, fmt.Errorf("scan resource activity: %w", err)
		}
		ra.ResourceType = audit.ResourceType(rt)
		out = append(out, ra)
	}
	return out, rowsErr(rows)
}

func rowsErr(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}
