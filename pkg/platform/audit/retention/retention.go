// Package retention periodically removes audit events older than the
// configured retention period, together with outbox entries that were already
// relayed.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Result contains the results of a retention run.
type Result struct {
	EventsDeleted int64
	OutboxDeleted int64
	Cutoff        time.Time
	Duration      time.Duration
}

// EventStore is the slice of audit.Repository retention needs.
type EventStore interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// OutboxStore is the slice of outbox.Store retention needs.
type OutboxStore interface {
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOutbox prunes outbox entries processed more than period ago.
func WithOutbox(store OutboxStore, period time.Duration) Option {
	return func(s *Service) {
		if store != nil && period > 0 {
			s.outbox = store
			s.outboxPeriod = period
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	events       EventStore
	outbox       OutboxStore
	period       time.Duration
	outboxPeriod time.Duration
	interval     time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
}

// New keeps events for period. A non-positive period is rejected by RunOnce.
func New(events EventStore, period time.Duration, opts ...Option) *Service {
	s := &Service{
		events:   events,
		period:   period,
		interval: time.Hour,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs retention on every tick until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "audit_retention_failed", "error", err)
				continue
			}
			s.logger.InfoContext(ctx, "audit_retention_completed",
				"events_deleted", res.EventsDeleted,
				"outbox_deleted", res.OutboxDeleted,
				"cutoff", res.Cutoff,
				"duration_ms", res.Duration.Milliseconds(),
			)

		case <-ctx.Done():
			s.logger.Info("audit retention worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single retention run. Logging is handled by the caller (Start).
func (s *Service) RunOnce(ctx context.Context) (res *Result, err error) {
	start := s.now()
	defer func() {
		if s.metrics == nil {
			return
		}
		elapsed := s.now().Sub(start)
		s.metrics.RunDurationSeconds.Observe(elapsed.Seconds())
		if err != nil {
			s.metrics.RunsTotal.WithLabelValues("error").Inc()
			return
		}
		s.metrics.RunsTotal.WithLabelValues("success").Inc()
		s.metrics.EventsDeletedTotal.Add(float64(res.EventsDeleted))
		s.metrics.OutboxDeletedTotal.Add(float64(res.OutboxDeleted))
		s.metrics.LastSuccessUnixTime.Set(float64(s.now().Unix()))
	}()

	if s.period <= 0 {
		return nil, errors.New("retention period must be positive")
	}

	res = &Result{Cutoff: start.Add(-s.period)}
	res.EventsDeleted, err = s.events.DeleteOlderThan(ctx, res.Cutoff)
	if err != nil {
		return nil, err
	}
	if s.outbox != nil {
		res.OutboxDeleted, err = s.outbox.DeleteProcessedBefore(ctx, start.Add(-s.outboxPeriod))
		if err != nil {
			return nil, err
		}
	}
	res.Duration = s.now().Sub(start)
	return res, nil
}
