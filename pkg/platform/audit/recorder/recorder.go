// Package recorder is the write entry point for application code. Recording an
// audit event never fails the caller's operation: sink errors are logged and
// counted, then dropped.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/metrics"
)

// Sink saves one event. Both audit.Repository and outbox.Sink satisfy it.
type Sink interface {
	Save(ctx context.Context, event *audit.Event) error
}

type queued struct {
	ctx   context.Context
	event *audit.Event
}

// Recorder hands events to a Sink, either inline or through a bounded queue
// drained by one background goroutine.
type Recorder struct {
	sink    Sink
	events  chan queued
	async   bool
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and saved in a background goroutine; a full queue drops.
func WithAsyncBuffer(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.events = make(chan queued, size)
			r.async = true
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func New(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:   sink,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.async {
		r.wg.Add(1)
		go r.processEvents()
	}
	return r
}

// Record saves the event or queues it for saving. A nil event is ignored.
// In async mode the caller's context values are kept but its cancellation is
// not, so a finished request does not abort the pending save.
//
// In async mode a copy of the event is queued, so the caller keeps ownership
// of its value and may keep using it. The copy, not the caller's event,
// receives the stored id.
func (r *Recorder) Record(ctx context.Context, event *audit.Event) {
	if event == nil {
		return
	}
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if !r.async {
		r.persist(ctx, event)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(ctx, event, "recorder closed")
		return
	}
	copied, err := audit.FromRecord(event.ToRecord())
	if err != nil {
		r.drop(ctx, event, "event copy failed")
		return
	}
	select {
	case r.events <- queued{ctx: context.WithoutCancel(ctx), event: copied}:
		if r.metrics != nil {
			r.metrics.EventsEnqueued.Inc()
			r.metrics.QueueDepth.Set(float64(len(r.events)))
		}
	default:
		r.drop(ctx, event, "audit buffer full")
	}
}

func (r *Recorder) processEvents() {
	defer r.wg.Done()
	for q := range r.events {
		if r.metrics != nil {
			r.metrics.QueueDepth.Set(float64(len(r.events)))
		}
		r.persist(q.ctx, q.event)
	}
}

func (r *Recorder) persist(ctx context.Context, event *audit.Event) {
	start := time.Now()
	err := r.sink.Save(ctx, event)
	risk := event.RiskLevel().String()
	if r.metrics != nil {
		r.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.PersistFailures.WithLabelValues(risk).Inc()
		}
		r.logger.ErrorContext(ctx, "failed to persist audit event",
			append(eventAttrs(event), "error", err)...,
		)
		return
	}

	if r.metrics != nil {
		r.metrics.EventsPersisted.WithLabelValues(risk).Inc()
	}
	level := slog.LevelInfo
	if event.IsHighRisk() {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, event.Description(), eventAttrs(event)...)
}

func (r *Recorder) drop(ctx context.Context, event *audit.Event, reason string) {
	if r.metrics != nil {
		r.metrics.EventsDropped.Inc()
	}
	r.logger.WarnContext(ctx, "audit event dropped",
		append(eventAttrs(event), "reason", reason)...,
	)
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
// It is safe to call more than once.
func (r *Recorder) Close(ctx context.Context) error {
	if !r.async {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := len(r.events)
	close(r.events)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.WorkerDrainEvents.Add(float64(pending))
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func eventAttrs(event *audit.Event) []any {
	user := event.User()
	resource := event.Resource()
	attrs := []any{
		"log_type", "audit",
		"event_type", string(event.EventType()),
		"risk_level", event.RiskLevel().String(),
		"user_id", user.UserID(),
		"username", user.Username(),
		"resource", fmt.Sprintf("%s:%d", resource.ResourceType(), resource.ResourceID()),
		"timestamp", event.Timestamp().Format(audit.TimestampLayout),
	}
	if ip := user.IPAddress(); ip != "" {
		attrs = append(attrs, "ip_address", ip)
	}
	if device := user.Device(); device != "" {
		attrs = append(attrs, "device", device)
	}
	if sid := event.SessionID(); sid != "" {
		attrs = append(attrs, "session_id", sid)
	}
	return attrs
}
