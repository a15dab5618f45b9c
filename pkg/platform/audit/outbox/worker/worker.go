package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"audittrail/internal/platform/kafka/producer"
	"audittrail/pkg/platform/audit/outbox"
	"audittrail/pkg/platform/audit/outbox/metrics"
)

// DefaultTopic is the Kafka topic audit records are relayed to.
const DefaultTopic = "audit-events"

// Producer publishes one message synchronously.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox table and publishes entries to Kafka. An entry is
// marked processed only after the broker acknowledged it, so a crash between
// the two steps republishes it; consumers deduplicate by message key.
type Worker struct {
	store        outbox.Store
	producer     Producer
	topic        string
	batchSize    int
	pollInterval time.Duration
	drainTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Worker.
type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) {
		w.topic = topic
	}
}

// WithBatchSize sets the maximum number of entries to fetch per poll.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

func New(store outbox.Store, prod Producer, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		producer:     prod,
		topic:        DefaultTopic,
		batchSize:    100,
		pollInterval: 100 * time.Millisecond,
		drainTimeout: 10 * time.Second,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop in a background goroutine. Pending entries
// are drained when ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce relays one batch and returns how many entries were published.
func (w *Worker) RunOnce(ctx context.Context) int {
	start := w.now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObservePollDuration(w.now().Sub(start).Seconds())
		}
	}()

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
		w.incFailure("fetch")
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
	}

	published := 0
	for _, entry := range entries {
		if w.relay(ctx, entry) {
			published++
		}
	}
	return published
}

// relay publishes and marks one entry. Failures leave it pending for the next poll.
func (w *Worker) relay(ctx context.Context, entry *outbox.Entry) bool {
	start := w.now()
	err := w.producer.Produce(ctx, &producer.Message{
		Topic:   w.topic,
		Key:     []byte(entry.ID.String()),
		Value:   entry.Payload,
		Headers: entry.Headers(),
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to publish outbox entry",
			"id", entry.ID,
			"event_type", entry.EventType,
			"error", err,
		)
		w.incFailure("publish")
		return false
	}
	if w.metrics != nil {
		w.metrics.ObservePublishDuration(w.now().Sub(start).Seconds())
	}

	if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
		w.logger.ErrorContext(ctx, "failed to mark outbox entry processed",
			"id", entry.ID,
			"error", err,
		)
		w.incFailure("mark")
		return false
	}
	if w.metrics != nil {
		w.metrics.IncPublished()
	}
	return true
}

// drain relays remaining entries on shutdown until none are left, a batch
// makes no progress, or the drain timeout elapses.
func (w *Worker) drain() {
	w.logger.Info("draining outbox worker")

	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	for ctx.Err() == nil {
		if w.RunOnce(ctx) == 0 {
			return
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateMetrics refreshes the pending depth and oldest pending age gauges.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}

	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetPendingDepth(count)

	oldest, ok, err := w.store.OldestPending(ctx)
	if err != nil {
		return err
	}
	age := 0.0
	if ok {
		age = w.now().Sub(oldest).Seconds()
	}
	w.metrics.SetOldestPendingAge(age)
	return nil
}

func (w *Worker) incFailure(stage string) {
	if w.metrics != nil {
		w.metrics.IncFailure(stage)
	}
}
