// Package consumer persists audit records relayed through Kafka by the outbox
// worker.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"audittrail/internal/platform/kafka/consumer"
	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
)

// Store is the write side the handler needs.
type Store interface {
	SaveIdempotent(ctx context.Context, key uuid.UUID, event *audit.Event) (bool, error)
}

// Handler processes audit events from Kafka and writes them to the repository.
// It implements consumer.Handler for use with the Kafka consumer.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new audit event consumer handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

var _ consumer.Handler = (*Handler)(nil)

// Handle stores one message. The message key is the outbox entry id and
// makes redeliveries a no-op. Malformed messages are logged and committed;
// store failures are returned so the offset stays uncommitted.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	key, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to parse entry id from message key",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	var rec audit.Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal audit record",
			"entry_id", key,
			"error", err,
		)
		return nil
	}

	// Ids are assigned by the repository; a relayed record never carries one.
	rec.ID = nil
	event, err := audit.FromRecord(rec)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid audit record",
			"entry_id", key,
			"event_type", rec.EventType,
			"error", err,
		)
		return nil
	}

	inserted, err := h.store.SaveIdempotent(ctx, key, event)
	if err != nil {
		level := slog.LevelError
		if dErrors.Transient(err) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "failed to store audit event",
			"entry_id", key,
			"event_type", event.EventType(),
			"error", err,
		)
		return fmt.Errorf("store audit event: %w", err)
	}

	if !inserted {
		h.logger.DebugContext(ctx, "skipped duplicate audit event", "entry_id", key)
		return nil
	}
	id, _ := event.ID()
	h.logger.DebugContext(ctx, "stored audit event",
		"entry_id", key,
		"id", id,
		"event_type", event.EventType(),
	)
	return nil
}
