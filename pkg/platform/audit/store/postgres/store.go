package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
)

var _ audit.IdempotentRepository = (*Store)(nil)

// Store implements audit.Repository using PostgreSQL.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

type Option func(*Store)

// WithTracer injects an OpenTelemetry tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = t
	}
}

// WithClock overrides the clock used for recent-event and statistics windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("audittrail/audit/store/postgres")
	}
	return s
}

// Save inserts an unsaved event and assigns its id, or updates the mutable
// columns (risk, details, course, change log) of a persisted one.
func (s *Store) Save(ctx context.Context, event *audit.Event) (err error) {
	ctx, end := s.span(ctx, "audit.postgres.Save")
	defer func() { end(err) }()

	if id, ok := event.ID(); ok {
		return s.update(ctx, id, event)
	}
	newID, err := s.insert(ctx, nil, event)
	if err != nil {
		return err
	}
	event.SetID(newID)
	return nil
}

// SaveIdempotent inserts the event once per key. A repeated key leaves the
// stored row untouched and reports inserted=false; the event still receives
// the id of the existing row.
func (s *Store) SaveIdempotent(ctx context.Context, key uuid.UUID, event *audit.Event) (inserted bool, err error) {
	ctx, end := s.span(ctx, "audit.postgres.SaveIdempotent")
	defer func() { end(err) }()

	if event.HasID() {
		return false, dErrors.New(dErrors.CodeConflict, "idempotent save requires an unsaved event")
	}
	newID, err := s.insert(ctx, &key, event)
	switch {
	case err == nil:
		event.SetID(newID)
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		var existing int64
		if err := s.db.QueryRowContext(ctx, `SELECT id FROM audit_events WHERE dedupe_key = $1`, key).Scan(&existing); err != nil {
			return false, fmt.Errorf("lookup deduplicated audit event: %w", err)
		}
		event.SetID(existing)
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) insert(ctx context.Context, key *uuid.UUID, event *audit.Event) (int64, error) {
	rec := event.ToRecord()
	cols, err := encodeJSONColumns(rec)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO audit_events (
			dedupe_key, event_type, risk_level, risk_rank, user_id, username, email, full_name,
			roles, ip_address, user_agent, resource_type, resource_id, resource_name, parent_id,
			resource_metadata, timestamp, description, details, session_id, course_id, change_log
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	if key != nil {
		query += ` ON CONFLICT (dedupe_key) DO NOTHING`
	}
	query += ` RETURNING id`

	var id int64
	err = s.db.QueryRowContext(ctx, query,
		key,
		rec.EventType,
		rec.RiskLevel,
		event.RiskLevel().Rank(),
		rec.UserContext.UserID,
		rec.UserContext.Username,
		rec.UserContext.Email,
		rec.UserContext.FullName,
		cols.roles,
		rec.UserContext.IPAddress,
		rec.UserContext.UserAgent,
		rec.ResourceContext.ResourceType,
		rec.ResourceContext.ResourceID,
		rec.ResourceContext.ResourceName,
		rec.ResourceContext.ParentID,
		cols.metadata,
		event.Timestamp(),
		rec.Description,
		cols.details,
		rec.SessionID,
		rec.CourseID,
		cols.changeLog,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, dbError("insert audit event", err)
	}
	return id, nil
}

func (s *Store) update(ctx context.Context, id int64, event *audit.Event) error {
	rec := event.ToRecord()
	cols, err := encodeJSONColumns(rec)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE audit_events
		SET risk_level = $2, risk_rank = $3, details = $4, course_id = $5, change_log = $6
		WHERE id = $1
	`, id, rec.RiskLevel, event.RiskLevel().Rank(), cols.details, rec.CourseID, cols.changeLog)
	if err != nil {
		return dbError("update audit event", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "audit event %d not found", id)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (_ *audit.Event, err error) {
	ctx, end := s.span(ctx, "audit.postgres.FindByID", attribute.Int64("audit.event_id", id))
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM audit_events WHERE id = $1`, id)
	if err != nil {
		return nil, dbError("query audit event", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "audit event %d not found", id)
	}
	return events[0], nil
}

func (s *Store) FindByUserID(ctx context.Context, userID int64, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithUserID(userID), limit, offset)
}

func (s *Store) FindByResource(ctx context.Context, resourceType audit.ResourceType, resourceID int64, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithResource(resourceType, &resourceID), limit, offset)
}

func (s *Store) FindByEventType(ctx context.Context, eventType audit.EventType, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithEventTypes(eventType), limit, offset)
}

func (s *Store) FindByRiskLevel(ctx context.Context, level audit.RiskLevel, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithRiskLevels(level), limit, offset)
}

func (s *Store) FindByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithDateRange(from, to), limit, offset)
}

func (s *Store) FindByCourseID(ctx context.Context, courseID int64, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithCourseID(courseID), limit, offset)
}

func (s *Store) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().WithSessionID(sessionID), limit, offset)
}

func (s *Store) FindHighRiskEvents(ctx context.Context, limit, offset int) ([]*audit.Event, error) {
	return s.find(ctx, audit.NewSearchCriteria().OnlyHighRisk(), limit, offset)
}

func (s *Store) FindRecentEvents(ctx context.Context, hours, limit int) ([]*audit.Event, error) {
	now := s.now().UTC()
	return s.find(ctx, audit.NewSearchCriteria().WithDateRange(now.Add(-time.Duration(hours)*time.Hour), now), limit, 0)
}

func (s *Store) find(ctx context.Context, c audit.SearchCriteria, limit, offset int) ([]*audit.Event, error) {
	c = audit.Paginate(c, limit, offset)
	return s.list(ctx, c)
}

func (s *Store) list(ctx context.Context, c audit.SearchCriteria) ([]*audit.Event, error) {
	w := buildWhere(c)
	args := append(w.args, c.Limit(), c.Offset())
	query := `SELECT ` + selectColumns + ` FROM audit_events` + w.sql() + orderBy(c) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query audit events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Search returns one page plus the total number of matching rows.
func (s *Store) Search(ctx context.Context, criteria audit.SearchCriteria) (_ audit.SearchResult, err error) {
	ctx, end := s.span(ctx, "audit.postgres.Search",
		attribute.Int("audit.limit", criteria.Limit()),
		attribute.Int("audit.offset", criteria.Offset()),
		attribute.Bool("audit.filtered", criteria.HasFilters()),
	)
	defer func() { end(err) }()

	total, err := s.count(ctx, criteria)
	if err != nil {
		return audit.SearchResult{}, err
	}
	events, err := s.list(ctx, criteria)
	if err != nil {
		return audit.SearchResult{}, err
	}
	return audit.NewSearchResult(events, total, criteria), nil
}

func (s *Store) CountTotal(ctx context.Context) (int64, error) {
	return s.count(ctx, audit.NewSearchCriteria())
}

func (s *Store) CountByUser(ctx context.Context, userID int64) (int64, error) {
	return s.count(ctx, audit.NewSearchCriteria().WithUserID(userID))
}

func (s *Store) CountByEventType(ctx context.Context, eventType audit.EventType) (int64, error) {
	return s.count(ctx, audit.NewSearchCriteria().WithEventTypes(eventType))
}

func (s *Store) CountByRiskLevel(ctx context.Context, level audit.RiskLevel) (int64, error) {
	return s.count(ctx, audit.NewSearchCriteria().WithRiskLevels(level))
}

func (s *Store) count(ctx context.Context, c audit.SearchCriteria) (int64, error) {
	w := buildWhere(c)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, dbError("count audit events", err)
	}
	return n, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, before time.Time) (_ int64, err error) {
	ctx, end := s.span(ctx, "audit.postgres.DeleteOlderThan")
	defer func() { end(err) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < $1`, before.UTC())
	if err != nil {
		return 0, dbError("delete audit events", err)
	}
	return rowsAffected(result)
}

func (s *Store) DeleteByCriteria(ctx context.Context, criteria audit.SearchCriteria) (_ int64, err error) {
	ctx, end := s.span(ctx, "audit.postgres.DeleteByCriteria")
	defer func() { end(err) }()

	w := buildWhere(criteria)
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events`+w.sql(), w.args...)
	if err != nil {
		return 0, dbError("delete audit events", err)
	}
	return rowsAffected(result)
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// span starts a child span and returns a func that ends it, recording err.
func (s *Store) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

type jsonColumns struct {
	roles, metadata, details, changeLog []byte
}

func encodeJSONColumns(rec audit.Record) (jsonColumns, error) {
	var (
		cols jsonColumns
		err  error
	)
	if cols.roles, err = json.Marshal(rec.UserContext.Roles); err != nil {
		return cols, fmt.Errorf("encode roles: %w", err)
	}
	if cols.metadata, err = json.Marshal(rec.ResourceContext.Metadata); err != nil {
		return cols, fmt.Errorf("encode resource metadata: %w", err)
	}
	if cols.details, err = json.Marshal(rec.Details); err != nil {
		return cols, fmt.Errorf("encode details: %w", err)
	}
	if cols.changeLog, err = json.Marshal(rec.ChangeLog); err != nil {
		return cols, fmt.Errorf("encode change log: %w", err)
	}
	return cols, nil
}

// scanEvents scans multiple rows into events through the record format.
func scanEvents(rows *sql.Rows) ([]*audit.Event, error) {
	events := []*audit.Event{}
	for rows.Next() {
		var (
			rec                                 audit.Record
			id                                  int64
			ipAddress, userAgent, sessionID     sql.NullString
			parentID, courseID                  sql.NullInt64
			roles, metadata, details, changeLog []byte
			timestamp                           time.Time
		)
		err := rows.Scan(
			&id,
			&rec.EventType,
			&rec.RiskLevel,
			&rec.UserContext.UserID,
			&rec.UserContext.Username,
			&rec.UserContext.Email,
			&rec.UserContext.FullName,
			&roles,
			&ipAddress,
			&userAgent,
			&rec.ResourceContext.ResourceType,
			&rec.ResourceContext.ResourceID,
			&rec.ResourceContext.ResourceName,
			&parentID,
			&metadata,
			&timestamp,
			&rec.Description,
			&details,
			&sessionID,
			&courseID,
			&changeLog,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		rec.ID = &id
		rec.Timestamp = timestamp.UTC().Format(audit.TimestampLayout)
		rec.UserContext.IPAddress = nullString(ipAddress)
		rec.UserContext.UserAgent = nullString(userAgent)
		rec.SessionID = nullString(sessionID)
		rec.ResourceContext.ParentID = nullInt64(parentID)
		rec.CourseID = nullInt64(courseID)
		if err := decodeJSONColumns(&rec, roles, metadata, details, changeLog); err != nil {
			return nil, err
		}

		event, err := audit.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("restore audit event %d: %w", id, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func decodeJSONColumns(rec *audit.Record, roles, metadata, details, changeLog []byte) error {
	if err := json.Unmarshal(roles, &rec.UserContext.Roles); err != nil {
		return fmt.Errorf("decode roles: %w", err)
	}
	if err := json.Unmarshal(metadata, &rec.ResourceContext.Metadata); err != nil {
		return fmt.Errorf("decode resource metadata: %w", err)
	}
	if err := json.Unmarshal(details, &rec.Details); err != nil {
		return fmt.Errorf("decode details: %w", err)
	}
	if err := json.Unmarshal(changeLog, &rec.ChangeLog); err != nil {
		return fmt.Errorf("decode change log: %w", err)
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
