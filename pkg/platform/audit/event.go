// Package audit holds the audit-trail domain model: the Event aggregate,
// its value objects, search criteria and results, statistics, and the
// Repository port that storage adapters implement.
//
// The package performs no I/O. Adapters under store/ persist events;
// recorder/, outbox/ and consumer/ move them there.
package audit

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "audittrail/pkg/domain-errors"
)

// ChangeAction names a post-construction mutation recorded in an event's change log.
type ChangeAction string

const (
	ChangeRiskLevelOverridden ChangeAction = "risk_level_overridden"
	ChangeDetailAdded         ChangeAction = "detail_added"
	ChangeCourseIDSet         ChangeAction = "course_id_set"
)

func (a ChangeAction) IsValid() bool {
	switch a {
	case ChangeRiskLevelOverridden, ChangeDetailAdded, ChangeCourseIDSet:
		return true
	default:
		return false
	}
}

// ChangeLogEntry is one append-only record of a mutation on an Event.
type ChangeLogEntry struct {
	Action    ChangeAction
	Data      map[string]any
	Timestamp time.Time
}

const systemSessionPrefix = "system_"

// Event is the aggregate root for a single audit record.
//
// Invariants:
//   - description is never blank and the event type is in the closed set
//   - id is assigned at most once
//   - the change log is append-only
type Event struct {
	id          *int64
	eventType   EventType
	riskLevel   RiskLevel
	user        UserContext
	resource    ResourceContext
	timestamp   time.Time
	description string
	details     map[string]any
	sessionID   string
	courseID    *int64
	changeLog   []ChangeLogEntry

	now func() time.Time
}

// EventOption configures an Event at construction.
type EventOption func(*Event)

// WithSessionID binds the event to the caller's active session.
// Blank values are ignored and a system session is generated instead.
func WithSessionID(sessionID string) EventOption {
	return func(e *Event) {
		if s := strings.TrimSpace(sessionID); s != "" {
			e.sessionID = s
		}
	}
}

// WithTimestamp fixes the creation time instead of reading the clock.
func WithTimestamp(t time.Time) EventOption {
	return func(e *Event) {
		if !t.IsZero() {
			e.timestamp = normalizeTime(t)
		}
	}
}

// WithClock replaces the clock used for the creation time and change-log entries.
func WithClock(now func() time.Time) EventOption {
	return func(e *Event) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvent is the generic constructor; the named factories in factories.go
// build on it. The risk level is derived from the event type once, here.
func NewEvent(eventType EventType, user UserContext, resource ResourceContext, description string, details map[string]any, opts ...EventOption) (*Event, error) {
	if !eventType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid event type: %q", string(eventType))
	}
	if user.username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user context is required")
	}
	if !resource.resourceType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "resource context is required")
	}
	desc := strings.TrimSpace(description)
	if desc == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "description cannot be blank")
	}

	d := maps.Clone(details)
	if d == nil {
		d = map[string]any{}
	}
	e := &Event{
		eventType:   eventType,
		riskLevel:   RiskLevelFromEventType(eventType),
		user:        user,
		resource:    resource,
		description: desc,
		details:     d,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.timestamp.IsZero() {
		e.timestamp = normalizeTime(e.now())
	}
	if e.sessionID == "" {
		e.sessionID = systemSessionPrefix + uuid.NewString()
	}
	return e, nil
}

// ID returns the persistence id, if one has been assigned.
func (e *Event) ID() (int64, bool) {
	if e.id == nil {
		return 0, false
	}
	return *e.id, true
}

// HasID reports whether the event has been persisted.
func (e *Event) HasID() bool {
	return e.id != nil
}

// SetID assigns the persistence id. It panics when an id is already present:
// a second assignment is a bug in the calling adapter, not a data condition.
func (e *Event) SetID(id int64) {
	if e.id != nil {
		panic("audit: event id already assigned")
	}
	e.id = &id
}

func (e *Event) EventType() EventType        { return e.eventType }
func (e *Event) RiskLevel() RiskLevel        { return e.riskLevel }
func (e *Event) User() UserContext           { return e.user }
func (e *Event) Resource() ResourceContext   { return e.resource }
func (e *Event) Timestamp() time.Time        { return e.timestamp }
func (e *Event) Description() string         { return e.description }
func (e *Event) SessionID() string           { return e.sessionID }
func (e *Event) IsHighRisk() bool            { return e.riskLevel.IsHighRisk() }
func (e *Event) IsSystemSession() bool       { return strings.HasPrefix(e.sessionID, systemSessionPrefix) }
func (e *Event) Details() map[string]any     { return maps.Clone(e.details) }
func (e *Event) ChangeLog() []ChangeLogEntry { return cloneChangeLog(e.changeLog) }

// Detail looks up a single detail value.
func (e *Event) Detail(key string) (any, bool) {
	v, ok := e.details[key]
	return v, ok
}

// CourseID returns the course the event belongs to, if set.
func (e *Event) CourseID() (int64, bool) {
	if e.courseID == nil {
		return 0, false
	}
	return *e.courseID, true
}

// OverrideRiskLevel replaces the derived risk level. This is the only way to
// reach critical.
func (e *Event) OverrideRiskLevel(level RiskLevel) error {
	if !level.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid risk level: %d", int(level))
	}
	old := e.riskLevel
	e.riskLevel = level
	e.appendChange(ChangeRiskLevelOverridden, map[string]any{
		"old_level": old.String(),
		"new_level": level.String(),
	})
	return nil
}

// AddDetail merges key into the details map.
func (e *Event) AddDetail(key string, value any) {
	e.details[key] = value
	e.appendChange(ChangeDetailAdded, map[string]any{
		"key":   key,
		"value": value,
	})
}

// SetCourseID attaches the event to a course.
func (e *Event) SetCourseID(courseID int64) {
	e.courseID = &courseID
	e.appendChange(ChangeCourseIDSet, map[string]any{
		"course_id": courseID,
	})
}

func (e *Event) appendChange(action ChangeAction, data map[string]any) {
	e.changeLog = append(e.changeLog, ChangeLogEntry{
		Action:    action,
		Data:      data,
		Timestamp: normalizeTime(e.now()),
	})
}

func cloneChangeLog(entries []ChangeLogEntry) []ChangeLogEntry {
	out := slices.Clone(entries)
	for i := range out {
		out[i].Data = maps.Clone(out[i].Data)
	}
	if out == nil {
		out = []ChangeLogEntry{}
	}
	return out
}

// normalizeTime drops sub-second precision so events survive the record format unchanged.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
