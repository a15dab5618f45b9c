package audit

import (
	"maps"
	"time"

	dErrors "audittrail/pkg/domain-errors"
)

// TimestampLayout is the wire format for every timestamp in a Record.
const TimestampLayout = "2006-01-02 15:04:05"

// Record is the flat serialized form of an Event. Persistence adapters and
// message payloads map to and from this shape.
type Record struct {
	ID              *int64                `json:"id,omitempty"`
	EventType       string                `json:"event_type"`
	RiskLevel       string                `json:"risk_level"`
	UserContext     UserContextRecord     `json:"user_context"`
	ResourceContext ResourceContextRecord `json:"resource_context"`
	Timestamp       string                `json:"timestamp"`
	Description     string                `json:"description"`
	Details         map[string]any        `json:"details"`
	SessionID       *string               `json:"session_id"`
	CourseID        *int64                `json:"course_id"`
	ChangeLog       []ChangeLogRecord     `json:"change_log"`
}

type UserContextRecord struct {
	UserID    int64    `json:"user_id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	Roles     []string `json:"roles"`
	IPAddress *string  `json:"ip_address"`
	UserAgent *string  `json:"user_agent"`
}

type ResourceContextRecord struct {
	ResourceType string         `json:"resource_type"`
	ResourceID   int64          `json:"resource_id"`
	ResourceName string         `json:"resource_name"`
	ParentID     *int64         `json:"parent_id"`
	Metadata     map[string]any `json:"metadata"`
}

type ChangeLogRecord struct {
	Action    string         `json:"action"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// ToRecord serializes the event.
func (e *Event) ToRecord() Record {
	r := Record{
		ID:              clonePtr(e.id),
		EventType:       string(e.eventType),
		RiskLevel:       e.riskLevel.String(),
		UserContext:     e.user.toRecord(),
		ResourceContext: e.resource.toRecord(),
		Timestamp:       e.timestamp.Format(TimestampLayout),
		Description:     e.description,
		Details:         maps.Clone(e.details),
		CourseID:        clonePtr(e.courseID),
		ChangeLog:       make([]ChangeLogRecord, 0, len(e.changeLog)),
	}
	if e.sessionID != "" {
		sid := e.sessionID
		r.SessionID = &sid
	}
	for _, c := range e.changeLog {
		r.ChangeLog = append(r.ChangeLog, ChangeLogRecord{
			Action:    string(c.Action),
			Data:      maps.Clone(c.Data),
			Timestamp: c.Timestamp.Format(TimestampLayout),
		})
	}
	return r
}

// FromRecord rebuilds an Event through the normal construction path, so the
// risk level is derived again from the event type. The persisted level is
// applied only when it differs from the derived one, which keeps explicit
// overrides across reloads. The change log is restored as stored.
func FromRecord(r Record) (*Event, error) {
	eventType, err := ParseEventType(r.EventType)
	if err != nil {
		return nil, err
	}
	user, err := r.UserContext.toUserContext()
	if err != nil {
		return nil, err
	}
	resource, err := r.ResourceContext.toResourceContext()
	if err != nil {
		return nil, err
	}
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return nil, err
	}

	opts := []EventOption{WithTimestamp(ts)}
	if r.SessionID != nil {
		opts = append(opts, WithSessionID(*r.SessionID))
	}
	e, err := NewEvent(eventType, user, resource, r.Description, r.Details, opts...)
	if err != nil {
		return nil, err
	}

	if r.RiskLevel != "" {
		persisted, err := ParseRiskLevel(r.RiskLevel)
		if err != nil {
			return nil, err
		}
		if persisted != e.riskLevel {
			e.riskLevel = persisted
		}
	}
	e.courseID = clonePtr(r.CourseID)

	changeLog := make([]ChangeLogEntry, 0, len(r.ChangeLog))
	for _, c := range r.ChangeLog {
		action := ChangeAction(c.Action)
		if !action.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid change log action: %q", c.Action)
		}
		at, err := parseTimestamp(c.Timestamp)
		if err != nil {
			return nil, err
		}
		changeLog = append(changeLog, ChangeLogEntry{Action: action, Data: maps.Clone(c.Data), Timestamp: at})
	}
	e.changeLog = changeLog

	if r.ID != nil {
		e.SetID(*r.ID)
	}
	return e, nil
}

func (u UserContext) toRecord() UserContextRecord {
	rec := UserContextRecord{
		UserID:   u.userID,
		Username: u.username,
		Email:    u.email,
		FullName: u.fullName,
		Roles:    u.Roles(),
	}
	if rec.Roles == nil {
		rec.Roles = []string{}
	}
	if u.ipAddress != "" {
		ip := u.ipAddress
		rec.IPAddress = &ip
	}
	if u.userAgent != "" {
		ua := u.userAgent
		rec.UserAgent = &ua
	}
	return rec
}

func (r UserContextRecord) toUserContext() (UserContext, error) {
	var opts []UserContextOption
	if r.IPAddress != nil {
		opts = append(opts, WithIPAddress(*r.IPAddress))
	}
	if r.UserAgent != nil {
		opts = append(opts, WithUserAgent(*r.UserAgent))
	}
	return NewUserContext(r.UserID, r.Username, r.Email, r.FullName, r.Roles, opts...)
}

func (r ResourceContext) toRecord() ResourceContextRecord {
	return ResourceContextRecord{
		ResourceType: string(r.resourceType),
		ResourceID:   r.resourceID,
		ResourceName: r.resourceName,
		ParentID:     clonePtr(r.parentID),
		Metadata:     r.Metadata(),
	}
}

func (r ResourceContextRecord) toResourceContext() (ResourceContext, error) {
	rt, err := ParseResourceType(r.ResourceType)
	if err != nil {
		return ResourceContext{}, err
	}
	return NewResourceContext(rt, r.ResourceID, r.ResourceName, r.ParentID, r.Metadata)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "invalid timestamp: %q", value)
	}
	return t, nil
}
