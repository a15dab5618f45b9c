package testutil

import (
	"fmt"
	"time"

	audit "audittrail/pkg/platform/audit"
)

// FixedTime is the default timestamp of built events.
var FixedTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// MustUser builds a user context and panics on invalid input.
func MustUser(userID int64, username string, roles ...string) audit.UserContext {
	if len(roles) == 0 {
		roles = []string{"student"}
	}
	u, err := audit.NewUserContext(userID, username, username+"@example.com", "User "+username, roles,
		audit.WithIPAddress("203.0.113.10"),
		audit.WithUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"),
	)
	if err != nil {
		panic(fmt.Sprintf("testutil: invalid user %d: %v", userID, err))
	}
	return u
}

// EventBuilder provides a fluent interface for building test events.
type EventBuilder struct {
	eventType    audit.EventType
	user         audit.UserContext
	resourceType audit.ResourceType
	resourceID   int64
	resourceName string
	description  string
	details      map[string]any
	timestamp    time.Time
	sessionID    string
	courseID     *int64
	risk         *audit.RiskLevel
}

// NewEventBuilder creates a builder for an item view by user 1 at FixedTime.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		eventType:    audit.EventItemViewed,
		user:         MustUser(1, "jdoe"),
		resourceType: audit.ResourceItem,
		resourceID:   100,
		resourceName: "syllabus.pdf",
		details:      map[string]any{},
		timestamp:    FixedTime,
	}
}

func (b *EventBuilder) OfType(t audit.EventType) *EventBuilder {
	b.eventType = t
	return b
}

func (b *EventBuilder) ByUser(u audit.UserContext) *EventBuilder {
	b.user = u
	return b
}

func (b *EventBuilder) OnResource(t audit.ResourceType, id int64, name string) *EventBuilder {
	b.resourceType, b.resourceID, b.resourceName = t, id, name
	return b
}

func (b *EventBuilder) WithDescription(description string) *EventBuilder {
	b.description = description
	return b
}

func (b *EventBuilder) WithDetail(key string, value any) *EventBuilder {
	b.details[key] = value
	return b
}

func (b *EventBuilder) At(t time.Time) *EventBuilder {
	b.timestamp = t
	return b
}

func (b *EventBuilder) InSession(sessionID string) *EventBuilder {
	b.sessionID = sessionID
	return b
}

func (b *EventBuilder) ForCourse(courseID int64) *EventBuilder {
	b.courseID = &courseID
	return b
}

// WithRisk overrides the derived risk level after construction.
func (b *EventBuilder) WithRisk(level audit.RiskLevel) *EventBuilder {
	b.risk = &level
	return b
}

func (b *EventBuilder) Build() (*audit.Event, error) {
	resource, err := audit.NewResourceContext(b.resourceType, b.resourceID, b.resourceName, nil, nil)
	if err != nil {
		return nil, err
	}
	description := b.description
	if description == "" {
		description = fmt.Sprintf("%s %s %s", b.user.Username(), b.eventType, b.resourceName)
	}
	event, err := audit.NewEvent(b.eventType, b.user, resource, description, b.details,
		audit.WithTimestamp(b.timestamp),
		audit.WithSessionID(b.sessionID),
	)
	if err != nil {
		return nil, err
	}
	if b.courseID != nil {
		event.SetCourseID(*b.courseID)
	}
	if b.risk != nil {
		if err := event.OverrideRiskLevel(*b.risk); err != nil {
			return nil, err
		}
	}
	return event, nil
}

// MustBuild is Build for fixtures that are known to be valid.
func (b *EventBuilder) MustBuild() *audit.Event {
	event, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("testutil: invalid event fixture: %v", err))
	}
	return event
}
