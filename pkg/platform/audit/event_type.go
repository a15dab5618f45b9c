package audit

import (
	"strings"

	dErrors "audittrail/pkg/domain-errors"
)

// EventType identifies what kind of action an audit event records.
// Only the constants below are valid; use ParseEventType at trust boundaries.
type EventType string

const (
	EventFolderCreated   EventType = "folder_created"
	EventFolderDeleted   EventType = "folder_deleted"
	EventFolderRenamed   EventType = "folder_renamed"
	EventFolderMoved     EventType = "folder_moved"
	EventFolderBlocked   EventType = "folder_blocked"
	EventFolderUnblocked EventType = "folder_unblocked"

	EventItemUploaded   EventType = "item_uploaded"
	EventItemDeleted    EventType = "item_deleted"
	EventItemUpdated    EventType = "item_updated"
	EventItemShared     EventType = "item_shared"
	EventItemUnshared   EventType = "item_unshared"
	EventItemViewed     EventType = "item_viewed"
	EventItemDownloaded EventType = "item_downloaded"

	EventCategoryCreated EventType = "category_created"
	EventCategoryDeleted EventType = "category_deleted"
	EventCategoryUpdated EventType = "category_updated"

	EventViewCreated  EventType = "view_created"
	EventViewDeleted  EventType = "view_deleted"
	EventViewShared   EventType = "view_shared"
	EventViewAccessed EventType = "view_accessed"

	EventPermissionGranted EventType = "permission_granted"
	EventPermissionRevoked EventType = "permission_revoked"

	EventDataExported EventType = "data_exported"
	EventDataImported EventType = "data_imported"
)

var eventDescriptions = map[EventType]string{
	EventFolderCreated:     "Folder created",
	EventFolderDeleted:     "Folder deleted",
	EventFolderRenamed:     "Folder renamed",
	EventFolderMoved:       "Folder moved",
	EventFolderBlocked:     "Folder blocked",
	EventFolderUnblocked:   "Folder unblocked",
	EventItemUploaded:      "File uploaded",
	EventItemDeleted:       "File deleted",
	EventItemUpdated:       "File updated",
	EventItemShared:        "File shared",
	EventItemUnshared:      "File unshared",
	EventItemViewed:        "File viewed",
	EventItemDownloaded:    "File downloaded",
	EventCategoryCreated:   "Category created",
	EventCategoryDeleted:   "Category deleted",
	EventCategoryUpdated:   "Category updated",
	EventViewCreated:       "View created",
	EventViewDeleted:       "View deleted",
	EventViewShared:        "View shared",
	EventViewAccessed:      "View accessed",
	EventPermissionGranted: "Permission granted",
	EventPermissionRevoked: "Permission revoked",
	EventDataExported:      "Data exported",
	EventDataImported:      "Data imported",
}

// allEventTypes keeps declaration order for listings.
var allEventTypes = []EventType{
	EventFolderCreated, EventFolderDeleted, EventFolderRenamed, EventFolderMoved,
	EventFolderBlocked, EventFolderUnblocked,
	EventItemUploaded, EventItemDeleted, EventItemUpdated, EventItemShared,
	EventItemUnshared, EventItemViewed, EventItemDownloaded,
	EventCategoryCreated, EventCategoryDeleted, EventCategoryUpdated,
	EventViewCreated, EventViewDeleted, EventViewShared, EventViewAccessed,
	EventPermissionGranted, EventPermissionRevoked,
	EventDataExported, EventDataImported,
}

// ParseEventType converts a raw string into an EventType.
// Values outside the closed set are rejected with a validation error.
func ParseEventType(value string) (EventType, error) {
	et := EventType(value)
	if !et.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid event type: %q", value)
	}
	return et, nil
}

// AllEventTypes returns every valid event type.
func AllEventTypes() []EventType {
	return append([]EventType(nil), allEventTypes...)
}

// IsValid reports whether the event type belongs to the closed set.
func (t EventType) IsValid() bool {
	_, ok := eventDescriptions[t]
	return ok
}

// IsHighRisk reports whether the event type destroys data, exports it,
// or changes who can reach it.
func (t EventType) IsHighRisk() bool {
	switch t {
	case EventFolderDeleted, EventItemDeleted, EventCategoryDeleted, EventViewDeleted,
		EventDataExported, EventPermissionGranted, EventPermissionRevoked:
		return true
	default:
		return false
	}
}

// IsCreationEvent reports whether the event type brings a new resource into existence.
func (t EventType) IsCreationEvent() bool {
	switch t {
	case EventFolderCreated, EventItemUploaded, EventCategoryCreated, EventViewCreated:
		return true
	default:
		return false
	}
}

// Description returns a human-readable label for the event type.
func (t EventType) Description() string {
	if d, ok := eventDescriptions[t]; ok {
		return d
	}
	return "Unknown event"
}

// Domain returns the group the event type belongs to (folder, item, category, view, permission, data).
func (t EventType) Domain() string {
	domain, _, _ := strings.Cut(string(t), "_")
	return domain
}

func (t EventType) String() string {
	return string(t)
}
