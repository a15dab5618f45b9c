package audit

import (
	"fmt"
	"maps"
)

// Named constructors for the actions the surrounding application audits.
// Each builds the resource context and description appropriate to the action.

func FolderCreated(user UserContext, folderID int64, folderName string, parentID *int64, opts ...EventOption) (*Event, error) {
	resource, err := FolderResource(folderID, folderName, parentID)
	if err != nil {
		return nil, err
	}
	details := map[string]any{}
	if parentID != nil {
		details["parent_id"] = *parentID
	}
	return NewEvent(EventFolderCreated, user, resource,
		fmt.Sprintf(`Folder "%s" created`, resource.ResourceName()), details, opts...)
}

// FolderDeleted keeps a snapshot of what was removed under deleted_data.
func FolderDeleted(user UserContext, folderID int64, folderName string, deletedData map[string]any, opts ...EventOption) (*Event, error) {
	resource, err := FolderResource(folderID, folderName, nil)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventFolderDeleted, user, resource,
		fmt.Sprintf(`Folder "%s" deleted`, resource.ResourceName()),
		map[string]any{"deleted_data": nonNilMap(deletedData)}, opts...)
}

func FolderRenamed(user UserContext, folderID int64, oldName, newName string, opts ...EventOption) (*Event, error) {
	resource, err := FolderResource(folderID, newName, nil)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventFolderRenamed, user, resource,
		fmt.Sprintf(`Folder renamed from "%s" to "%s"`, oldName, resource.ResourceName()),
		map[string]any{"old_name": oldName, "new_name": resource.ResourceName()}, opts...)
}

// FolderMoved records a re-parenting; the resource carries the new parent.
func FolderMoved(user UserContext, folderID int64, folderName string, fromParentID, toParentID *int64, opts ...EventOption) (*Event, error) {
	resource, err := FolderResource(folderID, folderName, toParentID)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventFolderMoved, user, resource,
		fmt.Sprintf(`Folder "%s" moved`, resource.ResourceName()),
		map[string]any{"from_parent_id": optionalValue(fromParentID), "to_parent_id": optionalValue(toParentID)}, opts...)
}

func FolderBlocked(user UserContext, folderID int64, folderName, reason string, opts ...EventOption) (*Event, error) {
	resource, err := FolderResource(folderID, folderName, nil)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventFolderBlocked, user, resource,
		fmt.Sprintf(`Folder "%s" blocked`, resource.ResourceName()),
		map[string]any{"reason": reason}, opts...)
}

func FolderUnblocked(user UserContext, folderID int64, folderName string, opts ...EventOption) (*Event, error) {
	resource, err := FolderResource(folderID, folderName, nil)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventFolderUnblocked, user, resource,
		fmt.Sprintf(`Folder "%s" unblocked`, resource.ResourceName()), nil, opts...)
}

// ItemUploaded records a new file placed in folderID.
func ItemUploaded(user UserContext, itemID int64, itemName string, folderID int64, fileInfo map[string]any, opts ...EventOption) (*Event, error) {
	resource, err := ItemResource(itemID, itemName, &folderID)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventItemUploaded, user, resource,
		fmt.Sprintf(`File "%s" uploaded`, resource.ResourceName()),
		map[string]any{"folder_id": folderID, "file_info": nonNilMap(fileInfo)}, opts...)
}

func ItemDeleted(user UserContext, itemID int64, itemName string, deletedData map[string]any, opts ...EventOption) (*Event, error) {
	resource, err := ItemResource(itemID, itemName, nil)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventItemDeleted, user, resource,
		fmt.Sprintf(`File "%s" deleted`, resource.ResourceName()),
		map[string]any{"deleted_data": nonNilMap(deletedData)}, opts...)
}

func ItemDownloaded(user UserContext, itemID int64, itemName string, opts ...EventOption) (*Event, error) {
	resource, err := ItemResource(itemID, itemName, nil)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventItemDownloaded, user, resource,
		fmt.Sprintf(`File "%s" downloaded`, resource.ResourceName()), nil, opts...)
}

func ViewAccessed(user UserContext, viewID int64, viewName string, ownerID int64, opts ...EventOption) (*Event, error) {
	resource, err := ViewResource(viewID, viewName, ownerID)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventViewAccessed, user, resource,
		fmt.Sprintf(`View "%s" accessed`, resource.ResourceName()), nil, opts...)
}

func ViewShared(user UserContext, viewID int64, viewName string, ownerID int64, sharedWith []int64, opts ...EventOption) (*Event, error) {
	resource, err := ViewResource(viewID, viewName, ownerID)
	if err != nil {
		return nil, err
	}
	return NewEvent(EventViewShared, user, resource,
		fmt.Sprintf(`View "%s" shared with %d user(s)`, resource.ResourceName(), len(sharedWith)),
		map[string]any{"shared_with": append([]int64{}, sharedWith...)}, opts...)
}

// PermissionGranted records targetUserID receiving permission on resource.
func PermissionGranted(user UserContext, resource ResourceContext, targetUserID int64, permission string, opts ...EventOption) (*Event, error) {
	return NewEvent(EventPermissionGranted, user, resource,
		fmt.Sprintf(`Permission "%s" granted to user %d on %s "%s"`, permission, targetUserID, resource.ResourceType(), resource.ResourceName()),
		map[string]any{"target_user_id": targetUserID, "permission": permission}, opts...)
}

func PermissionRevoked(user UserContext, resource ResourceContext, targetUserID int64, permission string, opts ...EventOption) (*Event, error) {
	return NewEvent(EventPermissionRevoked, user, resource,
		fmt.Sprintf(`Permission "%s" revoked from user %d on %s "%s"`, permission, targetUserID, resource.ResourceType(), resource.ResourceName()),
		map[string]any{"target_user_id": targetUserID, "permission": permission}, opts...)
}

func DataExported(user UserContext, resource ResourceContext, format string, recordCount int, opts ...EventOption) (*Event, error) {
	return NewEvent(EventDataExported, user, resource,
		fmt.Sprintf(`Data exported from %s "%s" as %s`, resource.ResourceType(), resource.ResourceName(), format),
		map[string]any{"format": format, "record_count": recordCount}, opts...)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

func optionalValue(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
