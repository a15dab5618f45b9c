package audit

import (
	"maps"
	"strings"

	dErrors "audittrail/pkg/domain-errors"
)

// ResourceType names the kind of object an event concerns.
type ResourceType string

const (
	ResourceFolder     ResourceType = "folder"
	ResourceItem       ResourceType = "item"
	ResourceCategory   ResourceType = "category"
	ResourceView       ResourceType = "view"
	ResourceCompetence ResourceType = "competence"
	ResourceComment    ResourceType = "comment"
	ResourceShare      ResourceType = "share"
)

// Metadata keys injected by the typed factories.
const (
	MetaOwnerID          = "owner_id"
	MetaItemID           = "item_id"
	MetaSharedResourceID = "shared_resource_id"
)

// ParseResourceType converts a raw string into a ResourceType.
func ParseResourceType(value string) (ResourceType, error) {
	rt := ResourceType(value)
	if !rt.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid resource type: %q", value)
	}
	return rt, nil
}

func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceFolder, ResourceItem, ResourceCategory, ResourceView,
		ResourceCompetence, ResourceComment, ResourceShare:
		return true
	default:
		return false
	}
}

func (t ResourceType) String() string {
	return string(t)
}

// ResourceContext identifies the audited object.
// Two contexts are equal when they point at the same (type, id), whatever
// name or metadata snapshot they carry.
type ResourceContext struct {
	resourceType ResourceType
	resourceID   int64
	resourceName string
	parentID     *int64
	metadata     map[string]any
}

// NewResourceContext validates and builds a resource reference.
// parentID is optional; metadata is copied.
func NewResourceContext(resourceType ResourceType, resourceID int64, resourceName string, parentID *int64, metadata map[string]any) (ResourceContext, error) {
	if !resourceType.IsValid() {
		return ResourceContext{}, dErrors.Newf(dErrors.CodeValidation, "invalid resource type: %q", string(resourceType))
	}
	if resourceID <= 0 {
		return ResourceContext{}, dErrors.New(dErrors.CodeValidation, "resource id must be positive")
	}
	name := strings.TrimSpace(resourceName)
	if name == "" {
		return ResourceContext{}, dErrors.New(dErrors.CodeValidation, "resource name cannot be blank")
	}
	md := maps.Clone(metadata)
	if md == nil {
		md = map[string]any{}
	}
	return ResourceContext{
		resourceType: resourceType,
		resourceID:   resourceID,
		resourceName: name,
		parentID:     clonePtr(parentID),
		metadata:     md,
	}, nil
}

// FolderResource references a folder, optionally nested under parentID.
func FolderResource(folderID int64, name string, parentID *int64) (ResourceContext, error) {
	return NewResourceContext(ResourceFolder, folderID, name, parentID, nil)
}

// ItemResource references a file item stored in folderID.
func ItemResource(itemID int64, name string, folderID *int64) (ResourceContext, error) {
	return NewResourceContext(ResourceItem, itemID, name, folderID, nil)
}

func CategoryResource(categoryID int64, name string) (ResourceContext, error) {
	return NewResourceContext(ResourceCategory, categoryID, name, nil, nil)
}

// ViewResource references a saved view and records its owner.
func ViewResource(viewID int64, name string, ownerID int64) (ResourceContext, error) {
	return NewResourceContext(ResourceView, viewID, name, nil, map[string]any{MetaOwnerID: ownerID})
}

func CompetenceResource(competenceID int64, name string) (ResourceContext, error) {
	return NewResourceContext(ResourceCompetence, competenceID, name, nil, nil)
}

// CommentResource references a comment attached to itemID.
func CommentResource(commentID int64, name string, itemID int64) (ResourceContext, error) {
	return NewResourceContext(ResourceComment, commentID, name, nil, map[string]any{MetaItemID: itemID})
}

// ShareResource references a share granting access to sharedResourceID.
func ShareResource(shareID int64, name string, sharedResourceID int64) (ResourceContext, error) {
	return NewResourceContext(ResourceShare, shareID, name, nil, map[string]any{MetaSharedResourceID: sharedResourceID})
}

func (r ResourceContext) ResourceType() ResourceType { return r.resourceType }
func (r ResourceContext) ResourceID() int64          { return r.resourceID }
func (r ResourceContext) ResourceName() string       { return r.resourceName }

// ParentID returns the parent resource id, if any.
func (r ResourceContext) ParentID() (int64, bool) {
	if r.parentID == nil {
		return 0, false
	}
	return *r.parentID, true
}

// Metadata returns a copy of the metadata map.
func (r ResourceContext) Metadata() map[string]any {
	return maps.Clone(r.metadata)
}

// MetadataValue looks up a single metadata entry.
func (r ResourceContext) MetadataValue(key string) (any, bool) {
	v, ok := r.metadata[key]
	return v, ok
}

// WithMetadata returns a new context with key set; the receiver is unchanged.
func (r ResourceContext) WithMetadata(key string, value any) ResourceContext {
	md := maps.Clone(r.metadata)
	if md == nil {
		md = map[string]any{}
	}
	md[key] = value
	r.metadata = md
	r.parentID = clonePtr(r.parentID)
	return r
}

func (r ResourceContext) Equal(other ResourceContext) bool {
	return r.resourceType == other.resourceType && r.resourceID == other.resourceID
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
