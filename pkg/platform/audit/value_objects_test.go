package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "audittrail/pkg/domain-errors"
)

type ValueObjectsSuite struct {
	suite.Suite
}

func TestValueObjectsSuite(t *testing.T) {
	suite.Run(t, new(ValueObjectsSuite))
}

func (s *ValueObjectsSuite) TestEventType() {
	s.Run("parses every declared type", func() {
		for _, et := range AllEventTypes() {
			parsed, err := ParseEventType(string(et))
			s.Require().NoError(err)
			s.Equal(et, parsed)
		}
		s.Len(AllEventTypes(), 24)
	})

	s.Run("rejects unknown type", func() {
		_, err := ParseEventType("folder_exploded")
		s.Require().Error(err)
		s.True(dErrors.IsValidation(err))
	})

	s.Run("classifies high risk and creation", func() {
		s.True(EventFolderDeleted.IsHighRisk())
		s.True(EventPermissionRevoked.IsHighRisk())
		s.True(EventDataExported.IsHighRisk())
		s.False(EventDataImported.IsHighRisk())
		s.True(EventItemUploaded.IsCreationEvent())
		s.False(EventItemUpdated.IsCreationEvent())
	})

	s.Run("describes and groups", func() {
		s.Equal("File uploaded", EventItemUploaded.Description())
		s.Equal("Unknown event", EventType("nope").Description())
		s.Equal("permission", EventPermissionGranted.Domain())
	})
}

func (s *ValueObjectsSuite) TestRiskLevel() {
	s.Run("derives from event type", func() {
		s.Equal(RiskHigh, RiskLevelFromEventType(EventFolderDeleted))
		s.Equal(RiskMedium, RiskLevelFromEventType(EventFolderCreated))
		s.Equal(RiskLow, RiskLevelFromEventType(EventItemViewed))
	})

	s.Run("never derives critical", func() {
		for _, et := range AllEventTypes() {
			s.NotEqual(RiskCritical, RiskLevelFromEventType(et), et)
		}
	})

	s.Run("orders by rank", func() {
		s.True(RiskCritical.IsHigherThan(RiskHigh))
		s.True(RiskLow.IsLowerThan(RiskMedium))
		s.False(RiskMedium.IsHighRisk())
		s.True(RiskHigh.IsHighRisk())
	})

	s.Run("parses names and rejects others", func() {
		level, err := ParseRiskLevel("critical")
		s.Require().NoError(err)
		s.Equal(RiskCritical, level)

		_, err = ParseRiskLevel("severe")
		s.True(dErrors.IsValidation(err))
	})

	s.Run("encodes as name in json", func() {
		data, err := json.Marshal(RiskHigh)
		s.Require().NoError(err)
		s.JSONEq(`"high"`, string(data))

		var level RiskLevel
		s.Require().NoError(json.Unmarshal([]byte(`"medium"`), &level))
		s.Equal(RiskMedium, level)
		s.Error(json.Unmarshal([]byte(`"urgent"`), &level))
	})
}

func (s *ValueObjectsSuite) TestUserContext() {
	s.Run("rejects invalid input", func() {
		cases := []struct {
			name                      string
			id                        int64
			username, email, fullName string
		}{
			{name: "negative id", id: -1, username: "u", email: "e", fullName: "f"},
			{name: "blank username", id: 1, username: "  ", email: "e", fullName: "f"},
			{name: "blank email", id: 1, username: "u", email: "", fullName: "f"},
			{name: "blank full name", id: 1, username: "u", email: "e", fullName: " "},
		}
		for _, tc := range cases {
			_, err := NewUserContext(tc.id, tc.username, tc.email, tc.fullName, nil)
			s.True(dErrors.IsValidation(err), tc.name)
		}
	})

	s.Run("system user", func() {
		u := SystemUser()
		s.True(u.IsSystem())
		s.Equal(int64(0), u.UserID())
		s.True(u.HasRole("system"))
	})

	s.Run("anonymizes without touching original", func() {
		u, err := NewUserContext(7, "alice", "alice@example.com", "Alice Smith", []string{"teacher"},
			WithIPAddress("10.0.0.1"), WithUserAgent("Mozilla/5.0"))
		s.Require().NoError(err)

		anon := u.Anonymized()
		s.Equal("user_7", anon.Username())
		s.Equal("anonymized@example.invalid", anon.Email())
		s.Equal("Anonymized User", anon.FullName())
		s.Empty(anon.IPAddress())
		s.Empty(anon.UserAgent())
		s.True(anon.Equal(u))

		s.Equal("alice", u.Username())
		s.Equal("10.0.0.1", u.IPAddress())
	})

	s.Run("roles are copied", func() {
		roles := []string{"admin"}
		u, err := NewUserContext(1, "a", "a@x", "A", roles)
		s.Require().NoError(err)
		roles[0] = "guest"
		s.True(u.HasRole("admin"))

		got := u.Roles()
		got[0] = "guest"
		s.True(u.HasRole("admin"))
	})

	s.Run("device label", func() {
		u, err := NewUserContext(1, "a", "a@x", "A", nil, WithUserAgent(
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"))
		s.Require().NoError(err)
		s.Contains(u.Device(), "Chrome on ")

		bare, err := NewUserContext(1, "a", "a@x", "A", nil)
		s.Require().NoError(err)
		s.Empty(bare.Device())
	})
}

func (s *ValueObjectsSuite) TestResourceContext() {
	s.Run("accepts valid input", func() {
		for _, rt := range []ResourceType{ResourceFolder, ResourceItem, ResourceCategory, ResourceView,
			ResourceCompetence, ResourceComment, ResourceShare} {
			r, err := NewResourceContext(rt, 1, " name ", nil, nil)
			s.Require().NoError(err, rt)
			s.Equal("name", r.ResourceName())
			s.NotNil(r.Metadata())
		}
	})

	s.Run("rejects invalid input", func() {
		_, err := NewResourceContext("planet", 1, "x", nil, nil)
		s.True(dErrors.IsValidation(err))
		_, err = NewResourceContext("", 1, "x", nil, nil)
		s.True(dErrors.IsValidation(err))
		_, err = NewResourceContext(ResourceFolder, 0, "x", nil, nil)
		s.True(dErrors.IsValidation(err))
		_, err = NewResourceContext(ResourceFolder, 1, "   ", nil, nil)
		s.True(dErrors.IsValidation(err))
	})

	s.Run("factories inject metadata", func() {
		v, err := ViewResource(3, "Board", 9)
		s.Require().NoError(err)
		owner, ok := v.MetadataValue(MetaOwnerID)
		s.True(ok)
		s.Equal(int64(9), owner)

		c, err := CommentResource(4, "Note", 12)
		s.Require().NoError(err)
		item, _ := c.MetadataValue(MetaItemID)
		s.Equal(int64(12), item)

		sh, err := ShareResource(5, "Link", 77)
		s.Require().NoError(err)
		shared, _ := sh.MetadataValue(MetaSharedResourceID)
		s.Equal(int64(77), shared)
	})

	s.Run("with metadata returns a new value", func() {
		parent := int64(2)
		r, err := FolderResource(1, "Docs", &parent)
		s.Require().NoError(err)
		r2 := r.WithMetadata("color", "red")

		_, ok := r.MetadataValue("color")
		s.False(ok)
		v, _ := r2.MetadataValue("color")
		s.Equal("red", v)
		pid, ok := r2.ParentID()
		s.True(ok)
		s.Equal(int64(2), pid)
	})

	s.Run("equality by type and id", func() {
		a, _ := FolderResource(1, "A", nil)
		b, _ := FolderResource(1, "B", nil)
		c, _ := ItemResource(1, "A", nil)
		s.True(a.Equal(b))
		s.False(a.Equal(c))
	})
}
