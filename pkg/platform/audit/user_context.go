package audit

import (
	"slices"
	"strconv"
	"strings"

	"github.com/mssola/useragent"

	dErrors "audittrail/pkg/domain-errors"
)

const (
	SystemUserID     int64 = 0
	anonymizedEmail        = "anonymized@example.invalid"
	anonymizedName         = "Anonymized User"
	systemUsername         = "system"
	systemEmail            = "system@localhost"
	systemFullName         = "System"
	systemRole             = "system"
	anonymizedPrefix       = "user_"
)

// UserContext is an immutable snapshot of the actor at event time.
type UserContext struct {
	userID    int64
	username  string
	email     string
	fullName  string
	roles     []string
	ipAddress string
	userAgent string
}

// UserContextOption sets optional request metadata on a UserContext.
type UserContextOption func(*UserContext)

// WithIPAddress records the client address the action came from.
func WithIPAddress(ip string) UserContextOption {
	return func(u *UserContext) {
		u.ipAddress = strings.TrimSpace(ip)
	}
}

// WithUserAgent records the raw User-Agent header.
func WithUserAgent(ua string) UserContextOption {
	return func(u *UserContext) {
		u.userAgent = strings.TrimSpace(ua)
	}
}

// NewUserContext validates and builds an actor snapshot.
func NewUserContext(userID int64, username, email, fullName string, roles []string, opts ...UserContextOption) (UserContext, error) {
	if userID < 0 {
		return UserContext{}, dErrors.New(dErrors.CodeValidation, "user id cannot be negative")
	}
	if strings.TrimSpace(username) == "" {
		return UserContext{}, dErrors.New(dErrors.CodeValidation, "username cannot be blank")
	}
	if strings.TrimSpace(email) == "" {
		return UserContext{}, dErrors.New(dErrors.CodeValidation, "email cannot be blank")
	}
	if strings.TrimSpace(fullName) == "" {
		return UserContext{}, dErrors.New(dErrors.CodeValidation, "full name cannot be blank")
	}
	u := UserContext{
		userID:   userID,
		username: username,
		email:    email,
		fullName: fullName,
		roles:    slices.Clone(roles),
	}
	for _, opt := range opts {
		opt(&u)
	}
	return u, nil
}

// SystemUser returns the reserved actor used for automated actions.
func SystemUser() UserContext {
	return UserContext{
		userID:   SystemUserID,
		username: systemUsername,
		email:    systemEmail,
		fullName: systemFullName,
		roles:    []string{systemRole},
	}
}

func (u UserContext) UserID() int64     { return u.userID }
func (u UserContext) Username() string  { return u.username }
func (u UserContext) Email() string     { return u.email }
func (u UserContext) FullName() string  { return u.fullName }
func (u UserContext) IPAddress() string { return u.ipAddress }
func (u UserContext) UserAgent() string { return u.userAgent }

// Roles returns a copy of the role set.
func (u UserContext) Roles() []string {
	return slices.Clone(u.roles)
}

// HasRole reports whether the actor held the role when the event was captured.
func (u UserContext) HasRole(role string) bool {
	return slices.Contains(u.roles, role)
}

// IsSystem reports whether the actor is the reserved automated user.
func (u UserContext) IsSystem() bool {
	return u.userID == SystemUserID
}

// Equal compares actors by user id only; role or address snapshots may differ.
func (u UserContext) Equal(other UserContext) bool {
	return u.userID == other.userID
}

// Anonymized returns a copy stripped of personal data for privacy-compliant export.
func (u UserContext) Anonymized() UserContext {
	return UserContext{
		userID:   u.userID,
		username: anonymizedPrefix + strconv.FormatInt(u.userID, 10),
		email:    anonymizedEmail,
		fullName: anonymizedName,
		roles:    slices.Clone(u.roles),
	}
}

// Device returns a readable "Browser on OS" label from the user agent,
// or an empty string when no user agent was captured.
func (u UserContext) Device() string {
	if u.userAgent == "" {
		return ""
	}
	ua := useragent.New(u.userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
