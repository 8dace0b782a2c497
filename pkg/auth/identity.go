package auth

import "errors"

var (
	// ErrInvalidToken is returned for any token that fails verification
	ErrInvalidToken = errors.New("invalid token")

	// ErrNoSecret is returned when no internal token secret is configured
	ErrNoSecret = errors.New("internal token secret not configured")
)

// Source identifies which stage authenticated a request
type Source string

const (
	SourceExternal Source = "external"
	SourceInternal Source = "internal"
)

// Role represents an organization role carried by external tokens
type Role string

const (
	RoleAdmin  Role = "org:admin"
	RoleMember Role = "org:member"
)

// Identity is the request-scoped identity context. It is built by the
// auth middleware and never persisted.
type Identity struct {
	SubjectID      string `json:"subject_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	// Role is only meaningful when OrganizationID is set. Internal tokens
	// never carry one.
	Role   Role   `json:"role,omitempty"`
	Source Source `json:"source"`
}

// TenantID returns the tenant the identity acts for: the organization when
// present, otherwise the personal tenant named after the subject.
func (i Identity) TenantID() string {
	if i.OrganizationID != "" {
		return i.OrganizationID
	}
	return i.SubjectID
}

// IsPersonal reports whether the identity acts for an individual account
func (i Identity) IsPersonal() bool {
	return i.OrganizationID == ""
}

// HasRole reports whether the identity holds one of the given roles
func (i Identity) HasRole(roles ...Role) bool {
	if i.OrganizationID == "" || i.Role == "" {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
