package models

import "strings"

// UserRole names the roles the school API embeds in access tokens.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleTeacher    UserRole = "teacher"
	RoleSupervisor UserRole = "supervisor"
	RoleParent     UserRole = "parent"
)

// UserProfile describes the signed-in user. Roles come from the access token claims,
// never from the login response body.
type UserProfile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// FullName joins first and last name.
func (u UserProfile) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasAnyRole reports whether the user holds one of roles, ignoring case.
// An empty role list always matches.
func (u UserProfile) HasAnyRole(roles ...UserRole) bool {
	if len(roles) == 0 {
		return true
	}
	for _, held := range u.Roles {
		for _, want := range roles {
			if strings.EqualFold(held, string(want)) {
				return true
			}
		}
	}
	return false
}

// Clone returns a copy that does not share the roles slice.
func (u UserProfile) Clone() UserProfile {
	out := u
	if u.Roles != nil {
		out.Roles = append([]string(nil), u.Roles...)
	}
	return out
}
