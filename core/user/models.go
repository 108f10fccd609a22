package user

import "strings"

// Roles, as supplied by the identity provider.
const (
	RoleStudent = "STUDENT"
	RoleTeacher = "TEACHER"
	RoleAdmin   = "ADMIN"
)

var AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

// ParseRole normalizes role and reports whether it is known.
func ParseRole(role string) (string, bool) {
	role = strings.ToUpper(strings.TrimSpace(role))
	for _, known := range AllRoles {
		if role == known {
			return role, true
		}
	}
	return role, false
}

// Identity is the verified caller of an operation.
// The core never authenticates users; it trusts the identity provider for both fields.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (id Identity) IsAdmin() bool   { return id.Role == RoleAdmin }
func (id Identity) IsTeacher() bool { return id.Role == RoleTeacher }

// CanGrade reports whether the identity may grade subjective submissions.
func (id Identity) CanGrade() bool {
	return id.IsTeacher() || id.IsAdmin()
}

// HasAnyRole reports whether the identity holds one of roles; an empty roles list always matches.
func (id Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if id.Role == role {
			return true
		}
	}
	return false
}
