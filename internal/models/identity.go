package models

// Identity is the caller as seen by the booking engine. Role is resolved once
// from the union of token claims and stored role tags.
type Identity struct {
	UserID   string     `json:"user_id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Roles    []UserRole `json:"roles"`
	Role     UserRole   `json:"role"`
	Approved bool       `json:"approved"`
}

// ResolveRole collapses role tags into a single role. Admin wins over teacher
// and no tag at all means student.
func ResolveRole(tags []UserRole) UserRole {
	role := RoleStudent
	for _, tag := range tags {
		switch tag {
		case RoleAdmin:
			return RoleAdmin
		case RoleTeacher:
			role = RoleTeacher
		}
	}
	return role
}

// HasRole reports whether the identity carries the role tag.
func (i Identity) HasRole(role UserRole) bool {
	if role == RoleStudent {
		return i.Role == RoleStudent
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity holds the admin tag.
func (i Identity) IsAdmin() bool { return i.HasRole(RoleAdmin) }

// IsTeacher reports whether the identity holds the teacher tag.
func (i Identity) IsTeacher() bool { return i.HasRole(RoleTeacher) }

// IsStudent reports whether the identity carries no admin or teacher tag.
func (i Identity) IsStudent() bool { return i.Role == RoleStudent }
