package model

// Role is the closed set of privilege tiers, ordered admin > moderator > user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleModerator, RoleUser:
		return Role(raw), nil
	default:
		return "", ErrInvalidRole
	}
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleUser
}

func (r Role) String() string {
	return string(r)
}

// Permits reports whether an identity holding r clears the declared minimum
// role. Admins clear everything, moderators clear moderator and user
// requirements, users clear only user requirements. Anything outside the
// enum is denied.
func (r Role) Permits(min Role) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleModerator:
		return min == RoleModerator || min == RoleUser
	case RoleUser:
		return min == RoleUser
	default:
		return false
	}
}
