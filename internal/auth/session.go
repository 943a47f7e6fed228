package auth

// Role is the authorization level carried by a session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// NormalizeRole validates a role string. An empty role means RoleUser.
func NormalizeRole(role string) (Role, bool) {
	switch Role(role) {
	case "", RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Session identifies the caller of a lifecycle operation.
type Session struct {
	UserID string
	Name   string
	Role   Role
}

// IsAdmin reports whether the session may use operator endpoints.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
