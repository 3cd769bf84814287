package auth

// Role is the closed set of roles the marketplace recognises.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps an upstream role header to a Role. Anything that is not
// explicitly "admin" is treated as a regular user.
func ParseRole(s string) Role {
	if s == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Actor is the authenticated caller as supplied by the authentication
// collaborator in front of this service.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor may read or mutate an entity owned by
// ownerID. Admins may access everything.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsAdmin() || a.UserID == ownerID
}
