package model

// Role values stored in profiles.role.  Roles are managed locally only;
// nothing received from Patreon ever sets them.
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleDeveloper = "developer"
)

// IsElevatedRole reports whether role grants administrative access.
func IsElevatedRole(role string) bool {
	switch role {
	case RoleAdmin, RoleModerator, RoleDeveloper:
		return true
	}
	return false
}

// IsKnownRole reports whether role is one of the declared roles.
func IsKnownRole(role string) bool {
	return role == RoleUser || IsElevatedRole(role)
}
