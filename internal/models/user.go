package models

// Role codes and permission literals mirror what the portal backend issues.
// RoleSuperAdmin and PermissionAll are "all access" sentinels: a profile
// carrying either passes every permission check.
const (
	RoleSuperAdmin = "super_admin"
	PermissionAll  = "*"
)

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Code        string   `json:"code"`
	Permissions []string `json:"permissions"`
}

// UserProfile is the canonical identity shape used everywhere inside this
// module. The backend sends it under several field spellings; normalization
// happens once, in the API client, and consumers only ever see this struct.
type UserProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Team        string `json:"team,omitempty"`
	Title       string `json:"title,omitempty"`

	// Role is the legacy single role code some endpoints still return.
	// Roles is the authoritative set; a profile with neither has no
	// elevated permissions.
	Role  string `json:"role,omitempty"`
	Roles []Role `json:"roles,omitempty"`
}

// HasRole reports whether the profile carries the given role code, checking
// both the structured role set and the legacy single-role field.
func (u *UserProfile) HasRole(code string) bool {
	if u == nil {
		return false
	}
	if u.Role != "" && u.Role == code {
		return true
	}
	for _, role := range u.Roles {
		if role.Code == code {
			return true
		}
	}
	return false
}

// HasPermission reports whether any role grants the permission. The
// super_admin role and the "*" permission grant everything. A nil profile
// fails closed.
func (u *UserProfile) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	if u.HasRole(RoleSuperAdmin) {
		return true
	}
	for _, role := range u.Roles {
		for _, granted := range role.Permissions {
			if granted == PermissionAll || granted == permission {
				return true
			}
		}
	}
	return false
}
