package models

import "fmt"

// Role is a user's position in the moderation hierarchy.
type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every role from lowest to highest rank.
var Roles = []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}

// Rank returns the role's fixed position. Unknown roles rank below user.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 0
	case RoleModerator:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return -1
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Permission is a single allowed action.
type Permission string

const (
	PermCreatePost       Permission = "create_post"
	PermEditOwnPost      Permission = "edit_own_post"
	PermDeleteOwnPost    Permission = "delete_own_post"
	PermModeratePosts    Permission = "moderate_posts"
	PermModerateUsers    Permission = "moderate_users"
	PermModerateComments Permission = "moderate_comments"
	PermBanUsers         Permission = "ban_users"
	PermManageUsers      Permission = "manage_users"
	PermManageModerators Permission = "manage_moderators"
	PermAccessAdminPanel Permission = "access_admin_panel"
	PermManageQuests     Permission = "manage_quests"
	PermManageEvents     Permission = "manage_events"
	PermManageAdmins     Permission = "manage_admins"
	PermSystemConfig     Permission = "system_config"
	PermDatabaseAccess   Permission = "database_access"
)

// AllPermissions is every permission in declaration order.
var AllPermissions = []Permission{
	PermCreatePost, PermEditOwnPost, PermDeleteOwnPost,
	PermModeratePosts, PermModerateUsers, PermModerateComments, PermBanUsers,
	PermManageUsers, PermManageModerators, PermAccessAdminPanel, PermManageQuests, PermManageEvents,
	PermManageAdmins, PermSystemConfig, PermDatabaseAccess,
}

var rolePermissions = func() map[Role]map[Permission]struct{} {
	user := []Permission{PermCreatePost, PermEditOwnPost, PermDeleteOwnPost}
	moderator := append(append([]Permission{}, user...),
		PermModeratePosts, PermModerateUsers, PermModerateComments, PermBanUsers)
	admin := append(append([]Permission{}, moderator...),
		PermManageUsers, PermManageModerators, PermAccessAdminPanel, PermManageQuests, PermManageEvents)

	table := map[Role][]Permission{
		RoleUser:       user,
		RoleModerator:  moderator,
		RoleAdmin:      admin,
		RoleSuperAdmin: AllPermissions,
	}
	out := make(map[Role]map[Permission]struct{}, len(table))
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		out[role] = set
	}
	return out
}()

// Permissions returns the role's permission set in declaration order.
func (r Role) Permissions() []Permission {
	set := rolePermissions[r]
	out := make([]Permission, 0, len(set))
	for _, p := range AllPermissions {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	_, ok := rolePermissions[role][perm]
	return ok
}

// CanModerateUser reports whether actor strictly outranks target. Equal
// ranks never qualify, so nobody can moderate themselves.
func CanModerateUser(actor, target Role) bool {
	return actor.Valid() && actor.Rank() > target.Rank()
}
