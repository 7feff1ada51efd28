package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRank(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, RoleUser.Rank())
	assert.Equal(t, 1, RoleModerator.Rank())
	assert.Equal(t, 2, RoleAdmin.Rank())
	assert.Equal(t, 3, RoleSuperAdmin.Rank())
	assert.Equal(t, -1, Role("owner").Rank())
	assert.False(t, Role("").Valid())
}

func TestHasPermission(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleUser, PermCreatePost, true},
		{RoleUser, PermModeratePosts, false},
		{RoleUser, PermBanUsers, false},
		{RoleModerator, PermBanUsers, true},
		{RoleModerator, PermManageUsers, false},
		{RoleAdmin, PermManageUsers, true},
		{RoleAdmin, PermManageAdmins, false},
		{RoleSuperAdmin, PermDatabaseAccess, true},
		{Role("ghost"), PermCreatePost, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm))
		})
	}
}

func TestPermissionsAreCumulative(t *testing.T) {
	t.Parallel()
	for i := 1; i < len(Roles); i++ {
		lower, higher := Roles[i-1], Roles[i]
		for _, p := range lower.Permissions() {
			assert.True(t, HasPermission(higher, p), "%s should inherit %s from %s", higher, p, lower)
		}
	}
	assert.ElementsMatch(t, AllPermissions, RoleSuperAdmin.Permissions())
}

func TestCanModerateUser(t *testing.T) {
	t.Parallel()
	for _, actor := range Roles {
		for _, target := range Roles {
			want := actor.Rank() > target.Rank()
			assert.Equal(t, want, CanModerateUser(actor, target), "%s over %s", actor, target)
		}
	}
}

func TestCanModerateUser_NeverSameRole(t *testing.T) {
	t.Parallel()
	for _, r := range Roles {
		assert.False(t, CanModerateUser(r, r), "role %s must not moderate itself", r)
	}
	assert.False(t, CanModerateUser(Role("bogus"), Role("bogus")))
}

func TestParseRoleAndAtLeast(t *testing.T) {
	t.Parallel()
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	assert.Error(t, err)

	assert.True(t, RoleSuperAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleModerator.AtLeast(RoleAdmin))
	assert.False(t, Role("x").AtLeast(RoleUser))
}
