package bootstrap

import (
	"context"
	"testing"

	"sccompanion/internal/models"
	"sccompanion/internal/repository"
	"sccompanion/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestEnsureAdmin_CreatesSuperAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	admin, created, err := EnsureAdmin(ctx, store, " Ops.Lead@Example.com ", "sup3rsecret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ops_lead", admin.Handle)
	assert.Equal(t, "ops.lead@example.com", admin.Email)
	assert.Equal(t, models.RoleSuperAdmin, admin.Role)
	assert.EqualValues(t, models.XPRegistrationBonus, admin.XP)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("sup3rsecret")))

	again, created, err := EnsureAdmin(ctx, store, "ops.lead@example.com", "", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestEnsureAdmin_PromotesExisting(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	user := testutil.MakeUser(t, db, func(u *models.User) {
		u.Email = "mod@example.com"
		u.IsActive = false
	})

	got, created, err := EnsureAdmin(context.Background(), store, "mod@example.com", "ignored-password", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, created)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, models.RoleSuperAdmin, stored.Role)
	assert.True(t, stored.IsActive)
	assert.Equal(t, "not-a-real-hash", stored.PasswordHash)
	assert.Equal(t, got.ID, stored.ID)
}

func TestEnsureAdmin_Rejections(t *testing.T) {
	store := repository.NewStore(testutil.NewDB(t))
	ctx := context.Background()

	_, _, err := EnsureAdmin(ctx, store, "", "sup3rsecret", bcrypt.MinCost)
	assert.ErrorContains(t, err, "email is required")

	_, _, err = EnsureAdmin(ctx, store, "new@example.com", "short", bcrypt.MinCost)
	assert.ErrorContains(t, err, "at least 8")
}

func TestFreeHandle(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()
	testutil.MakeUser(t, db, func(u *models.User) { u.Handle = "admin" })

	h, err := freeHandle(ctx, store, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "admin_2", h)

	h, err = freeHandle(ctx, store, "captain-kirk@example.com")
	require.NoError(t, err)
	assert.Equal(t, "captain_kirk", h)
}
