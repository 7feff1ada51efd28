package service

import (
	"context"
	"testing"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/events"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerInput(handle, email string) RegisterInput {
	return RegisterInput{
		Handle:      handle,
		DisplayName: "Pilot " + handle,
		Email:       email,
		Password:    "correct-horse-battery",
	}
}

func TestAuthService_Register(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	res, err := h.auth.Register(ctx, registerInput("alice", "Alice@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, models.XPRegistrationBonus, res.User.XP)
	assert.Equal(t, 1, res.User.Level())
	assert.NotEmpty(t, res.Token)
	assert.Contains(t, h.events.types(), events.UserRegistered)

	cfg := h.auth.cfg
	claims, err := middleware.ParseToken(cfg, res.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id)
	assert.NotEmpty(t, claims.ID)

	tests := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{name: "Email taken", in: registerInput("alice2", "alice@example.com"), msg: "Email already registered"},
		{name: "Handle taken", in: registerInput("alice", "other@example.com"), msg: "Handle already taken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.auth.Register(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.CodeConflict))
			assert.Equal(t, tt.msg, err.Error())
		})
	}

	t.Run("RSI handle taken", func(t *testing.T) {
		rsi := "StarPilot"
		in := registerInput("bob", "bob@example.com")
		in.RSIHandle = &rsi
		_, err := h.auth.Register(ctx, in)
		require.NoError(t, err)

		in = registerInput("carol", "carol@example.com")
		in.RSIHandle = &rsi
		_, err = h.auth.Register(ctx, in)
		require.Error(t, err)
		assert.Equal(t, "RSI handle already linked to another account", err.Error())
	})

	t.Run("Invalid payload", func(t *testing.T) {
		_, err := h.auth.Register(ctx, registerInput("a!", "nope"))
		assert.True(t, models.IsCode(err, models.CodeValidation))
	})
}

func TestAuthService_Login(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	res, err := h.auth.Register(ctx, registerInput("alice", "alice@example.com"))
	require.NoError(t, err)
	alice := res.User

	t.Run("Success", func(t *testing.T) {
		out, err := h.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct-horse-battery"})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, out.User.ID)
	})

	t.Run("Wrong password", func(t *testing.T) {
		_, err := h.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
		require.Error(t, err)
		assert.Equal(t, "Invalid credentials", err.Error())
		assert.Equal(t, 401, models.StatusFor(err))
	})

	t.Run("Unknown email", func(t *testing.T) {
		_, err := h.auth.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "whatever"})
		require.Error(t, err)
		assert.Equal(t, "Invalid credentials", err.Error())
	})

	t.Run("Banned", func(t *testing.T) {
		require.NoError(t, h.store.Users.Update(ctx, alice.ID, map[string]any{"is_banned": true}))
		_, err := h.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct-horse-battery"})
		require.Error(t, err)
		assert.Equal(t, "Account is banned", err.Error())
	})

	t.Run("Expired ban is lifted", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Minute)
		require.NoError(t, h.store.Users.Update(ctx, alice.ID, map[string]any{"is_banned": true, "banned_until": past}))
		out, err := h.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct-horse-battery"})
		require.NoError(t, err)
		assert.False(t, out.User.IsBanned)

		stored, err := h.store.Users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsBanned)
	})

	t.Run("Deactivated", func(t *testing.T) {
		require.NoError(t, h.store.Users.Update(ctx, alice.ID, map[string]any{"is_active": false}))
		_, err := h.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct-horse-battery"})
		require.Error(t, err)
		assert.Equal(t, "Account is deactivated", err.Error())

		_, err = h.auth.Refresh(ctx, alice.ID)
		require.Error(t, err)
		assert.Equal(t, "Invalid user", err.Error())
	})
}

func TestAuthService_LinkRSIAndGEID(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	alice := testutil.MakeUser(t, h.db)
	bob := testutil.MakeUser(t, h.db)

	user, err := h.auth.LinkRSI(ctx, alice.ID, "Alice_RSI")
	require.NoError(t, err)
	require.NotNil(t, user.RSIHandle)
	assert.Equal(t, "Alice_RSI", *user.RSIHandle)
	assert.Equal(t, models.XPRSILinkBonus, user.XP)

	_, err = h.auth.LinkRSI(ctx, bob.ID, "Alice_RSI")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	user, err = h.auth.UpdateGEID(ctx, alice.ID, "GEID_12345")
	require.NoError(t, err)
	require.NotNil(t, user.RSIGEID)
	assert.Equal(t, "GEID_12345", *user.RSIGEID)

	_, err = h.auth.UpdateGEID(ctx, alice.ID, "12345")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestAuthService_Logout(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	alice := testutil.MakeUser(t, h.db)

	token, err := h.auth.IssueToken(alice)
	require.NoError(t, err)
	claims, err := middleware.ParseToken(h.auth.cfg, token)
	require.NoError(t, err)

	assert.False(t, cache.IsTokenRevoked(ctx, claims.ID))
	require.NoError(t, h.auth.Logout(ctx, claims))
	assert.True(t, cache.IsTokenRevoked(ctx, claims.ID))
	assert.Greater(t, h.mr.TTL(cache.RevokedTokenKey(claims.ID)), time.Duration(0))
}
