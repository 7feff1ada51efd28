package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sccompanion/internal/models"
	"sccompanion/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"handle":      "nova_pilot",
		"displayName": "Nova",
		"email":       "Nova@Example.com",
		"password":    "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "User registered successfully", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "nova@example.com", user["email"])
	assert.EqualValues(t, models.XPRegistrationBonus, user["xp"])
	assert.EqualValues(t, 1, user["level"])
	assert.NotContains(t, user, "PasswordHash")
	assert.NotEmpty(t, body["token"])

	status, body = ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"handle":      "other_pilot",
		"displayName": "Other",
		"email":       "nova@example.com",
		"password":    "correct-horse-battery",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Email already registered", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
		"email":    "nova@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
		"email":    "nova@example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, status, body)
	token := body["token"].(string)

	status, body = ts.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "nova_pilot", body["user"].(map[string]any)["handle"])
	assert.Contains(t, body, "progress")

	status, body = ts.do(t, http.MethodPost, "/api/users/refresh-token", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, _ = ts.do(t, http.MethodPost, "/api/users/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token has been revoked", body["error"])
}

func TestRegister_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"handle": "x",
		"email":  "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeValidation, body["code"])
	assert.NotEmpty(t, body["details"])
}

func TestLogin_AccountState(t *testing.T) {
	ts := newTestServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2-hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	reason := "spam"

	tests := []struct {
		name   string
		mutate func(*models.User)
		status int
		msg    string
	}{
		{"Active", func(*models.User) {}, http.StatusOK, ""},
		{"Deactivated", func(u *models.User) { u.IsActive = false }, http.StatusUnauthorized, "Account is deactivated"},
		{"Banned", func(u *models.User) {
			u.IsBanned = true
			u.BannedReason = &reason
		}, http.StatusUnauthorized, "Account is banned"},
		{"Timed ban running", func(u *models.User) {
			u.IsBanned = true
			u.BannedUntil = &future
		}, http.StatusUnauthorized, "Account is banned"},
		{"Timed ban over", func(u *models.User) {
			u.IsBanned = true
			u.BannedUntil = &past
		}, http.StatusOK, ""},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := fmt.Sprintf("state%d@example.com", i)
			user := testutil.MakeUser(t, ts.db, func(u *models.User) {
				u.Email = email
				u.PasswordHash = string(hash)
				tt.mutate(u)
			})

			status, body := ts.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
				"email":    email,
				"password": "hunter2-hunter2",
			})
			assert.Equal(t, tt.status, status, body)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body["error"])
				return
			}
			assert.Equal(t, false, body["user"].(map[string]any)["isBanned"])

			var stored models.User
			require.NoError(t, ts.db.First(&stored, user.ID).Error)
			assert.False(t, stored.IsBanned)
		})
	}
}

func TestGetUserProfile(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.MakeUser(t, ts.db)
	bob := testutil.MakeUser(t, ts.db)
	testutil.Follow(t, ts.db, bob.ID, alice.ID)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"Anonymous", fmt.Sprintf("/api/users/%d", alice.ID), "", http.StatusOK},
		{"Viewer", fmt.Sprintf("/api/users/%d", alice.ID), ts.tokenFor(t, bob), http.StatusOK},
		{"Invalid ID", "/api/users/abc", "", http.StatusBadRequest},
		{"Not Found", "/api/users/9999", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, status)
			if status != http.StatusOK {
				return
			}
			profile := body["user"].(map[string]any)
			assert.Equal(t, alice.Handle, profile["handle"])
			assert.EqualValues(t, 1, profile["followersCount"])
			if tt.token != "" {
				assert.Equal(t, true, profile["isFollowing"])
			} else {
				assert.Nil(t, profile["isFollowing"])
			}
		})
	}

	status, body := ts.do(t, http.MethodGet, "/api/users/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid user ID", body["error"])
}

func TestModerationEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := testutil.MakeUser(t, ts.db, func(u *models.User) { u.Role = models.RoleAdmin })
	mod := testutil.MakeUser(t, ts.db, func(u *models.User) { u.Role = models.RoleModerator })
	target := testutil.MakeUser(t, ts.db)
	adminToken := ts.tokenFor(t, admin)
	modToken := ts.tokenFor(t, mod)
	targetToken := ts.tokenFor(t, target)

	rolePath := fmt.Sprintf("/api/users/%d/role", target.ID)
	status, body := ts.do(t, http.MethodPut, rolePath, modToken, map[string]any{"role": "moderator"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Insufficient permissions", body["error"])

	status, body = ts.do(t, http.MethodPut, rolePath, adminToken, map[string]any{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Cannot assign role equal or higher than your own", body["error"])

	status, body = ts.do(t, http.MethodPut, rolePath, adminToken, map[string]any{"role": "moderator"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "moderator", body["user"].(map[string]any)["role"])

	// Moderators cannot ban their peers.
	banPath := fmt.Sprintf("/api/users/%d/ban", target.ID)
	status, _ = ts.do(t, http.MethodPost, banPath, modToken, map[string]any{"reason": "spam"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = ts.do(t, http.MethodPost, banPath, adminToken, map[string]any{"reason": "spam", "duration": 24})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["user"].(map[string]any)["isBanned"])

	// The banned user's existing token stops working immediately.
	status, body = ts.do(t, http.MethodGet, "/api/users/me", targetToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or inactive user", body["error"])

	status, body = ts.do(t, http.MethodDelete, banPath, adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	status, _ = ts.do(t, http.MethodGet, "/api/users/me", targetToken, nil)
	assert.Equal(t, http.StatusOK, status)

	xpPath := fmt.Sprintf("/api/users/%d/award-xp", target.ID)
	status, _ = ts.do(t, http.MethodPost, xpPath, modToken, map[string]any{"amount": 100, "reason": "event"})
	assert.Equal(t, http.StatusForbidden, status)
	status, body = ts.do(t, http.MethodPost, xpPath, adminToken, map[string]any{"amount": 100, "reason": "event"})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 100, body["user"].(map[string]any)["xp"])
}

func TestSearchAndLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	testutil.MakeUser(t, ts.db, func(u *models.User) {
		u.Handle = "drake_hauler"
		u.XP = 900
	})
	testutil.MakeUser(t, ts.db, func(u *models.User) {
		u.Handle = "aegis_fan"
		u.XP = 4000
	})

	status, body := ts.do(t, http.MethodGet, "/api/users/search?q=drake", "", nil)
	require.Equal(t, http.StatusOK, status)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "drake_hauler", users[0].(map[string]any)["handle"])

	status, body = ts.do(t, http.MethodGet, "/api/users/search?q=", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Search query cannot be empty", body["error"])

	status, body = ts.do(t, http.MethodGet, "/api/users/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, status)
	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	assert.Equal(t, "aegis_fan", board[0].(map[string]any)["handle"])
}

func TestUpdateProfileAndDeactivate(t *testing.T) {
	ts := newTestServer(t)
	user := testutil.MakeUser(t, ts.db)
	token := ts.tokenFor(t, user)

	status, body := ts.do(t, http.MethodPut, "/api/users/profile", token, map[string]any{"bio": "Hauling quantanium"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Hauling quantanium", body["user"].(map[string]any)["bio"])

	status, body = ts.do(t, http.MethodDelete, "/api/users/deactivate", token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["user"].(map[string]any)["isActive"])

	status, _ = ts.do(t, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}
