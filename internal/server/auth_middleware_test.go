package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/repository"
	"sccompanion/internal/service"
	"sccompanion/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByRSIHandle(ctx context.Context, rsiHandle string) (*models.User, error) {
	args := m.Called(ctx, rsiHandle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockUserRepository) AddXP(ctx context.Context, id uint, amount int64) (int64, error) {
	args := m.Called(ctx, id, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) ClearExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

// newAuthApp mounts the auth middleware in front of handlers that echo the
// resolved caller.
func newAuthApp(t *testing.T, users repository.UserRepository) (*fiber.App, *service.AuthService) {
	t.Helper()
	testutil.NewRedis(t)

	cfg := testConfig()
	s := &Server{config: cfg, store: &repository.Store{Users: users}}
	auth := service.NewAuthService(s.store, cfg, service.Dependencies{})

	app := fiber.New()
	echo := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userId": currentUserID(c)})
	}
	app.Get("/private", s.AuthRequired(), echo)
	app.Get("/public", s.OptionalAuth(), echo)
	app.Post("/ban", s.AuthRequired(), s.RequirePermission(models.PermBanUsers), echo)
	app.Post("/xp", s.AuthRequired(), s.RequireRole(models.RoleAdmin), echo)
	return app, auth
}

func call(t *testing.T, app *fiber.App, method, path, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestAuthRequired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		user    *models.User
		repoErr error
		token   func(auth *service.AuthService, u *models.User) string
		status  int
		msg     string
	}{
		{
			name:   "Missing token",
			user:   &models.User{ID: 1, IsActive: true},
			token:  func(*service.AuthService, *models.User) string { return "" },
			status: http.StatusUnauthorized,
			msg:    "Access token required",
		},
		{
			name:   "Garbage token",
			user:   &models.User{ID: 1, IsActive: true},
			token:  func(*service.AuthService, *models.User) string { return "not.a.jwt" },
			status: http.StatusUnauthorized,
			msg:    "Invalid or expired token",
		},
		{
			name:    "Unknown user",
			user:    &models.User{ID: 2},
			repoErr: models.NewNotFoundError("User", 2),
			status:  http.StatusUnauthorized,
			msg:     "Invalid or inactive user",
		},
		{
			name:   "Inactive user",
			user:   &models.User{ID: 3, IsActive: false},
			status: http.StatusUnauthorized,
			msg:    "Invalid or inactive user",
		},
		{
			name:   "Banned user",
			user:   &models.User{ID: 4, IsActive: true, IsBanned: true, BannedUntil: &future},
			status: http.StatusUnauthorized,
			msg:    "Invalid or inactive user",
		},
		{
			name:   "Expired ban",
			user:   &models.User{ID: 5, IsActive: true, IsBanned: true, BannedUntil: &past},
			status: http.StatusOK,
		},
		{
			name:    "Store failure",
			user:    &models.User{ID: 6},
			repoErr: models.NewInternalError(errors.New("connection reset")),
			status:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			app, auth := newAuthApp(t, users)

			if tt.repoErr != nil {
				users.On("GetByID", mock.Anything, tt.user.ID).Return(nil, tt.repoErr)
			} else {
				users.On("GetByID", mock.Anything, tt.user.ID).Return(tt.user, nil)
			}

			var token string
			if tt.token != nil {
				token = tt.token(auth, tt.user)
			} else {
				var err error
				token, err = auth.IssueToken(tt.user)
				require.NoError(t, err)
			}

			status, body := call(t, app, http.MethodGet, "/private", token)
			assert.Equal(t, tt.status, status)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body["error"])
			}
			if tt.status == http.StatusOK {
				assert.EqualValues(t, tt.user.ID, body["userId"])
			}
		})
	}
}

func TestAuthRequired_RevokedToken(t *testing.T) {
	users := new(MockUserRepository)
	app, auth := newAuthApp(t, users)
	user := &models.User{ID: 7, IsActive: true}
	users.On("GetByID", mock.Anything, uint(7)).Return(user, nil)

	token, err := auth.IssueToken(user)
	require.NoError(t, err)
	status, _ := call(t, app, http.MethodGet, "/private", token)
	require.Equal(t, http.StatusOK, status)

	claims, err := middleware.ParseToken(testConfig(), token)
	require.NoError(t, err)
	require.NoError(t, cache.RevokeToken(context.Background(), claims.ID, time.Hour))

	status, body := call(t, app, http.MethodGet, "/private", token)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token has been revoked", body["error"])
	users.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestOptionalAuth(t *testing.T) {
	users := new(MockUserRepository)
	app, auth := newAuthApp(t, users)
	user := &models.User{ID: 8, IsActive: true}
	users.On("GetByID", mock.Anything, uint(8)).Return(user, nil)

	token, err := auth.IssueToken(user)
	require.NoError(t, err)

	status, body := call(t, app, http.MethodGet, "/public", token)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 8, body["userId"])

	status, body = call(t, app, http.MethodGet, "/public", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["userId"])

	status, body = call(t, app, http.MethodGet, "/public", "garbage")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["userId"])
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		role   models.Role
		path   string
		status int
	}{
		{"User cannot ban", models.RoleUser, "/ban", http.StatusForbidden},
		{"Moderator can ban", models.RoleModerator, "/ban", http.StatusOK},
		{"Moderator below admin", models.RoleModerator, "/xp", http.StatusForbidden},
		{"Super admin above admin", models.RoleSuperAdmin, "/xp", http.StatusOK},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			app, auth := newAuthApp(t, users)
			user := &models.User{ID: uint(100 + i), IsActive: true, Role: tt.role}
			users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

			token, err := auth.IssueToken(user)
			require.NoError(t, err)

			status, body := call(t, app, http.MethodPost, tt.path, token)
			assert.Equal(t, tt.status, status)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "Insufficient permissions", body["error"])
				assert.Equal(t, models.CodeForbidden, body["code"])
				details := body["details"].(map[string]any)
				assert.Equal(t, string(tt.role), details["userRole"])
				assert.NotEmpty(t, details["required"])
			}
		})
	}
}

func TestRequirePermission_RoleFromStoreNotToken(t *testing.T) {
	users := new(MockUserRepository)
	app, auth := newAuthApp(t, users)

	// The token was issued while the user was a moderator; the row has
	// since been demoted.
	token, err := auth.IssueToken(&models.User{ID: 9, IsActive: true, Role: models.RoleModerator})
	require.NoError(t, err)
	users.On("GetByID", mock.Anything, uint(9)).Return(&models.User{ID: 9, IsActive: true, Role: models.RoleUser}, nil)

	status, body := call(t, app, http.MethodPost, "/ban", token)
	assert.Equal(t, http.StatusForbidden, status)
	details := body["details"].(map[string]any)
	assert.Equal(t, string(models.PermBanUsers), details["required"])
	assert.Equal(t, "user", details["userRole"])
}
