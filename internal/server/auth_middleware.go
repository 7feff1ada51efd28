package server

import (
	"context"

	"sccompanion/internal/cache"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the auth middleware.
const (
	localUserID = "userID"
	localUser   = "user"
	localClaims = "claims"
)

// AuthRequired verifies the bearer token and re-loads the caller from the
// store on every request. Missing, inactive or banned users and revoked
// tokens are rejected with 401. WebSocket routes may pass the token as
// the "token" query parameter.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := middleware.BearerToken(c, websocketRequest(c))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Access token required"))
		}

		claims, err := middleware.ParseToken(s.config, raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}
		if cache.IsTokenRevoked(c.UserContext(), claims.ID) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		userID, _ := claims.UserID()
		user, err := s.store.Users.GetByID(c.UserContext(), userID)
		if err != nil && !models.IsCode(err, models.CodeNotFound) {
			return models.RespondWithAppError(c, err)
		}
		if user == nil || !user.CanAct(nowUTC()) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or inactive user"))
		}

		s.setCaller(c, user, claims)
		return c.Next()
	}
}

// OptionalAuth resolves the caller when a valid token is present and never
// fails the request.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := middleware.BearerToken(c, false)
		if err != nil {
			return c.Next()
		}
		claims, err := middleware.ParseToken(s.config, raw)
		if err != nil || cache.IsTokenRevoked(c.UserContext(), claims.ID) {
			return c.Next()
		}
		userID, _ := claims.UserID()
		user, err := s.store.Users.GetByID(c.UserContext(), userID)
		if err == nil && user.CanAct(nowUTC()) {
			s.setCaller(c, user, claims)
		}
		return c.Next()
	}
}

func (s *Server) setCaller(c *fiber.Ctx, user *models.User, claims *middleware.Claims) {
	c.Locals(localUserID, user.ID)
	c.Locals(localUser, user)
	c.Locals(localClaims, claims)
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, user.ID)
	c.SetUserContext(ctx)
}

// RequirePermission rejects callers whose role lacks perm. Must be placed
// after AuthRequired; the role comes from the store row, not the token.
func (s *Server) RequirePermission(perm models.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := currentUser(c)
		if user == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		if !models.HasPermission(user.Role, perm) {
			return insufficientPermissions(c, string(perm), user.Role)
		}
		return c.Next()
	}
}

// RequireRole rejects callers ranked below min.
func (s *Server) RequireRole(min models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := currentUser(c)
		if user == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		if !user.Role.AtLeast(min) {
			return insufficientPermissions(c, string(min), user.Role)
		}
		return c.Next()
	}
}

func insufficientPermissions(c *fiber.Ctx, required string, role models.Role) error {
	return models.RespondWithError(c, fiber.StatusForbidden, &models.AppError{
		Code:    models.CodeForbidden,
		Message: "Insufficient permissions",
		Details: fiber.Map{"required": required, "userRole": role},
	})
}

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localUser).(*models.User)
	return user
}

// currentUserID is 0 for anonymous requests.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(localUserID).(uint)
	return id
}

func websocketRequest(c *fiber.Ctx) bool {
	return c.Get(fiber.HeaderUpgrade) != "" || c.Path() == "/api/ws/events"
}
