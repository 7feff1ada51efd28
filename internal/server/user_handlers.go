package server

import (
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /api/users/register
// @Summary Register
// @Description Create an account and receive a token. Awards the registration bonus.
// @Tags users
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "Registration"
// @Success 201 {object} object{message=string,user=models.User,token=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var in service.RegisterInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	res, err := s.authService.Register(c.UserContext(), in)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    res.User,
		"token":   res.Token,
	})
}

// Login handles POST /api/users/login
// @Summary Login
// @Tags users
// @Accept json
// @Produce json
// @Param request body service.LoginInput true "Credentials"
// @Success 200 {object} object{message=string,user=models.User,token=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /users/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var in service.LoginInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	res, err := s.authService.Login(c.UserContext(), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Login successful",
		"user":    res.User,
		"token":   res.Token,
	})
}

// RefreshToken handles POST /api/users/refresh-token
// @Summary Refresh token
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string,token=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /users/refresh-token [post]
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	token, err := s.authService.Refresh(c.UserContext(), currentUserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Token refreshed", "token": token})
}

// Logout handles POST /api/users/logout. The token stays revoked until it
// would have expired.
// @Summary Logout
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /users/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals(localClaims).(*middleware.Claims)
	if err := s.authService.Logout(c.UserContext(), claims); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// GetMe handles GET /api/users/me
// @Summary Current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{user=models.User,progress=models.LevelProgress}
// @Router /users/me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, progress, err := s.authService.Me(c.UserContext(), currentUserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"user": user, "progress": progress})
}

// LinkRSI handles POST /api/users/link-rsi
// @Summary Link RSI handle
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{rsi_handle=string} true "RSI handle"
// @Success 200 {object} object{message=string,user=models.User}
// @Failure 409 {object} models.ErrorResponse
// @Router /users/link-rsi [post]
func (s *Server) LinkRSI(c *fiber.Ctx) error {
	var req struct {
		RSIHandle string `json:"rsi_handle"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.authService.LinkRSI(c.UserContext(), currentUserID(c), req.RSIHandle)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "RSI handle linked", "user": user})
}

// UpdateGEID handles PUT /api/users/rsi-geid
// @Summary Update RSI GEID
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{rsi_geid=string} true "GEID"
// @Success 200 {object} object{message=string,user=models.User}
// @Router /users/rsi-geid [put]
func (s *Server) UpdateGEID(c *fiber.Ctx) error {
	var req struct {
		RSIGEID string `json:"rsi_geid"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.authService.UpdateGEID(c.UserContext(), currentUserID(c), req.RSIGEID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "RSI GEID updated", "user": user})
}

// SearchUsers handles GET /api/users/search
// @Summary Search users
// @Tags users
// @Produce json
// @Param q query string true "Query"
// @Param limit query int false "Max results (default 20, max 50)"
// @Success 200 {object} object{users=[]models.UserProfile}
// @Failure 400 {object} models.ErrorResponse
// @Router /users/search [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	users, err := s.userService.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

// GetLeaderboard handles GET /api/users/leaderboard
// @Summary XP leaderboard
// @Tags users
// @Produce json
// @Param limit query int false "Max results (default 50, max 100)"
// @Success 200 {object} object{leaderboard=[]models.UserProfile}
// @Router /users/leaderboard [get]
func (s *Server) GetLeaderboard(c *fiber.Ctx) error {
	board, err := s.userService.Leaderboard(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"leaderboard": board})
}

// UpdateProfile handles PUT /api/users/profile
// @Summary Update own profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.UpdateProfileInput true "Profile fields"
// @Success 200 {object} object{message=string,user=models.User}
// @Router /users/profile [put]
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var in service.UpdateProfileInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	user, err := s.userService.UpdateProfile(c.UserContext(), currentUserID(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Profile updated successfully", "user": user})
}

// DeactivateAccount handles DELETE /api/users/deactivate
// @Summary Deactivate own account
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string,user=models.User}
// @Router /users/deactivate [delete]
func (s *Server) DeactivateAccount(c *fiber.Ctx) error {
	user, err := s.userService.Deactivate(c.UserContext(), currentUserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Account deactivated", "user": user})
}

// GetUserProfile handles GET /api/users/:userId
// @Summary User profile
// @Tags users
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} object{user=models.UserProfile}
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{userId} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	profile, err := s.userService.GetProfile(c.UserContext(), userID, currentUserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"user": profile})
}

// UpdateUserRole handles PUT /api/users/:userId/role
// @Summary Change a user's role
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body object{role=string} true "New role"
// @Success 200 {object} object{message=string,user=models.User}
// @Failure 403 {object} models.ErrorResponse
// @Router /users/{userId}/role [put]
func (s *Server) UpdateUserRole(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req struct {
		Role models.Role `json:"role"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.userService.UpdateRole(c.UserContext(), currentUserID(c), targetID, req.Role)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "User role updated", "user": user})
}

// BanUser handles POST /api/users/:userId/ban
// @Summary Ban a user
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body service.BanInput true "Reason and optional duration in hours"
// @Success 200 {object} object{message=string,user=models.User}
// @Router /users/{userId}/ban [post]
func (s *Server) BanUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var in service.BanInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	user, err := s.userService.Ban(c.UserContext(), currentUserID(c), targetID, in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "User banned successfully", "user": user})
}

// UnbanUser handles DELETE /api/users/:userId/ban
// @Summary Unban a user
// @Tags moderation
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} object{message=string,user=models.User}
// @Router /users/{userId}/ban [delete]
func (s *Server) UnbanUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	user, err := s.userService.Unban(c.UserContext(), currentUserID(c), targetID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "User unbanned successfully", "user": user})
}

// AwardXP handles POST /api/users/:userId/award-xp
// @Summary Award XP
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body object{amount=int,reason=string} true "Amount and reason"
// @Success 200 {object} object{message=string,user=models.User}
// @Router /users/{userId}/award-xp [post]
func (s *Server) AwardXP(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.userService.AwardXP(c.UserContext(), currentUserID(c), targetID, req.Amount, req.Reason)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "XP awarded", "user": user})
}
