package server

import (
	"context"

	"sccompanion/internal/models"
	"sccompanion/internal/service"
	"sccompanion/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// FollowUser handles POST /api/follows
// @Summary Follow a user
// @Tags follows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.FollowInput true "Target"
// @Success 201 {object} object{message=string,follow=models.Follow}
// @Failure 409 {object} models.ErrorResponse
// @Router /follows [post]
func (s *Server) FollowUser(c *fiber.Ctx) error {
	var in service.FollowInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	if err := validation.Struct(in); err != nil {
		return respond(c, err)
	}
	follow, err := s.socialService.Follow(c.UserContext(), currentUserID(c), in.TargetUserID)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User followed successfully", "follow": follow})
}

// UnfollowUser handles DELETE /api/follows/:userId
// @Summary Unfollow a user
// @Tags follows
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /follows/{userId} [delete]
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.socialService.Unfollow(c.UserContext(), currentUserID(c), targetID); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "User unfollowed successfully"})
}

// GetFollowers handles GET /api/follows/:userId/followers
// @Summary Followers of a user
// @Tags follows
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param cursor query string false "Cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} models.Page[models.UserProfile]
// @Router /follows/{userId}/followers [get]
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	return s.listUsers(c, s.socialService.GetFollowers)
}

// GetFollowing handles GET /api/follows/:userId/following
// @Summary Users a user follows
// @Tags follows
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param cursor query string false "Cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} models.Page[models.UserProfile]
// @Router /follows/{userId}/following [get]
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	return s.listUsers(c, s.socialService.GetFollowing)
}

// GetFriends handles GET /api/friends/:userId/friends
// @Summary Friends of a user
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param cursor query string false "Cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} models.Page[models.UserProfile]
// @Router /friends/{userId}/friends [get]
func (s *Server) GetFriends(c *fiber.Ctx) error {
	return s.listUsers(c, s.socialService.GetFriends)
}

type userLister func(ctx context.Context, userID uint, page models.PageRequest) (models.Page[models.UserProfile], error)

func (s *Server) listUsers(c *fiber.Ctx, list userLister) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	page, err := parsePage(c)
	if err != nil {
		return nil
	}
	out, err := list(c.UserContext(), userID, page)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// SendFriendRequest handles POST /api/friends/request
// @Summary Send a friend request
// @Tags friends
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.FollowInput true "Target"
// @Success 201 {object} object{message=string,request=models.Friendship}
// @Failure 409 {object} models.ErrorResponse
// @Router /friends/request [post]
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	var in service.FollowInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	if err := validation.Struct(in); err != nil {
		return respond(c, err)
	}
	req, err := s.socialService.SendFriendRequest(c.UserContext(), currentUserID(c), in.TargetUserID)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Friend request sent", "request": req})
}

// RespondToFriendRequest handles PUT /api/friends/request/:requestId
// @Summary Accept or decline a friend request
// @Tags friends
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param requestId path int true "Request ID"
// @Param request body service.RespondInput true "accept or decline"
// @Success 200 {object} object{message=string,request=models.Friendship}
// @Failure 404 {object} models.ErrorResponse
// @Router /friends/request/{requestId} [put]
func (s *Server) RespondToFriendRequest(c *fiber.Ctx) error {
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}
	var in service.RespondInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	req, err := s.socialService.RespondToFriendRequest(c.UserContext(), requestID, currentUserID(c), in.Action)
	if err != nil {
		return respond(c, err)
	}
	message := "Friend request declined"
	if req.Status == models.FriendshipStatusAccepted {
		message = "Friend request accepted"
	}
	return c.JSON(fiber.Map{"message": message, "request": req})
}

// GetFriendRequests handles GET /api/friends/requests?type=sent|received
// @Summary Pending friend requests
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Param type query string false "sent or received (default)"
// @Success 200 {object} object{requests=[]models.PendingRequest}
// @Router /friends/requests [get]
func (s *Server) GetFriendRequests(c *fiber.Ctx) error {
	kind := c.Query("type", "received")
	if kind != "sent" && kind != "received" {
		return respond(c, models.NewFieldValidationError([]models.FieldError{
			{Field: "type", Message: "must be one of sent, received"},
		}))
	}
	requests, err := s.socialService.GetPendingRequests(c.UserContext(), currentUserID(c), kind == "sent")
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

// RemoveFriend handles DELETE /api/friends/:userId
// @Summary Remove a friend
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Param userId path int true "Friend's user ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /friends/{userId} [delete]
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	friendID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.socialService.RemoveFriend(c.UserContext(), currentUserID(c), friendID); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Friend removed successfully"})
}

// GetSocialStats handles GET /api/friends/:userId/stats
// @Summary Social counts
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} object{stats=models.SocialStats}
// @Router /friends/{userId}/stats [get]
func (s *Server) GetSocialStats(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	stats, err := s.socialService.GetSocialStats(c.UserContext(), userID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats})
}
