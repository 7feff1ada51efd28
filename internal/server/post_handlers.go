package server

import (
	"sccompanion/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/posts/feed
// @Summary Global feed
// @Description Newest posts first, keyset paginated. isLiked is set for a signed-in caller.
// @Tags posts
// @Produce json
// @Param cursor query string false "Opaque cursor from a previous page"
// @Param limit query int false "Page size (1-50, default 20)"
// @Success 200 {object} models.Page[models.Post]
// @Router /posts/feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return nil
	}
	out, err := s.postService.Feed(c.UserContext(), currentUserID(c), page)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// GetUserPosts handles GET /api/posts/user/:userId
// @Summary Posts by a user
// @Tags posts
// @Produce json
// @Param userId path int true "User ID"
// @Param cursor query string false "Cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} models.Page[models.Post]
// @Router /posts/user/{userId} [get]
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	page, err := parsePage(c)
	if err != nil {
		return nil
	}
	out, err := s.postService.ListByUser(c.UserContext(), userID, currentUserID(c), page)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(out)
}

// GetPost handles GET /api/posts/:postId
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param postId path int true "Post ID"
// @Success 200 {object} object{post=models.Post}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	post, err := s.postService.Get(c.UserContext(), postID, currentUserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"post": post})
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreatePostInput true "Post"
// @Success 201 {object} object{message=string,post=models.Post}
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var in service.CreatePostInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	post, err := s.postService.Create(c.UserContext(), currentUserID(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Post created successfully", "post": post})
}

// UpdatePost handles PUT /api/posts/:postId
// @Summary Edit own post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Param request body service.UpdatePostInput true "Fields"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 403 {object} models.ErrorResponse
// @Router /posts/{postId} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	var in service.UpdatePostInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	post, err := s.postService.Update(c.UserContext(), postID, currentUserID(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post updated successfully", "post": post})
}

// DeletePost handles DELETE /api/posts/:postId
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string}
// @Router /posts/{postId} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	if err := s.postService.Delete(c.UserContext(), postID, currentUserID(c)); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post deleted successfully"})
}

// LikePost handles POST /api/posts/:postId/like and POST /api/likes/post/:postId
// @Summary Like a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string,success=bool,likesCount=int}
// @Failure 409 {object} models.ErrorResponse
// @Router /posts/{postId}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	res, err := s.postService.Like(c.UserContext(), currentUserID(c), postID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post liked", "success": res.Success, "likesCount": res.LikesCount})
}

// UnlikePost handles DELETE /api/posts/:postId/like and DELETE /api/likes/post/:postId
// @Summary Unlike a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string,success=bool,likesCount=int}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId}/like [delete]
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	res, err := s.postService.Unlike(c.UserContext(), currentUserID(c), postID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post unliked", "success": res.Success, "likesCount": res.LikesCount})
}

// ModeratePost handles POST /api/posts/:postId/moderate
// @Summary Moderate a post
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Param request body service.ModerateInput true "Reason"
// @Success 200 {object} object{message=string,post=models.Post}
// @Router /posts/{postId}/moderate [post]
func (s *Server) ModeratePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	var in service.ModerateInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	post, err := s.postService.Moderate(c.UserContext(), currentUserID(c), postID, in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post moderated successfully", "post": post})
}
