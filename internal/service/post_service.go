package service

import (
	"context"
	"strings"

	"sccompanion/internal/events"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/notifications"
	"sccompanion/internal/observability"
	"sccompanion/internal/repository"
	"sccompanion/internal/validation"
)

// CreatePostInput is the body of POST /api/posts.
type CreatePostInput struct {
	Content   string   `json:"content" validate:"required,min=1,max=2000"`
	MediaURLs []string `json:"mediaUrls" validate:"omitempty,max=4,dive,url"`
}

// UpdatePostInput is the body of PUT /api/posts/:postId. Nil fields are
// left unchanged.
type UpdatePostInput struct {
	Content   *string  `json:"content" validate:"omitempty,min=1,max=2000"`
	MediaURLs []string `json:"mediaUrls" validate:"omitempty,max=4,dive,url"`
}

// ModerateInput is the body of POST /api/posts/:postId/moderate.
type ModerateInput struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

type PostService struct {
	base
}

// NewPostService returns a new PostService.
func NewPostService(store *repository.Store, deps Dependencies) *PostService {
	return &PostService{base: newBase(store, deps)}
}

// Create publishes a post by userID and awards the post XP.
func (s *PostService) Create(ctx context.Context, userID uint, in CreatePostInput) (*models.Post, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := actor(ctx, s.store.Users, userID, s.now(), "Account is not active"); err != nil {
		return nil, err
	}

	var post *models.Post
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		p := &models.Post{UserID: userID, Content: in.Content, MediaURLs: in.MediaURLs}
		if err := tx.Posts.Create(ctx, p); err != nil {
			return err
		}
		if _, err := addXP(ctx, tx, userID, models.XPPostCreated, "post_created"); err != nil {
			return err
		}
		var err error
		post, err = tx.Posts.GetByID(ctx, p.ID)
		return err
	})
	observability.RecordSocialAction("post_create", err)
	if err != nil {
		return nil, err
	}
	xpChanged(ctx, userID)
	s.publish(ctx, events.Event{Type: events.PostCreated, ActorID: userID, SubjectID: post.ID})
	return post, nil
}

// Get returns a visible post. Moderated posts are not found.
func (s *PostService) Get(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	post, err := s.visiblePost(ctx, postID)
	if err != nil {
		return nil, err
	}
	posts := []models.Post{*post}
	if err := s.markLiked(ctx, viewerID, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (s *PostService) visiblePost(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.IsModerated {
		return nil, models.NewNotFoundError("Post", nil)
	}
	return post, nil
}

// Update edits the caller's own post. Moderated posts are frozen.
func (s *PostService) Update(ctx context.Context, postID, userID uint, in UpdatePostInput) (*models.Post, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}
	if post.IsModerated {
		return nil, models.NewForbiddenError("Moderated posts cannot be edited")
	}

	if in.Content == nil && in.MediaURLs == nil {
		return post, nil
	}
	if in.Content != nil {
		post.Content = strings.TrimSpace(*in.Content)
	}
	if in.MediaURLs != nil {
		post.MediaURLs = in.MediaURLs
	}
	post.User = nil
	if err := s.store.Posts.UpdateContent(ctx, post); err != nil {
		return nil, err
	}
	return s.store.Posts.GetByID(ctx, postID)
}

// Delete removes a post. Owners may delete their own; moderators and above
// may delete any.
func (s *PostService) Delete(ctx context.Context, postID, userID uint) error {
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if post.UserID != userID && !user.Role.AtLeast(models.RoleModerator) {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	if err := s.store.Posts.Delete(ctx, postID); err != nil {
		return err
	}
	if post.UserID != userID {
		middleware.Logger.WarnContext(ctx, "post deleted by staff", "post_id", postID, "actor_id", userID, "author_id", post.UserID)
	}
	s.publish(ctx, events.Event{Type: events.PostDeleted, ActorID: userID, SubjectID: postID})
	return nil
}

// Feed returns one page of the global feed for viewerID (0 when anonymous).
func (s *PostService) Feed(ctx context.Context, viewerID uint, page models.PageRequest) (models.Page[models.Post], error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "Feed")
	out, err := s.store.Posts.Feed(ctx, page)
	if err == nil {
		err = s.markLiked(ctx, viewerID, out.Data)
	}
	observability.EndSpan(span, err)
	return out, err
}

// ListByUser returns one page of userID's posts.
func (s *PostService) ListByUser(ctx context.Context, userID, viewerID uint, page models.PageRequest) (models.Page[models.Post], error) {
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		return models.Page[models.Post]{}, err
	}
	out, err := s.store.Posts.ListByUser(ctx, userID, page)
	if err != nil {
		return out, err
	}
	return out, s.markLiked(ctx, viewerID, out.Data)
}

// markLiked sets IsLiked on posts with one query.
func (s *PostService) markLiked(ctx context.Context, viewerID uint, posts []models.Post) error {
	if viewerID == 0 || len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	liked, err := s.store.Posts.LikedPostIDs(ctx, viewerID, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].IsLiked = liked[posts[i].ID]
	}
	return nil
}

// Like records userID liking postID. The author gets like XP unless they
// liked their own post.
func (s *PostService) Like(ctx context.Context, userID, postID uint) (*models.LikeResult, error) {
	if _, err := actor(ctx, s.store.Users, userID, s.now(), "Account is not active"); err != nil {
		return nil, err
	}
	post, err := s.visiblePost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var count int64
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if count, err = tx.Posts.Like(ctx, userID, postID); err != nil {
			return err
		}
		if post.UserID != userID {
			_, err = addXP(ctx, tx, post.UserID, models.XPLikeReceived, "like_received")
		}
		return err
	})
	observability.RecordSocialAction("like", err)
	if err != nil {
		return nil, err
	}

	if post.UserID != userID {
		xpChanged(ctx, post.UserID)
		s.notify(ctx, post.UserID, notifications.TypePostLiked, map[string]any{
			"postId": postID, "userId": userID, "likesCount": count,
		})
	}
	s.publish(ctx, events.Event{Type: events.PostLiked, ActorID: userID, SubjectID: postID})
	return &models.LikeResult{Success: true, LikesCount: count}, nil
}

// Unlike removes userID's like from postID.
func (s *PostService) Unlike(ctx context.Context, userID, postID uint) (*models.LikeResult, error) {
	count, err := s.store.Posts.Unlike(ctx, userID, postID)
	observability.RecordSocialAction("unlike", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.PostUnliked, ActorID: userID, SubjectID: postID})
	return &models.LikeResult{Success: true, LikesCount: count}, nil
}

// Moderate hides a post. The moderator must outrank the post's author.
func (s *PostService) Moderate(ctx context.Context, moderatorID, postID uint, in ModerateInput) (*models.Post, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	moderator, err := s.store.Users.GetByID(ctx, moderatorID)
	if err != nil && !models.IsCode(err, models.CodeNotFound) {
		return nil, err
	}
	post, perr := s.store.Posts.GetByID(ctx, postID)
	if perr != nil && !models.IsCode(perr, models.CodeNotFound) {
		return nil, perr
	}
	if moderator == nil || post == nil {
		return nil, models.NewNotFoundMessage("User or post not found")
	}

	author, err := s.store.Users.GetByID(ctx, post.UserID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewNotFoundMessage("Post author not found")
		}
		return nil, err
	}
	if !models.CanModerateUser(moderator.Role, author.Role) {
		return nil, models.NewForbiddenError("Insufficient permissions to moderate this post")
	}
	if post.IsModerated {
		return nil, models.NewValidationError("Post is already moderated")
	}

	if err := s.store.Posts.Moderate(ctx, postID, moderatorID, in.Reason, s.now()); err != nil {
		return nil, err
	}
	middleware.Logger.WarnContext(ctx, "post moderated",
		"post_id", postID, "moderator_id", moderatorID, "author_id", author.ID, "reason", in.Reason)

	s.notify(ctx, author.ID, notifications.TypePostModerated, map[string]any{"postId": postID, "reason": in.Reason})
	s.publish(ctx, events.Event{
		Type: events.PostModerated, ActorID: moderatorID, SubjectID: postID,
		Data: map[string]any{"reason": in.Reason},
	})
	return s.store.Posts.GetByID(ctx, postID)
}
