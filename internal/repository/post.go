package repository

import (
	"context"
	"time"

	"sccompanion/internal/models"
	"sccompanion/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines persistence operations for posts and likes.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	UpdateContent(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	Feed(ctx context.Context, page models.PageRequest) (models.Page[models.Post], error)
	ListByUser(ctx context.Context, userID uint, page models.PageRequest) (models.Page[models.Post], error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
	Like(ctx context.Context, userID, postID uint) (int64, error)
	Unlike(ctx context.Context, userID, postID uint) (int64, error)
	LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) (map[uint]bool, error)
	Moderate(ctx context.Context, postID, moderatorID uint, reason string, at time.Time) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func postKey(p models.Post) models.Cursor { return p.CursorKey() }

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
		if isNotFound(err) {
			return nil, models.NewNotFoundError("Post", nil)
		}
		return nil, models.NewInternalError(err)
	}
	post.AttachAuthor()
	return &post, nil
}

// UpdateContent writes the post's content and media.
func (r *postRepository) UpdateContent(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).Model(post).
		Select("content", "media_urls", "updated_at").
		Updates(post)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", nil)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", nil)
	}
	return nil
}

// Feed lists unmoderated posts by active, unbanned authors, newest first.
func (r *postRepository) Feed(ctx context.Context, page models.PageRequest) (models.Page[models.Post], error) {
	ctx, span := observability.StartRepositorySpan(ctx, "Feed", "posts")
	defer span.End()

	q := activeUsers(r.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN users ON users.id = posts.user_id").
		Where("posts.is_moderated = ?", false))
	return r.list(keyset(q, "posts.created_at", "posts.id", page), page)
}

// ListByUser lists a user's unmoderated posts, newest first.
func (r *postRepository) ListByUser(ctx context.Context, userID uint, page models.PageRequest) (models.Page[models.Post], error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("posts.user_id = ? AND posts.is_moderated = ?", userID, false)
	return r.list(keyset(q, "posts.created_at", "posts.id", page), page)
}

func (r *postRepository) list(q *gorm.DB, page models.PageRequest) (models.Page[models.Post], error) {
	var posts []models.Post
	if err := q.Preload("User").Find(&posts).Error; err != nil {
		return models.Page[models.Post]{}, models.NewInternalError(err)
	}
	for i := range posts {
		posts[i].AttachAuthor()
	}
	return models.NewPage(posts, page.Limit, postKey), nil
}

func (r *postRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("user_id = ? AND is_moderated = ?", userID, false).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// Like inserts the like row and bumps likes_count in one transaction and
// returns the new count.
func (r *postRepository) Like(ctx context.Context, userID, postID uint) (int64, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "Like", "likes")
	defer span.End()

	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Like{UserID: userID, PostID: postID}).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.NewConflictError("Post already liked")
			}
			return models.NewInternalError(err)
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error; err != nil {
			return models.NewInternalError(err)
		}
		return readLikesCount(tx, postID, &count)
	})
	return count, err
}

// Unlike removes the like row and decrements likes_count in one
// transaction. No like row means nothing changes.
func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundMessage("Post not liked or not found")
		}
		if err := tx.Model(&models.Post{}).Where("id = ? AND likes_count > 0", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count - 1")).Error; err != nil {
			return models.NewInternalError(err)
		}
		return readLikesCount(tx, postID, &count)
	})
	return count, err
}

func readLikesCount(tx *gorm.DB, postID uint, out *int64) error {
	if err := tx.Model(&models.Post{}).Where("id = ?", postID).Pluck("likes_count", out).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// LikedPostIDs reports which of postIDs userID has liked, in one query.
func (r *postRepository) LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(postIDs))
	if userID == 0 || len(postIDs) == 0 {
		return out, nil
	}

	var liked []uint
	if err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &liked).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, id := range liked {
		out[id] = true
	}
	return out, nil
}

// Moderate hides a post. Only an unmoderated post changes; a second call
// reports that the post is already moderated.
func (r *postRepository) Moderate(ctx context.Context, postID, moderatorID uint, reason string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND is_moderated = ?", postID, false).
		Updates(map[string]any{
			"is_moderated":      true,
			"moderated_at":      at,
			"moderated_by":      moderatorID,
			"moderation_reason": reason,
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewValidationError("Post is already moderated")
	}
	return nil
}
