package repository

import (
	"context"

	"sccompanion/internal/models"

	"gorm.io/gorm"
)

// FollowRepository defines persistence operations for follow edges.
type FollowRepository interface {
	Create(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
	Delete(ctx context.Context, followerID, followingID uint) (bool, error)
	Exists(ctx context.Context, followerID, followingID uint) (bool, error)
	Followers(ctx context.Context, userID uint, page models.PageRequest) (models.Page[UserEdge], error)
	Following(ctx context.Context, userID uint, page models.PageRequest) (models.Page[UserEdge], error)
	CountFollowers(ctx context.Context, userID uint) (int64, error)
	CountFollowing(ctx context.Context, userID uint) (int64, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository returns a new FollowRepository implementation.
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

// Create inserts the edge. A concurrent duplicate that slips past the
// caller's pre-check surfaces as CONFLICT.
func (r *followRepository) Create(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	follow := &models.Follow{FollowerID: followerID, FollowingID: followingID}
	if err := r.db.WithContext(ctx).Create(follow).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.NewConflictError("Already following this user")
		}
		return nil, models.NewInternalError(err)
	}
	return follow, nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, followingID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followingID uint) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// Followers lists active, unbanned users following userID, most recent first.
func (r *followRepository) Followers(ctx context.Context, userID uint, page models.PageRequest) (models.Page[UserEdge], error) {
	return r.edges(ctx, "follows.follower_id", "follows.following_id", userID, page)
}

// Following lists active, unbanned users that userID follows.
func (r *followRepository) Following(ctx context.Context, userID uint, page models.PageRequest) (models.Page[UserEdge], error) {
	return r.edges(ctx, "follows.following_id", "follows.follower_id", userID, page)
}

func (r *followRepository) edges(ctx context.Context, joinCol, subjectCol string, userID uint, page models.PageRequest) (models.Page[UserEdge], error) {
	q := activeUsers(r.db.WithContext(ctx).Table("follows").
		Select("users.*, follows.id AS edge_id, follows.created_at AS edge_created_at").
		Joins("JOIN users ON users.id = "+joinCol).
		Where(subjectCol+" = ?", userID))

	var rows []UserEdge
	if err := keyset(q, "follows.created_at", "follows.id", page).Scan(&rows).Error; err != nil {
		return models.Page[UserEdge]{}, models.NewInternalError(err)
	}
	return models.NewPage(rows, page.Limit, UserEdge.CursorKey), nil
}

func (r *followRepository) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, "following_id", userID)
}

func (r *followRepository) CountFollowing(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, "follower_id", userID)
}

func (r *followRepository) count(ctx context.Context, column string, userID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where(column+" = ?", userID).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
