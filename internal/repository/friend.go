package repository

import (
	"context"

	"sccompanion/internal/models"

	"gorm.io/gorm"
)

// FriendRepository defines the interface for friend data operations
type FriendRepository interface {
	Create(ctx context.Context, friendship *models.Friendship) error
	GetByID(ctx context.Context, id uint) (*models.Friendship, error)
	GetBetween(ctx context.Context, userID1, userID2 uint) (*models.Friendship, error)
	Reopen(ctx context.Context, id, requesterID, addresseeID uint) (bool, error)
	Respond(ctx context.Context, id, addresseeID uint, status models.FriendshipStatus) (bool, error)
	RemoveAccepted(ctx context.Context, userID1, userID2 uint) (bool, error)
	AreFriends(ctx context.Context, userID1, userID2 uint) (bool, error)
	Friends(ctx context.Context, userID uint, page models.PageRequest) (models.Page[UserEdge], error)
	Pending(ctx context.Context, userID uint, sent bool) ([]models.Friendship, error)
	CountFriends(ctx context.Context, userID uint) (int64, error)
}

// friendRepository implements FriendRepository
type friendRepository struct {
	db *gorm.DB
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db}
}

func eitherDirection(q *gorm.DB, userID1, userID2 uint) *gorm.DB {
	return q.Where("((requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?))",
		userID1, userID2, userID2, userID1)
}

func (r *friendRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	if err := r.db.WithContext(ctx).Create(friendship).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Friend request already pending")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *friendRepository) GetByID(ctx context.Context, id uint) (*models.Friendship, error) {
	var friendship models.Friendship
	if err := r.db.WithContext(ctx).Preload("Requester").Preload("Addressee").First(&friendship, id).Error; err != nil {
		if isNotFound(err) {
			return nil, models.NewNotFoundError("Friendship", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &friendship, nil
}

// GetBetween returns the row joining the two users in either direction, or
// nil when none exists.
func (r *friendRepository) GetBetween(ctx context.Context, userID1, userID2 uint) (*models.Friendship, error) {
	var rows []models.Friendship
	if err := eitherDirection(r.db.WithContext(ctx), userID1, userID2).
		Order("id ASC").Limit(1).
		Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Reopen turns a declined row into a new pending request from requesterID.
// It reports false when the row is no longer declined.
func (r *friendRepository) Reopen(ctx context.Context, id, requesterID, addresseeID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("id = ? AND status = ?", id, models.FriendshipStatusDeclined).
		Updates(map[string]any{
			"requester_id": requesterID,
			"addressee_id": addresseeID,
			"status":       models.FriendshipStatusPending,
		})
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return false, models.NewConflictError("Friend request already pending")
		}
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Respond moves a pending request addressed to addresseeID to status. Only
// one concurrent responder can win; the rest get false.
func (r *friendRepository) Respond(ctx context.Context, id, addresseeID uint, status models.FriendshipStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("id = ? AND addressee_id = ? AND status = ?", id, addresseeID, models.FriendshipStatusPending).
		Update("status", status)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *friendRepository) RemoveAccepted(ctx context.Context, userID1, userID2 uint) (bool, error) {
	res := eitherDirection(r.db.WithContext(ctx), userID1, userID2).
		Where("status = ?", models.FriendshipStatusAccepted).
		Delete(&models.Friendship{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *friendRepository) AreFriends(ctx context.Context, userID1, userID2 uint) (bool, error) {
	var n int64
	if err := eitherDirection(r.db.WithContext(ctx).Model(&models.Friendship{}), userID1, userID2).
		Where("status = ?", models.FriendshipStatusAccepted).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// Friends lists the other side of every accepted friendship of userID,
// skipping inactive and banned users, most recent first.
func (r *friendRepository) Friends(ctx context.Context, userID uint, page models.PageRequest) (models.Page[UserEdge], error) {
	q := activeUsers(r.db.WithContext(ctx).Table("friendships").
		Select("users.*, friendships.id AS edge_id, friendships.created_at AS edge_created_at").
		Joins("JOIN users ON users.id = CASE WHEN friendships.requester_id = ? THEN friendships.addressee_id ELSE friendships.requester_id END", userID).
		Where("(friendships.requester_id = ? OR friendships.addressee_id = ?) AND friendships.status = ?",
			userID, userID, models.FriendshipStatusAccepted))

	var rows []UserEdge
	if err := keyset(q, "friendships.created_at", "friendships.id", page).Scan(&rows).Error; err != nil {
		return models.Page[UserEdge]{}, models.NewInternalError(err)
	}
	return models.NewPage(rows, page.Limit, UserEdge.CursorKey), nil
}

// Pending lists pending requests sent by (sent) or addressed to userID,
// newest first, with both parties loaded. Requests whose other party is
// deactivated or banned are left out.
func (r *friendRepository) Pending(ctx context.Context, userID uint, sent bool) ([]models.Friendship, error) {
	column, other := "friendships.addressee_id", "friendships.requester_id"
	if sent {
		column, other = other, column
	}

	q := activeUsers(r.db.WithContext(ctx).Model(&models.Friendship{}).
		Select("friendships.*").
		Joins("JOIN users ON users.id = "+other).
		Where(column+" = ? AND friendships.status = ?", userID, models.FriendshipStatusPending))

	var friendships []models.Friendship
	if err := q.Preload("Requester").
		Preload("Addressee").
		Order("friendships.created_at DESC").Order("friendships.id DESC").
		Find(&friendships).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return friendships, nil
}

func (r *friendRepository) CountFriends(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("(requester_id = ? OR addressee_id = ?) AND status = ?", userID, userID, models.FriendshipStatusAccepted).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
