package repository

import (
	"context"
	"strings"
	"time"

	"sccompanion/internal/models"
	"sccompanion/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByHandle(ctx context.Context, handle string) (*models.User, error)
	GetByRSIHandle(ctx context.Context, rsiHandle string) (*models.User, error)
	Update(ctx context.Context, id uint, fields map[string]any) error
	AddXP(ctx context.Context, id uint, amount int64) (int64, error)
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	ClearExpiredBans(ctx context.Context, now time.Time) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// GetByID always reads the store; callers that need a cached view use the
// cache package.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return nil, models.NewNotFoundError("User", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// findOne returns nil, nil when no row matches.
func (r *userRepository) findOne(ctx context.Context, column, value string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(column+" = ?", value).Limit(1).Find(&user).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	return r.findOne(ctx, "handle", handle)
}

func (r *userRepository) GetByRSIHandle(ctx context.Context, rsiHandle string) (*models.User, error) {
	return r.findOne(ctx, "rsi_handle", rsiHandle)
}

func (r *userRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", nil)
	}
	return nil
}

// AddXP increments xp in place and returns the new total.
func (r *userRepository) AddXP(ctx context.Context, id uint, amount int64) (int64, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("xp", gorm.Expr("xp + ?", amount))
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, models.NewNotFoundError("User", nil)
	}

	var xp int64
	if err := db.Model(&models.User{}).Where("id = ?", id).Pluck("xp", &xp).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return xp, nil
}

// Leaderboard lists active, unbanned users by XP, ties by earliest id.
func (r *userRepository) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	defer observability.TrackQuery("leaderboard", "users")()

	var users []models.User
	if err := activeUsers(r.db.WithContext(ctx).Model(&models.User{})).
		Order("xp DESC").Order("id ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// Search matches handle, display name and RSI handle case-insensitively.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var users []models.User
	if err := activeUsers(r.db.WithContext(ctx).Model(&models.User{})).
		Where(`(LOWER(users.handle) LIKE ? ESCAPE '\' OR LOWER(users.display_name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(users.rsi_handle, '')) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern).
		Order("xp DESC").Order("id ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// ClearExpiredBans lifts every timed ban whose end has passed.
func (r *userRepository) ClearExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("is_banned = ? AND banned_until IS NOT NULL AND banned_until <= ?", true, now).
		Updates(map[string]any{
			"is_banned":     false,
			"banned_at":     nil,
			"banned_reason": nil,
			"banned_by":     nil,
			"banned_until":  nil,
		})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
