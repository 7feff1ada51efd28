// Package bootstrap wires the process-wide runtime: database, Redis and the
// development admin account.
package bootstrap

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sccompanion/internal/cache"
	"sccompanion/internal/config"
	"sccompanion/internal/database"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/repository"
	"sccompanion/internal/seed"
	"sccompanion/internal/service"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedPreset names a seed preset applied to an empty development
	// database. Empty disables seeding.
	SeedPreset string
}

var nonHandle = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// InitRuntime connects to the database and Redis. In development it also
// ensures the configured admin account and optionally seeds demo data.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional; a nil client runs the app without cache or realtime.
	rdb := cache.InitRedis(cfg.RedisURL)

	if !strings.EqualFold(cfg.Env, "development") {
		return db, rdb, nil
	}

	store := repository.NewStore(db)
	if cfg.SeedAdminEmail != "" {
		if _, _, err := EnsureAdmin(ctx, store, cfg.SeedAdminEmail, cfg.SeedAdminPassword, service.BcryptCost); err != nil {
			return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
		}
	}

	if opts.SeedPreset != "" {
		if err := seedIfEmpty(ctx, db, opts.SeedPreset); err != nil {
			return nil, nil, fmt.Errorf("failed to seed development data: %w", err)
		}
	}
	return db, rdb, nil
}

// EnsureAdmin makes sure a super_admin with email exists and can sign in
// with password. An existing account is promoted and reactivated; its
// password is left alone. created reports whether a new row was written.
func EnsureAdmin(ctx context.Context, store *repository.Store, email, password string, cost int) (*models.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false, fmt.Errorf("admin email is required")
	}

	existing, err := store.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		fields := map[string]any{"role": models.RoleSuperAdmin, "is_active": true}
		if err := store.Users.Update(ctx, existing.ID, fields); err != nil {
			return nil, false, err
		}
		existing.Role = models.RoleSuperAdmin
		existing.IsActive = true
		middleware.Logger.Info("development admin ensured", "user_id", existing.ID, "email", email)
		return existing, false, nil
	}

	if len(password) < 8 {
		return nil, false, fmt.Errorf("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, false, fmt.Errorf("hash admin password: %w", err)
	}

	handle, err := freeHandle(ctx, store, email)
	if err != nil {
		return nil, false, err
	}
	admin := &models.User{
		Handle:       handle,
		DisplayName:  "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleSuperAdmin,
		XP:           models.XPRegistrationBonus,
		IsActive:     true,
	}
	if err := store.Users.Create(ctx, admin); err != nil {
		return nil, false, err
	}
	middleware.Logger.Info("development admin created", "user_id", admin.ID, "handle", handle, "email", email)
	return admin, true, nil
}

// freeHandle derives a handle from the email's local part, adding a numeric
// suffix until it is unused.
func freeHandle(ctx context.Context, store *repository.Store, email string) (string, error) {
	base := nonHandle.ReplaceAllString(strings.SplitN(email, "@", 2)[0], "_")
	if len(base) < 3 {
		base = "admin"
	}
	if len(base) > 26 {
		base = base[:26]
	}
	candidate := base
	for i := 2; i < 1000; i++ {
		u, err := store.Users.GetByHandle(ctx, candidate)
		if err != nil {
			return "", err
		}
		if u == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return "", fmt.Errorf("no free handle for %s", email)
}

func seedIfEmpty(ctx context.Context, db *gorm.DB, preset string) error {
	var posts int64
	if err := db.WithContext(ctx).Model(&models.Post{}).Count(&posts).Error; err != nil {
		return err
	}
	if posts > 0 {
		return nil
	}
	opts, err := seed.LoadPreset(preset)
	if err != nil {
		return err
	}
	_, err = seed.NewSeeder(db, opts).Run(ctx)
	return err
}
