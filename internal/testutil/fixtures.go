// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/database"
	"sccompanion/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var seq atomic.Uint64

// NewDB opens a private in-memory SQLite database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewRedis starts a miniredis server, installs a client for it as the cache
// client and restores the previous client on cleanup.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	prev := cache.GetClient()
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(prev)
		_ = rdb.Close()
	})
	return mr, rdb
}

// MakeUser inserts an active user with a unique handle and email. mutate
// runs before the insert.
func MakeUser(t testing.TB, db *gorm.DB, mutate ...func(*models.User)) *models.User {
	t.Helper()
	n := seq.Add(1)
	user := &models.User{
		Handle:       fmt.Sprintf("pilot_%d", n),
		DisplayName:  gofakeit.Name(),
		Email:        fmt.Sprintf("pilot%d@example.com", n),
		PasswordHash: "not-a-real-hash",
		Role:         models.RoleUser,
		IsActive:     true,
	}
	for _, fn := range mutate {
		fn(user)
	}
	deactivate := !user.IsActive
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	// is_active has a database default, so false has to be written explicitly.
	if deactivate {
		if err := db.Model(user).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate user: %v", err)
		}
		user.IsActive = false
	}
	return user
}

// MakePost inserts a post by userID created at the given time.
func MakePost(t testing.TB, db *gorm.DB, userID uint, createdAt time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		UserID:    userID,
		Content:   gofakeit.Sentence(8),
		CreatedAt: createdAt.UTC(),
	}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

// Follow inserts a follow edge.
func Follow(t testing.TB, db *gorm.DB, followerID, followingID uint) *models.Follow {
	t.Helper()
	f := &models.Follow{FollowerID: followerID, FollowingID: followingID}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("create follow: %v", err)
	}
	return f
}

// Friendship inserts a friendship row with the given status.
func Friendship(t testing.TB, db *gorm.DB, requesterID, addresseeID uint, status models.FriendshipStatus) *models.Friendship {
	t.Helper()
	f := &models.Friendship{RequesterID: requesterID, AddresseeID: addresseeID, Status: status}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("create friendship: %v", err)
	}
	return f
}
