package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sccompanion/internal/models"
	"sccompanion/internal/testutil"
	"sccompanion/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func smallOptions() Options {
	return Options{
		Users:           12,
		PostsPerUser:    3,
		FollowsPerUser:  4,
		FriendsPerUser:  2,
		MaxLikesPerPost: 5,
		MaxDays:         10,
		RandomSeed:      42,
		BcryptCost:      bcrypt.MinCost,
	}
}

func TestSeeder_Run(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	sum, err := NewSeeder(db, smallOptions()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Users)
	assert.Equal(t, 12*4, sum.Follows)
	assert.Positive(t, sum.Friendships)

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 12)
	for _, u := range users {
		assert.NoError(t, validation.ValidateHandle(u.Handle), u.Handle)
		assert.True(t, u.IsActive)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(DefaultPassword)))
	}

	var postCount, likeCount int64
	require.NoError(t, db.Model(&models.Post{}).Count(&postCount).Error)
	require.NoError(t, db.Model(&models.Like{}).Count(&likeCount).Error)
	assert.EqualValues(t, sum.Posts, postCount)
	assert.EqualValues(t, sum.Likes, likeCount)

	t.Run("Like counters match rows", func(t *testing.T) {
		var posts []models.Post
		require.NoError(t, db.Find(&posts).Error)
		for _, p := range posts {
			var n int64
			require.NoError(t, db.Model(&models.Like{}).Where("post_id = ?", p.ID).Count(&n).Error)
			assert.Equal(t, n, p.LikesCount, "post %d", p.ID)

			var self int64
			require.NoError(t, db.Model(&models.Like{}).Where("post_id = ? AND user_id = ?", p.ID, p.UserID).Count(&self).Error)
			assert.Zero(t, self, "authors do not like their own posts")
		}
	})

	t.Run("XP matches activity", func(t *testing.T) {
		for _, u := range users {
			var posts, liked, followers int64
			require.NoError(t, db.Model(&models.Post{}).Where("user_id = ?", u.ID).Count(&posts).Error)
			require.NoError(t, db.Model(&models.Like{}).
				Joins("JOIN posts ON posts.id = likes.post_id").
				Where("posts.user_id = ?", u.ID).Count(&liked).Error)
			require.NoError(t, db.Model(&models.Follow{}).Where("following_id = ?", u.ID).Count(&followers).Error)

			want := models.XPRegistrationBonus + posts*models.XPPostCreated +
				liked*models.XPLikeReceived + followers*models.XPFollowGained
			if u.RSIHandle != nil {
				want += models.XPRSILinkBonus
			}
			assert.Equal(t, want, u.XP, u.Handle)
		}
	})

	t.Run("One friendship row per pair", func(t *testing.T) {
		var rows []models.Friendship
		require.NoError(t, db.Find(&rows).Error)
		seen := map[[2]uint]bool{}
		for _, f := range rows {
			assert.NotEqual(t, f.RequesterID, f.AddresseeID)
			key := [2]uint{min(f.RequesterID, f.AddresseeID), max(f.RequesterID, f.AddresseeID)}
			assert.False(t, seen[key], "duplicate pair %v", key)
			seen[key] = true
		}
	})
}

func TestSeeder_RunTwiceAndClean(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	admin := testutil.MakeUser(t, db, func(u *models.User) { u.XP = 9000 })

	_, err := NewSeeder(db, smallOptions()).Run(ctx)
	require.NoError(t, err)
	opts := smallOptions()
	opts.RandomSeed = 7
	_, err = NewSeeder(db, opts).Run(ctx)
	require.NoError(t, err, "handles stay unique across runs")

	var stored models.User
	require.NoError(t, db.First(&stored, admin.ID).Error)
	assert.EqualValues(t, 9000, stored.XP, "existing accounts keep their XP")

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 25, n)

	opts.Clean = true
	_, err = NewSeeder(db, opts).Run(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 12, n)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"Defaults", DefaultOptions(), true},
		{"No users", Options{}, false},
		{"Too many follows", Options{Users: 3, FollowsPerUser: 3}, false},
		{"Too many friends", Options{Users: 3, FriendsPerUser: 5}, false},
		{"Negative", Options{Users: 3, PostsPerUser: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadPreset(t *testing.T) {
	assert.Equal(t, []string{"mega", "populated", "small", "tiny"}, PresetNames())

	opts, err := LoadPreset("tiny")
	require.NoError(t, err)
	assert.Equal(t, 10, opts.Users)
	assert.Equal(t, 14, opts.MaxDays)

	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("users: 7\nfollows_per_user: 2\nrandom_seed: 99\n"), 0o600))
	opts, err = LoadPreset(path)
	require.NoError(t, err)
	assert.Equal(t, 7, opts.Users)
	assert.Equal(t, 2, opts.FollowsPerUser)
	assert.EqualValues(t, 99, opts.RandomSeed)
	assert.Equal(t, DefaultOptions().PostsPerUser, opts.PostsPerUser)

	_, err = LoadPreset("does-not-exist")
	assert.ErrorContains(t, err, "unknown preset")

	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("users: 2\nfollows_per_user: 5\n"), 0o600))
	_, err = LoadPreset(bad)
	assert.Error(t, err)
}

func TestFactory_Deterministic(t *testing.T) {
	a := NewFactory(1, 30)
	b := NewFactory(1, 30)
	assert.Equal(t, a.Handle(1), b.Handle(1))

	user := a.BuildUser(5, "hash")
	assert.NoError(t, validation.ValidateHandle(user.Handle))
	assert.Contains(t, user.Handle, "_5")

	post := a.BuildPost(&models.User{ID: 3, CreatedAt: user.CreatedAt})
	assert.EqualValues(t, 3, post.UserID)
	assert.NotEmpty(t, post.Content)
	assert.False(t, post.CreatedAt.Before(user.CreatedAt))
}
