package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sccompanion/internal/middleware"
	"sccompanion/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every generated account.
const DefaultPassword = "password123"

const batchSize = 200

// Options size the generated data set. Yaml tags match preset files.
type Options struct {
	Users           int   `yaml:"users"`
	PostsPerUser    int   `yaml:"posts_per_user"`
	FollowsPerUser  int   `yaml:"follows_per_user"`
	FriendsPerUser  int   `yaml:"friends_per_user"`
	MaxLikesPerPost int   `yaml:"max_likes_per_post"`
	MaxDays         int   `yaml:"max_days"`
	RandomSeed      int64 `yaml:"random_seed"`

	// BcryptCost defaults to 12. Tests lower it.
	BcryptCost int  `yaml:"-"`
	Clean      bool `yaml:"-"`
}

// Validate rejects sizes that cannot be satisfied.
func (o Options) Validate() error {
	if o.Users < 1 {
		return errors.New("users must be at least 1")
	}
	if o.PostsPerUser < 0 || o.FollowsPerUser < 0 || o.FriendsPerUser < 0 || o.MaxLikesPerPost < 0 {
		return errors.New("per-user counts must not be negative")
	}
	if o.FollowsPerUser >= o.Users && o.FollowsPerUser > 0 {
		return fmt.Errorf("follows_per_user (%d) must be below users (%d)", o.FollowsPerUser, o.Users)
	}
	if o.FriendsPerUser >= o.Users && o.FriendsPerUser > 0 {
		return fmt.Errorf("friends_per_user (%d) must be below users (%d)", o.FriendsPerUser, o.Users)
	}
	return nil
}

// Summary counts what a run inserted.
type Summary struct {
	Users       int
	Posts       int
	Likes       int
	Follows     int
	Friendships int
}

// Seeder writes a generated data set.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder returns a Seeder for db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.RandomSeed == 0 {
		opts.RandomSeed = time.Now().UnixNano()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	return &Seeder{db: db, opts: opts, factory: NewFactory(opts.RandomSeed, opts.MaxDays)}
}

// Run inserts the whole data set in one transaction, then brings like
// counters and XP in line with the rows that were written.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := s.opts.Validate(); err != nil {
		return sum, err
	}
	if s.opts.Clean {
		if err := s.ClearAll(ctx); err != nil {
			return sum, fmt.Errorf("clear data: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), s.opts.BcryptCost)
	if err != nil {
		return sum, fmt.Errorf("hash password: %w", err)
	}

	start := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := s.createUsers(tx, string(hash))
		if err != nil {
			return fmt.Errorf("create users: %w", err)
		}
		sum.Users = len(users)

		posts, err := s.createPosts(tx, users)
		if err != nil {
			return fmt.Errorf("create posts: %w", err)
		}
		sum.Posts = len(posts)

		if sum.Follows, err = s.createFollows(tx, users); err != nil {
			return fmt.Errorf("create follows: %w", err)
		}
		if sum.Friendships, err = s.createFriendships(tx, users); err != nil {
			return fmt.Errorf("create friendships: %w", err)
		}
		if sum.Likes, err = s.createLikes(tx, users, posts); err != nil {
			return fmt.Errorf("create likes: %w", err)
		}
		return Reconcile(tx, users[0].ID)
	})
	if err != nil {
		return Summary{}, err
	}

	middleware.Logger.Info("seed complete",
		"users", sum.Users, "posts", sum.Posts, "likes", sum.Likes,
		"follows", sum.Follows, "friendships", sum.Friendships,
		"duration", time.Since(start).String())
	return sum, nil
}

func (s *Seeder) createUsers(tx *gorm.DB, hash string) ([]*models.User, error) {
	var existing int64
	if err := tx.Model(&models.User{}).Count(&existing).Error; err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		users = append(users, s.factory.BuildUser(int(existing)+i+1, hash))
	}
	if err := tx.CreateInBatches(users, batchSize).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Seeder) createPosts(tx *gorm.DB, users []*models.User) ([]*models.Post, error) {
	faker := s.factory.Faker()
	posts := make([]*models.Post, 0, len(users)*s.opts.PostsPerUser)
	for _, u := range users {
		// Vary output per user around the configured mean.
		n := s.opts.PostsPerUser
		if n > 0 {
			n = faker.Number(0, 2*n)
		}
		for j := 0; j < n; j++ {
			posts = append(posts, s.factory.BuildPost(u))
		}
	}
	if len(posts) == 0 {
		return posts, nil
	}
	if err := tx.CreateInBatches(posts, batchSize).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Seeder) createFollows(tx *gorm.DB, users []*models.User) (int, error) {
	var follows []models.Follow
	for i, u := range users {
		for _, j := range s.factory.distinctPicks(len(users), s.opts.FollowsPerUser, i) {
			follows = append(follows, models.Follow{FollowerID: u.ID, FollowingID: users[j].ID})
		}
	}
	if len(follows) == 0 {
		return 0, nil
	}
	return len(follows), tx.CreateInBatches(follows, batchSize).Error
}

// createFriendships writes at most one row per unordered pair.
func (s *Seeder) createFriendships(tx *gorm.DB, users []*models.User) (int, error) {
	faker := s.factory.Faker()
	seen := make(map[[2]uint]struct{})
	var rows []models.Friendship
	for i, u := range users {
		for _, j := range s.factory.distinctPicks(len(users), s.opts.FriendsPerUser, i) {
			other := users[j]
			key := [2]uint{min(u.ID, other.ID), max(u.ID, other.ID)}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			status := models.FriendshipStatusAccepted
			switch roll := faker.Number(1, 10); {
			case roll <= 3:
				status = models.FriendshipStatusPending
			case roll == 4:
				status = models.FriendshipStatusDeclined
			}
			rows = append(rows, models.Friendship{RequesterID: u.ID, AddresseeID: other.ID, Status: status})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows), tx.CreateInBatches(rows, batchSize).Error
}

func (s *Seeder) createLikes(tx *gorm.DB, users []*models.User, posts []*models.Post) (int, error) {
	if s.opts.MaxLikesPerPost == 0 || len(users) < 2 {
		return 0, nil
	}
	index := make(map[uint]int, len(users))
	for i, u := range users {
		index[u.ID] = i
	}

	faker := s.factory.Faker()
	var likes []models.Like
	for _, p := range posts {
		n := faker.Number(0, s.opts.MaxLikesPerPost)
		for _, j := range s.factory.distinctPicks(len(users), n, index[p.UserID]) {
			likes = append(likes, models.Like{UserID: users[j].ID, PostID: p.ID, CreatedAt: p.CreatedAt.Add(time.Hour)})
		}
	}
	if len(likes) == 0 {
		return 0, nil
	}
	return len(likes), tx.CreateInBatches(likes, batchSize).Error
}

// Reconcile recomputes every post's like counter from its like rows, and
// the XP of users with id >= fromUserID from the activity the rows record.
func Reconcile(tx *gorm.DB, fromUserID uint) error {
	if err := tx.Exec(`UPDATE posts SET likes_count = (
		SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id
	)`).Error; err != nil {
		return fmt.Errorf("reconcile like counts: %w", err)
	}

	err := tx.Exec(`UPDATE users SET xp = ?
		+ ? * (SELECT COUNT(*) FROM posts WHERE posts.user_id = users.id)
		+ ? * (SELECT COUNT(*) FROM likes JOIN posts ON posts.id = likes.post_id
			WHERE posts.user_id = users.id AND likes.user_id <> users.id)
		+ ? * (SELECT COUNT(*) FROM follows WHERE follows.following_id = users.id)
		+ CASE WHEN rsi_handle IS NULL THEN 0 ELSE ? END
		WHERE id >= ?`,
		models.XPRegistrationBonus, models.XPPostCreated, models.XPLikeReceived, models.XPFollowGained,
		models.XPRSILinkBonus, fromUserID,
	).Error
	if err != nil {
		return fmt.Errorf("reconcile xp: %w", err)
	}
	return nil
}

// ClearAll removes every social row and account.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE likes, friendships, follows, posts, users RESTART IDENTITY CASCADE`).Error
	}
	for _, table := range []string{"likes", "friendships", "follows", "posts", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
