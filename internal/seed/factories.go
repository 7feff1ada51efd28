// Package seed generates demo data for development databases: pilots, posts,
// follows, friendships and likes.
package seed

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"sccompanion/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	ships = []string{
		"Cutlass Black", "Carrack", "Constellation Andromeda", "Freelancer MAX", "Prospector",
		"C2 Hercules", "Gladius", "Arrow", "Vulture", "Hull A", "Mercury Star Runner", "Corsair",
	}
	locations = []string{
		"Lorville", "Area18", "New Babbage", "Orison", "Port Tressler", "Grim HEX",
		"Everus Harbor", "Baijini Point", "Seraphim Station", "Daymar", "Yela", "Aberdeen",
	}
	postTemplates = []string{
		"Just finished a cargo run from %[2]s in my %[1]s. %[3]s",
		"Anyone up for a mining op near %[2]s tonight? Bringing the %[1]s. %[3]s",
		"Finally bought a %[1]s! First flight out of %[2]s went smooth. %[3]s",
		"Got interdicted outside %[2]s again. The %[1]s survived, barely. %[3]s",
		"Looking for crew for the %[1]s, meeting at %[2]s. %[3]s",
		"Bounty hunting around %[2]s is paying well this patch. %[3]s",
	}
	handleCleaner = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// Factory builds entities with plausible fake content. It does not touch
// the database.
type Factory struct {
	faker   *gofakeit.Faker
	maxDays int
	now     time.Time
}

// NewFactory returns a Factory. The same seed yields the same data.
func NewFactory(seed int64, maxDays int) *Factory {
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{faker: gofakeit.New(seed), maxDays: maxDays, now: time.Now().UTC()}
}

// Faker exposes the underlying generator for random choices.
func (f *Factory) Faker() *gofakeit.Faker { return f.faker }

// Handle derives a valid, unique-by-index handle.
func (f *Factory) Handle(i int) string {
	base := handleCleaner.ReplaceAllString(f.faker.Username(), "")
	suffix := fmt.Sprintf("_%d", i)
	if limit := 30 - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	if len(base) < 2 {
		base = "pilot"
	}
	return base + suffix
}

// BuildUser returns an active member with a precomputed password hash.
func (f *Factory) BuildUser(i int, passwordHash string) *models.User {
	handle := f.Handle(i)
	user := &models.User{
		Handle:       handle,
		DisplayName:  f.faker.Name(),
		Email:        strings.ToLower(handle) + "@example.com",
		PasswordHash: passwordHash,
		Bio:          f.faker.Sentence(10),
		Location:     f.faker.RandomString(locations),
		Avatar:       fmt.Sprintf("https://i.pravatar.cc/150?u=%s", handle),
		Role:         models.RoleUser,
		IsActive:     true,
		CreatedAt:    f.pastTime(),
	}
	if f.faker.Number(1, 3) == 1 {
		rsi := handleCleaner.ReplaceAllString(f.faker.Gamertag(), "")
		if rsi == "" {
			rsi = "citizen"
		}
		rsi = fmt.Sprintf("%s%d", rsi, i)
		if len(rsi) > 50 {
			rsi = rsi[len(rsi)-50:]
		}
		user.RSIHandle = &rsi
	}
	return user
}

// BuildPost returns a post by author with game-flavoured content.
func (f *Factory) BuildPost(author *models.User) *models.Post {
	content := fmt.Sprintf(f.faker.RandomString(postTemplates),
		f.faker.RandomString(ships), f.faker.RandomString(locations), f.faker.Sentence(6))

	post := &models.Post{
		UserID:    author.ID,
		Content:   content,
		CreatedAt: f.pastTime(),
	}
	if post.CreatedAt.Before(author.CreatedAt) {
		post.CreatedAt = author.CreatedAt.Add(time.Minute)
	}
	if f.faker.Number(1, 4) == 1 {
		post.MediaURLs = []string{fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())}
	}
	post.UpdatedAt = post.CreatedAt
	return post
}

// pastTime is a random instant within the last maxDays days.
func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays*24*60)) * time.Minute
	return f.now.Add(-back)
}

// distinctPicks returns up to n distinct indexes in [0, size) other than skip.
func (f *Factory) distinctPicks(size, n, skip int) []int {
	if n <= 0 || size <= 1 {
		return nil
	}
	out := make([]int, 0, n)
	for _, idx := range f.faker.Rand.Perm(size) {
		if idx == skip {
			continue
		}
		out = append(out, idx)
		if len(out) == n {
			break
		}
	}
	return out
}
