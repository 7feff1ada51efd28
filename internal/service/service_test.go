package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"sccompanion/internal/config"
	"sccompanion/internal/events"
	"sccompanion/internal/featureflags"
	"sccompanion/internal/notifications"
	"sccompanion/internal/repository"
	"sccompanion/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	db     *gorm.DB
	store  *repository.Store
	mr     *miniredis.Miniredis
	events *recordingPublisher

	auth   *AuthService
	users  *UserService
	posts  *PostService
	social *SocialService
}

func newHarness(t *testing.T, flags string) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	store := repository.NewStore(db)
	pub := &recordingPublisher{}

	deps := Dependencies{
		Events:   pub,
		Notifier: notifications.NewNotifier(rdb),
		Flags:    featureflags.NewManager(flags),
		Clock:    func() time.Time { return time.Now().UTC() },
	}
	cfg := &config.Config{
		JWTSecret:   "service-test-secret-0123456789abcdef0123456789",
		JWTIssuer:   "sc-companion-api",
		JWTAudience: "sc-companion-client",
		JWTTTL:      time.Hour,
	}

	return &harness{
		db:     db,
		store:  store,
		mr:     mr,
		events: pub,
		auth:   NewAuthService(store, cfg, deps),
		users:  NewUserService(store, deps),
		posts:  NewPostService(store, deps),
		social: NewSocialService(store, deps),
	}
}
