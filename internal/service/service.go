// Package service holds the business rules of the API. Services own
// authorization decisions that depend on stored state, XP awards, cache
// invalidation and event fan-out; persistence is delegated to repository.
package service

import (
	"context"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/events"
	"sccompanion/internal/featureflags"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/notifications"
	"sccompanion/internal/observability"
	"sccompanion/internal/repository"
)

// Dependencies are the collaborators shared by every service. Zero values
// are valid: events are dropped, notifications skipped and flags default.
type Dependencies struct {
	Events   events.Publisher
	Notifier *notifications.Notifier
	Flags    *featureflags.Manager
	Clock    func() time.Time
}

type base struct {
	store *repository.Store
	deps  Dependencies
}

func newBase(store *repository.Store, deps Dependencies) base {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Flags == nil {
		deps.Flags = featureflags.NewManager("")
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	return base{store: store, deps: deps}
}

func (b *base) now() time.Time { return b.deps.Clock() }

// publish sends ev after the write it describes has committed. Failures are
// logged and never fail the request.
func (b *base) publish(ctx context.Context, ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	if err := b.deps.Events.Publish(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish event", "event_type", ev.Type, "error", err)
	}
}

// notify pushes a realtime notification to userID when the realtime flag
// is on for them.
func (b *base) notify(ctx context.Context, userID uint, typ string, payload any) {
	if !b.deps.Flags.Enabled(featureflags.RealtimeEvents, userID) {
		return
	}
	if err := b.deps.Notifier.Notify(ctx, userID, typ, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to push notification", "type", typ, "user_id", userID, "error", err)
	}
}

// actor loads userID and requires that it may act now. A missing user is
// 404 "User not found"; an inactive or banned one is 403 with inactiveMsg.
func actor(ctx context.Context, users repository.UserRepository, userID uint, now time.Time, inactiveMsg string) (*models.User, error) {
	u, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.CanAct(now) {
		return nil, models.NewForbiddenError(inactiveMsg)
	}
	return u, nil
}

// addXP increments userID's XP on tx and records the award.
func addXP(ctx context.Context, tx *repository.Store, userID uint, amount int64, reason string) (int64, error) {
	xp, err := tx.Users.AddXP(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	observability.XPAwarded.WithLabelValues(reason).Add(float64(amount))
	return xp, nil
}

// xpChanged drops caches that depend on a user's XP.
func xpChanged(ctx context.Context, userIDs ...uint) {
	for _, id := range userIDs {
		cache.InvalidateUser(ctx, id)
	}
	cache.InvalidateLeaderboard(ctx)
}
