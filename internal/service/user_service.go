package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/events"
	"sccompanion/internal/featureflags"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/observability"
	"sccompanion/internal/repository"
	"sccompanion/internal/validation"

	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100
	DefaultSearchLimit      = 20
	MaxSearchLimit          = 50
)

// UpdateProfileInput is the body of PUT /api/users/profile. Nil fields are
// left unchanged.
type UpdateProfileInput struct {
	Handle      *string `json:"handle" validate:"omitempty,min=3,max=30,handle"`
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=100"`
	Bio         *string `json:"bio" validate:"omitempty,max=500"`
	Location    *string `json:"location" validate:"omitempty,max=100"`
	Avatar      *string `json:"avatar" validate:"omitempty,url"`
	RSIHandle   *string `json:"rsi_handle" validate:"omitempty,min=1,max=50"`
}

// BanInput is the body of POST /api/users/:userId/ban. Duration is in
// hours; nil means permanent.
type BanInput struct {
	Reason   string `json:"reason" validate:"required,min=1,max=500"`
	Duration *int   `json:"duration" validate:"omitempty,gt=0"`
}

// UserService implements profile, moderation and progression operations.
type UserService struct {
	base
}

// NewUserService returns a new UserService.
func NewUserService(store *repository.Store, deps Dependencies) *UserService {
	return &UserService{base: newBase(store, deps)}
}

// GetProfile returns userID's public profile with relationship counts and,
// for a signed-in viewer other than the user, isFollowing and isFriend.
func (s *UserService) GetProfile(ctx context.Context, userID, viewerID uint) (*models.UserProfile, error) {
	ctx, span := observability.StartServiceSpan(ctx, "UserService", "GetProfile")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	profile, err := cache.Aside(ctx, "user", cache.UserKey(userID), cache.UserTTL,
		func(ctx context.Context) (models.UserProfile, error) {
			u, err := s.store.Users.GetByID(ctx, userID)
			if err != nil {
				return models.UserProfile{}, err
			}
			return u.Profile(), nil
		})
	if err != nil {
		return nil, err
	}

	var followers, following, posts int64
	var isFollowing, isFriend bool
	withFlags := viewerID != 0 && viewerID != userID

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(5)
	p.Go(func(ctx context.Context) (err error) {
		followers, err = s.store.Follows.CountFollowers(ctx, userID)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		following, err = s.store.Follows.CountFollowing(ctx, userID)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		posts, err = s.store.Posts.CountByUser(ctx, userID)
		return err
	})
	if withFlags {
		p.Go(func(ctx context.Context) (err error) {
			isFollowing, err = s.store.Follows.Exists(ctx, viewerID, userID)
			return err
		})
		p.Go(func(ctx context.Context) (err error) {
			isFriend, err = s.store.Friends.AreFriends(ctx, viewerID, userID)
			return err
		})
	}
	if err = p.Wait(); err != nil {
		return nil, err
	}

	profile.FollowersCount = &followers
	profile.FollowingCount = &following
	profile.PostsCount = &posts
	if withFlags {
		profile.IsFollowing = &isFollowing
		profile.IsFriend = &isFriend
	}
	return &profile, nil
}

// UpdateProfile applies the non-nil fields of in to userID.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.Handle != nil {
		owner, err := s.store.Users.GetByHandle(ctx, *in.Handle)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.ID != userID {
			return nil, models.NewConflictError("Handle already taken")
		}
		fields["handle"] = *in.Handle
	}
	if in.RSIHandle != nil {
		owner, err := s.store.Users.GetByRSIHandle(ctx, *in.RSIHandle)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.ID != userID {
			return nil, models.NewConflictError("RSI handle already linked to another account")
		}
		fields["rsi_handle"] = *in.RSIHandle
	}
	if in.DisplayName != nil {
		fields["display_name"] = *in.DisplayName
	}
	if in.Bio != nil {
		fields["bio"] = *in.Bio
	}
	if in.Location != nil {
		fields["location"] = *in.Location
	}
	if in.Avatar != nil {
		fields["avatar"] = *in.Avatar
	}

	if len(fields) > 0 {
		if err := s.store.Users.Update(ctx, userID, fields); err != nil {
			return nil, err
		}
		cache.InvalidateUser(ctx, userID)
	}
	return s.store.Users.GetByID(ctx, userID)
}

// loadPair loads the acting user and the target, 404 if either is missing.
func (s *UserService) loadPair(ctx context.Context, actorID, targetID uint) (*models.User, *models.User, error) {
	actor, err := s.store.Users.GetByID(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.store.Users.GetByID(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

// UpdateRole changes targetID's role. The actor must outrank the target and
// may only assign roles strictly below their own.
func (s *UserService) UpdateRole(ctx context.Context, actorID, targetID uint, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.NewFieldValidationError([]models.FieldError{
			{Field: "role", Message: "must be one of user, moderator, admin, super_admin"},
		})
	}
	actor, target, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if !models.CanModerateUser(actor.Role, target.Role) {
		return nil, models.NewForbiddenError("Insufficient permissions to modify this user's role")
	}
	if role.Rank() >= actor.Role.Rank() {
		return nil, models.NewForbiddenError("Cannot assign role equal or higher than your own")
	}

	updated, err := s.AssignRole(ctx, targetID, role)
	if err != nil {
		return nil, err
	}
	middleware.Logger.WarnContext(ctx, "user role changed",
		"actor_id", actorID, "target_id", targetID, "from", target.Role, "to", role)
	s.publish(ctx, events.Event{
		Type: events.UserRoleChanged, ActorID: actorID, SubjectID: targetID,
		Data: map[string]any{"from": target.Role, "to": role},
	})
	return updated, nil
}

// AssignRole sets a role without hierarchy checks. It backs the admin CLI
// and the development bootstrap.
func (s *UserService) AssignRole(ctx context.Context, userID uint, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.NewValidationError("Invalid role")
	}
	if err := s.store.Users.Update(ctx, userID, map[string]any{"role": role}); err != nil {
		return nil, err
	}
	cache.InvalidateUser(ctx, userID)
	cache.InvalidateLeaderboard(ctx)
	return s.store.Users.GetByID(ctx, userID)
}

// Ban bans targetID on behalf of moderatorID.
func (s *UserService) Ban(ctx context.Context, moderatorID, targetID uint, in BanInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	moderator, target, err := s.loadPair(ctx, moderatorID, targetID)
	if err != nil {
		return nil, err
	}
	if !models.CanModerateUser(moderator.Role, target.Role) {
		return nil, models.NewForbiddenError("Insufficient permissions to ban this user")
	}
	if target.BanInEffect(s.now()) {
		return nil, models.NewValidationError("User is already banned")
	}

	updated, err := s.applyBan(ctx, targetID, &moderatorID, in)
	if err != nil {
		return nil, err
	}
	middleware.Logger.WarnContext(ctx, "user banned",
		"moderator_id", moderatorID, "target_id", targetID, "reason", in.Reason, "duration_hours", in.Duration)
	s.publish(ctx, events.Event{
		Type: events.UserBanned, ActorID: moderatorID, SubjectID: targetID,
		Data: map[string]any{"reason": in.Reason, "bannedUntil": updated.BannedUntil},
	})
	return updated, nil
}

// SystemBan bans without a moderating user, for the admin CLI.
func (s *UserService) SystemBan(ctx context.Context, targetID uint, in BanInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.applyBan(ctx, targetID, nil, in)
}

func (s *UserService) applyBan(ctx context.Context, targetID uint, by *uint, in BanInput) (*models.User, error) {
	now := s.now()
	fields := map[string]any{
		"is_banned":     true,
		"banned_at":     now,
		"banned_reason": in.Reason,
		"banned_by":     by,
		"banned_until":  nil,
	}
	if in.Duration != nil {
		fields["banned_until"] = now.Add(time.Duration(*in.Duration) * time.Hour)
	}
	if err := s.store.Users.Update(ctx, targetID, fields); err != nil {
		return nil, err
	}
	cache.InvalidateUser(ctx, targetID)
	cache.InvalidateLeaderboard(ctx)
	return s.store.Users.GetByID(ctx, targetID)
}

// Unban lifts targetID's ban on behalf of moderatorID.
func (s *UserService) Unban(ctx context.Context, moderatorID, targetID uint) (*models.User, error) {
	moderator, target, err := s.loadPair(ctx, moderatorID, targetID)
	if err != nil {
		return nil, err
	}
	if !target.IsBanned {
		return nil, models.NewValidationError("User is not banned")
	}
	if !models.CanModerateUser(moderator.Role, target.Role) {
		return nil, models.NewForbiddenError("Insufficient permissions to unban this user")
	}

	updated, err := s.SystemUnban(ctx, targetID)
	if err != nil {
		return nil, err
	}
	middleware.Logger.WarnContext(ctx, "user unbanned", "moderator_id", moderatorID, "target_id", targetID)
	s.publish(ctx, events.Event{Type: events.UserUnbanned, ActorID: moderatorID, SubjectID: targetID})
	return updated, nil
}

// SystemUnban lifts a ban without permission checks.
func (s *UserService) SystemUnban(ctx context.Context, targetID uint) (*models.User, error) {
	if err := s.store.Users.Update(ctx, targetID, liftBan()); err != nil {
		return nil, err
	}
	cache.InvalidateUser(ctx, targetID)
	cache.InvalidateLeaderboard(ctx)
	return s.store.Users.GetByID(ctx, targetID)
}

// ExpireBans clears every timed ban that has run out.
func (s *UserService) ExpireBans(ctx context.Context) (int64, error) {
	n, err := s.store.Users.ClearExpiredBans(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		cache.InvalidateLeaderboard(ctx)
		middleware.Logger.InfoContext(ctx, "expired bans cleared", "count", n)
	}
	return n, nil
}

// Leaderboard lists active, unbanned users by XP. limit defaults to 50 and
// is capped at 100.
func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]models.UserProfile, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, MaxLeaderboardLimit)

	fetch := func(ctx context.Context) ([]models.UserProfile, error) {
		users, err := s.store.Users.Leaderboard(ctx, limit)
		if err != nil {
			return nil, err
		}
		return models.Profiles(users), nil
	}
	if !s.deps.Flags.Enabled(featureflags.LeaderboardCache, 0) {
		return fetch(ctx)
	}
	return cache.Aside(ctx, "leaderboard", cache.LeaderboardKey(limit), cache.LeaderboardTTL, fetch)
}

// Search finds active, unbanned users by handle, display name or RSI handle.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]models.UserProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	users, err := s.store.Users.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return models.Profiles(users), nil
}

// AwardXP grants amount XP to userID.
func (s *UserService) AwardXP(ctx context.Context, actorID, userID uint, amount int64, reason string) (*models.User, error) {
	if amount <= 0 {
		return nil, models.NewValidationError("XP amount must be positive")
	}
	if amount > models.MaxXPAward {
		return nil, models.NewValidationError(fmt.Sprintf("XP amount must not exceed %d", models.MaxXPAward))
	}
	if reason == "" {
		reason = "manual"
	}

	var user *models.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		current, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if current.XP > math.MaxInt64-amount {
			return models.NewValidationError("XP total would overflow")
		}
		if _, err := addXP(ctx, tx, userID, amount, reason); err != nil {
			return err
		}
		user, err = tx.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	xpChanged(ctx, userID)
	s.publish(ctx, events.Event{
		Type: events.XPAwarded, ActorID: actorID, SubjectID: userID,
		Data: map[string]any{"amount": amount, "reason": reason},
	})
	return user, nil
}

// Deactivate turns the account off. Users are never hard-deleted.
func (s *UserService) Deactivate(ctx context.Context, userID uint) (*models.User, error) {
	return s.setActive(ctx, userID, false)
}

// Reactivate turns a deactivated account back on.
func (s *UserService) Reactivate(ctx context.Context, userID uint) (*models.User, error) {
	return s.setActive(ctx, userID, true)
}

func (s *UserService) setActive(ctx context.Context, userID uint, active bool) (*models.User, error) {
	if err := s.store.Users.Update(ctx, userID, map[string]any{"is_active": active}); err != nil {
		return nil, err
	}
	cache.InvalidateUser(ctx, userID)
	cache.InvalidateLeaderboard(ctx)
	return s.store.Users.GetByID(ctx, userID)
}
