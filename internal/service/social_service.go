package service

import (
	"context"

	"sccompanion/internal/events"
	"sccompanion/internal/featureflags"
	"sccompanion/internal/models"
	"sccompanion/internal/notifications"
	"sccompanion/internal/observability"
	"sccompanion/internal/repository"

	"github.com/sourcegraph/conc/pool"
)

// FollowInput is the body of POST /api/follows and POST /api/friends/request.
type FollowInput struct {
	TargetUserID uint `json:"targetUserId" validate:"required,gt=0"`
}

// RespondInput is the body of PUT /api/friends/request/:requestId.
type RespondInput struct {
	Action models.FriendAction `json:"action" validate:"required,oneof=accept decline"`
}

// SocialService implements follows and friend requests.
type SocialService struct {
	base
}

// NewSocialService returns a new SocialService.
func NewSocialService(store *repository.Store, deps Dependencies) *SocialService {
	return &SocialService{base: newBase(store, deps)}
}

// Follow makes followerID follow followingID and awards follow XP to the
// followed user.
func (s *SocialService) Follow(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SocialService", "Follow")
	follow, err := s.follow(ctx, followerID, followingID)
	observability.EndSpan(span, err)
	observability.RecordSocialAction("follow", err)
	return follow, err
}

func (s *SocialService) follow(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	if followerID == followingID {
		return nil, models.NewValidationError("Cannot follow yourself")
	}
	now := s.now()
	if _, err := actor(ctx, s.store.Users, followerID, now, "Your account is not active"); err != nil {
		return nil, err
	}
	target, err := s.store.Users.GetByID(ctx, followingID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, models.NewForbiddenError("Target user account is not active")
	}

	var follow *models.Follow
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		exists, err := tx.Follows.Exists(ctx, followerID, followingID)
		if err != nil {
			return err
		}
		if exists {
			return models.NewConflictError("Already following this user")
		}
		if follow, err = tx.Follows.Create(ctx, followerID, followingID); err != nil {
			return err
		}
		_, err = addXP(ctx, tx, followingID, models.XPFollowGained, "follow_gained")
		return err
	})
	if err != nil {
		return nil, err
	}

	xpChanged(ctx, followingID)
	s.notify(ctx, followingID, notifications.TypeFollowGained, map[string]any{"followerId": followerID})
	s.publish(ctx, events.Event{Type: events.FollowCreated, ActorID: followerID, SubjectID: followingID})
	return follow, nil
}

// Unfollow removes the follow edge.
func (s *SocialService) Unfollow(ctx context.Context, followerID, followingID uint) error {
	removed, err := s.store.Follows.Delete(ctx, followerID, followingID)
	if err == nil && !removed {
		err = models.NewNotFoundMessage("Not following this user")
	}
	observability.RecordSocialAction("unfollow", err)
	if err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.FollowDeleted, ActorID: followerID, SubjectID: followingID})
	return nil
}

// SendFriendRequest asks addresseeID to be requesterID's friend. A
// previously declined request between the pair is reopened when the
// friend_rerequest_after_decline flag is on.
func (s *SocialService) SendFriendRequest(ctx context.Context, requesterID, addresseeID uint) (*models.Friendship, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SocialService", "SendFriendRequest")
	req, err := s.sendFriendRequest(ctx, requesterID, addresseeID)
	observability.EndSpan(span, err)
	observability.RecordSocialAction("friend_request", err)
	return req, err
}

func (s *SocialService) sendFriendRequest(ctx context.Context, requesterID, addresseeID uint) (*models.Friendship, error) {
	if requesterID == addresseeID {
		return nil, models.NewValidationError("Cannot send friend request to yourself")
	}
	now := s.now()
	if _, err := actor(ctx, s.store.Users, requesterID, now, "Your account is not active"); err != nil {
		return nil, err
	}
	target, err := s.store.Users.GetByID(ctx, addresseeID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, models.NewForbiddenError("Target user account is not active")
	}
	reopenAllowed := s.deps.Flags.Enabled(featureflags.FriendRerequestAfterDecline, requesterID)

	var requestID uint
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		existing, err := tx.Friends.GetBetween(ctx, requesterID, addresseeID)
		if err != nil {
			return err
		}
		if existing == nil {
			f := &models.Friendship{
				RequesterID: requesterID,
				AddresseeID: addresseeID,
				Status:      models.FriendshipStatusPending,
			}
			if err := tx.Friends.Create(ctx, f); err != nil {
				return err
			}
			requestID = f.ID
			return nil
		}

		switch existing.Status {
		case models.FriendshipStatusAccepted:
			return models.NewConflictError("Already friends with this user")
		case models.FriendshipStatusPending:
			return models.NewConflictError("Friend request already pending")
		}
		if !reopenAllowed {
			return models.NewConflictError("Friend request was declined")
		}
		ok, err := tx.Friends.Reopen(ctx, existing.ID, requesterID, addresseeID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError("Friend request already pending")
		}
		requestID = existing.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	req, err := s.store.Friends.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, addresseeID, notifications.TypeFriendRequestReceived, map[string]any{
		"requestId": requestID, "fromUserId": requesterID,
	})
	s.publish(ctx, events.Event{Type: events.FriendRequested, ActorID: requesterID, SubjectID: addresseeID})
	return req, nil
}

// RespondToFriendRequest accepts or declines a pending request addressed to
// responderID. Only one concurrent response can win.
func (s *SocialService) RespondToFriendRequest(ctx context.Context, requestID, responderID uint, action models.FriendAction) (*models.Friendship, error) {
	status, ok := action.Status()
	if !ok {
		return nil, models.NewFieldValidationError([]models.FieldError{
			{Field: "action", Message: "must be one of accept, decline"},
		})
	}
	if _, err := actor(ctx, s.store.Users, responderID, s.now(), "Your account is not active"); err != nil {
		return nil, err
	}

	updated, err := s.store.Friends.Respond(ctx, requestID, responderID, status)
	if err == nil && !updated {
		err = models.NewNotFoundMessage("Friend request not found or not pending")
	}
	observability.RecordSocialAction("friend_"+string(action), err)
	if err != nil {
		return nil, err
	}

	req, err := s.store.Friends.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	evType := events.FriendDeclined
	if status == models.FriendshipStatusAccepted {
		evType = events.FriendAccepted
		s.notify(ctx, req.RequesterID, notifications.TypeFriendRequestAccepted, map[string]any{
			"requestId": requestID, "userId": responderID,
		})
	}
	s.publish(ctx, events.Event{Type: evType, ActorID: responderID, SubjectID: req.RequesterID})
	return req, nil
}

// RemoveFriend deletes an accepted friendship in either direction.
func (s *SocialService) RemoveFriend(ctx context.Context, userID, friendID uint) error {
	removed, err := s.store.Friends.RemoveAccepted(ctx, userID, friendID)
	if err == nil && !removed {
		err = models.NewNotFoundMessage("Not friends with this user")
	}
	observability.RecordSocialAction("friend_remove", err)
	if err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.FriendRemoved, ActorID: userID, SubjectID: friendID})
	return nil
}

// GetFollowers lists the active users following userID.
func (s *SocialService) GetFollowers(ctx context.Context, userID uint, page models.PageRequest) (models.Page[models.UserProfile], error) {
	return s.listEdges(ctx, userID, page, s.store.Follows.Followers)
}

// GetFollowing lists the active users userID follows.
func (s *SocialService) GetFollowing(ctx context.Context, userID uint, page models.PageRequest) (models.Page[models.UserProfile], error) {
	return s.listEdges(ctx, userID, page, s.store.Follows.Following)
}

// GetFriends lists userID's active friends.
func (s *SocialService) GetFriends(ctx context.Context, userID uint, page models.PageRequest) (models.Page[models.UserProfile], error) {
	return s.listEdges(ctx, userID, page, s.store.Friends.Friends)
}

type edgeLister func(ctx context.Context, userID uint, page models.PageRequest) (models.Page[repository.UserEdge], error)

func (s *SocialService) listEdges(ctx context.Context, userID uint, page models.PageRequest, list edgeLister) (models.Page[models.UserProfile], error) {
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		return models.Page[models.UserProfile]{}, err
	}
	edges, err := list(ctx, userID, page)
	if err != nil {
		return models.Page[models.UserProfile]{}, err
	}
	return models.MapPage(edges, func(e repository.UserEdge) models.UserProfile {
		return e.User.Profile()
	}), nil
}

// GetPendingRequests lists pending requests userID sent (sent) or received,
// each with the other party's profile.
func (s *SocialService) GetPendingRequests(ctx context.Context, userID uint, sent bool) ([]models.PendingRequest, error) {
	rows, err := s.store.Friends.Pending(ctx, userID, sent)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingRequest, 0, len(rows))
	for _, f := range rows {
		other := f.Requester
		if sent {
			other = f.Addressee
		}
		if other == nil {
			continue
		}
		out = append(out, models.PendingRequest{
			ID:        f.ID,
			Status:    string(f.Status),
			CreatedAt: f.CreatedAt,
			User:      other.Profile(),
		})
	}
	return out, nil
}

// IsFollowing reports whether followerID follows followingID.
func (s *SocialService) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	return s.store.Follows.Exists(ctx, followerID, followingID)
}

// AreFriends reports whether the two users are friends.
func (s *SocialService) AreFriends(ctx context.Context, userID1, userID2 uint) (bool, error) {
	return s.store.Friends.AreFriends(ctx, userID1, userID2)
}

// GetSocialStats counts followers, following and friends concurrently.
func (s *SocialService) GetSocialStats(ctx context.Context, userID uint) (*models.SocialStats, error) {
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	var stats models.SocialStats
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(3)
	p.Go(func(ctx context.Context) (err error) {
		stats.FollowersCount, err = s.store.Follows.CountFollowers(ctx, userID)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		stats.FollowingCount, err = s.store.Follows.CountFollowing(ctx, userID)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		stats.FriendsCount, err = s.store.Friends.CountFriends(ctx, userID)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}
