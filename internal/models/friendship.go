package models

import (
	"time"
)

// FriendshipStatus represents the status of a friendship request.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a pending friendship request.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates an accepted friendship request.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	// FriendshipStatusDeclined indicates a declined friendship request.
	FriendshipStatusDeclined FriendshipStatus = "declined"
)

// FriendAction is the addressee's answer to a pending request.
type FriendAction string

const (
	FriendActionAccept  FriendAction = "accept"
	FriendActionDecline FriendAction = "decline"
)

// Status returns the terminal status an action moves a request to.
func (a FriendAction) Status() (FriendshipStatus, bool) {
	switch a {
	case FriendActionAccept:
		return FriendshipStatusAccepted, true
	case FriendActionDecline:
		return FriendshipStatusDeclined, true
	default:
		return "", false
	}
}

// Friendship is a friend request between two users. Only pending requests
// change status, and accepted or declined are final. There is at most one
// row per unordered pair of users.
type Friendship struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RequesterID uint             `gorm:"not null;uniqueIndex:idx_friendship_users;index;check:chk_friendships_no_self,requester_id <> addressee_id" json:"requesterId"`
	AddresseeID uint             `gorm:"not null;uniqueIndex:idx_friendship_users;index" json:"addresseeId"`
	Status      FriendshipStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_friendships_status" json:"status"`
	CreatedAt   time.Time        `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`

	// Relationships
	Requester *User `gorm:"foreignKey:RequesterID;constraint:OnDelete:CASCADE" json:"requester,omitempty"`
	Addressee *User `gorm:"foreignKey:AddresseeID;constraint:OnDelete:CASCADE" json:"addressee,omitempty"`
}

// TableName specifies the table name for GORM
func (Friendship) TableName() string {
	return "friendships"
}

// OtherParty returns the id of the user on the other side from userID.
func (f *Friendship) OtherParty(userID uint) uint {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// PendingRequest is a pending friend request with the counterpart's profile.
type PendingRequest struct {
	ID        uint        `json:"id"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	User      UserProfile `json:"user"`
}

// Follow is a directed edge from follower to following.
type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  uint      `gorm:"not null;uniqueIndex:idx_follows_pair;index;check:chk_follows_no_self,follower_id <> following_id" json:"followerId"`
	FollowingID uint      `gorm:"not null;uniqueIndex:idx_follows_pair;index" json:"followingId"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`

	Follower  *User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Following *User `gorm:"foreignKey:FollowingID;constraint:OnDelete:CASCADE" json:"-"`
}

// SocialStats are the relationship counts of a user.
type SocialStats struct {
	FollowersCount int64 `json:"followersCount"`
	FollowingCount int64 `json:"followingCount"`
	FriendsCount   int64 `json:"friendsCount"`
}
