// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"time"
)

// User represents a member account. Level is derived from XP on every read
// and is never stored.
type User struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Handle       string  `gorm:"size:30;uniqueIndex;not null" json:"handle"`
	DisplayName  string  `gorm:"size:100;not null" json:"displayName"`
	Email        string  `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Bio          string  `gorm:"size:500" json:"bio,omitempty"`
	Location     string  `gorm:"size:100" json:"location,omitempty"`
	Avatar       string  `json:"avatar,omitempty"`
	RSIHandle    *string `gorm:"column:rsi_handle;size:50;uniqueIndex" json:"rsi_handle,omitempty"`
	RSIGEID      *string `gorm:"column:rsi_geid;size:100" json:"rsi_geid,omitempty"`

	Role Role  `gorm:"type:varchar(20);not null;default:'user';index" json:"role"`
	XP   int64 `gorm:"not null;default:0;index" json:"xp"`

	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	IsBanned     bool       `gorm:"not null;default:false;index" json:"isBanned"`
	BannedAt     *time.Time `json:"bannedAt,omitempty"`
	BannedReason *string    `gorm:"size:500" json:"bannedReason,omitempty"`
	BannedBy     *uint      `json:"bannedBy,omitempty"`
	BannedUntil  *time.Time `json:"bannedUntil,omitempty"`

	IsPremium        bool       `gorm:"not null;default:false" json:"isPremium"`
	PremiumExpiresAt *time.Time `json:"premiumExpiresAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON adds the derived level to the serialized user.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		Level int `json:"level"`
	}{plain(u), Level(u.XP)})
}

// Level returns the user's current level.
func (u *User) Level() int { return Level(u.XP) }

// BanInEffect reports whether the user is banned at now. A timed ban whose
// end has passed is no longer in effect.
func (u *User) BanInEffect(now time.Time) bool {
	if !u.IsBanned {
		return false
	}
	return u.BannedUntil == nil || now.Before(*u.BannedUntil)
}

// BanExpired reports whether a timed ban has run out but not yet been cleared.
func (u *User) BanExpired(now time.Time) bool {
	return u.IsBanned && u.BannedUntil != nil && !now.Before(*u.BannedUntil)
}

// CanAct reports whether the account may perform authenticated actions.
func (u *User) CanAct(now time.Time) bool {
	return u.IsActive && !u.BanInEffect(now)
}

// UserProfile is the public view of a user.
type UserProfile struct {
	ID          uint      `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio,omitempty"`
	Location    string    `json:"location,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	RSIHandle   *string   `json:"rsi_handle,omitempty"`
	Role        Role      `json:"role"`
	XP          int64     `json:"xp"`
	Level       int       `json:"level"`
	IsActive    bool      `json:"isActive"`
	IsPremium   bool      `json:"isPremium"`
	IsBanned    bool      `json:"isBanned"`
	CreatedAt   time.Time `json:"createdAt"`

	FollowersCount *int64 `json:"followersCount,omitempty"`
	FollowingCount *int64 `json:"followingCount,omitempty"`
	PostsCount     *int64 `json:"postsCount,omitempty"`
	IsFollowing    *bool  `json:"isFollowing,omitempty"`
	IsFriend       *bool  `json:"isFriend,omitempty"`
}

// Profile converts u into its public view.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		Location:    u.Location,
		Avatar:      u.Avatar,
		RSIHandle:   u.RSIHandle,
		Role:        u.Role,
		XP:          u.XP,
		Level:       Level(u.XP),
		IsActive:    u.IsActive,
		IsPremium:   u.IsPremium,
		IsBanned:    u.IsBanned,
		CreatedAt:   u.CreatedAt,
	}
}

// Profiles converts a slice of users.
func Profiles(users []User) []UserProfile {
	out := make([]UserProfile, len(users))
	for i := range users {
		out[i] = users[i].Profile()
	}
	return out
}

// Author is the compact user summary attached to posts.
type Author struct {
	ID          uint    `json:"id"`
	Handle      string  `json:"handle"`
	DisplayName string  `json:"displayName"`
	Avatar      string  `json:"avatar,omitempty"`
	XP          int64   `json:"xp"`
	Level       int     `json:"level"`
	IsPremium   bool    `json:"isPremium"`
	Role        Role    `json:"role"`
	RSIHandle   *string `json:"rsi_handle,omitempty"`
}

// AuthorSummary converts u into a post author summary.
func (u *User) AuthorSummary() *Author {
	return &Author{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		XP:          u.XP,
		Level:       Level(u.XP),
		IsPremium:   u.IsPremium,
		Role:        u.Role,
		RSIHandle:   u.RSIHandle,
	}
}
