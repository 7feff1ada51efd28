package models

import (
	"time"
)

// Post is a user's feed entry. LikesCount always equals the number of Like
// rows for the post; it only changes in the same transaction as a Like row.
type Post struct {
	ID         uint     `gorm:"primaryKey;index:idx_posts_created_id,priority:2" json:"id"`
	UserID     uint     `gorm:"not null;index" json:"userId"`
	User       *User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Content    string   `gorm:"type:text;not null" json:"content"`
	MediaURLs  []string `gorm:"serializer:json;type:text" json:"mediaUrls,omitempty"`
	LikesCount int64    `gorm:"not null;default:0" json:"likesCount"`

	IsModerated      bool       `gorm:"not null;default:false;index" json:"isModerated"`
	ModeratedAt      *time.Time `json:"moderatedAt,omitempty"`
	ModeratedBy      *uint      `json:"moderatedBy,omitempty"`
	ModerationReason *string    `gorm:"size:500" json:"moderationReason,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_posts_created_id,priority:1" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Author and IsLiked are computed for the requesting user.
	Author  *Author `gorm:"-" json:"user,omitempty"`
	IsLiked bool    `gorm:"-" json:"isLiked"`
}

// AttachAuthor fills Author from the preloaded User relation.
func (p *Post) AttachAuthor() {
	if p.User != nil {
		p.Author = p.User.AuthorSummary()
	}
}

// CursorKey returns the keyset position of the post.
func (p *Post) CursorKey() Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// Like records a user liking a post. One per (user, post).
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;index" json:"userId"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;index" json:"postId"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post      *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// LikeResult is returned by like and unlike.
type LikeResult struct {
	Success    bool  `json:"success"`
	LikesCount int64 `json:"likesCount"`
}
