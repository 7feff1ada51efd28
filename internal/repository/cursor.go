package repository

import (
	"time"

	"sccompanion/internal/models"

	"gorm.io/gorm"
)

// UserEdge is a user reached through a relationship row (a follow or a
// friendship). The edge's own id and creation time drive pagination.
type UserEdge struct {
	models.User
	EdgeID        uint      `gorm:"column:edge_id"`
	EdgeCreatedAt time.Time `gorm:"column:edge_created_at"`
}

// CursorKey returns the keyset position of the edge.
func (e UserEdge) CursorKey() models.Cursor {
	return models.Cursor{CreatedAt: e.EdgeCreatedAt, ID: e.EdgeID}
}

// keyset applies (createdCol, idCol) DESC ordering, the cursor predicate and
// a limit+1 fetch size. A cursor without an id compares on time only.
func keyset(q *gorm.DB, createdCol, idCol string, page models.PageRequest) *gorm.DB {
	if c := page.Cursor; c != nil {
		if c.ID == 0 {
			q = q.Where(createdCol+" < ?", c.CreatedAt)
		} else {
			q = q.Where("("+createdCol+" < ? OR ("+createdCol+" = ? AND "+idCol+" < ?))",
				c.CreatedAt, c.CreatedAt, c.ID)
		}
	}
	return q.Order(createdCol + " DESC").Order(idCol + " DESC").Limit(page.Limit + 1)
}

// activeUsers restricts a query joined on users to accounts that can be
// listed. A timed ban that has run out counts as lifted, matching
// User.CanAct, even before expire-bans clears the flag.
func activeUsers(q *gorm.DB) *gorm.DB {
	return q.Where("users.is_active = ? AND (users.is_banned = ? OR (users.banned_until IS NOT NULL AND users.banned_until <= ?))",
		true, false, time.Now().UTC())
}
