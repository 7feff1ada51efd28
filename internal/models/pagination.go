package models

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPageLimit is used when a request does not pass limit.
	DefaultPageLimit = 20
	// MaxPageLimit caps limit on paginated listings.
	MaxPageLimit = 50
)

// Cursor is a keyset position: rows strictly after it in
// (created_at DESC, id DESC) order come next. A zero ID means the cursor
// came from a bare timestamp and only created_at is compared.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// Encode renders the cursor as "<RFC3339 nano timestamp>_<id>".
func (c Cursor) Encode() string {
	ts := c.CreatedAt.UTC().Format(time.RFC3339Nano)
	if c.ID == 0 {
		return ts
	}
	return ts + "_" + strconv.FormatUint(uint64(c.ID), 10)
}

// ParseCursor decodes a cursor produced by Encode. A bare ISO timestamp is
// accepted too. The empty string yields nil.
func ParseCursor(raw string) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	tsPart, idPart := raw, ""
	if i := strings.LastIndex(raw, "_"); i >= 0 {
		tsPart, idPart = raw[:i], raw[i+1:]
	}

	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return nil, NewValidationError("Invalid cursor")
	}

	c := &Cursor{CreatedAt: ts.UTC()}
	if idPart != "" {
		id, err := strconv.ParseUint(idPart, 10, 64)
		if err != nil || id == 0 {
			return nil, NewValidationError("Invalid cursor")
		}
		c.ID = uint(id)
	}
	return c, nil
}

// PageRequest is a validated cursor and limit.
type PageRequest struct {
	Cursor *Cursor
	Limit  int
}

// NewPageRequest validates raw query values. A zero limit means default.
func NewPageRequest(rawCursor string, limit int) (PageRequest, error) {
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 1 || limit > MaxPageLimit {
		return PageRequest{}, NewValidationError("limit must be between 1 and 50")
	}
	cursor, err := ParseCursor(rawCursor)
	if err != nil {
		return PageRequest{}, err
	}
	return PageRequest{Cursor: cursor, Limit: limit}, nil
}

// PageInfo describes whether more rows exist.
type PageInfo struct {
	HasNext    bool   `json:"hasNext"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageInfo `json:"pagination"`
}

// NewPage trims a limit+1 result set down to limit and computes the next
// cursor from the last kept row.
func NewPage[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []T{}
	}
	page := Page[T]{Data: rows, Pagination: PageInfo{HasNext: hasNext}}
	if hasNext && len(rows) > 0 {
		page.Pagination.NextCursor = key(rows[len(rows)-1]).Encode()
	}
	return page
}

// MapPage converts the rows of a page, keeping its pagination info.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Data))
	for i, v := range p.Data {
		out[i] = fn(v)
	}
	return Page[U]{Data: out, Pagination: p.Pagination}
}
