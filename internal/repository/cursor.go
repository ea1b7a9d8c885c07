package repository

import (
	"strconv"
	"strings"
	"time"

	"chirp/internal/models"

	"gorm.io/gorm"
)

// Page size bounds shared by every list endpoint.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Cursor is a position in a (time DESC, id DESC) ordered list.
type Cursor struct {
	Time time.Time
	ID   uint
}

// EncodeCursor renders the opaque "time|id" form handed to clients.
func EncodeCursor(t time.Time, id uint) string {
	return t.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatUint(uint64(id), 10)
}

// DecodeCursor parses a cursor. Anything malformed reports ok=false and the
// caller serves the first page.
func DecodeCursor(raw string) (Cursor, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Cursor{}, false
	}
	ts, id, found := strings.Cut(raw, "|")
	if !found {
		return Cursor{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return Cursor{}, false
	}
	return Cursor{Time: t.UTC(), ID: uint(n)}, true
}

// ClampLimit applies the default and the ceiling to a requested page size.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// afterCursor restricts q to rows strictly older than the cursor position.
func afterCursor(q *gorm.DB, raw, timeCol, idCol string) *gorm.DB {
	cur, ok := DecodeCursor(raw)
	if !ok {
		return q
	}
	return q.Where("("+timeCol+" < ? OR ("+timeCol+" = ? AND "+idCol+" < ?))", cur.Time, cur.Time, cur.ID)
}

// buildPage trims the limit+1 probe row and derives the next cursor from the
// last item kept.
func buildPage[T any](rows []T, limit int, key func(T) (time.Time, uint)) models.Page[T] {
	page := models.Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if page.HasMore {
		t, id := key(page.Items[len(page.Items)-1])
		page.NextCursor = EncodeCursor(t, id)
	}
	return page
}
