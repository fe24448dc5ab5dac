package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many entries a single page can hold.
	MaxLimit = 100

	cursorPrefix = "id"
)

// Params holds cursor pagination inputs from controllers.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last entry of the previous page. Pages are walked in
// descending id order.
type Cursor struct {
	ID int64
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds an opaque cursor string.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("%s|%d", cursorPrefix, cursor.ID)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes the cursor string back into its components. An empty
// value yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] != cursorPrefix {
		return nil, fmt.Errorf("invalid cursor format")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid cursor id %q", parts[1])
	}
	return &Cursor{ID: id}, nil
}

// Page returns the entries following the cursor, at most limit of them, and
// the cursor for the next page ("" on the last page). items must already be
// sorted by descending id.
func Page[T any](items []T, idOf func(T) int64, params Params) ([]T, string, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := NormalizeLimit(params.Limit)

	start := 0
	if cursor != nil {
		for start < len(items) && idOf(items[start]) >= cursor.ID {
			start++
		}
	}
	rest := items[start:]
	if len(rest) <= limit {
		return rest, "", nil
	}
	page := rest[:limit]
	return page, EncodeCursor(Cursor{ID: idOf(page[len(page)-1])}), nil
}
