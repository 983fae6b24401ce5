package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned for tokens that do not decode to a Cursor.
var ErrInvalidToken = errors.New("invalid pagination token")

// Cursor is the opaque pagination state we encode/decode.
// ID is the tiebreaker (actor id, notification id); Unix (millis) is the
// sort timestamp when the listing is time-ordered.
type Cursor struct {
	ID   uint64 `json:"id"`
	Unix int64  `json:"ts,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool { return c.ID == 0 && c.Unix == 0 }

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}

// Page trims a limit+1 result set to limit and builds the next token from
// the last kept element.
func Page[T any](items []T, limit int, cursorOf func(T) Cursor) ([]T, *string) {
	if limit <= 0 || len(items) <= limit {
		return items, nil
	}
	items = items[:limit]
	token, err := Encode(cursorOf(items[limit-1]))
	if err != nil {
		return items, nil
	}
	return items, &token
}
