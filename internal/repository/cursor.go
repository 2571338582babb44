package repository

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"property-delivery-api-server/internal/fault"
)

var ErrInvalidCursor = fault.InvalidError("invalid pagination cursor")

// EncodeCursor turns an offset into an opaque cursor.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeCursor reverses EncodeCursor; the empty cursor is the first page.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, ErrInvalidCursor
	}
	return offset, nil
}

// PageOf slices the window [offset, offset+limit) of a result that was fetched with
// one extra row, so the caller can tell whether more rows exist.
func PageOf[T any](rows []T, offset, limit int) (items []T, next string, done bool) {
	if len(rows) > limit {
		return rows[:limit], EncodeCursor(offset + limit), false
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, "", true
}
