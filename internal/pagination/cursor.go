package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor indicates a cursor that cannot be decoded into an order key.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

const maxCursorIDLength = 190

// OrderKey totally orders rows by creation time with the row id as tie-break.
type OrderKey struct {
	CreatedAtMillis int64
	ID              string
}

// NewOrderKey builds an order key from a timestamp and id.
func NewOrderKey(createdAt time.Time, id string) OrderKey {
	return OrderKey{CreatedAtMillis: createdAt.UnixMilli(), ID: id}
}

// Less reports whether k sorts strictly before other.
func (k OrderKey) Less(other OrderKey) bool {
	if k.CreatedAtMillis != other.CreatedAtMillis {
		return k.CreatedAtMillis < other.CreatedAtMillis
	}
	return k.ID < other.ID
}

// EncodeCursor returns the opaque cursor for key.
func EncodeCursor(key OrderKey) string {
	raw := strconv.FormatInt(key.CreatedAtMillis, 10) + "." + key.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes an opaque cursor. An empty string yields a nil key.
func ParseCursor(cursor string) (*OrderKey, error) {
	trimmed := strings.TrimSpace(cursor)
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	millisPart, idPart, found := strings.Cut(string(decoded), ".")
	if !found {
		return nil, fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil || millis < 0 {
		return nil, fmt.Errorf("%w: invalid timestamp", ErrInvalidCursor)
	}
	if idPart == "" || len(idPart) > maxCursorIDLength {
		return nil, fmt.Errorf("%w: invalid id", ErrInvalidCursor)
	}
	return &OrderKey{CreatedAtMillis: millis, ID: idPart}, nil
}
