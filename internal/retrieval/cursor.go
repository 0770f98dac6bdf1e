// Package retrieval implements keyword/FTS search, timeline reconstruction
// and keyset pagination over the observation store.
package retrieval

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Cursor is a decoded keyset pagination position.
type Cursor struct {
	Epoch int64
	ID    int64
}

// EncodeCursor produces a base64url("epoch:id") cursor.
func EncodeCursor(epoch, id int64) string {
	raw := strconv.FormatInt(epoch, 10) + ":" + strconv.FormatInt(id, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor produced by EncodeCursor. Malformed,
// empty, or non-positive-id cursors decode to (nil, no error): invalid
// cursors are silently treated as "no cursor", never as an error
// condition.
func DecodeCursor(cursor string) *Cursor {
	if cursor == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return nil
	}
	epoch, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 || epoch <= 0 {
		return nil
	}
	return &Cursor{Epoch: epoch, ID: id}
}
