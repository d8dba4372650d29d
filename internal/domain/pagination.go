package domain

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Page sizes for dead-letter listings.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

const cursorPrefix = "dl1:"

// Cursor is a position in a dead-letter listing ordered by first failure
// time then ID. Clients see it only as an opaque token.
type Cursor struct {
	Position int
}

// Token encodes c for clients. The start of a listing encodes to "".
func (c Cursor) Token() string {
	if c.Position <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(c.Position)))
}

// ParseCursor decodes a token produced by Cursor.Token. An empty token is
// the start of the listing.
func ParseCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrValidation("malformed page token %q", token)
	}
	pos, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return Cursor{}, ErrValidation("malformed page token %q", token)
	}
	n, err := strconv.Atoi(pos)
	if err != nil || n < 0 {
		return Cursor{}, ErrValidation("malformed page token %q", token)
	}
	return Cursor{Position: n}, nil
}

// PageRequest selects one window of a dead-letter listing.
type PageRequest struct {
	Size  int // 0 means DefaultPageSize
	After Cursor
}

// Limit returns the effective page size, clamped to [1, MaxPageSize].
func (p PageRequest) Limit() int {
	switch {
	case p.Size <= 0:
		return DefaultPageSize
	case p.Size > MaxPageSize:
		return MaxPageSize
	}
	return p.Size
}

// Offset is the number of entries skipped before the page.
func (p PageRequest) Offset() int {
	return max(p.After.Position, 0)
}

// Next returns the cursor after a page that returned n of total entries,
// and false when the listing is exhausted.
func (p PageRequest) Next(n int, total int64) (Cursor, bool) {
	next := p.Offset() + n
	if n == 0 || int64(next) >= total {
		return Cursor{}, false
	}
	return Cursor{Position: next}, true
}
