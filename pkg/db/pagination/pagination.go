package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize int32 = 50
	MaxPageSize     int32 = 250
)

var ErrInvalidToken = errors.New("invalid_page_token")

// Pagination is the page_token/page_size query pair shared by admin list routes.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Cursor is the position a page token resumes after. Lists are ordered by
// descending snowflake id, so the id alone is enough; CreatedAt is carried
// for readability of decoded tokens.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken     string `json:"next_page_token"`
	PreviousPageToken string `json:"previous_page_token"`
	HasMore           bool   `json:"has_more"`
}

// Size applies the default and the upper bound to a requested page size.
func Size(requested int32) int32 {
	switch {
	case requested <= 0:
		return DefaultPageSize
	case requested > MaxPageSize:
		return MaxPageSize
	default:
		return requested
	}
}

// EncodeCursor returns a URL-safe token for c.
func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// Page trims rows fetched with one lookahead row down to size and builds the
// page info. cursorOf is called for the last row kept when more rows follow.
func Page[T any](rows []*T, size int32, cursorOf func(*T) Cursor) ([]*T, PageInfo) {
	if len(rows) <= int(size) {
		return rows, PageInfo{}
	}
	rows = rows[:size]
	info := PageInfo{HasMore: true}
	if token, err := EncodeCursor(cursorOf(rows[len(rows)-1])); err == nil {
		info.NextPageToken = token
	}
	return rows, info
}
