package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidCursor = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Size clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor marks the last row of a page in (created_at desc, id desc) order.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	if cursor.ID == "" || cursor.CreatedAt == "" {
		return nil, ErrInvalidCursor
	}
	return &cursor, nil
}

// Page trims a limit+1 query result down to limit rows and reports whether
// more rows follow. The token points past the last returned row.
func Page[T any](data []T, limit int, extractCursor func(T) Cursor) ([]T, PageInfo, error) {
	if len(data) <= limit {
		return data, PageInfo{}, nil
	}
	data = data[:limit]
	token, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return data, PageInfo{NextPageToken: token, HasMore: true}, nil
}
