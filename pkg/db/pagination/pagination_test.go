package pagination

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Size(0))
	assert.Equal(t, DefaultPageSize, Size(-4))
	assert.Equal(t, int32(20), Size(20))
	assert.Equal(t, MaxPageSize, Size(1000))
}

func TestCursorTokenIsURLSafe(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1859283747712458752", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)
	assert.False(t, strings.ContainsAny(token, "+/="))

	c, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1859283747712458752", c.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", "e30"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

type row struct{ id string }

func TestPage(t *testing.T) {
	rows := []*row{{"5"}, {"4"}, {"3"}}

	kept, info := Page(rows, 2, func(r *row) Cursor { return Cursor{ID: r.id} })
	require.Len(t, kept, 2)
	assert.True(t, info.HasMore)
	c, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "4", c.ID)

	kept, info = Page(rows, 3, func(r *row) Cursor { return Cursor{ID: r.id} })
	assert.Len(t, kept, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
