package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 10, NormalizeLimit(10))
	require.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(cursor))
	require.NoError(t, err)
	require.True(t, parsed.CreatedAt.Equal(cursor.CreatedAt))
	require.Equal(t, cursor.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	parsed, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, parsed)

	_, err = ParseCursor("not-base64!")
	require.Error(t, err)

	_, err = ParseCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	require.Error(t, err)
}

func TestBuildPage(t *testing.T) {
	type row struct {
		at time.Time
		id uuid.UUID
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{at: base.Add(3 * time.Minute), id: uuid.New()},
		{at: base.Add(2 * time.Minute), id: uuid.New()},
		{at: base.Add(time.Minute), id: uuid.New()},
	}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := BuildPage(rows, 2, cursorOf)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, rows[1].id, next.ID)

	last := BuildPage(rows[2:], 2, cursorOf)
	require.Len(t, last.Items, 1)
	require.Empty(t, last.NextCursor)

	empty := BuildPage[row](nil, 2, cursorOf)
	require.NotNil(t, empty.Items)
	require.Empty(t, empty.Items)
}

func TestEncodeCursorIsURLSafe(t *testing.T) {
	for i := 0; i < 50; i++ {
		token := EncodeCursor(Cursor{CreatedAt: time.Now(), ID: uuid.New()})
		require.NotContains(t, token, "+")
		require.NotContains(t, token, "/")
		require.NotContains(t, token, "=")
	}

	_, err := ParseCursor(EncodeCursor(Cursor{}))
	require.ErrorContains(t, err, "missing position")
}
