package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareNumericCursors(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{name: "equal cursors", a: "12345", b: "12345", expected: 0},
		{name: "smaller first", a: "99", b: "100", expected: -1},
		{name: "larger first", a: "100", b: "99", expected: 1},
		{name: "empty sorts before any value", a: "", b: "1", expected: -1},
		{name: "both empty", a: "", b: "", expected: 0},
		{
			name:     "values beyond int64",
			a:        "92233720368547758080",
			b:        "92233720368547758079",
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp, err := compareNumericCursors(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cmp)
		})
	}
}

func TestCompareNumericCursorsRejectsGarbage(t *testing.T) {
	_, err := compareNumericCursors("abc", "100")
	assert.Error(t, err)
}

func TestMaxNumericCursor(t *testing.T) {
	t.Run("keeps the larger of two cursors", func(t *testing.T) {
		assert.Equal(t, "200", maxNumericCursor("200", "100"))
		assert.Equal(t, "200", maxNumericCursor("100", "200"))
	})

	t.Run("never moves backwards across repeated syncs", func(t *testing.T) {
		stored := ""
		for _, next := range []string{"10", "25", "20", "30", "30", "5"} {
			stored = maxNumericCursor(stored, next)
		}
		assert.Equal(t, "30", stored)
	})

	t.Run("falls back to the new value on unparseable input", func(t *testing.T) {
		assert.Equal(t, "opaque-next", maxNumericCursor("garbage", "opaque-next"))
	})
}

func TestIMAPCursorRoundTrip(t *testing.T) {
	cursor := imapCursor{
		"INBOX":  {UIDValidity: 7, LastSeenUID: 1042},
		"[Sent]": {UIDValidity: 3, LastSeenUID: 88},
	}

	encoded, err := cursor.String()
	require.NoError(t, err)

	parsed, err := parseIMAPCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, cursor, parsed)
}

func TestIMAPCursorMerge(t *testing.T) {
	t.Run("high-water mark only moves forward", func(t *testing.T) {
		stored := imapCursor{"INBOX": {UIDValidity: 7, LastSeenUID: 100}}
		next := imapCursor{"INBOX": {UIDValidity: 7, LastSeenUID: 90}}

		merged := stored.merge(next)
		assert.Equal(t, uint32(100), merged["INBOX"].LastSeenUID)
	})

	t.Run("uidvalidity change adopts the new generation", func(t *testing.T) {
		stored := imapCursor{"INBOX": {UIDValidity: 7, LastSeenUID: 100}}
		next := imapCursor{"INBOX": {UIDValidity: 8, LastSeenUID: 5}}

		merged := stored.merge(next)
		assert.Equal(t, uint32(8), merged["INBOX"].UIDValidity)
		assert.Equal(t, uint32(5), merged["INBOX"].LastSeenUID)
	})

	t.Run("new folders are added, existing folders survive", func(t *testing.T) {
		stored := imapCursor{"INBOX": {UIDValidity: 7, LastSeenUID: 100}}
		next := imapCursor{"[Archive]": {UIDValidity: 2, LastSeenUID: 10}}

		merged := stored.merge(next)
		assert.Len(t, merged, 2)
		assert.Equal(t, uint32(100), merged["INBOX"].LastSeenUID)
		assert.Equal(t, uint32(10), merged["[Archive]"].LastSeenUID)
	})
}

func TestParseIMAPCursorRejectsGarbage(t *testing.T) {
	_, err := parseIMAPCursor("not json at all")
	assert.Error(t, err)
}
