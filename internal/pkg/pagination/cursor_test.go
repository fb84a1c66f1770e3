package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

func TestCursor_EncodeDecode(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	original := SpanCursor(ts, "span-1", "trace-1")

	decoded, err := DecodeShape(original.Encode(), ShapeSpan)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, decoded.Timestamp.Equal(ts))
	assert.Equal(t, "span-1", decoded.ID)
	assert.Equal(t, "trace-1", decoded.TraceID)
}

func TestDecodeCursor_Empty(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	t.Run("bad encoding", func(t *testing.T) {
		_, err := DecodeCursor("%%%")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := DecodeCursor("bm90LWpzb24")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestCursor_Validate(t *testing.T) {
	ts := time.Now()

	tests := []struct {
		name   string
		cursor Cursor
		shape  Shape
		valid  bool
	}{
		{"span ok", SpanCursor(ts, "s", "t"), ShapeSpan, true},
		{"span missing trace", Cursor{Timestamp: ts, ID: "s"}, ShapeSpan, false},
		{"span missing timestamp", Cursor{ID: "s", TraceID: "t"}, ShapeSpan, false},
		{"trace ok", TraceCursor("t", "s"), ShapeTrace, true},
		{"trace missing trace", Cursor{ID: "s"}, ShapeTrace, false},
		{"result ok", ResultCursor(ts, 42), ShapeResult, true},
		{"result non numeric", Cursor{Timestamp: ts, ID: "abc"}, ShapeResult, false},
		{"conversation ok", ConversationCursor(ts, "0b8a3c7e-5f1d-4f57-9a7c-2f3e4d5c6b7a"), ShapeConversation, true},
		{"conversation non uuid id", ConversationCursor(ts, "log-1"), ShapeConversation, false},
		{"span key as conversation", SpanCursor(ts, "not-a-uuid", "t1"), ShapeConversation, false},
		{"missing id", Cursor{Timestamp: ts}, ShapeConversation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cursor.Validate(tt.shape)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.IsValidation(err))
			}
		})
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("timestamp dominates", func(t *testing.T) {
		a := SpanCursor(ts, "z", "z")
		b := SpanCursor(ts.Add(time.Millisecond), "a", "a")
		assert.Equal(t, -1, Compare(ShapeSpan, a, b))
	})

	t.Run("span id breaks timestamp ties", func(t *testing.T) {
		a := SpanCursor(ts, "a", "t")
		b := SpanCursor(ts, "b", "t")
		assert.Equal(t, -1, Compare(ShapeSpan, a, b))
	})

	t.Run("trace id breaks colliding span ids", func(t *testing.T) {
		a := SpanCursor(ts, "same", "trace-a")
		b := SpanCursor(ts, "same", "trace-b")
		assert.Equal(t, -1, Compare(ShapeSpan, a, b))
		assert.Equal(t, 0, Compare(ShapeSpan, a, a))
	})

	t.Run("result ids compare numerically", func(t *testing.T) {
		a := ResultCursor(ts, 9)
		b := ResultCursor(ts, 10)
		assert.Equal(t, -1, Compare(ShapeResult, a, b))
	})
}

func TestBefore_IsExclusive(t *testing.T) {
	ts := time.Now()
	cursor := SpanCursor(ts, "s2", "t")

	assert.False(t, Before(ShapeSpan, cursor, &cursor))
	assert.True(t, Before(ShapeSpan, SpanCursor(ts, "s1", "t"), &cursor))
	assert.False(t, Before(ShapeSpan, SpanCursor(ts, "s3", "t"), &cursor))
	assert.True(t, Before(ShapeSpan, cursor, nil))
}
