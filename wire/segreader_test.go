package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentReader_PeekAdvance(t *testing.T) {
	r := NewSegmentReader([]byte{1, 2}, []byte{3})

	require.Equal(t, 3, r.Remaining())
	require.Equal(t, int64(0), r.Position())

	b, ok := r.Peek()
	require.True(t, ok)
	require.Equal(t, byte(1), b)

	r.Advance(1)
	b, ok = r.Peek()
	require.True(t, ok)
	require.Equal(t, byte(2), b)
	require.Equal(t, int64(1), r.Position())

	// Advance across the segment boundary.
	r.Advance(2)
	require.Equal(t, int64(3), r.Position())
	require.Zero(t, r.Remaining())

	_, ok = r.Peek()
	require.False(t, ok)
}

func TestSegmentReader_UnreadSpan_StopsAtBoundary(t *testing.T) {
	r := NewSegmentReader([]byte{1, 2, 3}, []byte{4, 5})
	require.Equal(t, []byte{1, 2, 3}, r.UnreadSpan())

	r.Advance(2)
	require.Equal(t, []byte{3}, r.UnreadSpan())

	r.Advance(1)
	require.Equal(t, []byte{4, 5}, r.UnreadSpan())
}

func TestSegmentReader_TryCopyTo_Straddling(t *testing.T) {
	r := NewSegmentReader([]byte{1, 2}, []byte{3, 4}, []byte{5})
	r.Advance(1)

	dst := make([]byte, 4)
	require.True(t, r.TryCopyTo(dst))
	require.Equal(t, []byte{2, 3, 4, 5}, dst)

	// TryCopyTo does not advance the cursor.
	require.Equal(t, int64(1), r.Position())
	require.Equal(t, 4, r.Remaining())

	tooBig := make([]byte, 5)
	require.False(t, r.TryCopyTo(tooBig))
}

func TestSegmentReader_Append(t *testing.T) {
	r := NewSegmentReader([]byte{1})
	r.Advance(1)
	_, ok := r.Peek()
	require.False(t, ok)

	r.Append([]byte{2, 3})
	b, ok := r.Peek()
	require.True(t, ok)
	require.Equal(t, byte(2), b)
	require.Equal(t, 2, r.Remaining())
}

func TestSegmentReader_SkipsEmptySegments(t *testing.T) {
	r := NewSegmentReader([]byte{}, []byte{7}, nil, []byte{8})
	require.Equal(t, 2, r.Remaining())

	b, ok := r.Peek()
	require.True(t, ok)
	require.Equal(t, byte(7), b)
}

func TestSegmentReader_EndOfStream(t *testing.T) {
	r := NewSegmentReader([]byte{1})
	require.False(t, r.EndOfStream())
	r.MarkEndOfStream()
	require.True(t, r.EndOfStream())
}
