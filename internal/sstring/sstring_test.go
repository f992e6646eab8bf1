package sstring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/arena"
	"forthvm/internal/sstring"
)

func TestWriterThenView(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	w := sstring.NewWriter(&a, 100, seg, 10)
	require.NoError(t, w.AppendSlice([]byte("hi")))
	v, err := w.Finish()
	require.NoError(t, err)

	assert.Equal(t, byte(2), v.Length())
	assert.Equal(t, arena.Address(101), v.ContentAddress())
	assert.Equal(t, []byte("hi"), v.AsBytes())
	assert.Equal(t, arena.Range{Start: 100, End: 102}, v.FullRange())
}

func TestEmptyString(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	w := sstring.NewWriter(&a, 0, seg, 255)
	v, err := w.Finish()
	require.NoError(t, err)

	assert.Equal(t, byte(0), v.Length())
	assert.Empty(t, v.AsBytes())
	assert.Equal(t, arena.Range{Start: 0, End: 0}, v.FullRange())
}

func TestAppendBeyondCapFails(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	w := sstring.NewWriter(&a, 0, seg, 1)
	require.NoError(t, w.AppendU8('a'))
	assert.Error(t, w.AppendU8('b'))
}

func TestViewOutOfSegmentFails(t *testing.T) {
	var a arena.Arena
	require.NoError(t, a.WriteU8(10, 5, arena.Full()))

	_, err := sstring.New(&a, 10, arena.Range{Start: 0, End: 12})
	assert.Error(t, err, "content range [11,15] exceeds the safe segment")
}
