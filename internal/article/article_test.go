package article_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/arena"
	"forthvm/internal/article"
	"forthvm/internal/sstring"
)

func writeArticle(t *testing.T, a *arena.Arena, header, prev arena.Address, name string, body []byte) arena.Address {
	t.Helper()
	seg := arena.Full()
	require.NoError(t, a.WriteU16(header, prev, seg))
	w := sstring.NewWriter(a, header+2, seg, 255)
	require.NoError(t, w.AppendSlice([]byte(name)))
	nameView, err := w.Finish()
	require.NoError(t, err)
	bodyAddr := nameView.ContentAddress() + arena.Address(nameView.Length())
	for i, b := range body {
		require.NoError(t, a.WriteU8(bodyAddr+arena.Address(i), b, seg))
	}
	return bodyAddr
}

func TestArticleChainAndLookup(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	writeArticle(t, &a, 0, 0xFFFF, "DUP", []byte{1})
	bodyAddr := writeArticle(t, &a, 10, 0, "SWAP", []byte{2})

	second, err := article.New(&a, 10, seg)
	require.NoError(t, err)
	assert.Equal(t, "SWAP", string(second.Name()))
	assert.Equal(t, bodyAddr, second.BodyAddress())

	first, ok, err := second.Previous(&a, seg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DUP", string(first.Name()))

	_, ok, err = first.Previous(&a, seg)
	require.NoError(t, err)
	assert.False(t, ok, "0xFFFF prev terminates the chain")

	found, ok, err := article.Lookup(&a, 10, true, seg, []byte("DUP"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DUP", string(found.Name()))

	_, ok, err = article.Lookup(&a, 10, true, seg, []byte("NOPE"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupEmptyDictionary(t *testing.T) {
	var a arena.Arena
	_, ok, err := article.Lookup(&a, 0, false, arena.Full(), []byte("X"))
	require.NoError(t, err)
	assert.False(t, ok)
}
