package ioadapter_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/ioadapter"
)

func drain(t *testing.T, in ioadapter.Input) string {
	t.Helper()
	var out []byte
	for {
		b, ok, err := in.ReadByte()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, b)
	}
	return string(out)
}

func TestStringInput(t *testing.T) {
	in := ioadapter.NewStringInput("abc")
	assert.Equal(t, "abc", drain(t, in))
	assert.Equal(t, 3, in.Tell())
}

func TestQueueInputConcatenates(t *testing.T) {
	in := ioadapter.NewQueueInput(ioadapter.NewStringInput("ab"), ioadapter.NewStringInput("cd"))
	assert.Equal(t, "abcd", drain(t, in))
}

func TestWriterOutputPutCPutS(t *testing.T) {
	var buf bytes.Buffer
	out := ioadapter.NewWriterOutput(&buf)
	require.NoError(t, out.PutC('H'))
	require.NoError(t, out.PutS([]byte("i!")))
	require.NoError(t, out.Flush())
	assert.Equal(t, "Hi!", buf.String())
}
