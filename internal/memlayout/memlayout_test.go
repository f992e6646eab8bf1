package memlayout_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/arena"
	"forthvm/internal/memlayout"
)

type stringInput struct{ r *strings.Reader }

func (si stringInput) ReadByte() (byte, bool, error) {
	b, err := si.r.ReadByte()
	if err == io.EOF {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return b, true, nil
}

func TestDictWriteAdvancesHERE(t *testing.T) {
	m := memlayout.New()
	require.NoError(t, m.DictWriteU8(1))
	require.NoError(t, m.DictWriteU16(2))
	require.NoError(t, m.DictWriteU32(3))
	assert.Equal(t, uint16(7), uint16(m.Here()))
}

func TestDataStackFIFOBySize(t *testing.T) {
	m := memlayout.New()
	require.NoError(t, m.DataPushU16(0x1234))
	require.NoError(t, m.DataPushU32(0xCAFEBABE))

	v32, err := m.DataPopU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), v32)

	v16, err := m.DataPopU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v16)
}

func TestCallStackRoundTrip(t *testing.T) {
	m := memlayout.New()
	require.NoError(t, m.CallPushU16(42))
	peek, err := m.CallGetU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(42), peek)

	v, err := m.CallPopU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)
	assert.True(t, m.CallStackEmpty())
}

func TestForwardReference(t *testing.T) {
	m := memlayout.New()
	require.NoError(t, m.DictWriteOpcode(7))
	slot, err := m.CreateForwardReference()
	require.NoError(t, err)
	require.NoError(t, m.DictWriteOpcode(0))

	require.NoError(t, m.ResolveForwardReference(slot))

	v, err := m.Arena.ReadU16(slot, m.DictSegment())
	require.NoError(t, err)
	assert.Equal(t, m.Here(), v)
}

func TestReadInputWordSkipsWhitespace(t *testing.T) {
	m := memlayout.New()
	addr, ok, err := m.ReadInputWord(stringInput{strings.NewReader("  DUP SWAP")})
	require.NoError(t, err)
	require.True(t, ok)

	length, err := m.Arena.ReadU8(addr, arena.Full())
	require.NoError(t, err)
	content, err := m.Arena.Slice(addr+1, uint16(length), arena.Full())
	require.NoError(t, err)
	assert.Equal(t, "DUP", string(content))
}

func TestReadInputWordEOF(t *testing.T) {
	m := memlayout.New()
	_, ok, err := m.ReadInputWord(stringInput{strings.NewReader("   ")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPNOBuildsDigitsRightToLeft(t *testing.T) {
	m := memlayout.New()
	require.NoError(t, m.ClearPNOBuffer())
	require.NoError(t, m.PNOPut('6'))
	require.NoError(t, m.PNOPut('6'))
	require.NoError(t, m.PNOPut('6'))
	require.NoError(t, m.PNOPut('0'))

	addr, n, err := m.PNOFinish()
	require.NoError(t, err)
	require.Equal(t, byte(4), n)

	content, err := m.Arena.Slice(addr, uint16(n), arena.Full())
	require.NoError(t, err)
	assert.Equal(t, "0666", string(content))
}

func TestStateAndBaseAndCurrentWord(t *testing.T) {
	m := memlayout.New()

	s, err := m.GetState()
	require.NoError(t, err)
	assert.Equal(t, memlayout.Interpreter, s)

	require.NoError(t, m.SetState(memlayout.Compiler))
	s, err = m.GetState()
	require.NoError(t, err)
	assert.Equal(t, memlayout.Compiler, s)

	base, err := m.GetBase()
	require.NoError(t, err)
	assert.Equal(t, uint16(10), base)

	_, ok, err := m.GetCurrentWord()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.DictWriteOpcode(0))
	require.NoError(t, m.SetCurrentWord(0, true))
	addr, ok, err := m.GetCurrentWord()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(0), uint16(addr))
}

func TestDataStackOverflowLeavesSPUnchanged(t *testing.T) {
	// A large call-stack depth budget pins stacksBorder right at the
	// dictionary, leaving almost no room for the data stack, so overflow
	// is reachable in one push.
	m := memlayout.NewWithCallDepth(32383)
	require.NoError(t, m.DataPushU16(1), "the sliver of room still available must accept one push")

	before := m.DataSP()
	err := m.DataPushU16(2)
	require.Error(t, err, "a second push must overflow into the dictionary")
	assert.Equal(t, before, m.DataSP(), "failed push must not move the stack pointer")
}
