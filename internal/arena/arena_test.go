package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/arena"
)

func TestValidateAccess(t *testing.T) {
	seg := arena.Range{Start: 10, End: 20}

	for _, tc := range []struct {
		name   string
		access arena.Range
		ok     bool
	}{
		{"inside", arena.Range{10, 20}, true},
		{"subrange", arena.Range{12, 14}, true},
		{"below", arena.Range{9, 15}, false},
		{"above", arena.Range{15, 21}, false},
		{"inverted", arena.Range{15, 12}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := arena.ValidateAccess(tc.access, seg)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestReadWriteU8(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	require.NoError(t, a.WriteU8(100, 0x42, seg))
	v, err := a.ReadU8(100, seg)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), v)

	_, err = a.ReadU8(100, arena.Range{0, 50})
	assert.Error(t, err)
}

func TestReadWriteU16LittleEndian(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	require.NoError(t, a.WriteU16(200, 0xBEEF, seg))

	lo, err := a.ReadU8(200, seg)
	require.NoError(t, err)
	hi, err := a.ReadU8(201, seg)
	require.NoError(t, err)
	assert.Equal(t, byte(0xEF), lo)
	assert.Equal(t, byte(0xBE), hi)

	v, err := a.ReadU16(200, seg)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v)
}

func TestReadWriteU32Unaligned(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	require.NoError(t, a.WriteU32(301, 0xDEADBEEF, seg))
	v, err := a.ReadU32(301, seg)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestWriteU16BoundaryFailureLeavesNoTrace(t *testing.T) {
	var a arena.Arena
	seg := arena.Range{Start: 0, End: 10}

	err := a.WriteU16(10, 0xFFFF, seg)
	assert.Error(t, err, "straddling the segment end must fail")

	v, err := a.ReadU8(10, arena.Full())
	require.NoError(t, err)
	assert.Equal(t, byte(0), v, "failed write must not mutate memory")
}

func TestSliceRoundTrip(t *testing.T) {
	var a arena.Arena
	seg := arena.Full()

	buf, err := a.SliceMut(0, 4, seg)
	require.NoError(t, err)
	copy(buf, []byte{1, 2, 3, 4})

	got, err := a.Slice(0, 4, seg)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestSliceZeroLength(t *testing.T) {
	var a arena.Arena
	got, err := a.Slice(5000, 0, arena.Full())
	assert.NoError(t, err)
	assert.Nil(t, got)
}
