package stackeffect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/arena"
	"forthvm/internal/stackeffect"
)

func TestAddLikeEffect(t *testing.T) {
	var a arena.Arena
	seg := arena.Range{Start: 0, End: 1000}
	sp := arena.Address(100)

	require.NoError(t, a.WriteU16(sp, 7, arena.Full()))
	require.NoError(t, a.WriteU16(sp+2, 35, arena.Full()))

	fx, err := stackeffect.Validate(&a, sp, seg, []int{stackeffect.Word16, stackeffect.Word16}, []int{stackeffect.Word16})
	require.NoError(t, err)

	top, err := fx.GetU16(0)
	require.NoError(t, err)
	next, err := fx.GetU16(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), top)
	assert.Equal(t, uint16(35), next)

	require.NoError(t, fx.SetU16(0, top+next))
	newSP := fx.Commit()
	assert.Equal(t, sp+2, newSP)

	v, err := a.ReadU16(newSP, arena.Full())
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)
}

func TestValidateFailsOnUnderflowWithoutMutation(t *testing.T) {
	var a arena.Arena
	seg := arena.Range{Start: 100, End: 200}

	// sp one past the segment end is an empty downward-growing stack.
	_, err := stackeffect.Validate(&a, 201, seg, []int{stackeffect.Word16}, nil)
	assert.Error(t, err, "popping from an empty stack must fail")
}

func TestPushOnlyEffect(t *testing.T) {
	var a arena.Arena
	seg := arena.Range{Start: 0, End: 1000}
	sp := arena.Address(100)

	fx, err := stackeffect.Validate(&a, sp, seg, nil, []int{stackeffect.Word32})
	require.NoError(t, err)
	require.NoError(t, fx.SetU32(0, 0xDEADBEEF))
	newSP := fx.Commit()
	assert.Equal(t, sp-4, newSP)

	v, err := a.ReadU32(newSP, arena.Full())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}
