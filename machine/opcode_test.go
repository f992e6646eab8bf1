package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthvm/internal/vmerr"
	"forthvm/machine"
)

func TestExecuteAtIllegalOpcodeLeavesIPUnchanged(t *testing.T) {
	m := machine.New()
	ip := m.Mem.Here()
	require.NoError(t, m.Mem.DictWriteU8(0xFF))

	next, err := m.ExecuteAt(ip)
	require.Error(t, err)
	assert.IsType(t, vmerr.IllegalOpCode{}, err)
	assert.Equal(t, ip, next)

	illegal, ok := err.(vmerr.IllegalOpCode)
	require.True(t, ok)
	assert.Equal(t, ip, illegal.Address)
	assert.Equal(t, byte(0xFF), illegal.OpCode)
}
