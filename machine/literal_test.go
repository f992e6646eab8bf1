package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"forthvm/machine"
)

func TestParseLiteralDecimalDefault(t *testing.T) {
	v, ok := machine.ParseLiteral([]byte("42"), 10)
	assert.True(t, ok)
	assert.Equal(t, uint16(42), v)
}

func TestParseLiteralPrefixes(t *testing.T) {
	v, ok := machine.ParseLiteral([]byte("$FF"), 10)
	assert.True(t, ok)
	assert.Equal(t, uint16(0xFF), v)

	v, ok = machine.ParseLiteral([]byte("%101"), 10)
	assert.True(t, ok)
	assert.Equal(t, uint16(5), v)

	v, ok = machine.ParseLiteral([]byte("#42"), 16)
	assert.True(t, ok)
	assert.Equal(t, uint16(42), v)
}

func TestParseLiteralNegative(t *testing.T) {
	v, ok := machine.ParseLiteral([]byte("-3"), 10)
	assert.True(t, ok)
	assert.Equal(t, uint16(0xFFFD), v)

	_, ok = machine.ParseLiteral([]byte("-32769"), 10)
	assert.False(t, ok)
}

func TestParseLiteralLeadingPlus(t *testing.T) {
	v, ok := machine.ParseLiteral([]byte("+10050"), 10)
	assert.True(t, ok)
	assert.Equal(t, uint16(10050), v)

	_, ok = machine.ParseLiteral([]byte("+"), 10)
	assert.False(t, ok)
}

func TestParseLiteralLargeUnsignedBase36(t *testing.T) {
	v, ok := machine.ParseLiteral([]byte("zZz"), 36)
	assert.True(t, ok)
	assert.Equal(t, uint16(46655), v)
}

func TestParseLiteralRejectsEmptyAndBadDigits(t *testing.T) {
	_, ok := machine.ParseLiteral([]byte(""), 10)
	assert.False(t, ok)

	_, ok = machine.ParseLiteral([]byte("-"), 10)
	assert.False(t, ok)

	_, ok = machine.ParseLiteral([]byte("12G"), 10)
	assert.False(t, ok)

	_, ok = machine.ParseLiteral([]byte("2"), 2)
	assert.False(t, ok)
}
