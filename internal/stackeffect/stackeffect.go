// Package stackeffect implements the stack-effect harness: a transactional,
// typed view over a fragment of the data stack used to give every opcode
// all-or-nothing semantics. Bounds are validated once, up front, covering
// both the input slots about to be consumed and the output slots about to
// be produced. Setters write their output slots straight into the arena;
// only the stack pointer waits for Commit, so a caller that abandons an
// Effect before committing leaves the stack pointer untouched.
package stackeffect

import "forthvm/internal/arena"

type memory interface {
	ReadU16(addr arena.Address, segment arena.Range) (uint16, error)
	WriteU16(addr arena.Address, v uint16, segment arena.Range) error
	ReadU32(addr arena.Address, segment arena.Range) (uint32, error)
	WriteU32(addr arena.Address, v uint32, segment arena.Range) error
}

// Word16 and Word32 are the two slot sizes the harness understands, given
// in 16-bit words.
const (
	Word16 = 1
	Word32 = 2
)

// Effect is a validated handle over a data-stack fragment. in is declared
// topmost-slot-first at the current stack pointer; out is declared
// topmost-slot-first at the resulting stack pointer.
type Effect struct {
	mem     memory
	segment arena.Range
	spNow   arena.Address
	spAfter arena.Address

	inSizes    []int
	inOffsets  []int
	outSizes   []int
	outOffsets []int
}

// Validate computes the resulting stack pointer for popping the slots in
// in and pushing the slots in out, then checks that the full byte range
// touched by either the current or the resulting stack pointer lies within
// segment. It returns an error, without mutating anything, if the
// computation under/overflows the arena or fails that check.
func Validate(mem memory, spNow arena.Address, segment arena.Range, in, out []int) (*Effect, error) {
	consumed, inOffsets := layout(in)
	produced, outOffsets := layout(out)

	spAfterInt := int(spNow) + consumed - produced
	if spAfterInt < 0 || spAfterInt > 0xFFFF {
		return nil, arena.AccessError{
			Access:  arena.Range{Start: spNow, End: spNow},
			Segment: segment,
		}
	}
	spAfter := arena.Address(spAfterInt)

	start := int(spNow)
	if spAfterInt < start {
		start = spAfterInt
	}
	end := int(spNow) + consumed // == spAfterInt + produced
	access := arena.Range{Start: arena.Address(start), End: arena.Address(end - 1)}
	if end == start {
		access = arena.Range{Start: arena.Address(start), End: arena.Address(start)}
	}
	if err := arena.ValidateAccess(access, segment); err != nil {
		return nil, err
	}

	return &Effect{
		mem: mem, segment: segment,
		spNow: spNow, spAfter: spAfter,
		inSizes: in, inOffsets: inOffsets,
		outSizes: out, outOffsets: outOffsets,
	}, nil
}

func layout(sizes []int) (totalBytes int, offsets []int) {
	offsets = make([]int, len(sizes))
	off := 0
	for i, w := range sizes {
		offsets[i] = off
		off += w * 2
	}
	return off, offsets
}

// GetU16 reads input slot i (must have been declared Word16).
func (fx *Effect) GetU16(i int) (uint16, error) {
	return fx.mem.ReadU16(fx.spNow+arena.Address(fx.inOffsets[i]), fx.segment)
}

// GetU32 reads input slot i (must have been declared Word32).
func (fx *Effect) GetU32(i int) (uint32, error) {
	return fx.mem.ReadU32(fx.spNow+arena.Address(fx.inOffsets[i]), fx.segment)
}

// SetU16 writes output slot i (must have been declared Word16).
func (fx *Effect) SetU16(i int, v uint16) error {
	return fx.mem.WriteU16(fx.spAfter+arena.Address(fx.outOffsets[i]), v, fx.segment)
}

// SetU32 writes output slot i (must have been declared Word32).
func (fx *Effect) SetU32(i int, v uint32) error {
	return fx.mem.WriteU32(fx.spAfter+arena.Address(fx.outOffsets[i]), v, fx.segment)
}

// Commit returns the resulting stack pointer. The caller is responsible
// for assigning it to the live data-stack pointer; until it does, the
// stack pointer is unchanged (bytes already written by setters stay
// written).
func (fx *Effect) Commit() arena.Address { return fx.spAfter }
