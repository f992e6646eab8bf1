// Package memlayout implements MachineMemory: the partition of the arena
// into dictionary, data stack, call stack, and reserved-variable region,
// and the bounds-checked primitives built on top of it.
package memlayout

import (
	"forthvm/internal/arena"
	"forthvm/internal/article"
	"forthvm/internal/vmerr"
)

// Reserved-variable offsets within the reserved region.
const (
	OffHERE        arena.Address = 0
	OffCurrentDef  arena.Address = 2
	OffState       arena.Address = 4
	OffBase        arena.Address = 10
	OffWordBuffer  arena.Address = 256
	OffPad         arena.Address = 512
	OffPNOBuffer   arena.Address = 640
	ReservedMax    arena.Address = 767
	ReservedSize                 = uint32(ReservedMax) + 1

	WordBufferCap = 255 // sized-string length byte caps content at 255 anyway
	PadCap        = 128
	PNOBufferCap  = 128

	// NoDef is the CURRENT_DEF / last-article sentinel meaning "none".
	NoDef arena.Address = 0xFFFF

	// DefaultMaxCallDepth is the default call-stack depth budget.
	DefaultMaxCallDepth = 128
)

// Machine interpreter/compiler state values, stored in the STATE reserved
// variable (zero is interpreter, any nonzero is compiler; State is
// canonicalized to 1).
const (
	Interpreter = 0
	Compiler    = 1
)

// Input is the byte source MachineMemory reads words and delimited
// strings from.
type Input interface {
	// ReadByte returns the next input byte. ok is false with a nil err at
	// end of input.
	ReadByte() (b byte, ok bool, err error)
}

type rawArena interface {
	ReadU8(addr arena.Address, segment arena.Range) (byte, error)
	WriteU8(addr arena.Address, v byte, segment arena.Range) error
	ReadU16(addr arena.Address, segment arena.Range) (uint16, error)
	WriteU16(addr arena.Address, v uint16, segment arena.Range) error
	ReadU32(addr arena.Address, segment arena.Range) (uint32, error)
	WriteU32(addr arena.Address, v uint32, segment arena.Range) error
	Slice(addr arena.Address, n uint16, segment arena.Range) ([]byte, error)
	SliceMut(addr arena.Address, n uint16, segment arena.Range) ([]byte, error)
}

// MachineMemory places the dictionary, data stack, call stack, and
// reserved-variable region over a fixed arena, and exposes every
// bounds-checked primitive the rest of the system needs.
type MachineMemory struct {
	Arena *arena.Arena

	reservedBase arena.Address
	stacksBorder arena.Address
	maxCallDepth int

	dataSP arena.Address
	callSP arena.Address

	lastArticle    arena.Address
	hasLastArticle bool
}

// New constructs a MachineMemory with the default call-stack depth budget
// over a fresh arena, and resets it to its initial state.
func New() *MachineMemory {
	return NewWithCallDepth(DefaultMaxCallDepth)
}

// NewWithCallDepth constructs a MachineMemory whose call stack is sized for
// maxCallDepth 16-bit return addresses (2 bytes each).
func NewWithCallDepth(maxCallDepth int) *MachineMemory {
	var a arena.Arena
	m := &MachineMemory{
		Arena:        &a,
		reservedBase: arena.Address(int(arena.Size) - int(ReservedSize)),
		maxCallDepth: maxCallDepth,
	}
	m.stacksBorder = m.reservedBase - arena.Address(2*maxCallDepth)
	m.Reset()
	return m
}

// Reset clears both stacks and the last-article pointer, and reinstates
// the reserved variables to their initial values. Dictionary bytes below
// HERE are left untouched but become unreachable once HERE is rewound.
func (m *MachineMemory) Reset() {
	m.dataSP = m.stacksBorder
	m.callSP = m.reservedBase
	m.hasLastArticle = false

	full := arena.Full()
	_ = m.Arena.WriteU16(m.reservedAddr(OffHERE), 0, full)
	_ = m.Arena.WriteU16(m.reservedAddr(OffCurrentDef), NoDef, full)
	_ = m.Arena.WriteU16(m.reservedAddr(OffState), Interpreter, full)
	_ = m.Arena.WriteU16(m.reservedAddr(OffBase), 10, full)
	_ = m.Arena.WriteU8(m.reservedAddr(OffWordBuffer), 0, full)
	_ = m.Arena.WriteU8(m.reservedAddr(OffPNOBuffer), 0, full)
}

func (m *MachineMemory) reservedAddr(off arena.Address) arena.Address { return m.reservedBase + off }

// ReservedBase is the address of the first reserved-region byte.
func (m *MachineMemory) ReservedBase() arena.Address { return m.reservedBase }

// StacksBorder is the address separating the data stack (below) from the
// call stack (at and above).
func (m *MachineMemory) StacksBorder() arena.Address { return m.stacksBorder }

// --- segments ---

// Here returns the current dictionary append pointer.
func (m *MachineMemory) Here() arena.Address {
	v, _ := m.Arena.ReadU16(m.reservedAddr(OffHERE), arena.Full())
	return arena.Address(v)
}

func (m *MachineMemory) setHere(v arena.Address) error {
	return m.Arena.WriteU16(m.reservedAddr(OffHERE), v, arena.Full())
}

// DictSegment is the currently valid segment for dictionary writes.
func (m *MachineMemory) DictSegment() arena.Range {
	return arena.Range{Start: 0, End: m.dataSP - 1}
}

// DataStackSegment is the currently valid segment for data-stack
// push/pop.
func (m *MachineMemory) DataStackSegment() arena.Range {
	return arena.Range{Start: m.Here(), End: m.stacksBorder - 1}
}

// CallStackSegment is the currently valid segment for call-stack
// push/pop.
func (m *MachineMemory) CallStackSegment() arena.Range {
	return arena.Range{Start: m.stacksBorder, End: m.reservedBase - 1}
}

// DataSP returns the current data-stack pointer.
func (m *MachineMemory) DataSP() arena.Address { return m.dataSP }

// CallSP returns the current call-stack pointer.
func (m *MachineMemory) CallSP() arena.Address { return m.callSP }

// --- dictionary writes ---

// DictWriteU8 appends one byte at HERE, advancing it.
func (m *MachineMemory) DictWriteU8(v byte) error {
	h := m.Here()
	seg := m.DictSegment()
	if err := m.Arena.WriteU8(h, v, seg); err != nil {
		return err
	}
	return m.setHere(h + 1)
}

// DictWriteU16 appends a little-endian u16 at HERE, advancing it by 2.
func (m *MachineMemory) DictWriteU16(v uint16) error {
	h := m.Here()
	seg := m.DictSegment()
	if err := m.Arena.WriteU16(h, v, seg); err != nil {
		return err
	}
	return m.setHere(h + 2)
}

// DictWriteU32 appends a little-endian u32 at HERE, advancing it by 4.
func (m *MachineMemory) DictWriteU32(v uint32) error {
	h := m.Here()
	seg := m.DictSegment()
	if err := m.Arena.WriteU32(h, v, seg); err != nil {
		return err
	}
	return m.setHere(h + 4)
}

// DictWriteOpcode appends one opcode byte at HERE.
func (m *MachineMemory) DictWriteOpcode(op byte) error { return m.DictWriteU8(op) }

// DictWriteSizedString copies the sized string at srcAddr (validated
// against the whole arena, since it may be the word buffer or input pad,
// outside the dictionary) into the dictionary at HERE.
func (m *MachineMemory) DictWriteSizedString(srcAddr arena.Address) error {
	length, err := m.Arena.ReadU8(srcAddr, arena.Full())
	if err != nil {
		return err
	}
	if err := m.DictWriteU8(length); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	content, err := m.Arena.Slice(srcAddr+1, uint16(length), arena.Full())
	if err != nil {
		return err
	}
	for _, b := range content {
		if err := m.DictWriteU8(b); err != nil {
			return err
		}
	}
	return nil
}

// --- data stack ---

// DataPushU16 pushes v onto the data stack.
func (m *MachineMemory) DataPushU16(v uint16) error {
	seg := m.DataStackSegment()
	sp := m.dataSP - 2
	if err := m.Arena.WriteU16(sp, v, seg); err != nil {
		return err
	}
	m.dataSP = sp
	return nil
}

// DataPushU32 pushes v onto the data stack.
func (m *MachineMemory) DataPushU32(v uint32) error {
	seg := m.DataStackSegment()
	sp := m.dataSP - 4
	if err := m.Arena.WriteU32(sp, v, seg); err != nil {
		return err
	}
	m.dataSP = sp
	return nil
}

// DataPopU16 pops the top 16-bit cell from the data stack.
func (m *MachineMemory) DataPopU16() (uint16, error) {
	seg := m.DataStackSegment()
	v, err := m.Arena.ReadU16(m.dataSP, seg)
	if err != nil {
		return 0, err
	}
	m.dataSP += 2
	return v, nil
}

// DataPopU32 pops the top 32-bit double-cell from the data stack.
func (m *MachineMemory) DataPopU32() (uint32, error) {
	seg := m.DataStackSegment()
	v, err := m.Arena.ReadU32(m.dataSP, seg)
	if err != nil {
		return 0, err
	}
	m.dataSP += 4
	return v, nil
}

// SetDataSP installs a new data-stack pointer, e.g. after committing a
// stackeffect.Effect.
func (m *MachineMemory) SetDataSP(sp arena.Address) { m.dataSP = sp }

// --- call stack ---

// CallPushU16 pushes v onto the call stack.
func (m *MachineMemory) CallPushU16(v uint16) error {
	seg := m.CallStackSegment()
	sp := m.callSP - 2
	if err := m.Arena.WriteU16(sp, v, seg); err != nil {
		return err
	}
	m.callSP = sp
	return nil
}

// CallPushU32 pushes v onto the call stack.
func (m *MachineMemory) CallPushU32(v uint32) error {
	seg := m.CallStackSegment()
	sp := m.callSP - 4
	if err := m.Arena.WriteU32(sp, v, seg); err != nil {
		return err
	}
	m.callSP = sp
	return nil
}

// CallPopU16 pops the top of the call stack.
func (m *MachineMemory) CallPopU16() (uint16, error) {
	seg := m.CallStackSegment()
	v, err := m.Arena.ReadU16(m.callSP, seg)
	if err != nil {
		return 0, err
	}
	m.callSP += 2
	return v, nil
}

// CallPopU32 pops the top of the call stack.
func (m *MachineMemory) CallPopU32() (uint32, error) {
	seg := m.CallStackSegment()
	v, err := m.Arena.ReadU32(m.callSP, seg)
	if err != nil {
		return 0, err
	}
	m.callSP += 4
	return v, nil
}

// CallGetU16 peeks the top of the call stack without popping it.
func (m *MachineMemory) CallGetU16() (uint16, error) {
	return m.Arena.ReadU16(m.callSP, m.CallStackSegment())
}

// CallGetU32 peeks the top of the call stack without popping it.
func (m *MachineMemory) CallGetU32() (uint32, error) {
	return m.Arena.ReadU32(m.callSP, m.CallStackSegment())
}

// CallStackEmpty reports whether the call stack currently holds nothing.
func (m *MachineMemory) CallStackEmpty() bool { return m.callSP >= m.reservedBase }

// --- forward references ---

// placeholder is the bit pattern written at a freshly created forward
// reference, before its target is known.
const placeholder uint16 = 0xDEAD

// CreateForwardReference writes a placeholder at HERE, advances HERE by
// 2, and returns the slot's address.
func (m *MachineMemory) CreateForwardReference() (arena.Address, error) {
	slot := m.Here()
	if err := m.DictWriteU16(placeholder); err != nil {
		return 0, err
	}
	return slot, nil
}

// ResolveForwardReference writes the current HERE into the slot at addr,
// after validating that addr lies within the used-dictionary segment.
func (m *MachineMemory) ResolveForwardReference(addr arena.Address) error {
	seg := arena.Range{Start: 0, End: m.Here() - 1}
	return m.Arena.WriteU16(addr, m.Here(), seg)
}

// --- input word ---

// ReadInputWord skips leading whitespace from in, then reads the next
// non-whitespace run into the reserved word buffer as a sized string. It
// returns (addr, true, nil) for a word, (0, false, nil) at EOF before any
// non-whitespace byte is seen, and a vmerr.InputError on I/O or capacity
// failure.
func (m *MachineMemory) ReadInputWord(in Input) (arena.Address, bool, error) {
	for {
		b, ok, err := in.ReadByte()
		if err != nil {
			return 0, false, vmerr.InputError{Kind: vmerr.StdIO, Err: err}
		}
		if !ok {
			return 0, false, nil
		}
		if !isSpace(b) {
			return m.readWordBody(in, b)
		}
	}
}

func (m *MachineMemory) readWordBody(in Input, first byte) (arena.Address, bool, error) {
	bufAddr := m.reservedAddr(OffWordBuffer)
	w := newWriterAt(m.Arena, bufAddr, arena.Full(), WordBufferCap)
	if err := w.appendOrOverflow(first); err != nil {
		return 0, false, err
	}
	for {
		b, ok, err := in.ReadByte()
		if err != nil {
			return 0, false, vmerr.InputError{Kind: vmerr.StdIO, Err: err}
		}
		if !ok || isSpace(b) {
			break
		}
		if err := w.appendOrOverflow(b); err != nil {
			return 0, false, err
		}
	}
	if err := w.finish(); err != nil {
		return 0, false, err
	}
	return bufAddr, true, nil
}

// ReadDelimited reads bytes from in up to (and discarding) the next
// occurrence of delim, writing them to dst as a sized string capped at
// maxLen. It fails with vmerr.ErrUnexpectedInputEOF if delim is never
// seen.
func (m *MachineMemory) ReadDelimited(in Input, delim byte, dst arena.Address, maxLen byte) error {
	w := newWriterAt(m.Arena, dst, arena.Full(), maxLen)
	for {
		b, ok, err := in.ReadByte()
		if err != nil {
			return vmerr.InputError{Kind: vmerr.StdIO, Err: err}
		}
		if !ok {
			return vmerr.ErrUnexpectedInputEOF
		}
		if b == delim {
			return w.finish()
		}
		if err := w.appendOrOverflow(b); err != nil {
			return err
		}
	}
}

// SkipComment discards input bytes up to and including the next close
// paren, failing with vmerr.ErrUnexpectedInputEOF if none is found.
func (m *MachineMemory) SkipComment(in Input) error {
	for {
		b, ok, err := in.ReadByte()
		if err != nil {
			return vmerr.InputError{Kind: vmerr.StdIO, Err: err}
		}
		if !ok {
			return vmerr.ErrUnexpectedInputEOF
		}
		if b == ')' {
			return nil
		}
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// small append-or-overflow helper shared by ReadInputWord/ReadDelimited;
// deliberately not sstring.Writer, since overflow here must report
// vmerr.BufferOverflow rather than a bare memory access error.
type wordWriter struct {
	arena  rawArena
	addr   arena.Address
	seg    arena.Range
	maxLen byte
	n      byte
}

func newWriterAt(a rawArena, addr arena.Address, seg arena.Range, maxLen byte) wordWriter {
	return wordWriter{arena: a, addr: addr, seg: seg, maxLen: maxLen}
}

func (w *wordWriter) appendOrOverflow(b byte) error {
	if w.n >= w.maxLen {
		return vmerr.InputError{Kind: vmerr.BufferOverflow}
	}
	if err := w.arena.WriteU8(w.addr+1+arena.Address(w.n), b, w.seg); err != nil {
		return err
	}
	w.n++
	return nil
}

func (w *wordWriter) finish() error {
	return w.arena.WriteU8(w.addr, w.n, w.seg)
}

// --- article lookup ---

// LastArticle returns the header address of the most recently written
// article, if any.
func (m *MachineMemory) LastArticle() (arena.Address, bool) { return m.lastArticle, m.hasLastArticle }

// SetLastArticle records addr as the most recently written article.
func (m *MachineMemory) SetLastArticle(addr arena.Address) {
	m.lastArticle, m.hasLastArticle = addr, true
}

// LookupArticle finds the most recent article named name.
func (m *MachineMemory) LookupArticle(name []byte) (article.Article, bool, error) {
	return article.Lookup(m.Arena, m.lastArticle, m.hasLastArticle, arena.Full(), name)
}

// Article re-validates and returns the article headed at addr.
func (m *MachineMemory) Article(addr arena.Address) (article.Article, error) {
	return article.New(m.Arena, addr, arena.Full())
}

// --- PNO (pictured numeric output) buffer ---

// ClearPNOBuffer resets the PNO buffer to empty.
func (m *MachineMemory) ClearPNOBuffer() error {
	return m.Arena.WriteU8(m.reservedAddr(OffPNOBuffer), 0, arena.Full())
}

// PNOPut prepends one byte to the PNO buffer, writing backward from its
// end and advancing its length.
func (m *MachineMemory) PNOPut(b byte) error {
	base := m.reservedAddr(OffPNOBuffer)
	n, err := m.Arena.ReadU8(base, arena.Full())
	if err != nil {
		return err
	}
	if int(n) >= PNOBufferCap-1 {
		return vmerr.InputError{Kind: vmerr.BufferOverflow}
	}
	// content occupies the last n bytes of the buffer; writing backward
	// from the end means the new byte lands at bufferEnd-n-1.
	end := base + PNOBufferCap
	pos := end - arena.Address(n) - 1
	if err := m.Arena.WriteU8(pos, b, arena.Full()); err != nil {
		return err
	}
	return m.Arena.WriteU8(base, n+1, arena.Full())
}

// PNOFinish returns the address of the first content byte and the
// buffer's current length.
func (m *MachineMemory) PNOFinish() (arena.Address, byte, error) {
	base := m.reservedAddr(OffPNOBuffer)
	n, err := m.Arena.ReadU8(base, arena.Full())
	if err != nil {
		return 0, 0, err
	}
	end := base + PNOBufferCap
	return end - arena.Address(n), n, nil
}

// --- state / base / current word ---

// GetState returns the current interpreter/compiler state.
func (m *MachineMemory) GetState() (int, error) {
	v, err := m.Arena.ReadU16(m.reservedAddr(OffState), arena.Full())
	return int(v), err
}

// SetState sets the interpreter/compiler state.
func (m *MachineMemory) SetState(state int) error {
	v := uint16(Interpreter)
	if state != Interpreter {
		v = Compiler
	}
	return m.Arena.WriteU16(m.reservedAddr(OffState), v, arena.Full())
}

// GetBase returns the current numeric-literal radix.
func (m *MachineMemory) GetBase() (uint16, error) {
	return m.Arena.ReadU16(m.reservedAddr(OffBase), arena.Full())
}

// SetBase sets the current numeric-literal radix.
func (m *MachineMemory) SetBase(base uint16) error {
	return m.Arena.WriteU16(m.reservedAddr(OffBase), base, arena.Full())
}

// GetCurrentWord returns the header address of the colon definition
// presently being compiled, if any. A stored value that is NoDef or >=
// HERE is treated as "none".
func (m *MachineMemory) GetCurrentWord() (arena.Address, bool, error) {
	v, err := m.Arena.ReadU16(m.reservedAddr(OffCurrentDef), arena.Full())
	if err != nil {
		return 0, false, err
	}
	addr := arena.Address(v)
	if addr == NoDef || addr >= m.Here() {
		return 0, false, nil
	}
	return addr, true, nil
}

// SetCurrentWord records addr as the colon definition presently being
// compiled, or clears it when ok is false.
func (m *MachineMemory) SetCurrentWord(addr arena.Address, ok bool) error {
	v := uint16(NoDef)
	if ok {
		v = uint16(addr)
	}
	return m.Arena.WriteU16(m.reservedAddr(OffCurrentDef), v, arena.Full())
}

// PadAddress is the address of the scratch PAD region.
func (m *MachineMemory) PadAddress() arena.Address { return m.reservedAddr(OffPad) }

// BaseAddress is the address of the BASE variable, for the built-in word
// of the same name (which pushes this address, not its value).
func (m *MachineMemory) BaseAddress() arena.Address { return m.reservedAddr(OffBase) }

// StateAddress is the address of the STATE variable, for the built-in
// word of the same name.
func (m *MachineMemory) StateAddress() arena.Address { return m.reservedAddr(OffState) }

// WordBufferAddress is the address of the WORD_BUFFER sized string.
func (m *MachineMemory) WordBufferAddress() arena.Address { return m.reservedAddr(OffWordBuffer) }
