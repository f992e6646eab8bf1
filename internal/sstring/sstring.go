// Package sstring implements the VM's sized string: a one-byte length
// prefix followed by that many content bytes, living inside an arena.
package sstring

import "forthvm/internal/arena"

// MaxLen is the largest representable sized-string length (the length
// byte is 8 bits).
const MaxLen = 255

type memory interface {
	ReadU8(addr arena.Address, segment arena.Range) (byte, error)
	WriteU8(addr arena.Address, v byte, segment arena.Range) error
	Slice(addr arena.Address, n uint16, segment arena.Range) ([]byte, error)
	SliceMut(addr arena.Address, n uint16, segment arena.Range) ([]byte, error)
}

// View is a validated, read-only sized string at a fixed address.
type View struct {
	addr    arena.Address
	length  byte
	content []byte
}

// New validates the length byte at addr against segment, then (unless the
// string is empty) validates and reads its content range. Construction is
// two-phase: the header is checked first so that a corrupt length byte is
// reported before any content access is attempted.
func New(mem memory, addr arena.Address, segment arena.Range) (View, error) {
	length, err := mem.ReadU8(addr, segment)
	if err != nil {
		return View{}, err
	}
	v := View{addr: addr, length: length}
	if length == 0 {
		return v, nil
	}
	content, err := mem.Slice(addr+1, uint16(length), segment)
	if err != nil {
		return View{}, err
	}
	v.content = content
	return v, nil
}

// Length returns the string's byte length.
func (v View) Length() byte { return v.length }

// Address returns the address of the length byte.
func (v View) Address() arena.Address { return v.addr }

// ContentAddress returns the address of the first content byte.
func (v View) ContentAddress() arena.Address { return v.addr + 1 }

// FullRange is the inclusive byte range [addr, addr+1+length-1] occupied
// by the length byte and its content.
func (v View) FullRange() arena.Range {
	end := v.addr
	if v.length > 0 {
		end = v.addr + arena.Address(v.length)
	}
	return arena.Range{Start: v.addr, End: end}
}

// AsBytes returns the string's content bytes.
func (v View) AsBytes() []byte { return v.content }

// Writer incrementally builds a sized string at addr, capped at maxLen
// bytes of content (maxLen must be <= MaxLen). The length byte at addr is
// only committed on Finish; until then it is tracked locally so that a
// caller who abandons a Writer leaves no partial length byte behind.
type Writer struct {
	mem     memory
	addr    arena.Address
	segment arena.Range
	maxLen  byte
	n       byte
}

// NewWriter starts building a sized string at addr, with a content cap of
// maxLen bytes (maxLen must be <= MaxLen).
func NewWriter(mem memory, addr arena.Address, segment arena.Range, maxLen byte) Writer {
	if maxLen > MaxLen {
		maxLen = MaxLen
	}
	return Writer{mem: mem, addr: addr, segment: segment, maxLen: maxLen}
}

// AppendU8 appends one content byte, failing if the writer is already at
// its cap.
func (w *Writer) AppendU8(b byte) error {
	if w.n >= w.maxLen {
		return arena.AccessError{
			Access:  arena.Range{Start: w.addr + 1 + arena.Address(w.n), End: w.addr + 1 + arena.Address(w.n)},
			Segment: arena.Range{Start: w.addr + 1, End: w.addr + arena.Address(w.maxLen)},
		}
	}
	if err := w.mem.WriteU8(w.addr+1+arena.Address(w.n), b, w.segment); err != nil {
		return err
	}
	w.n++
	return nil
}

// AppendSlice appends each byte of p in turn.
func (w *Writer) AppendSlice(p []byte) error {
	for _, b := range p {
		if err := w.AppendU8(b); err != nil {
			return err
		}
	}
	return nil
}

// Finish commits the accumulated length to the length byte and returns the
// resulting View.
func (w *Writer) Finish() (View, error) {
	if err := w.mem.WriteU8(w.addr, w.n, w.segment); err != nil {
		return View{}, err
	}
	return New(w.mem, w.addr, w.segment)
}

// Len reports the number of bytes appended so far.
func (w *Writer) Len() byte { return w.n }
