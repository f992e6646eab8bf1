// Package article reads dictionary entries: a previous-pointer, a sized
// string name, and a bytecode body whose first byte is the article-start
// opcode.
package article

import (
	"forthvm/internal/arena"
	"forthvm/internal/sstring"
)

type memory interface {
	ReadU8(addr arena.Address, segment arena.Range) (byte, error)
	WriteU8(addr arena.Address, v byte, segment arena.Range) error
	ReadU16(addr arena.Address, segment arena.Range) (uint16, error)
	Slice(addr arena.Address, n uint16, segment arena.Range) ([]byte, error)
	SliceMut(addr arena.Address, n uint16, segment arena.Range) ([]byte, error)
}

// Article is a validated view over one dictionary entry.
type Article struct {
	header arena.Address
	prev   arena.Address
	name   sstring.View
}

// New validates the prev pointer and name of the article headed at addr.
func New(mem memory, header arena.Address, segment arena.Range) (Article, error) {
	prev, err := mem.ReadU16(header, segment)
	if err != nil {
		return Article{}, err
	}
	name, err := sstring.New(mem, header+2, segment)
	if err != nil {
		return Article{}, err
	}
	return Article{header: header, prev: prev, name: name}, nil
}

// HeaderAddress is the address of the article's prev field.
func (a Article) HeaderAddress() arena.Address { return a.header }

// Name is the article's word name.
func (a Article) Name() []byte { return a.name.AsBytes() }

// BodyAddress is the address of the article's first bytecode byte (the
// article-start opcode).
func (a Article) BodyAddress() arena.Address {
	return a.name.ContentAddress() + arena.Address(a.name.Length())
}

// Previous returns the preceding article in the chain, validated against
// segment. It returns ok == false once the chain terminates: a prev
// pointer that is not strictly less than the current header address (the
// sentinel 0xFFFF, or any corrupt non-decreasing value) ends the walk.
func (a Article) Previous(mem memory, segment arena.Range) (prev Article, ok bool, err error) {
	if a.prev >= a.header {
		return Article{}, false, nil
	}
	prev, err = New(mem, a.prev, segment)
	return prev, err == nil, err
}

// Lookup walks the dictionary chain starting at head, most-recent-first,
// returning the first article whose name equals name. It reports
// (Article{}, false, nil) if the chain is exhausted without a match.
func Lookup(mem memory, head arena.Address, hasHead bool, segment arena.Range, name []byte) (Article, bool, error) {
	if !hasHead {
		return Article{}, false, nil
	}
	cur, err := New(mem, head, segment)
	if err != nil {
		return Article{}, false, err
	}
	for {
		if string(cur.Name()) == string(name) {
			return cur, true, nil
		}
		next, ok, err := cur.Previous(mem, segment)
		if err != nil {
			return Article{}, false, err
		}
		if !ok {
			return Article{}, false, nil
		}
		cur = next
	}
}
