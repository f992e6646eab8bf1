// Package ioadapter provides the concrete Input/Output collaborators the
// core machine is driven through: stdin (with a lazy prompt), canned
// strings, a queue of readers for multi-file loading, and a flushable
// writer sink.
package ioadapter

import (
	"bufio"
	"errors"
	"io"

	"forthvm/internal/vmerr"
)

// Input is the byte source the machine reads words and delimited strings
// from.
type Input interface {
	// ReadByte returns the next input byte. ok is false with a nil err at
	// end of input.
	ReadByte() (b byte, ok bool, err error)
	// Tell returns the current read offset.
	Tell() int
	// Seek repositions the read offset.
	Seek(offset int) error
}

// StringInput serves bytes from a fixed in-memory string, for tests and
// canned scripts.
type StringInput struct {
	s   string
	pos int
}

// NewStringInput wraps s as an Input.
func NewStringInput(s string) *StringInput { return &StringInput{s: s} }

// ReadByte implements Input.
func (si *StringInput) ReadByte() (byte, bool, error) {
	if si.pos >= len(si.s) {
		return 0, false, nil
	}
	b := si.s[si.pos]
	si.pos++
	return b, true, nil
}

// Tell implements Input.
func (si *StringInput) Tell() int { return si.pos }

// Seek implements Input.
func (si *StringInput) Seek(offset int) error {
	if offset < 0 || offset > len(si.s) {
		return vmerr.InputError{Kind: vmerr.IllegalOffset}
	}
	si.pos = offset
	return nil
}

// Prompter is written to before StdinInput reads the first byte of each
// line, giving a REPL its "\n> " banner. The prompt is written whether or
// not that read finds data already buffered or reaches end of input.
type Prompter interface {
	WriteString(s string) (int, error)
}

// StdinInput reads from an underlying reader (typically os.Stdin),
// writing a prompt to an associated Prompter each time it starts reading
// a new line of input.
type StdinInput struct {
	r        *bufio.Reader
	prompt   string
	prompter Prompter
	primed   bool
	pos      int
}

// NewStdinInput wraps r, writing prompt to prompter immediately before
// reading the first byte of each line.
func NewStdinInput(r io.Reader, prompter Prompter, prompt string) *StdinInput {
	return &StdinInput{r: bufio.NewReader(r), prompt: prompt, prompter: prompter}
}

// ReadByte implements Input.
func (si *StdinInput) ReadByte() (byte, bool, error) {
	if !si.primed {
		if si.prompter != nil {
			si.prompter.WriteString(si.prompt)
		}
		si.primed = true
	}
	b, err := si.r.ReadByte()
	if errors.Is(err, io.EOF) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, vmerr.InputError{Kind: vmerr.StdIO, Err: err}
	}
	si.pos++
	if b == '\n' {
		si.primed = false
	}
	return b, true, nil
}

// Tell implements Input.
func (si *StdinInput) Tell() int { return si.pos }

// Seek implements Input. StdinInput cannot rewind a live stream.
func (si *StdinInput) Seek(offset int) error {
	if offset != si.pos {
		return vmerr.InputError{Kind: vmerr.IllegalOffset}
	}
	return nil
}

// QueueInput reads each queued Input in turn, advancing to the next once
// the current one is exhausted, so that e.g. several loaded files are
// seen as one continuous input stream.
type QueueInput struct {
	queue []Input
}

// NewQueueInput builds a QueueInput over the given readers, in order.
func NewQueueInput(readers ...Input) *QueueInput {
	return &QueueInput{queue: readers}
}

// Push appends another reader to the back of the queue.
func (qi *QueueInput) Push(in Input) { qi.queue = append(qi.queue, in) }

// ReadByte implements Input.
func (qi *QueueInput) ReadByte() (byte, bool, error) {
	for len(qi.queue) > 0 {
		b, ok, err := qi.queue[0].ReadByte()
		if err != nil {
			return 0, false, err
		}
		if ok {
			return b, true, nil
		}
		qi.queue = qi.queue[1:]
	}
	return 0, false, nil
}

// Tell implements Input, relative to the currently active reader.
func (qi *QueueInput) Tell() int {
	if len(qi.queue) == 0 {
		return 0
	}
	return qi.queue[0].Tell()
}

// Seek implements Input against the currently active reader.
func (qi *QueueInput) Seek(offset int) error {
	if len(qi.queue) == 0 {
		return vmerr.InputError{Kind: vmerr.IllegalOffset}
	}
	return qi.queue[0].Seek(offset)
}
