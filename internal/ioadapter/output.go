package ioadapter

import (
	"io"

	"forthvm/internal/flushio"
	"forthvm/internal/vmerr"
)

// Output is the sink the machine's Emit/EmitString opcodes write
// through.
type Output interface {
	PutC(v uint16) error
	PutS(p []byte) error
	Flush() error
}

// WriterOutput wraps any io.Writer (stdout, a file, a bytes.Buffer for
// captured-output tests) as an Output, buffering through flushio the same
// way the rest of the system does.
type WriterOutput struct {
	w flushio.WriteFlusher
}

// NewWriterOutput wraps w.
func NewWriterOutput(w io.Writer) *WriterOutput {
	return &WriterOutput{w: flushio.NewWriteFlusher(w)}
}

// PutC writes the low byte of v.
func (wo *WriterOutput) PutC(v uint16) error {
	_, err := wo.w.Write([]byte{byte(v)})
	if err != nil {
		return vmerr.OutputError{Err: err}
	}
	return nil
}

// PutS writes p in full.
func (wo *WriterOutput) PutS(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := wo.w.Write(p)
	if err != nil {
		return vmerr.OutputError{Err: err}
	}
	if n != len(p) {
		return vmerr.OutputError{Err: io.ErrShortWrite}
	}
	return nil
}

// Tee additionally copies all subsequent output to w, composing it with
// whatever was previously installed via flushio.WriteFlushers.
func (wo *WriterOutput) Tee(w io.Writer) {
	wo.w = flushio.WriteFlushers(wo.w, flushio.NewWriteFlusher(w))
}

// Flush flushes any buffered output.
func (wo *WriterOutput) Flush() error {
	if err := wo.w.Flush(); err != nil {
		return vmerr.OutputError{Err: err}
	}
	return nil
}
