// Package machine implements the Forth-like virtual machine: the opcode
// ISA, the built-in word dispatcher, the machine loop that drives them from
// an input stream, and the numeric literal parser they fall back to.
package machine

import (
	"context"
	"errors"
	"io"

	"forthvm/internal/arena"
	"forthvm/internal/ioadapter"
	"forthvm/internal/memlayout"
	"forthvm/internal/panicerr"
	"forthvm/internal/sstring"
	"forthvm/internal/vmerr"
)

// WordFallback is invoked by ProcessBuiltinWord when a name matches
// neither a user article nor a built-in. The default implementation fails
// with vmerr.IllegalWord; callers (e.g. a REPL extension) may inject a
// richer handler via WithWordFallback. When the handler fails with
// vmerr.IllegalWord, the name is then parsed as a numeric literal in the
// current BASE.
type WordFallback func(m *Machine, nameAddr arena.Address, name []byte) error

// Machine drives a MachineMemory through the bytecode interpreter and the
// built-in word dispatcher, pulling words from In and writing output
// through Out.
type Machine struct {
	Mem *memlayout.MachineMemory

	in  *ioadapter.QueueInput
	out ioadapter.Output

	wordFallback WordFallback

	trace bool
	logf  func(mark, mess string, args ...interface{})

	closers []io.Closer
}

// New constructs a Machine with a fresh MachineMemory and the given
// options applied in order.
func New(opts ...VMOption) *Machine {
	m := &Machine{
		Mem:          memlayout.New(),
		in:           ioadapter.NewQueueInput(),
		out:          ioadapter.NewWriterOutput(io.Discard),
		wordFallback: defaultWordFallback,
		logf:         func(string, string, ...interface{}) {},
	}
	VMOptions(opts...).apply(m)
	return m
}

func defaultWordFallback(_ *Machine, nameAddr arena.Address, _ []byte) error {
	return vmerr.IllegalWord{Address: nameAddr, HasAddress: true}
}

// Close releases any closer registered by an input/output option (e.g. an
// opened file passed via WithInput).
func (m *Machine) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.closers = nil
	return first
}

// Run drives InterpretInput to completion, recovering any internal panic
// as a returned error and honoring ctx cancellation between words. This is
// the ambient entry point cmd/forthvm uses; the core machine loop itself
// (InterpretInput) takes no context, per spec.md's "no cancellation
// mechanism" contract.
func (m *Machine) Run(ctx context.Context) error {
	return panicerr.Recover("machine", func() error {
		return m.interpretInput(ctx)
	})
}

// InterpretInput reads whitespace-delimited words from In until EOF,
// executing each in turn. It returns nil at input EOF; any other error
// stops the loop and is returned as-is.
func (m *Machine) InterpretInput() error {
	return m.interpretInput(context.Background())
}

func (m *Machine) interpretInput(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		addr, ok, err := m.Mem.ReadInputWord(m.in)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := m.ExecuteWord(addr); err != nil {
			return err
		}
	}
}

// ExecuteWord looks up the sized-string name at nameAddr. An article match
// runs its bytecode to completion; otherwise the name falls to the
// built-in dispatcher.
func (m *Machine) ExecuteWord(nameAddr arena.Address) error {
	name, err := sstring.New(m.Mem.Arena, nameAddr, arena.Full())
	if err != nil {
		return err
	}
	art, ok, err := m.Mem.LookupArticle(name.AsBytes())
	if err != nil {
		return err
	}
	if ok {
		m.logf(".", "call %s", name.AsBytes())
		return m.RunUntilExit(art.BodyAddress())
	}
	return m.ProcessBuiltinWord(nameAddr)
}

// RunUntilExit executes opcodes starting at ip until the internal Exited
// sentinel unwinds the call, which it treats as clean termination.
func (m *Machine) RunUntilExit(ip arena.Address) error {
	for {
		if m.trace {
			m.logf(">", "%s", m.FormatAt(ip))
		}
		next, err := m.ExecuteAt(ip)
		if err != nil {
			if errors.Is(err, errExited) {
				return nil
			}
			return err
		}
		ip = next
	}
}
