package machine

import (
	"io"

	"forthvm/internal/ioadapter"
	"forthvm/internal/memlayout"
)

// VMOption configures a Machine at construction time via New.
type VMOption interface{ apply(m *Machine) }

// VMOptions flattens a list of options (including nested VMOptions
// results) into a single applicable option, mirroring the combinator the
// teacher's options.go uses for its own VMOption.
func VMOptions(opts ...VMOption) VMOption {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(*Machine) {}

type options []VMOption

func (opts options) apply(m *Machine) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(m)
		}
	}
}

// WithInput queues r as a further source of input, read after anything
// already queued is exhausted. No prompt is written for it.
func WithInput(r io.Reader) VMOption { return inputOption{r} }

// WithPromptedInput queues r the same way WithInput does, but additionally
// writes prompt to prompter immediately before reading the first byte of
// each line, the way cmd/forthvm's REPL prompts
// interactive stdin.
func WithPromptedInput(r io.Reader, prompter ioadapter.Prompter, prompt string) VMOption {
	return promptedInputOption{r: r, prompter: prompter, prompt: prompt}
}

// WithInputString queues s as canned input, for tests and one-shot
// scripts.
func WithInputString(s string) VMOption { return inputStringOption{s} }

// WithOutput replaces the machine's output sink, flushing whatever was
// previously installed first.
func WithOutput(w io.Writer) VMOption { return outputOption{w} }

// WithTee additionally copies all output to w, on top of whatever
// WithOutput installed (or the discard default).
func WithTee(w io.Writer) VMOption { return teeOption{w} }

// WithCallDepth overrides the default call-stack depth budget (and thus
// how much of the arena's top end the call stack reserves).
func WithCallDepth(depth int) VMOption { return callDepthOption(depth) }

// WithWordFallback installs the handler ProcessBuiltinWord delegates to
// for names that match neither an article nor a built-in.
func WithWordFallback(fn WordFallback) VMOption { return wordFallbackOption{fn} }

// WithLogf installs a trace hook, called once per executed opcode
// (RunUntilExit) and once per article call (ExecuteWord). Installing one
// also turns per-opcode tracing
// on; cmd/forthvm gates this behind its -trace flag.
func WithLogf(logf func(mark, mess string, args ...interface{})) VMOption {
	return logfOption{logf}
}

type inputOption struct{ io.Reader }
type promptedInputOption struct {
	r        io.Reader
	prompter ioadapter.Prompter
	prompt   string
}
type inputStringOption struct{ s string }
type outputOption struct{ io.Writer }
type teeOption struct{ io.Writer }
type callDepthOption int
type wordFallbackOption struct{ fn WordFallback }
type logfOption struct {
	fn func(mark, mess string, args ...interface{})
}

func (i inputOption) apply(m *Machine) {
	in := ioadapter.NewStdinInput(i.Reader, nil, "")
	m.in.Push(in)
	if cl, ok := i.Reader.(io.Closer); ok {
		m.closers = append(m.closers, cl)
	}
}

func (i promptedInputOption) apply(m *Machine) {
	in := ioadapter.NewStdinInput(i.r, i.prompter, i.prompt)
	m.in.Push(in)
	if cl, ok := i.r.(io.Closer); ok {
		m.closers = append(m.closers, cl)
	}
}

func (i inputStringOption) apply(m *Machine) {
	m.in.Push(ioadapter.NewStringInput(i.s))
}

func (o outputOption) apply(m *Machine) {
	_ = m.out.Flush()
	wo := ioadapter.NewWriterOutput(o.Writer)
	m.out = wo
	if cl, ok := o.Writer.(io.Closer); ok {
		m.closers = append(m.closers, cl)
	}
}

func (o teeOption) apply(m *Machine) {
	wo, ok := m.out.(*ioadapter.WriterOutput)
	if !ok {
		wo = ioadapter.NewWriterOutput(io.Discard)
		m.out = wo
	}
	wo.Tee(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		m.closers = append(m.closers, cl)
	}
}

func (d callDepthOption) apply(m *Machine) {
	m.Mem = memlayout.NewWithCallDepth(int(d))
}

func (w wordFallbackOption) apply(m *Machine) { m.wordFallback = w.fn }

func (l logfOption) apply(m *Machine) {
	m.logf = l.fn
	m.trace = true
}
