// Command forthvm runs the virtual machine as an interactive REPL (or
// batch interpreter, when stdin is a script) over the Forth-like language
// spec.md defines: colon definitions, immediate words, and the usual
// stack-shuffling and arithmetic primitives.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"forthvm/internal/logio"
	"forthvm/machine"
)

func main() {
	var (
		timeout   time.Duration
		trace     bool
		dump      bool
		callDepth int
		teePath   string
	)
	flag.DurationVar(&timeout, "timeout", 0, "stop the machine after the given duration")
	flag.BoolVar(&trace, "trace", false, "log every executed opcode")
	flag.BoolVar(&dump, "dump", false, "print a memory/stack dump after execution")
	flag.IntVar(&callDepth, "call-depth", 0, "override the call stack depth budget")
	flag.StringVar(&teePath, "tee", "", "additionally copy output to the named file")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer func() { os.Exit(log.ExitCode()) }()

	opts := []machine.VMOption{
		machine.WithOutput(os.Stdout),
	}
	if callDepth > 0 {
		opts = append(opts, machine.WithCallDepth(callDepth))
	}
	if trace {
		traceLogf := log.Leveledf("TRACE")
		opts = append(opts, machine.WithLogf(func(mark, mess string, args ...interface{}) {
			traceLogf(mark+" "+mess, args...)
		}))
	}
	if teePath != "" {
		f, err := os.Create(teePath)
		if err != nil {
			log.Errorf("opening -tee file: %v", err)
			return
		}
		defer f.Close()
		opts = append(opts, machine.WithTee(f))
	}

	// Any script files load first, in order, ahead of interactive stdin;
	// WithInput/WithPromptedInput queue in the order applied.
	for _, name := range flag.Args() {
		f, err := os.Open(name)
		if err != nil {
			log.Errorf("opening %s: %v", name, err)
			return
		}
		defer f.Close()
		opts = append(opts, machine.WithInput(f))
	}
	opts = append(opts, machine.WithPromptedInput(os.Stdin, os.Stdout, "\n> "))

	vm := machine.New(opts...)
	defer func() {
		if err := vm.Close(); err != nil {
			log.Errorf("closing machine: %v", err)
		}
	}()

	if dump {
		defer dumper{m: vm, out: &logio.Writer{Logf: log.Leveledf("DUMP")}}.dump()
	}

	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.ErrorIf(vm.Run(ctx))
}
