package machine_test

//go:generate go run ../scripts/gen_test_helpers.go -- vmtest_dsl_test.go vmtest_helpers_test.go

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"forthvm/machine"
)

// vmTestCase is a small declarative test DSL mirroring the teacher's own
// vmTestCase: build a machine with a chain of options, run it against
// some input, then check a chain of expectations.
type vmTestCase struct {
	name    string
	opts    []machine.VMOption
	expect  []func(t *testing.T, m *machine.Machine)
	timeout time.Duration
	wantErr error
}

func vmTest(name string) vmTestCase {
	return vmTestCase{name: name}
}

// apply folds a list of generated with*VM*/expect*VM* wrappers (see
// vmtest_helpers_test.go) onto vmt in order.
func (vmt vmTestCase) apply(wraps ...func(vmTestCase) vmTestCase) vmTestCase {
	for _, wrap := range wraps {
		vmt = wrap(vmt)
	}
	return vmt
}

func (vmt vmTestCase) withInput(input string) vmTestCase {
	vmt.opts = append(vmt.opts, machine.WithInputString(input))
	return vmt
}

func (vmt vmTestCase) withOptions(opts ...machine.VMOption) vmTestCase {
	vmt.opts = append(vmt.opts, opts...)
	return vmt
}

func (vmt vmTestCase) withTimeout(d time.Duration) vmTestCase {
	vmt.timeout = d
	return vmt
}

func (vmt vmTestCase) expectError(err error) vmTestCase {
	vmt.wantErr = err
	return vmt
}

func (vmt vmTestCase) expectOutput(output string) vmTestCase {
	var out bytes.Buffer
	vmt.opts = append(vmt.opts, machine.WithOutput(&out))
	vmt.expect = append(vmt.expect, func(t *testing.T, m *machine.Machine) {
		assert.Equal(t, output, out.String(), "expected output")
	})
	return vmt
}

// expectDataStack checks the data stack top-to-bottom, each as a u16,
// without disturbing it (read directly out of the arena).
func (vmt vmTestCase) expectDataStack(values ...uint16) vmTestCase {
	vmt.expect = append(vmt.expect, func(t *testing.T, m *machine.Machine) {
		got := readDataStack(t, m)
		assert.Equal(t, values, got, "expected data stack")
	})
	return vmt
}

func (vmt vmTestCase) run(t *testing.T) {
	m := machine.New(vmt.opts...)
	defer func() {
		if err := m.Close(); err != nil {
			t.Logf("m.Close: %v", err)
		}
	}()

	timeout := vmt.timeout
	if timeout == 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := m.Run(ctx)
	if vmt.wantErr != nil {
		assert.True(t, matchesWantErr(err, vmt.wantErr),
			"expected error: %v\ngot: %+v", vmt.wantErr, err)
		return
	}
	assert.NoError(t, err, "unexpected machine run error")
	if t.Failed() {
		return
	}
	for _, expect := range vmt.expect {
		expect(t, m)
	}
}

// matchesWantErr accepts either a sentinel match (errors.Is, for the
// package-level Err* vars) or a matching dynamic type (for the struct
// error kinds like IllegalWord/IllegalMode/MemoryAccessError, whose field
// values at failure time are rarely known up front by the test).
func matchesWantErr(got, want error) bool {
	if errors.Is(got, want) {
		return true
	}
	if got == nil {
		return false
	}
	return reflect.TypeOf(got) == reflect.TypeOf(want)
}

// readDataStack reads every u16 cell between the current data-stack
// pointer and the stacks border, topmost first.
func readDataStack(t *testing.T, m *machine.Machine) []uint16 {
	t.Helper()
	sp := m.Mem.DataSP()
	border := m.Mem.StacksBorder()
	seg := m.Mem.DataStackSegment()
	var out []uint16
	for sp < border {
		v, err := m.Mem.Arena.ReadU16(sp, seg)
		if err != nil {
			t.Fatalf("readDataStack: %v", err)
		}
		out = append(out, v)
		sp += 2
	}
	return out
}
