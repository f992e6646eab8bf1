package machine

import (
	"errors"

	"forthvm/internal/arena"
	"forthvm/internal/memlayout"
	"forthvm/internal/sstring"
	"forthvm/internal/vmerr"
)

// wordOpcodes are the built-in words whose entire effect is one ip-
// independent opcode: executed in place in interpreter state, appended as
// a bare byte in compiler state. See isTrivialOpcode.
var wordOpcodes = map[string]Opcode{
	"+": OpAdd16, "-": OpSub16, "*": OpMul16, "/": OpDiv16,

	"DUP": OpDup16, "2DUP": OpDup32,
	"OVER": OpOver16, "2OVER": OpOver32,
	"SWAP": OpSwap16, "2SWAP": OpSwap32,
	"DROP": OpDrop16,
	"ROT":  OpRot16,

	"@": OpLoad16, "!": OpStore16,
	"C@": OpLoad8, "C!": OpStore8,
	"2@": OpLoad32, "2!": OpStore32,

	"INVERT": OpInvert16, "AND": OpAnd16, "OR": OpOr16, "XOR": OpXor16,
	"=": OpEq16, "<": OpLt16, ">": OpGt16,
	"ABS":  OpAbs16,
	"S>D":  OpI16ToI32,
	"EMIT": OpEmit,
	"TYPE": OpEmitString,

	"<#": OpPnoInit, "#": OpPnoPutDigit, "#>": OpPnoFinish, "HOLD": OpPnoPut,
}

// compileOnlyOpcodes map directly to an opcode too, but only make sense
// inside a running word's body: they manipulate the call stack the
// top-level REPL never has a live frame on.
var compileOnlyOpcodes = map[string]Opcode{
	">R": OpCallPush16, "R>": OpCallPop16, "R@": OpCallRead16,
	"2>R": OpCallPush32, "2R>": OpCallPop32, "2R@": OpCallRead32,
}

// ProcessBuiltinWord dispatches the name at nameAddr through the built-in
// word table, after article lookup has already failed. It is exported so
// a custom WordFallback can re-enter it (e.g. after defining a synthetic
// article), though the common case never needs to.
func (m *Machine) ProcessBuiltinWord(nameAddr arena.Address) error {
	name, err := sstring.New(m.Mem.Arena, nameAddr, arena.Full())
	if err != nil {
		return err
	}
	return m.dispatchBuiltin(string(name.AsBytes()), nameAddr, name.AsBytes())
}

func (m *Machine) dispatchBuiltin(word string, nameAddr arena.Address, name []byte) error {
	mem := m.Mem

	switch word {
	case "[":
		return mem.SetState(memlayout.Interpreter)
	case "]":
		return mem.SetState(memlayout.Compiler)
	case "(":
		return mem.SkipComment(m.in)

	case ":":
		return m.builtinColonStart()
	case ";":
		return m.builtinColonEnd()
	case "IMMEDIATE":
		return m.builtinImmediate()
	case "LITERAL":
		return m.builtinLiteral()
	case "POSTPONE":
		return m.builtinPostpone()
	case `S"`:
		return m.builtinStringLiteral()
	case `."`:
		return m.builtinDotQuote()
	case "EXIT":
		if err := m.expectState(memlayout.Compiler); err != nil {
			return err
		}
		return mem.DictWriteOpcode(byte(OpReturn))
	case "RECURSE":
		return m.builtinRecurse()

	case "IF":
		return m.builtinIf()
	case "ELSE":
		return m.builtinElse()
	case "THEN":
		return m.builtinThen()
	case "BEGIN":
		return m.builtinBegin()
	case "WHILE":
		return m.builtinWhile()
	case "REPEAT":
		return m.builtinRepeat()

	case "2DROP":
		return m.builtin2Drop()

	case "TRUE":
		return m.execOrCompileConstant(0xFFFF)
	case "FALSE":
		return m.execOrCompileConstant(0)
	case "BASE":
		return m.execOrCompileConstant(uint16(mem.BaseAddress()))
	case "HERE":
		return m.execOrCompileConstant(uint16(mem.Here()))
	case "STATE":
		return m.execOrCompileConstant(uint16(mem.StateAddress()))
	}

	if op, ok := wordOpcodes[word]; ok {
		return m.execOrCompileTrivial(op)
	}
	if op, ok := compileOnlyOpcodes[word]; ok {
		if err := m.expectState(memlayout.Compiler); err != nil {
			return err
		}
		return mem.DictWriteOpcode(byte(op))
	}

	fallbackErr := m.wordFallback(m, nameAddr, name)
	var illegal vmerr.IllegalWord
	if !errors.As(fallbackErr, &illegal) {
		return fallbackErr
	}
	base, err := mem.GetBase()
	if err != nil {
		return err
	}
	if v, ok := ParseLiteral(name, base); ok {
		return m.execOrCompileConstant(v)
	}
	return fallbackErr
}

// execBuiltinByName runs a built-in word's interpreter-time action
// unconditionally, regardless of the machine's current STATE. It backs
// OpExecBuiltin, which POSTPONE compiles for any built-in that isn't a
// user article: at the point this opcode runs, the postponed word's
// normal action is exactly what should happen, never a further compile.
// Only the state-agnostic words, the constant-like words, 2DROP, and the
// single-opcode words are handled; any other name (control-flow,
// colon-definition, string and LITERAL words, numeric literals) fails with
// vmerr.IllegalWord.
func (m *Machine) execBuiltinByName(name []byte) error {
	word := string(name)
	mem := m.Mem

	switch word {
	case "[":
		return mem.SetState(memlayout.Interpreter)
	case "]":
		return mem.SetState(memlayout.Compiler)
	case "(":
		return mem.SkipComment(m.in)
	case "TRUE":
		return mem.DataPushU16(0xFFFF)
	case "FALSE":
		return mem.DataPushU16(0)
	case "BASE":
		return mem.DataPushU16(uint16(mem.BaseAddress()))
	case "HERE":
		return mem.DataPushU16(uint16(mem.Here()))
	case "STATE":
		return mem.DataPushU16(uint16(mem.StateAddress()))
	case "2DROP":
		if err := m.execTrivial(OpDrop16); err != nil {
			return err
		}
		return m.execTrivial(OpDrop16)
	}

	if op, ok := wordOpcodes[word]; ok {
		return m.execTrivial(op)
	}
	if op, ok := compileOnlyOpcodes[word]; ok {
		return m.execTrivial(op)
	}
	return vmerr.IllegalWord{}
}

func (m *Machine) expectState(expected int) error {
	actual, err := m.Mem.GetState()
	if err != nil {
		return err
	}
	if actual != expected {
		return vmerr.IllegalMode{Expected: expected, Actual: actual}
	}
	return nil
}

// execOrCompileTrivial is the trivial-opcode-word category's dispatch:
// execute now, or append the bare byte.
func (m *Machine) execOrCompileTrivial(op Opcode) error {
	state, err := m.Mem.GetState()
	if err != nil {
		return err
	}
	if state == memlayout.Interpreter {
		return m.execTrivial(op)
	}
	return m.Mem.DictWriteOpcode(byte(op))
}

// execOrCompileConstant is the constant-like-word category's dispatch:
// push the value now, or compile it as a Literal16.
func (m *Machine) execOrCompileConstant(v uint16) error {
	mem := m.Mem
	state, err := mem.GetState()
	if err != nil {
		return err
	}
	if state == memlayout.Interpreter {
		return mem.DataPushU16(v)
	}
	if err := mem.DictWriteOpcode(byte(OpLiteral16)); err != nil {
		return err
	}
	return mem.DictWriteU16(v)
}

func (m *Machine) builtin2Drop() error {
	state, err := m.Mem.GetState()
	if err != nil {
		return err
	}
	if state == memlayout.Interpreter {
		if err := m.execTrivial(OpDrop16); err != nil {
			return err
		}
		return m.execTrivial(OpDrop16)
	}
	if err := m.Mem.DictWriteOpcode(byte(OpDrop16)); err != nil {
		return err
	}
	return m.Mem.DictWriteOpcode(byte(OpDrop16))
}

// --- colon definitions ---

func (m *Machine) builtinColonStart() error {
	mem := m.Mem
	if _, ok, err := mem.GetCurrentWord(); err != nil {
		return err
	} else if ok {
		return vmerr.ErrIllegalCompilerState
	}
	if err := m.expectState(memlayout.Interpreter); err != nil {
		return err
	}
	nameAddr, ok, err := mem.ReadInputWord(m.in)
	if err != nil {
		return err
	}
	if !ok {
		return vmerr.ErrUnexpectedInputEOF
	}

	header := mem.Here()
	prevVal := uint16(memlayout.NoDef)
	if prevAddr, hasPrev := mem.LastArticle(); hasPrev {
		prevVal = uint16(prevAddr)
	}
	if err := mem.DictWriteU16(prevVal); err != nil {
		return err
	}
	if err := mem.DictWriteSizedString(nameAddr); err != nil {
		return err
	}
	if err := mem.DictWriteOpcode(byte(OpDefaultArticleStart)); err != nil {
		return err
	}
	if err := mem.SetCurrentWord(header, true); err != nil {
		return err
	}
	return mem.SetState(memlayout.Compiler)
}

func (m *Machine) builtinColonEnd() error {
	mem := m.Mem
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	header, ok, err := mem.GetCurrentWord()
	if err != nil {
		return err
	}
	if !ok {
		return vmerr.ErrIllegalCompilerState
	}
	if err := mem.DictWriteOpcode(byte(OpReturn)); err != nil {
		return err
	}
	mem.SetLastArticle(header)
	if err := mem.SetCurrentWord(0, false); err != nil {
		return err
	}
	return mem.SetState(memlayout.Interpreter)
}

func (m *Machine) builtinImmediate() error {
	mem := m.Mem
	if err := m.expectState(memlayout.Interpreter); err != nil {
		return err
	}
	header, ok := mem.LastArticle()
	if !ok {
		return vmerr.ErrNoArticle
	}
	art, err := mem.Article(header)
	if err != nil {
		return err
	}
	body := art.BodyAddress()
	seg := usedDict(mem)
	b, err := mem.Arena.ReadU8(body, seg)
	if err != nil {
		return err
	}
	switch Opcode(b) {
	case OpNoop:
		return nil
	case OpDefaultArticleStart:
		return mem.Arena.WriteU8(body, byte(OpNoop), seg)
	default:
		return vmerr.ErrUnexpectedArticleType
	}
}

func (m *Machine) builtinRecurse() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	header, ok, err := mem.GetCurrentWord()
	if err != nil {
		return err
	}
	if !ok {
		return vmerr.ErrIllegalCompilerState
	}
	art, err := mem.Article(header)
	if err != nil {
		return err
	}
	if err := mem.DictWriteOpcode(byte(OpCall)); err != nil {
		return err
	}
	return mem.DictWriteU16(uint16(art.BodyAddress()))
}

func (m *Machine) builtinLiteral() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	v, err := mem.DataPopU16()
	if err != nil {
		return err
	}
	if err := mem.DictWriteOpcode(byte(OpLiteral16)); err != nil {
		return err
	}
	return mem.DictWriteU16(v)
}

func (m *Machine) builtinPostpone() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	nameAddr, ok, err := mem.ReadInputWord(m.in)
	if err != nil {
		return err
	}
	if !ok {
		return vmerr.ErrUnexpectedInputEOF
	}
	name, err := sstring.New(mem.Arena, nameAddr, arena.Full())
	if err != nil {
		return err
	}
	art, found, err := mem.LookupArticle(name.AsBytes())
	if err != nil {
		return err
	}
	if found {
		if err := mem.DictWriteOpcode(byte(OpCall)); err != nil {
			return err
		}
		return mem.DictWriteU16(uint16(art.BodyAddress()))
	}
	if err := mem.DictWriteOpcode(byte(OpExecBuiltin)); err != nil {
		return err
	}
	return mem.DictWriteSizedString(nameAddr)
}

func (m *Machine) compileDelimitedString(delim byte) error {
	mem := m.Mem
	if err := mem.DictWriteOpcode(byte(OpLiteralString)); err != nil {
		return err
	}
	pad := mem.PadAddress()
	if err := mem.ReadDelimited(m.in, delim, pad, memlayout.PadCap); err != nil {
		return err
	}
	return mem.DictWriteSizedString(pad)
}

func (m *Machine) builtinStringLiteral() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	return m.compileDelimitedString('"')
}

func (m *Machine) builtinDotQuote() error {
	mem := m.Mem
	state, err := mem.GetState()
	if err != nil {
		return err
	}
	if state == memlayout.Compiler {
		if err := m.compileDelimitedString('"'); err != nil {
			return err
		}
		return mem.DictWriteOpcode(byte(OpEmitString))
	}
	pad := mem.PadAddress()
	if err := mem.ReadDelimited(m.in, '"', pad, memlayout.PadCap); err != nil {
		return err
	}
	s, err := sstring.New(mem.Arena, pad, arena.Full())
	if err != nil {
		return err
	}
	return m.out.PutS(s.AsBytes())
}

// --- control flow: IF/ELSE/THEN and BEGIN/WHILE/REPEAT ---
//
// Each compiles a forward (or backward, for REPEAT) branch, using the
// data stack to carry the patch-site addresses between the words that
// open and close a construct. This is compile-time-only scratch: nothing
// is pushed here that a running word's body ever sees.

func (m *Machine) builtinIf() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	if err := mem.DictWriteOpcode(byte(OpGoToIfZ)); err != nil {
		return err
	}
	slot, err := mem.CreateForwardReference()
	if err != nil {
		return err
	}
	return mem.DataPushU16(uint16(slot))
}

func (m *Machine) builtinElse() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	ifSlot, err := mem.DataPopU16()
	if err != nil {
		return err
	}
	if err := mem.DictWriteOpcode(byte(OpGoTo)); err != nil {
		return err
	}
	elseSlot, err := mem.CreateForwardReference()
	if err != nil {
		return err
	}
	if err := mem.ResolveForwardReference(arena.Address(ifSlot)); err != nil {
		return err
	}
	return mem.DataPushU16(uint16(elseSlot))
}

func (m *Machine) builtinThen() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	slot, err := mem.DataPopU16()
	if err != nil {
		return err
	}
	return mem.ResolveForwardReference(arena.Address(slot))
}

func (m *Machine) builtinBegin() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	return m.Mem.DataPushU16(uint16(m.Mem.Here()))
}

func (m *Machine) builtinWhile() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	if err := mem.DictWriteOpcode(byte(OpGoToIfZ)); err != nil {
		return err
	}
	slot, err := mem.CreateForwardReference()
	if err != nil {
		return err
	}
	return mem.DataPushU16(uint16(slot))
}

func (m *Machine) builtinRepeat() error {
	if err := m.expectState(memlayout.Compiler); err != nil {
		return err
	}
	mem := m.Mem
	whileSlot, err := mem.DataPopU16()
	if err != nil {
		return err
	}
	beginAddr, err := mem.DataPopU16()
	if err != nil {
		return err
	}
	if err := mem.DictWriteOpcode(byte(OpGoTo)); err != nil {
		return err
	}
	if err := mem.DictWriteU16(beginAddr); err != nil {
		return err
	}
	return mem.ResolveForwardReference(arena.Address(whileSlot))
}
