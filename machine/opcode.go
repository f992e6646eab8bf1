package machine

import (
	"fmt"

	"forthvm/internal/arena"
	"forthvm/internal/memlayout"
	"forthvm/internal/sstring"
	"forthvm/internal/stackeffect"
	"forthvm/internal/vmerr"
)

// Opcode is a single bytecode instruction, optionally followed by an
// immediate operand.
type Opcode byte

const (
	OpNoop                Opcode = 0
	OpDefaultArticleStart Opcode = 1
	OpReturn              Opcode = 2
	OpCall                Opcode = 3
	OpLiteral16           Opcode = 4
	OpLiteralString       Opcode = 5
	OpGoTo                Opcode = 6
	OpGoToIfZ             Opcode = 7
	OpExecBuiltin         Opcode = 8
	OpCallPop16           Opcode = 9
	OpCallPush16          Opcode = 10
	OpCallPop32           Opcode = 11
	OpCallPush32          Opcode = 12
	OpCallRead16          Opcode = 13
	OpCallRead32          Opcode = 14

	OpDup32  Opcode = 123
	OpOver16 Opcode = 124
	OpOver32 Opcode = 125
	OpSwap16 Opcode = 126
	OpSwap32 Opcode = 127
	OpDup16  Opcode = 128

	OpAdd16 Opcode = 129
	OpSub16 Opcode = 130
	OpMul16 Opcode = 131
	OpDiv16 Opcode = 132

	OpLoad16  Opcode = 133
	OpStore16 Opcode = 134
	OpLoad8   Opcode = 135
	OpStore8  Opcode = 136
	OpLoad32  Opcode = 137
	OpStore32 Opcode = 138

	OpDrop16   Opcode = 139
	OpInvert16 Opcode = 140
	OpAnd16    Opcode = 141
	OpOr16     Opcode = 142
	OpXor16    Opcode = 143
	OpEq16     Opcode = 144
	OpLt16     Opcode = 145
	OpGt16     Opcode = 146
	OpRot16    Opcode = 147
	OpI16ToI32 Opcode = 148
	OpAbs16    Opcode = 149

	OpEmit        Opcode = 200
	OpPnoInit     Opcode = 201
	OpPnoPut      Opcode = 202
	OpPnoFinish   Opcode = 203
	OpPnoPutDigit Opcode = 204
	OpEmitString  Opcode = 205
)

// opcodeNames backs disassembly; opcodes absent from the table format as
// their raw numeric value instead.
var opcodeNames = map[Opcode]string{
	OpNoop:                "NOOP",
	OpDefaultArticleStart: "ARTICLE-START",
	OpReturn:              "RETURN",
	OpCall:                "CALL",
	OpLiteral16:           "LITERAL16",
	OpLiteralString:       "LITERAL-STRING",
	OpGoTo:                "GOTO",
	OpGoToIfZ:             "GOTO-IF-Z",
	OpExecBuiltin:         "EXEC-BUILTIN",
	OpCallPop16:           "CALL-POP16",
	OpCallPush16:          "CALL-PUSH16",
	OpCallPop32:           "CALL-POP32",
	OpCallPush32:          "CALL-PUSH32",
	OpCallRead16:          "CALL-READ16",
	OpCallRead32:          "CALL-READ32",
	OpDup16:               "DUP16",
	OpDup32:               "DUP32",
	OpOver16:              "OVER16",
	OpOver32:              "OVER32",
	OpSwap16:              "SWAP16",
	OpSwap32:              "SWAP32",
	OpDrop16:              "DROP16",
	OpRot16:               "ROT16",
	OpAdd16:               "ADD16",
	OpSub16:               "SUB16",
	OpMul16:               "MUL16",
	OpDiv16:               "DIV16",
	OpLoad8:               "LOAD8",
	OpStore8:              "STORE8",
	OpLoad16:              "LOAD16",
	OpStore16:             "STORE16",
	OpLoad32:              "LOAD32",
	OpStore32:             "STORE32",
	OpInvert16:            "INVERT16",
	OpAnd16:               "AND16",
	OpOr16:                "OR16",
	OpXor16:               "XOR16",
	OpEq16:                "EQ16",
	OpLt16:                "LT16",
	OpGt16:                "GT16",
	OpI16ToI32:            "I16TOI32",
	OpAbs16:               "ABS16",
	OpEmit:                "EMIT",
	OpPnoInit:             "PNO-INIT",
	OpPnoPut:              "PNO-PUT",
	OpPnoFinish:           "PNO-FINISH",
	OpPnoPutDigit:         "PNO-PUT-DIGIT",
	OpEmitString:          "EMIT-STRING",
}

// usedDict is the segment multi-byte opcode operands are validated
// against: only what has actually been written below HERE, not the free
// gap above it.
func usedDict(m *memlayout.MachineMemory) arena.Range {
	return arena.Range{Start: 0, End: m.Here() - 1}
}

func dataFx(m *memlayout.MachineMemory, in, out []int) (*stackeffect.Effect, error) {
	return stackeffect.Validate(m.Arena, m.DataSP(), m.DataStackSegment(), in, out)
}

func canPushDataU16(m *memlayout.MachineMemory) error {
	seg := m.DataStackSegment()
	sp := m.DataSP()
	return arena.ValidateAccess(arena.Range{Start: sp - 2, End: sp - 1}, seg)
}

func canPushDataU32(m *memlayout.MachineMemory) error {
	seg := m.DataStackSegment()
	sp := m.DataSP()
	return arena.ValidateAccess(arena.Range{Start: sp - 4, End: sp - 1}, seg)
}

func canPushCallU16(m *memlayout.MachineMemory) error {
	seg := m.CallStackSegment()
	sp := m.CallSP()
	return arena.ValidateAccess(arena.Range{Start: sp - 2, End: sp - 1}, seg)
}

func canPushCallU32(m *memlayout.MachineMemory) error {
	seg := m.CallStackSegment()
	sp := m.CallSP()
	return arena.ValidateAccess(arena.Range{Start: sp - 4, End: sp - 1}, seg)
}

// isTrivialOpcode reports whether op is one of the opcodes whose semantics
// never depend on the instruction pointer: no immediate operand, always "ip+1" on success. The
// built-in word dispatcher's trivial-opcode-word category (§4.7) executes
// these in place in interpreter state and appends the bare opcode byte in
// compiler state, via execTrivial and DictWriteOpcode respectively.
func isTrivialOpcode(op Opcode) bool {
	switch op {
	case OpCallPop16, OpCallPush16, OpCallPop32, OpCallPush32, OpCallRead16, OpCallRead32,
		OpDup16, OpDup32, OpOver16, OpOver32, OpSwap16, OpSwap32, OpDrop16, OpRot16,
		OpAdd16, OpSub16, OpMul16, OpDiv16,
		OpLoad8, OpStore8, OpLoad16, OpStore16, OpLoad32, OpStore32,
		OpInvert16, OpAnd16, OpOr16, OpXor16, OpEq16, OpLt16, OpGt16,
		OpI16ToI32, OpAbs16, OpEmit, OpEmitString,
		OpPnoInit, OpPnoPut, OpPnoFinish, OpPnoPutDigit:
		return true
	default:
		return false
	}
}

// ExecuteAt reads one opcode byte at ip, dispatches it, and returns the
// address of the next instruction. Unknown opcodes fail with
// vmerr.IllegalOpCode; errExited unwinds a call to clean completion.
func (m *Machine) ExecuteAt(ip arena.Address) (arena.Address, error) {
	mem := m.Mem
	opByte, err := mem.Arena.ReadU8(ip, usedDict(mem))
	if err != nil {
		return ip, err
	}
	op := Opcode(opByte)

	if isTrivialOpcode(op) {
		return ip + 1, m.execTrivial(op)
	}

	switch op {
	case OpNoop:
		return ip + 1, nil

	case OpDefaultArticleStart:
		return m.execDefaultArticleStart(ip)

	case OpReturn:
		if mem.CallStackEmpty() {
			return ip, errExited
		}
		v, err := mem.CallPopU16()
		if err != nil {
			return ip, err
		}
		return arena.Address(v), nil

	case OpCall:
		target, err := mem.Arena.ReadU16(ip+1, usedDict(mem))
		if err != nil {
			return ip, err
		}
		if err := mem.CallPushU16(uint16(ip + 3)); err != nil {
			return ip, err
		}
		return arena.Address(target), nil

	case OpLiteral16:
		v, err := mem.Arena.ReadU16(ip+1, usedDict(mem))
		if err != nil {
			return ip, err
		}
		fx, err := dataFx(mem, nil, []int{stackeffect.Word16})
		if err != nil {
			return ip, err
		}
		if err := fx.SetU16(0, v); err != nil {
			return ip, err
		}
		mem.SetDataSP(fx.Commit())
		return ip + 3, nil

	case OpLiteralString:
		s, err := sstring.New(mem.Arena, ip+1, usedDict(mem))
		if err != nil {
			return ip, err
		}
		if err := canPushDataU16(mem); err != nil {
			return ip, err
		}
		if err := mem.DataPushU16(uint16(s.ContentAddress())); err != nil {
			return ip, err
		}
		if err := mem.DataPushU16(uint16(s.Length())); err != nil {
			return ip, err
		}
		return ip + 2 + arena.Address(s.Length()), nil

	case OpGoTo:
		target, err := mem.Arena.ReadU16(ip+1, usedDict(mem))
		if err != nil {
			return ip, err
		}
		return arena.Address(target), nil

	case OpGoToIfZ:
		target, err := mem.Arena.ReadU16(ip+1, usedDict(mem))
		if err != nil {
			return ip, err
		}
		v, err := mem.DataPopU16()
		if err != nil {
			return ip, err
		}
		if v == 0 {
			return arena.Address(target), nil
		}
		return ip + 3, nil

	case OpExecBuiltin:
		s, err := sstring.New(mem.Arena, ip+1, usedDict(mem))
		if err != nil {
			return ip, err
		}
		next := ip + 2 + arena.Address(s.Length())
		if err := m.execBuiltinByName(s.AsBytes()); err != nil {
			return ip, err
		}
		return next, nil

	default:
		return ip, vmerr.IllegalOpCode{Address: ip, OpCode: opByte}
	}
}

// execTrivial runs the stack/memory/IO effect of an ip-independent opcode.
func (m *Machine) execTrivial(op Opcode) error {
	mem := m.Mem
	switch op {
	case OpCallPop16:
		v, err := mem.CallGetU16()
		if err != nil {
			return err
		}
		if err := canPushDataU16(mem); err != nil {
			return err
		}
		_, _ = mem.CallPopU16()
		return mem.DataPushU16(v)

	case OpCallPop32:
		v, err := mem.CallGetU32()
		if err != nil {
			return err
		}
		if err := canPushDataU32(mem); err != nil {
			return err
		}
		_, _ = mem.CallPopU32()
		return mem.DataPushU32(v)

	case OpCallPush16:
		if err := canPushCallU16(mem); err != nil {
			return err
		}
		v, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		return mem.CallPushU16(v)

	case OpCallPush32:
		if err := canPushCallU32(mem); err != nil {
			return err
		}
		v, err := mem.DataPopU32()
		if err != nil {
			return err
		}
		return mem.CallPushU32(v)

	case OpCallRead16:
		v, err := mem.CallGetU16()
		if err != nil {
			return err
		}
		return mem.DataPushU16(v)

	case OpCallRead32:
		v, err := mem.CallGetU32()
		if err != nil {
			return err
		}
		return mem.DataPushU32(v)

	case OpDup16:
		fx, err := dataFx(mem, []int{stackeffect.Word16}, []int{stackeffect.Word16, stackeffect.Word16})
		if err != nil {
			return err
		}
		a, err := fx.GetU16(0)
		if err != nil {
			return err
		}
		_ = fx.SetU16(0, a)
		_ = fx.SetU16(1, a)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpDup32:
		fx, err := dataFx(mem, []int{stackeffect.Word32}, []int{stackeffect.Word32, stackeffect.Word32})
		if err != nil {
			return err
		}
		a, err := fx.GetU32(0)
		if err != nil {
			return err
		}
		_ = fx.SetU32(0, a)
		_ = fx.SetU32(1, a)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpOver16:
		fx, err := dataFx(mem, []int{stackeffect.Word16, stackeffect.Word16}, []int{stackeffect.Word16, stackeffect.Word16, stackeffect.Word16})
		if err != nil {
			return err
		}
		b, err := fx.GetU16(1)
		if err != nil {
			return err
		}
		a, err := fx.GetU16(0)
		if err != nil {
			return err
		}
		_ = fx.SetU16(0, b)
		_ = fx.SetU16(1, a)
		_ = fx.SetU16(2, b)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpOver32:
		fx, err := dataFx(mem, []int{stackeffect.Word32, stackeffect.Word32}, []int{stackeffect.Word32, stackeffect.Word32, stackeffect.Word32})
		if err != nil {
			return err
		}
		b, err := fx.GetU32(1)
		if err != nil {
			return err
		}
		a, err := fx.GetU32(0)
		if err != nil {
			return err
		}
		_ = fx.SetU32(0, b)
		_ = fx.SetU32(1, a)
		_ = fx.SetU32(2, b)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpSwap16:
		fx, err := dataFx(mem, []int{stackeffect.Word16, stackeffect.Word16}, []int{stackeffect.Word16, stackeffect.Word16})
		if err != nil {
			return err
		}
		b, err := fx.GetU16(1)
		if err != nil {
			return err
		}
		a, err := fx.GetU16(0)
		if err != nil {
			return err
		}
		_ = fx.SetU16(0, b)
		_ = fx.SetU16(1, a)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpSwap32:
		fx, err := dataFx(mem, []int{stackeffect.Word32, stackeffect.Word32}, []int{stackeffect.Word32, stackeffect.Word32})
		if err != nil {
			return err
		}
		b, err := fx.GetU32(1)
		if err != nil {
			return err
		}
		a, err := fx.GetU32(0)
		if err != nil {
			return err
		}
		_ = fx.SetU32(0, b)
		_ = fx.SetU32(1, a)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpDrop16:
		fx, err := dataFx(mem, []int{stackeffect.Word16}, nil)
		if err != nil {
			return err
		}
		mem.SetDataSP(fx.Commit())
		return nil

	case OpRot16:
		fx, err := dataFx(mem,
			[]int{stackeffect.Word16, stackeffect.Word16, stackeffect.Word16},
			[]int{stackeffect.Word16, stackeffect.Word16, stackeffect.Word16})
		if err != nil {
			return err
		}
		c, err := fx.GetU16(0)
		if err != nil {
			return err
		}
		b, err := fx.GetU16(1)
		if err != nil {
			return err
		}
		a, err := fx.GetU16(2)
		if err != nil {
			return err
		}
		_ = fx.SetU16(0, a)
		_ = fx.SetU16(1, c)
		_ = fx.SetU16(2, b)
		mem.SetDataSP(fx.Commit())
		return nil

	case OpAdd16:
		return binop16(mem, func(a, b uint16) uint16 { return a + b })
	case OpSub16:
		return binop16(mem, func(a, b uint16) uint16 { return a - b })
	case OpMul16:
		return binop16(mem, func(a, b uint16) uint16 { return a * b })
	case OpDiv16:
		return binop16(mem, func(a, b uint16) uint16 { return a / b })
	case OpAnd16:
		return binop16(mem, func(a, b uint16) uint16 { return a & b })
	case OpOr16:
		return binop16(mem, func(a, b uint16) uint16 { return a | b })
	case OpXor16:
		return binop16(mem, func(a, b uint16) uint16 { return a ^ b })
	case OpEq16:
		return binop16(mem, func(a, b uint16) uint16 { return boolMask(a == b) })
	case OpLt16:
		return binop16(mem, func(a, b uint16) uint16 { return boolMask(int16(a) < int16(b)) })
	case OpGt16:
		return binop16(mem, func(a, b uint16) uint16 { return boolMask(int16(a) > int16(b)) })

	case OpInvert16:
		return unop16(mem, func(a uint16) uint16 { return ^a })
	case OpAbs16:
		return unop16(mem, func(a uint16) uint16 {
			v := int16(a)
			if v < 0 {
				v = -v
			}
			return uint16(v)
		})

	case OpI16ToI32:
		fx, err := dataFx(mem, []int{stackeffect.Word16}, []int{stackeffect.Word32})
		if err != nil {
			return err
		}
		a, err := fx.GetU16(0)
		if err != nil {
			return err
		}
		_ = fx.SetU32(0, uint32(int32(int16(a))))
		mem.SetDataSP(fx.Commit())
		return nil

	case OpLoad8:
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		v, err := mem.Arena.ReadU8(arena.Address(addr), arena.Full())
		if err != nil {
			return err
		}
		return mem.DataPushU16(uint16(v))

	case OpStore8:
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		v, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		return mem.Arena.WriteU8(arena.Address(addr), byte(v), arena.Full())

	case OpLoad16:
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		v, err := mem.Arena.ReadU16(arena.Address(addr), arena.Full())
		if err != nil {
			return err
		}
		return mem.DataPushU16(v)

	case OpStore16:
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		v, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		return mem.Arena.WriteU16(arena.Address(addr), v, arena.Full())

	case OpLoad32:
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		v, err := mem.Arena.ReadU32(arena.Address(addr), arena.Full())
		if err != nil {
			return err
		}
		return mem.DataPushU32(v)

	case OpStore32:
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		v, err := mem.DataPopU32()
		if err != nil {
			return err
		}
		return mem.Arena.WriteU32(arena.Address(addr), v, arena.Full())

	case OpEmit:
		v, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		return m.out.PutC(v)

	case OpEmitString:
		length, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		addr, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		p, err := mem.Arena.Slice(arena.Address(addr), length, arena.Full())
		if err != nil {
			return err
		}
		return m.out.PutS(p)

	case OpPnoInit:
		return mem.ClearPNOBuffer()

	case OpPnoPut:
		v, err := mem.DataPopU16()
		if err != nil {
			return err
		}
		return mem.PNOPut(byte(v))

	case OpPnoFinish:
		if _, err := mem.DataPopU32(); err != nil {
			return err
		}
		addr, n, err := mem.PNOFinish()
		if err != nil {
			return err
		}
		if err := mem.DataPushU16(uint16(addr)); err != nil {
			return err
		}
		return mem.DataPushU16(uint16(n))

	case OpPnoPutDigit:
		i, err := mem.DataPopU32()
		if err != nil {
			return err
		}
		base, err := mem.GetBase()
		if err != nil {
			return err
		}
		digit := i % uint32(base)
		if err := mem.DataPushU32(i / uint32(base)); err != nil {
			return err
		}
		return mem.PNOPut(digitChar(byte(digit)))

	default:
		return fmt.Errorf("execTrivial: %v is not a trivial opcode", op)
	}
}

func (m *Machine) execDefaultArticleStart(ip arena.Address) (arena.Address, error) {
	mem := m.Mem
	state, err := mem.GetState()
	if err != nil {
		return ip, err
	}
	if state == memlayout.Interpreter {
		return ip + 1, nil
	}
	if err := mem.DictWriteOpcode(byte(OpCall)); err != nil {
		return ip, err
	}
	if err := mem.DictWriteU16(uint16(ip + 1)); err != nil {
		return ip, err
	}
	if mem.CallStackEmpty() {
		return ip, errExited
	}
	v, err := mem.CallPopU16()
	if err != nil {
		return ip, err
	}
	return arena.Address(v), nil
}

func binop16(mem *memlayout.MachineMemory, f func(a, b uint16) uint16) error {
	fx, err := dataFx(mem, []int{stackeffect.Word16, stackeffect.Word16}, []int{stackeffect.Word16})
	if err != nil {
		return err
	}
	b, err := fx.GetU16(0)
	if err != nil {
		return err
	}
	a, err := fx.GetU16(1)
	if err != nil {
		return err
	}
	if err := fx.SetU16(0, f(a, b)); err != nil {
		return err
	}
	mem.SetDataSP(fx.Commit())
	return nil
}

func unop16(mem *memlayout.MachineMemory, f func(a uint16) uint16) error {
	fx, err := dataFx(mem, []int{stackeffect.Word16}, []int{stackeffect.Word16})
	if err != nil {
		return err
	}
	a, err := fx.GetU16(0)
	if err != nil {
		return err
	}
	if err := fx.SetU16(0, f(a)); err != nil {
		return err
	}
	mem.SetDataSP(fx.Commit())
	return nil
}

func boolMask(v bool) uint16 {
	if v {
		return 0xFFFF
	}
	return 0
}

func digitChar(d byte) byte {
	if d < 10 {
		return '0' + d
	}
	return 'A' + (d - 10)
}

// FormatAt disassembles the instruction at ip into a human-readable line,
// for cmd/forthvm's -trace and -dump output. It never fails: an unreadable
// or unknown opcode still formats, describing the problem inline.
func (m *Machine) FormatAt(ip arena.Address) string {
	mem := m.Mem
	opByte, err := mem.Arena.ReadU8(ip, arena.Full())
	if err != nil {
		return fmt.Sprintf("%#04x: <unreadable: %v>", ip, err)
	}
	op := Opcode(opByte)
	name, known := opcodeNames[op]
	if !known {
		return fmt.Sprintf("%#04x: <illegal opcode %#02x>", ip, opByte)
	}
	switch op {
	case OpCall, OpGoTo, OpGoToIfZ:
		target, err := mem.Arena.ReadU16(ip+1, arena.Full())
		if err != nil {
			return fmt.Sprintf("%#04x: %s <unreadable operand>", ip, name)
		}
		return fmt.Sprintf("%#04x: %s %#04x", ip, name, target)
	case OpLiteral16:
		v, err := mem.Arena.ReadU16(ip+1, arena.Full())
		if err != nil {
			return fmt.Sprintf("%#04x: %s <unreadable operand>", ip, name)
		}
		return fmt.Sprintf("%#04x: %s %d", ip, name, v)
	case OpLiteralString, OpExecBuiltin:
		s, err := sstring.New(mem.Arena, ip+1, arena.Full())
		if err != nil {
			return fmt.Sprintf("%#04x: %s <unreadable operand>", ip, name)
		}
		return fmt.Sprintf("%#04x: %s %q", ip, name, s.AsBytes())
	default:
		return fmt.Sprintf("%#04x: %s", ip, name)
	}
}
