package main

import (
	"fmt"
	"io"

	"forthvm/internal/arena"
	"forthvm/machine"
)

// c0Ctls renders the classic ASCII control bytes as their caret-style
// mnemonic, for dictionary bytes that don't print cleanly. Trimmed from a
// larger rune-level table down to just what raw dictionary bytes need.
var c0Ctls = [32]string{
	"<NUL>", "<SOH>", "<STX>", "<ETX>", "<EOT>", "<ENQ>", "<ACK>", "<BEL>",
	"<BS>", "<HT>", "<NL>", "<VT>", "<NP>", "<CR>", "<SO>", "<SI>",
	"<DLE>", "<DC1>", "<DC2>", "<DC3>", "<DC4>", "<NAK>", "<SYN>", "<ETB>",
	"<CAN>", "<EM>", "<SUB>", "<ESC>", "<FS>", "<GS>", "<RS>", "<US>",
}

func formatByte(b byte) string {
	switch {
	case b < 0x20:
		return c0Ctls[b]
	case b == 0x7F:
		return "<DEL>"
	case b < 0x7F:
		return string(rune(b))
	default:
		return fmt.Sprintf("<%#02x>", b)
	}
}

// dumper prints a post-mortem snapshot of a Machine: its reserved
// variables, both stacks, and a disassembly of the dictionary, the way
// the teacher's vmDumper renders its own VM's flat memory.
type dumper struct {
	m   *machine.Machine
	out io.Writer
}

func (d dumper) dump() {
	d.dumpVars()
	d.dumpStack("data", d.m.Mem.DataSP(), d.m.Mem.StacksBorder())
	d.dumpStack("call", d.m.Mem.CallSP(), d.m.Mem.ReservedBase())
	d.dumpDict()
	d.dumpArticles()
}

func (d dumper) dumpVars() {
	state, _ := d.m.Mem.GetState()
	base, _ := d.m.Mem.GetBase()
	fmt.Fprintf(d.out, "HERE=%#04x STATE=%d BASE=%d\n", d.m.Mem.Here(), state, base)
}

func (d dumper) dumpStack(name string, sp, border arena.Address) {
	fmt.Fprintf(d.out, "%s stack [%#04x, %#04x):", name, sp, border)
	for addr := sp; addr+1 < border; addr += 2 {
		v, err := d.m.Mem.Arena.ReadU16(addr, arena.Full())
		if err != nil {
			fmt.Fprintf(d.out, " <unreadable: %v>", err)
			break
		}
		fmt.Fprintf(d.out, " %d", v)
	}
	fmt.Fprintln(d.out)
}

func (d dumper) dumpDict() {
	fmt.Fprintln(d.out, "dictionary:")
	here := d.m.Mem.Here()
	for ip := arena.Address(0); ip < here; {
		line := d.m.FormatAt(ip)
		fmt.Fprintln(d.out, line)
		next := advancePast(d.m, ip)
		if next <= ip {
			break
		}
		ip = next
	}
}

// advancePast mirrors the byte width ExecuteAt/FormatAt give each opcode,
// without re-executing it, so the disassembly loop can step over operands.
func advancePast(m *machine.Machine, ip arena.Address) arena.Address {
	b, err := m.Mem.Arena.ReadU8(ip, arena.Full())
	if err != nil {
		return ip + 1
	}
	switch machine.Opcode(b) {
	case machine.OpCall, machine.OpGoTo, machine.OpGoToIfZ, machine.OpLiteral16:
		return ip + 3
	case machine.OpLiteralString, machine.OpExecBuiltin:
		length, err := m.Mem.Arena.ReadU8(ip+1, arena.Full())
		if err != nil {
			return ip + 1
		}
		return ip + 2 + arena.Address(length)
	default:
		return ip + 1
	}
}

func (d dumper) dumpArticles() {
	fmt.Fprintln(d.out, "articles (most recent first):")
	addr, ok := d.m.Mem.LastArticle()
	if !ok {
		fmt.Fprintln(d.out, "  <none>")
		return
	}
	art, err := d.m.Mem.Article(addr)
	if err != nil {
		fmt.Fprintf(d.out, "  <unreadable %#04x: %v>\n", addr, err)
		return
	}
	for {
		fmt.Fprintf(d.out, "  %#04x %s -> body %#04x\n", art.HeaderAddress(), formatName(art.Name()), art.BodyAddress())
		next, ok, err := art.Previous(d.m.Mem.Arena, arena.Full())
		if err != nil {
			fmt.Fprintf(d.out, "  <unreadable: %v>\n", err)
			return
		}
		if !ok {
			return
		}
		art = next
	}
}

func formatName(name []byte) string {
	out := make([]byte, 0, len(name))
	for _, b := range name {
		if b < 0x20 || b >= 0x7F {
			out = append(out, []byte(formatByte(b))...)
			continue
		}
		out = append(out, b)
	}
	return string(out)
}
