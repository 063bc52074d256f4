package vm

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// Disassemble renders a Program as a human-readable listing. Label names
// do not survive resolution, so jump targets get synthetic L<n> labels,
// numbered in address order:
//
//	  0000: PUSH     3
//	L0:
//	  0001: DUP
//	  0002: JNZ      L0
//	  0003: HALT
//
// Disassembly is a pure view; it never affects execution.
func Disassemble(p Program) string {
	targets := make(map[int]string)
	for _, instr := range p {
		if instr.Op.Info().Operand == OperandAddr {
			targets[int(instr.Arg)] = ""
		}
	}
	addrs := make([]int, 0, len(targets))
	for addr := range targets {
		addrs = append(addrs, addr)
	}
	sort.Ints(addrs)
	for n, addr := range addrs {
		targets[addr] = fmt.Sprintf("L%d", n)
	}

	var sb strings.Builder
	for i, instr := range p {
		if label, ok := targets[i]; ok {
			fmt.Fprintf(&sb, "%s:\n", label)
		}
		info := instr.Op.Info()
		switch info.Operand {
		case OperandNone:
			fmt.Fprintf(&sb, "  %04d: %s\n", i, instr.Op)
		case OperandAddr:
			fmt.Fprintf(&sb, "  %04d: %-8s %s\n", i, instr.Op.Name(), targets[int(instr.Arg)])
		default:
			fmt.Fprintf(&sb, "  %04d: %-8s %d\n", i, instr.Op.Name(), instr.Arg)
		}
	}
	// A hand-built Program may jump one past the last instruction.
	if label, ok := targets[len(p)]; ok {
		fmt.Fprintf(&sb, "%s:\n", label)
	}
	return sb.String()
}
