package vm

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Text assembler
// ---------------------------------------------------------------------------

// Assemble translates assembler source into a resolved Program.
//
// Syntax: one instruction per line; `name:` declares a label (an
// instruction may follow on the same line); `;` starts a comment that
// runs to the end of the line. Operands are decimal integers, character
// literals such as 'A' (PUSH only), or jump targets. A jump target is
// either a label name or an absolute instruction address; label names
// must not parse as integers, so a numeric target always means an
// address.
//
//	        PUSH 10
//	loop:   LOAD 0
//	        JZ   done   ; exit when the counter reaches zero
//	done:   HALT
func Assemble(source string) (Program, error) {
	b := NewBuilder()
	declared := make(map[string]int) // label -> declaring line
	type labelRef struct {
		name string
		line int
	}
	var refs []labelRef

	for i, raw := range strings.Split(source, "\n") {
		lineNo := i + 1
		line := raw
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)

		for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
			name := strings.TrimSuffix(fields[0], ":")
			if name == "" {
				return nil, assemblyErrorf(lineNo, "empty label name")
			}
			if _, err := strconv.ParseInt(name, 10, 64); err == nil {
				return nil, assemblyErrorf(lineNo, "label name %q must not be numeric", name)
			}
			if prev, dup := declared[name]; dup {
				return nil, assemblyErrorf(lineNo, "duplicate label %q (first declared on line %d)", name, prev)
			}
			declared[name] = lineNo
			b.Label(name)
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}

		op, ok := OpcodeByName(strings.ToUpper(fields[0]))
		if !ok {
			return nil, assemblyErrorf(lineNo, "unknown instruction %q", fields[0])
		}
		info := op.Info()
		operands := fields[1:]

		if info.Operand == OperandNone {
			if len(operands) != 0 {
				return nil, assemblyErrorf(lineNo, "%s takes no operand", op)
			}
			b.Emit(op)
			continue
		}
		if len(operands) == 0 {
			return nil, assemblyErrorf(lineNo, "%s requires an operand", op)
		}
		if len(operands) > 1 {
			return nil, assemblyErrorf(lineNo, "%s takes a single operand", op)
		}
		tok := operands[0]

		switch info.Operand {
		case OperandValue:
			v, err := parseValue(tok)
			if err != nil {
				return nil, assemblyErrorf(lineNo, "%s: bad operand %q", op, tok)
			}
			b.EmitArg(op, v)
		case OperandSlot:
			slot, err := strconv.ParseInt(tok, 10, 64)
			if err != nil || slot < 0 {
				return nil, assemblyErrorf(lineNo, "%s: slot must be a non-negative integer, got %q", op, tok)
			}
			b.EmitArg(op, slot)
		case OperandAddr:
			if addr, err := strconv.ParseInt(tok, 10, 64); err == nil {
				b.EmitArg(op, addr)
			} else {
				refs = append(refs, labelRef{name: tok, line: lineNo})
				b.EmitTarget(op, tok)
			}
		}
	}

	// Report undefined labels against the referencing line; Generate
	// would catch them too, but without source positions.
	for _, ref := range refs {
		if _, ok := declared[ref.name]; !ok {
			return nil, assemblyErrorf(ref.line, "undefined label %q", ref.name)
		}
	}

	return b.Generate()
}

// parseValue parses a PUSH operand: a decimal integer or a quoted
// character literal.
func parseValue(tok string) (int64, error) {
	if v, ok := parseCharLiteral(tok); ok {
		return v, nil
	}
	return strconv.ParseInt(tok, 10, 64)
}

func parseCharLiteral(tok string) (int64, bool) {
	if len(tok) < 3 || tok[0] != '\'' || tok[len(tok)-1] != '\'' {
		return 0, false
	}
	body := tok[1 : len(tok)-1]
	switch body {
	case `\n`:
		return '\n', true
	case `\t`:
		return '\t', true
	case `\\`:
		return '\\', true
	case `\'`:
		return '\'', true
	}
	r, size := utf8.DecodeRuneInString(body)
	if r == utf8.RuneError || size != len(body) {
		return 0, false
	}
	return int64(r), true
}
