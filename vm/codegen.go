package vm

// ---------------------------------------------------------------------------
// Builder: symbolic program construction
// ---------------------------------------------------------------------------

// item is one token of a symbolic program: either a label declaration or
// an instruction whose operand may still be a label name.
type item struct {
	isLabel bool
	name    string // declared label, or symbolic jump target
	op      Opcode
	arg     int64
	hasArg  bool
}

// Builder accumulates symbolic instructions and label declarations, then
// resolves them into a Program. Emit methods return the builder so
// programs read as chains:
//
//	prog, err := vm.NewBuilder().
//		Push(10).
//		Push(20).
//		Add().
//		Print().
//		Halt().
//		Generate()
//
// A Builder holds no generation state between calls: Generate walks the
// recorded items from scratch each time, so generating twice yields
// identical Programs.
type Builder struct {
	items []item
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{items: make([]item, 0, 32)}
}

// Reset discards everything emitted so far.
func (b *Builder) Reset() {
	b.items = b.items[:0]
}

// Emit appends an opcode with no operand.
func (b *Builder) Emit(op Opcode) *Builder {
	b.items = append(b.items, item{op: op})
	return b
}

// EmitArg appends an opcode with a literal operand: a value for PUSH, a
// slot index for LOAD/STORE, or an already-resolved address for the
// jump family.
func (b *Builder) EmitArg(op Opcode, arg int64) *Builder {
	b.items = append(b.items, item{op: op, arg: arg, hasArg: true})
	return b
}

// EmitTarget appends a jump-family opcode whose operand is a label name,
// resolved during Generate.
func (b *Builder) EmitTarget(op Opcode, label string) *Builder {
	b.items = append(b.items, item{op: op, name: label})
	return b
}

// Label declares a label at the current position. The label binds to the
// index of the next instruction emitted after it; a label declared after
// the last instruction binds one past the end and may not be referenced.
func (b *Builder) Label(name string) *Builder {
	b.items = append(b.items, item{isLabel: true, name: name})
	return b
}

// ---------------------------------------------------------------------------
// Mnemonic helpers
// ---------------------------------------------------------------------------

// Push emits PUSH with a literal value.
func (b *Builder) Push(v int64) *Builder { return b.EmitArg(OpPUSH, v) }

// Pop emits POP.
func (b *Builder) Pop() *Builder { return b.Emit(OpPOP) }

// Dup emits DUP.
func (b *Builder) Dup() *Builder { return b.Emit(OpDUP) }

// Swap emits SWAP.
func (b *Builder) Swap() *Builder { return b.Emit(OpSWAP) }

// Add emits ADD.
func (b *Builder) Add() *Builder { return b.Emit(OpADD) }

// Sub emits SUB.
func (b *Builder) Sub() *Builder { return b.Emit(OpSUB) }

// Mul emits MUL.
func (b *Builder) Mul() *Builder { return b.Emit(OpMUL) }

// Div emits DIV.
func (b *Builder) Div() *Builder { return b.Emit(OpDIV) }

// Eq emits EQ.
func (b *Builder) Eq() *Builder { return b.Emit(OpEQ) }

// Neq emits NEQ.
func (b *Builder) Neq() *Builder { return b.Emit(OpNEQ) }

// Lt emits LT.
func (b *Builder) Lt() *Builder { return b.Emit(OpLT) }

// Gt emits GT.
func (b *Builder) Gt() *Builder { return b.Emit(OpGT) }

// And emits AND.
func (b *Builder) And() *Builder { return b.Emit(OpAND) }

// Or emits OR.
func (b *Builder) Or() *Builder { return b.Emit(OpOR) }

// Not emits NOT.
func (b *Builder) Not() *Builder { return b.Emit(OpNOT) }

// Load emits LOAD for a variable slot.
func (b *Builder) Load(slot int64) *Builder { return b.EmitArg(OpLOAD, slot) }

// Store emits STORE for a variable slot.
func (b *Builder) Store(slot int64) *Builder { return b.EmitArg(OpSTORE, slot) }

// Print emits PRINT.
func (b *Builder) Print() *Builder { return b.Emit(OpPRINT) }

// Halt emits HALT.
func (b *Builder) Halt() *Builder { return b.Emit(OpHALT) }

// Jump emits an unconditional jump to a label.
func (b *Builder) Jump(target string) *Builder { return b.EmitTarget(OpJMP, target) }

// JumpIfZero emits a jump taken when the popped top of stack is zero.
func (b *Builder) JumpIfZero(target string) *Builder { return b.EmitTarget(OpJZ, target) }

// JumpIfNotZero emits a jump taken when the popped top of stack is non-zero.
func (b *Builder) JumpIfNotZero(target string) *Builder { return b.EmitTarget(OpJNZ, target) }

// CallTo emits a subroutine call to a label.
func (b *Builder) CallTo(target string) *Builder { return b.EmitTarget(OpCALL, target) }

// Ret emits RET.
func (b *Builder) Ret() *Builder { return b.Emit(OpRET) }

// ---------------------------------------------------------------------------
// Generate: two-pass label resolution
// ---------------------------------------------------------------------------

// Generate resolves the recorded items into a Program.
//
// Pass 1 assigns each non-label item the next sequential instruction
// index and binds each label to the index of the instruction following
// it. Pass 2 re-walks the instructions, checks every operand against its
// opcode's arity, and replaces label operands with the addresses
// collected in pass 1. Any violation fails with *AssemblyError; no
// partial Program is returned.
func (b *Builder) Generate() (Program, error) {
	// Pass 1: index instructions, collect the label map.
	labels := make(map[string]int)
	count := 0
	for _, it := range b.items {
		if it.isLabel {
			if _, dup := labels[it.name]; dup {
				return nil, assemblyErrorf(0, "duplicate label %q", it.name)
			}
			labels[it.name] = count
			continue
		}
		count++
	}

	// Pass 2: arity-check and resolve.
	prog := make(Program, 0, count)
	for _, it := range b.items {
		if it.isLabel {
			continue
		}
		info := it.op.Info()
		if !it.op.Valid() {
			return nil, assemblyErrorf(0, "unknown opcode 0x%02X", byte(it.op))
		}

		hasOperand := it.hasArg || it.name != ""
		switch {
		case info.Operand == OperandNone && hasOperand:
			return nil, assemblyErrorf(0, "%s takes no operand", it.op)
		case info.Operand != OperandNone && !hasOperand:
			return nil, assemblyErrorf(0, "%s requires an operand", it.op)
		case it.name != "" && info.Operand != OperandAddr:
			return nil, assemblyErrorf(0, "%s cannot take label %q as operand", it.op, it.name)
		}

		arg := it.arg
		if it.name != "" {
			addr, ok := labels[it.name]
			if !ok {
				return nil, assemblyErrorf(0, "undefined label %q", it.name)
			}
			if addr >= count {
				// Trailing label: declared but bound past the last instruction.
				return nil, assemblyErrorf(0, "label %q points past the end of the program", it.name)
			}
			arg = int64(addr)
		}

		switch info.Operand {
		case OperandSlot:
			if arg < 0 {
				return nil, assemblyErrorf(0, "%s slot %d is negative", it.op, arg)
			}
		case OperandAddr:
			if arg < 0 || arg >= int64(count) {
				return nil, assemblyErrorf(0, "%s target %d is outside the program", it.op, arg)
			}
		}

		prog = append(prog, Instruction{Op: it.op, Arg: arg})
	}
	return prog, nil
}
