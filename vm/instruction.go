package vm

import "fmt"

// Instruction is one resolved operation: an opcode plus its operand.
// Opcodes whose operand kind is OperandNone carry a zero Arg that is
// never read. For jump-family opcodes Arg is an absolute instruction
// index; label names exist only before resolution, inside the Builder.
type Instruction struct {
	Op  Opcode
	Arg int64
}

// String renders the instruction the way the disassembler does.
func (i Instruction) String() string {
	if i.Op.Info().Operand == OperandNone {
		return i.Op.Name()
	}
	return fmt.Sprintf("%s %d", i.Op.Name(), i.Arg)
}

// Program is an ordered, 0-indexed sequence of resolved instructions.
// A Program is read-only once the generator returns it; the machine
// never mutates it during execution.
type Program []Instruction
