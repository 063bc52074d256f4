package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single machine operation. The set is closed: the
// assembler and the machine both dispatch over exactly the opcodes
// defined here.
type Opcode byte

// Stack manipulation
const (
	OpPUSH Opcode = 0x01 // push literal operand
	OpPOP  Opcode = 0x02 // discard top of stack
	OpDUP  Opcode = 0x03 // duplicate top of stack
	OpSWAP Opcode = 0x04 // exchange top two values
)

// Arithmetic (pop b, pop a, push a op b)
const (
	OpADD Opcode = 0x10
	OpSUB Opcode = 0x11
	OpMUL Opcode = 0x12
	OpDIV Opcode = 0x13 // truncating integer division
)

// Comparison (pop b, pop a, push 1 if the relation holds, else 0)
const (
	OpEQ  Opcode = 0x20
	OpNEQ Opcode = 0x21
	OpLT  Opcode = 0x22
	OpGT  Opcode = 0x23
)

// Logical (zero is false, anything else is true)
const (
	OpAND Opcode = 0x30
	OpOR  Opcode = 0x31
	OpNOT Opcode = 0x32
)

// Control flow
const (
	OpJMP  Opcode = 0x40 // jump to operand address
	OpJZ   Opcode = 0x41 // pop, jump if zero
	OpJNZ  Opcode = 0x42 // pop, jump if non-zero
	OpCALL Opcode = 0x43 // save return address, jump
	OpRET  Opcode = 0x44 // return to saved address
)

// Variable store
const (
	OpLOAD  Opcode = 0x50 // push value bound to slot operand
	OpSTORE Opcode = 0x51 // pop top of stack into slot operand
)

// Output and termination
const (
	OpPRINT Opcode = 0x60 // pop and append to the output sequence
	OpHALT  Opcode = 0x61 // stop execution
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind classifies what an opcode's operand means. Every opcode
// requires exactly one kind; OperandNone opcodes carry no operand at all.
type OperandKind int

const (
	OperandNone  OperandKind = iota // no operand
	OperandValue                    // literal value (PUSH)
	OperandSlot                     // variable slot index (LOAD, STORE)
	OperandAddr                     // instruction address; a label name before resolution
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string      // assembler mnemonic
	Operand OperandKind // operand the opcode requires
	Pops    int         // values consumed from the operand stack
	Pushes  int         // values produced
}

// opcodeTable maps opcodes to their metadata. Pops/Pushes drive the
// stack-effect check the machine performs before dispatch.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpPUSH: {"PUSH", OperandValue, 0, 1},
	OpPOP:  {"POP", OperandNone, 1, 0},
	OpDUP:  {"DUP", OperandNone, 1, 2},
	OpSWAP: {"SWAP", OperandNone, 2, 2},

	OpADD: {"ADD", OperandNone, 2, 1},
	OpSUB: {"SUB", OperandNone, 2, 1},
	OpMUL: {"MUL", OperandNone, 2, 1},
	OpDIV: {"DIV", OperandNone, 2, 1},

	OpEQ:  {"EQ", OperandNone, 2, 1},
	OpNEQ: {"NEQ", OperandNone, 2, 1},
	OpLT:  {"LT", OperandNone, 2, 1},
	OpGT:  {"GT", OperandNone, 2, 1},

	OpAND: {"AND", OperandNone, 2, 1},
	OpOR:  {"OR", OperandNone, 2, 1},
	OpNOT: {"NOT", OperandNone, 1, 1},

	OpJMP:  {"JMP", OperandAddr, 0, 0},
	OpJZ:   {"JZ", OperandAddr, 1, 0},
	OpJNZ:  {"JNZ", OperandAddr, 1, 0},
	OpCALL: {"CALL", OperandAddr, 0, 0},
	OpRET:  {"RET", OperandNone, 0, 0},

	OpLOAD:  {"LOAD", OperandSlot, 0, 1},
	OpSTORE: {"STORE", OperandSlot, 1, 0},

	OpPRINT: {"PRINT", OperandNone, 1, 0},
	OpHALT:  {"HALT", OperandNone, 0, 0},
}

// mnemonics maps assembler names back to opcodes.
var mnemonics = make(map[string]Opcode, len(opcodeTable))

func init() {
	for op, info := range opcodeTable {
		mnemonics[info.Name] = op
	}
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the assembler mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// OpcodeByName looks up an opcode by its assembler mnemonic.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := mnemonics[name]
	return op, ok
}
