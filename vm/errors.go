package vm

import "fmt"

// ---------------------------------------------------------------------------
// AssemblyError: generation-time failures
// ---------------------------------------------------------------------------

// AssemblyError reports a problem turning symbolic instructions into a
// Program: a duplicate or undefined label, or an operand that does not
// match its opcode's arity. It is never produced during execution.
type AssemblyError struct {
	Line int // 1-based source line, 0 when built programmatically
	Msg  string
}

func (e *AssemblyError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("assembly error on line %d: %s", e.Line, e.Msg)
	}
	return "assembly error: " + e.Msg
}

func assemblyErrorf(line int, format string, args ...any) *AssemblyError {
	return &AssemblyError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// RuntimeError: execution-time failures
// ---------------------------------------------------------------------------

// RuntimeErrorKind identifies the precondition an instruction violated.
type RuntimeErrorKind int

const (
	StackUnderflow     RuntimeErrorKind = iota // operation needed more stack values than present
	StackOverflow                              // operand stack would exceed the machine's limit
	DivisionByZero                             // DIV with a zero divisor
	UnboundVariable                            // LOAD of a slot never stored to
	CallStackUnderflow                         // RET with no saved return address
	CallStackOverflow                          // call stack would exceed the machine's limit
	IllegalJump                                // jump target outside the program
	UnknownOpcode                              // instruction not part of the opcode set
	StepLimitExceeded                          // machine's instruction budget exhausted
)

var runtimeErrorNames = map[RuntimeErrorKind]string{
	StackUnderflow:     "stack underflow",
	StackOverflow:      "stack overflow",
	DivisionByZero:     "division by zero",
	UnboundVariable:    "unbound variable",
	CallStackUnderflow: "call stack underflow",
	CallStackOverflow:  "call stack overflow",
	IllegalJump:        "illegal jump",
	UnknownOpcode:      "unknown opcode",
	StepLimitExceeded:  "step limit exceeded",
}

func (k RuntimeErrorKind) String() string {
	if name, ok := runtimeErrorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("runtime error kind %d", int(k))
}

// RuntimeError reports a fatal execution failure. PC is the index of the
// instruction that failed; execution stops immediately, leaving any
// output appended before the failure observable on the machine.
type RuntimeError struct {
	Kind RuntimeErrorKind
	PC   int
	Op   Opcode
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s at %04d (%s)", e.Kind, e.PC, e.Op)
}

func runtimeError(kind RuntimeErrorKind, pc int, op Opcode) *RuntimeError {
	return &RuntimeError{Kind: kind, PC: pc, Op: op}
}
