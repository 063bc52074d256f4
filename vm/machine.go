package vm

import (
	"context"
)

// ---------------------------------------------------------------------------
// Machine: program execution
// ---------------------------------------------------------------------------

// DefaultStackLimit is the operand stack depth used when a Machine's
// StackLimit is left at zero.
const DefaultStackLimit = 1024

// DefaultCallLimit is the call stack depth used when a Machine's
// CallLimit is left at zero.
const DefaultCallLimit = 1024

// Tracer observes instruction execution. Step is called once per
// instruction, before its effects, with the current program counter and
// operand stack depth.
type Tracer interface {
	Step(pc int, instr Instruction, depth int)
}

// Result is what a run leaves behind: the value on top of the operand
// stack when the program halted, or Empty if the stack held nothing.
type Result struct {
	Value int64
	Empty bool
}

// Machine executes Programs. It is single-threaded: one Execute call
// runs to completion or failure with no suspension points, and a
// Machine must not be shared across concurrent executions. All run
// state (stack, variable store, call stack, output) is reset on entry
// to Execute, so nothing carries over between runs; Output and Steps
// stay observable until the next run starts. The exported tunables are
// read at the start of Execute.
type Machine struct {
	StackLimit int    // operand stack depth cap; DefaultStackLimit if 0
	CallLimit  int    // call stack depth cap; DefaultCallLimit if 0
	MaxSteps   int    // instruction budget; 0 means unlimited
	Tracer     Tracer // observes each instruction; nil disables tracing

	stack   []int64
	sp      int
	vars    map[int]int64
	calls   []int
	callCap int
	pc      int
	out     []int64
	steps   int
}

// NewMachine creates a machine with default limits.
func NewMachine() *Machine {
	return &Machine{StackLimit: DefaultStackLimit}
}

func (m *Machine) reset() {
	limit := m.StackLimit
	if limit <= 0 {
		limit = DefaultStackLimit
	}
	if len(m.stack) != limit {
		m.stack = make([]int64, limit)
	}
	m.sp = 0
	m.vars = make(map[int]int64)
	m.calls = m.calls[:0]
	m.callCap = m.CallLimit
	if m.callCap <= 0 {
		m.callCap = DefaultCallLimit
	}
	m.pc = 0
	m.out = nil
	m.steps = 0
}

func (m *Machine) push(v int64) {
	m.stack[m.sp] = v
	m.sp++
}

func (m *Machine) pop() int64 {
	m.sp--
	return m.stack[m.sp]
}

// Output returns the values emitted by PRINT, in order. Output appended
// before a failing instruction survives the failure.
func (m *Machine) Output() []int64 {
	return m.out
}

// Steps returns the number of instructions executed by the last run.
func (m *Machine) Steps() int {
	return m.steps
}

// Execute runs the program from instruction 0 until HALT or a fatal
// error. See ExecuteContext for the semantics.
func (m *Machine) Execute(p Program) (Result, error) {
	return m.ExecuteContext(context.Background(), p)
}

// ExecuteContext runs the program from instruction 0. It returns the
// final stack top (Result.Empty when the stack is empty) on HALT, or a
// *RuntimeError identifying the failing instruction. The context is
// checked cooperatively between instructions, never mid-instruction;
// every opcode's effect is atomic with respect to observation.
//
// Running off the end of the program without a HALT is an implicit
// successful halt, same result rules as HALT. That mirrors the
// reference behavior; a stricter machine could treat a missing HALT as
// an error instead.
func (m *Machine) ExecuteContext(ctx context.Context, p Program) (Result, error) {
	m.reset()

	for m.pc < len(p) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		pc := m.pc
		instr := p[pc]

		info, known := opcodeTable[instr.Op]
		if !known {
			return Result{}, runtimeError(UnknownOpcode, pc, instr.Op)
		}
		if m.MaxSteps > 0 && m.steps >= m.MaxSteps {
			return Result{}, runtimeError(StepLimitExceeded, pc, instr.Op)
		}
		if m.sp < info.Pops {
			return Result{}, runtimeError(StackUnderflow, pc, instr.Op)
		}
		if m.sp-info.Pops+info.Pushes > len(m.stack) {
			return Result{}, runtimeError(StackOverflow, pc, instr.Op)
		}
		if m.Tracer != nil {
			m.Tracer.Step(pc, instr, m.sp)
		}
		m.steps++

		switch instr.Op {
		case OpPUSH:
			m.push(instr.Arg)
		case OpPOP:
			m.pop()
		case OpDUP:
			v := m.pop()
			m.push(v)
			m.push(v)
		case OpSWAP:
			b, a := m.pop(), m.pop()
			m.push(b)
			m.push(a)

		case OpADD:
			b, a := m.pop(), m.pop()
			m.push(a + b)
		case OpSUB:
			b, a := m.pop(), m.pop()
			m.push(a - b)
		case OpMUL:
			b, a := m.pop(), m.pop()
			m.push(a * b)
		case OpDIV:
			b, a := m.pop(), m.pop()
			if b == 0 {
				return Result{}, runtimeError(DivisionByZero, pc, instr.Op)
			}
			m.push(a / b)

		case OpEQ:
			b, a := m.pop(), m.pop()
			m.push(boolToInt(a == b))
		case OpNEQ:
			b, a := m.pop(), m.pop()
			m.push(boolToInt(a != b))
		case OpLT:
			b, a := m.pop(), m.pop()
			m.push(boolToInt(a < b))
		case OpGT:
			b, a := m.pop(), m.pop()
			m.push(boolToInt(a > b))

		case OpAND:
			b, a := m.pop(), m.pop()
			m.push(boolToInt(a != 0 && b != 0))
		case OpOR:
			b, a := m.pop(), m.pop()
			m.push(boolToInt(a != 0 || b != 0))
		case OpNOT:
			m.push(boolToInt(m.pop() == 0))

		case OpJMP:
			target, err := m.jumpTarget(p, pc, instr)
			if err != nil {
				return Result{}, err
			}
			m.pc = target
			continue
		case OpJZ:
			target, err := m.jumpTarget(p, pc, instr)
			if err != nil {
				return Result{}, err
			}
			if m.pop() == 0 {
				m.pc = target
				continue
			}
		case OpJNZ:
			target, err := m.jumpTarget(p, pc, instr)
			if err != nil {
				return Result{}, err
			}
			if m.pop() != 0 {
				m.pc = target
				continue
			}
		case OpCALL:
			target, err := m.jumpTarget(p, pc, instr)
			if err != nil {
				return Result{}, err
			}
			if len(m.calls) >= m.callCap {
				return Result{}, runtimeError(CallStackOverflow, pc, instr.Op)
			}
			m.calls = append(m.calls, pc+1)
			m.pc = target
			continue
		case OpRET:
			if len(m.calls) == 0 {
				return Result{}, runtimeError(CallStackUnderflow, pc, instr.Op)
			}
			m.pc = m.calls[len(m.calls)-1]
			m.calls = m.calls[:len(m.calls)-1]
			continue

		case OpLOAD:
			v, bound := m.vars[int(instr.Arg)]
			if !bound {
				return Result{}, runtimeError(UnboundVariable, pc, instr.Op)
			}
			m.push(v)
		case OpSTORE:
			m.vars[int(instr.Arg)] = m.pop()

		case OpPRINT:
			m.out = append(m.out, m.pop())
		case OpHALT:
			return m.result(), nil
		}
		m.pc++
	}

	// Ran off the end: implicit halt.
	return m.result(), nil
}

// jumpTarget validates a jump operand. A target of exactly len(p) is
// allowed and lands on the implicit halt past the last instruction.
func (m *Machine) jumpTarget(p Program, pc int, instr Instruction) (int, error) {
	target := int(instr.Arg)
	if target < 0 || target > len(p) {
		return 0, runtimeError(IllegalJump, pc, instr.Op)
	}
	return target, nil
}

func (m *Machine) result() Result {
	if m.sp == 0 {
		return Result{Empty: true}
	}
	return Result{Value: m.stack[m.sp-1]}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
