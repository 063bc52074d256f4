package vm

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mustGenerate(t *testing.T, b *Builder) Program {
	t.Helper()
	prog, err := b.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return prog
}

func wantRuntimeError(t *testing.T, err error, kind RuntimeErrorKind) *RuntimeError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a %s error, got nil", kind)
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v (%T), want *RuntimeError", err, err)
	}
	if rerr.Kind != kind {
		t.Fatalf("error kind = %s, want %s", rerr.Kind, kind)
	}
	return rerr
}

// pcRecorder records the program counter of every executed instruction.
type pcRecorder struct {
	pcs []int
}

func (r *pcRecorder) Step(pc int, instr Instruction, depth int) {
	r.pcs = append(r.pcs, pc)
}

// fibonacciBuilder builds the looped Fibonacci program: slot 0 holds the
// current number, slot 1 the next, slot 2 the remaining count.
func fibonacciBuilder(k int64) *Builder {
	return NewBuilder().
		Push(0).Store(0).
		Push(1).Store(1).
		Push(k).Store(2).
		Label("loop").
		Load(2).JumpIfZero("done").
		Load(0).Print().
		Load(0).Load(1).Add().
		Load(1).Store(0).
		Store(1).
		Load(2).Push(1).Sub().Store(2).
		Jump("loop").
		Label("done").
		Halt()
}

// ---------------------------------------------------------------------------
// Arithmetic and stack behavior
// ---------------------------------------------------------------------------

func TestExecuteArithmetic(t *testing.T) {
	// (10+20)*3-5 = 85
	prog := mustGenerate(t, NewBuilder().
		Push(10).Push(20).Add().
		Push(3).Mul().
		Push(5).Sub().
		Print().
		Halt())

	m := NewMachine()
	res, err := m.Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(m.Output(), []int64{85}) {
		t.Errorf("output = %v, want [85]", m.Output())
	}
	// PRINT consumed the value, so nothing is left on the stack.
	if !res.Empty {
		t.Errorf("result = %d, want empty stack", res.Value)
	}
}

func TestExecutePrintConsumesValue(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Push(85).Print().Halt())
	m := NewMachine()
	res, err := m.Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(m.Output(), []int64{85}) {
		t.Errorf("output = %v, want [85]", m.Output())
	}
	if !res.Empty {
		t.Errorf("result = %d, want empty stack", res.Value)
	}

	// Print-and-keep needs an explicit DUP.
	prog = mustGenerate(t, NewBuilder().Push(85).Dup().Print().Halt())
	m = NewMachine()
	res, err = m.Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Empty || res.Value != 85 {
		t.Errorf("result = %+v, want 85 on the stack", res)
	}
}

func TestExecuteOperandOrder(t *testing.T) {
	// SUB and DIV must compute a op b with b on top.
	prog := mustGenerate(t, NewBuilder().Push(7).Push(2).Sub().Halt())
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 5 {
		t.Errorf("7 - 2 = %d, want 5", res.Value)
	}

	prog = mustGenerate(t, NewBuilder().Push(7).Push(2).Div().Halt())
	res, err = NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 3 {
		t.Errorf("7 / 2 = %d, want 3", res.Value)
	}
}

func TestExecuteDupAndSwap(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Push(1).Dup().Add().Halt())
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 2 {
		t.Errorf("DUP+ADD = %d, want 2", res.Value)
	}

	prog = mustGenerate(t, NewBuilder().Push(10).Push(3).Swap().Sub().Halt())
	res, err = NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != -7 {
		t.Errorf("SWAP then SUB = %d, want -7", res.Value)
	}
}

func TestExecuteComparisons(t *testing.T) {
	cases := []struct {
		op   Opcode
		a, b int64
		want int64
	}{
		{OpLT, 1, 2, 1},
		{OpLT, 2, 1, 0},
		{OpGT, 2, 1, 1},
		{OpGT, 1, 2, 0},
		{OpEQ, 3, 3, 1},
		{OpEQ, 3, 4, 0},
		{OpNEQ, 3, 4, 1},
		{OpNEQ, 3, 3, 0},
	}
	for _, tc := range cases {
		prog := mustGenerate(t, NewBuilder().Push(tc.a).Push(tc.b).Emit(tc.op).Halt())
		res, err := NewMachine().Execute(prog)
		if err != nil {
			t.Fatalf("%s(%d, %d) failed: %v", tc.op, tc.a, tc.b, err)
		}
		if res.Value != tc.want {
			t.Errorf("%d %s %d = %d, want %d", tc.a, tc.op, tc.b, res.Value, tc.want)
		}
	}
}

func TestExecuteLogical(t *testing.T) {
	cases := []struct {
		op   Opcode
		a, b int64
		want int64
	}{
		{OpAND, 1, 1, 1},
		{OpAND, 1, 0, 0},
		{OpAND, 5, -3, 1}, // any non-zero value is true
		{OpOR, 0, 0, 0},
		{OpOR, 0, 7, 1},
	}
	for _, tc := range cases {
		prog := mustGenerate(t, NewBuilder().Push(tc.a).Push(tc.b).Emit(tc.op).Halt())
		res, err := NewMachine().Execute(prog)
		if err != nil {
			t.Fatalf("%s(%d, %d) failed: %v", tc.op, tc.a, tc.b, err)
		}
		if res.Value != tc.want {
			t.Errorf("%d %s %d = %d, want %d", tc.a, tc.op, tc.b, res.Value, tc.want)
		}
	}

	prog := mustGenerate(t, NewBuilder().Push(0).Not().Halt())
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("NOT failed: %v", err)
	}
	if res.Value != 1 {
		t.Errorf("NOT 0 = %d, want 1", res.Value)
	}
}

// ---------------------------------------------------------------------------
// Halting
// ---------------------------------------------------------------------------

func TestExecuteEmptyStackResult(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Push(1).Pop().Halt())
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Empty {
		t.Errorf("result = %v, want empty", res)
	}
}

func TestExecuteImplicitHalt(t *testing.T) {
	// No HALT: running off the end halts successfully.
	prog := mustGenerate(t, NewBuilder().Push(4).Push(5).Mul())
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 20 {
		t.Errorf("result = %d, want 20", res.Value)
	}
}

func TestExecuteHaltStopsEarly(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Push(1).Halt().Push(2).Print())
	m := NewMachine()
	res, err := m.Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 1 {
		t.Errorf("result = %d, want 1", res.Value)
	}
	if len(m.Output()) != 0 {
		t.Errorf("output = %v, want none", m.Output())
	}
	if m.Steps() != 2 {
		t.Errorf("steps = %d, want 2", m.Steps())
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestExecuteSequentialProgramCounter(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().
		Push(1).Push(2).Add().Push(3).Mul().Halt())

	rec := &pcRecorder{}
	m := NewMachine()
	m.Tracer = rec
	if _, err := m.Execute(prog); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := []int{0, 1, 2, 3, 4, 5}
	if !reflect.DeepEqual(rec.pcs, want) {
		t.Errorf("pc sequence = %v, want %v", rec.pcs, want)
	}
}

func TestExecuteJZTaken(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().
		Push(0).
		JumpIfZero("skip").
		Push(42).Print().
		Label("skip").
		Push(99).Print().
		Halt())

	m := NewMachine()
	if _, err := m.Execute(prog); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(m.Output(), []int64{99}) {
		t.Errorf("output = %v, want [99]", m.Output())
	}
}

func TestExecuteJZNotTaken(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().
		Push(1).
		JumpIfZero("skip").
		Push(42).Print().
		Halt().
		Label("skip").
		Push(99).Print().
		Halt())

	rec := &pcRecorder{}
	m := NewMachine()
	m.Tracer = rec
	if _, err := m.Execute(prog); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// Branch not taken: pc advances by exactly 1 past the JZ and the
	// target's instructions never run.
	want := []int{0, 1, 2, 3, 4}
	if !reflect.DeepEqual(rec.pcs, want) {
		t.Errorf("pc sequence = %v, want %v", rec.pcs, want)
	}
	if !reflect.DeepEqual(m.Output(), []int64{42}) {
		t.Errorf("output = %v, want [42]", m.Output())
	}
}

func TestExecuteJNZ(t *testing.T) {
	// Count down from 3, printing each value.
	prog := mustGenerate(t, NewBuilder().
		Push(3).Store(0).
		Label("loop").
		Load(0).Print().
		Load(0).Push(1).Sub().Store(0).
		Load(0).JumpIfNotZero("loop").
		Halt())

	m := NewMachine()
	if _, err := m.Execute(prog); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(m.Output(), []int64{3, 2, 1}) {
		t.Errorf("output = %v, want [3 2 1]", m.Output())
	}
}

func TestExecuteCallAndRet(t *testing.T) {
	// main: CALL double(stack: 21), PRINT, HALT; double: DUP ADD RET
	prog := mustGenerate(t, NewBuilder().
		Push(21).
		CallTo("double").
		Print().
		Halt().
		Label("double").
		Dup().Add().Ret())

	m := NewMachine()
	if _, err := m.Execute(prog); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(m.Output(), []int64{42}) {
		t.Errorf("output = %v, want [42]", m.Output())
	}
}

func TestExecuteCallStackOverflow(t *testing.T) {
	// A CALL loop that never returns is stopped by the call depth cap.
	prog := mustGenerate(t, NewBuilder().Label("loop").CallTo("loop"))
	m := NewMachine()
	m.CallLimit = 8
	_, err := m.Execute(prog)
	rerr := wantRuntimeError(t, err, CallStackOverflow)
	if rerr.PC != 0 {
		t.Errorf("PC = %d, want 0", rerr.PC)
	}
}

func TestExecuteFibonacci(t *testing.T) {
	prog := mustGenerate(t, fibonacciBuilder(10))

	m := NewMachine()
	if _, err := m.Execute(prog); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := []int64{0, 1, 1, 2, 3, 5, 8, 13, 21, 34}
	if !reflect.DeepEqual(m.Output(), want) {
		t.Errorf("output = %v, want %v", m.Output(), want)
	}
}

// ---------------------------------------------------------------------------
// Variable store
// ---------------------------------------------------------------------------

func TestExecuteStoreOverwrites(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().
		Push(1).Store(0).
		Push(2).Store(0).
		Load(0).Halt())
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 2 {
		t.Errorf("slot 0 = %d, want 2", res.Value)
	}
}

func TestExecuteStateDoesNotSurviveRuns(t *testing.T) {
	m := NewMachine()

	store := mustGenerate(t, NewBuilder().Push(7).Store(0).Halt())
	if _, err := m.Execute(store); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	load := mustGenerate(t, NewBuilder().Load(0).Halt())
	_, err := m.Execute(load)
	wantRuntimeError(t, err, UnboundVariable)
}

// ---------------------------------------------------------------------------
// Failure modes
// ---------------------------------------------------------------------------

func TestExecuteStackUnderflow(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Add())
	_, err := NewMachine().Execute(prog)
	rerr := wantRuntimeError(t, err, StackUnderflow)
	if rerr.PC != 0 {
		t.Errorf("failing pc = %d, want 0", rerr.PC)
	}
}

func TestExecuteUnderflowWithOneOfTwo(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Push(1).Add())
	_, err := NewMachine().Execute(prog)
	wantRuntimeError(t, err, StackUnderflow)
}

func TestExecuteDivisionByZero(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Push(5).Push(0).Div())
	_, err := NewMachine().Execute(prog)
	rerr := wantRuntimeError(t, err, DivisionByZero)
	if rerr.PC != 2 {
		t.Errorf("failing pc = %d, want 2", rerr.PC)
	}
}

func TestExecuteUnboundVariable(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Load(3).Halt())
	_, err := NewMachine().Execute(prog)
	wantRuntimeError(t, err, UnboundVariable)
}

func TestExecuteRetWithoutCall(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Ret())
	_, err := NewMachine().Execute(prog)
	wantRuntimeError(t, err, CallStackUnderflow)
}

func TestExecuteStackOverflow(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().
		Push(1).Push(2).Push(3).Push(4).Push(5).Halt())
	m := NewMachine()
	m.StackLimit = 4
	_, err := m.Execute(prog)
	rerr := wantRuntimeError(t, err, StackOverflow)
	if rerr.PC != 4 {
		t.Errorf("failing pc = %d, want 4", rerr.PC)
	}
}

func TestExecuteStepLimitExceeded(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Label("spin").Push(0).Pop().Jump("spin"))
	m := NewMachine()
	m.MaxSteps = 100
	_, err := m.Execute(prog)
	wantRuntimeError(t, err, StepLimitExceeded)
	if m.Steps() != 100 {
		t.Errorf("steps = %d, want 100", m.Steps())
	}
}

func TestExecuteIllegalJump(t *testing.T) {
	// Hand-built program with a negative target; the generator would
	// have rejected it.
	prog := Program{{Op: OpJMP, Arg: -1}}
	_, err := NewMachine().Execute(prog)
	wantRuntimeError(t, err, IllegalJump)
}

func TestExecuteJumpToEndHalts(t *testing.T) {
	// A hand-built jump to len(prog) lands on the implicit halt.
	prog := Program{{Op: OpPUSH, Arg: 9}, {Op: OpJMP, Arg: 2}}
	res, err := NewMachine().Execute(prog)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value != 9 {
		t.Errorf("result = %d, want 9", res.Value)
	}
}

func TestExecuteUnknownOpcode(t *testing.T) {
	prog := Program{{Op: Opcode(0xEE)}}
	_, err := NewMachine().Execute(prog)
	wantRuntimeError(t, err, UnknownOpcode)
}

func TestExecuteOutputSurvivesFailure(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().
		Push(11).Print().
		Push(5).Push(0).Div().
		Halt())
	m := NewMachine()
	_, err := m.Execute(prog)
	wantRuntimeError(t, err, DivisionByZero)
	if !reflect.DeepEqual(m.Output(), []int64{11}) {
		t.Errorf("output = %v, want [11]", m.Output())
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestExecuteContextCancelled(t *testing.T) {
	prog := mustGenerate(t, NewBuilder().Label("spin").Jump("spin"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMachine().ExecuteContext(ctx, prog)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
