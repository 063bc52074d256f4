// Package vm implements a stack-based virtual machine and its two-pass
// code generator.
//
// This package contains:
//   - Closed opcode set with per-opcode operand and stack-effect metadata
//   - Builder: symbolic programs with labels, resolved in two passes
//   - Text assembler for the same instruction set
//   - Machine: the fetch-decode-execute loop with explicit run state
//   - Disassembler producing an annotated listing
//
// A Program flows one way: the generator (or assembler) produces it, the
// Machine consumes it read-only. Generation failures are *AssemblyError;
// execution failures are *RuntimeError carrying the failing instruction
// index.
package vm
