// Package bytecode defines Flock's instruction set and the immutable,
// indexed bytecode image the interpreter steps through.
package bytecode

import "fmt"

// Op names an instruction. Operands live alongside it on Instruction,
// mirroring the tagged-variant shape of the original spec (PUSH(i64),
// BURY(i), JMP(flags, target?), ...) rather than a packed byte stream —
// Flock's bytecode is a structured, already-linked program, not a wire
// format (that's the external assembler's concern).
type Op byte

const (
	OP_PUSH OpCode = iota // push literal Value
	OP_ADD                // pop two, push wrapping sum
	OP_DUP                // duplicate top of stack
	OP_POP                // discard top of stack
	OP_BURY                // pop top, insert at depth Index from new top
	OP_DREDGE              // remove element at depth Index, push on top
	OP_JMP                 // conditional jump: Flags, optional Target
	OP_JSR                 // push return PC, jump to optional Target
	OP_RET                 // pop target, set program counter
	OP_FORK                 // yield to scheduler requesting a sibling task
	OP_JOIN                 // pop task id, yield requesting Count return values
	OP_STORE                // pop value, write shared memory at Addr
	OP_LOAD                 // push shared memory read at Addr
	OP_STORE_REL             // pop base+value, write shared memory at base+Offset
	OP_LOAD_REL              // pop base, push shared memory read at base+Offset
	OP_HALT                  // terminate task immediately
	OP_PANIC                 // terminate task with an execution error
	OP_DUMP_DEBUG            // emit a diagnostic dump; does not alter PC or stack
)

// OpCode is kept as an alias name so callers read naturally as
// bytecode.OpCode, matching the terminology used throughout the spec.
type OpCode = Op

var opNames = map[OpCode]string{
	OP_PUSH:       "PUSH",
	OP_ADD:        "ADD",
	OP_DUP:        "DUP",
	OP_POP:        "POP",
	OP_BURY:       "BURY",
	OP_DREDGE:     "DREDGE",
	OP_JMP:        "JMP",
	OP_JSR:        "JSR",
	OP_RET:        "RET",
	OP_FORK:       "FORK",
	OP_JOIN:       "JOIN",
	OP_STORE:      "STORE",
	OP_LOAD:       "LOAD",
	OP_STORE_REL:  "STORE_REL",
	OP_LOAD_REL:   "LOAD_REL",
	OP_HALT:       "HALT",
	OP_PANIC:      "PANIC",
	OP_DUMP_DEBUG: "DUMP_DEBUG",
}

// String renders an opcode's mnemonic, "UNKNOWN" for anything out of range
// (the interpreter surfaces that case as task.ErrUnknownOpCode).
func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConditionFlags is a bitset over JMP's predicates. The empty set means
// "unconditional".
type ConditionFlags uint8

const (
	FlagZero ConditionFlags = 1 << iota // top-of-stack (peeked) equals 0
	FlagFork                            // the task's "forked" flag is true
)

// Has reports whether all bits in want are set in f.
func (f ConditionFlags) Has(want ConditionFlags) bool {
	return f&want == want
}

func (f ConditionFlags) String() string {
	if f == 0 {
		return "unconditional"
	}
	s := ""
	if f.Has(FlagZero) {
		s += "ZERO"
	}
	if f.Has(FlagFork) {
		if s != "" {
			s += "|"
		}
		s += "FORK"
	}
	return s
}

// Instruction is one decoded bytecode instruction. Which operand fields are
// meaningful depends on Op; see the OP_* constants above for the contract
// of each.
type Instruction struct {
	Op OpCode

	Value  int64          // OP_PUSH
	Index  int            // OP_BURY, OP_DREDGE (stack depth)
	Flags  ConditionFlags // OP_JMP
	Target *uint64        // OP_JMP, OP_JSR: literal target, nil = pop from stack
	Count  int            // OP_JOIN: number of trailing values to import
	Addr   uint64         // OP_STORE, OP_LOAD
	Offset int64          // OP_STORE_REL, OP_LOAD_REL
}

// String renders the instruction roughly as the assembler's textual form,
// used by DUMP_DEBUG windows and test failure messages.
func (ins Instruction) String() string {
	switch ins.Op {
	case OP_PUSH:
		return fmt.Sprintf("PUSH %d", ins.Value)
	case OP_BURY:
		return fmt.Sprintf("BURY %d", ins.Index)
	case OP_DREDGE:
		return fmt.Sprintf("DREDGE %d", ins.Index)
	case OP_JMP:
		if ins.Target != nil {
			return fmt.Sprintf("JMP %s, %d", ins.Flags, *ins.Target)
		}
		return fmt.Sprintf("JMP %s", ins.Flags)
	case OP_JSR:
		if ins.Target != nil {
			return fmt.Sprintf("JSR %d", *ins.Target)
		}
		return "JSR"
	case OP_JOIN:
		return fmt.Sprintf("JOIN %d", ins.Count)
	case OP_STORE:
		return fmt.Sprintf("STORE %#x", ins.Addr)
	case OP_LOAD:
		return fmt.Sprintf("LOAD %#x", ins.Addr)
	case OP_STORE_REL:
		return fmt.Sprintf("STORE_REL %d", ins.Offset)
	case OP_LOAD_REL:
		return fmt.Sprintf("LOAD_REL %d", ins.Offset)
	default:
		return ins.Op.String()
	}
}
