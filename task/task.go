// Package task implements Flock's per-task execution state and the
// bytecode interpreter that drives it one instruction at a time. Grounded
// on barn's task.Task (per-task state) and vm.VM's executeLoop (the
// tick-until-yield shape), generalized from MOO verb frames to a single
// flat value stack per §3's Task definition.
package task

import (
	"flock/bytecode"
	"flock/memory"
	"flock/trace"
	"math/rand"
	"sync/atomic"
)

// processNonce is drawn once per process and composed with a monotonic
// counter to produce task ids, so ids stay globally unique across the
// cluster without coordination — adopted from the Design Notes'
// recommended strengthening of pure-random id generation.
var processNonce = rand.New(rand.NewSource(int64(rand.Uint64()))).Uint64()

var idCounter uint64

// NewID returns a fresh, process-unique task id: a monotonic counter
// folded into the process nonce.
func NewID() uint64 {
	n := atomic.AddUint64(&idCounter, 1)
	return processNonce ^ (n * 0x9E3779B97F4A7C15) // Fibonacci hashing to spread counter bits
}

// Task owns one independently scheduled unit of execution: a program
// counter, a value stack, and the "forked" flag FORK/JMP use to tell
// parent and child apart.
type Task struct {
	PC     uint64
	Stack  []int64
	Forked bool
}

// New creates a task starting at instruction 0 with an empty stack.
func New() *Task {
	return &Task{Stack: make([]int64, 0, 16)}
}

// Clone produces a deep copy of the task's execution state, used by FORK to
// create the sibling before the two diverge.
func (t *Task) Clone() *Task {
	stack := make([]int64, len(t.Stack))
	copy(stack, t.Stack)
	return &Task{PC: t.PC, Stack: stack, Forked: t.Forked}
}

// TaskOrder is the scheduler-visible envelope around a task: its identity,
// the bytecode it runs against, and its current execution state. The
// scheduler treats it as an opaque unit of work.
type TaskOrder struct {
	ID         uint64
	BytecodeID uint64
	Task       *Task
}

// Outcome classifies what a tick (or a run-to-yield) produced.
type Outcome int

const (
	Continue Outcome = iota
	Terminated
	Fork
	Join
	Error
)

// TickResult is tick's return value: which Outcome occurred, plus whatever
// detail that outcome carries (join target/count, the execution error, or
// the address/value a STORE/STORE_REL just wrote, for the caller to mirror
// to connected peers per §4.6).
type TickResult struct {
	Outcome    Outcome
	JoinTaskID uint64
	JoinCount  int
	Err        *ExecutionError

	Stored     bool
	StoreAddr  uint64
	StoreValue int64
}

var continueResult = TickResult{Outcome: Continue}
var terminatedResult = TickResult{Outcome: Terminated}

func errResult(err *ExecutionError) TickResult {
	return TickResult{Outcome: Error, Err: err}
}

// Run ticks the task until it yields anything other than Continue: it
// terminates, forks, joins, or fails. Continue results are not returned,
// so STOREs made along the way are not reported for mirroring;
// executor.Local calls Tick directly instead.
func (t *Task) Run(img *bytecode.Image, mem *memory.Shared) TickResult {
	for {
		r := t.Tick(img, mem)
		if r.Outcome != Continue {
			return r
		}
	}
}

// Tick executes exactly one instruction, per §4.1's interpreter contract.
func (t *Task) Tick(img *bytecode.Image, mem *memory.Shared) TickResult {
	ins, ok := img.Get(t.PC)
	if !ok {
		return terminatedResult
	}
	t.PC++

	switch ins.Op {
	case bytecode.OP_PUSH:
		t.push(ins.Value)

	case bytecode.OP_ADD:
		b, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		a, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		t.push(a + b) // two's-complement wraps on overflow

	case bytecode.OP_DUP:
		v, err := t.peek()
		if err != nil {
			return errResult(err)
		}
		t.push(v)

	case bytecode.OP_POP:
		if _, err := t.pop(); err != nil {
			return errResult(err)
		}

	case bytecode.OP_BURY:
		if err := t.bury(ins.Index); err != nil {
			return errResult(err)
		}

	case bytecode.OP_DREDGE:
		if err := t.dredge(ins.Index); err != nil {
			return errResult(err)
		}

	case bytecode.OP_JMP:
		take, err := t.evalJumpCondition(ins.Flags)
		if err != nil {
			return errResult(err)
		}
		target, err := t.resolveTarget(ins.Target)
		if err != nil {
			return errResult(err)
		}
		if take {
			t.PC = target
		}

	case bytecode.OP_JSR:
		retAddr := t.PC
		target, err := t.resolveTarget(ins.Target)
		if err != nil {
			return errResult(err)
		}
		t.push(int64(retAddr))
		t.PC = target

	case bytecode.OP_RET:
		target, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		t.PC = uint64(target)

	case bytecode.OP_FORK:
		return TickResult{Outcome: Fork}

	case bytecode.OP_JOIN:
		idVal, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		return TickResult{Outcome: Join, JoinTaskID: uint64(idVal), JoinCount: ins.Count}

	case bytecode.OP_STORE:
		v, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		mem.Store(ins.Addr, v)
		return TickResult{Outcome: Continue, Stored: true, StoreAddr: ins.Addr, StoreValue: v}

	case bytecode.OP_LOAD:
		t.push(mem.Load(ins.Addr))

	case bytecode.OP_STORE_REL:
		base, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		v, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		addr := uint64(base + ins.Offset)
		mem.Store(addr, v)
		return TickResult{Outcome: Continue, Stored: true, StoreAddr: addr, StoreValue: v}

	case bytecode.OP_LOAD_REL:
		base, err := t.pop()
		if err != nil {
			return errResult(err)
		}
		t.push(mem.Load(uint64(base + ins.Offset)))

	case bytecode.OP_HALT:
		return terminatedResult

	case bytecode.OP_PANIC:
		return errResult(ErrPanicErr)

	case bytecode.OP_DUMP_DEBUG:
		t.dumpDebug(img)

	default:
		return errResult(ErrUnknownOpCodeErr)
	}

	return continueResult
}

// evalJumpCondition evaluates all of JMP's listed conditions before any
// mutation, per §4.1: empty flags means unconditional; ZERO peeks (does
// not pop) the top of stack.
func (t *Task) evalJumpCondition(flags bytecode.ConditionFlags) (bool, *ExecutionError) {
	if flags == 0 {
		return true, nil
	}
	if flags.Has(bytecode.FlagZero) {
		top, err := t.peek()
		if err != nil {
			return false, err
		}
		if top != 0 {
			return false, nil
		}
	}
	if flags.Has(bytecode.FlagFork) && !t.Forked {
		return false, nil
	}
	return true, nil
}

// resolveTarget returns the literal target if present, otherwise pops one
// from the stack. The pop happens unconditionally when the operand is
// absent, regardless of whether a jump is ultimately taken.
func (t *Task) resolveTarget(literal *uint64) (uint64, *ExecutionError) {
	if literal != nil {
		return *literal, nil
	}
	v, err := t.pop()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (t *Task) dumpDebug(img *bytecode.Image) {
	var window []trace.OpWindowEntry
	for _, entry := range img.Surrounding(t.PC-1, 5) {
		window = append(window, trace.OpWindowEntry{
			Delta: int(entry.Index) - int(t.PC-1),
			Text:  entry.Instr.String(),
		})
	}
	trace.Dump(0, t.PC, window, t.Stack)
}

func (t *Task) push(v int64) {
	t.Stack = append(t.Stack, v)
}

func (t *Task) pop() (int64, *ExecutionError) {
	if len(t.Stack) == 0 {
		return 0, errPopFromEmptyStack()
	}
	v := t.Stack[len(t.Stack)-1]
	t.Stack = t.Stack[:len(t.Stack)-1]
	return v, nil
}

func (t *Task) peek() (int64, *ExecutionError) {
	if len(t.Stack) == 0 {
		return 0, errPeekFromEmptyStack()
	}
	return t.Stack[len(t.Stack)-1], nil
}

// bury pops the top and inserts it at depth i from the new top (post-pop).
func (t *Task) bury(i int) *ExecutionError {
	if len(t.Stack) == 0 {
		return errPopFromEmptyStack()
	}
	v := t.Stack[len(t.Stack)-1]
	rest := t.Stack[:len(t.Stack)-1]
	if i < 0 || i > len(rest) {
		return errBuryOutOfRange(i)
	}
	pos := len(rest) - i
	rest = append(rest, 0)
	copy(rest[pos+1:], rest[pos:len(rest)-1])
	rest[pos] = v
	t.Stack = rest
	return nil
}

// dredge removes the element at depth i (0 = top) and pushes it on top.
func (t *Task) dredge(i int) *ExecutionError {
	if i < 0 || i >= len(t.Stack) {
		return errDredgeOutOfRange(i)
	}
	pos := len(t.Stack) - 1 - i
	v := t.Stack[pos]
	t.Stack = append(t.Stack[:pos], t.Stack[pos+1:]...)
	t.Stack = append(t.Stack, v)
	return nil
}
