package task

import "fmt"

// ErrorCode enumerates the concrete failure kinds the interpreter can
// raise, mirroring the ErrorCode/MooError shape the teacher uses for its
// own VM failures (types.ErrorCode + vm.MooError), generalized to Flock's
// smaller instruction set.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrPopFromEmptyStack
	ErrPeekFromEmptyStack
	ErrBuryOutOfRange
	ErrDredgeOutOfRange
	ErrUnknownTaskID
	ErrUnableToProgress
	ErrPanic
	ErrUnknownOpCode
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "NONE"
	case ErrPopFromEmptyStack:
		return "PopFromEmptyStack"
	case ErrPeekFromEmptyStack:
		return "PeekFromEmptyStack"
	case ErrBuryOutOfRange:
		return "BuryOutOfRange"
	case ErrDredgeOutOfRange:
		return "DredgeOutOfRange"
	case ErrUnknownTaskID:
		return "UnknownTaskId"
	case ErrUnableToProgress:
		return "UnableToProgress"
	case ErrPanic:
		return "Panic"
	case ErrUnknownOpCode:
		return "UnknownOpCode"
	default:
		return "Unknown"
	}
}

// ExecutionError is the concrete error type the interpreter, executor, and
// joiner all exchange. It carries enough detail (the offending depth or
// task id) for a caller to render a useful message without re-deriving it.
type ExecutionError struct {
	Code  ErrorCode
	Depth int    // BuryOutOfRange, DredgeOutOfRange
	TaskID uint64 // UnknownTaskId
}

func (e *ExecutionError) Error() string {
	switch e.Code {
	case ErrBuryOutOfRange:
		return fmt.Sprintf("BuryOutOfRange(%d)", e.Depth)
	case ErrDredgeOutOfRange:
		return fmt.Sprintf("DredgeOutOfRange(%d)", e.Depth)
	case ErrUnknownTaskID:
		return fmt.Sprintf("UnknownTaskId(%#016x)", e.TaskID)
	default:
		return e.Code.String()
	}
}

func errPopFromEmptyStack() *ExecutionError  { return &ExecutionError{Code: ErrPopFromEmptyStack} }
func errPeekFromEmptyStack() *ExecutionError { return &ExecutionError{Code: ErrPeekFromEmptyStack} }
func errBuryOutOfRange(depth int) *ExecutionError {
	return &ExecutionError{Code: ErrBuryOutOfRange, Depth: depth}
}
func errDredgeOutOfRange(depth int) *ExecutionError {
	return &ExecutionError{Code: ErrDredgeOutOfRange, Depth: depth}
}
func errUnknownTaskID(id uint64) *ExecutionError {
	return &ExecutionError{Code: ErrUnknownTaskID, TaskID: id}
}

// ErrUnableToProgressErr and ErrPanicErr are exported singletons for errors
// that carry no extra detail, used by callers outside this package
// (executor's deadlock detection, the PANIC opcode handler).
var (
	ErrUnableToProgressErr = &ExecutionError{Code: ErrUnableToProgress}
	ErrPanicErr            = &ExecutionError{Code: ErrPanic}
	ErrUnknownOpCodeErr    = &ExecutionError{Code: ErrUnknownOpCode}
)
