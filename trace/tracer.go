// Package trace provides the diagnostic sink that DUMP_DEBUG writes to.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Tracer is a mutex-guarded writer that DUMP_DEBUG and scheduler lifecycle
// events report through. Disabled by default; Init turns it on.
type Tracer struct {
	enabled bool
	writer  io.Writer
	mu      sync.Mutex
}

// Global tracer instance.
var globalTracer *Tracer

// Init initializes the global tracer. A nil writer defaults to os.Stderr.
func Init(enabled bool, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	globalTracer = &Tracer{
		enabled: enabled,
		writer:  writer,
	}
}

// IsEnabled returns whether tracing is enabled.
func IsEnabled() bool {
	if globalTracer == nil {
		return false
	}
	return globalTracer.enabled
}

// Dump writes a DUMP_DEBUG report: program counter, a window of surrounding
// opcodes, and the current stack contents, top first.
func (t *Tracer) Dump(taskID uint64, pc uint64, window []OpWindowEntry, stack []int64) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "Flock VM Debug (task %#016x)\n", taskID)
	fmt.Fprintf(t.writer, "PC: %d\n\n", pc)

	fmt.Fprintln(t.writer, "OpCodes:")
	for _, entry := range window {
		fmt.Fprintf(t.writer, "  %+3d: %s\n", entry.Delta, entry.Text)
	}

	fmt.Fprintln(t.writer)
	fmt.Fprintln(t.writer, "Stack:")
	for i := len(stack) - 1; i >= 0; i-- {
		depth := len(stack) - 1 - i
		fmt.Fprintf(t.writer, "  %03d %#018x (%d)\n", depth, uint64(stack[i]), stack[i])
	}
}

// OpWindowEntry is one line of a DUMP_DEBUG opcode window: Delta is the
// instruction's offset from the current program counter, Text its rendering.
type OpWindowEntry struct {
	Delta int
	Text  string
}

// Event logs a scheduler lifecycle line (worker start/stop, peer connect,
// bytecode registration) using the global tracer. No-op if tracing or the
// tracer itself isn't initialized.
func Event(format string, args ...any) {
	if globalTracer == nil || !globalTracer.enabled {
		return
	}
	globalTracer.mu.Lock()
	defer globalTracer.mu.Unlock()
	fmt.Fprintf(globalTracer.writer, "[TRACE] "+format+"\n", args...)
}

// Dump reports a DUMP_DEBUG dump through the global tracer. No-op if the
// tracer hasn't been initialized or tracing is disabled.
func Dump(taskID uint64, pc uint64, window []OpWindowEntry, stack []int64) {
	if globalTracer == nil {
		return
	}
	globalTracer.Dump(taskID, pc, window, stack)
}
