package bytecode

import (
	"fmt"
	"sync"
)

// DefaultID is the conventional id a driver registers its root program
// under when it doesn't need to track multiple images (adopted from the
// original implementation's convention of a root bytecode id of 0).
const DefaultID uint64 = 0

// Image is an immutable, indexed sequence of instructions. It is built once
// by the external assembler and shared by id across workers and peers —
// nothing in this package mutates an Image after NewImage returns it.
type Image struct {
	instructions []Instruction
}

// NewImage wraps a linked instruction sequence as an immutable bytecode
// image. The slice is copied so later mutation by the caller can't violate
// the "immutable once registered" invariant.
func NewImage(instructions []Instruction) *Image {
	cp := make([]Instruction, len(instructions))
	copy(cp, instructions)
	return &Image{instructions: cp}
}

// Len reports the number of instructions in the image.
func (img *Image) Len() int {
	return len(img.instructions)
}

// Get returns the instruction at index and true, or the zero Instruction
// and false if index is out of range. An out-of-range program counter
// terminates the owning task normally rather than erroring — callers
// distinguish "ran off the end" from "bad opcode" using the ok result.
func (img *Image) Get(index uint64) (Instruction, bool) {
	if index >= uint64(len(img.instructions)) {
		return Instruction{}, false
	}
	return img.instructions[index], true
}

// Surrounding returns the window [index-n, index+n], clipped to the image's
// bounds, as (absoluteIndex, instruction) pairs in order. Used by
// DUMP_DEBUG to render a view around the program counter.
func (img *Image) Surrounding(index uint64, n int) []struct {
	Index uint64
	Instr Instruction
} {
	lo := int64(index) - int64(n)
	if lo < 0 {
		lo = 0
	}
	hi := int64(index) + int64(n)
	if hi >= int64(len(img.instructions)) {
		hi = int64(len(img.instructions)) - 1
	}

	var out []struct {
		Index uint64
		Instr Instruction
	}
	for i := lo; i <= hi; i++ {
		out = append(out, struct {
			Index uint64
			Instr Instruction
		}{uint64(i), img.instructions[i]})
	}
	return out
}

// Registry is the process-wide, concurrency-safe mapping from bytecode id
// to image. Insertions are visible to readers immediately; there is no
// transactional ordering between registrations, matching the concurrent-map
// semantics the rest of the shared process state (finished map, shared
// memory) follows.
type Registry struct {
	mu     sync.RWMutex
	images map[uint64]*Image
	nextID uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{images: make(map[uint64]*Image)}
}

// Register assigns id (DefaultID for the first caller, then incrementing)
// unless the caller already knows the id it wants — see RegisterWithID.
func (r *Registry) Register(img *Image) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.images[id] = img
	return id
}

// RegisterWithID inserts img under an explicit id, for drivers (or peers
// replicating a remote registration) that need a stable, caller-chosen id.
// Re-registering the same id overwrites the previous image — images are
// otherwise immutable, but the registry slot itself is last-writer-wins,
// matching the shared-memory and bytecode-registry concurrency model in
// the spec.
func (r *Registry) RegisterWithID(id uint64, img *Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[id] = img
	if id >= r.nextID {
		r.nextID = id + 1
	}
}

// Get looks up an image by id.
func (r *Registry) Get(id uint64) (*Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.images[id]
	return img, ok
}

// MustGet panics if id isn't registered; reserved for invariant checks
// inside this module (an executor ticking a TaskOrder whose bytecode_id
// doesn't exist is a programmer error in the driver, not a recoverable
// runtime condition).
func (r *Registry) MustGet(id uint64) *Image {
	img, ok := r.Get(id)
	if !ok {
		panic(fmt.Sprintf("bytecode: unregistered bytecode id %d", id))
	}
	return img
}
