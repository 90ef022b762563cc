package bytecode

import "testing"

func TestImageGetOutOfRange(t *testing.T) {
	img := NewImage([]Instruction{{Op: OP_HALT}})

	if _, ok := img.Get(0); !ok {
		t.Fatalf("expected index 0 to be present")
	}
	if _, ok := img.Get(1); ok {
		t.Fatalf("expected index 1 to be out of range")
	}
}

func TestImageIsImmutableAfterConstruction(t *testing.T) {
	src := []Instruction{{Op: OP_PUSH, Value: 1}}
	img := NewImage(src)

	src[0].Value = 99

	got, _ := img.Get(0)
	if got.Value != 1 {
		t.Fatalf("image should not observe mutation of the source slice, got %d", got.Value)
	}
}

func TestSurroundingClipsToBounds(t *testing.T) {
	img := NewImage([]Instruction{
		{Op: OP_PUSH, Value: 0},
		{Op: OP_PUSH, Value: 1},
		{Op: OP_PUSH, Value: 2},
	})

	window := img.Surrounding(0, 5)
	if len(window) != 3 {
		t.Fatalf("expected window clipped to 3 entries, got %d", len(window))
	}
	if window[0].Index != 0 || window[len(window)-1].Index != 2 {
		t.Fatalf("unexpected window bounds: %+v", window)
	}
}

func TestRegistryRegisterAssignsDefaultIDFirst(t *testing.T) {
	r := NewRegistry()
	img := NewImage(nil)

	id := r.Register(img)
	if id != DefaultID {
		t.Fatalf("expected first registration to get id %d, got %d", DefaultID, id)
	}

	id2 := r.Register(img)
	if id2 == id {
		t.Fatalf("expected distinct ids across registrations")
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(123); ok {
		t.Fatalf("expected missing id to report not-found")
	}
}

func TestConditionFlagsHas(t *testing.T) {
	f := FlagZero | FlagFork
	if !f.Has(FlagZero) || !f.Has(FlagFork) {
		t.Fatalf("expected combined flags to report both bits set")
	}
	if ConditionFlags(0).Has(FlagZero) {
		t.Fatalf("empty flags should not report ZERO set")
	}
}
