package state

import "testing"

func TestNewPopulatesAllCollaborators(t *testing.T) {
	ctx := New(4)
	if ctx.Queue == nil {
		t.Fatalf("expected non-nil Queue")
	}
	if ctx.Finished == nil {
		t.Fatalf("expected non-nil Finished")
	}
	if ctx.Bytecode == nil {
		t.Fatalf("expected non-nil Bytecode")
	}
	if ctx.Memory == nil {
		t.Fatalf("expected non-nil Memory")
	}
	if ctx.Peers == nil {
		t.Fatalf("expected non-nil Peers")
	}
	if !ctx.Finished.Empty() {
		t.Fatalf("expected a fresh finished map to be empty")
	}
}

type fakeMirror struct{}

func (fakeMirror) Store(addr uint64, value int64) error { return nil }

func TestPeerRegistryAddAllRemove(t *testing.T) {
	r := newPeerRegistry()
	r.Add("a", fakeMirror{})
	r.Add("b", fakeMirror{})

	if len(r.All()) != 2 {
		t.Fatalf("expected 2 registered peers, got %d", len(r.All()))
	}

	r.Remove("a")
	snapshot := r.All()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 peer after removal, got %d", len(snapshot))
	}
	if _, ok := snapshot["b"]; !ok {
		t.Fatalf("expected peer 'b' to remain registered")
	}
}
