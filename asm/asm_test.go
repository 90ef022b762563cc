package asm

import (
	"testing"

	"flock/bytecode"
)

func TestAssembleArithmetic(t *testing.T) {
	img, err := Assemble("PUSH 2\nPUSH 3\nADD\nHALT\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if img.Len() != 4 {
		t.Fatalf("expected 4 instructions, got %d", img.Len())
	}
	ins, _ := img.Get(2)
	if ins.Op != bytecode.OP_ADD {
		t.Fatalf("expected ADD at index 2, got %v", ins.Op)
	}
}

func TestAssembleResolvesLabelsAsJumpTargets(t *testing.T) {
	src := `
PUSH 0
JMP ZERO, done
PUSH 1
HALT
done:
PUSH 2
HALT
`
	img, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	jmp, _ := img.Get(1)
	if jmp.Op != bytecode.OP_JMP || jmp.Target == nil || *jmp.Target != 4 {
		t.Fatalf("expected JMP to resolve 'done' to index 4, got %+v", jmp)
	}
}

func TestAssembleCommentsAndBlankLinesIgnored(t *testing.T) {
	img, err := Assemble("# a comment\n\nPUSH 1\n# trailing\nHALT\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if img.Len() != 2 {
		t.Fatalf("expected 2 instructions, got %d", img.Len())
	}
}

func TestAssembleSubroutineWithStarPopsTargetAtRuntime(t *testing.T) {
	img, err := Assemble("PUSH 4\nJSR *\nHALT\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	jsr, _ := img.Get(1)
	if jsr.Op != bytecode.OP_JSR || jsr.Target != nil {
		t.Fatalf("expected JSR with nil target (pop from stack), got %+v", jsr)
	}
}

func TestAssembleUnrecognizedInstructionErrors(t *testing.T) {
	if _, err := Assemble("NOPE 1\n"); err == nil {
		t.Fatalf("expected an error for an unrecognized instruction")
	}
}

func TestAssembleDuplicateLabelErrors(t *testing.T) {
	src := "a:\nPUSH 1\na:\nHALT\n"
	if _, err := Assemble(src); err == nil {
		t.Fatalf("expected an error for a redefined label")
	}
}
