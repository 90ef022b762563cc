package cluster_test

import (
	"testing"

	"flock/bytecode"
	"flock/cluster"
	"flock/executor"
	"flock/state"
	"flock/task"
)

func TestTCPPeerTryRunRoundTrip(t *testing.T) {
	ctx := state.New(8)
	img := bytecode.NewImage([]bytecode.Instruction{
		{Op: bytecode.OP_PUSH, Value: 2},
		{Op: bytecode.OP_PUSH, Value: 3},
		{Op: bytecode.OP_ADD},
		{Op: bytecode.OP_HALT},
	})
	ctx.Bytecode.RegisterWithID(0, img)

	secret := []byte("integration-test-secret")
	srv, err := cluster.Listen("127.0.0.1:0", ctx, secret)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	go executor.NewLocal(ctx).Run()
	defer ctx.Queue.Finish(func() {})

	peer, err := cluster.DialTCPPeer(srv.Addr().String(), secret, ctx.Bytecode.Get)
	if err != nil {
		t.Fatalf("DialTCPPeer: %v", err)
	}
	defer peer.Close()

	order := &task.TaskOrder{ID: 1, BytecodeID: 0, Task: task.New()}
	result, err := peer.TryRun(order)
	if err != nil {
		t.Fatalf("TryRun: %v", err)
	}
	if len(result.Task.Stack) != 1 || result.Task.Stack[0] != 5 {
		t.Fatalf("expected stack [5], got %v", result.Task.Stack)
	}
}

func TestTCPPeerRejectsWrongSecret(t *testing.T) {
	ctx := state.New(8)
	srv, err := cluster.Listen("127.0.0.1:0", ctx, []byte("the-real-secret"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	if _, err := cluster.DialTCPPeer(srv.Addr().String(), []byte("an-imposter-secret"), ctx.Bytecode.Get); err == nil {
		t.Fatalf("expected dial with wrong secret to be rejected")
	}
}

func TestTCPPeerStoreMirrorsToSharedMemory(t *testing.T) {
	ctx := state.New(8)
	secret := []byte("store-test-secret")
	srv, err := cluster.Listen("127.0.0.1:0", ctx, secret)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	peer, err := cluster.DialTCPPeer(srv.Addr().String(), secret, ctx.Bytecode.Get)
	if err != nil {
		t.Fatalf("DialTCPPeer: %v", err)
	}
	defer peer.Close()

	if err := peer.Store(42, 99); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if got := ctx.Memory.Load(42); got != 99 {
		t.Fatalf("expected mirrored store to land in shared memory, got %d", got)
	}
}
