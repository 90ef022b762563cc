package memory

import (
	"sync"
	"testing"
)

func TestLoadOfUnwrittenAddressIsZero(t *testing.T) {
	s := New()
	if got := s.Load(0x100); got != 0 {
		t.Fatalf("expected unwritten address to read 0, got %d", got)
	}
}

func TestStoreThenLoad(t *testing.T) {
	s := New()
	s.Store(0x100, 42)
	if got := s.Load(0x100); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestConcurrentStoresToDistinctAddressesAreAllVisible(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := uint64(0); i < 100; i++ {
		wg.Add(1)
		go func(addr uint64) {
			defer wg.Done()
			s.Store(addr, int64(addr)*2)
		}(i)
	}
	wg.Wait()

	for i := uint64(0); i < 100; i++ {
		if got := s.Load(i); got != int64(i)*2 {
			t.Fatalf("address %d: expected %d, got %d", i, int64(i)*2, got)
		}
	}
}
