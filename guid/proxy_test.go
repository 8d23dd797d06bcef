/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import (
	"sync"
	"testing"
)

func TestProxyEnqueueThenRegisterDrains(t *testing.T) {
	p := NewProxy()
	for i := 0; i < 5; i++ {
		if !p.Enqueue(i) {
			t.Fatal("enqueue should succeed before registration")
		}
	}
	waiters, ok := p.Register("resolved")
	if !ok {
		t.Fatal("register should succeed the first time")
	}
	if len(waiters) != 5 {
		t.Fatalf("expected 5 waiters, got %d", len(waiters))
	}
	if !p.IsClosed() {
		t.Fatal("proxy should be closed after register")
	}
}

func TestProxyRegisterIsExactlyOnce(t *testing.T) {
	p := NewProxy()
	_, ok1 := p.Register("a")
	_, ok2 := p.Register("b")
	if !ok1 || ok2 {
		t.Fatalf("expected first register to win: ok1=%v ok2=%v", ok1, ok2)
	}
	v, ready := p.Value()
	if !ready || v != "a" {
		t.Fatalf("value = (%v, %v), want (a, true)", v, ready)
	}
}

func TestProxyEnqueueAfterCloseFails(t *testing.T) {
	p := NewProxy()
	p.Register("done")
	if p.Enqueue("late") {
		t.Fatal("enqueue after close must fail")
	}
}

func TestProxyConcurrentRegisterExactlyOneWinner(t *testing.T) {
	p := NewProxy()
	const n = 32
	var wg sync.WaitGroup
	wins := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok := p.Register(i)
			wins[i] = ok
		}(i)
	}
	wg.Wait()
	count := 0
	for _, w := range wins {
		if w {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning register, got %d", count)
	}
}
