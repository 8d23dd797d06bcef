/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package task

import (
	"testing"

	"github.com/open-ocr/ocr-core/guid"
)

func TestEDTSatisfyBecomesRunnableOnLastSlot(t *testing.T) {
	e := NewEDT(1, 2, nil, []guid.GUID{10, 20}, "f", 0)
	if e.IsRunnable() {
		t.Fatalf("should not be runnable before any slot resolves")
	}
	if fired := e.Satisfy(0, 100, 999); fired {
		t.Fatalf("should not be runnable after only slot 0")
	}
	if !e.Satisfy(1, 101, 998) {
		t.Fatalf("expected runnable after final slot resolves")
	}
	if !e.IsRunnable() {
		t.Fatalf("IsRunnable should report true")
	}
}

func TestEDTSatisfyIdempotentRedelivery(t *testing.T) {
	e := NewEDT(1, 2, nil, []guid.GUID{10}, "f", 0)
	if !e.Satisfy(0, 100, 999) {
		t.Fatalf("expected runnable on first satisfy")
	}
	if !e.Satisfy(0, 100, 999) {
		t.Fatalf("redelivery of an already-satisfied slot should remain runnable")
	}
}

func TestEventOnceFiresExactlyOnce(t *testing.T) {
	e := NewEvent(1, Once, 0)
	if !e.Satisfy(42) {
		t.Fatalf("expected first satisfy to fire")
	}
	if e.Satisfy(43) {
		t.Fatalf("ONCE must not fire twice")
	}
	if e.Value != 42 {
		t.Fatalf("value should be the first satisfaction")
	}
}

func TestEventLatchFiresAtZero(t *testing.T) {
	e := NewEvent(1, Latch, 3)
	if e.Satisfy(1) || e.Satisfy(2) {
		t.Fatalf("LATCH must not fire before counter reaches zero")
	}
	if !e.Satisfy(3) {
		t.Fatalf("LATCH must fire when counter reaches zero")
	}
}

func TestEventChannelDeliversPerWaiter(t *testing.T) {
	e := NewEvent(1, Channel, 0)
	w1 := e.RegisterWaiter()
	e.Satisfy(7)
	if got := <-w1; got != 7 {
		t.Fatalf("waiter got %v, want 7", got)
	}
}
