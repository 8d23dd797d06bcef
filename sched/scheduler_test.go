/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package sched

import (
	"context"
	"testing"

	"github.com/open-ocr/ocr-core/cmn"
	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/task"
)

func TestGetWorkPopsLocalFirst(t *testing.T) {
	s := NewScheduler(false, 0, nil)
	s.AddContext(1)
	e := task.NewEDT(1, 0, nil, nil, "f", 0)
	s.NotifyReady(e, 1)

	got, err := s.GetWork(1)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if got.GUID != e.GUID {
		t.Fatalf("expected local edt back")
	}
}

func TestGetWorkStealsFromPeer(t *testing.T) {
	s := NewScheduler(false, 0, nil)
	s.AddContext(1)
	s.AddContext(2)
	e := task.NewEDT(9, 0, nil, nil, "f", 0)
	s.NotifyReady(e, 2) // lands on context 2

	got, err := s.GetWork(1)
	if err != nil {
		t.Fatalf("GetWork should steal: %v", err)
	}
	if got.GUID != e.GUID {
		t.Fatalf("stole the wrong edt")
	}
}

func TestGetWorkParksOnTotalMiss(t *testing.T) {
	s := NewScheduler(false, 0, nil)
	s.AddContext(1)
	_, err := s.GetWork(1)
	if err != cmn.ErrPending {
		t.Fatalf("expected ErrPending, got %v", err)
	}
}

func TestNotifyReadyHonorsAffinityHint(t *testing.T) {
	s := NewScheduler(true, 0, nil)
	s.AddContext(1)
	s.AddContext(2)
	e := task.NewEDT(1, 0, nil, nil, "f", 1) // hint=1 -> context index 1 (second added)
	s.NotifyReady(e, 1)

	if _, err := s.GetWork(1); err != cmn.ErrPending {
		t.Fatalf("context 1 should be empty, affinity sent edt to context index 1")
	}
	got, err := s.GetWork(2)
	if err != nil || got.GUID != e.GUID {
		t.Fatalf("expected affinitized context to have the edt: %v %v", got, err)
	}
}

func TestGetWorkUnknownRequester(t *testing.T) {
	s := NewScheduler(false, 0, nil)
	s.AddContext(1)
	if _, err := s.GetWork(guid.Location(99)); err == nil {
		t.Fatalf("expected not-found error for unregistered context")
	}
}

func TestAddPeerContextIsNotChild(t *testing.T) {
	s := NewScheduler(false, 0, nil)
	local := s.AddContext(1)
	peer := s.AddPeerContext(2)
	if !local.IsChild() {
		t.Fatalf("AddContext should mark isChild true")
	}
	if peer.IsChild() {
		t.Fatalf("AddPeerContext should mark isChild false")
	}
}

// TestGetWorkPromotesAffRequestFail exercises spec.md §4.6 end-to-end
// scenario 6: an empty steal attempt marks the victim AFF_REQUEST_FAIL; a
// GetWork before the next update tick can't retry it; after the update loop
// promotes it, the same requester succeeds.
func TestGetWorkPromotesAffRequestFail(t *testing.T) {
	s := NewScheduler(false, 0, nil)
	s.AddContext(1)
	victim := s.AddContext(2)

	if _, err := s.GetWork(1); err != cmn.ErrPending {
		t.Fatalf("expected total miss before any work exists: %v", err)
	}
	if victim.outState() != AffRequestFail {
		t.Fatalf("expected victim marked AFF_REQUEST_FAIL, got %v", victim.outState())
	}

	e := task.NewEDT(9, 0, nil, nil, "f", 0)
	s.NotifyReady(e, 2)

	if _, err := s.GetWork(1); err != cmn.ErrPending {
		t.Fatalf("victim still AFF_REQUEST_FAIL, should not be retried yet: %v", err)
	}

	s.advertiseOnce(context.Background())
	if victim.outState() != NoAffRequest {
		t.Fatalf("expected promotion to NO_AFF_REQUEST, got %v", victim.outState())
	}

	got, err := s.GetWork(1)
	if err != nil {
		t.Fatalf("expected promoted victim to be stealable: %v", err)
	}
	if got.GUID != e.GUID {
		t.Fatalf("stole the wrong edt")
	}
}
