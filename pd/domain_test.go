/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package pd

import (
	"testing"

	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/msgbus"
	"github.com/open-ocr/ocr-core/task"
)

type fakeSched struct {
	ready []*task.EDT
}

func (f *fakeSched) NotifyReady(e *task.EDT, origin guid.Location) { f.ready = append(f.ready, e) }
func (f *fakeSched) GetWork(guid.Location) (*task.EDT, error)       { return nil, nil }
func (f *fakeSched) PlaceHint(hint uint64, origin guid.Location) guid.Location {
	return guid.Location(1) // every test domain is location 1; keep placement local
}

func newTestDomain() (*Domain, *fakeSched) {
	sched := &fakeSched{}
	provider := guid.NewProvider(1, false)
	bus := msgbus.NewBus(1, nil)
	return NewDomain(1, provider, bus, sched), sched
}

func TestDispatchWorkCreateWithNoDepsNotifiesReady(t *testing.T) {
	d, sched := newTestDomain()
	args := &msgbus.WorkCreateArgs{FuncName: "f"}
	msg, err := msgbus.Marshal(msgbus.Header{Type: msgbus.WorkCreate}, args, msgbus.ModeFullCopy, nil, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := d.Dispatch(msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sched.ready) != 1 {
		t.Fatalf("expected one EDT notified ready, got %d", len(sched.ready))
	}
}

func TestDispatchWorkCreateWithDepsWaits(t *testing.T) {
	d, sched := newTestDomain()
	args := &msgbus.WorkCreateArgs{FuncName: "f", DepV: []guid.GUID{guid.Nil}}
	msg, _ := msgbus.Marshal(msgbus.Header{Type: msgbus.WorkCreate}, args, msgbus.ModeFullCopy, nil, 0)
	if _, err := d.Dispatch(msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sched.ready) != 0 {
		t.Fatalf("EDT with unresolved dep should not be ready yet")
	}
}

func TestDispatchDepSatisfyMakesEdtRunnable(t *testing.T) {
	d, sched := newTestDomain()
	createArgs := &msgbus.WorkCreateArgs{FuncName: "f", DepV: []guid.GUID{guid.Nil}}
	createMsg, _ := msgbus.Marshal(msgbus.Header{Type: msgbus.WorkCreate}, createArgs, msgbus.ModeFullCopy, nil, 0)
	if _, err := d.Dispatch(createMsg); err != nil {
		t.Fatalf("create dispatch: %v", err)
	}

	var edtGUID guid.GUID
	d.mu.RLock()
	for g := range d.edts {
		edtGUID = g
	}
	d.mu.RUnlock()

	satArgs := &msgbus.DepSatisfyArgs{Event: edtGUID, Slot: 0, Value: 777}
	satMsg, _ := msgbus.Marshal(msgbus.Header{Type: msgbus.DepSatisfy}, satArgs, msgbus.ModeFullCopy, nil, 0)
	if _, err := d.Dispatch(satMsg); err != nil {
		t.Fatalf("dep-satisfy dispatch: %v", err)
	}
	if len(sched.ready) != 1 {
		t.Fatalf("expected EDT to become ready after dep satisfied, got %d", len(sched.ready))
	}
}

func TestDispatchUnknownTypeErrors(t *testing.T) {
	d, _ := newTestDomain()
	msg := &msgbus.Message{Header: msgbus.Header{Type: msgbus.TypeInvalid}, Main: make([]byte, 64)}
	if _, err := d.Dispatch(msg); err == nil {
		t.Fatalf("expected error for unknown message type")
	}
}
