/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/open-ocr/ocr-core/guid"
)

func TestStoreSaveAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ckpt.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	edt := &EDTSnapshot{GUID: 1, Template: 2, ParamV: []uint64{7}, DepV: []guid.GUID{guid.Nil}, Func: "f"}
	if err := store.SaveEDT(edt); err != nil {
		t.Fatalf("save edt: %v", err)
	}
	ev := &EventSnapshot{GUID: 3, Value: 9}
	if err := store.SaveEvent(ev); err != nil {
		t.Fatalf("save event: %v", err)
	}

	edts, events, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(edts) != 1 || edts[0].GUID != 1 {
		t.Fatalf("unexpected edts: %+v", edts)
	}
	if len(events) != 1 || events[0].GUID != 3 {
		t.Fatalf("unexpected events: %+v", events)
	}
}
