/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package checkpoint

import (
	"testing"

	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/task"
)

func TestEDTSnapshotRoundTrip(t *testing.T) {
	s := &EDTSnapshot{
		GUID:         1,
		Template:     2,
		ParamV:       []uint64{1, 2, 3},
		DepV:         []guid.GUID{10, 20},
		ResolvedDeps: []guid.GUID{10, 0},
		Func:         "f",
		Hint:         99,
	}
	b, err := s.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back EDTSnapshot
	if _, err := back.UnmarshalMsg(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.GUID != s.GUID || back.Func != s.Func || len(back.ParamV) != 3 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestEventSnapshotRoundTrip(t *testing.T) {
	s := &EventSnapshot{GUID: 5, Kind: task.Latch, Value: 42}
	b, err := s.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back EventSnapshot
	if _, err := back.UnmarshalMsg(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Kind != task.Latch || back.Value != 42 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}
