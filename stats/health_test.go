/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package stats

import (
	"testing"

	"github.com/open-ocr/ocr-core/runlevel"
)

func TestHealthDocMarshalsExpectedShape(t *testing.T) {
	m := runlevel.NewMachine("pd0", 2)
	m.Barrier().InitiateLocal()

	doc := HealthDoc{
		Runlevel: m.Current().String(),
		Acks:     1,
		Needed:   3,
		Done:     false,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back HealthDoc
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Runlevel != "CONFIG_PARSE" || back.Acks != 1 || back.Needed != 3 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}
