/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"testing"

	"github.com/open-ocr/ocr-core/guid"
)

func sampleHeader() Header {
	return Header{Src: 1, Dest: 2, Type: WorkCreate, Dir: Request}
}

func TestMarshalAppendRoundTrip(t *testing.T) {
	p := &WorkCreateArgs{Template: guid.Nil, ParamV: []uint64{1, 2, 3}, FuncName: "f"}
	buf := make([]byte, 512)
	msg, err := Marshal(sampleHeader(), p, ModeAppend, buf, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if msg.Addl != nil {
		t.Fatalf("append mode should not populate Addl")
	}
	var out WorkCreateArgs
	h, err := Unmarshal(msg.Main, msg.Addl, &out)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.Type != WorkCreate {
		t.Fatalf("type mismatch: %v", h.Type)
	}
	if len(out.ParamV) != 3 || out.ParamV[2] != 3 {
		t.Fatalf("paramv mismatch: %+v", out.ParamV)
	}
	if out.FuncName != "f" {
		t.Fatalf("funcname mismatch: %q", out.FuncName)
	}
}

func TestMarshalFullCopyRoundTrip(t *testing.T) {
	p := &DepSatisfyArgs{Event: guid.Nil, Slot: guid.Nil, Value: guid.Nil, IsChannel: true}
	msg, err := Marshal(sampleHeader(), p, ModeFullCopy, nil, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out DepSatisfyArgs
	if _, err := Unmarshal(msg.Main, msg.Addl, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.IsChannel {
		t.Fatalf("IsChannel not preserved")
	}
}

func TestMarshalAddlRoundTrip(t *testing.T) {
	p := &MetadataCloneArgs{Target: guid.Nil, Blob: []byte("payload-bytes-go-here")}
	msg, err := Marshal(sampleHeader(), p, ModeAddl, nil, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(msg.Addl) == 0 {
		t.Fatalf("ADDL mode must populate Addl")
	}
	var out MetadataCloneArgs
	if _, err := Unmarshal(msg.Main, msg.Addl, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(out.Blob) != "payload-bytes-go-here" {
		t.Fatalf("blob mismatch: %q", out.Blob)
	}
}

func TestMarshalDuplicateIsLocalHandoff(t *testing.T) {
	p := &RlNotifyArgs{Runlevel: 3, TearDown: true}
	msg, err := Marshal(sampleHeader(), p, ModeDuplicate, nil, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, ok := msg.LocalPayload()
	if !ok {
		t.Fatalf("expected local payload for ModeDuplicate")
	}
	if got.(*RlNotifyArgs).Runlevel != 3 {
		t.Fatalf("payload not preserved by reference")
	}
}

func TestMarshalAppendRejectsUndersizedBuffer(t *testing.T) {
	p := &WorkCreateArgs{FuncName: "too-small-buffer-case"}
	_, err := Marshal(sampleHeader(), p, ModeAppend, make([]byte, 4), 0)
	if err == nil {
		t.Fatalf("expected errNoCapacity")
	}
}

func TestCompressAddlRoundTrip(t *testing.T) {
	addl := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	c := CompressAddl(addl)
	back, err := DecompressAddl(c)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(back) != string(addl) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressAddlIncompressible(t *testing.T) {
	addl := []byte{0x01}
	c := CompressAddl(addl)
	back, err := DecompressAddl(c)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(back) != string(addl) {
		t.Fatalf("round trip mismatch on tiny input")
	}
}
