// Package checkpoint implements the C10 persistence extension (spec.md §6
// "Persisted state"): a buntdb-backed snapshot of the GUID->metadata map,
// keyed by kind, with a two-pass restore that fixes up cross-object
// pointers only after every record has been reloaded.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package checkpoint

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/task"
)

// EDTSnapshot/EventSnapshot are msgp.Marshaler/Unmarshaler codecs for the
// two built-in kinds a checkpoint needs to survive a restart (spec.md
// §4.10). Hand-written in the generated code's own style (one
// AppendXxx/ReadXxxBytes call per field, in declaration order) since this
// build never runs `go generate`/`msgp` itself.

type EDTSnapshot struct {
	GUID         guid.GUID
	Template     guid.GUID
	ParamV       []uint64
	DepV         []guid.GUID
	ResolvedDeps []guid.GUID
	Func         string
	Hint         uint64
}

func (s *EDTSnapshot) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, 7)
	o = msgp.AppendUint64(o, uint64(s.GUID))
	o = msgp.AppendUint64(o, uint64(s.Template))
	o = appendU64Slice(o, s.ParamV)
	o = appendGuidSlice(o, s.DepV)
	o = appendGuidSlice(o, s.ResolvedDeps)
	o = msgp.AppendString(o, s.Func)
	o = msgp.AppendUint64(o, s.Hint)
	return o, nil
}

func (s *EDTSnapshot) UnmarshalMsg(bts []byte) ([]byte, error) {
	bts, err := expectArray(bts, 7)
	if err != nil {
		return bts, err
	}
	var u64 uint64
	if u64, bts, err = msgp.ReadUint64Bytes(bts); err != nil {
		return bts, err
	}
	s.GUID = guid.GUID(u64)
	if u64, bts, err = msgp.ReadUint64Bytes(bts); err != nil {
		return bts, err
	}
	s.Template = guid.GUID(u64)
	if s.ParamV, bts, err = readU64Slice(bts); err != nil {
		return bts, err
	}
	if s.DepV, bts, err = readGuidSlice(bts); err != nil {
		return bts, err
	}
	if s.ResolvedDeps, bts, err = readGuidSlice(bts); err != nil {
		return bts, err
	}
	if s.Func, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, err
	}
	s.Hint, bts, err = msgp.ReadUint64Bytes(bts)
	return bts, err
}

type EventSnapshot struct {
	GUID  guid.GUID
	Kind  task.Kind
	Value guid.GUID
}

func (s *EventSnapshot) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, 3)
	o = msgp.AppendUint64(o, uint64(s.GUID))
	o = msgp.AppendUint8(o, uint8(s.Kind))
	o = msgp.AppendUint64(o, uint64(s.Value))
	return o, nil
}

func (s *EventSnapshot) UnmarshalMsg(bts []byte) ([]byte, error) {
	bts, err := expectArray(bts, 3)
	if err != nil {
		return bts, err
	}
	var u64 uint64
	if u64, bts, err = msgp.ReadUint64Bytes(bts); err != nil {
		return bts, err
	}
	s.GUID = guid.GUID(u64)
	var u8 uint8
	if u8, bts, err = msgp.ReadUint8Bytes(bts); err != nil {
		return bts, err
	}
	s.Kind = task.Kind(u8)
	u64, bts, err = msgp.ReadUint64Bytes(bts)
	s.Value = guid.GUID(u64)
	return bts, err
}

func expectArray(bts []byte, n uint32) ([]byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	if sz != n {
		return bts, msgp.ArrayError{Wanted: n, Got: sz}
	}
	return bts, nil
}

func appendU64Slice(b []byte, v []uint64) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(v)))
	for _, x := range v {
		o = msgp.AppendUint64(o, x)
	}
	return o
}

func readU64Slice(bts []byte) ([]uint64, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	out := make([]uint64, sz)
	for i := range out {
		out[i], bts, err = msgp.ReadUint64Bytes(bts)
		if err != nil {
			return nil, bts, err
		}
	}
	return out, bts, nil
}

func appendGuidSlice(b []byte, v []guid.GUID) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(v)))
	for _, x := range v {
		o = msgp.AppendUint64(o, uint64(x))
	}
	return o
}

func readGuidSlice(bts []byte) ([]guid.GUID, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	out := make([]guid.GUID, sz)
	for i := range out {
		var u64 uint64
		u64, bts, err = msgp.ReadUint64Bytes(bts)
		if err != nil {
			return nil, bts, err
		}
		out[i] = guid.GUID(u64)
	}
	return out, bts, nil
}
