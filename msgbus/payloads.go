/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"encoding/binary"

	"github.com/open-ocr/ocr-core/guid"
)

// Payload is implemented by every message type's type-specific union of
// I/O/IO fields (spec.md §3 "Policy message"). BaseSize is the fixed part;
// Encode/Decode handle the variable payload area (paramv, depv, hint,
// funcName, DB bytes, guids arrays, metadata blob -- spec.md §4.3 "Size
// computation").
type Payload interface {
	Type() Type
	BaseSize() int
	Encode() []byte
	Decode([]byte) error
}

// ---- WORK_CREATE --------------------------------------------------------

type WorkCreateArgs struct {
	Template    guid.GUID
	ParamV      []uint64
	DepV        []guid.GUID
	FuncName    string
	Hint        uint64
	FinishLatch guid.GUID // parent finish-scope's LATCH event, incremented before this create ships (spec.md invariant 5)
}

func (a *WorkCreateArgs) Type() Type    { return WorkCreate }
func (a *WorkCreateArgs) BaseSize() int { return 8 + 4 + 4 + 8 + 8 } // template + paramc + depc + hint + finishLatch

func (a *WorkCreateArgs) Encode() []byte {
	buf := make([]byte, 0, len(a.ParamV)*8+len(a.DepV)*8+len(a.FuncName)+20)
	buf = appendU32(buf, uint32(len(a.ParamV)))
	buf = appendU32(buf, uint32(len(a.DepV)))
	for _, p := range a.ParamV {
		buf = appendU64(buf, p)
	}
	for _, d := range a.DepV {
		buf = appendU64(buf, uint64(d))
	}
	buf = appendU32(buf, uint32(len(a.FuncName)))
	buf = append(buf, a.FuncName...)
	buf = appendU64(buf, uint64(a.Template))
	buf = appendU64(buf, a.Hint)
	buf = appendU64(buf, uint64(a.FinishLatch))
	return buf
}

func (a *WorkCreateArgs) Decode(b []byte) error {
	off := 0
	pc := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	dc := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	a.ParamV = make([]uint64, pc)
	for i := 0; i < pc; i++ {
		a.ParamV[i] = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}
	a.DepV = make([]guid.GUID, dc)
	for i := 0; i < dc; i++ {
		a.DepV[i] = guid.GUID(binary.LittleEndian.Uint64(b[off:]))
		off += 8
	}
	n := binary.LittleEndian.Uint32(b[off:])
	off += 4
	a.FuncName = string(b[off : off+int(n)])
	off += int(n)
	a.Template = guid.GUID(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	a.Hint = binary.LittleEndian.Uint64(b[off:])
	off += 8
	a.FinishLatch = guid.GUID(binary.LittleEndian.Uint64(b[off:]))
	return nil
}

// ---- DEP_SATISFY ----------------------------------------------------------

type DepSatisfyArgs struct {
	Event     guid.GUID
	Slot      guid.GUID
	Value     guid.GUID
	IsChannel bool
}

func (a *DepSatisfyArgs) Type() Type    { return DepSatisfy }
func (a *DepSatisfyArgs) BaseSize() int { return 8 + 8 + 8 + 1 }
func (a *DepSatisfyArgs) Encode() []byte {
	buf := make([]byte, 0, a.BaseSize())
	buf = appendU64(buf, uint64(a.Event))
	buf = appendU64(buf, uint64(a.Slot))
	buf = appendU64(buf, uint64(a.Value))
	if a.IsChannel {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}
func (a *DepSatisfyArgs) Decode(b []byte) error {
	a.Event = guid.GUID(binary.LittleEndian.Uint64(b[0:]))
	a.Slot = guid.GUID(binary.LittleEndian.Uint64(b[8:]))
	a.Value = guid.GUID(binary.LittleEndian.Uint64(b[16:]))
	a.IsChannel = b[24] != 0
	return nil
}

// ---- GUID_METADATA_CLONE --------------------------------------------------

type MetadataCloneArgs struct {
	Target guid.GUID
	Blob   []byte
}

func (a *MetadataCloneArgs) Type() Type    { return GuidMetadataClone }
func (a *MetadataCloneArgs) BaseSize() int { return 8 + 4 }
func (a *MetadataCloneArgs) Encode() []byte {
	buf := make([]byte, 0, len(a.Blob)+12)
	buf = appendU64(buf, uint64(a.Target))
	buf = appendU32(buf, uint32(len(a.Blob)))
	buf = append(buf, a.Blob...)
	return buf
}
func (a *MetadataCloneArgs) Decode(b []byte) error {
	a.Target = guid.GUID(binary.LittleEndian.Uint64(b[0:]))
	n := binary.LittleEndian.Uint32(b[8:])
	a.Blob = append([]byte(nil), b[12:12+n]...)
	return nil
}

// ---- MGT_RL_NOTIFY ---------------------------------------------------------

type RlNotifyArgs struct {
	Runlevel uint8
	TearDown bool
	Barrier  bool
}

func (a *RlNotifyArgs) Type() Type    { return MgtRlNotify }
func (a *RlNotifyArgs) BaseSize() int { return 3 }
func (a *RlNotifyArgs) Encode() []byte {
	b := []byte{a.Runlevel, boolByte(a.TearDown), boolByte(a.Barrier)}
	return b
}
func (a *RlNotifyArgs) Decode(b []byte) error {
	a.Runlevel = b[0]
	a.TearDown = b[1] != 0
	a.Barrier = b[2] != 0
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
