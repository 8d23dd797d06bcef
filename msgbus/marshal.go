/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"encoding/binary"

	"github.com/open-ocr/ocr-core/cmn/cos"
	"github.com/open-ocr/ocr-core/cmn/debug"
	"github.com/open-ocr/ocr-core/guid"
)

// Mode selects a marshalling strategy (spec.md §4.3 "Marshalling modes").
type Mode uint8

const (
	ModeAppend Mode = iota
	ModeFullCopy
	ModeAddl
	ModeDuplicate
)

// Flags modify any Mode orthogonally (spec.md §4.3).
type Flags uint8

const (
	FlagDBPtr Flags = 1 << iota
	FlagNSAddr
)

const headerWireSize = 4 + 4 + 2 + 2 + 8 + 1 + 1 + 2 // BufferSize,UsefulSize,Src,Dest,MsgID,Type,Dir,Props

func encodeHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[0:], uint32(h.BufferSize))
	binary.LittleEndian.PutUint32(b[4:], uint32(h.UsefulSize))
	binary.LittleEndian.PutUint16(b[8:], uint16(h.Src))
	binary.LittleEndian.PutUint16(b[10:], uint16(h.Dest))
	binary.LittleEndian.PutUint64(b[12:], h.MsgID)
	b[20] = byte(h.Type)
	b[21] = byte(h.Dir)
	binary.LittleEndian.PutUint16(b[22:], uint16(h.Props))
}

func decodeHeader(b []byte) Header {
	return Header{
		BufferSize: int32(binary.LittleEndian.Uint32(b[0:])),
		UsefulSize: int32(binary.LittleEndian.Uint32(b[4:])),
		Src:        guid.Location(binary.LittleEndian.Uint16(b[8:])),
		Dest:       guid.Location(binary.LittleEndian.Uint16(b[10:])),
		MsgID:      binary.LittleEndian.Uint64(b[12:]),
		Type:       Type(b[20]),
		Dir:        Direction(b[21]),
		Props:      PropertyFlags(binary.LittleEndian.Uint16(b[22:])),
	}
}

// Local holds a marshal-free Go-native payload for ModeDuplicate, where the
// "copy" is a local handoff into a continuation and no offset arithmetic is
// meaningful (spec.md §4.3: "pointers remain as native pointers in the
// copy").
type Local struct {
	Payload Payload
}

// payloadStart is where the payload area begins in the main buffer: the
// wire header immediately followed by one PtrRef slot (spec.md's per-type
// field lists collapse, here, to "one payload blob" addressed by a single
// pointer). p.BaseSize() is advisory only -- a capacity hint callers can use
// when sizing an APPEND buffer -- never an offset, so it can't collide with
// the reserved ref slot the way a payload-specific size would.
const payloadStart = headerWireSize + 8 // must already be 8-aligned

// Marshal builds a Message from a Payload under the requested Mode and
// Flags. mainBuf is the caller-supplied buffer for APPEND (must already
// have room: see spec.md "APPEND -- payload placed after base in the same
// buffer; buffer must be large enough"); it's ignored by the other modes,
// which allocate their own buffers.
func Marshal(h Header, p Payload, mode Mode, mainBuf []byte, flags Flags) (*Message, error) {
	h.Type = p.Type()
	payload := p.Encode()
	payloadAligned := cos.CeilAlign(len(payload))
	useful := payloadStart + payloadAligned

	switch mode {
	case ModeAppend:
		if len(mainBuf) < useful {
			return nil, errNoCapacity
		}
		h.UsefulSize = int32(useful)
		if h.BufferSize < h.UsefulSize {
			h.BufferSize = h.UsefulSize
		}
		encodeHeader(mainBuf, h)
		copy(mainBuf[payloadStart:], payload)
		ref := EncodePtr(payloadStart, false)
		writeRef(mainBuf, ref)
		return &Message{Header: h, Main: mainBuf[:useful]}, nil

	case ModeFullCopy:
		buf := make([]byte, useful)
		h.UsefulSize = int32(useful)
		h.BufferSize = int32(len(buf))
		encodeHeader(buf, h)
		copy(buf[payloadStart:], payload)
		ref := EncodePtr(payloadStart, false)
		writeRef(buf, ref)
		return &Message{Header: h, Main: buf}, nil

	case ModeAddl:
		main := make([]byte, payloadStart)
		addl := make([]byte, payloadAligned)
		copy(addl, payload)
		h.UsefulSize = int32(payloadStart)
		h.BufferSize = int32(len(main))
		encodeHeader(main, h)
		ref := EncodePtr(0, true)
		writeRef(main, ref)
		return &Message{Header: h, Main: main, Addl: addl}, nil

	case ModeDuplicate:
		// local handoff: header still encoded (for uniform logging/stats),
		// but the payload travels as a live Go value, not bytes.
		main := make([]byte, payloadStart)
		h.UsefulSize = int32(payloadStart)
		h.BufferSize = int32(len(main))
		encodeHeader(main, h)
		msg := &Message{Header: h, Main: main}
		msg.local = &Local{Payload: p}
		return msg, nil

	default:
		debug.Assert(false, "unknown marshal mode", mode)
		return nil, errInvalidSize
	}
}

// refOffset is the fixed slot right after the wire header where the PtrRef
// to the payload is stored.
const refOffset = headerWireSize

func writeRef(buf []byte, ref PtrRef) {
	binary.LittleEndian.PutUint64(buf[refOffset:], uint64(ref))
}

func readRef(buf []byte) PtrRef {
	return PtrRef(binary.LittleEndian.Uint64(buf[refOffset:]))
}

// Unmarshal parses a wire Message (main+addl buffers) back into a typed
// Payload, reversing whichever Marshal mode produced it (the header alone
// tells us nothing about the mode; mode is implicit in whether Addl is
// populated and in UsefulSize vs BufferSize -- the caller, generally the
// comm platform, already knows which strategy it used to receive bytes).
func Unmarshal(main, addl []byte, into Payload) (Header, error) {
	h := decodeHeader(main)
	if err := h.Validate(); err != nil {
		return h, err
	}
	ref := readRef(main)
	body := ref.Resolve(main, addl)
	if err := into.Decode(body); err != nil {
		return h, err
	}
	return h, nil
}

