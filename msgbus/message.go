// Package msgbus implements the policy-domain message protocol (spec.md
// §4.3): a typed, marshallable message bus used both for intra-PD calls and
// for cross-PD RPC, including request/response correlation, asynchronous
// continuations, and cross-address-space pointer fix-up.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import "github.com/open-ocr/ocr-core/guid"

// Type enumerates the message taxonomy of spec.md §4.5's routing table plus
// the GUID-layer and scheduler messages referenced elsewhere in the spec.
type Type uint8

const (
	TypeInvalid Type = iota
	WorkCreate
	WorkDestroy
	DbCreate
	DbDestroy
	DbFree
	DbAcquire
	DbRelease
	EvtCreate
	EvtDestroy
	EdtTempDestroy
	DepSatisfy
	GuidMetadataClone
	MetadataComm
	MgtRlNotify
	GetWork
	NotifyEdtReady
)

func (t Type) String() string {
	switch t {
	case WorkCreate:
		return "WORK_CREATE"
	case WorkDestroy:
		return "WORK_DESTROY"
	case DbCreate:
		return "DB_CREATE"
	case DbDestroy:
		return "DB_DESTROY"
	case DbFree:
		return "DB_FREE"
	case DbAcquire:
		return "DB_ACQUIRE"
	case DbRelease:
		return "DB_RELEASE"
	case EvtCreate:
		return "EVT_CREATE"
	case EvtDestroy:
		return "EVT_DESTROY"
	case EdtTempDestroy:
		return "EDTTEMP_DESTROY"
	case DepSatisfy:
		return "DEP_SATISFY"
	case GuidMetadataClone:
		return "GUID_METADATA_CLONE"
	case MetadataComm:
		return "METADATA_COMM"
	case MgtRlNotify:
		return "MGT_RL_NOTIFY"
	case GetWork:
		return "GET_WORK"
	case NotifyEdtReady:
		return "NOTIFY_EDT_READY"
	default:
		return "UNKNOWN"
	}
}

// Direction -- spec.md §3 "Policy message": REQUEST and RESPONSE are
// mutually exclusive and exactly one is set.
type Direction uint8

const (
	Request Direction = iota
	Response
)

// PropertyFlags, spec.md §3/§4.3.
type PropertyFlags uint16

const (
	PersistMsgProp PropertyFlags = 1 << iota
	TwowayMsgProp
	AsyncMsgProp
	CommOneWay
	CommStackMsg
	ReqResponse // "expects response" direction flag, kept alongside Direction for clarity at call sites
)

// Header is the fixed-shape part of every policy message (spec.md §3).
type Header struct {
	BufferSize int32 // physical capacity
	UsefulSize int32 // logical size after marshalling; UsefulSize <= BufferSize
	Src        guid.Location
	Dest       guid.Location
	MsgID      uint64
	Type       Type
	Dir        Direction
	Props      PropertyFlags
}

// Validate enforces spec.md §3 invariants on the header.
func (h *Header) Validate() error {
	if h.UsefulSize > h.BufferSize {
		return errInvalidSize
	}
	return nil
}

// Message is a Header plus an opaque, already-marshalled payload area. The
// payload's internal shape is type-specific (see payloads.go); the bus
// itself only ever needs BufferSize/UsefulSize/pointer offsets to move
// bytes around, matching spec.md's claim that "the rule is mechanical."
type Message struct {
	Header
	Main  []byte // main buffer: header region followed by APPEND payload, if any
	Addl  []byte // additional buffer, present only in ADDL mode
	local *Local // set only in ModeDuplicate: a live Go payload, no offset math
}

// LocalPayload returns the ModeDuplicate payload handoff, if any.
func (m *Message) LocalPayload() (Payload, bool) {
	if m.local == nil {
		return nil, false
	}
	return m.local.Payload, true
}
