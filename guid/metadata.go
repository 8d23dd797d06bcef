/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import "github.com/open-ocr/ocr-core/cmn/atomic"

// Metadata is the generic in-memory record backing any GUID (spec.md §3
// "Metadata record"): "the first word always equals the object's own GUID
// once fully initialized -- this serves as a 'ready' indicator for racy
// readers of labeled-GUID creations." We model the first word explicitly as
// `self`, written last (after Payload is populated) and read first by any
// spin-waiter.
type Metadata struct {
	self    atomic.Uint64 // 0 until fully initialized; then == uint64(its own GUID)
	Kind    Kind
	Payload any // per-kind state; interpreted by the capability registry (SPEC_FULL.md §9)
}

func NewMetadata(kind Kind, payload any) *Metadata {
	return &Metadata{Kind: kind, Payload: payload}
}

// MarkReady publishes g as this record's own identity -- the final write in
// its initialization sequence. Must happen-after every other field write.
func (m *Metadata) MarkReady(g GUID) { m.self.Store(uint64(g)) }

// Self reads the "ready" word: Nil until MarkReady has run.
func (m *Metadata) Self() GUID { return GUID(m.self.Load()) }

func (m *Metadata) IsReady() bool { return !m.Self().IsNil() }
