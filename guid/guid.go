// Package guid implements the GUID provider and metadata proxy layer
// (spec.md §4.1-4.2): minting of globally-unique, home-location-encoding
// identifiers, and the concurrent GUID->metadata map that resolves them to
// either a local pointer or a proxy for a remote object.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import (
	"fmt"
	"sync/atomic"
)

// GUID is the opaque, cluster-unique identifier described in spec.md §3.
// Bit layout (64-bit form; fixed here per SPEC_FULL.md §3 since the wire
// format must be reproduced literally, per spec.md §9, to stay compatible
// across a heterogeneous cluster):
//
//	[63]    reserved/labeled flag
//	[62:48] home-location (15 bits)
//	[47:40] kind           (8 bits)
//	[39:0]  counter        (40 bits)
type GUID uint64

const (
	labeledBit    = uint64(1) << 63
	locationShift = 48
	locationMask  = uint64(0x7FFF) // 15 bits
	kindShift     = 40
	kindMask      = uint64(0xFF) // 8 bits
	counterMask   = uint64(0xFFFFFFFFFF) // 40 bits
)

// Nil is the zero GUID, never minted, used as a sentinel "no object" value.
const Nil GUID = 0

// Location identifies a policy domain within the cluster.
type Location uint16

func (l Location) String() string { return fmt.Sprintf("loc%d", uint16(l)) }

func encode(labeled bool, loc Location, kind Kind, counter uint64) GUID {
	var v uint64
	if labeled {
		v |= labeledBit
	}
	v |= (uint64(loc) & locationMask) << locationShift
	v |= (uint64(kind) & kindMask) << kindShift
	v |= counter & counterMask
	return GUID(v)
}

// IsLabeled reports whether g was user-minted from a reserved range (spec.md
// §3: "the reserved bit distinguishes labeled (user-minted) GUIDs").
func (g GUID) IsLabeled() bool { return uint64(g)&labeledBit != 0 }

// Location decodes the home-location field: the only PD allowed to
// invalidate this object (spec.md §3 invariant 2).
func (g GUID) Location() Location {
	return Location((uint64(g) >> locationShift) & locationMask)
}

// Kind decodes the kind field.
func (g GUID) Kind() Kind { return Kind((uint64(g) >> kindShift) & kindMask) }

// Counter decodes the monotonic counter field.
func (g GUID) Counter() uint64 { return uint64(g) & counterMask }

func (g GUID) IsNil() bool { return g == Nil }

func (g GUID) String() string {
	if g.IsNil() {
		return "guid(nil)"
	}
	tag := ""
	if g.IsLabeled() {
		tag = "L"
	}
	return fmt.Sprintf("%s%s-loc%d-%d", g.Kind(), tag, g.Location(), g.Counter())
}

// counter is a monotonic generator shared by every kind a Provider mints (a
// Provider holds one for normal and one for labeled GUIDs). A single atomic
// counter per provider instance is the "single global counter" option described in
// spec.md §5 "Shared-resource policy"; the per-worker cache-line-padded
// variant is left to callers that shard Providers per worker.
type counter struct{ n uint64 }

// next returns the next value, asserting it never wraps counterMask during
// the program's lifetime (spec.md §8 "a GUID counter approaching overflow is
// an assertion").
func (c *counter) next() uint64 {
	v := atomic.AddUint64(&c.n, 1)
	if v&^counterMask != 0 {
		panic("guid: counter overflow")
	}
	return v
}
