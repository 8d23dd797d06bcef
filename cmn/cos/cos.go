// Package cos ("common os"/"common small") holds small, dependency-free
// utilities shared by every other package -- alignment, hashing, and the
// verbosity-module constants -- mirroring the teacher's cmn/cos grab-bag.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package cos

import "github.com/OneOfOne/xxhash"

// MaxAlignment is the wire/marshalling alignment boundary for policy messages
// (spec.md §4.3: "rounded up to a maximum-alignment multiple (8 bytes)").
const MaxAlignment = 8

// CeilAlign rounds n up to the next multiple of MaxAlignment.
func CeilAlign(n int) int {
	if r := n % MaxAlignment; r != 0 {
		return n + (MaxAlignment - r)
	}
	return n
}

// module names, used with nlog.FastV the way the teacher scopes per-module
// verbosity (cos.SmoduleMirror, cos.SmoduleAIS, ...).
const (
	SmoduleGUID     = "guid"
	SmoduleProxy    = "proxy"
	SmoduleMsg      = "msg"
	SmoduleComm     = "comm"
	SmodulePD       = "pd"
	SmoduleSched    = "sched"
	SmoduleRunlevel = "runlevel"
)

// BucketHash64 hashes the low bits of a GUID (or any uint64 key) for the
// bucket-locked GUID->metadata map (spec.md §3 "keyed on the low bits of the
// GUID"). xxhash is the teacher's own choice for this kind of fast,
// non-cryptographic fixed-width hash.
func BucketHash64(key uint64) uint64 {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(key >> (8 * i))
	}
	return xxhash.Checksum64(b[:])
}
