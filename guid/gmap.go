/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import (
	"sync"

	"github.com/open-ocr/ocr-core/cmn/cos"
)

const numBuckets = 256 // power of two; mirrors teacher's mountpath/shard counts

// Map is the concurrent, bucket-locked GUID->metadata map (spec.md §3
// "GUID->metadata map"). A value is either a raw metadata pointer (any
// object kind's in-memory record, stored as `any` the way the kernel's
// capability registry resolves per-kind operations -- see SPEC_FULL.md §9
// "Dynamic dispatch") or a *Proxy standing in for a not-yet-fetched remote
// object.
type Map struct {
	buckets [numBuckets]bucket
}

type bucket struct {
	mu sync.Mutex
	m  map[GUID]any
}

func NewMap() *Map {
	m := &Map{}
	for i := range m.buckets {
		m.buckets[i].m = make(map[GUID]any)
	}
	return m
}

func (m *Map) bucketFor(g GUID) *bucket {
	idx := cos.BucketHash64(uint64(g)) & uint64(numBuckets-1)
	return &m.buckets[idx]
}

// Put unconditionally installs value for g, overwriting any prior entry.
// Used by the BLOCK and TRUST labeled-create submodes (spec.md §4.1).
func (m *Map) Put(g GUID, value any) {
	b := m.bucketFor(g)
	b.mu.Lock()
	b.m[g] = value
	b.mu.Unlock()
}

// TryPut installs value for g only if absent, returning false (and the
// existing value) on collision -- the race-resolver for labeled creation
// (spec.md §5 "try_put is the race-resolver for labeled creation").
func (m *Map) TryPut(g GUID, value any) (existing any, installed bool) {
	b := m.bucketFor(g)
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.m[g]; ok {
		return v, false
	}
	b.m[g] = value
	return nil, true
}

func (m *Map) Get(g GUID) (any, bool) {
	b := m.bucketFor(g)
	b.mu.Lock()
	v, ok := b.m[g]
	b.mu.Unlock()
	return v, ok
}

// Remove deletes g's entry. Callers must ensure a proxy's waiter queue has
// fully drained before removing it, and must remove the map entry before
// freeing the underlying metadata storage (spec.md §3 invariants).
func (m *Map) Remove(g GUID) {
	b := m.bucketFor(g)
	b.mu.Lock()
	delete(b.m, g)
	b.mu.Unlock()
}

// Swap atomically replaces g's value and returns the previous one.
// Provider.Register does not use it: a registered remote clone stays behind
// its *Proxy entry, and a missing or non-proxy entry is overwritten with Put.
func (m *Map) Swap(g GUID, value any) (previous any, existed bool) {
	b := m.bucketFor(g)
	b.mu.Lock()
	previous, existed = b.m[g]
	b.m[g] = value
	b.mu.Unlock()
	return
}
