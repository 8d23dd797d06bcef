/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// labeledFilter is an advisory, probabilistic pre-check in front of the
// authoritative try_put collision path for labeled GUIDs (SPEC_FULL.md
// §4.1). CHECK-mode creation consults it only to log a hit; the map's
// TryPut runs on every CHECK call, hit or miss, so the filter never changes
// the outcome and does not spare the bucket lock.
type labeledFilter struct {
	mu sync.Mutex
	cf *cuckoo.Filter
}

func newLabeledFilter(capacity uint) *labeledFilter {
	return &labeledFilter{cf: cuckoo.NewFilter(capacity)}
}

func guidKey(g GUID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g))
	return b[:]
}

// MaybeSeen returns true if g might already have been minted (false
// positives possible, false negatives impossible).
func (f *labeledFilter) MaybeSeen(g GUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Lookup(guidKey(g))
}

// Record marks g as minted; called unconditionally on every successful
// labeled create so later CHECK calls see it.
func (f *labeledFilter) Record(g GUID) {
	f.mu.Lock()
	_ = f.cf.InsertUnique(guidKey(g))
	f.mu.Unlock()
}

func (f *labeledFilter) Forget(g GUID) {
	f.mu.Lock()
	f.cf.Delete(guidKey(g))
	f.mu.Unlock()
}
