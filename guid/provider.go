/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import (
	"runtime"
	"time"

	"github.com/open-ocr/ocr-core/cmn"
	"github.com/open-ocr/ocr-core/cmn/debug"
	"github.com/open-ocr/ocr-core/cmn/nlog"
)

// CreateMode selects the labeled-create submode (spec.md §4.1).
type CreateMode int

const (
	// CreateTrust performs a plain Put -- no collision check at all.
	CreateTrust CreateMode = iota
	// CreateCheck performs a try_put; on collision, frees the speculative
	// allocation and either spin-waits (if Block is also requested by the
	// caller) or returns ErrGuidExists immediately.
	CreateCheck
	// CreateBlock forces the put with retry until it succeeds.
	CreateBlock
)

// GetMode selects how getVal resolves a GUID (spec.md §4.1 getVal).
type GetMode int

const (
	GetLocal GetMode = iota // never blocks; returns the map's current view, possibly empty
	GetFetch                // installs a proxy and issues a remote clone request on miss
	GetProxy                // caller wants the *Proxy itself, for later linkage
)

// Properties bit flags, spec.md §4.1 `get`/`create`.
type Properties uint32

const (
	PropToRecord Properties = 1 << iota // insert (GUID -> value) into the map immediately
	PropLabeled                          // mint/operate on a labeled (user-chosen-range) GUID
)

// FetchFunc issues the asynchronous METADATA_CLONE request to g's home PD
// (spec.md §4.1 step 3 of the FETCH algorithm). The PD/dispatcher layer
// supplies this; guid itself knows nothing about messages or transport.
type FetchFunc func(g GUID)

// Provider is the GUID layer of a single policy domain (spec.md §4.1).
type Provider struct {
	self    Location
	labeled bool // whether this instance supports labeled reservation at all

	gmap   *Map
	filter *labeledFilter

	ctr        counter // non-labeled counter
	labeledCtr counter // labeled counter; distinct per spec.md §4.1 reserve()

	Fetch FetchFunc // nil until wired by the owning PD
}

// NewProvider constructs a Provider for the given home location. labeled
// enables labeled-GUID reservation/creation; a non-labeled provider returns
// ErrNotSupported for those calls (spec.md: "Only labeled provider supports
// labeled reservation").
func NewProvider(self Location, labeled bool) *Provider {
	p := &Provider{self: self, labeled: labeled, gmap: NewMap()}
	if labeled {
		p.filter = newLabeledFilter(1 << 16)
	}
	return p
}

// Reserve pre-allocates count contiguous GUIDs of the given kind
// (spec.md §4.1 reserve). Labeled and normal counters are distinct: a
// labeled reservation must be requested on a labeled-capable provider.
func (p *Provider) Reserve(count uint64, kind Kind, props Properties) (start GUID, skip uint64, err error) {
	if props&PropLabeled != 0 {
		if !p.labeled {
			return Nil, 0, cmn.ErrNotSupported
		}
		first := p.labeledCtr.next()
		for i := uint64(1); i < count; i++ {
			p.labeledCtr.next()
		}
		return encode(true, p.self, kind, first), 1, nil
	}
	first := p.ctr.next()
	for i := uint64(1); i < count; i++ {
		p.ctr.next()
	}
	return encode(false, p.self, kind, first), 1, nil
}

// Get mints a fresh GUID encoding kind and targetLocation as home. If
// PropToRecord is set, the (GUID -> value) pair is installed in the map: a
// proxy when the home is remote, the value itself when local (spec.md
// §4.1 get).
func (p *Provider) Get(value any, kind Kind, target Location, props Properties) GUID {
	labeled := props&PropLabeled != 0
	var g GUID
	if labeled {
		g = encode(true, target, kind, p.labeledCtr.next())
	} else {
		g = encode(false, target, kind, p.ctr.next())
	}
	if props&PropToRecord != 0 {
		if target == p.self {
			p.gmap.Put(g, value)
		} else {
			pr := NewProxy()
			pr.Enqueue(value) // parked as the first "waiter": see register()
			p.gmap.Put(g, pr)
		}
	}
	return g
}

// Create allocates size bytes of metadata for kind, homed at target, and
// stores it in the map (spec.md §4.1 create). alloc performs the actual
// local allocation; for labeled GUIDs, mode selects among CHECK/BLOCK/TRUST.
func (p *Provider) Create(g GUID, kind Kind, mode CreateMode, blockOnCheck bool, alloc func() *Metadata) (*Metadata, error) {
	if !g.IsLabeled() {
		m := alloc()
		p.gmap.Put(g, m)
		return m, nil
	}
	if !p.labeled {
		return nil, cmn.ErrNotSupported
	}
	switch mode {
	case CreateTrust:
		m := alloc()
		p.gmap.Put(g, m)
		p.filter.Record(g)
		return m, nil

	case CreateBlock:
		for {
			m := alloc()
			if existing, installed := p.gmap.TryPut(g, m); installed {
				p.filter.Record(g)
				return m, nil
			} else if existing != nil {
				// another creator got there first; nothing to free (alloc
				// is assumed cheap/local); spin per BLOCK semantics.
				_ = existing
				runtime.Gosched()
				continue
			}
		}

	default: // CreateCheck
		if p.filter.MaybeSeen(g) {
			nlog.Infof("guid: %s: filter hit, falling through to try_put", g)
		}
		m := alloc()
		existing, installed := p.gmap.TryPut(g, m)
		if installed {
			p.filter.Record(g)
			return m, nil
		}
		// collision: existing allocation wins, ours is discarded (nothing
		// to free here since alloc() only builds an in-memory struct; a
		// real local-pool allocator would free the backing bytes here).
		if !blockOnCheck {
			return nil, cmn.ErrGuidExists
		}
		existingMeta, _ := existing.(*Metadata)
		for existingMeta == nil || !existingMeta.IsReady() {
			runtime.Gosched()
			if v, ok := p.gmap.Get(g); ok {
				existingMeta, _ = v.(*Metadata)
			}
		}
		return nil, cmn.ErrGuidExists
	}
}

// Register binds an incoming metadata value for a remote GUID (spec.md
// §4.1 register): local PDs insert directly; otherwise the proxy's queue
// is closed (CAS OPEN->CLOSED) and every captured waiter is handed back to
// the caller to resubmit (the guid package has no opinion on what
// "resubmit" means -- that's the dispatcher's job).
func (p *Provider) Register(g GUID, value any) (waiters []any) {
	if g.Location() == p.self {
		p.gmap.Put(g, value)
		return nil
	}
	v, ok := p.gmap.Get(g)
	if !ok {
		// no local reference existed yet; install directly so future
		// lookups see it right away.
		p.gmap.Put(g, value)
		return nil
	}
	pr, ok := v.(*Proxy)
	if !ok {
		// already resolved directly (shouldn't normally happen); overwrite.
		p.gmap.Put(g, value)
		return nil
	}
	waiters, _ = pr.Register(value)
	return waiters
}

// PendingResult is returned by GetVal when mode == GetFetch and the value
// is not yet available locally.
type PendingResult struct {
	Proxy *Proxy
}

// GetVal resolves g per the requested mode (spec.md §4.1 getVal).
func (p *Provider) GetVal(g GUID, mode GetMode) (value any, proxy *Proxy, err error) {
	v, ok := p.gmap.Get(g)
	if ok {
		if pr, isProxy := v.(*Proxy); isProxy {
			if val, ready := pr.Value(); ready {
				return val, pr, nil
			}
			if mode == GetProxy {
				return nil, pr, nil
			}
			return nil, pr, cmn.ErrPending
		}
		return v, nil, nil
	}

	if mode != GetFetch {
		return nil, nil, nil // LOCAL: absent is not an error, just empty
	}

	// miss on FETCH: CAS-install a fresh proxy (spec.md §4.1 step 2).
	pr := NewProxy()
	existing, installed := p.gmap.TryPut(g, pr)
	if installed {
		if p.Fetch != nil {
			p.Fetch(g)
		}
		return nil, pr, cmn.ErrPending
	}
	// loser: read the winner's proxy/value instead of our speculative one.
	if winnerProxy, isProxy := existing.(*Proxy); isProxy {
		if val, ready := winnerProxy.Value(); ready {
			return val, winnerProxy, nil
		}
		return nil, winnerProxy, cmn.ErrPending
	}
	return existing, nil, nil
}

func (p *Provider) GetKind(g GUID) Kind         { return g.Kind() }
func (p *Provider) GetLocation(g GUID) Location { return g.Location() }

// Release removes g's map entry before freeing the underlying metadata, so
// a concurrent remote try_put can never observe a dangling pointer
// (spec.md §4.1 release: "remove the map entry before freeing... to close
// the race where another PD observes the freed pointer via try_put").
func (p *Provider) Release(g GUID) error {
	if _, ok := p.gmap.Get(g); !ok {
		return cmn.ErrNotPermitted
	}
	p.gmap.Remove(g)
	if g.IsLabeled() && p.filter != nil {
		p.filter.Forget(g)
	}
	return nil
}

// waitReady is a bounded spin on the single-word readiness check this
// mirrors from the source (labeled-guid.c). Nothing calls it: CreateCheck's
// block path runs its own unbounded spin loop, and no test uses it.
func waitReady(m *Metadata, timeout time.Duration) bool {
	debug.Assert(m != nil, "waitReady: nil metadata")
	deadline := time.Now().Add(timeout)
	for !m.IsReady() {
		if time.Now().After(deadline) {
			return false
		}
		runtime.Gosched()
	}
	return true
}
