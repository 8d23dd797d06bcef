/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package guid

import (
	"testing"

	"github.com/open-ocr/ocr-core/cmn"
)

func TestProviderGetLocalToRecord(t *testing.T) {
	p := NewProvider(0, false)
	g := p.Get("payload", KindDB, 0, PropToRecord)
	v, _, err := p.GetVal(g, GetLocal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "payload" {
		t.Fatalf("got %v, want payload", v)
	}
}

func TestProviderGetRemoteInstallsProxy(t *testing.T) {
	p := NewProvider(0, false)
	g := p.Get("parked", KindDB, 1 /* remote */, PropToRecord)
	if g.Location() != 1 {
		t.Fatalf("location = %d, want 1", g.Location())
	}
	_, proxy, err := p.GetVal(g, GetProxy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxy == nil {
		t.Fatal("expected a proxy to be installed for a remote-homed GUID")
	}
}

func TestProviderFetchTriggersCloneOnce(t *testing.T) {
	p := NewProvider(0, false)
	var fetches int
	p.Fetch = func(GUID) { fetches++ }

	g := encode(false, 1, KindEDTTemplate, 5) // remote home, not yet referenced
	_, _, err := p.GetVal(g, GetFetch)
	if err != cmn.ErrPending {
		t.Fatalf("expected ErrPending, got %v", err)
	}
	_, _, _ = p.GetVal(g, GetFetch) // second call should not re-fetch: proxy already installed
	if fetches != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", fetches)
	}
}

func TestProviderRegisterResolvesProxyAndDrainsWaiters(t *testing.T) {
	p := NewProvider(0, false)
	g := encode(false, 1, KindEDT, 9)
	_, _, _ = p.GetVal(g, GetFetch) // installs proxy, one pending fetch

	waiters := p.Register(g, "the-metadata")
	if waiters != nil {
		t.Fatalf("expected no waiters queued beyond the installer, got %v", waiters)
	}
	v, _, err := p.GetVal(g, GetLocal)
	if err != nil || v != "the-metadata" {
		t.Fatalf("got (%v, %v), want (the-metadata, nil)", v, err)
	}
}

func TestProviderLabeledCollision(t *testing.T) {
	p := NewProvider(5, true)
	start, _, err := p.Reserve(1, KindEDT, PropLabeled)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	alloc := func() *Metadata { return NewMetadata(KindEDT, nil) }

	m1, err1 := p.Create(start, KindEDT, CreateCheck, false, alloc)
	if err1 != nil {
		t.Fatalf("first create should succeed, got %v", err1)
	}
	m1.MarkReady(start)

	_, err2 := p.Create(start, KindEDT, CreateCheck, false, alloc)
	if err2 != cmn.ErrGuidExists {
		t.Fatalf("second create should collide, got %v", err2)
	}
}

func TestProviderLabeledNotSupported(t *testing.T) {
	p := NewProvider(0, false)
	_, _, err := p.Reserve(1, KindEDT, PropLabeled)
	if err != cmn.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestProviderReleaseIdempotent(t *testing.T) {
	p := NewProvider(0, false)
	g := p.Get("x", KindDB, 0, PropToRecord)
	if err := p.Release(g); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := p.Release(g); err != cmn.ErrNotPermitted {
		t.Fatalf("second release should error not-permitted, got %v", err)
	}
}
