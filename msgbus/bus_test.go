/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"testing"
	"time"

	"github.com/open-ocr/ocr-core/guid"
)

// loopXport is a Transport that feeds every sent message straight to a
// peer Bus's DispatchIncoming, simulating two PDs talking over a wire with
// no actual network in between.
type loopXport struct {
	peer *Bus
	flip func(*Message)
}

func (x *loopXport) SendBytes(dest guid.Location, main, addl []byte, props PropertyFlags) error {
	msg := &Message{Main: append([]byte(nil), main...), Addl: append([]byte(nil), addl...)}
	msg.Header = decodeHeader(msg.Main)
	if x.flip != nil {
		x.flip(msg)
	}
	x.peer.DispatchIncoming(msg)
	return nil
}

func TestBusSendTwoWayRoundTrip(t *testing.T) {
	var a, b *Bus
	a = NewBus(1, &loopXport{peer: nil}) // peer set below once b exists
	b = NewBus(2, &loopXport{peer: a, flip: func(m *Message) { m.Dir = Response }})
	a.xport.(*loopXport).peer = b

	p := &RlNotifyArgs{Runlevel: 2, Barrier: true}
	msg, err := Marshal(Header{}, p, ModeFullCopy, nil, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// b plays the remote PD: it answers the request, and its transport
	// hands the answer back to a as a response.
	go func() {
		req, err := b.Wait(time.Second)
		if err != nil {
			return
		}
		_ = b.SendMessage(1, req, 0)
	}()

	resp, err := a.SendTwoWay(2, msg, 0, time.Second)
	if err != nil {
		t.Fatalf("SendTwoWay: %v", err)
	}
	if resp.Dir != Response {
		t.Fatalf("expected response direction, got %v", resp.Dir)
	}
}

func TestBusPollUnsolicited(t *testing.T) {
	b := NewBus(1, &loopXport{})
	in := &Message{Header: Header{Type: GetWork, Dir: Request}, Main: make([]byte, payloadStart)}
	b.DispatchIncoming(in)

	got, err := b.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got.Type != GetWork {
		t.Fatalf("type mismatch: %v", got.Type)
	}
	if _, err := b.Poll(); err == nil {
		t.Fatalf("expected ErrNoMessage on empty queue")
	}
}

func TestBusSendMessageMTResolves(t *testing.T) {
	var a, b *Bus
	a = NewBus(1, &loopXport{})
	b = NewBus(2, &loopXport{peer: a, flip: func(m *Message) { m.Dir = Response }})
	a.xport.(*loopXport).peer = b

	p := &RlNotifyArgs{Runlevel: 1}
	msg, _ := Marshal(Header{}, p, ModeFullCopy, nil, 0)
	ev := a.SendMessageMT(2, msg, 0)

	// b answers the request; its transport hands the answer back to a.
	req, err := b.Poll()
	if err != nil {
		t.Fatalf("b poll: %v", err)
	}
	if err := b.SendMessage(1, req, 0); err != nil {
		t.Fatalf("b answer: %v", err)
	}

	resp, err := ev.Wait()
	if err != nil {
		t.Fatalf("event wait: %v", err)
	}
	if resp.Dir != Response {
		t.Fatalf("expected response, got %v", resp.Dir)
	}
}
