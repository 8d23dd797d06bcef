/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"time"

	"github.com/open-ocr/ocr-core/cmn"
	"github.com/open-ocr/ocr-core/guid"
)

// Transport is the thin seam the comm platform (package comm) implements so
// msgbus never has to know about sockets, probes, or pre-posted receives --
// only about byte ownership rules (spec.md §4.3 "Send semantics").
type Transport interface {
	SendBytes(dest guid.Location, main, addl []byte, props PropertyFlags) error
}

// Bus is one policy domain's message bus: it mints correlation ids, applies
// the ownership rules of Send, and routes incoming responses back to
// whichever call is waiting on them. The comm platform feeds every received
// message to DispatchIncoming; everything upstream of that is classic
// poll/wait or MT events, never both for the same message instance
// (spec.md §4.3: "must not be mixed").
type Bus struct {
	self     guid.Location
	xport    Transport
	corr     *Correlator
	unsolicited chan *Message
}

func NewBus(self guid.Location, xport Transport) *Bus {
	return &Bus{
		self:        self,
		xport:       xport,
		corr:        NewCorrelator(),
		unsolicited: make(chan *Message, 256),
	}
}

// SendMessage applies spec.md §4.3's ownership rules and hands bytes to the
// transport. msg must already be marshalled (see Marshal). Callers that
// want a response should use SendTwoWay or SendMessageMT instead.
func (b *Bus) SendMessage(dest guid.Location, msg *Message, props PropertyFlags) error {
	msg.Dest = dest
	msg.Src = b.self
	msg.Props = props

	switch {
	case props&AsyncMsgProp != 0:
		msg.MsgID = SendAnyID
	case props&TwowayMsgProp != 0 && msg.MsgID == 0:
		msg.MsgID = b.corr.NewID()
	}
	// Marshal already baked a header into msg.Main at marshal time, before
	// Dest/MsgID/Props were known; patch the wire bytes to match the
	// now-final Header so the receiver's correlation id is correct.
	if len(msg.Main) >= headerWireSize {
		encodeHeader(msg.Main, msg.Header)
	}

	var out []byte
	switch {
	case props&PersistMsgProp != 0:
		// "buffer belongs to caller" (TWOWAY|PERSIST) or "ownership
		// transferred to the bus" (PERSIST alone) -- either way, no copy:
		// the caller's buffer is used directly.
		out = msg.Main
	default:
		// "No PERSIST -- bus must copy."
		out = append([]byte(nil), msg.Main...)
	}
	return b.xport.SendBytes(dest, out, msg.Addl, props)
}

// SendTwoWay sends msg with TWOWAY|REQ_RESPONSE semantics and blocks the
// calling worker for the reply -- the classic style's blocking point
// (spec.md §5 "processMessage(..., isBlocking=true)").
func (b *Bus) SendTwoWay(dest guid.Location, msg *Message, props PropertyFlags, timeout time.Duration) (*Message, error) {
	props |= TwowayMsgProp | ReqResponse
	msg.MsgID = b.corr.NewID()
	ch := b.corr.Register(msg.MsgID)
	if err := b.SendMessage(dest, msg, props); err != nil {
		b.corr.Forget(msg.MsgID)
		return nil, err
	}
	if timeout <= 0 {
		return <-ch, nil
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		b.corr.Forget(msg.MsgID)
		return nil, cmn.ErrBusy
	}
}

// SendMessageMT is the MT-style analogue of SendTwoWay: it returns
// immediately with an Event that resolves when the response arrives,
// letting any worker pick up the continuation (spec.md §4.3 "sendMessageMT
// ... returns an event that resolves when the response arrives").
func (b *Bus) SendMessageMT(dest guid.Location, msg *Message, props PropertyFlags) *Event {
	ev := NewEvent()
	props |= TwowayMsgProp | ReqResponse
	msg.MsgID = b.corr.NewID()
	ch := b.corr.Register(msg.MsgID)
	if err := b.SendMessage(dest, msg, props); err != nil {
		b.corr.Forget(msg.MsgID)
		ev.Resolve(nil, err)
		return ev
	}
	go func() {
		resp := <-ch
		ev.Resolve(resp, nil)
	}()
	return ev
}

// DispatchIncoming is called by the comm platform for every message it
// receives. Responses are routed to their waiting caller (classic or MT);
// anything else (a fresh request, or an ASYNC response tagged SendAnyID) is
// unsolicited and goes on the poll/wait queue.
func (b *Bus) DispatchIncoming(msg *Message) {
	if msg.Dir == Response && b.corr.Resolve(msg) {
		return
	}
	select {
	case b.unsolicited <- msg:
	default:
		// queue full: drop oldest is not safe without ordering guarantees
		// for CHANNEL-event traffic (spec.md §5), so we block until the
		// queue has room instead of silently discarding.
		b.unsolicited <- msg
	}
}

// Poll is the classic, non-blocking read of the next unsolicited message
// (spec.md §4.3 "poll(msgOut)"). ErrNoMessage if nothing is queued.
func (b *Bus) Poll() (*Message, error) {
	select {
	case msg := <-b.unsolicited:
		return msg, nil
	default:
		return nil, cmn.ErrNoMessage
	}
}

// Wait is Poll's blocking counterpart (spec.md §4.3 "wait(msgOut)").
func (b *Bus) Wait(timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		return <-b.unsolicited, nil
	}
	select {
	case msg := <-b.unsolicited:
		return msg, nil
	case <-time.After(timeout):
		return nil, cmn.ErrNoMessage
	}
}

// PollMT/WaitMT are the MT-style mirrors of Poll/Wait, yielding an Event
// already resolved with the next unsolicited message (spec.md §4.3
// "pollMessageMT/waitMessageMT yield an event holding the next unsolicited
// incoming message").
func (b *Bus) PollMT() *Event {
	ev := NewEvent()
	msg, err := b.Poll()
	ev.Resolve(msg, err)
	return ev
}

func (b *Bus) WaitMT(timeout time.Duration) *Event {
	ev := NewEvent()
	msg, err := b.Wait(timeout)
	ev.Resolve(msg, err)
	return ev
}

// DestructMessage releases a classic-style message once the caller is done
// with it. A pooled-buffer implementation would return Main/Addl to a
// sync.Pool here; kept as an explicit call for API symmetry with spec.md's
// destructMessage, and as the hook a future allocator-aware build would use.
func DestructMessage(*Message) {}
