/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package comm

import (
	"net"
	"testing"
	"time"

	"github.com/open-ocr/ocr-core/guid"
	"github.com/open-ocr/ocr-core/msgbus"
)

func TestFrameRoundTrip(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	main := []byte("main-bytes")
	addl := []byte("addl-bytes-here")
	done := make(chan error, 1)
	go func() { done <- writeFrame(c1, main, addl) }()

	gotMain, gotAddl, err := readFrame(c2, DefaultMaxMsgSize)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if string(gotMain) != string(main) || string(gotAddl) != string(addl) {
		t.Fatalf("frame mismatch: %q %q", gotMain, gotAddl)
	}
}

func TestPlatformSendDispatchesToPeerBus(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	sender := NewPlatform(1, DefaultMaxMsgSize)
	receiver := NewPlatform(2, DefaultMaxMsgSize)

	recvBus := msgbus.NewBus(2, receiver)
	receiver.Attach(recvBus)
	receiver.AddPeer(1, c2)

	sender.AddPeer(2, c1)

	if err := sender.SendBytes(2, []byte("hello-main-bytes-0123456789012"), nil, 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, err := recvBus.Wait(time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(msg.Main) != "hello-main-bytes-0123456789012" {
		t.Fatalf("payload mismatch: %q", msg.Main)
	}

	_ = sender.Close()
	_ = receiver.Close()
}

func TestPlatformSendRejectsOversized(t *testing.T) {
	p := NewPlatform(1, 8)
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	p.AddPeer(guid.Location(2), c1)
	if err := p.SendBytes(2, make([]byte, 100), nil, 0); err == nil {
		t.Fatalf("expected oversize rejection")
	}
}
