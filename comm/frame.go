/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package comm

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/open-ocr/ocr-core/cmn"
)

// Wire framing: two uint32 length prefixes (main, addl) followed by the two
// buffers back to back. Nothing fancier is warranted -- the policy message
// itself already carries BufferSize/UsefulSize for its own bookkeeping.
func writeFrame(conn net.Conn, main, addl []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(main)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(addl)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	if len(main) > 0 {
		if _, err := conn.Write(main); err != nil {
			return err
		}
	}
	if len(addl) > 0 {
		if _, err := conn.Write(addl); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(conn net.Conn, maxMsg int) (main, addl []byte, err error) {
	var hdr [8]byte
	if _, err = io.ReadFull(conn, hdr[:]); err != nil {
		return nil, nil, err
	}
	mainLen := int(binary.LittleEndian.Uint32(hdr[0:]))
	addlLen := int(binary.LittleEndian.Uint32(hdr[4:]))
	if mainLen+addlLen > maxMsg || mainLen < 0 || addlLen < 0 {
		return nil, nil, cmn.ErrNoMemory
	}
	if mainLen > 0 {
		main = make([]byte, mainLen)
		if _, err = io.ReadFull(conn, main); err != nil {
			return nil, nil, err
		}
	}
	if addlLen > 0 {
		addl = make([]byte, addlLen)
		if _, err = io.ReadFull(conn, addl); err != nil {
			return nil, nil, err
		}
	}
	return main, addl, nil
}
