/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import (
	"github.com/pierrec/lz4/v3"

	"github.com/open-ocr/ocr-core/cmn"
)

// CompressAddl/DecompressAddl implement optional lz4 block compression of
// the ADDL payload chunk (spec.md §4.3: "compression of the ADDL/FULL_COPY
// payload chunk is optional and configured per policy domain"). The main
// buffer -- header plus PtrRef -- is never compressed: it has to be
// decodable before we know whether compression was even used.
//
// A compressed Addl buffer is prefixed with the uncompressed length as a
// little-endian uint32 so DecompressAddl can size its destination without a
// second round trip.
func CompressAddl(addl []byte) []byte {
	bound := lz4.CompressBlockBound(len(addl))
	out := make([]byte, 4+bound)
	out[0] = byte(len(addl))
	out[1] = byte(len(addl) >> 8)
	out[2] = byte(len(addl) >> 16)
	out[3] = byte(len(addl) >> 24)

	var ht [lz4.CompressionTableSize]int
	n, err := lz4.CompressBlock(addl, out[4:], ht[:])
	if err != nil || n == 0 {
		// incompressible or too small to bother: fall back to a raw copy;
		// DecompressAddl recognises it because its body length equals the
		// recorded uncompressed length.
		raw := make([]byte, 4+len(addl))
		copy(raw, out[:4])
		copy(raw[4:], addl)
		return raw
	}
	return out[:4+n]
}

func DecompressAddl(compressed []byte) ([]byte, error) {
	if len(compressed) < 4 {
		return nil, cmn.ErrInval
	}
	rawLen := int(compressed[0]) | int(compressed[1])<<8 | int(compressed[2])<<16 | int(compressed[3])<<24
	body := compressed[4:]
	if len(body) == rawLen {
		// CompressAddl's incompressible fallback: body is already raw.
		out := make([]byte, rawLen)
		copy(out, body)
		return out, nil
	}
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
