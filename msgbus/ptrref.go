/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

// PtrRef is the mechanical pointer fix-up encoding of spec.md §4.3: every
// pointer-valued field is replaced with `(offset << 1) | inAddl` on
// marshall, and recomputed by the receiver as
// `(offset&1 ? addlBase : mainBase) + (offset>>1)` on unmarshall. In Go we
// cannot (and should not) reconstruct raw addresses; instead a PtrRef names
// a byte offset into one of the two wire buffers, and Resolve returns the
// corresponding sub-slice, which is the idiomatic equivalent.
type PtrRef uint64

// NilRef marks "no payload at this offset" (field unused for this message).
const NilRef PtrRef = 0

// EncodePtr builds a PtrRef for a field at byte offset off (offset is
// counted from buffer start; off==0 is reserved for "points at nothing"
// so all real offsets here are 1-based to keep NilRef meaningful).
func EncodePtr(off int, inAddl bool) PtrRef {
	v := uint64(off+1) << 1
	if inAddl {
		v |= 1
	}
	return PtrRef(v)
}

func (r PtrRef) IsNil() bool { return r == NilRef }

// InAddl reports which buffer the reference targets.
func (r PtrRef) InAddl() bool { return r&1 != 0 }

// Offset decodes the byte offset the reference targets.
func (r PtrRef) Offset() int { return int(r>>1) - 1 }

// Resolve returns the sub-slice of mainBuf/addlBuf starting at r's offset,
// exactly the receiver-side computation spec.md §4.3 describes.
func (r PtrRef) Resolve(mainBuf, addlBuf []byte) []byte {
	if r.IsNil() {
		return nil
	}
	if r.InAddl() {
		return addlBuf[r.Offset():]
	}
	return mainBuf[r.Offset():]
}
