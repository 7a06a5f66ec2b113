// Package bitstream reverses the GPX container framing: a "BCFZ" magic, a
// little-endian declared length, and a Burrows-Wheeler-style back-reference
// bitstream that is read MSB-first within each byte.
package bitstream

import (
	"encoding/binary"
	"io"

	"github.com/halfnote/tabpack/internal/errs"
)

const magic = "BCFZ"

// reader pulls individual bits out of an io.Reader, MSB-first within each
// byte. At end of stream it substitutes a zero byte rather than failing:
// the final back-reference in a GPX stream relies on this to terminate
// cleanly, so the substitution is preserved rather than treated as EOF.
type reader struct {
	src         io.Reader
	currentByte byte
	position    int // 8 means "no bits left in currentByte"
}

func newReader(src io.Reader) *reader {
	return &reader{src: src, position: 8}
}

func (r *reader) readBit() uint32 {
	if r.position >= 8 {
		var buf [1]byte
		if _, err := io.ReadFull(r.src, buf[:]); err != nil {
			buf[0] = 0
		}
		r.currentByte = buf[0]
		r.position = 0
	}
	bit := (r.currentByte >> (8 - r.position - 1)) & 0x01
	r.position++
	return uint32(bit)
}

// readBits reads count bits MSB-first into the result (bit 0 of the read
// sequence becomes the most significant bit of the result).
func (r *reader) readBits(count int) uint32 {
	var result uint32
	for i := 0; i < count; i++ {
		result |= r.readBit() << (count - i - 1)
	}
	return result
}

func (r *reader) readByte() byte {
	return byte(r.readBits(8))
}

// readBitsReversed reads count bits LSB-first into the result (bit 0 of the
// read sequence becomes the least significant bit of the result). GPX
// back-reference offset/size fields are encoded this way.
func (r *reader) readBitsReversed(count int) uint32 {
	var result uint32
	for i := 0; i < count; i++ {
		result |= r.readBit() << i
	}
	return result
}

// Decode reverses the GPX bitstream framing, returning the flat
// uncompressed byte buffer described by the BCFZ header. path is used only
// to annotate errors.
func Decode(src io.Reader, path string) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		return nil, errs.Wrap(errs.MalformedContainer, path, "truncated GPX header", err)
	}
	if string(hdr[:]) != magic {
		return nil, errs.New(errs.MalformedContainer, path, "bad GPX magic, expected BCFZ")
	}

	var lengthBuf [4]byte
	if _, err := io.ReadFull(src, lengthBuf[:]); err != nil {
		return nil, errs.Wrap(errs.MalformedContainer, path, "truncated GPX declared length", err)
	}
	expectedLength := binary.LittleEndian.Uint32(lengthBuf[:])

	bits := newReader(src)
	out := make([]byte, 0, expectedLength)

	for uint32(len(out)) < expectedLength {
		flag := bits.readBit()
		if flag == 1 {
			wordSize := int(bits.readBits(4))
			offset := bits.readBitsReversed(wordSize)
			size := bits.readBitsReversed(wordSize)
			if offset == 0 {
				return nil, errs.New(errs.MalformedReference, path, "back-reference offset is zero")
			}
			if offset > uint32(len(out)) {
				return nil, errs.New(errs.MalformedReference, path, "back-reference points before start of output")
			}
			sourcePos := uint32(len(out)) - offset
			toRead := offset
			if size < toRead {
				toRead = size
			}
			for i := uint32(0); i < toRead; i++ {
				out = append(out, out[sourcePos+i])
			}
		} else {
			size := bits.readBitsReversed(2)
			for i := uint32(0); i < size; i++ {
				out = append(out, bits.readByte())
			}
		}
	}

	if uint32(len(out)) != expectedLength {
		return nil, errs.New(errs.MalformedContainer, path, "declared GPX length not reachable")
	}
	return out, nil
}
