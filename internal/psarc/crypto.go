package psarc

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"io"

	"github.com/halfnote/tabpack/internal/errs"
)

// pad zero-pads data up to the next multiple of blockSize.
func pad(data []byte, blockSize int) []byte {
	if rem := len(data) % blockSize; rem != 0 {
		data = append(data, make([]byte, blockSize-rem)...)
	}
	return data
}

// cipherTOC encrypts the TOC payload with AES-CFB-128 under the archive
// key/IV; decipherTOC is its inverse, used by Read.
func cipherTOC(data []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "", "archive key is not valid AES-256", err)
	}
	stream := cipher.NewCFBEncrypter(block, iv[:])
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

func decipherTOC(data []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "", "archive key is not valid AES-256", err)
	}
	stream := cipher.NewCFBDecrypter(block, iv[:])
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// updateCTR increments a 16-byte big-endian counter in place, carrying from
// the rightmost byte, matching the reference archive's home-grown
// AES-CTR-from-CFB construction rather than a generic CTR implementation.
func updateCTR(counter *[16]byte) {
	for i := 15; i >= 0; i-- {
		counter[i]++
		if counter[i] != 0 {
			return
		}
	}
}

// aesCTR runs the custom counter-mode construction: every 16-byte block is
// XORed with AES_encrypt(counter) using a fresh key schedule per call (the
// reference re-instantiates an AES-CFB-128 cipher per block with the
// counter as IV and zero feedback, which is bit-identical to encrypting the
// counter directly). key selects MAC or PC platform key; iv seeds the
// counter.
func aesCTR(data []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "", "SNG payload key is not valid AES-256", err)
	}
	out := make([]byte, len(data))
	counter := iv
	var keystream [16]byte
	for offset := 0; offset < len(data); offset += 16 {
		block.Encrypt(keystream[:], counter[:])
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < end; i++ {
			out[i] = data[i] ^ keystream[i-offset]
		}
		updateCTR(&counter)
	}
	return out, nil
}

// sngHeader is the fixed 8-byte prefix of an encrypted SNG payload.
var sngHeader = [8]byte{0x4A, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00}

// EncryptSNG wraps raw sng-encoder output in the platform payload container:
// header | IV(zero) | AES-CTR(u32 length | zlib(data)) | 56-byte trailer.
func EncryptSNG(data []byte, key [32]byte) ([]byte, error) {
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(data)))

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(data); err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "", "failed to deflate SNG payload", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "", "failed to finalise SNG payload deflate", err)
	}

	plain := append(lenPrefix[:], zbuf.Bytes()...)
	plain = pad(plain, 16)

	var iv [16]byte
	cipherText, err := aesCTR(plain, key, iv)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 8+16+len(cipherText)+56)
	out = append(out, sngHeader[:]...)
	out = append(out, iv[:]...)
	out = append(out, cipherText...)
	out = append(out, make([]byte, 56)...)
	return out, nil
}

// DecryptSNG inverts EncryptSNG, verifying the stored plaintext length
// against the decompressed size.
func DecryptSNG(container []byte, key [32]byte, path string) ([]byte, error) {
	if len(container) < 8+16+56 {
		return nil, errs.New(errs.MalformedContainer, path, "SNG payload container shorter than fixed framing")
	}
	iv := [16]byte{}
	copy(iv[:], container[8:24])
	cipherText := container[24 : len(container)-56]

	plain, err := aesCTR(cipherText, key, iv)
	if err != nil {
		return nil, err
	}
	if len(plain) < 4 {
		return nil, errs.New(errs.MalformedContainer, path, "SNG payload missing length prefix")
	}
	declared := binary.LittleEndian.Uint32(plain[:4])

	zr, err := zlib.NewReader(bytes.NewReader(plain[4:]))
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, path, "SNG payload body is not valid zlib", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, path, "failed to inflate SNG payload", err)
	}
	if uint32(len(out)) != declared {
		return nil, errs.New(errs.CryptoFailure, path, "SNG payload decompressed length mismatch")
	}
	return out, nil
}

// DecryptProfile implements the profile database path: little-endian u32
// length at offset 16, AES-ECB (no IV) ciphertext from offset 20, zlib
// inflate, trailing NUL stripped.
func DecryptProfile(data []byte, key [32]byte, path string) ([]byte, error) {
	if len(data) < 20 {
		return nil, errs.New(errs.MalformedContainer, path, "profile shorter than fixed header")
	}
	declared := binary.LittleEndian.Uint32(data[16:20])

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, path, "profile key is not valid AES-256", err)
	}
	cipherText := pad(append([]byte(nil), data[20:]...), block.BlockSize())

	plain := make([]byte, len(cipherText))
	for off := 0; off < len(cipherText); off += block.BlockSize() {
		block.Decrypt(plain[off:off+block.BlockSize()], cipherText[off:off+block.BlockSize()])
	}

	zr, err := zlib.NewReader(bytes.NewReader(plain))
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, path, "profile body is not valid zlib", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, path, "failed to inflate profile body", err)
	}
	if uint32(len(out)) < declared {
		return nil, errs.New(errs.CryptoFailure, path, "profile decompressed length shorter than declared")
	}
	out = out[:declared]
	if len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}
