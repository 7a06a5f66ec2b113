// Package psarc reads and writes the target game's PSARC archive format: a
// TOC-encrypted, per-entry zlib-block-chained file bundle, plus the SNG
// payload cipher and profile decryption used by component L.
package psarc

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/halfnote/tabpack/internal/config"
	"github.com/halfnote/tabpack/internal/errs"
)

const (
	Magic        = "PSAR"
	Version      = 0x00010004
	Compression  = "zlib"
	EntrySize    = 30
	ArchiveFlags = 4
)

const headerSize = 32

type entryRecord struct {
	md5     [16]byte
	zindex  uint32
	length  uint64
	offset  uint64
}

func putUint40(b []byte, v uint64) {
	b[0] = byte(v >> 32)
	b[1] = byte(v >> 24)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 8)
	b[4] = byte(v)
}

func getUint40(b []byte) uint64 {
	return uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
}

// Read decodes a whole PSARC archive into a path -> content map. The
// synthetic manifest entry (index 0) is consumed internally and not
// returned.
func Read(data []byte, keys config.Keys, path string) (map[string][]byte, error) {
	if len(data) < headerSize || string(data[:4]) != Magic {
		return nil, errs.New(errs.MalformedContainer, path, "bad PSARC magic, expected PSAR")
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != Version {
		return nil, errs.New(errs.MalformedContainer, path, "unsupported PSARC version")
	}
	tocSize := binary.BigEndian.Uint32(data[12:16])
	entrySize := binary.BigEndian.Uint32(data[16:20])
	nEntries := binary.BigEndian.Uint32(data[20:24])
	blockSize := binary.BigEndian.Uint32(data[24:28])
	if entrySize != EntrySize {
		return nil, errs.New(errs.MalformedContainer, path, "unexpected PSARC entry record size")
	}
	if int(tocSize) > len(data) {
		return nil, errs.New(errs.MalformedContainer, path, "TOC size runs past archive end")
	}

	encTOC := data[headerSize:tocSize]
	rawTOC, err := decipherTOC(encTOC, keys.ArchiveKey, keys.ArchiveIV)
	if err != nil {
		return nil, err
	}

	entriesBytes := int(entrySize) * int(nEntries)
	if entriesBytes > len(rawTOC) {
		return nil, errs.New(errs.CryptoFailure, path, "decrypted TOC shorter than declared entry table")
	}

	entries := make([]entryRecord, nEntries)
	for i := range entries {
		rec := rawTOC[i*int(entrySize) : (i+1)*int(entrySize)]
		var e entryRecord
		copy(e.md5[:], rec[:16])
		e.zindex = binary.BigEndian.Uint32(rec[16:20])
		e.length = getUint40(rec[20:25])
		e.offset = getUint40(rec[25:30])
		entries[i] = e
	}

	zlenBytes := rawTOC[entriesBytes:]
	zlenCount := len(zlenBytes) / 2
	zlengths := make([]uint16, zlenCount)
	for i := range zlengths {
		zlengths[i] = binary.BigEndian.Uint16(zlenBytes[i*2 : i*2+2])
	}

	bodies := make([][]byte, len(entries))
	for i, e := range entries {
		end := uint32(len(zlengths))
		if i+1 < len(entries) {
			end = entries[i+1].zindex
		}
		if e.zindex > uint32(len(zlengths)) || end > uint32(len(zlengths)) || end < e.zindex {
			return nil, errs.New(errs.MalformedReference, path, "entry zindex out of range")
		}
		body, err := decompressBlocks(data, e.offset, zlengths[e.zindex:end], blockSize, e.length)
		if err != nil {
			return nil, err
		}
		bodies[i] = body
	}

	if len(entries) == 0 {
		return map[string][]byte{}, nil
	}

	manifestNames := strings.Split(strings.TrimRight(string(bodies[0]), "\n"), "\n")
	files := make(map[string][]byte)
	for i := 1; i < len(entries); i++ {
		name := ""
		if i-1 < len(manifestNames) {
			name = manifestNames[i-1]
		}
		if name == "" {
			continue
		}
		body := bodies[i]
		if key, ok := sngKeyForPath(name, keys); ok {
			plain, err := DecryptSNG(body, key, name)
			if err != nil {
				return nil, err
			}
			body = plain
		}
		files[name] = body
	}
	return files, nil
}

// sngKeyForPath reports whether path is an SNG payload entry and, if so,
// which platform's SNG cipher key applies.
func sngKeyForPath(path string, keys config.Keys) ([32]byte, bool) {
	switch {
	case strings.Contains(path, "songs/bin/macos/"):
		return keys.MacSNGKey, true
	case strings.Contains(path, "songs/bin/generic/"):
		return keys.PCSNGKey, true
	default:
		return [32]byte{}, false
	}
}

// decompressBlocks reads the zlib block chain for one entry starting at
// file offset start.
func decompressBlocks(data []byte, start uint64, zlengths []uint16, blockSize uint32, totalLength uint64) ([]byte, error) {
	out := make([]byte, 0, totalLength)
	pos := start
	for _, zl := range zlengths {
		if uint64(len(out)) >= totalLength {
			break
		}
		var chunkLen uint32
		if zl == 0 {
			chunkLen = blockSize
		} else {
			chunkLen = uint32(zl)
		}
		if pos+uint64(chunkLen) > uint64(len(data)) {
			return nil, errs.New(errs.MalformedReference, "", "entry block runs past archive end")
		}
		chunk := data[pos : pos+uint64(chunkLen)]
		pos += uint64(chunkLen)

		if zl == 0 {
			out = append(out, chunk...)
			continue
		}
		zr, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			out = append(out, chunk...)
			continue
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			out = append(out, chunk...)
			continue
		}
		out = append(out, raw...)
	}
	if uint64(len(out)) > totalLength {
		out = out[:totalLength]
	}
	return out, nil
}

// Write encodes files (path -> content) as a new PSARC archive, building
// the synthetic manifest entry itself.
func Write(files map[string][]byte, keys config.Keys, blockSize uint32) ([]byte, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	manifest := strings.Join(paths, "\n")

	bodies := make([][]byte, 0, len(paths)+1)
	bodies = append(bodies, []byte(manifest))
	for _, p := range paths {
		body := files[p]
		if key, ok := sngKeyForPath(p, keys); ok {
			encrypted, err := EncryptSNG(body, key)
			if err != nil {
				return nil, err
			}
			body = encrypted
		}
		bodies = append(bodies, body)
	}

	var allZlengths []uint16
	compressedBodies := make([][]byte, len(bodies))
	zindices := make([]uint32, len(bodies))
	for i, body := range bodies {
		zindices[i] = uint32(len(allZlengths))
		compressed, zlens := compressBlocks(body, blockSize)
		compressedBodies[i] = compressed
		allZlengths = append(allZlengths, zlens...)
	}

	var dataStream bytes.Buffer
	for _, c := range compressedBodies {
		dataStream.Write(c)
	}

	nEntries := len(bodies)
	tocSize := headerSize + EntrySize*nEntries + 2*len(allZlengths)

	entryTable := make([]byte, EntrySize*nEntries)
	runningOffset := uint64(tocSize)
	for i, body := range bodies {
		rec := entryTable[i*EntrySize : (i+1)*EntrySize]
		if i > 0 {
			sum := md5.Sum([]byte(paths[i-1]))
			copy(rec[:16], sum[:])
		}
		binary.BigEndian.PutUint32(rec[16:20], zindices[i])
		putUint40(rec[20:25], uint64(len(body)))
		putUint40(rec[25:30], runningOffset)

		runningOffset += uint64(len(compressedBodies[i]))
	}

	zlenBytes := make([]byte, 2*len(allZlengths))
	for i, zl := range allZlengths {
		binary.BigEndian.PutUint16(zlenBytes[i*2:i*2+2], zl)
	}

	payload := append(entryTable, zlenBytes...)
	encTOC, err := cipherTOC(payload, keys.ArchiveKey, keys.ArchiveIV)
	if err != nil {
		return nil, err
	}

	header := make([]byte, headerSize)
	copy(header[:4], Magic)
	binary.BigEndian.PutUint32(header[4:8], Version)
	copy(header[8:12], Compression)
	binary.BigEndian.PutUint32(header[12:16], uint32(tocSize))
	binary.BigEndian.PutUint32(header[16:20], EntrySize)
	binary.BigEndian.PutUint32(header[20:24], uint32(nEntries))
	binary.BigEndian.PutUint32(header[24:28], blockSize)
	binary.BigEndian.PutUint32(header[28:32], ArchiveFlags)

	out := make([]byte, 0, tocSize+dataStream.Len())
	out = append(out, header...)
	out = append(out, encTOC...)
	out = append(out, dataStream.Bytes()...)
	return out, nil
}

// compressBlocks splits data into blockSize chunks, zlib-compressing each
// at best level; a chunk whose compressed form is not strictly smaller is
// stored raw, with its zlength recorded as len(chunk) % blockSize (0 means
// "a full raw block").
func compressBlocks(data []byte, blockSize uint32) ([]byte, []uint16) {
	var out []byte
	var zlens []uint16
	if len(data) == 0 {
		return out, zlens
	}
	for off := 0; off < len(data); off += int(blockSize) {
		end := off + int(blockSize)
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		var buf bytes.Buffer
		zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		zw.Write(chunk)
		zw.Close()

		if buf.Len() < len(chunk) {
			out = append(out, buf.Bytes()...)
			zlens = append(zlens, uint16(buf.Len()))
		} else {
			out = append(out, chunk...)
			zlens = append(zlens, uint16(len(chunk)%int(blockSize)))
		}
	}
	return out, zlens
}
