// Package gpxfs parses the small sector-based virtual filesystem ("BCFS")
// embedded inside a decoded GPX byte buffer and exposes its named entries.
package gpxfs

import (
	"bytes"
	"encoding/binary"

	"github.com/halfnote/tabpack/internal/errs"
)

const (
	magic      = "BCFS"
	sectorSize = 0x1000

	nameOffset   = 4
	lengthOffset = 0x8C
	blocksOffset = 0x94
)

// Parse reads the sector directory out of data (the flat buffer produced by
// bitstream.Decode) and returns a mapping of file name to file content.
func Parse(data []byte, path string) (map[string][]byte, error) {
	if len(data) < 4 || string(data[:4]) != magic {
		return nil, errs.New(errs.MalformedContainer, path, "bad GPX filesystem magic, expected BCFS")
	}
	data = data[4:]

	getInt := func(pos int) (uint32, bool) {
		if pos < 0 || pos+4 > len(data) {
			return 0, false
		}
		return binary.LittleEndian.Uint32(data[pos : pos+4]), true
	}

	files := make(map[string][]byte)

	for offset := 0; offset+sectorSize+3 < len(data); offset += sectorSize {
		marker, ok := getInt(offset)
		if !ok || marker != 2 {
			continue
		}

		nameStart := offset + nameOffset
		if nameStart >= len(data) {
			return nil, errs.New(errs.MalformedReference, path, "directory entry name runs past buffer end")
		}
		nameEnd := bytes.IndexByte(data[nameStart:], 0)
		if nameEnd < 0 {
			return nil, errs.New(errs.MalformedReference, path, "directory entry name is not NUL-terminated")
		}
		name := string(data[nameStart : nameStart+nameEnd])

		size, ok := getInt(offset + lengthOffset)
		if !ok {
			return nil, errs.New(errs.MalformedReference, path, "directory entry missing file length")
		}

		var content []byte
		blockCount := 0
		for {
			blockID, ok := getInt(offset + blocksOffset + 4*blockCount)
			if !ok {
				return nil, errs.New(errs.MalformedReference, path, "directory entry block chain runs past buffer end")
			}
			if blockID == 0 {
				break
			}
			blockStart := int(blockID) * sectorSize
			blockEnd := blockStart + sectorSize
			if blockStart < 0 || blockEnd > len(data) {
				return nil, errs.New(errs.MalformedReference, path, "directory entry references sector outside buffer")
			}
			content = append(content, data[blockStart:blockEnd]...)
			blockCount++
		}

		if uint32(len(content)) < size {
			return nil, errs.New(errs.MalformedReference, path, "directory entry block chain shorter than declared size")
		}
		files[name] = content[:size]
	}

	return files, nil
}

// ScoreFile is the name of the XML document carrying the score description.
const ScoreFile = "score.gpif"

// Score extracts the score.gpif entry from the parsed filesystem.
func Score(files map[string][]byte, path string) ([]byte, error) {
	data, ok := files[ScoreFile]
	if !ok {
		return nil, errs.New(errs.MalformedReference, path, "gpx filesystem has no score.gpif entry")
	}
	return data, nil
}
