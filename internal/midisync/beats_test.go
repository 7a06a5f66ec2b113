package midisync

import (
	"bytes"
	"testing"
)

// varLen encodes n as a standard MIDI variable-length quantity.
func varLen(n uint32) []byte {
	buf := []byte{byte(n & 0x7F)}
	n >>= 7
	for n > 0 {
		buf = append([]byte{byte(n&0x7F | 0x80)}, buf...)
		n >>= 7
	}
	return buf
}

// buildTestSMF assembles a single-track, format-0 Standard MIDI File with a
// track name of "BEAT", one 120 BPM tempo event, and a downbeat/beat/beat
// bar followed by the next bar's downbeat (each note-on and note-off 240
// ticks apart, so note-ons fall every 480 ticks at 480 ticks per quarter
// note).
func buildTestSMF(t *testing.T) []byte {
	t.Helper()
	var track bytes.Buffer

	track.WriteByte(0x00)
	track.Write([]byte{0xFF, 0x03, 0x04, 'B', 'E', 'A', 'T'})

	track.WriteByte(0x00)
	track.Write([]byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}) // 500000 us/quarter = 120 BPM

	noteEvent := func(delta uint32, key, vel byte) {
		track.Write(varLen(delta))
		track.Write([]byte{0x90, key, vel})
	}

	noteEvent(0, 12, 0x40)   // bar 0 downbeat
	noteEvent(240, 12, 0x00) // note off
	noteEvent(240, 13, 0x40) // bar 0 beat 2
	noteEvent(240, 13, 0x00)
	noteEvent(240, 13, 0x40) // bar 0 beat 3
	noteEvent(240, 13, 0x00)
	noteEvent(240, 12, 0x40) // bar 1 downbeat
	noteEvent(240, 12, 0x00)

	track.WriteByte(0x00)
	track.Write([]byte{0xFF, 0x2F, 0x00}) // end of track

	var out bytes.Buffer
	out.Write([]byte{'M', 'T', 'h', 'd', 0x00, 0x00, 0x00, 0x06})
	out.Write([]byte{0x00, 0x00}) // format 0
	out.Write([]byte{0x00, 0x01}) // 1 track
	out.Write([]byte{0x01, 0xE0}) // 480 ticks per quarter

	trackBytes := track.Bytes()
	out.Write([]byte{'M', 'T', 'r', 'k'})
	length := uint32(len(trackBytes))
	out.Write([]byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)})
	out.Write(trackBytes)

	return out.Bytes()
}

func TestImportBuildsBarAlignedSyncMap(t *testing.T) {
	data := buildTestSMF(t)

	sync, err := Import(data, "test.mid")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if _, ok := sync[0]; !ok {
		t.Error("expected bar position 0 (first downbeat) in the sync map")
	}
	if _, ok := sync[1]; !ok {
		t.Error("expected bar position 1 (second downbeat) in the sync map")
	}

	t0 := sync[0]
	t1 := sync[1]
	if t1 <= t0 {
		t.Errorf("expected bar 1's time (%v) after bar 0's (%v)", t1, t0)
	}

	// 1440 ticks at 480 ticks/quarter and 120 BPM = 3 quarters * 0.5s = 1.5s.
	want := 1.5
	if got := t1 - t0; got < want-0.01 || got > want+0.01 {
		t.Errorf("expected ~%.2fs between downbeats, got %.4fs", want, got)
	}
}

func TestImportRejectsNonMIDI(t *testing.T) {
	if _, err := Import([]byte("not a midi file"), "bad.mid"); err == nil {
		t.Error("expected an error importing a non-MIDI file")
	}
}
