package psarc

import (
	"bytes"
	"testing"

	"github.com/halfnote/tabpack/internal/config"
)

func testKeys() config.Keys {
	var k config.Keys
	for i := range k.ArchiveKey {
		k.ArchiveKey[i] = byte(i)
	}
	for i := range k.ArchiveIV {
		k.ArchiveIV[i] = byte(i + 1)
	}
	for i := range k.PCSNGKey {
		k.PCSNGKey[i] = byte(i + 2)
	}
	for i := range k.MacSNGKey {
		k.MacSNGKey[i] = byte(i + 3)
	}
	return k
}

func TestWriteEncryptsSNGEntriesAndReadDecryptsThemBack(t *testing.T) {
	keys := testKeys()
	plainSNG := []byte("not really an sng payload, just bytes to round-trip")
	files := map[string][]byte{
		"songs/bin/generic/song_lead.sng":    plainSNG,
		"manifests/songs_dlc_song/song.json": []byte(`{"ok":true}`),
	}

	archive, err := Write(files, keys, 65536)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	back, err := Read(archive, keys, "song.psarc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	got, ok := back["songs/bin/generic/song_lead.sng"]
	if !ok {
		t.Fatal("expected the sng entry to round-trip")
	}
	if !bytes.Equal(got, plainSNG) {
		t.Errorf("sng payload did not round-trip: got %q, want %q", got, plainSNG)
	}

	other, ok := back["manifests/songs_dlc_song/song.json"]
	if !ok || !bytes.Equal(other, []byte(`{"ok":true}`)) {
		t.Error("expected the non-sng entry to round-trip untouched")
	}
}

func TestWriteAppliesDistinctKeysPerPlatform(t *testing.T) {
	keys := testKeys()
	plainSNG := []byte("platform specific payload")
	pcFiles := map[string][]byte{"songs/bin/generic/song_lead.sng": plainSNG}
	macFiles := map[string][]byte{"songs/bin/macos/song_lead.sng": plainSNG}

	pcArchive, err := Write(pcFiles, keys, 65536)
	if err != nil {
		t.Fatalf("Write (pc): %v", err)
	}
	macArchive, err := Write(macFiles, keys, 65536)
	if err != nil {
		t.Fatalf("Write (mac): %v", err)
	}

	if bytes.Equal(pcArchive, macArchive) {
		t.Error("expected pc and mac archives to differ since they use distinct SNG keys")
	}

	pcBack, err := Read(pcArchive, keys, "pc.psarc")
	if err != nil {
		t.Fatalf("Read (pc): %v", err)
	}
	macBack, err := Read(macArchive, keys, "mac.psarc")
	if err != nil {
		t.Fatalf("Read (mac): %v", err)
	}
	if !bytes.Equal(pcBack["songs/bin/generic/song_lead.sng"], plainSNG) {
		t.Error("pc sng entry did not decrypt back to its plaintext")
	}
	if !bytes.Equal(macBack["songs/bin/macos/song_lead.sng"], plainSNG) {
		t.Error("mac sng entry did not decrypt back to its plaintext")
	}
}
