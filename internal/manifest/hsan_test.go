package manifest

import (
	"strings"
	"testing"
)

func TestBuildHSANEntryKeepsOnlyHSANKeys(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})
	entry := BuildHSANEntry(m)

	if entry.ID != m.EntryID {
		t.Errorf("HSANEntry.ID = %q, want %q", entry.ID, m.EntryID)
	}
	if _, ok := entry.Attributes["SongName"]; !ok {
		t.Error("expected SongName to survive the hsanKeys projection")
	}
	if _, ok := entry.Attributes["sections"]; ok {
		t.Error("sections is not an HSAN key and should not appear in the entry")
	}
	if _, ok := entry.Attributes["arrangementProperties"]; ok {
		t.Error("arrangementProperties itself should not survive, only its RouteMask/represent fields")
	}
}

func TestBuildHSANEntryLiftsRouteMaskAndRepresentative(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead", Kind: TrackRhythm})
	entry := BuildHSANEntry(m)

	if got := entry.Attributes["RouteMask"]; got != RouteMaskRhythm {
		t.Errorf("RouteMask = %v, want %v", got, RouteMaskRhythm)
	}
	if got := entry.Attributes["Representative"]; got != true {
		t.Errorf("Representative = %v, want true", got)
	}
}

func TestXBlockEntityIncludesEntryIDAndArrangementName(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})
	entry := BuildHSANEntry(m)

	frag := XBlockEntity(entry.ID, "testsong", "Lead")
	if !strings.Contains(frag, entry.ID) {
		t.Error("expected xblock fragment to contain the entry id")
	}
	if !strings.Contains(frag, "testsong_Lead") {
		t.Error("expected xblock fragment to contain the internalName_arrangementName pair")
	}
	if !strings.Contains(frag, "urn:database:hsan-db:songs_dlc_testsong") {
		t.Error("expected xblock fragment to reference the HSAN header urn")
	}
}

func TestXBlockDocumentWrapsEntities(t *testing.T) {
	doc := XBlockDocument([]string{"<entity/>", "<entity/>"})
	if !strings.HasPrefix(doc, "<?xml") {
		t.Error("expected document to start with an XML declaration")
	}
	if strings.Count(doc, "<entity/>") != 2 {
		t.Errorf("expected both entity fragments present, got:\n%s", doc)
	}
}
