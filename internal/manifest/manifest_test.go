package manifest

import (
	"strings"
	"testing"

	"github.com/halfnote/tabpack/internal/sng"
)

func testSong() *sng.Song {
	return &sng.Song{
		Levels: []sng.Level{
			{Difficulty: 0, Notes: []sng.Note{{Mask: 0}, {Mask: 0}}},
			{Difficulty: 1, Notes: []sng.Note{{Mask: 0}, {Mask: 0}, {Mask: 0}}},
			{Difficulty: 2, Notes: []sng.Note{
				{Mask: 0}, {Mask: 0}, {Mask: 0}, {Mask: sng.MaskIgnore},
			}},
		},
		Sections: []sng.Section{
			{Name: "intro", StartTime: 0, EndTime: 4},
		},
		Phrases: []sng.Phrase{
			{Name: "riff", MaxDifficulty: 2},
		},
		ChordTemplates: []sng.ChordTemplate{
			{ChordName: "Em"},
		},
		DNAs: []sng.DNA{
			{ID: sng.DNASolo, Time: 12.5},
			{ID: sng.DNASolo, Time: 20.0},
			{ID: sng.DNARiff, Time: 8.0},
		},
		Metadata: sng.Metadata{
			SongLength:    30,
			Tuning:        [6]int16{0, 0, 0, 0, 0, 0},
			PointsPerNote: 50,
		},
	}
}

func TestBuildComputesNoteCountsAndMastery(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})

	if got := m.Attributes["NotesEasy"]; got != 2 {
		t.Errorf("NotesEasy = %v, want 2", got)
	}
	if got := m.Attributes["NotesMedium"]; got != 3 {
		t.Errorf("NotesMedium = %v, want 3", got)
	}
	if got := m.Attributes["NotesHard"]; got != 3 {
		t.Errorf("NotesHard = %v, want 3 (ignored note excluded)", got)
	}

	easyMastery := m.Attributes["EasyMastery"].(float64)
	if easyMastery < 0.66 || easyMastery > 0.67 {
		t.Errorf("EasyMastery = %v, want ~0.667", easyMastery)
	}
}

func TestBuildDNAMaxTakesLatestTimestamp(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})
	if got := m.Attributes["DNA_Solo"]; got != 20.0 {
		t.Errorf("DNA_Solo = %v, want 20.0 (the later of two solo events)", got)
	}
	if got := m.Attributes["DNA_Riffs"]; got != 8.0 {
		t.Errorf("DNA_Riffs = %v, want 8.0", got)
	}
	if got := m.Attributes["DNA_Chords"]; got != float64(0) {
		t.Errorf("DNA_Chords = %v, want 0 (no such events)", got)
	}
}

func TestBuildRouteMaskByKind(t *testing.T) {
	cases := []struct {
		kind TrackKind
		want uint32
	}{
		{TrackLead, RouteMaskLead},
		{TrackRhythm, RouteMaskRhythm},
		{TrackBass, RouteMaskBass},
	}
	for _, tc := range cases {
		m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead", Kind: tc.kind})
		props := m.Attributes["arrangementProperties"].(map[string]interface{})
		if got := props["RouteMask"]; got != tc.want {
			t.Errorf("kind %v: RouteMask = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestBuildEntryIDIsUppercaseHexMD5(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})
	if len(m.EntryID) != 32 {
		t.Fatalf("EntryID length = %d, want 32", len(m.EntryID))
	}
	if m.EntryID != strings.ToUpper(m.EntryID) {
		t.Errorf("EntryID = %q, want all uppercase", m.EntryID)
	}
}

func TestBuildURNIsLowercasedArrangementName(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})
	want := "urn:database:json-db:testsong_lead"
	if m.URN != want {
		t.Errorf("URN = %q, want %q", m.URN, want)
	}
}

func TestBuildScorePNVUsesHardestLevel(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})
	want := float64(4) * 50 // hardest level has 4 notes (ignored included), 50 points each
	if got := m.Attributes["score_PNV"]; got != want {
		t.Errorf("score_PNV = %v, want %v", got, want)
	}
}

func TestBuildProjectsSectionsPhrasesAndChordTemplates(t *testing.T) {
	m := Build(testSong(), Song{DLCKey: "testsong", ArrangementName: "Lead"})

	sections := m.Attributes["sections"].([]map[string]interface{})
	if len(sections) != 1 || sections[0]["Name"] != "intro" {
		t.Errorf("sections = %v, want one entry named intro", sections)
	}

	phrases := m.Attributes["phrases"].([]map[string]interface{})
	if len(phrases) != 1 || phrases[0]["Name"] != "riff" {
		t.Errorf("phrases = %v, want one entry named riff", phrases)
	}

	chords := m.Attributes["chordTemplates"].([]map[string]interface{})
	if len(chords) != 1 || chords[0]["ChordName"] != "Em" {
		t.Errorf("chordTemplates = %v, want one entry named Em", chords)
	}
}
