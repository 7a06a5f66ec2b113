package chartimport

import (
	"strings"
	"testing"
)

const simpleTrackChart = `[Song]
{
  Resolution = 192
}
[SyncTrack]
{
  0 = TS 4
  0 = B 120000
}
[Events]
{
  0 = E "section Intro"
}
[ExpertSingle]
{
  0 = N 0 0
  192 = N 1 0
  384 = N 2 0
  384 = N 4 0
  576 = N 7 0
}`

func TestPickTrackPrefersExpertSingle(t *testing.T) {
	chart, err := ParseChartFile(strings.NewReader(simpleTrackChart))
	if err != nil {
		t.Fatalf("ParseChartFile: %v", err)
	}
	name, ok := PickTrack(chart)
	if !ok || name != "ExpertSingle" {
		t.Fatalf("PickTrack = %q, %v; want ExpertSingle, true", name, ok)
	}
}

func TestToScoreBuildsOneTrackAndBar(t *testing.T) {
	chart, err := ParseChartFile(strings.NewReader(simpleTrackChart))
	if err != nil {
		t.Fatalf("ParseChartFile: %v", err)
	}

	s, err := ToScore(chart, "ExpertSingle", "simple.chart")
	if err != nil {
		t.Fatalf("ToScore: %v", err)
	}

	if len(s.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(s.Tracks))
	}
	if len(s.MasterBars) != 1 {
		t.Fatalf("expected 1 bar for a 192-tick 4/4 chart ending before tick 768, got %d", len(s.MasterBars))
	}
	if s.MasterBars[0].Section != "Intro" {
		t.Errorf("expected section 'Intro', got %q", s.MasterBars[0].Section)
	}

	voice := s.Voices[s.Bars[0].VoiceIDs[0]]
	if len(voice.BeatIDs) != 4 {
		t.Fatalf("expected 4 beats (one per distinct tick), got %d", len(voice.BeatIDs))
	}

	chordBeat := s.Beats[voice.BeatIDs[2]]
	if len(chordBeat.NoteIDs) != 2 {
		t.Fatalf("expected a 2-note chord at tick 384, got %d notes", len(chordBeat.NoteIDs))
	}

	openBeat := s.Beats[voice.BeatIDs[3]]
	openNote := s.Notes[openBeat.NoteIDs[0]]
	if openNote.String != openLane {
		t.Errorf("expected open note to land on lane %d, got %d", openLane, openNote.String)
	}
}

func TestImportRejectsUnknownTrack(t *testing.T) {
	chart, err := ParseChartFile(strings.NewReader(simpleTrackChart))
	if err != nil {
		t.Fatalf("ParseChartFile: %v", err)
	}
	if _, err := ToScore(chart, "NoSuchTrack", "simple.chart"); err == nil {
		t.Error("expected an error importing an unknown track")
	}
}

func TestSyncMapFromBPMGridStartsAtZero(t *testing.T) {
	chart, err := ParseChartFile(strings.NewReader(simpleTrackChart))
	if err != nil {
		t.Fatalf("ParseChartFile: %v", err)
	}
	sync := syncMapFromBPMGrid(chart, "simple.chart")
	if t0, ok := sync[0]; !ok || t0 != 0 {
		t.Errorf("expected bar 0 to map to time 0, got %v, %v", t0, ok)
	}
}

func TestNearestNoteValue(t *testing.T) {
	cases := []struct {
		quarters float64
		want     string
	}{
		{1.0, "Quarter"},
		{0.5, "Eighth"},
		{0.26, "16th"},
		{2.0, "Half"},
	}
	for _, tc := range cases {
		if got := nearestNoteValue(tc.quarters); got != tc.want {
			t.Errorf("nearestNoteValue(%v) = %q, want %q", tc.quarters, got, tc.want)
		}
	}
}
