package midipreview

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/halfnote/tabpack/internal/timeline"
)

var standardTuning = [6]int{0, 0, 0, 0, 0, 0}

func testTimeline() *timeline.Timeline {
	return &timeline.Timeline{
		Ebeats: []timeline.Ebeat{
			{Time: 0, Measure: 1},
			{Time: 0.5, Measure: -1},
			{Time: 1.0, Measure: 2},
		},
		Notes: []timeline.Note{
			{String: 0, Fret: 3, Time: 0},
			{String: 1, Fret: 0, Time: 0.5},
		},
		Chords: []timeline.Chord{
			{
				Time: 1.0,
				Notes: []timeline.Note{
					{String: 0, Fret: 0},
					{String: 1, Fret: 2},
					{String: 2, Fret: 2},
				},
			},
		},
	}
}

func TestRenderProducesReadableSMF(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(testTimeline(), standardTuning, false, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}

	out, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("rendered file did not parse back as SMF: %v", err)
	}
	if len(out.Tracks) != 2 {
		t.Fatalf("expected a tempo track and a note track, got %d tracks", len(out.Tracks))
	}
}

func TestRenderRejectsEmptyTimeline(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&timeline.Timeline{}, standardTuning, false, &buf); err == nil {
		t.Error("expected an error rendering a timeline with no ebeats")
	}
}

func TestPitchAppliesOpenStringTuningAndFret(t *testing.T) {
	if got := pitch(0, 3, standardTuning, false); got != 43 {
		t.Errorf("pitch(string 0, fret 3) = %d, want 43 (low E + 3 semitones)", got)
	}
}

func TestPitchDropsAnOctaveForBass(t *testing.T) {
	lead := pitch(0, 0, standardTuning, false)
	bass := pitch(0, 0, standardTuning, true)
	if int(lead)-int(bass) != 12 {
		t.Errorf("expected bass pitch to be 12 semitones below lead, got lead=%d bass=%d", lead, bass)
	}
}

func TestRenderWithoutNotesStillSucceeds(t *testing.T) {
	var buf bytes.Buffer
	tl := &timeline.Timeline{Ebeats: []timeline.Ebeat{{Time: 0, Measure: 1}, {Time: 0.5}}}
	if err := Render(tl, standardTuning, false, &buf); err != nil {
		t.Fatalf("Render with no notes: %v", err)
	}
}
