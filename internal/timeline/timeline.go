// Package timeline lowers a score.Score bar/beat/voice tree into a linear,
// time-stamped note/chord/section timeline: repeat expansion, rhythm
// duration arithmetic, grace-note bookkeeping, and chord-template
// deduplication against a fingering database.
package timeline

import (
	"math"

	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/score"
)

// Note is one fretted string at a point in time, either standalone or as
// part of a Chord.
type Note struct {
	String    int
	Fret      int
	Time      float64
	Harmonic  score.HarmonicKind
	Muted     bool
	PalmMuted bool
	Tapped    bool
	TieOrigin bool
	Accent    bool
	Vibrato   bool
	Bend      bool
	SlideTo   int
	SlideUnpitched int
	Popped    bool
	Slapped   bool
	Tremolo   bool
	Grace     score.GraceKind
	Ignore    bool // excluded from the playable note counts; distinct from Muted
}

// Chord is a group of notes sharing a time and a deduplicated template.
type Chord struct {
	Time        float64
	TemplateID  int
	Notes       []Note
	LinkNext    bool
	Accent      bool
	FretHandMute bool
	PalmMute    bool
	HighDensity bool
	Ignore      bool
	Length      float64 // current_beat_length: span to the next beat position
	Grace       score.GraceKind
}

// ChordTemplate is a deduplicated fret/finger shape.
type ChordTemplate struct {
	Frets   [6]int // -1 for unfretted
	Fingers [6]int // -1 for unassigned
}

// Ebeat is an emitted beat marker.
type Ebeat struct {
	Time    float64
	Measure int // measure+1 on the first ebeat of a bar, -1 otherwise
}

// Section is a labelled region of the song.
type Section struct {
	Name      string
	Number    int
	StartTime float64
}

// HandShape is a time window during which a chord template's shape applies.
type HandShape struct {
	Time, EndTime float64
	ChordTemplate int
}

// Anchor is a left-hand fret-position hint.
type Anchor struct {
	Time float64
	Fret int
	Width int
}

// ToneChange is a timestamped tone/FreeText marker.
type ToneChange struct {
	Time float64
	Text string
}

// Timeline is the full lowered output of one track's bars.
type Timeline struct {
	Ebeats         []Ebeat
	Sections       []Section
	ChordTemplates []ChordTemplate
	Notes          []Note
	Chords         []Chord
	HandShapes     []HandShape
	Anchors        []Anchor
	ToneChanges    []ToneChange
}

// FingeringEntry is one row of a shared chord-fingering database: a
// reference shape (lowest fretted string normalised to fret 1) and the
// finger assignment to project back onto matching templates. -1 in Frets
// is a wildcard that matches any fret (including unfretted).
type FingeringEntry struct {
	Frets   [6]int
	Fingers [6]int
}

type builder struct {
	score *score.Score
	b2t   *score.BarToTime
	fdb   []FingeringEntry

	measure       int
	barIdx        int
	time          float64
	beatsPerBar   float64
	measureOffset float64

	startRepeatBar  int
	repeatsLeft     int
	repeatActive    bool

	sectionCount int
	templates    []ChordTemplate
	templateIdx  map[[12]int]int

	tl Timeline
}

// Build lowers trackID's bars into a Timeline, using fdb (possibly nil) for
// chord-template fingering lookup.
func Build(s *score.Score, trackID string, b2t *score.BarToTime, fdb []FingeringEntry) (*Timeline, error) {
	b := &builder{
		score:       s,
		b2t:         b2t,
		fdb:         fdb,
		templateIdx: map[[12]int]int{},
	}

	for b.barIdx = 0; b.barIdx < len(s.MasterBars); b.barIdx++ {
		if err := b.barStep(trackID); err != nil {
			return nil, err
		}
		if b.repeatActive && b.barIdx < b.startRepeatBar {
			// barStep rewound barIdx; the for-loop's increment will move
			// it forward by one, landing back at the intended bar.
			continue
		}
	}

	return &b.tl, nil
}

func (b *builder) barStep(trackID string) error {
	mb := b.score.MasterBars[b.barIdx]
	if mb.Den == 0 {
		return errs.New(errs.MalformedReference, "", "master bar has zero-valued time signature denominator")
	}
	b.beatsPerBar = 4 * float64(mb.Num) / float64(mb.Den)

	if mb.Repeat.Start {
		b.startRepeatBar = b.barIdx
	}

	if mb.Section != "" {
		b.sectionCount++
		b.tl.Sections = append(b.tl.Sections, Section{
			Name:      mb.Section,
			Number:    b.sectionCount,
			StartTime: b.b2t.Eval(float64(b.measure)),
		})
	}

	n := int(math.Floor(b.beatsPerBar))
	for i := 0; i < n; i++ {
		measureNum := -1
		if i == 0 {
			measureNum = b.measure + 1
		}
		b.tl.Ebeats = append(b.tl.Ebeats, Ebeat{
			Time:    b.b2t.Eval(float64(b.measure) + float64(i)/b.beatsPerBar),
			Measure: measureNum,
		})
	}

	b.measureOffset = 0
	barRef, ok := mb.BarRefByTrk[trackID]
	if !ok {
		return errs.New(errs.MalformedReference, "", "master bar has no bar reference for track "+trackID)
	}
	if barRef < 0 || barRef >= len(b.score.Bars) {
		return errs.New(errs.MalformedReference, "", "master bar references out-of-range bar index")
	}
	bar := b.score.Bars[barRef]
	voiceID := -1
	if len(bar.VoiceIDs) > 0 {
		voiceID = bar.VoiceIDs[0]
	}
	if voiceID >= 0 {
		if voiceID >= len(b.score.Voices) {
			return errs.New(errs.MalformedReference, "", "bar references out-of-range voice index")
		}
		voice := b.score.Voices[voiceID]
		for _, beatID := range voice.BeatIDs {
			if beatID < 0 || beatID >= len(b.score.Beats) {
				return errs.New(errs.MalformedReference, "", "voice references out-of-range beat index")
			}
			if err := b.beatStep(b.score.Beats[beatID]); err != nil {
				return err
			}
		}
	}

	b.measure++

	if mb.Repeat.End {
		if !b.repeatActive {
			b.repeatActive = true
			b.repeatsLeft = mb.Repeat.Count
		}
		if b.repeatsLeft > 1 {
			b.repeatsLeft--
			b.barIdx = b.startRepeatBar - 1
			return nil
		}
		b.repeatActive = false
	}

	return nil
}

func (b *builder) beatStep(beat score.Beat) error {
	if beat.RhythmRef < 0 || beat.RhythmRef >= len(b.score.Rhythms) {
		return errs.New(errs.MalformedReference, "", "beat references out-of-range rhythm index")
	}
	rhythm := b.score.Rhythms[beat.RhythmRef]

	dur, ok := score.Duration(rhythm.NoteValue)
	if !ok {
		return errs.New(errs.Unsupported, "", "unsupported note value "+rhythm.NoteValue)
	}

	tupletFactor := 1.0
	if rhythm.HasTuplet && rhythm.TupletNum != 0 {
		tupletFactor = float64(rhythm.TupletDen) / float64(rhythm.TupletNum)
	}
	dotFactor := 1.0
	if rhythm.AugmentationDot {
		dotFactor = 1.5
	}
	inc := (dur * tupletFactor * dotFactor) / b.beatsPerBar

	if beat.FreeText != "" {
		b.tl.ToneChanges = append(b.tl.ToneChanges, ToneChange{
			Time: b.b2t.Eval(float64(b.measure) + b.measureOffset),
			Text: beat.FreeText,
		})
	}

	var emitTime, nextSlot float64
	switch beat.Grace {
	case score.GraceBeforeBeat:
		emitTime = b.b2t.Eval(float64(b.measure) + b.measureOffset - inc)
		nextSlot = b.b2t.Eval(float64(b.measure) + b.measureOffset)
	default:
		emitTime = b.b2t.Eval(float64(b.measure) + b.measureOffset)
		nextSlot = b.b2t.Eval(float64(b.measure) + b.measureOffset + inc)
	}

	if len(beat.NoteIDs) > 0 {
		if err := b.emitNotes(beat, emitTime, nextSlot-emitTime); err != nil {
			return err
		}
	}

	if beat.Grace == score.GraceNone {
		b.measureOffset += inc
	}
	// GraceBeforeBeat and GraceOnBeat both borrow their time from the
	// surrounding beat without consuming measure real estate: the net
	// effect on measureOffset is zero so the following beat keeps its slot.

	return nil
}

func (b *builder) emitNotes(beat score.Beat, t, length float64) error {
	notes := make([]Note, 0, len(beat.NoteIDs))
	for _, id := range beat.NoteIDs {
		if id < 0 || id >= len(b.score.Notes) {
			return errs.New(errs.MalformedReference, "", "beat references out-of-range note index")
		}
		src := b.score.Notes[id]
		notes = append(notes, Note{
			String:         src.String,
			Fret:           src.Fret,
			Time:           t,
			Harmonic:       src.Harmonic,
			Muted:          src.Muted,
			PalmMuted:      src.PalmMuted || beat.Slapped,
			Tapped:         src.Tapped,
			TieOrigin:      src.TieOrigin,
			Accent:         src.Accent,
			Vibrato:        src.Vibrato,
			Bend:           src.Bend,
			SlideTo:        src.SlideTo,
			SlideUnpitched: src.SlideUnpitched,
			Popped:         beat.Popped,
			Slapped:        beat.Slapped,
			Tremolo:        beat.Tremolo,
			Grace:          beat.Grace,
		})
	}

	if len(notes) == 1 {
		b.tl.Notes = append(b.tl.Notes, notes[0])
		return nil
	}

	templateID := b.dedupTemplate(notes)
	chord := Chord{
		Time:       t,
		TemplateID: templateID,
		Notes:      notes,
		Length:     length,
		PalmMute:   beat.Slapped,
		Grace:      beat.Grace,
	}
	for _, nt := range notes {
		if nt.Accent {
			chord.Accent = true
		}
		if nt.Ignore {
			chord.Ignore = true
		}
	}
	b.tl.Chords = append(b.tl.Chords, chord)

	minFret := -1
	for _, nt := range notes {
		if nt.Fret > 0 && (minFret == -1 || nt.Fret < minFret) {
			minFret = nt.Fret
		}
	}
	if minFret == -1 {
		minFret = 0
	}
	b.tl.Anchors = append(b.tl.Anchors, Anchor{Time: t, Fret: minFret, Width: 4})
	b.tl.HandShapes = append(b.tl.HandShapes, HandShape{
		Time:          t,
		EndTime:       t + 0.9*length,
		ChordTemplate: templateID,
	})

	return nil
}

// dedupTemplate builds a chord template from notes, looks it up (or appends
// it) in the deduplicated template list, and returns its index.
func (b *builder) dedupTemplate(notes []Note) int {
	tmpl := ChordTemplate{}
	for i := range tmpl.Frets {
		tmpl.Frets[i] = -1
		tmpl.Fingers[i] = -1
	}
	for _, nt := range notes {
		if nt.String >= 0 && nt.String < 6 {
			tmpl.Frets[nt.String] = nt.Fret
		}
	}

	key := templateKey(tmpl)
	if idx, ok := b.templateIdx[key]; ok {
		return idx
	}

	applyFingeringLookup(&tmpl, b.fdb)

	idx := len(b.templates)
	b.templates = append(b.templates, tmpl)
	b.templateIdx[key] = idx
	b.tl.ChordTemplates = append(b.tl.ChordTemplates, tmpl)
	return idx
}

func templateKey(t ChordTemplate) [12]int {
	var k [12]int
	copy(k[:6], t.Frets[:])
	copy(k[6:], t.Fingers[:])
	return k
}

// applyFingeringLookup shifts tmpl's frets so the lowest fretted string
// sits at fret 1, matches against fdb treating -1 entries as wildcards, and
// projects the matched fingering back onto the strings actually fretted.
func applyFingeringLookup(tmpl *ChordTemplate, fdb []FingeringEntry) {
	minFret := -1
	for _, f := range tmpl.Frets {
		if f > 0 && (minFret == -1 || f < minFret) {
			minFret = f
		}
	}
	if minFret <= 0 {
		return
	}
	shift := minFret - 1

	var shifted [6]int
	for i, f := range tmpl.Frets {
		if f <= 0 {
			shifted[i] = -1
		} else {
			shifted[i] = f - shift
		}
	}

	for _, entry := range fdb {
		if fingeringMatches(shifted, entry.Frets) {
			for i, f := range tmpl.Frets {
				if f > 0 {
					tmpl.Fingers[i] = entry.Fingers[i]
				}
			}
			return
		}
	}
}

func fingeringMatches(shifted, candidate [6]int) bool {
	for i := range shifted {
		if candidate[i] == -1 {
			continue
		}
		if candidate[i] != shifted[i] {
			return false
		}
	}
	return true
}
