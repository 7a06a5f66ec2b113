// Package score holds the intermediate score tree (tracks, master bars,
// bars, voices, beats, notes, rhythms) that a GPX score.gpif or a .chart
// import produces, plus the sync-map loader and
// bar-to-time interpolator that turn it into a playable timeline.
package score

import "github.com/halfnote/tabpack/internal/xmltree"

// GraceKind is the grace-note placement of a beat.
type GraceKind int

const (
	GraceNone GraceKind = iota
	GraceBeforeBeat
	GraceOnBeat
)

// HarmonicKind enumerates the harmonic techniques a note can carry.
type HarmonicKind int

const (
	HarmonicNone HarmonicKind = iota
	HarmonicArtificial
	HarmonicPinch
)

// Track is one arrangement track: a stable id, tuning, capo, and name.
type Track struct {
	ID     string
	Name   string
	Tuning [6]int // MIDI pitch per string, low to high
	Capo   int
	Bass   bool
}

// Repeat holds the optional repeat markers on a master bar.
type Repeat struct {
	Start bool
	End   bool
	Count int // only meaningful when End is true
}

// MasterBar is a bar as seen by every track: time signature, optional
// section label and repeat markers, and one bar reference per track id.
type MasterBar struct {
	Num, Den    int
	Section     string // "" if absent
	Repeat      Repeat
	BarRefByTrk map[string]int // track id -> index into Score.Bars
}

// Bar holds one voice list; only voice 0 is used by this pipeline.
type Bar struct {
	VoiceIDs []int // indices into Score.Voices; index 0 is the playable voice
}

// Voice is a sequence of beat ids.
type Voice struct {
	BeatIDs []int // indices into Score.Beats
}

// Beat references a rhythm and zero or more notes, plus the per-beat
// technique flags that propagate onto its notes/chord.
type Beat struct {
	RhythmRef int // index into Score.Rhythms
	NoteIDs   []int
	Grace     GraceKind
	FreeText  string // tone-change marker text, "" if absent
	Arpeggio  bool
	Tremolo   bool
	Popped    bool
	Slapped   bool
	Direction string // strum direction, default "Down"
}

// Note is one fretted string within a beat.
type Note struct {
	String         int
	Fret           int
	Harmonic       HarmonicKind
	Muted          bool
	PalmMuted      bool
	Tapped         bool
	TieOrigin      bool
	Accent         bool
	Vibrato        bool
	SlideTo        int // -1 if absent
	SlideUnpitched int // -1 if absent
	Bend           bool
}

// Rhythm is a beat's note value plus optional tuplet/dot modifiers.
type Rhythm struct {
	NoteValue       string // one of the enumerated NoteValue names
	HasTuplet       bool
	TupletNum       int
	TupletDen       int
	AugmentationDot bool
}

// Score is the full intermediate tree, with every named collection
// flattened into an indexable sequence.
type Score struct {
	Tracks     []Track
	MasterBars []MasterBar
	Bars       []Bar
	Voices     []Voice
	Beats      []Beat
	Notes      []Note
	Rhythms    []Rhythm
}

// durations maps a NoteValue name to 2^-DUR(NoteValue): its length in
// quarter notes (Quarter = 1, Whole = 4), before tuplet/dot adjustment.
var durations = map[string]float64{
	"Long":        16.0,
	"DoubleWhole": 8.0,
	"Whole":       4.0,
	"Half":        2.0,
	"Quarter":     1.0,
	"Eighth":      0.5,
	"16th":        0.25,
	"32nd":        0.125,
	"64th":        0.0625,
	"128th":       0.03125,
	"256th":       0.015625,
}

// Duration returns 2^-DUR(NoteValue), or (0, false) if the value is
// outside the enumerated set.
func Duration(noteValue string) (float64, bool) {
	v, ok := durations[noteValue]
	return v, ok
}

// NumericListProcessor is the xmltree.Processor used while loading GPX
// score XML: if the text does not itself coerce past a plain string (i.e.
// DefaultProcessor would leave it as ScalarString) and splitting on spaces
// yields tokens that do coerce numerically, the element becomes an
// InlineSequence of those coerced scalars instead of a single string scalar. This mirrors
// properties such as a tuning string "40 45 50 55 59 64".
func NumericListProcessor(raw string) *xmltree.Node {
	direct := xmltree.Coerce(raw)
	if direct.Kind != xmltree.ScalarString {
		return &xmltree.Node{Kind: xmltree.KindScalar, Scalar: direct}
	}

	tokens := splitSpaces(raw)
	if len(tokens) <= 1 {
		return &xmltree.Node{Kind: xmltree.KindScalar, Scalar: direct}
	}
	first := xmltree.Coerce(tokens[0])
	if first.Kind == xmltree.ScalarString {
		return &xmltree.Node{Kind: xmltree.KindScalar, Scalar: direct}
	}

	items := make([]*xmltree.Node, len(tokens))
	for i, tok := range tokens {
		items[i] = &xmltree.Node{Kind: xmltree.KindScalar, Scalar: xmltree.Coerce(tok)}
	}
	return &xmltree.Node{Kind: xmltree.KindInlineSequence, Items: items}
}

func splitSpaces(s string) []string {
	var out []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, s[i])
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
