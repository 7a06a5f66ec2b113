// Package sng defines the compiled SNG record structures consumed by the
// target game engine and the binary codec that reads and writes them.
// Field order and width within each record is fixed; see Encode/Decode.
package sng

// Note mask bits.
const (
	MaskSingle           uint32 = 0x00800000
	MaskChord            uint32 = 0x02
	MaskOpen             uint32 = 0x04
	MaskFretHandMute     uint32 = 0x08
	MaskTremolo          uint32 = 0x10
	MaskHarmonic         uint32 = 0x20
	MaskPalmMute         uint32 = 0x40
	MaskSlap             uint32 = 0x80
	MaskPluck            uint32 = 0x100
	MaskHammerOn         uint32 = 0x200
	MaskPullOff          uint32 = 0x400
	MaskSlide            uint32 = 0x800
	MaskBend             uint32 = 0x1000
	MaskSustain          uint32 = 0x2000
	MaskTap              uint32 = 0x4000
	MaskPinchHarmonic    uint32 = 0x8000
	MaskVibrato          uint32 = 0x10000
	MaskMute             uint32 = 0x20000
	MaskIgnore           uint32 = 0x40000
	MaskLeftHand         uint32 = 0x80000
	MaskRightHand        uint32 = 0x100000
	MaskHighDensity      uint32 = 0x200000
	MaskSlideUnpitchedTo uint32 = 0x400000
	MaskChordNotes       uint32 = 0x1000000
	MaskDoubleStop       uint32 = 0x2000000
	MaskAccent           uint32 = 0x4000000
	MaskParent           uint32 = 0x8000000
	MaskChild            uint32 = 0x10000000
	MaskArpeggio         uint32 = 0x20000000
	MaskStrum            uint32 = 0x80000000
)

// Chord template mask bits.
const (
	ChordMaskArpeggio uint32 = 0x1
	ChordMaskNop      uint32 = 0x2
)

// DNA codes.
const (
	DNANone  uint32 = 0
	DNASolo  uint32 = 1
	DNARiff  uint32 = 2
	DNAChord uint32 = 3
)

// MidiOpen is the open-string MIDI pitch per string index (low E to high E).
var MidiOpen = [6]int{40, 45, 50, 55, 59, 64}

type Beat struct {
	Time            float32
	Measure         uint16
	Beat            uint16
	PhraseIteration uint32
	Mask            uint32
}

type Phrase struct {
	Solo                 int8
	Disparity            int8
	Ignore               int8
	MaxDifficulty        uint32
	PhraseIterationLinks uint32
	Name                 string // stored NUL-padded to 32 bytes
}

type ChordTemplate struct {
	Mask      uint32
	Fret      [6]int8
	Finger    [6]int8
	Notes     [6]int32
	ChordName string // stored NUL-padded to 32 bytes
}

type BendValue struct {
	Time float32
	Step float32
	UNK  int8
}

type ChordNote struct {
	Mask           [6]uint32
	Bend           [6][]BendValue // each padded/truncated to 32 on encode
	SlideTo        [6]int8
	SlideUnpitchTo [6]int8
	Vibrato        [6]int16
}

type PhraseIteration struct {
	PhraseID   uint32
	Time       float32
	EndTime    float32
	Difficulty [3]uint32
}

type PhraseExtraInfo struct {
	PhraseID   uint32
	Difficulty uint32
	Empty      uint32
	LevelJump  int8
	Redundant  int16
}

type NewLinkedDiff struct {
	LevelBreak int32
	PhraseList []uint32
}

type Action struct {
	Time float32
	Name string // NUL-padded to 256 bytes
}

type Event struct {
	Time float32
	Code string // NUL-padded to 256 bytes
}

type Tone struct {
	Time float32
	ID   uint32
}

type DNA struct {
	Time float32
	ID   uint32
}

type Section struct {
	Name                   string // NUL-padded to 32 bytes
	Number                 uint32
	StartTime              float32
	EndTime                float32
	StartPhraseIterationID uint32
	EndPhraseIterationID   uint32
	StringMask             [36]int8
}

type Anchor struct {
	Time              float32
	EndTime           float32
	UNKTime           float32
	UNKTime2          float32
	Fret              int32
	Width             int32
	PhraseIterationID uint32
}

type AnchorExtension struct {
	Time float32
	Fret int8
}

type FingerPrint struct {
	ChordID      uint32
	StartTime    float32
	EndTime      float32
	UNKStartTime float32
	UNKEndTime   float32
}

type Note struct {
	Mask               uint32
	Flags              uint32
	Hash               int32
	Time               float32
	String             int8
	Fret               int8
	AnchorFret         int8
	AnchorWidth        int8
	ChordID            int32
	ChordNoteID        int32
	PhraseID           int32
	PhraseIterationID  int32
	FingerPrintID      [2]int16
	NextIterNote       int16
	PrevIterNote       int16
	ParentPrevNote     int16
	SlideTo            int8
	SlideUnpitchTo     int8
	LeftHand           int8
	Tap                int8
	PickDirection      int8
	Slap               int8
	Pluck              int8
	Vibrato            int16
	Sustain            float32
	Bend               float32
	BendValues         []BendValue
}

type Level struct {
	Difficulty               uint32
	Anchors                  []Anchor
	AnchorExtensions         []AnchorExtension
	FingerPrints             [2][]FingerPrint
	Notes                    []Note
	AverageNotesPerIter      []float32
	NotesInIterCountNoIgnored []uint32
	NotesInIterCount         []uint32
}

type Metadata struct {
	MaxScore               float64
	MaxNotes               float64
	MaxNotesNoIgnored      float64
	PointsPerNote          float64
	FirstBeatLength        float32
	StartTime              float32
	Capo                   int8
	LastConversionDateTime string // NUL-padded to 32 bytes
	Part                   int16
	SongLength             float32
	Tuning                 [6]int16
	FirstNoteTime          float32
	FirstNoteTime2         float32
	MaxDifficulty          int32
}

// Song is the full compiled record set, in wire order.
type Song struct {
	Beats            []Beat
	Phrases          []Phrase
	ChordTemplates   []ChordTemplate
	ChordNotes       []ChordNote
	Vocals           []struct{} // vocals are out of scope for this pipeline; always empty
	PhraseIterations []PhraseIteration
	PhraseExtraInfo  []PhraseExtraInfo
	NewLinkedDiffs   []NewLinkedDiff
	Actions          []Action
	Events           []Event
	Tones            []Tone
	DNAs             []DNA
	Sections         []Section
	Levels           []Level
	Metadata         Metadata
}
