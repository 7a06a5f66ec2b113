// Package sngcompile enriches a timeline with difficulty metadata, note
// masks, fingerprints, anchor extensions, and phrase-iteration statistics,
// producing the sng.Song record set the binary encoder writes.
//
// This pipeline's score source (GPX) carries no explicit Rocksmith-style
// phrase authoring, so one phrase is derived per distinct section name and
// one phrase iteration per section occurrence; arrangements with no
// sections get a single synthetic phrase spanning the whole song.
package sngcompile

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/halfnote/tabpack/internal/score"
	"github.com/halfnote/tabpack/internal/sng"
	"github.com/halfnote/tabpack/internal/timeline"
)

type compiler struct {
	tl     *timeline.Timeline
	track  score.Track
	offset float64
	song   *sng.Song
}

// Compile lowers a timeline into a fully populated sng.Song for a single
// difficulty level.
func Compile(tl *timeline.Timeline, track score.Track, songLength, offset float64) *sng.Song {
	c := &compiler{tl: tl, track: track, offset: offset, song: &sng.Song{}}

	c.buildChordTemplates()
	c.buildPhraseIterations()
	c.closePhraseIterations(songLength)
	notes := c.buildNotesAndChords()
	c.buildEbeats()
	c.buildSections(songLength, notes)
	lvl := c.buildLevel(notes, songLength)
	c.song.Levels = []sng.Level{lvl}
	c.buildMetadata(songLength, lvl)

	return c.song
}

func (c *compiler) buildChordTemplates() {
	bassOffset := 0
	if c.track.Bass {
		bassOffset = 12
	}
	for _, t := range c.tl.ChordTemplates {
		var ct sng.ChordTemplate
		for i, f := range t.Frets {
			ct.Fret[i] = int8(f)
			ct.Finger[i] = int8(t.Fingers[i])
			if f >= 0 {
				ct.Notes[i] = int32(sng.MidiOpen[i] + c.track.Tuning[i] + f - bassOffset)
			} else {
				ct.Notes[i] = -1
			}
		}
		c.song.ChordTemplates = append(c.song.ChordTemplates, ct)
	}
}

func (c *compiler) buildPhraseIterations() {
	phraseIdx := map[string]int{}
	for _, sec := range c.tl.Sections {
		id, ok := phraseIdx[sec.Name]
		if !ok {
			id = len(c.song.Phrases)
			phraseIdx[sec.Name] = id
			c.song.Phrases = append(c.song.Phrases, sng.Phrase{Name: sec.Name, MaxDifficulty: 0})
		}
		c.song.PhraseIterations = append(c.song.PhraseIterations, sng.PhraseIteration{
			PhraseID: uint32(id),
			Time:     float32(sec.StartTime),
		})
	}
	if len(c.song.PhraseIterations) == 0 {
		c.song.Phrases = append(c.song.Phrases, sng.Phrase{Name: "riff"})
		c.song.PhraseIterations = append(c.song.PhraseIterations, sng.PhraseIteration{PhraseID: 0, Time: 0})
	}
	for i := range c.song.PhraseIterations {
		if i == len(c.song.PhraseIterations)-1 {
			continue // closed against songLength by the caller once known
		}
		c.song.PhraseIterations[i].EndTime = c.song.PhraseIterations[i+1].Time
	}
}

func (c *compiler) closePhraseIterations(songLength float64) {
	if n := len(c.song.PhraseIterations); n > 0 {
		c.song.PhraseIterations[n-1].EndTime = float32(songLength)
	}
}

func (c *compiler) findIteration(t float64) int {
	for i, pi := range c.song.PhraseIterations {
		end := float64(pi.EndTime)
		if i == len(c.song.PhraseIterations)-1 {
			if t >= float64(pi.Time) {
				return i
			}
			continue
		}
		if t >= float64(pi.Time) && t < end {
			return i
		}
	}
	if len(c.song.PhraseIterations) > 0 {
		return 0
	}
	return -1
}

func int8OrNeg1(v int) int8 {
	if v < 0 {
		return -1
	}
	return int8(v)
}

func noteMask(nt timeline.Note, single bool) uint32 {
	var m uint32
	if single {
		m |= sng.MaskSingle
	}
	if nt.Fret == 0 {
		m |= sng.MaskOpen
	}
	if nt.Muted {
		m |= sng.MaskFretHandMute
	}
	if nt.PalmMuted {
		m |= sng.MaskPalmMute
	}
	if nt.Tremolo {
		m |= sng.MaskTremolo
	}
	switch nt.Harmonic {
	case score.HarmonicPinch:
		m |= sng.MaskPinchHarmonic
	case score.HarmonicArtificial:
		m |= sng.MaskHarmonic
	}
	if nt.Slapped {
		m |= sng.MaskSlap
	}
	if nt.Popped {
		m |= sng.MaskPluck
	}
	if nt.TieOrigin {
		m |= sng.MaskParent
	}
	if nt.SlideTo != -1 {
		m |= sng.MaskSlide
	}
	if nt.SlideUnpitched != -1 {
		m |= sng.MaskSlideUnpitchedTo
	}
	if nt.Bend {
		m |= sng.MaskBend
	}
	if nt.Tapped && single {
		m |= sng.MaskTap
	}
	if nt.Vibrato {
		m |= sng.MaskVibrato
	}
	if single && nt.Ignore {
		m |= sng.MaskIgnore
	}
	return m
}

func noteHash(n sng.Note) int32 {
	key := fmt.Sprintf("%d|%d|%d|%d|%d|%f", n.Mask, n.String, n.Fret, n.ChordID, n.ChordNoteID, n.Time)
	return int32(crc32.ChecksumIEEE([]byte(key)))
}

func (c *compiler) buildNotesAndChords() []sng.Note {
	var notes []sng.Note

	for _, nt := range c.tl.Notes {
		sn := sng.Note{
			Mask:           noteMask(nt, true),
			Time:           float32(nt.Time),
			String:         int8(nt.String),
			Fret:           int8(nt.Fret),
			ChordID:        -1,
			ChordNoteID:    -1,
			SlideTo:        int8OrNeg1(nt.SlideTo),
			SlideUnpitchTo: int8OrNeg1(nt.SlideUnpitched),
		}
		if nt.Tapped {
			sn.Tap = 1
		}
		if nt.Vibrato {
			sn.Vibrato = 1
		}
		notes = append(notes, sn)
	}

	for _, ch := range c.tl.Chords {
		mask := sng.MaskChord
		if ch.Accent {
			mask |= sng.MaskAccent
		}
		if ch.FretHandMute {
			mask |= sng.MaskFretHandMute
		}
		if ch.PalmMute {
			mask |= sng.MaskPalmMute
		}
		if ch.HighDensity {
			mask |= sng.MaskHighDensity
		}
		if ch.Ignore {
			mask |= sng.MaskIgnore
		}
		if ch.Length > 0 {
			mask |= sng.MaskSustain
		}

		fretted := 0
		if ch.TemplateID >= 0 && ch.TemplateID < len(c.tl.ChordTemplates) {
			for _, f := range c.tl.ChordTemplates[ch.TemplateID].Frets {
				if f > 0 {
					fretted++
				}
			}
		}
		if fretted == 2 {
			mask |= sng.MaskDoubleStop
		}

		var cn sng.ChordNote
		any := false
		for _, nt := range ch.Notes {
			if nt.String < 0 || nt.String >= 6 {
				continue
			}
			m := noteMask(nt, false)
			cn.Mask[nt.String] = m
			cn.SlideTo[nt.String] = int8OrNeg1(nt.SlideTo)
			cn.SlideUnpitchTo[nt.String] = int8OrNeg1(nt.SlideUnpitched)
			if nt.Vibrato {
				cn.Vibrato[nt.String] = 1
			}
			if m != 0 {
				any = true
			}
		}
		chordNoteID := int32(-1)
		if any {
			chordNoteID = int32(len(c.song.ChordNotes))
			c.song.ChordNotes = append(c.song.ChordNotes, cn)
			mask |= sng.MaskChordNotes
		}

		notes = append(notes, sng.Note{
			Mask:        mask,
			Time:        float32(ch.Time),
			String:      -1,
			Fret:        -1,
			ChordID:     int32(ch.TemplateID),
			ChordNoteID: chordNoteID,
			Sustain:     float32(ch.Length),
		})
	}

	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Time < notes[j].Time })

	for i := range notes {
		pid := c.findIteration(float64(notes[i].Time))
		notes[i].PhraseIterationID = int32(pid)
		if pid >= 0 {
			notes[i].PhraseID = int32(c.song.PhraseIterations[pid].PhraseID)
		} else {
			notes[i].PhraseID = -1
		}
		notes[i].Hash = noteHash(notes[i])
	}

	return notes
}

func (c *compiler) buildEbeats() {
	var prevMeasure, prevBeat uint16
	for i, eb := range c.tl.Ebeats {
		var measure, beat uint16
		switch {
		case i == 0 || eb.Measure > -1:
			measure = uint16(eb.Measure)
			beat = 0
		default:
			measure = prevMeasure
			beat = prevBeat + 1
		}
		mask := uint32(1)
		if measure%2 == 0 {
			mask |= 2
		}
		pid := c.findIteration(eb.Time)
		if pid < 0 {
			pid = 0
		}
		c.song.Beats = append(c.song.Beats, sng.Beat{
			Time:            float32(eb.Time),
			Measure:         measure,
			Beat:            beat,
			PhraseIteration: uint32(pid),
			Mask:            mask,
		})
		prevMeasure, prevBeat = measure, beat
	}
}

func (c *compiler) buildSections(songLength float64, notes []sng.Note) {
	for i, sec := range c.tl.Sections {
		s := sng.Section{
			Name:                   sec.Name,
			Number:                 uint32(sec.Number),
			StartTime:              float32(sec.StartTime),
			StartPhraseIterationID: uint32(i),
			EndPhraseIterationID:   uint32(i),
		}
		if i == len(c.tl.Sections)-1 {
			s.EndTime = float32(songLength)
		} else {
			s.EndTime = float32(c.tl.Sections[i+1].StartTime)
		}
		for _, nt := range notes {
			t := nt.Time
			if t < s.StartTime || t >= s.EndTime {
				continue
			}
			if nt.String >= 0 {
				s.StringMask[nt.String] |= 1
			} else if nt.ChordID >= 0 && int(nt.ChordID) < len(c.tl.ChordTemplates) {
				for str, f := range c.tl.ChordTemplates[nt.ChordID].Frets {
					if f >= 0 {
						s.StringMask[str] |= 1
					}
				}
			}
		}
		c.song.Sections = append(c.song.Sections, s)
	}
}

func (c *compiler) buildLevel(notes []sng.Note, songLength float64) sng.Level {
	lvl := sng.Level{Difficulty: 0}

	anchors := make([]sng.Anchor, len(c.tl.Anchors))
	for i, a := range c.tl.Anchors {
		pid := c.findIteration(a.Time)
		if pid < 0 {
			pid = 0
		}
		anchors[i] = sng.Anchor{Time: float32(a.Time), Fret: int32(a.Fret), Width: int32(a.Width), PhraseIterationID: uint32(pid)}
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Time < anchors[j].Time })
	for i := range anchors {
		if i == len(anchors)-1 {
			if n := len(c.song.PhraseIterations); n > 0 {
				anchors[i].EndTime = c.song.PhraseIterations[n-1].Time
			} else {
				anchors[i].EndTime = float32(songLength)
			}
		} else {
			anchors[i].EndTime = anchors[i+1].Time
		}
	}
	lvl.Anchors = anchors

	// Fingerprint bucket 0 holds every handshape: the GPX source carries no
	// arpeggio/strum-shape distinction, so bucket 1 stays empty.
	var fps []sng.FingerPrint
	for _, hs := range c.tl.HandShapes {
		fps = append(fps, sng.FingerPrint{ChordID: uint32(hs.ChordTemplate), StartTime: float32(hs.Time), EndTime: float32(hs.EndTime)})
	}
	sort.Slice(fps, func(i, j int) bool { return fps[i].StartTime < fps[j].StartTime })
	lvl.FingerPrints[0] = fps

	for _, nt := range notes {
		if nt.SlideTo != -1 {
			lvl.AnchorExtensions = append(lvl.AnchorExtensions, sng.AnchorExtension{
				Time: nt.Time + nt.Sustain,
				Fret: nt.SlideTo,
			})
		}
	}

	for i := range notes {
		t := float64(notes[i].Time)
		notes[i].FingerPrintID = [2]int16{-1, -1}
		for b := 0; b < 2; b++ {
			for fi, fp := range lvl.FingerPrints[b] {
				if t >= float64(fp.StartTime) && t < float64(fp.EndTime) {
					notes[i].FingerPrintID[b] = int16(fi)
					if b == 1 {
						notes[i].Mask |= sng.MaskArpeggio
					}
					if float64(fp.StartTime) == t && notes[i].ChordID >= 0 {
						notes[i].Mask |= sng.MaskStrum
					}
					break
				}
			}
		}
		notes[i].AnchorFret, notes[i].AnchorWidth = 0, 0
		for _, a := range anchors {
			if t >= float64(a.Time) && t < float64(a.EndTime) {
				notes[i].AnchorFret = int8(a.Fret)
				notes[i].AnchorWidth = int8(a.Width)
				break
			}
		}
	}

	for pid := range c.song.PhraseIterations {
		var idxs []int
		for i, nt := range notes {
			if int(nt.PhraseIterationID) == pid {
				idxs = append(idxs, i)
			}
		}
		for k, idx := range idxs {
			if k == len(idxs)-1 {
				notes[idx].NextIterNote = -1
			} else {
				notes[idx].NextIterNote = int16(idxs[k+1])
			}
			if k == 0 {
				notes[idx].PrevIterNote = -1
			} else {
				notes[idx].PrevIterNote = int16(idxs[k-1])
			}
		}
	}

	for i := 1; i < len(notes); i++ {
		j := i - 1
		for j >= 0 && notes[j].Time == notes[i].Time {
			j--
		}
		if j < 0 {
			continue
		}
		if notes[j].Mask&sng.MaskParent != 0 {
			notes[i].Mask |= sng.MaskChild
			notes[i].ParentPrevNote = notes[j].NextIterNote - 1
		}
	}

	type seenNote struct {
		fret    int8
		chordID int32
		t       float32
	}
	var history []seenNote
	const numberedFlag uint32 = 1
	for i := range notes {
		if notes[i].ChordID < 0 && notes[i].Fret == 0 {
			continue
		}
		numbered := true
		start := len(history) - 8
		if start < 0 {
			start = 0
		}
		for h := len(history) - 1; h >= start; h-- {
			if notes[i].Time-history[h].t > 2.0 {
				break
			}
			if notes[i].ChordID >= 0 {
				if history[h].chordID == notes[i].ChordID {
					numbered = false
					break
				}
			} else if history[h].chordID < 0 && history[h].fret == notes[i].Fret {
				numbered = false
				break
			}
		}
		if numbered {
			notes[i].Flags |= numberedFlag
		}
		history = append(history, seenNote{fret: notes[i].Fret, chordID: notes[i].ChordID, t: notes[i].Time})
	}

	lvl.Notes = notes

	counts := make([]uint32, len(c.song.PhraseIterations))
	countsNoIgn := make([]uint32, len(c.song.PhraseIterations))
	for _, nt := range notes {
		if nt.PhraseIterationID < 0 {
			continue
		}
		counts[nt.PhraseIterationID]++
		if nt.Mask&sng.MaskIgnore == 0 {
			countsNoIgn[nt.PhraseIterationID]++
		}
	}
	lvl.NotesInIterCount = counts
	lvl.NotesInIterCountNoIgnored = countsNoIgn
	avg := make([]float32, len(counts))
	for i, v := range counts {
		avg[i] = float32(v)
	}
	lvl.AverageNotesPerIter = avg

	return lvl
}

func (c *compiler) buildMetadata(songLength float64, lvl sng.Level) {
	var maxNotes, maxNotesNoIgn float64
	for _, v := range lvl.NotesInIterCount {
		maxNotes += float64(v)
	}
	for _, v := range lvl.NotesInIterCountNoIgnored {
		maxNotesNoIgn += float64(v)
	}
	pointsPerNote := 0.0
	if maxNotes > 0 {
		pointsPerNote = 100000.0 / maxNotes
	}
	var firstBeatLength float32
	if len(c.song.Beats) > 1 {
		firstBeatLength = c.song.Beats[1].Time - c.song.Beats[0].Time
	}
	capo := int8(-1)
	if c.track.Capo != 0 {
		capo = int8(c.track.Capo)
	}
	var tuning [6]int16
	for i, t := range c.track.Tuning {
		tuning[i] = int16(t)
	}
	var firstNoteTime float32
	if len(lvl.Notes) > 0 {
		firstNoteTime = lvl.Notes[0].Time
	}

	c.song.Metadata = sng.Metadata{
		MaxScore:          100000,
		MaxNotes:          maxNotes,
		MaxNotesNoIgnored: maxNotesNoIgn,
		PointsPerNote:     pointsPerNote,
		FirstBeatLength:   firstBeatLength,
		StartTime:         float32(-c.offset),
		Capo:              capo,
		Tuning:            tuning,
		FirstNoteTime:     firstNoteTime,
		FirstNoteTime2:    firstNoteTime,
		SongLength:        float32(songLength),
		MaxDifficulty:     0,
	}
}
