package sng

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/halfnote/tabpack/internal/errs"
)

// Encode writes song in the fixed wire order: beats, phrases, chord
// templates, chord notes, vocals, symbols (skipped when vocals is empty),
// phrase iterations, phrase extra info, new linked diffs, actions, events,
// tones, dnas, sections, levels, metadata.
func Encode(w io.Writer, song *Song, path string) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw, path: path}

	e.count(len(song.Beats))
	for _, b := range song.Beats {
		e.f32(b.Time)
		e.u16(b.Measure)
		e.u16(b.Beat)
		e.u32(b.PhraseIteration)
		e.u32(b.Mask)
	}

	e.count(len(song.Phrases))
	for _, p := range song.Phrases {
		e.i8(p.Solo)
		e.i8(p.Disparity)
		e.i8(p.Ignore)
		e.pad(1)
		e.u32(p.MaxDifficulty)
		e.u32(p.PhraseIterationLinks)
		e.str(p.Name, 32)
	}

	e.count(len(song.ChordTemplates))
	for _, c := range song.ChordTemplates {
		e.u32(c.Mask)
		for _, f := range c.Fret {
			e.i8(f)
		}
		for _, f := range c.Finger {
			e.i8(f)
		}
		for _, n := range c.Notes {
			e.i32(n)
		}
		e.str(c.ChordName, 32)
	}

	e.count(len(song.ChordNotes))
	for _, c := range song.ChordNotes {
		for _, m := range c.Mask {
			e.u32(m)
		}
		for i := range c.Bend {
			bends := c.Bend[i]
			for j := 0; j < 32; j++ {
				if j < len(bends) {
					e.f32(bends[j].Time)
					e.f32(bends[j].Step)
					e.pad(3)
					e.i8(bends[j].UNK)
				} else {
					e.f32(0)
					e.f32(0)
					e.pad(3)
					e.i8(0)
				}
			}
			e.u32(uint32(len(bends)))
		}
		for _, s := range c.SlideTo {
			e.i8(s)
		}
		for _, s := range c.SlideUnpitchTo {
			e.i8(s)
		}
		for _, v := range c.Vibrato {
			e.i16(v)
		}
	}

	e.count(len(song.Vocals))
	if len(song.Vocals) > 0 {
		e.count(0) // symbols: unused by this pipeline, emitted empty when vocals are present
	}

	e.count(len(song.PhraseIterations))
	for _, pi := range song.PhraseIterations {
		e.u32(pi.PhraseID)
		e.f32(pi.Time)
		e.f32(pi.EndTime)
		for _, d := range pi.Difficulty {
			e.u32(d)
		}
	}

	e.count(len(song.PhraseExtraInfo))
	for _, p := range song.PhraseExtraInfo {
		e.u32(p.PhraseID)
		e.u32(p.Difficulty)
		e.u32(p.Empty)
		e.i8(p.LevelJump)
		e.i16(p.Redundant)
		e.pad(1)
	}

	e.count(len(song.NewLinkedDiffs))
	for _, n := range song.NewLinkedDiffs {
		e.i32(n.LevelBreak)
		e.count(len(n.PhraseList))
		for _, p := range n.PhraseList {
			e.u32(p)
		}
	}

	e.count(len(song.Actions))
	for _, a := range song.Actions {
		e.f32(a.Time)
		e.str(a.Name, 256)
	}

	e.count(len(song.Events))
	for _, ev := range song.Events {
		e.f32(ev.Time)
		e.str(ev.Code, 256)
	}

	e.count(len(song.Tones))
	for _, t := range song.Tones {
		e.f32(t.Time)
		e.u32(t.ID)
	}

	e.count(len(song.DNAs))
	for _, d := range song.DNAs {
		e.f32(d.Time)
		e.u32(d.ID)
	}

	e.count(len(song.Sections))
	for _, s := range song.Sections {
		e.str(s.Name, 32)
		e.u32(s.Number)
		e.f32(s.StartTime)
		e.f32(s.EndTime)
		e.u32(s.StartPhraseIterationID)
		e.u32(s.EndPhraseIterationID)
		for _, m := range s.StringMask {
			e.i8(m)
		}
	}

	e.count(len(song.Levels))
	for _, lvl := range song.Levels {
		e.u32(lvl.Difficulty)

		e.count(len(lvl.Anchors))
		for _, a := range lvl.Anchors {
			e.f32(a.Time)
			e.f32(a.EndTime)
			e.f32(a.UNKTime)
			e.f32(a.UNKTime2)
			e.i32(a.Fret)
			e.i32(a.Width)
			e.u32(a.PhraseIterationID)
		}

		e.count(len(lvl.AnchorExtensions))
		for _, a := range lvl.AnchorExtensions {
			e.f32(a.Time)
			e.i8(a.Fret)
			e.pad(7)
		}

		for _, bucket := range lvl.FingerPrints {
			e.count(len(bucket))
			for _, fp := range bucket {
				e.u32(fp.ChordID)
				e.f32(fp.StartTime)
				e.f32(fp.EndTime)
				e.f32(fp.UNKStartTime)
				e.f32(fp.UNKEndTime)
			}
		}

		e.count(len(lvl.Notes))
		for _, n := range lvl.Notes {
			e.u32(n.Mask)
			e.u32(n.Flags)
			e.i32(n.Hash)
			e.f32(n.Time)
			e.i8(n.String)
			e.i8(n.Fret)
			e.i8(n.AnchorFret)
			e.i8(n.AnchorWidth)
			e.i32(n.ChordID)
			e.i32(n.ChordNoteID)
			e.i32(n.PhraseID)
			e.i32(n.PhraseIterationID)
			for _, f := range n.FingerPrintID {
				e.i16(f)
			}
			e.i16(n.NextIterNote)
			e.i16(n.PrevIterNote)
			e.i16(n.ParentPrevNote)
			e.i8(n.SlideTo)
			e.i8(n.SlideUnpitchTo)
			e.i8(n.LeftHand)
			e.i8(n.Tap)
			e.i8(n.PickDirection)
			e.i8(n.Slap)
			e.i8(n.Pluck)
			e.i16(n.Vibrato)
			e.f32(n.Sustain)
			e.f32(n.Bend)
			e.count(len(n.BendValues))
			for _, bv := range n.BendValues {
				e.f32(bv.Time)
				e.f32(bv.Step)
				e.pad(3)
				e.i8(bv.UNK)
			}
		}

		e.count(len(lvl.AverageNotesPerIter))
		for _, v := range lvl.AverageNotesPerIter {
			e.f32(v)
		}
		e.count(len(lvl.NotesInIterCountNoIgnored))
		for _, v := range lvl.NotesInIterCountNoIgnored {
			e.u32(v)
		}
		e.count(len(lvl.NotesInIterCount))
		for _, v := range lvl.NotesInIterCount {
			e.u32(v)
		}
	}

	m := song.Metadata
	e.f64(m.MaxScore)
	e.f64(m.MaxNotes)
	e.f64(m.MaxNotesNoIgnored)
	e.f64(m.PointsPerNote)
	e.f32(m.FirstBeatLength)
	e.f32(m.StartTime)
	e.i8(m.Capo)
	e.str(m.LastConversionDateTime, 32)
	e.i16(m.Part)
	e.f32(m.SongLength)
	e.count(len(m.Tuning))
	for _, t := range m.Tuning {
		e.i16(t)
	}
	e.f32(m.FirstNoteTime)
	e.f32(m.FirstNoteTime2)
	e.i32(m.MaxDifficulty)

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

type encoder struct {
	w    *bufio.Writer
	path string
	err  error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) count(n int)       { e.u32(uint32(n)) }
func (e *encoder) u16(v uint16)      { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); e.write(b[:]) }
func (e *encoder) i16(v int16)       { e.u16(uint16(v)) }
func (e *encoder) u32(v uint32)      { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); e.write(b[:]) }
func (e *encoder) i32(v int32)       { e.u32(uint32(v)) }
func (e *encoder) i8(v int8)         { e.write([]byte{byte(v)}) }
func (e *encoder) pad(n int)         { e.write(make([]byte, n)) }
func (e *encoder) f32(v float32)     { e.u32(math.Float32bits(v)) }
func (e *encoder) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.write(b[:])
}

func (e *encoder) str(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	e.write(b)
}

// Decode reads a Song written by Encode. Decoding and re-encoding an
// unmodified stream must reproduce it byte for byte.
func Decode(r io.Reader, path string) (*Song, error) {
	d := &decoder{r: bufio.NewReader(r), path: path}
	song := &Song{}

	n := d.count()
	song.Beats = make([]Beat, n)
	for i := range song.Beats {
		song.Beats[i] = Beat{Time: d.f32(), Measure: d.u16(), Beat: d.u16(), PhraseIteration: d.u32(), Mask: d.u32()}
	}

	n = d.count()
	song.Phrases = make([]Phrase, n)
	for i := range song.Phrases {
		p := Phrase{Solo: d.i8(), Disparity: d.i8(), Ignore: d.i8()}
		d.skip(1)
		p.MaxDifficulty = d.u32()
		p.PhraseIterationLinks = d.u32()
		p.Name = d.str(32)
		song.Phrases[i] = p
	}

	n = d.count()
	song.ChordTemplates = make([]ChordTemplate, n)
	for i := range song.ChordTemplates {
		var c ChordTemplate
		c.Mask = d.u32()
		for j := range c.Fret {
			c.Fret[j] = d.i8()
		}
		for j := range c.Finger {
			c.Finger[j] = d.i8()
		}
		for j := range c.Notes {
			c.Notes[j] = d.i32()
		}
		c.ChordName = d.str(32)
		song.ChordTemplates[i] = c
	}

	n = d.count()
	song.ChordNotes = make([]ChordNote, n)
	for i := range song.ChordNotes {
		var c ChordNote
		for j := range c.Mask {
			c.Mask[j] = d.u32()
		}
		for j := range c.Bend {
			var bends []BendValue
			for k := 0; k < 32; k++ {
				bv := BendValue{Time: d.f32(), Step: d.f32()}
				d.skip(3)
				bv.UNK = d.i8()
				bends = append(bends, bv)
			}
			used := d.u32()
			if int(used) <= len(bends) {
				bends = bends[:used]
			}
			c.Bend[j] = bends
		}
		for j := range c.SlideTo {
			c.SlideTo[j] = d.i8()
		}
		for j := range c.SlideUnpitchTo {
			c.SlideUnpitchTo[j] = d.i8()
		}
		for j := range c.Vibrato {
			c.Vibrato[j] = d.i16()
		}
		song.ChordNotes[i] = c
	}

	vocalCount := d.count()
	song.Vocals = make([]struct{}, vocalCount)
	if vocalCount > 0 {
		d.count() // symbols count, unused
	}

	n = d.count()
	song.PhraseIterations = make([]PhraseIteration, n)
	for i := range song.PhraseIterations {
		pi := PhraseIteration{PhraseID: d.u32(), Time: d.f32(), EndTime: d.f32()}
		for j := range pi.Difficulty {
			pi.Difficulty[j] = d.u32()
		}
		song.PhraseIterations[i] = pi
	}

	n = d.count()
	song.PhraseExtraInfo = make([]PhraseExtraInfo, n)
	for i := range song.PhraseExtraInfo {
		p := PhraseExtraInfo{PhraseID: d.u32(), Difficulty: d.u32(), Empty: d.u32(), LevelJump: d.i8(), Redundant: d.i16()}
		d.skip(1)
		song.PhraseExtraInfo[i] = p
	}

	n = d.count()
	song.NewLinkedDiffs = make([]NewLinkedDiff, n)
	for i := range song.NewLinkedDiffs {
		nl := NewLinkedDiff{LevelBreak: d.i32()}
		m := d.count()
		nl.PhraseList = make([]uint32, m)
		for j := range nl.PhraseList {
			nl.PhraseList[j] = d.u32()
		}
		song.NewLinkedDiffs[i] = nl
	}

	n = d.count()
	song.Actions = make([]Action, n)
	for i := range song.Actions {
		song.Actions[i] = Action{Time: d.f32(), Name: d.str(256)}
	}

	n = d.count()
	song.Events = make([]Event, n)
	for i := range song.Events {
		song.Events[i] = Event{Time: d.f32(), Code: d.str(256)}
	}

	n = d.count()
	song.Tones = make([]Tone, n)
	for i := range song.Tones {
		song.Tones[i] = Tone{Time: d.f32(), ID: d.u32()}
	}

	n = d.count()
	song.DNAs = make([]DNA, n)
	for i := range song.DNAs {
		song.DNAs[i] = DNA{Time: d.f32(), ID: d.u32()}
	}

	n = d.count()
	song.Sections = make([]Section, n)
	for i := range song.Sections {
		s := Section{Name: d.str(32), Number: d.u32(), StartTime: d.f32(), EndTime: d.f32(),
			StartPhraseIterationID: d.u32(), EndPhraseIterationID: d.u32()}
		for j := range s.StringMask {
			s.StringMask[j] = d.i8()
		}
		song.Sections[i] = s
	}

	n = d.count()
	song.Levels = make([]Level, n)
	for i := range song.Levels {
		var lvl Level
		lvl.Difficulty = d.u32()

		m := d.count()
		lvl.Anchors = make([]Anchor, m)
		for j := range lvl.Anchors {
			lvl.Anchors[j] = Anchor{Time: d.f32(), EndTime: d.f32(), UNKTime: d.f32(), UNKTime2: d.f32(),
				Fret: d.i32(), Width: d.i32(), PhraseIterationID: d.u32()}
		}

		m = d.count()
		lvl.AnchorExtensions = make([]AnchorExtension, m)
		for j := range lvl.AnchorExtensions {
			lvl.AnchorExtensions[j] = AnchorExtension{Time: d.f32(), Fret: d.i8()}
			d.skip(7)
		}

		for b := range lvl.FingerPrints {
			m = d.count()
			lvl.FingerPrints[b] = make([]FingerPrint, m)
			for j := range lvl.FingerPrints[b] {
				lvl.FingerPrints[b][j] = FingerPrint{ChordID: d.u32(), StartTime: d.f32(), EndTime: d.f32(),
					UNKStartTime: d.f32(), UNKEndTime: d.f32()}
			}
		}

		m = d.count()
		lvl.Notes = make([]Note, m)
		for j := range lvl.Notes {
			var note Note
			note.Mask = d.u32()
			note.Flags = d.u32()
			note.Hash = d.i32()
			note.Time = d.f32()
			note.String = d.i8()
			note.Fret = d.i8()
			note.AnchorFret = d.i8()
			note.AnchorWidth = d.i8()
			note.ChordID = d.i32()
			note.ChordNoteID = d.i32()
			note.PhraseID = d.i32()
			note.PhraseIterationID = d.i32()
			for k := range note.FingerPrintID {
				note.FingerPrintID[k] = d.i16()
			}
			note.NextIterNote = d.i16()
			note.PrevIterNote = d.i16()
			note.ParentPrevNote = d.i16()
			note.SlideTo = d.i8()
			note.SlideUnpitchTo = d.i8()
			note.LeftHand = d.i8()
			note.Tap = d.i8()
			note.PickDirection = d.i8()
			note.Slap = d.i8()
			note.Pluck = d.i8()
			note.Vibrato = d.i16()
			note.Sustain = d.f32()
			note.Bend = d.f32()
			bc := d.count()
			note.BendValues = make([]BendValue, bc)
			for k := range note.BendValues {
				bv := BendValue{Time: d.f32(), Step: d.f32()}
				d.skip(3)
				bv.UNK = d.i8()
				note.BendValues[k] = bv
			}
			lvl.Notes[j] = note
		}

		m = d.count()
		lvl.AverageNotesPerIter = make([]float32, m)
		for j := range lvl.AverageNotesPerIter {
			lvl.AverageNotesPerIter[j] = d.f32()
		}
		m = d.count()
		lvl.NotesInIterCountNoIgnored = make([]uint32, m)
		for j := range lvl.NotesInIterCountNoIgnored {
			lvl.NotesInIterCountNoIgnored[j] = d.u32()
		}
		m = d.count()
		lvl.NotesInIterCount = make([]uint32, m)
		for j := range lvl.NotesInIterCount {
			lvl.NotesInIterCount[j] = d.u32()
		}

		song.Levels[i] = lvl
	}

	song.Metadata.MaxScore = d.f64()
	song.Metadata.MaxNotes = d.f64()
	song.Metadata.MaxNotesNoIgnored = d.f64()
	song.Metadata.PointsPerNote = d.f64()
	song.Metadata.FirstBeatLength = d.f32()
	song.Metadata.StartTime = d.f32()
	song.Metadata.Capo = d.i8()
	song.Metadata.LastConversionDateTime = d.str(32)
	song.Metadata.Part = d.i16()
	song.Metadata.SongLength = d.f32()
	tc := d.count()
	song.Metadata.Tuning = [6]int16{}
	for j := 0; j < int(tc) && j < 6; j++ {
		song.Metadata.Tuning[j] = d.i16()
	}
	song.Metadata.FirstNoteTime = d.f32()
	song.Metadata.FirstNoteTime2 = d.f32()
	song.Metadata.MaxDifficulty = d.i32()

	if d.err != nil {
		return nil, d.err
	}
	return song, nil
}

type decoder struct {
	r    *bufio.Reader
	path string
	err  error
}

func (d *decoder) fail(reason string) {
	if d.err == nil {
		d.err = errs.New(errs.MalformedContainer, d.path, reason)
	}
}

func (d *decoder) readN(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.fail("unexpected end of SNG stream")
	}
	return buf
}

func (d *decoder) skip(n int) { d.readN(n) }
func (d *decoder) count() int { return int(d.u32()) }
func (d *decoder) u16() uint16 { return binary.LittleEndian.Uint16(d.readN(2)) }
func (d *decoder) i16() int16  { return int16(d.u16()) }
func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.readN(4)) }
func (d *decoder) i32() int32  { return int32(d.u32()) }
func (d *decoder) i8() int8    { return int8(d.readN(1)[0]) }
func (d *decoder) f32() float32 { return math.Float32frombits(d.u32()) }
func (d *decoder) f64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(d.readN(8)))
}

func (d *decoder) str(n int) string {
	raw := d.readN(n)
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return string(raw[:end])
}
