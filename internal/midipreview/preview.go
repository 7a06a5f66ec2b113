// Package midipreview renders a compiled timeline.Timeline back to a
// Standard MIDI File for offline playback. This is read-only QA tooling:
// its output never feeds back into the SNG compiler or the PSARC writer.
package midipreview

import (
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/timeline"
)

// midiOpen is the open-string MIDI pitch per string index, low to high.
var midiOpen = [6]int{40, 45, 50, 55, 59, 64}

const (
	ticksPerQuarter        = 480
	guitarChannel   uint8  = 0
	guitarProgram   uint8  = 29 // GM Overdriven Guitar
	bassChannel     uint8  = 1
	bassProgram     uint8  = 33 // GM Electric Bass (finger)
	minAudibleTicks uint32 = 60 // shortest note-off delay, a 32nd note at 480 tpq
	defaultVelocity uint8  = 96
)

// pitch applies the same fretted-string pitch formula the SNG compiler uses
// for chord templates: midi[i] = MIDI_OPEN[i] + tuning[i] + fret[i], minus
// an octave for a bass arrangement.
func pitch(stringIdx, fret int, tuning [6]int, bass bool) uint8 {
	p := midiOpen[stringIdx] + tuning[stringIdx] + fret
	if bass {
		p -= 12
	}
	if p < 0 {
		p = 0
	}
	if p > 127 {
		p = 127
	}
	return uint8(p)
}

// event is one absolute-tick MIDI event awaiting delta-time conversion.
type event struct {
	tick uint32
	msg  smf.Message
}

// Render builds a Standard MIDI File from a compiled timeline: one tempo
// track derived by inverting the bar-to-time function at each ebeat, and
// one note track carrying every compiled note and chord.
func Render(tl *timeline.Timeline, tuning [6]int, bass bool, w io.Writer) error {
	if tl == nil {
		return errs.New(errs.MalformedReference, "", "cannot render a nil timeline")
	}
	if len(tl.Ebeats) == 0 {
		return errs.New(errs.MalformedReference, "", "timeline carries no ebeats to derive a tempo track from")
	}

	out := smf.NewSMF1()
	out.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	tempoTrack, tickAt := buildTempoTrack(tl.Ebeats)
	out.Add(tempoTrack)

	channel, program := guitarChannel, guitarProgram
	if bass {
		channel, program = bassChannel, bassProgram
	}
	out.Add(buildNoteTrack(tl, tuning, bass, channel, program, tickAt))

	_, err := out.WriteTo(w)
	if err != nil {
		return errs.Wrap(errs.MalformedContainer, "", "writing preview MIDI file", err)
	}
	return nil
}

// buildTempoTrack derives one tempo event per ebeat-to-ebeat interval by
// inverting the bar-to-time function: the BPM implied by the elapsed
// seconds between two consecutive ebeats at a fixed quarter-note tick grid.
// It returns the track plus a tickAt closure mapping a timeline time in
// seconds to an absolute MIDI tick on that same grid.
func buildTempoTrack(ebeats []timeline.Ebeat) (smf.Track, func(t float64) uint32) {
	track := smf.Track{}
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTrackSequenceName("Tempo"))})

	type tickTime struct {
		tick uint32
		time float64
	}
	grid := make([]tickTime, len(ebeats))
	var tick uint32
	for i, eb := range ebeats {
		grid[i] = tickTime{tick: tick, time: eb.Time}
		tick += ticksPerQuarter
	}

	events := make([]event, 0, len(ebeats))
	for i := range ebeats {
		bpm := 120.0
		if i+1 < len(ebeats) {
			dt := ebeats[i+1].Time - ebeats[i].Time
			if dt > 0 {
				bpm = 60.0 / dt
			}
		} else if i > 0 {
			dt := ebeats[i].Time - ebeats[i-1].Time
			if dt > 0 {
				bpm = 60.0 / dt
			}
		}
		events = append(events, event{tick: grid[i].tick, msg: smf.Message(smf.MetaTempo(bpm))})
	}
	track = append(track, toDeltaEvents(events)...)
	track = append(track, smf.Event{Delta: 0, Message: smf.EOT})

	tickAt := func(t float64) uint32 {
		if t <= grid[0].time {
			return grid[0].tick
		}
		for i := 0; i < len(grid)-1; i++ {
			if t >= grid[i].time && t <= grid[i+1].time {
				span := grid[i+1].time - grid[i].time
				if span <= 0 {
					return grid[i].tick
				}
				frac := (t - grid[i].time) / span
				return grid[i].tick + uint32(frac*float64(ticksPerQuarter))
			}
		}
		last := grid[len(grid)-1]
		extra := t - last.time
		return last.tick + uint32(extra*2*float64(ticksPerQuarter))
	}

	return track, tickAt
}

// buildNoteTrack lowers every standalone note and chord in the timeline
// into note-on/note-off pairs at the pitch formula's MIDI key.
func buildNoteTrack(tl *timeline.Timeline, tuning [6]int, bass bool, channel, program uint8, tickAt func(float64) uint32) smf.Track {
	track := smf.Track{}
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTrackSequenceName("Notes"))})
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(midi.ProgramChange(channel, program))})

	var events []event
	emit := func(t float64, sustain float64, stringIdx, fret int) {
		onTick := tickAt(t)
		key := pitch(stringIdx, fret, tuning, bass)
		offTick := onTick + minAudibleTicks
		if sustain > 0 {
			sustainTicks := tickAt(t+sustain) - onTick
			if sustainTicks > minAudibleTicks {
				offTick = onTick + sustainTicks
			}
		}
		events = append(events, event{tick: onTick, msg: smf.Message(midi.NoteOn(channel, key, defaultVelocity))})
		events = append(events, event{tick: offTick, msg: smf.Message(midi.NoteOff(channel, key))})
	}

	for _, n := range tl.Notes {
		emit(n.Time, 0, n.String, n.Fret)
	}
	for _, c := range tl.Chords {
		for _, n := range c.Notes {
			emit(c.Time, c.Length, n.String, n.Fret)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return isNoteOff(events[i].msg) && !isNoteOff(events[j].msg)
	})

	track = append(track, toDeltaEvents(events)...)
	track = append(track, smf.Event{Delta: 0, Message: smf.EOT})
	return track
}

func isNoteOff(msg smf.Message) bool {
	var ch, key, vel uint8
	return msg.GetNoteOff(&ch, &key, &vel)
}

// toDeltaEvents converts a tick-sorted slice of absolute-time events into
// smf.Track events carrying relative delta times.
func toDeltaEvents(events []event) []smf.Event {
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })
	out := make([]smf.Event, 0, len(events))
	var last uint32
	for _, e := range events {
		out = append(out, smf.Event{Delta: e.tick - last, Message: e.msg})
		last = e.tick
	}
	return out
}
