// Package midisync builds a score.SyncMap from a Standard MIDI File's BEAT
// track: the same downbeat/off-beat note convention rhythm games use to
// author a tempo map by ear against a reference audio track, rather than
// from the tick grid's genuinely continuous tempo.
package midisync

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/score"
	"gitlab.com/gomidi/midi/v2/smf"
)

// beatNote is one BEAT-track note-on: a downbeat (bar start, MIDI note 12 /
// C-1) or an ordinary beat within the bar (note 13 / C#-1).
type beatNote struct {
	tick       uint32
	isDownbeat bool
}

// tempoEvent is a tempo meta-event's absolute tick and the BPM it sets.
type tempoEvent struct {
	tick uint32
	bpm  float64
}

// Import reads an SMF document and lowers its BEAT track into a SyncMap:
// each downbeat becomes an integer bar position, each intervening beat a
// fractional position within that bar, and every position's time in
// seconds comes from integrating the file's own tempo map tick by tick
// rather than assuming a constant BPM per bar.
func Import(data []byte, path string) (score.SyncMap, error) {
	smfData, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.MalformedContainer, path, "not a well-formed Standard MIDI File", err)
	}

	ticksPerQuarter, ok := smfData.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errs.New(errs.Unsupported, path, "MIDI sync import requires metric-tick timing, not SMPTE")
	}

	beats, err := extractBeatNotes(smfData)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedReference, path, "BEAT track is missing or empty", err)
	}

	tempo := extractTempoMap(smfData)

	return buildSyncMap(beats, tempo, float64(ticksPerQuarter)), nil
}

// extractBeatNotes finds the track named "BEAT" and decodes its note-on
// events into beatNotes, sorted by tick.
func extractBeatNotes(smfData *smf.SMF) ([]beatNote, error) {
	var track smf.Track
	found := false
	for _, tr := range smfData.Tracks {
		if trackName(tr) == "BEAT" {
			track = tr
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("no track named BEAT")
	}

	var beats []beatNote
	var tick uint32
	for _, ev := range track {
		tick += ev.Delta
		var ch, key, vel uint8
		if !ev.Message.GetNoteOn(&ch, &key, &vel) || vel == 0 {
			continue
		}
		switch key {
		case 12:
			beats = append(beats, beatNote{tick: tick, isDownbeat: true})
		case 13:
			beats = append(beats, beatNote{tick: tick, isDownbeat: false})
		}
	}
	if len(beats) == 0 {
		return nil, fmt.Errorf("BEAT track carries no note 12/13 events")
	}
	sort.Slice(beats, func(i, j int) bool { return beats[i].tick < beats[j].tick })
	return beats, nil
}

func trackName(track smf.Track) string {
	for _, ev := range track {
		var name string
		if ev.Message.GetMetaTrackName(&name) {
			return name
		}
	}
	return ""
}

// extractTempoMap collects every tempo meta-event across all tracks,
// sorted by tick, defaulting to a single 120 BPM event at tick 0.
func extractTempoMap(smfData *smf.SMF) []tempoEvent {
	var events []tempoEvent
	for _, track := range smfData.Tracks {
		var tick uint32
		for _, ev := range track {
			tick += ev.Delta
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				events = append(events, tempoEvent{tick: tick, bpm: bpm})
			}
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].tick < events[j].tick })
	if len(events) == 0 || events[0].tick != 0 {
		events = append([]tempoEvent{{tick: 0, bpm: 120.0}}, events...)
	}
	return events
}

// tickToSeconds integrates the tempo map from tick 0 up to tick, honoring
// every tempo change strictly between the two.
func tickToSeconds(tick uint32, tempo []tempoEvent, ticksPerQuarter float64) float64 {
	var elapsed float64
	cur := tempo[0].tick
	bpm := tempo[0].bpm
	for _, ev := range tempo[1:] {
		if ev.tick >= tick {
			break
		}
		elapsed += secondsBetween(cur, ev.tick, bpm, ticksPerQuarter)
		cur = ev.tick
		bpm = ev.bpm
	}
	elapsed += secondsBetween(cur, tick, bpm, ticksPerQuarter)
	return elapsed
}

func secondsBetween(fromTick, toTick uint32, bpm, ticksPerQuarter float64) float64 {
	if bpm <= 0 {
		bpm = 120.0
	}
	ticks := float64(toTick) - float64(fromTick)
	return ticks / ticksPerQuarter * (60.0 / bpm)
}

// buildSyncMap groups beats into bars at each downbeat, assigns bar
// position i+fraction within bar i to every beat, and looks up its time
// via tickToSeconds.
func buildSyncMap(beats []beatNote, tempo []tempoEvent, ticksPerQuarter float64) score.SyncMap {
	var barStarts []int
	for i, b := range beats {
		if b.isDownbeat {
			barStarts = append(barStarts, i)
		}
	}
	if len(barStarts) == 0 || barStarts[0] != 0 {
		barStarts = append([]int{0}, barStarts...)
	}

	out := make(score.SyncMap)
	for bar, start := range barStarts {
		end := len(beats)
		if bar+1 < len(barStarts) {
			end = barStarts[bar+1]
		}
		count := end - start
		for i := start; i < end; i++ {
			frac := float64(i-start) / float64(count)
			out[float64(bar)+frac] = tickToSeconds(beats[i].tick, tempo, ticksPerQuarter)
		}
	}
	return out
}
