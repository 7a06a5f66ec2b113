package chartimport

import (
	"bytes"
	"sort"
	"strings"

	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/score"
)

// preferredTrackOrder is tried in sequence when the caller does not name a
// track explicitly; it favours the hardest single-guitar difficulty, since
// that is the one a Rocksmith-style arrangement most naturally mirrors.
var preferredTrackOrder = []string{
	"ExpertSingle", "HardSingle", "MediumSingle", "EasySingle",
	"ExpertDoubleBass", "HardDoubleBass", "MediumDoubleBass", "EasyDoubleBass",
}

// PickTrack chooses the track ToScore should import when the caller has no
// preference, preferring preferredTrackOrder and otherwise taking the first
// track found.
func PickTrack(chart *ChartFile) (string, bool) {
	for _, name := range preferredTrackOrder {
		if _, ok := chart.Tracks[name]; ok {
			return name, true
		}
	}
	for name := range chart.Tracks {
		return name, true
	}
	return "", false
}

// Import parses a .chart document and lowers one of its tracks into a Score
// plus the synthetic sync map derived from the BPM grid. trackName selects
// the track to import; if empty, PickTrack chooses one.
func Import(data []byte, trackName, path string) (*score.Score, score.SyncMap, error) {
	chart, err := ParseChartFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errs.Wrap(errs.MalformedContainer, path, "not a well-formed .chart document", err)
	}
	chart.Filename = path

	if trackName == "" {
		name, ok := PickTrack(chart)
		if !ok {
			return nil, nil, errs.New(errs.MalformedReference, path, "chart file has no importable track")
		}
		trackName = name
	}

	s, err := ToScore(chart, trackName, path)
	if err != nil {
		return nil, nil, err
	}
	sync := syncMapFromBPMGrid(chart, path)
	return s, sync, nil
}

// openLane is the synthetic 6th lane this importer assigns to the chart
// format's "open note" fret value (7); six-string tab has no open-strum
// lane of its own, so this is a reduced-fidelity extension past the 0-4
// fret lanes a .chart difficulty track natively carries.
const openLane = 5

// laneFromFret maps a NoteEvent.Fret to the lane this importer treats as a
// Note.String, or (0, false) for fret values this importer does not carry
// through (forced/tap markers never reach here as notes; drum-only flag
// frets are out of scope for the single-string-per-fret convention this
// importer targets).
func laneFromFret(fret uint8) (int, bool) {
	switch {
	case fret <= 4:
		return int(fret), true
	case fret == 7:
		return openLane, true
	default:
		return 0, false
	}
}

// ToScore lowers one chart track into a Score: one Track, one MasterBar per
// bar the time-signature grid implies, one Voice per bar holding one Beat
// per distinct note tick (or a single rest Beat for an empty bar), and one
// Note per simultaneous NoteEvent at that tick. Fret lanes become
// Note.String (see laneFromFret); Note.Fret is always 0, since a .chart
// difficulty track carries no literal fret number.
func ToScore(chart *ChartFile, trackName, path string) (*score.Score, error) {
	track, ok := chart.Tracks[trackName]
	if !ok {
		return nil, errs.New(errs.MalformedReference, path, "chart file has no track named "+trackName)
	}
	if chart.Song.Resolution <= 0 {
		return nil, errs.New(errs.MalformedContainer, path, "chart resolution must be positive")
	}
	resolution := chart.Song.Resolution

	boundaries := barBoundaries(chart, resolution, chartEndTick(chart))

	sections := make(map[uint32]string)
	for _, ev := range chart.Events.GlobalEvents {
		if name, ok := strings.CutPrefix(ev.Text, "section "); ok {
			sections[ev.Tick] = name
		}
	}

	notesByTick := make(map[uint32][]NoteEvent)
	var ticks []uint32
	for _, n := range track.Notes {
		if _, ok := laneFromFret(n.Fret); !ok {
			continue
		}
		if _, seen := notesByTick[n.Tick]; !seen {
			ticks = append(ticks, n.Tick)
		}
		notesByTick[n.Tick] = append(notesByTick[n.Tick], n)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	s := &score.Score{
		Tracks: []score.Track{{
			ID:     "0",
			Name:   trackName,
			Tuning: [6]int{40, 45, 50, 55, 59, 64},
			Bass:   strings.Contains(trackName, "Bass"),
		}},
	}

	rhythmIndex := make(map[string]int)
	rhythmRef := func(name string) int {
		if idx, ok := rhythmIndex[name]; ok {
			return idx
		}
		idx := len(s.Rhythms)
		s.Rhythms = append(s.Rhythms, score.Rhythm{NoteValue: name})
		rhythmIndex[name] = idx
		return idx
	}

	tickIdx := 0
	for bi, b := range boundaries {
		barEnd := b.tick + b.ticksPerBar

		var beatIDs []int
		for tickIdx < len(ticks) && ticks[tickIdx] < barEnd {
			tick := ticks[tickIdx]
			next := barEnd
			if tickIdx+1 < len(ticks) && ticks[tickIdx+1] < barEnd {
				next = ticks[tickIdx+1]
			}
			quarters := float64(next-tick) / float64(resolution)

			var noteIDs []int
			for _, ne := range notesByTick[tick] {
				lane, _ := laneFromFret(ne.Fret)
				s.Notes = append(s.Notes, score.Note{
					String:         lane,
					SlideTo:        -1,
					SlideUnpitched: -1,
					Tapped:         ne.Flags&FlagTap != 0,
				})
				noteIDs = append(noteIDs, len(s.Notes)-1)
			}

			beat := score.Beat{
				RhythmRef: rhythmRef(nearestNoteValue(quarters)),
				NoteIDs:   noteIDs,
				Direction: "Down",
			}
			s.Beats = append(s.Beats, beat)
			beatIDs = append(beatIDs, len(s.Beats)-1)
			tickIdx++
		}

		if len(beatIDs) == 0 {
			s.Beats = append(s.Beats, score.Beat{
				RhythmRef: rhythmRef(nearestNoteValue(float64(b.ticksPerBar) / float64(resolution))),
				Direction: "Down",
			})
			beatIDs = []int{len(s.Beats) - 1}
		}

		s.Voices = append(s.Voices, score.Voice{BeatIDs: beatIDs})
		s.Bars = append(s.Bars, score.Bar{VoiceIDs: []int{bi}})
		s.MasterBars = append(s.MasterBars, score.MasterBar{
			Num:         b.num,
			Den:         b.den,
			Section:     sections[b.tick],
			BarRefByTrk: map[string]int{"0": bi},
		})
	}

	return s, nil
}

// noteValueQuarters mirrors score.Duration's table (quarter-note units per
// NoteValue), ordered for nearest-match lookup.
var noteValueQuarters = []struct {
	name  string
	units float64
}{
	{"Long", 16}, {"DoubleWhole", 8}, {"Whole", 4}, {"Half", 2}, {"Quarter", 1},
	{"Eighth", 0.5}, {"16th", 0.25}, {"32nd", 0.125}, {"64th", 0.0625},
	{"128th", 0.03125}, {"256th", 0.015625},
}

// nearestNoteValue finds the enumerated NoteValue whose quarter-note length
// is closest (on a log scale, so a half-length miss at any octave counts
// the same) to quarters. A .chart track carries no native rhythm notation,
// only tick gaps, so this is always an approximation.
func nearestNoteValue(quarters float64) string {
	if quarters <= 0 {
		quarters = noteValueQuarters[len(noteValueQuarters)-1].units
	}
	best := noteValueQuarters[0].name
	bestDist := -1.0
	for _, nv := range noteValueQuarters {
		dist := logRatio(quarters, nv.units)
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = nv.name
		}
	}
	return best
}

func logRatio(a, b float64) float64 {
	r := a / b
	if r < 1 {
		r = 1 / r
	}
	return r
}

type barBoundary struct {
	tick        uint32
	num, den    int
	ticksPerBar uint32
}

// timeSigAt returns the numerator/denominator in force at tick, per
// chart.SyncTrack.TimeSigEvents (default 4/4 absent any event).
func timeSigAt(chart *ChartFile, tick uint32) (num, den int) {
	num, den = 4, 4
	for _, ev := range chart.SyncTrack.TimeSigEvents {
		if ev.Tick > tick {
			break
		}
		num = int(ev.Numerator)
		den = 1 << ev.Denominator
	}
	return num, den
}

// barBoundaries walks the time-signature grid from tick 0 to endTick,
// producing one entry per bar.
func barBoundaries(chart *ChartFile, resolution int, endTick uint32) []barBoundary {
	var out []barBoundary
	var tick uint32
	for tick <= endTick {
		num, den := timeSigAt(chart, tick)
		ticksPerBar := uint32(resolution) * uint32(num) * 4 / uint32(den)
		if ticksPerBar == 0 {
			ticksPerBar = uint32(resolution)
		}
		out = append(out, barBoundary{tick: tick, num: num, den: den, ticksPerBar: ticksPerBar})
		tick += ticksPerBar
	}
	return out
}

// chartEndTick returns the last tick any event in the chart references, so
// barBoundaries covers the whole file.
func chartEndTick(chart *ChartFile) uint32 {
	var end uint32
	bump := func(t uint32) {
		if t > end {
			end = t
		}
	}
	for _, ev := range chart.SyncTrack.BPMEvents {
		bump(ev.Tick)
	}
	for _, ev := range chart.SyncTrack.TimeSigEvents {
		bump(ev.Tick)
	}
	for _, ev := range chart.Events.GlobalEvents {
		bump(ev.Tick)
	}
	for _, track := range chart.Tracks {
		for _, n := range track.Notes {
			bump(n.Tick + n.Sustain)
		}
		for _, sp := range track.Specials {
			bump(sp.Tick + sp.Length)
		}
	}
	return end
}

// syncMapFromBPMGrid converts the chart's BPM event grid into a SyncMap:
// one sample per BPM event (plus tick 0), each giving the bar position and
// elapsed time at that tick. Time is integrated tempo segment by tempo
// segment; bar position is read off the same grid ToScore's MasterBars
// were built from, so the two stay consistent.
func syncMapFromBPMGrid(chart *ChartFile, path string) score.SyncMap {
	resolution := chart.Song.Resolution
	if resolution <= 0 {
		return score.SyncMap{}
	}
	boundaries := barBoundaries(chart, resolution, chartEndTick(chart))

	tickToBar := func(tick uint32) float64 {
		for i, b := range boundaries {
			end := b.tick + b.ticksPerBar
			if tick < end || i == len(boundaries)-1 {
				return float64(i) + float64(tick-b.tick)/float64(b.ticksPerBar)
			}
		}
		return 0
	}

	events := append([]BPMEvent(nil), chart.SyncTrack.BPMEvents...)
	if len(events) == 0 || events[0].Tick != 0 {
		events = append([]BPMEvent{{Tick: 0, BPM: 120000}}, events...)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })

	out := make(score.SyncMap, len(events))
	var elapsed float64
	for i, ev := range events {
		out[tickToBar(ev.Tick)] = elapsed
		if i+1 < len(events) {
			bpm := float64(ev.BPM) / 1000.0
			if bpm <= 0 {
				bpm = 120.0
			}
			secondsPerTick := 60.0 / (bpm * float64(resolution))
			elapsed += secondsPerTick * float64(events[i+1].Tick-ev.Tick)
		}
	}
	return out
}
