package score

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/halfnote/tabpack/internal/bitstream"
	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/gpxfs"
	"github.com/halfnote/tabpack/internal/xmltree"
)

// Playalong is the parsed content of a playalong XML document: the GPX
// file it references, and the sync list used to build a BarToTime.
type Playalong struct {
	ScoreURL string
	Sync     SyncMap
}

// DefaultOffset is the global time offset applied by BarToTime absent any
// other configuration.
const DefaultOffset = -10.0

// LoadPlayalong parses a playalong XML document's scoreUrl and sync fields.
// sync is a '#'-prefixed list of ';'-separated quadruples
// t_ms;bar;delta_bar;_.
func LoadPlayalong(data []byte, path string) (*Playalong, error) {
	root, err := xmltree.Parse(bytes.NewReader(data), xmltree.DefaultProcessor, path)
	if err != nil {
		return nil, err
	}

	urlNode, ok := root.Field("scoreUrl")
	if !ok {
		return nil, errs.New(errs.MalformedXml, path, "playalong document missing scoreUrl")
	}
	syncNode, ok := root.Field("sync")
	if !ok {
		return nil, errs.New(errs.MalformedXml, path, "playalong document missing sync")
	}

	sync, err := parseSync(syncNode.Text(), path)
	if err != nil {
		return nil, err
	}

	return &Playalong{ScoreURL: urlNode.Text(), Sync: sync}, nil
}

func parseSync(raw string, path string) (SyncMap, error) {
	out := make(SyncMap)
	for _, group := range strings.Split(raw, "#") {
		if group == "" {
			continue
		}
		parts := strings.Split(group, ";")
		if len(parts) < 3 {
			return nil, errs.New(errs.MalformedXml, path, "sync quadruple missing fields: "+group)
		}
		tMs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, errs.Wrap(errs.MalformedXml, path, "sync quadruple has non-numeric time", err)
		}
		bar, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, errs.Wrap(errs.MalformedXml, path, "sync quadruple has non-numeric bar", err)
		}
		deltaBar, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, errs.Wrap(errs.MalformedXml, path, "sync quadruple has non-numeric delta_bar", err)
		}
		out[bar+deltaBar] = tMs / 1000.0
	}
	return out, nil
}

// LoadGPX decodes a raw GPX file (BCFZ framing, BCFS filesystem,
// score.gpif XML) into a flattened Score.
func LoadGPX(data []byte, path string) (*Score, error) {
	flat, err := bitstream.Decode(bytes.NewReader(data), path)
	if err != nil {
		return nil, err
	}
	files, err := gpxfs.Parse(flat, path)
	if err != nil {
		return nil, err
	}
	gpif, err := gpxfs.Score(files, path)
	if err != nil {
		return nil, err
	}
	return ParseGpif(gpif, path)
}

// ParseGpif parses an already-extracted score.gpif document. Exposed
// separately from LoadGPX so callers that already have the XML (e.g. tests,
// or a future non-GPX container) can skip the container decode.
func ParseGpif(gpif []byte, path string) (*Score, error) {
	root, err := xmltree.Parse(bytes.NewReader(gpif), NumericListProcessor, path)
	if err != nil {
		return nil, err
	}

	s := &Score{}

	tracksNode, ok := root.Field("Tracks")
	if !ok {
		return nil, errs.New(errs.MalformedXml, path, "score.gpif missing Tracks")
	}
	for _, t := range items(tracksNode) {
		s.Tracks = append(s.Tracks, parseTrack(t))
	}

	if mbNode, ok := root.Field("MasterBars"); ok {
		for _, mb := range items(mbNode) {
			s.MasterBars = append(s.MasterBars, parseMasterBar(mb, s.Tracks))
		}
	}
	if barsNode, ok := root.Field("Bars"); ok {
		for _, b := range items(barsNode) {
			s.Bars = append(s.Bars, parseBar(b))
		}
	}
	if voicesNode, ok := root.Field("Voices"); ok {
		for _, v := range items(voicesNode) {
			s.Voices = append(s.Voices, parseVoice(v))
		}
	}
	if beatsNode, ok := root.Field("Beats"); ok {
		for _, b := range items(beatsNode) {
			s.Beats = append(s.Beats, parseBeat(b))
		}
	}
	if notesNode, ok := root.Field("Notes"); ok {
		for _, n := range items(notesNode) {
			s.Notes = append(s.Notes, parseNote(n))
		}
	}
	if rhythmsNode, ok := root.Field("Rhythms"); ok {
		for _, r := range items(rhythmsNode) {
			s.Rhythms = append(s.Rhythms, parseRhythm(r))
		}
	}

	return s, nil
}

// items returns the child list of a Sequence or InlineSequence node,
// tolerating either shape since top-level GPIF collections are always
// count-attributed but this keeps the loader defensive.
func items(n *xmltree.Node) []*xmltree.Node {
	if n == nil {
		return nil
	}
	return n.Items
}

func intList(n *xmltree.Node) []int {
	if n == nil {
		return nil
	}
	if n.Kind == xmltree.KindScalar {
		var out []int
		for _, tok := range strings.Fields(n.Scalar.Str) {
			if v, err := strconv.Atoi(tok); err == nil {
				out = append(out, v)
			}
		}
		return out
	}
	out := make([]int, 0, len(n.Items))
	for _, item := range n.Items {
		if item.Kind == xmltree.KindScalar {
			if item.Scalar.Kind == xmltree.ScalarInt {
				out = append(out, int(item.Scalar.Int))
			} else if item.Scalar.Kind == xmltree.ScalarFloat {
				out = append(out, int(item.Scalar.Float))
			}
		}
	}
	return out
}

func properties(obj *xmltree.Node) []*xmltree.Node {
	propsField, ok := obj.Field("Properties")
	if !ok {
		return nil
	}
	propertyField, ok := propsField.Field("Property")
	if !ok {
		return nil
	}
	if propertyField.Kind == xmltree.KindInlineSequence {
		return propertyField.Items
	}
	return []*xmltree.Node{propertyField}
}

func hasProp(obj *xmltree.Node, name string) bool {
	for _, p := range properties(obj) {
		if a, ok := p.Attr("name"); ok && a.Str == name {
			return true
		}
	}
	return false
}

func getPropNode(obj *xmltree.Node, name string) *xmltree.Node {
	for _, p := range properties(obj) {
		a, ok := p.Attr("name")
		if !ok || a.Str != name {
			continue
		}
		if len(p.Fields) > 0 {
			return p.Fields[0].Node
		}
	}
	return nil
}

func parseTrack(n *xmltree.Node) Track {
	t := Track{Capo: 0}
	if a, ok := n.Attr("id"); ok {
		t.ID = a.Str
	}
	if nameNode, ok := n.Field("Name"); ok {
		t.Name = nameNode.Text()
	}
	if tuning := getPropNode(n, "Tuning"); tuning != nil {
		vals := intList(tuning)
		for i := 0; i < len(vals) && i < 6; i++ {
			t.Tuning[i] = vals[i]
		}
	}
	if capo := getPropNode(n, "CapoFret"); capo != nil && capo.Kind == xmltree.KindScalar {
		t.Capo = int(capo.Scalar.Int)
	}
	t.Bass = hasProp(n, "Bass")
	return t
}

func parseMasterBar(n *xmltree.Node, tracks []Track) MasterBar {
	mb := MasterBar{Num: 4, Den: 4, BarRefByTrk: map[string]int{}}
	if timeNode, ok := n.Field("Time"); ok {
		parts := strings.SplitN(timeNode.Text(), "/", 2)
		if len(parts) == 2 {
			if num, err := strconv.Atoi(parts[0]); err == nil {
				mb.Num = num
			}
			if den, err := strconv.Atoi(parts[1]); err == nil {
				mb.Den = den
			}
		}
	}
	if secNode, ok := n.Field("Section"); ok {
		if textNode, ok := secNode.Field("Text"); ok {
			mb.Section = textNode.Text()
		}
	}
	if repNode, ok := n.Field("Repeat"); ok {
		if a, ok := repNode.Attr("start"); ok {
			mb.Repeat.Start = a.Str == "true"
		}
		if a, ok := repNode.Attr("end"); ok {
			mb.Repeat.End = a.Str == "true"
		}
		if a, ok := repNode.Attr("count"); ok {
			if c, err := strconv.Atoi(a.Str); err == nil {
				mb.Repeat.Count = c
			}
		}
	}
	if barsNode, ok := n.Field("Bars"); ok {
		refs := intList(barsNode)
		for i, track := range tracks {
			if i < len(refs) {
				mb.BarRefByTrk[track.ID] = refs[i]
			}
		}
	}
	return mb
}

func parseBar(n *xmltree.Node) Bar {
	var b Bar
	if voicesNode, ok := n.Field("Voices"); ok {
		b.VoiceIDs = intList(voicesNode)
	}
	return b
}

func parseVoice(n *xmltree.Node) Voice {
	var v Voice
	if beatsNode, ok := n.Field("Beats"); ok {
		v.BeatIDs = intList(beatsNode)
	}
	return v
}

func parseBeat(n *xmltree.Node) Beat {
	b := Beat{Direction: "Down"}
	if rhNode, ok := n.Field("Rhythm"); ok {
		if a, ok := rhNode.Attr("ref"); ok {
			if ref, err := strconv.Atoi(a.Str); err == nil {
				b.RhythmRef = ref
			}
		}
	}
	if notesNode, ok := n.Field("Notes"); ok {
		b.NoteIDs = intList(notesNode)
	}
	if graceNode, ok := n.Field("GraceNotes"); ok {
		switch graceNode.Text() {
		case "BeforeBeat":
			b.Grace = GraceBeforeBeat
		case "OnBeat":
			b.Grace = GraceOnBeat
		}
	}
	if ftNode, ok := n.Field("FreeText"); ok {
		b.FreeText = ftNode.Text()
	}
	_, b.Arpeggio = n.Field("Arpeggio")
	_, b.Tremolo = n.Field("Tremolo")
	_, b.Popped = n.Field("Popped")
	_, b.Slapped = n.Field("Slapped")
	if dirNode, ok := n.Field("Direction"); ok {
		b.Direction = dirNode.Text()
	}
	return b
}

func parseNote(n *xmltree.Node) Note {
	note := Note{SlideTo: -1, SlideUnpitched: -1}
	if a, ok := n.Attr("string"); ok {
		note.String = int(a.Int)
	}
	if fretNode, ok := n.Field("Fret"); ok {
		note.Fret = int(fretNode.Scalar.Int)
	}
	if hNode := getPropNode(n, "HarmonicType"); hNode != nil {
		switch hNode.Text() {
		case "Artificial":
			note.Harmonic = HarmonicArtificial
		case "Pinch":
			note.Harmonic = HarmonicPinch
		}
	}
	note.Muted = hasProp(n, "Muted")
	note.PalmMuted = hasProp(n, "PalmMuted")
	note.Tapped = hasProp(n, "Tapped")
	note.Accent = hasProp(n, "Accent")
	note.Vibrato = hasProp(n, "Vibrato")
	note.Bend = hasProp(n, "Bend")
	if tieNode := getPropNode(n, "Tie"); tieNode != nil {
		if a, ok := tieNode.Attr("origin"); ok {
			note.TieOrigin = a.Str == "true"
		}
	}
	if slideNode := getPropNode(n, "SlideTo"); slideNode != nil && slideNode.Kind == xmltree.KindScalar {
		note.SlideTo = int(slideNode.Scalar.Int)
	}
	if slideNode := getPropNode(n, "SlideUnpitchTo"); slideNode != nil && slideNode.Kind == xmltree.KindScalar {
		note.SlideUnpitched = int(slideNode.Scalar.Int)
	}
	return note
}

func parseRhythm(n *xmltree.Node) Rhythm {
	r := Rhythm{NoteValue: "Quarter"}
	if nvNode, ok := n.Field("NoteValue"); ok {
		r.NoteValue = nvNode.Text()
	}
	if tupNode, ok := n.Field("PrimaryTuplet"); ok {
		r.HasTuplet = true
		if a, ok := tupNode.Attr("num"); ok {
			r.TupletNum = int(a.Int)
		}
		if a, ok := tupNode.Attr("den"); ok {
			r.TupletDen = int(a.Int)
		}
	}
	_, r.AugmentationDot = n.Field("AugmentationDot")
	return r
}
