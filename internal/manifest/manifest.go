// Package manifest builds the JSON manifest dict and HSAN/xblock header
// that accompany a compiled SNG inside a PSARC DLC package.
package manifest

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/halfnote/tabpack/internal/sng"
)

// TrackKind selects the arrangement's route mask bit.
type TrackKind int

const (
	TrackLead TrackKind = iota
	TrackRhythm
	TrackBass
)

// Route mask bits, one per arrangement kind a manifest entry can represent.
const (
	RouteMaskLead   uint32 = 1
	RouteMaskRhythm uint32 = 2
	RouteMaskBass   uint32 = 4
)

func routeMask(kind TrackKind) uint32 {
	switch kind {
	case TrackRhythm:
		return RouteMaskRhythm
	case TrackBass:
		return RouteMaskBass
	default:
		return RouteMaskLead
	}
}

// Song carries the metadata a manifest needs beyond what the compiled SNG
// itself records: identity, credits, and per-difficulty grading hooks.
type Song struct {
	DLCKey          string
	ArrangementName string
	ArtistName      string
	ArtistNameSort  string
	AlbumName       string
	AlbumNameSort   string
	SongName        string
	SongNameSort    string
	SongYear        int
	Kind            TrackKind
	CentOffset      float64
	SKU             string
	Shipping        bool
	PersistentID    string // caller-supplied GUID, uppercase hex no dashes
	MasterIDRDV     int
	Leaderboard     float64

	// SongDiffEasy/Med/Hard are the per-difficulty challenge ratings the
	// game shows on the song select screen; absent a real difficulty
	// model this pipeline exposes them as a config hook defaulting to
	// 0.5 (see DESIGN.md's Open Question on this).
	SongDiffEasy float64
	SongDiffMed  float64
	SongDiffHard float64
}

// Manifest is the full attribute dict for one arrangement entry, keyed the
// way the game's JSON manifest format names them.
type Manifest struct {
	EntryID string // md5(urn), uppercased
	URN     string

	Attributes map[string]interface{}
}

// urn builds the json-db manifest urn an entry_id hashes.
func urn(dlcKey, arrangementName string) string {
	return fmt.Sprintf("urn:database:json-db:%s_%s", dlcKey, strings.ToLower(arrangementName))
}

func entryID(urn string) string {
	sum := md5.Sum([]byte(urn))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}

// noteCounts sums each level's playable (non-ignored) note count, indexed
// by difficulty.
func noteCounts(song *sng.Song) map[uint32]int {
	out := make(map[uint32]int, len(song.Levels))
	for _, lvl := range song.Levels {
		count := 0
		for _, n := range lvl.Notes {
			if n.Mask&sng.MaskIgnore == 0 {
				count++
			}
		}
		out[lvl.Difficulty] = count
	}
	return out
}

// masteryRatios computes easy/medium mastery as each difficulty's note
// count over the hardest difficulty's, 0 if there are no levels.
func masteryRatios(counts map[uint32]int) (easy, medium float64) {
	var hardest uint32
	for d := range counts {
		if d > hardest {
			hardest = d
		}
	}
	total := counts[hardest]
	if total == 0 {
		return 0, 0
	}
	// The two lower difficulty bands compared against the hardest; a
	// three-difficulty arrangement tags them 0 (easy) and 1 (medium).
	return float64(counts[0]) / float64(total), float64(counts[1]) / float64(total)
}

// dnaMax returns the latest timestamp recorded against a DNA code, or 0 if
// the compiled song carries no such events.
func dnaMax(song *sng.Song, code uint32) float64 {
	var max float64
	for _, d := range song.DNAs {
		if d.ID == code && float64(d.Time) > max {
			max = float64(d.Time)
		}
	}
	return max
}

// scorePNV is the points-per-note total across every compiled note in the
// hardest level, the manifest's score_PNV field.
func scorePNV(song *sng.Song) float64 {
	if len(song.Levels) == 0 {
		return 0
	}
	hardest := song.Levels[0]
	for _, lvl := range song.Levels[1:] {
		if lvl.Difficulty > hardest.Difficulty {
			hardest = lvl
		}
	}
	return float64(len(hardest.Notes)) * song.Metadata.PointsPerNote
}

// sectionProjection, phraseProjection, and chordTemplateProjection mirror
// the compiled SNG's own field names, the shape every manifest's
// "sections"/"phrases"/"chordTemplates" array copies from the arrangement
// it describes.
func sectionProjection(song *sng.Song) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(song.Sections))
	for _, s := range song.Sections {
		out = append(out, map[string]interface{}{
			"Name":      strings.TrimRight(s.Name, "\x00"),
			"StartTime": s.StartTime,
			"EndTime":   s.EndTime,
		})
	}
	return out
}

func phraseProjection(song *sng.Song) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(song.Phrases))
	for _, p := range song.Phrases {
		out = append(out, map[string]interface{}{
			"Name":          strings.TrimRight(p.Name, "\x00"),
			"MaxDifficulty": p.MaxDifficulty,
		})
	}
	return out
}

func chordTemplateProjection(song *sng.Song) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(song.ChordTemplates))
	for _, c := range song.ChordTemplates {
		out = append(out, map[string]interface{}{
			"ChordName": strings.TrimRight(c.ChordName, "\x00"),
			"Fret":      c.Fret,
		})
	}
	return out
}

// Build assembles the manifest attribute dict for one compiled arrangement.
func Build(song *sng.Song, meta Song) *Manifest {
	counts := noteCounts(song)
	easyMastery, mediumMastery := masteryRatios(counts)

	u := urn(meta.DLCKey, meta.ArrangementName)

	attrs := map[string]interface{}{
		"DLCKey":          meta.DLCKey,
		"ArrangementName": meta.ArrangementName,
		"ArtistName":      meta.ArtistName,
		"ArtistNameSort":  meta.ArtistNameSort,
		"AlbumName":       meta.AlbumName,
		"AlbumNameSort":   meta.AlbumNameSort,
		"SongName":        meta.SongName,
		"SongNameSort":    meta.SongNameSort,
		"SongYear":        meta.SongYear,
		"CentOffset":      meta.CentOffset,
		"SKU":             meta.SKU,
		"Shipping":        meta.Shipping,
		"PersistentID":    meta.PersistentID,
		"MasterID_RDV":    meta.MasterIDRDV,

		"ManifestUrn":                 u,
		"LeaderboardChallengeRating":  meta.Leaderboard,
		"SongDifficulty":              meta.SongDiffHard,
		"SongDiffEasy":                meta.SongDiffEasy,
		"SongDiffMed":                 meta.SongDiffMed,
		"SongDiffHard":                meta.SongDiffHard,
		"SongLength":                  song.Metadata.SongLength,
		"SongKey":                     meta.DLCKey,
		"Tuning":                      song.Metadata.Tuning,

		"NotesEasy":     counts[0],
		"NotesMedium":   counts[1],
		"NotesHard":     counts[uint32(len(song.Levels)-1)],
		"EasyMastery":   easyMastery,
		"MediumMastery": mediumMastery,
		"score_PNV":     scorePNV(song),

		"DNA_Solo":   dnaMax(song, sng.DNASolo),
		"DNA_Riffs":  dnaMax(song, sng.DNARiff),
		"DNA_Chords": dnaMax(song, sng.DNAChord),

		"arrangementProperties": map[string]interface{}{
			"RouteMask": routeMask(meta.Kind),
			"represent": true,
		},

		"sections":       sectionProjection(song),
		"phrases":        phraseProjection(song),
		"chordTemplates": chordTemplateProjection(song),
		"tones":          song.Tones,
	}

	return &Manifest{
		EntryID:    entryID(u),
		URN:        u,
		Attributes: attrs,
	}
}
