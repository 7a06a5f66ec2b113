package packaging

import (
	"strconv"
	"strings"
	"testing"

	"github.com/halfnote/tabpack/internal/manifest"
	"github.com/halfnote/tabpack/internal/sng"
)

func testInput() Input {
	return Input{
		DLCKey: "testsong",
		Meta:   manifest.Song{DLCKey: "testsong", ArrangementName: "Lead"},
		Song: &sng.Song{
			Metadata: sng.Metadata{SongLength: 30, Tuning: [6]int16{}},
		},
		Platform: PC,
	}
}

func TestBuildWithoutCollaboratorsStillProducesCoreEntries(t *testing.T) {
	tree, err := Build(testInput(), Collaborators{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{
		"songs/bin/generic/testsong_lead.sng",
		"manifests/songs_dlc_testsong/testsong_lead.json",
		"manifests/songs_dlc_testsong/songs_dlc_testsong.hsan",
		"gamexblocks/nsongs/testsong.xblock",
		"appid.appid",
		"testsong_aggregategraph.nt",
	}
	for _, w := range want {
		if _, ok := tree[w]; !ok {
			t.Errorf("expected payload entry %q, tree has: %v", w, keys(tree))
		}
	}
}

func TestBuildOmitsAudioWithoutCollaborators(t *testing.T) {
	tree, err := Build(testInput(), Collaborators{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for p := range tree {
		if strings.HasPrefix(p, "audio/") {
			t.Errorf("expected no audio entries without an AudioMerger, found %q", p)
		}
	}
}

type fakeAudio struct{}

func (fakeAudio) MergeAndTrim(dlcKey string, platform Platform) ([]byte, []byte, error) {
	return []byte("full"), []byte("preview"), nil
}

type fakeBank struct{}

func (fakeBank) Build(dlcKey string, full, preview []byte, platform Platform) ([]byte, error) {
	return append(append([]byte{}, full...), preview...), nil
}

func TestBuildWithAudioCollaboratorsEmitsBnk(t *testing.T) {
	tree, err := Build(testInput(), Collaborators{Audio: fakeAudio{}, Bank: fakeBank{}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := tree["audio/windows/song_testsong_lead.bnk"]; !ok {
		t.Errorf("expected a soundbank entry, tree has: %v", keys(tree))
	}
}

type fakeTextures struct{}

func (fakeTextures) Compress(art []byte, size int) ([]byte, error) {
	return []byte("dds"), nil
}

func TestBuildWithAlbumArtEmitsThreeSizes(t *testing.T) {
	in := testInput()
	in.AlbumArt = []byte("source art")
	tree, err := Build(in, Collaborators{Textures: fakeTextures{}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, size := range []int{64, 128, 256} {
		p := "gfxassets/album_art/album_testsong_lead_" + strconv.Itoa(size) + ".dds"
		if _, ok := tree[p]; !ok {
			t.Errorf("expected album art entry %q", p)
		}
	}
}

func TestAggregateGraphTagsKnownExtensions(t *testing.T) {
	tree, err := Build(testInput(), Collaborators{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	graph := string(tree["testsong_aggregategraph.nt"])
	if !strings.Contains(graph, "hsan-db") {
		t.Error("expected the aggregate graph to tag the .hsan entry")
	}
	if !strings.Contains(graph, "musicgame-song") {
		t.Error("expected the aggregate graph to tag the .sng entry")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
