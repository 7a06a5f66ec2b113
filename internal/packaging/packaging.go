// Package packaging assembles a compiled song's on-disk PSARC payload tree
// and hands it to the archive writer. External collaborators this pipeline
// does not implement itself — audio transcoding, texture compression,
// soundbank authoring — are taken as injected interfaces so the driver has
// no subprocess dependency of its own.
package packaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/halfnote/tabpack/internal/config"
	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/manifest"
	"github.com/halfnote/tabpack/internal/psarc"
	"github.com/halfnote/tabpack/internal/sng"
)

// DefaultAppID is the reference game's Steam application id, written
// verbatim into every package's appid.appid file.
const DefaultAppID = "248750"

// Platform selects the payload tree's path conventions and SNG cipher key.
type Platform int

const (
	PC Platform = iota
	Mac
)

func (p Platform) pathToken() string {
	if p == Mac {
		return "mac"
	}
	return "windows"
}

func (p Platform) binToken() string {
	if p == Mac {
		return "macos"
	}
	return "generic"
}

// AudioMerger merges a song's backing track with any DLC-specific stems and
// produces both the full mix and a trimmed preview clip, both already in
// the target platform's wwise-ready container. Backed by ffmpeg.
type AudioMerger interface {
	MergeAndTrim(dlcKey string, platform Platform) (full, preview []byte, err error)
}

// SoundbankBuilder packs merged audio into the engine's Wwise soundbank
// container. Backed by the Wwise CLI.
type SoundbankBuilder interface {
	Build(dlcKey string, full, preview []byte, platform Platform) ([]byte, error)
}

// TextureCompressor compresses album art into the engine's DDS texture
// format at the sizes the xblock template references (64/128/256). Backed
// by nvdxt.
type TextureCompressor interface {
	Compress(albumArt []byte, size int) ([]byte, error)
}

// Collaborators bundles every external tool invocation the driver defers to.
type Collaborators struct {
	Audio    AudioMerger
	Bank     SoundbankBuilder
	Textures TextureCompressor
}

// Input is everything needed to package one arrangement into a DLC payload.
type Input struct {
	DLCKey   string
	Meta     manifest.Song
	Song     *sng.Song
	AlbumArt []byte // source art, any size; Textures compresses per target
	Platform Platform
	Keys     config.Keys

	// AppID overrides DefaultAppID when set.
	AppID string

	// FlatModelRoot/FlatModelSong are the engine's fixed RSEnumerable_*
	// asset blobs, identical across every package this pipeline builds;
	// the caller loads them once from the game's share directory.
	FlatModelRoot []byte
	FlatModelSong []byte

	// ShowLights is the light-show XML for this arrangement. Authoring a
	// light show is out of scope for this pipeline; callers that have
	// none can supply a blank template and patch it in later.
	ShowLights []byte
}

// Build assembles the full payload tree for one arrangement and returns it
// as a path -> content map, ready for psarc.Write.
func Build(in Input, collab Collaborators) (map[string][]byte, error) {
	if in.Song == nil {
		return nil, errs.New(errs.MalformedReference, "", "packaging requires a compiled song")
	}

	tree := make(map[string][]byte)
	lowerArr := strings.ToLower(in.Meta.ArrangementName)
	key := fmt.Sprintf("%s_%s", in.DLCKey, lowerArr)

	if err := addAudio(tree, in, collab, key); err != nil {
		return nil, err
	}
	if err := addSNG(tree, in, key); err != nil {
		return nil, err
	}
	if err := addManifestAndHeader(tree, in, key); err != nil {
		return nil, err
	}
	if err := addXBlock(tree, in); err != nil {
		return nil, err
	}
	if err := addAlbumArt(tree, in, collab, key); err != nil {
		return nil, err
	}
	addStaticAssets(tree, in, key)
	addAggregateGraph(tree, in.DLCKey)

	return tree, nil
}

func addAudio(tree map[string][]byte, in Input, collab Collaborators, key string) error {
	if collab.Audio == nil || collab.Bank == nil {
		return nil
	}
	full, preview, err := collab.Audio.MergeAndTrim(in.DLCKey, in.Platform)
	if err != nil {
		return errs.Wrap(errs.Unsupported, "", "audio merge collaborator failed", err)
	}
	bank, err := collab.Bank.Build(in.DLCKey, full, preview, in.Platform)
	if err != nil {
		return errs.Wrap(errs.Unsupported, "", "soundbank collaborator failed", err)
	}
	tree[fmt.Sprintf("audio/%s/song_%s.bnk", in.Platform.pathToken(), key)] = bank
	return nil
}

// addSNG stores the plain-encoded song payload. The SNG payload cipher is
// applied at the archive layer (psarc.Write), keyed on this exact path
// prefix, not here.
func addSNG(tree map[string][]byte, in Input, key string) error {
	var buf bytes.Buffer
	if err := sng.Encode(&buf, in.Song, key+".sng"); err != nil {
		return errs.Wrap(errs.MalformedContainer, key+".sng", "encoding compiled song", err)
	}
	tree[fmt.Sprintf("songs/bin/%s/%s.sng", in.Platform.binToken(), key)] = buf.Bytes()
	return nil
}

func addManifestAndHeader(tree map[string][]byte, in Input, key string) error {
	m := manifest.Build(in.Song, in.Meta)
	hsan := manifest.BuildHSANEntry(m)

	manifestDoc, err := json.Marshal(map[string]interface{}{
		"Entries": map[string]interface{}{
			m.EntryID: map[string]interface{}{"Attributes": m.Attributes},
		},
	})
	if err != nil {
		return errs.Wrap(errs.Unsupported, "", "marshaling manifest JSON", err)
	}
	tree[fmt.Sprintf("manifests/songs_dlc_%s/%s.json", in.DLCKey, key)] = manifestDoc

	hsanDoc, err := json.Marshal(map[string]interface{}{
		"Entries": map[string]interface{}{hsan.ID: hsan.Attributes},
	})
	if err != nil {
		return errs.Wrap(errs.Unsupported, "", "marshaling HSAN JSON", err)
	}
	tree[fmt.Sprintf("manifests/songs_dlc_%s/songs_dlc_%s.hsan", in.DLCKey, in.DLCKey)] = hsanDoc
	return nil
}

func addXBlock(tree map[string][]byte, in Input) error {
	m := manifest.Build(in.Song, in.Meta)
	hsan := manifest.BuildHSANEntry(m)
	entity := manifest.XBlockEntity(hsan.ID, in.DLCKey, in.Meta.ArrangementName)
	doc := manifest.XBlockDocument([]string{entity})
	tree[fmt.Sprintf("gamexblocks/nsongs/%s.xblock", in.DLCKey)] = []byte(doc)
	return nil
}

func addAlbumArt(tree map[string][]byte, in Input, collab Collaborators, key string) error {
	if collab.Textures == nil || len(in.AlbumArt) == 0 {
		return nil
	}
	for _, size := range []int{64, 128, 256} {
		dds, err := collab.Textures.Compress(in.AlbumArt, size)
		if err != nil {
			return errs.Wrap(errs.Unsupported, "", "texture compression collaborator failed", err)
		}
		tree[fmt.Sprintf("gfxassets/album_art/album_%s_%d.dds", key, size)] = dds
	}
	return nil
}

// addStaticAssets copies the fixed engine models and the appid marker file,
// and places the arrangement's light show XML if the caller supplied one.
func addStaticAssets(tree map[string][]byte, in Input, key string) {
	appID := in.AppID
	if appID == "" {
		appID = DefaultAppID
	}
	tree["appid.appid"] = []byte(appID)

	if len(in.FlatModelRoot) > 0 {
		tree["flatmodels/rs/rsenumerable_root.flat"] = in.FlatModelRoot
	}
	if len(in.FlatModelSong) > 0 {
		tree["flatmodels/rs/rsenumerable_song.flat"] = in.FlatModelSong
	}
	if len(in.ShowLights) > 0 {
		tree[fmt.Sprintf("songs/arr/%s_showlights.xml", key)] = in.ShowLights
	}
}

// graphExtensionTags maps a payload file extension to the aggregate
// graph's tag set for that file type.
var graphExtensionTags = map[string][]string{
	".json":   {"database", "json-db"},
	".hsan":   {"database", "hsan-db"},
	".xblock": {"emergent-world", "x-world"},
	".sng":    {"application", "macos", "musicgame-song"},
	".xml":    {"application", "xml"},
	".dds":    {"dds", "image"},
	".bnk":    {"audio", "macos", "wwise-sound-bank"},
}

// logPathExtensions get an extra llid/logpath block; their logpath drops a
// "macos/" or "mac/" path component. PC directory names ("generic",
// "windows") are left in place.
var logPathExtensions = map[string]bool{
	".sng": true, ".xml": true, ".dds": true, ".bnk": true,
}

// uuidV3 derives a name-based UUID (RFC 4122 version 3, MD5) from name under
// the URL namespace, matching the reference packaging script's identifiers.
func uuidV3(name string) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(name)).String()
}

// addAggregateGraph emits the package's N-Triples aggregate graph, tagging
// every recognized payload entry with its asset type and (for binary
// platform assets) a platform-independent logical path.
func addAggregateGraph(tree map[string][]byte, dlcKey string) {
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out strings.Builder
	for _, p := range paths {
		ext := filepath.Ext(p)
		tags, ok := graphExtensionTags[ext]
		if !ok {
			continue
		}
		uid := uuidV3(p)
		base := strings.TrimSuffix(filepath.Base(p), ext)
		fmt.Fprintf(&out, "<urn:uuid:%s> <http://emergent.net/aweb/1.0/canonical> \"%s\".\n", uid, filepath.Dir(p))
		fmt.Fprintf(&out, "<urn:uuid:%s> <http://emergent.net/aweb/1.0/name> \"%s\".\n", uid, base)
		fmt.Fprintf(&out, "<urn:uuid:%s> <http://emergent.net/aweb/1.0/relpath> \"%s\".\n", uid, p)
		for _, tag := range tags {
			fmt.Fprintf(&out, "<urn:uuid:%s> <http://emergent.net/aweb/1.0/tag> \"%s\".\n", uid, tag)
		}
		if logPathExtensions[ext] {
			logPath := strings.NewReplacer("macos/", "", "mac/", "").Replace(p)
			llid := uid[:8] + "-0000-0000-0000-000000000000"
			fmt.Fprintf(&out, "<urn:uuid:%s> <http://emergent.net/aweb/1.0/llid> \"%s\".\n", uid, llid)
			fmt.Fprintf(&out, "<urn:uuid:%s> <http://emergent.net/aweb/1.0/logpath> \"%s\".\n", uid, logPath)
		}
	}

	tree[dlcKey+"_aggregategraph.nt"] = []byte(out.String())
}

// Pack assembles the payload tree and encodes it as a finished PSARC
// archive.
func Pack(in Input, collab Collaborators, blockSize uint32) ([]byte, error) {
	tree, err := Build(in, collab)
	if err != nil {
		return nil, err
	}
	return psarc.Write(tree, in.Keys, blockSize)
}
