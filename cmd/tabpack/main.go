package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/halfnote/tabpack/internal/chartimport"
	"github.com/halfnote/tabpack/internal/config"
	"github.com/halfnote/tabpack/internal/midipreview"
	"github.com/halfnote/tabpack/internal/midisync"
	"github.com/halfnote/tabpack/internal/psarc"
	"github.com/halfnote/tabpack/internal/score"
	"github.com/halfnote/tabpack/internal/sng"
	"github.com/halfnote/tabpack/internal/sngcompile"
	"github.com/halfnote/tabpack/internal/timeline"
	"github.com/halfnote/tabpack/internal/tones"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "unpack":
		err = cmdUnpack(os.Args[2:])
	case "pack":
		err = cmdPack(os.Args[2:])
	case "convert":
		err = cmdConvert(os.Args[2:])
	case "xml2sng":
		err = cmdXML2SNG(os.Args[2:])
	case "gpa2xml":
		err = cmdGPA2XML(os.Args[2:])
	case "import-chart":
		err = cmdImportChart(os.Args[2:])
	case "import-midi-sync":
		err = cmdImportMIDISync(os.Args[2:])
	case "preview-midi":
		err = cmdPreviewMIDI(os.Args[2:])
	case "tones":
		err = cmdTones(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Printf("%v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  unpack            extract a PSARC archive to a directory
  pack              build a PSARC archive from a directory
  convert           flip an extracted PSARC tree between PC and Mac conventions
  xml2sng           compile a score.gpif file into an SNG file
  gpa2xml           dump a playalong file's referenced GPX score as JSON
  import-chart      convert a .chart file into a compiled SNG file
  import-midi-sync  extract a SyncMap from a MIDI BEAT track
  preview-midi      render a score.gpif track's timeline to a Standard MIDI File
  tones             extract tone presets from a PSARC archive or profile database

Run '%s <command> -h' for command-specific flags.
`, os.Args[0], os.Args[0])
}

func loadKeyFile(path string) (config.Keys, error) {
	var keys config.Keys
	if path == "" {
		return keys, fmt.Errorf("a -keys file is required for any command touching encrypted PSARC or profile content")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return keys, fmt.Errorf("reading key file: %w", err)
	}
	var raw struct {
		ArchiveKey string `json:"archiveKey"`
		ArchiveIV  string `json:"archiveIV"`
		MacSNGKey  string `json:"macSngKey"`
		PCSNGKey   string `json:"pcSngKey"`
		ProfileKey string `json:"profileKey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return keys, fmt.Errorf("parsing key file: %w", err)
	}
	fields := []struct {
		hexStr string
		out    []byte
	}{
		{raw.ArchiveKey, keys.ArchiveKey[:]},
		{raw.ArchiveIV, keys.ArchiveIV[:]},
		{raw.MacSNGKey, keys.MacSNGKey[:]},
		{raw.PCSNGKey, keys.PCSNGKey[:]},
		{raw.ProfileKey, keys.ProfileKey[:]},
	}
	for _, f := range fields {
		b, err := hex.DecodeString(f.hexStr)
		if err != nil {
			return keys, fmt.Errorf("key file has a non-hex field: %w", err)
		}
		if len(b) != len(f.out) {
			return keys, fmt.Errorf("key file field has wrong length: got %d bytes, want %d", len(b), len(f.out))
		}
		copy(f.out, b)
	}
	return keys, nil
}

func cmdUnpack(args []string) error {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	keyFile := fs.String("keys", "", "path to a JSON key file (see loadKeyFile)")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: unpack -keys <keyfile> <archive.psarc> <out-dir>")
	}

	keys, err := loadKeyFile(*keyFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	files, err := psarc.Read(data, keys, fs.Arg(0))
	if err != nil {
		return err
	}
	return writeTree(fs.Arg(1), files)
}

func cmdPack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	keyFile := fs.String("keys", "", "path to a JSON key file")
	blockSize := fs.Uint("block-size", 65536, "PSARC zlib block-chain chunk size")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: pack -keys <keyfile> <in-dir> <archive.psarc>")
	}

	keys, err := loadKeyFile(*keyFile)
	if err != nil {
		return err
	}
	files, err := readTree(fs.Arg(0))
	if err != nil {
		return err
	}
	out, err := psarc.Write(files, keys, uint32(*blockSize))
	if err != nil {
		return err
	}
	return os.WriteFile(fs.Arg(1), out, 0o644)
}

func cmdConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: convert <in-dir> <out-dir>")
	}
	files, err := readTree(fs.Arg(0))
	if err != nil {
		return err
	}
	return writeTree(fs.Arg(1), psarc.Convert(files))
}

func cmdXML2SNG(args []string) error {
	fs := flag.NewFlagSet("xml2sng", flag.ExitOnError)
	offset := fs.Float64("offset", score.DefaultOffset, "global bar-to-time offset in seconds")
	track := fs.String("track", "", "track id to compile; defaults to the first track")
	songLength := fs.Float64("length", 0, "song length in seconds; 0 derives it from the last ebeat")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: xml2sng -track <id> <score.gpif> <out.sng>")
	}

	gpif, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	s, err := score.ParseGpif(gpif, fs.Arg(0))
	if err != nil {
		return err
	}

	trackID := *track
	if trackID == "" && len(s.Tracks) > 0 {
		trackID = s.Tracks[0].ID
	}

	b2t := score.NewBarToTime(nil, *offset)
	tl, err := timeline.Build(s, trackID, b2t, nil)
	if err != nil {
		return err
	}

	length := *songLength
	if length == 0 && len(tl.Ebeats) > 0 {
		length = tl.Ebeats[len(tl.Ebeats)-1].Time
	}

	song := sngcompile.Compile(tl, findTrack(s, trackID), length, *offset)

	out, err := os.Create(fs.Arg(1))
	if err != nil {
		return err
	}
	defer out.Close()
	return sng.Encode(out, song, fs.Arg(1))
}

func findTrack(s *score.Score, id string) score.Track {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t
		}
	}
	if len(s.Tracks) > 0 {
		return s.Tracks[0]
	}
	return score.Track{}
}

func cmdGPA2XML(args []string) error {
	fs := flag.NewFlagSet("gpa2xml", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: gpa2xml <playalong.xml> [out.json]")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	pa, err := score.LoadPlayalong(data, fs.Arg(0))
	if err != nil {
		return err
	}

	gpxData, err := os.ReadFile(pa.ScoreURL)
	if err != nil {
		return fmt.Errorf("reading referenced GPX score %q: %w", pa.ScoreURL, err)
	}
	s, err := score.LoadGPX(gpxData, pa.ScoreURL)
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		_, err = os.Stdout.Write(jsonData)
		return err
	}
	return os.WriteFile(fs.Arg(1), jsonData, 0o644)
}

func cmdImportChart(args []string) error {
	fs := flag.NewFlagSet("import-chart", flag.ExitOnError)
	trackName := fs.String("track", "", "chart track to import; defaults to the hardest Single track present, then the hardest DoubleBass track, then any track")
	offset := fs.Float64("offset", score.DefaultOffset, "global bar-to-time offset in seconds")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: import-chart -track <name> <notes.chart> <out.sng>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	s, syncMap, err := chartimport.Import(data, *trackName, fs.Arg(0))
	if err != nil {
		return err
	}

	b2t := score.NewBarToTime(syncMap, *offset)
	trackID := ""
	if len(s.Tracks) > 0 {
		trackID = s.Tracks[0].ID
	}
	tl, err := timeline.Build(s, trackID, b2t, nil)
	if err != nil {
		return err
	}

	var length float64
	if len(tl.Ebeats) > 0 {
		length = tl.Ebeats[len(tl.Ebeats)-1].Time
	}
	song := sngcompile.Compile(tl, findTrack(s, trackID), length, *offset)

	out, err := os.Create(fs.Arg(1))
	if err != nil {
		return err
	}
	defer out.Close()
	return sng.Encode(out, song, fs.Arg(1))
}

func cmdImportMIDISync(args []string) error {
	fs := flag.NewFlagSet("import-midi-sync", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: import-midi-sync <beats.mid> [out.json]")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	syncMap, err := midisync.Import(data, fs.Arg(0))
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(syncMap, "", "  ")
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		_, err = os.Stdout.Write(jsonData)
		return err
	}
	return os.WriteFile(fs.Arg(1), jsonData, 0o644)
}

func cmdPreviewMIDI(args []string) error {
	fs := flag.NewFlagSet("preview-midi", flag.ExitOnError)
	trackID := fs.String("track", "", "track id to render; defaults to the first track")
	offset := fs.Float64("offset", score.DefaultOffset, "global bar-to-time offset in seconds")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: preview-midi -track <id> <score.gpif> <out.mid>")
	}

	gpif, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	s, err := score.ParseGpif(gpif, fs.Arg(0))
	if err != nil {
		return err
	}

	id := *trackID
	if id == "" && len(s.Tracks) > 0 {
		id = s.Tracks[0].ID
	}

	b2t := score.NewBarToTime(nil, *offset)
	tl, err := timeline.Build(s, id, b2t, nil)
	if err != nil {
		return err
	}

	out, err := os.Create(fs.Arg(1))
	if err != nil {
		return err
	}
	defer out.Close()

	t := findTrack(s, id)
	return midipreview.Render(tl, t.Tuning, t.Bass, out)
}

func cmdTones(args []string) error {
	fs := flag.NewFlagSet("tones", flag.ExitOnError)
	keyFile := fs.String("keys", "", "path to a JSON key file")
	profile := fs.Bool("profile", false, "treat the input as a profile database instead of a PSARC archive")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: tones [-profile] -keys <keyfile> <archive.psarc|profile.dat> [out.json]")
	}

	keys, err := loadKeyFile(*keyFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	var found []tones.Tone
	if *profile {
		found, err = tones.FromProfile(data, keys.ProfileKey, fs.Arg(0))
	} else {
		var files map[string][]byte
		files, err = psarc.Read(data, keys, fs.Arg(0))
		if err == nil {
			found, err = tones.FromPSARC(files)
		}
	}
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(found, "", "  ")
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		_, err = os.Stdout.Write(jsonData)
		return err
	}
	return os.WriteFile(fs.Arg(1), jsonData, 0o644)
}

// writeTree and readTree move a PSARC payload map to and from a plain
// directory tree, for the unpack/pack/convert commands.
func writeTree(dir string, files map[string][]byte) error {
	for path, data := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func readTree(dir string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	return out, err
}
