// Package config holds the small set of knobs this pipeline's components
// share: platform crypto keys, the default sync offset, PSARC block size,
// and the difficulty-ratio constants. Values are set by NewDefault.
// cmd/tabpack uses only Keys from this package; its -offset and
// -block-size flags carry their own defaults.
package config

// Keys holds the fixed-per-game-revision crypto material PSARC archives and
// profile databases are encrypted with. Rather than baking these in as hex
// literals, this pipeline requires the caller to supply them (e.g. loaded
// from a keyfile outside version control) since they are specific to one
// shipped game binary, not to this tool.
type Keys struct {
	ArchiveKey [32]byte
	ArchiveIV  [16]byte
	MacSNGKey  [32]byte
	PCSNGKey   [32]byte
	ProfileKey [32]byte
}

// Config is the full set of pipeline knobs.
type Config struct {
	Keys Keys

	// Offset is the global bar-to-time offset in seconds; -10.0 by default.
	Offset float64

	// BlockSize is the PSARC zlib block-chain chunk size.
	BlockSize uint32

	// SongDiffEasy/Med/Hard seed the manifest difficulty hook; each
	// defaults to a flat 0.5 and is left open for tuning per song.
	SongDiffEasy float64
	SongDiffMed  float64
	SongDiffHard float64
}

// NewDefault returns a Config with every field at its default value except
// Keys, which the caller must populate before touching encrypted PSARC or
// profile content.
func NewDefault() *Config {
	return &Config{
		Offset:       -10.0,
		BlockSize:    65536,
		SongDiffEasy: 0.5,
		SongDiffMed:  0.5,
		SongDiffHard: 0.5,
	}
}
