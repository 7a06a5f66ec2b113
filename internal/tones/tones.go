// Package tones extracts guitar-amp tone presets from a built PSARC (its
// manifest JSON entries) or from a profile database (AES-ECB + zlib), for
// reuse across new DLC packages.
package tones

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/halfnote/tabpack/internal/errs"
	"github.com/halfnote/tabpack/internal/psarc"
)

// Tone is an opaque tone preset, compared by deep equality for dedup.
type Tone map[string]interface{}

func appendIfUnseen(tones []Tone, candidate Tone) []Tone {
	for _, t := range tones {
		if reflect.DeepEqual(t, candidate) {
			return tones
		}
	}
	return append(tones, candidate)
}

type manifestDoc struct {
	Entries map[string]struct {
		Attributes struct {
			Tones []Tone `json:"Tones"`
		} `json:"Attributes"`
	} `json:"Entries"`
}

// FromPSARC walks every manifest JSON entry in an extracted PSARC tree and
// collects Entries.<id>.Attributes.Tones, deduplicated by deep equality.
func FromPSARC(files map[string][]byte) ([]Tone, error) {
	var tones []Tone
	for path, data := range files {
		if !strings.HasSuffix(path, ".json") {
			continue
		}
		var doc manifestDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			continue // not every .json entry is a manifest with this shape
		}
		for _, entry := range doc.Entries {
			for _, t := range entry.Attributes.Tones {
				tones = appendIfUnseen(tones, t)
			}
		}
	}
	return tones, nil
}

var tonePresetKeys = []string{"Tones", "BassTones", "DemoTones", "CustomTones"}

// FromProfile decrypts a profile database (psarc.DecryptProfile) and
// collects tones from its top-level Tones/BassTones/DemoTones/CustomTones
// arrays, skipping null entries.
func FromProfile(data []byte, key [32]byte, path string) ([]Tone, error) {
	plain, err := psarc.DecryptProfile(data, key, path)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, errs.Wrap(errs.MalformedContainer, path, "profile body is not a JSON object", err)
	}

	var tones []Tone
	for _, key := range tonePresetKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var rawTones []json.RawMessage
		if err := json.Unmarshal(raw, &rawTones); err != nil {
			continue
		}
		for _, rt := range rawTones {
			if string(rt) == "null" {
				continue
			}
			var t Tone
			if err := json.Unmarshal(rt, &t); err != nil {
				continue
			}
			tones = appendIfUnseen(tones, t)
		}
	}
	return tones, nil
}
