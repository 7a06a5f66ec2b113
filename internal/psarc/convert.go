package psarc

import "strings"

// ConvertPath swaps a PSARC entry path between its PC and Mac forms:
// audio/mac <-> audio/windows and bin/macos <-> bin/generic.
func ConvertPath(path string) string {
	switch {
	case strings.Contains(path, "audio/mac"):
		return strings.Replace(path, "audio/mac", "audio/windows", 1)
	case strings.Contains(path, "audio/windows"):
		return strings.Replace(path, "audio/windows", "audio/mac", 1)
	case strings.Contains(path, "bin/macos"):
		return strings.Replace(path, "bin/macos", "bin/generic", 1)
	case strings.Contains(path, "bin/generic"):
		return strings.Replace(path, "bin/generic", "bin/macos", 1)
	default:
		return path
	}
}

// ConvertAggregateGraphToken swaps the macos/dx9 platform token used inside
// aggregate-graph entries.
func ConvertAggregateGraphToken(s string) string {
	switch {
	case strings.Contains(s, "macos"):
		return strings.ReplaceAll(s, "macos", "dx9")
	case strings.Contains(s, "dx9"):
		return strings.ReplaceAll(s, "dx9", "macos")
	default:
		return s
	}
}

// ConvertFileNameSuffix flips the default-platform filename suffix
// convention (_m for Mac, _p for PC).
func ConvertFileNameSuffix(name string) string {
	switch {
	case strings.HasSuffix(name, "_m"):
		return strings.TrimSuffix(name, "_m") + "_p"
	case strings.HasSuffix(name, "_p"):
		return strings.TrimSuffix(name, "_p") + "_m"
	default:
		return name
	}
}

// Convert flips every file in an extracted PSARC tree between PC and Mac
// conventions: path, aggregate-graph tokens (only applied to entries whose
// path ends in .nt), and the default-platform filename suffix.
func Convert(files map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(files))
	for path, data := range files {
		newPath := ConvertPath(path)
		newPath = ConvertFileNameSuffix(newPath)
		if strings.HasSuffix(path, ".nt") {
			data = []byte(ConvertAggregateGraphToken(string(data)))
		}
		out[newPath] = data
	}
	return out
}
