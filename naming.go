package interop

import (
	"sort"
	"strings"
)

const (
	// GlueSuffix is the file suffix of generated glue descriptors.
	GlueSuffix = ".js"
	// ArtifactSuffix replaces GlueSuffix to name the binary artifact.
	ArtifactSuffix = "_bg.wasm"
)

// DefaultArtifactNamer implements the wasm-bindgen layout: dir/name.js -> dir/name_bg.wasm.
var DefaultArtifactNamer = SuffixNamer(GlueSuffix, ArtifactSuffix)

// SuffixNamer replaces a trailing from suffix with to.
// Query and fragment parts of a URL are kept as they are.
func SuffixNamer(from, to string) ArtifactNamer {
	return func(descriptor string) (string, error) {
		base, rest := splitLocation(descriptor)
		if from == "" || !strings.HasSuffix(base, from) {
			return "", NamingError{Descriptor: descriptor, Reason: "missing suffix " + from}
		}
		return strings.TrimSuffix(base, from) + to + rest, nil
	}
}

// splitLocation separates the path part from a trailing ?query or #fragment.
func splitLocation(s string) (string, string) {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// SuffixesNamer replaces whichever of the from suffixes ends the path with to.
// The longest matching suffix wins.
func SuffixesNamer(to string, from ...string) ArtifactNamer {
	suffixes := make([]string, 0, len(from))
	for _, f := range from {
		if f != "" {
			suffixes = append(suffixes, f)
		}
	}
	sort.SliceStable(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })

	return func(descriptor string) (string, error) {
		base, rest := splitLocation(descriptor)
		for _, suffix := range suffixes {
			if strings.HasSuffix(base, suffix) {
				return strings.TrimSuffix(base, suffix) + to + rest, nil
			}
		}
		return "", NamingError{Descriptor: descriptor, Reason: "missing suffix " + strings.Join(suffixes, ", ")}
	}
}
