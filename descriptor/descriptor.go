// Package descriptor parses descriptor units: the generated JS glue that
// wasm-bindgen emits next to a binary artifact, or a JSON/YAML manifest that
// lists the same information for hosts without a JS toolchain.
package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoInitializer is returned when glue has no default export.
var ErrNoInitializer = errors.New("descriptor has no default initializer export")

// Descriptor is the parsed shape of a descriptor unit.
type Descriptor struct {
	// Name defaults to the descriptor file name without extension.
	Name string `json:"name" yaml:"name"`
	// Exports lists named bindings in declaration order.
	// An empty list means every function exported by the artifact.
	Exports []string `json:"exports,omitempty" yaml:"exports,omitempty"`
}

// UnsupportedFormatError means the descriptor extension is not recognized.
type UnsupportedFormatError struct {
	Name string
}

func (e UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported descriptor format: %q", e.Name)
}

// Parse chooses a parser from the extension of name.
func Parse(name string, src []byte) (Descriptor, error) {
	var (
		d   Descriptor
		err error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".js", ".mjs":
		d, err = ParseGlue(src)
	case ".json":
		d, err = ParseManifestJSON(src)
	case ".yaml", ".yml":
		d, err = ParseManifestYAML(src)
	default:
		return Descriptor{}, UnsupportedFormatError{Name: name}
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor %s: %w", name, err)
	}
	if d.Name == "" {
		d.Name = stem(name)
	}
	return d, nil
}

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)

	exportFunc    = regexp.MustCompile(`(?m)^\s*export\s+(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`)
	exportDecl    = regexp.MustCompile(`(?m)^\s*export\s+(?:const|let|var|class)\s+([A-Za-z_$][\w$]*)`)
	exportList    = regexp.MustCompile(`export\s*\{([^}]*)\}`)
	exportDefault = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
)

// glueInternals are bindings wasm-bindgen adds to every glue file that do
// not correspond to artifact exports.
var glueInternals = map[string]bool{
	"initSync":   true,
	"__wbg_init": true,
}

// ParseGlue scans ES module glue for its export declarations.
func ParseGlue(src []byte) (Descriptor, error) {
	text := blockComment.ReplaceAllString(string(src), "")
	text = lineComment.ReplaceAllString(text, "")

	var (
		names   []string
		seen    = make(map[string]bool)
		hasInit = exportDefault.MatchString(text)
	)
	add := func(name string) {
		if name == "" || seen[name] || glueInternals[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	type match struct {
		at   int
		name string
	}
	var found []match
	for _, re := range []*regexp.Regexp{exportFunc, exportDecl} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			found = append(found, match{at: m[2], name: text[m[2]:m[3]]})
		}
	}
	for _, m := range exportList.FindAllStringSubmatchIndex(text, -1) {
		at := m[2]
		for _, item := range strings.Split(text[m[2]:m[3]], ",") {
			local, exported := splitAlias(item)
			if exported == "default" {
				hasInit = true
				continue
			}
			if local == "" {
				continue
			}
			found = append(found, match{at: at, name: exported})
			at++
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].at < found[j].at })
	for _, m := range found {
		add(m.name)
	}

	if !hasInit {
		return Descriptor{}, ErrNoInitializer
	}
	return Descriptor{Exports: names}, nil
}

// splitAlias splits "a as b" into ("a", "b"); a bare "a" yields ("a", "a").
func splitAlias(item string) (string, string) {
	fields := strings.Fields(item)
	switch {
	case len(fields) == 1:
		return fields[0], fields[0]
	case len(fields) == 3 && fields[1] == "as":
		return fields[0], fields[2]
	default:
		return "", ""
	}
}

// ParseManifestJSON decodes a JSON manifest.
func ParseManifestJSON(src []byte) (Descriptor, error) {
	var d Descriptor
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, err
	}
	return d.normalize(), nil
}

// ParseManifestYAML decodes a YAML manifest.
func ParseManifestYAML(src []byte) (Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, err
	}
	return d.normalize(), nil
}

func (d Descriptor) normalize() Descriptor {
	seen := make(map[string]bool, len(d.Exports))
	exports := make([]string, 0, len(d.Exports))
	for _, name := range d.Exports {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		exports = append(exports, name)
	}
	d.Exports = exports
	return d
}

func stem(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
