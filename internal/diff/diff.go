// Package diff computes structural differences between two snapshots
// and applies them back. For any snapshots B and T,
// Apply(B, Compute(B, T)) reproduces T's content exactly.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/lazyyq/vscode-sync-settings/internal/snapshot"
)

// Kind classifies one patch entry.
type Kind string

const (
	Added    Kind = "added"
	Removed  Kind = "removed"
	Modified Kind = "modified"
)

// extensionsSegment is the first path segment of extension entries.
const extensionsSegment = "extensions"

// Entry is one structural change. Path segments start with the document
// path (or "extensions"), followed by keys into the parsed document.
type Entry struct {
	Path []string
	Kind Kind
	Old  any
	New  any
}

// PathString joins the entry path for display and ordering.
func (e Entry) PathString() string {
	return strings.Join(e.Path, "/")
}

func (e Entry) String() string {
	switch e.Kind {
	case Added:
		return fmt.Sprintf("+ %s: %s", e.PathString(), render(e.New))
	case Removed:
		return fmt.Sprintf("- %s: %s", e.PathString(), render(e.Old))
	default:
		return fmt.Sprintf("~ %s: %s -> %s", e.PathString(), render(e.Old), render(e.New))
	}
}

func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Patch is an ordered list of entries, sorted lexicographically by path
// so identical inputs always render identically.
type Patch struct {
	Entries []Entry
}

// Empty reports whether the patch contains no changes.
func (p Patch) Empty() bool { return len(p.Entries) == 0 }

func (p Patch) String() string {
	lines := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Options tune how snapshots are compared.
type Options struct {
	// TrackVersions keys the extension set by id@version instead of id.
	TrackVersions bool
}

// Compute returns the patch that transforms base into target.
func Compute(base, target snapshot.Snapshot, opts Options) Patch {
	var entries []Entry

	for _, docPath := range unionKeys(base.Documents, target.Documents) {
		baseDoc, inBase := base.Documents[docPath]
		targetDoc, inTarget := target.Documents[docPath]
		switch {
		case !inBase:
			entries = append(entries, Entry{Path: []string{docPath}, Kind: Added, New: map[string]any(targetDoc)})
		case !inTarget:
			entries = append(entries, Entry{Path: []string{docPath}, Kind: Removed, Old: map[string]any(baseDoc)})
		default:
			entries = diffMaps([]string{docPath}, baseDoc, targetDoc, entries)
		}
	}

	entries = append(entries, diffExtensions(base.Extensions, target.Extensions, opts.TrackVersions)...)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PathString() < entries[j].PathString()
	})
	return Patch{Entries: entries}
}

// diffMaps recurses into nested objects so the patch describes the
// narrowest changed keys.
func diffMaps(path []string, base, target map[string]any, entries []Entry) []Entry {
	for _, key := range unionKeys(base, target) {
		keyPath := appendPath(path, key)
		baseVal, inBase := base[key]
		targetVal, inTarget := target[key]
		switch {
		case !inBase:
			entries = append(entries, Entry{Path: keyPath, Kind: Added, New: targetVal})
		case !inTarget:
			entries = append(entries, Entry{Path: keyPath, Kind: Removed, Old: baseVal})
		default:
			baseMap, baseIsMap := asMap(baseVal)
			targetMap, targetIsMap := asMap(targetVal)
			if baseIsMap && targetIsMap {
				entries = diffMaps(keyPath, baseMap, targetMap, entries)
			} else if !reflect.DeepEqual(baseVal, targetVal) {
				entries = append(entries, Entry{Path: keyPath, Kind: Modified, Old: baseVal, New: targetVal})
			}
		}
	}
	return entries
}

func diffExtensions(base, target []snapshot.Extension, trackVersions bool) []Entry {
	baseByKey := extensionIndex(base, trackVersions)
	targetByKey := extensionIndex(target, trackVersions)

	var entries []Entry
	for key, ext := range targetByKey {
		old, ok := baseByKey[key]
		switch {
		case !ok:
			entries = append(entries, Entry{Path: []string{extensionsSegment, key}, Kind: Added, New: ext})
		case old != ext:
			// Same identity, different recorded version (untracked mode).
			entries = append(entries, Entry{Path: []string{extensionsSegment, key}, Kind: Modified, Old: old, New: ext})
		}
	}
	for key, ext := range baseByKey {
		if _, ok := targetByKey[key]; !ok {
			entries = append(entries, Entry{Path: []string{extensionsSegment, key}, Kind: Removed, Old: ext})
		}
	}
	return entries
}

func extensionIndex(exts []snapshot.Extension, trackVersions bool) map[string]snapshot.Extension {
	idx := make(map[string]snapshot.Extension, len(exts))
	for _, e := range exts {
		idx[e.Key(trackVersions)] = e
	}
	return idx
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		seen[k] = true
		keys = append(keys, k)
	}
	for k := range b {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case snapshot.Document:
		return m, true
	default:
		return nil, false
	}
}

func appendPath(path []string, key string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = key
	return out
}
