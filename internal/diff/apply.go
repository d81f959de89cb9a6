package diff

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/lazyyq/vscode-sync-settings/internal/snapshot"
)

// Apply produces the snapshot obtained by applying patch to base. Every
// entry is validated against base before anything is changed; on any
// mismatch the returned snapshot is base itself, untouched.
func Apply(base snapshot.Snapshot, patch Patch, opts Options) (snapshot.Snapshot, error) {
	for _, e := range patch.Entries {
		if err := validateEntry(base, e, opts); err != nil {
			return base, err
		}
	}

	out := snapshot.Clone(base)
	for _, e := range patch.Entries {
		applyEntry(&out, e, opts)
	}
	return out, nil
}

func validateEntry(base snapshot.Snapshot, e Entry, opts Options) error {
	if len(e.Path) == 0 {
		return fmt.Errorf("patch entry with empty path")
	}
	if e.Path[0] == extensionsSegment {
		return validateExtensionEntry(base, e, opts)
	}
	return validateDocumentEntry(base, e)
}

func validateExtensionEntry(base snapshot.Snapshot, e Entry, opts Options) error {
	if len(e.Path) != 2 {
		return fmt.Errorf("extension entry %s: malformed path", e.PathString())
	}
	idx := extensionIndex(base.Extensions, opts.TrackVersions)
	old, present := idx[e.Path[1]]
	switch e.Kind {
	case Added:
		if present {
			return fmt.Errorf("extension entry %s: already present", e.PathString())
		}
		if _, ok := e.New.(snapshot.Extension); !ok {
			return fmt.Errorf("extension entry %s: value is not an extension", e.PathString())
		}
	case Removed, Modified:
		if !present {
			return fmt.Errorf("extension entry %s: not present", e.PathString())
		}
		if oldExt, ok := e.Old.(snapshot.Extension); !ok || oldExt != old {
			return fmt.Errorf("extension entry %s: base does not match patch", e.PathString())
		}
		if e.Kind == Modified {
			if _, ok := e.New.(snapshot.Extension); !ok {
				return fmt.Errorf("extension entry %s: value is not an extension", e.PathString())
			}
		}
	default:
		return fmt.Errorf("extension entry %s: unknown kind %q", e.PathString(), e.Kind)
	}
	return nil
}

func validateDocumentEntry(base snapshot.Snapshot, e Entry) error {
	doc, hasDoc := base.Documents[e.Path[0]]

	// Whole-document entry.
	if len(e.Path) == 1 {
		switch e.Kind {
		case Added:
			if hasDoc {
				return fmt.Errorf("document %s: already present", e.Path[0])
			}
			if _, ok := asMap(e.New); !ok {
				return fmt.Errorf("document %s: value is not an object", e.Path[0])
			}
		case Removed, Modified:
			if !hasDoc {
				return fmt.Errorf("document %s: not present", e.Path[0])
			}
			oldMap, ok := asMap(e.Old)
			if !ok || !reflect.DeepEqual(map[string]any(doc), oldMap) {
				return fmt.Errorf("document %s: base does not match patch", e.Path[0])
			}
			if e.Kind == Modified {
				if _, ok := asMap(e.New); !ok {
					return fmt.Errorf("document %s: value is not an object", e.Path[0])
				}
			}
		default:
			return fmt.Errorf("document %s: unknown kind %q", e.Path[0], e.Kind)
		}
		return nil
	}

	// Key entry inside a document. Added entries may create intermediate
	// objects; everything else needs the existing value to match.
	parent, val, found := lookup(doc, hasDoc, e.Path[1:])
	switch e.Kind {
	case Added:
		if found {
			return fmt.Errorf("entry %s: already present", e.PathString())
		}
		// A missing intermediate map is fine for Added, but an
		// intermediate non-map value is a conflict.
		if parent == nil && !intermediatesCreatable(doc, hasDoc, e.Path[1:]) {
			return fmt.Errorf("entry %s: conflicting value in path", e.PathString())
		}
	case Removed, Modified:
		if !found {
			return fmt.Errorf("entry %s: not present", e.PathString())
		}
		if !reflect.DeepEqual(val, e.Old) {
			return fmt.Errorf("entry %s: base does not match patch", e.PathString())
		}
	default:
		return fmt.Errorf("entry %s: unknown kind %q", e.PathString(), e.Kind)
	}
	return nil
}

// lookup walks keys into doc. parent is the map holding the final key
// (nil when any intermediate is missing or not a map), val/found report
// the leaf.
func lookup(doc snapshot.Document, hasDoc bool, keys []string) (parent map[string]any, val any, found bool) {
	if !hasDoc {
		return nil, nil, false
	}
	cur := map[string]any(doc)
	for i := 0; i < len(keys)-1; i++ {
		next, ok := cur[keys[i]]
		if !ok {
			return nil, nil, false
		}
		m, ok := asMap(next)
		if !ok {
			return nil, nil, false
		}
		cur = m
	}
	val, found = cur[keys[len(keys)-1]]
	return cur, val, found
}

// intermediatesCreatable reports whether the missing part of the key
// path can be created as nested objects (no scalar stands in the way).
func intermediatesCreatable(doc snapshot.Document, hasDoc bool, keys []string) bool {
	if !hasDoc {
		return true
	}
	cur := map[string]any(doc)
	for i := 0; i < len(keys)-1; i++ {
		next, ok := cur[keys[i]]
		if !ok {
			return true
		}
		m, ok := asMap(next)
		if !ok {
			return false
		}
		cur = m
	}
	return true
}

func applyEntry(snap *snapshot.Snapshot, e Entry, opts Options) {
	if e.Path[0] == extensionsSegment {
		applyExtensionEntry(snap, e, opts)
		return
	}

	if len(e.Path) == 1 {
		switch e.Kind {
		case Added, Modified:
			m, _ := asMap(e.New)
			snap.Documents[e.Path[0]] = snapshot.Document(deepCopyMap(m))
		case Removed:
			delete(snap.Documents, e.Path[0])
		}
		return
	}

	doc, ok := snap.Documents[e.Path[0]]
	if !ok {
		doc = snapshot.Document{}
		snap.Documents[e.Path[0]] = doc
	}

	keys := e.Path[1:]
	cur := map[string]any(doc)
	for i := 0; i < len(keys)-1; i++ {
		next, ok := cur[keys[i]]
		if ok {
			if m, isMap := asMap(next); isMap {
				cur = m
				continue
			}
		}
		created := map[string]any{}
		cur[keys[i]] = created
		cur = created
	}

	last := keys[len(keys)-1]
	switch e.Kind {
	case Added, Modified:
		cur[last] = deepCopy(e.New)
	case Removed:
		delete(cur, last)
	}
}

func applyExtensionEntry(snap *snapshot.Snapshot, e Entry, opts Options) {
	key := e.Path[1]
	switch e.Kind {
	case Added:
		snap.Extensions = append(snap.Extensions, e.New.(snapshot.Extension))
	case Removed:
		snap.Extensions = removeExtension(snap.Extensions, key, opts.TrackVersions)
	case Modified:
		snap.Extensions = removeExtension(snap.Extensions, key, opts.TrackVersions)
		snap.Extensions = append(snap.Extensions, e.New.(snapshot.Extension))
	}
	sort.Slice(snap.Extensions, func(i, j int) bool {
		if snap.Extensions[i].ID != snap.Extensions[j].ID {
			return snap.Extensions[i].ID < snap.Extensions[j].ID
		}
		return snap.Extensions[i].Version < snap.Extensions[j].Version
	})
}

func removeExtension(exts []snapshot.Extension, key string, trackVersions bool) []snapshot.Extension {
	out := exts[:0]
	for _, e := range exts {
		if e.Key(trackVersions) != key {
			out = append(out, e)
		}
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case snapshot.Document:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopy(inner)
		}
		return out
	default:
		return v
	}
}
