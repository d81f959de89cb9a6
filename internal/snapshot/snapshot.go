// Package snapshot captures and writes the set of editor files under
// sync: settings.json, keybindings.json, snippets/*.json and the
// extension list. A Snapshot is immutable once captured.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"
)

// ExtensionsFile is the extension list file kept in profile directories.
const ExtensionsFile = "extensions.json"

// Document is a parsed JSON object from one synced file.
type Document map[string]any

// Extension identifies one installed extension.
type Extension struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// Key returns the identity used for set comparison. Version is part of
// the key only when trackVersions is on.
func (e Extension) Key(trackVersions bool) string {
	if trackVersions && e.Version != "" {
		return e.ID + "@" + e.Version
	}
	return e.ID
}

// Snapshot is a point-in-time capture of synced state. Documents are
// keyed by path relative to the captured directory (settings.json,
// keybindings.json, snippets/<name>.json).
type Snapshot struct {
	TakenAt    time.Time
	Documents  map[string]Document
	Extensions []Extension
}

// MalformedDocumentError reports a file that exists but cannot be
// parsed. Capture fails atomically: no partially built Snapshot is ever
// returned.
type MalformedDocumentError struct {
	Path string
	Err  error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %s: %v", e.Path, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// Option configures Capture and Write.
type Option func(*options)

type options struct {
	extensions     []Extension
	extensionsFile bool
}

// WithExtensions supplies a live extension list (from the editor CLI)
// instead of reading extensions.json from the directory.
func WithExtensions(exts []Extension) Option {
	return func(o *options) { o.extensions = append([]Extension(nil), exts...) }
}

// WithExtensionsFile makes Write also emit extensions.json. Used for
// profile directories in the repository; never for the live editor dir,
// where the installed list is the source of truth.
func WithExtensionsFile() Option {
	return func(o *options) { o.extensionsFile = true }
}

// Capture reads the synced files under dir into a Snapshot. Missing
// files are absent documents, not errors; any unparsable file aborts
// with MalformedDocumentError.
func Capture(dir string, opts ...Option) (Snapshot, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	snap := Snapshot{
		TakenAt:   time.Now(),
		Documents: make(map[string]Document),
	}

	for _, name := range []string{"settings.json", "keybindings.json"} {
		if err := readDocument(dir, name, snap.Documents); err != nil {
			return Snapshot{}, err
		}
	}

	snippets := filepath.Join(dir, "snippets")
	entries, err := os.ReadDir(snippets)
	if err != nil && !os.IsNotExist(err) {
		return Snapshot{}, fmt.Errorf("reading snippets dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := readDocument(dir, filepath.Join("snippets", e.Name()), snap.Documents); err != nil {
			return Snapshot{}, err
		}
	}

	if o.extensions != nil {
		snap.Extensions = o.extensions
	} else {
		exts, err := readExtensionsFile(dir)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Extensions = exts
	}
	sortExtensions(snap.Extensions)

	return snap, nil
}

func readDocument(dir, rel string, into map[string]Document) error {
	path := filepath.Join(dir, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", rel, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &MalformedDocumentError{Path: rel, Err: err}
	}
	// Relative paths use forward slashes in the snapshot regardless of
	// platform so diff output stays stable.
	into[filepath.ToSlash(rel)] = doc
	return nil
}

func readExtensionsFile(dir string) ([]Extension, error) {
	data, err := os.ReadFile(filepath.Join(dir, ExtensionsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ExtensionsFile, err)
	}
	var exts []Extension
	if err := json.Unmarshal(data, &exts); err != nil {
		return nil, &MalformedDocumentError{Path: ExtensionsFile, Err: err}
	}
	return exts, nil
}

// Write materializes the snapshot's documents under dir. Each file is
// written to a temp path and renamed into place, and managed files not
// present in the snapshot are removed. The rename makes each file
// transition atomic; a reader racing a multi-file write can observe a
// mix of old and new files, but never a truncated one.
func Write(dir string, snap Snapshot, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Join(dir, "snippets"), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	for _, rel := range documentPaths(snap) {
		data, err := json.MarshalIndent(snap.Documents[rel], "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", rel, err)
		}
		if err := writeFileAtomic(filepath.Join(dir, filepath.FromSlash(rel)), append(data, '\n')); err != nil {
			return err
		}
	}

	if o.extensionsFile {
		exts := snap.Extensions
		if exts == nil {
			exts = []Extension{}
		}
		data, err := json.MarshalIndent(exts, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", ExtensionsFile, err)
		}
		if err := writeFileAtomic(filepath.Join(dir, ExtensionsFile), append(data, '\n')); err != nil {
			return err
		}
	}

	return removeStale(dir, snap)
}

// removeStale deletes managed files that the snapshot no longer contains.
func removeStale(dir string, snap Snapshot) error {
	for _, name := range []string{"settings.json", "keybindings.json"} {
		if _, ok := snap.Documents[name]; !ok {
			if err := removeIfExists(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	entries, err := os.ReadDir(filepath.Join(dir, "snippets"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading snippets dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rel := "snippets/" + e.Name()
		if _, ok := snap.Documents[rel]; !ok {
			if err := removeIfExists(filepath.Join(dir, "snippets", e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// documentPaths returns the snapshot's document paths sorted.
func documentPaths(snap Snapshot) []string {
	keys := make([]string, 0, len(snap.Documents))
	for k := range snap.Documents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortExtensions(exts []Extension) {
	sort.Slice(exts, func(i, j int) bool {
		if exts[i].ID != exts[j].ID {
			return exts[i].ID < exts[j].ID
		}
		return exts[i].Version < exts[j].Version
	})
}

// ContentEqual reports whether two snapshots carry the same documents
// and extensions. TakenAt is ignored.
func ContentEqual(a, b Snapshot) bool {
	if len(a.Documents) != len(b.Documents) {
		return false
	}
	for k, v := range a.Documents {
		if !reflect.DeepEqual(v, b.Documents[k]) {
			return false
		}
	}
	if len(a.Extensions) != len(b.Extensions) {
		return false
	}
	for i := range a.Extensions {
		if a.Extensions[i] != b.Extensions[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy whose documents can be mutated without
// touching the original.
func Clone(snap Snapshot) Snapshot {
	out := Snapshot{
		TakenAt:   snap.TakenAt,
		Documents: make(map[string]Document, len(snap.Documents)),
	}
	for k, v := range snap.Documents {
		out.Documents[k] = cloneDocument(v)
	}
	out.Extensions = append([]Extension(nil), snap.Extensions...)
	return out
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}
