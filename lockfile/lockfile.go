// Package lockfile implements octrans.lock, a ledger of MD5 checksums of
// the payload sent for each category. It enables incremental runs: a
// category whose source text has not changed since its last successful
// translation is not sent to the API again.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "octrans.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// LockFile represents the octrans.lock file structure.
type LockFile struct {
	Version   int                       `yaml:"version"`
	Checksums map[string]map[int]string `yaml:"checksums"` // "src->dst" -> category_id -> md5

	mu    sync.Mutex `yaml:"-"`
	path  string     `yaml:"-"`
	dirty bool       `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock file at path.
// Returns an empty lock file if the file doesn't exist.
func Load(path string) (*LockFile, error) {
	if path == "" {
		path = LockFileName
	}
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[int]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if lf.Version > Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d", path, lf.Version)
	}
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[int]string)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	lf.dirty = false
	return nil
}

// Modified reports whether checksums changed since the last Load or Save.
func (lf *LockFile) Modified() bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.dirty
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// PairKey builds the key of a language pair, e.g. "2->3".
func PairKey(sourceLangID, destLangID int) string {
	return fmt.Sprintf("%d->%d", sourceLangID, destLangID)
}

// IsChanged reports whether the payload of a category differs from the one
// recorded for the pair. A category never recorded is changed.
func (lf *LockFile) IsChanged(pair string, categoryID int, payload string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	ids, ok := lf.Checksums[pair]
	if !ok {
		return true
	}
	oldHash, ok := ids[categoryID]
	if !ok {
		return true
	}
	return oldHash != Hash(payload)
}

// Update records the checksum of a payload after a successful write.
func (lf *LockFile) Update(pair string, categoryID int, payload string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Checksums[pair] == nil {
		lf.Checksums[pair] = make(map[int]string)
	}
	hash := Hash(payload)
	if lf.Checksums[pair][categoryID] != hash {
		lf.Checksums[pair][categoryID] = hash
		lf.dirty = true
	}
}

// Remove forgets one category of a pair, forcing its next translation.
func (lf *LockFile) Remove(pair string, categoryID int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	ids := lf.Checksums[pair]
	if _, ok := ids[categoryID]; !ok {
		return
	}
	delete(ids, categoryID)
	lf.dirty = true
	if len(ids) == 0 {
		delete(lf.Checksums, pair)
	}
}

// Prune drops the entries of a pair whose category is not in current, so
// deleted categories do not accumulate. It returns the number removed.
func (lf *LockFile) Prune(pair string, current []int) int {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	ids := lf.Checksums[pair]
	if ids == nil {
		return 0
	}

	valid := make(map[int]bool, len(current))
	for _, id := range current {
		valid[id] = true
	}

	removed := 0
	for id := range ids {
		if !valid[id] {
			delete(ids, id)
			removed++
		}
	}
	if removed > 0 {
		lf.dirty = true
	}
	return removed
}

// RemovePair removes all checksums for a language pair and returns how
// many categories it held.
func (lf *LockFile) RemovePair(pair string) int {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	ids, ok := lf.Checksums[pair]
	if !ok {
		return 0
	}
	delete(lf.Checksums, pair)
	lf.dirty = true
	return len(ids)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of pairs and total categories in the lock file.
func (lf *LockFile) Stats() (pairs, categories int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	pairs = len(lf.Checksums)
	for _, m := range lf.Checksums {
		categories += len(m)
	}
	return
}

// Pairs returns the sorted list of pair keys.
func (lf *LockFile) Pairs() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	pairs := make([]string, 0, len(lf.Checksums))
	for p := range lf.Checksums {
		pairs = append(pairs, p)
	}
	slices.Sort(pairs)
	return pairs
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	pairs, categories := lf.Stats()
	if pairs == 0 {
		return "empty"
	}

	var parts []string
	for _, p := range lf.Pairs() {
		lf.mu.Lock()
		n := len(lf.Checksums[p])
		lf.mu.Unlock()
		parts = append(parts, fmt.Sprintf("%s: %d categories", p, n))
	}
	return fmt.Sprintf("%d pairs, %d categories (%s)", pairs, categories, strings.Join(parts, ", "))
}
