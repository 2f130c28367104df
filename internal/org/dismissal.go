package org

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// DismissalStore is the persisted set of session keys hidden by an operator.
// Entries are only ever added. All mutations go through one mutex so
// concurrent dismissals cannot lose updates.
type DismissalStore struct {
	path string
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewDismissalStore creates an empty store backed by the JSON file at path.
// Call Load to read existing entries.
func NewDismissalStore(path string) *DismissalStore {
	return &DismissalStore{path: path, keys: make(map[string]struct{})}
}

// Path returns the backing document path.
func (d *DismissalStore) Path() string {
	return d.path
}

// Load replaces the in-memory set with the document on disk. A missing file
// is an empty set. On a parse error the current set is kept.
func (d *DismissalStore) Load() error {
	data, err := os.ReadFile(d.path) // #nosec G304 -- configured dismissal document
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var list []string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("parse dismissal set: %w", err)
		}
	}

	keys := make(map[string]struct{}, len(list))
	for _, k := range list {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	d.mu.Lock()
	d.keys = keys
	d.mu.Unlock()
	return nil
}

// Contains reports whether key has been dismissed.
func (d *DismissalStore) Contains(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.keys[key]
	return ok
}

// Keys returns the dismissed keys, sorted.
func (d *DismissalStore) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.keys)
}

// Dismiss adds key to the set and persists it. added is false when the key
// was already present. If the write fails the in-memory set is unchanged.
func (d *DismissalStore) Dismiss(key string) (added bool, err error) {
	if key == "" {
		return false, fmt.Errorf("dismiss: empty session key")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		return false, nil
	}

	next := make(map[string]struct{}, len(d.keys)+1)
	for k := range d.keys {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}

	if err := d.write(sortedKeys(next)); err != nil {
		return false, fmt.Errorf("persist dismissal set: %w", err)
	}
	d.keys = next
	return true, nil
}

// write replaces the document atomically via a temp file in the same
// directory.
func (d *DismissalStore) write(keys []string) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dismissed-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, d.path)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
