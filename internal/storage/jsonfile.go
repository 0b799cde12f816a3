// Package storage holds the low-level persistence helpers: atomic JSON
// snapshot files for the scheduler state and the SQLite opener for the
// inventory database.
package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotExist is returned by LoadJSON when the snapshot file is absent.
// A fresh deployment starts with no state; callers treat this as empty.
var ErrNotExist = errors.New("storage: snapshot does not exist")

// SaveJSON writes v as indented JSON via a temp file and rename, so a
// crash mid-write never leaves a truncated snapshot behind.
func SaveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// LoadJSON reads a snapshot written by SaveJSON into v.
func LoadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExist
		}
		return err
	}
	return json.Unmarshal(b, v)
}
