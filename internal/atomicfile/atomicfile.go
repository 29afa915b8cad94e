// Package atomicfile provides the write-to-temp-then-rename primitive every
// on-disk write in nyarudb relies on so a crash or concurrent reader never
// observes a partially written shard, side-car or index file.
//
// © 2025 nyarudb authors. MIT License.
package atomicfile

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// Write writes data to path atomically: it is first written to a sibling
// temp file, fsynced, then renamed over path. perm is applied to the temp
// file before rename so the final file carries the requested permissions.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", filepath.Base(path), rand.Int63()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: create temp: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: close temp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicfile: rename: %w", err)
	}
	return nil
}
