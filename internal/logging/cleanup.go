package logging

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Cleaner removes log files older than the retention period.
type Cleaner struct {
	baseDir       string
	retentionDays int
}

// NewCleaner creates a new Cleaner with the specified base directory and retention period.
func NewCleaner(baseDir string, retentionDays int) *Cleaner {
	return &Cleaner{baseDir: baseDir, retentionDays: retentionDays}
}

// Cleanup removes log files older than the retention period and prunes
// directories left empty. Returns the number of files deleted.
func (c *Cleaner) Cleanup() (int, error) {
	threshold := time.Now().AddDate(0, 0, -c.retentionDays)
	var deleted int

	err := filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if os.Remove(path) == nil {
				deleted++
			}
		}
		return nil
	})

	c.pruneEmptyDirs()

	return deleted, err
}

// pruneEmptyDirs removes empty directories under the base directory.
// Removing a directory may make its parent empty, so it loops until a
// pass removes nothing.
func (c *Cleaner) pruneEmptyDirs() {
	for {
		removedAny := false
		filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() || path == c.baseDir {
				return nil
			}
			entries, _ := os.ReadDir(path)
			if len(entries) == 0 {
				if os.Remove(path) == nil {
					removedAny = true
				}
			}
			return nil
		})
		if !removedAny {
			break
		}
	}
}
