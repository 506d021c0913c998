package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAgedLog(t *testing.T, dir, name string, ageDays int) string {
	t.Helper()
	os.MkdirAll(dir, 0755)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("log"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if ageDays > 0 {
		stamp := time.Now().AddDate(0, 0, -ageDays)
		os.Chtimes(path, stamp, stamp)
	}
	return path
}

func TestCleanup_OldLogs(t *testing.T) {
	baseDir := t.TempDir()

	oldFile := writeAgedLog(t, filepath.Join(baseDir, "owner", "repo", "1"), "old.log", 60)
	recentFile := writeAgedLog(t, filepath.Join(baseDir, "owner", "repo", "2"), "recent.log", 0)

	cleaner := NewCleaner(baseDir, 30)
	deleted, err := cleaner.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("Old file should be deleted")
	}
	if _, err := os.Stat(recentFile); os.IsNotExist(err) {
		t.Error("Recent file should still exist")
	}
}

func TestCleanup_PrunesEmptyDirectories(t *testing.T) {
	baseDir := t.TempDir()

	mrDir := filepath.Join(baseDir, "owner", "repo", "1")
	writeAgedLog(t, mrDir, "old.log", 60)

	cleaner := NewCleaner(baseDir, 30)
	if _, err := cleaner.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	// The whole owner/repo/mr chain is empty now and should be gone.
	if _, err := os.Stat(filepath.Join(baseDir, "owner")); !os.IsNotExist(err) {
		t.Error("Empty directory chain should be deleted")
	}
}

func TestCleanup_NoOldFiles(t *testing.T) {
	baseDir := t.TempDir()
	recentFile := writeAgedLog(t, filepath.Join(baseDir, "owner", "repo", "1"), "recent.log", 0)

	cleaner := NewCleaner(baseDir, 30)
	deleted, err := cleaner.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	if _, err := os.Stat(recentFile); os.IsNotExist(err) {
		t.Error("Recent file should still exist")
	}
}

func TestCleanup_NonexistentBaseDir(t *testing.T) {
	cleaner := NewCleaner("/nonexistent/path", 30)
	deleted, err := cleaner.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v, want nil", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestCleanup_RetentionBoundary(t *testing.T) {
	baseDir := t.TempDir()
	dir := filepath.Join(baseDir, "owner", "repo", "1")
	writeAgedLog(t, dir, "test.log", 10)

	// 7-day retention deletes a 10-day-old file.
	deleted, err := NewCleaner(baseDir, 7).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (7-day retention)", deleted)
	}

	// 30-day retention keeps it.
	writeAgedLog(t, dir, "test.log", 10)
	deleted, err = NewCleaner(baseDir, 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 (30-day retention)", deleted)
	}
}
