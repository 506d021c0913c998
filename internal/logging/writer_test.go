package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriter_Create(t *testing.T) {
	baseDir := t.TempDir()
	writer := NewWriter(baseDir)

	rl := ReviewLog{
		TaskID:    "task-123",
		Owner:     "owner",
		Repo:      "repo",
		MRID:      "42",
		Kind:      "review",
		Timestamp: time.Now(),
	}

	logPath, err := writer.Create(rl)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file should exist")
	}

	expectedDir := filepath.Join(baseDir, "owner", "repo", "42")
	if !strings.HasPrefix(logPath, expectedDir) {
		t.Errorf("Log path %q should be under %q", logPath, expectedDir)
	}
}

func TestWriter_Create_FilenameFormat(t *testing.T) {
	baseDir := t.TempDir()
	writer := NewWriter(baseDir)

	rl := ReviewLog{
		TaskID:    "task-abc",
		Owner:     "myorg",
		Repo:      "myrepo",
		MRID:      "123",
		Kind:      "reply",
		Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}

	logPath, err := writer.Create(rl)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	filename := filepath.Base(logPath)
	if !strings.Contains(filename, "reply") {
		t.Errorf("Filename %q should contain the task kind", filename)
	}
	if !strings.Contains(filename, "task-abc") {
		t.Errorf("Filename %q should contain the task ID", filename)
	}
	if !strings.HasPrefix(filename, "2026-01-15T10-30-00") {
		t.Errorf("Filename %q should start with the timestamp", filename)
	}
}

func TestWriter_Append(t *testing.T) {
	baseDir := t.TempDir()
	writer := NewWriter(baseDir)

	logPath, err := writer.Create(ReviewLog{
		TaskID: "task-1", Owner: "owner", Repo: "repo", MRID: "1",
		Kind: "review", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	writer.Append(logPath, []byte("line 1\n"))
	writer.Appendf(logPath, "line %d", 2)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	expected := "line 1\nline 2\n"
	if string(content) != expected {
		t.Errorf("Content = %q, want %q", string(content), expected)
	}
}

func TestWriter_Append_NonexistentFile(t *testing.T) {
	writer := NewWriter(t.TempDir())

	if err := writer.Append("/nonexistent/path/file.log", []byte("data")); err == nil {
		t.Error("Append() to a nonexistent file should error")
	}
}
