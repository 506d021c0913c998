package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReviewLog identifies the review or reply task a log file belongs to.
type ReviewLog struct {
	TaskID    string
	Owner     string
	Repo      string
	MRID      string
	Kind      string // "review" or "reply"
	Timestamp time.Time
}

// Writer manages log files organized by repository and merge request.
type Writer struct {
	baseDir string
}

// NewWriter creates a new Writer with the specified base directory.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Create creates a new log file for the given task and returns the path.
// Directory structure: baseDir/owner/repo/mrID/timestamp-kind-taskID.log
func (w *Writer) Create(rl ReviewLog) (string, error) {
	dir := filepath.Join(w.baseDir, rl.Owner, rl.Repo, rl.MRID)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s-%s.log",
		rl.Timestamp.Format("2006-01-02T15-04-05"),
		rl.Kind,
		rl.TaskID,
	)

	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating log file: %w", err)
	}
	f.Close()

	return path, nil
}

// Append writes data to the specified log file.
func (w *Writer) Append(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// Appendf formats a line and appends it to the specified log file.
func (w *Writer) Appendf(path, format string, args ...any) error {
	return w.Append(path, []byte(fmt.Sprintf(format+"\n", args...)))
}
