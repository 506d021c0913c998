package model

import (
	"strings"
	"time"
)

// MergeRequestState is the lifecycle state of a merge request.
type MergeRequestState string

const (
	StateOpen      MergeRequestState = "open"
	StateMerged    MergeRequestState = "merged"
	StateClosed    MergeRequestState = "closed"
	StateReviewing MergeRequestState = "reviewing"
)

// ChangeType describes how a file was changed in a merge request.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeDelete ChangeType = "delete"
	ChangeModify ChangeType = "modify"
)

// FileDiff is one changed file in a merge request. DiffContent holds the
// unified-diff fragment for the file; its line and byte counts are what the
// size guardrail measures.
type FileDiff struct {
	NewPath     string     `json:"new_path"`
	OldPath     string     `json:"old_path,omitempty"`
	ChangeType  ChangeType `json:"change_type"`
	DiffContent string     `json:"diff_content"`
}

// LineCount returns the number of lines in the diff fragment.
func (d *FileDiff) LineCount() int {
	if d.DiffContent == "" {
		return 0
	}
	return strings.Count(d.DiffContent, "\n") + 1
}

// ByteSize returns the size of the diff fragment in bytes.
func (d *FileDiff) ByteSize() int {
	return len(d.DiffContent)
}

// MergeRequest is an immutable snapshot of a merge/pull request, fetched
// once per operation and never cached across calls.
type MergeRequest struct {
	MRID          string            `json:"mr_id"`
	Owner         string            `json:"owner"`
	Repo          string            `json:"repo"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Author        string            `json:"author"`
	State         MergeRequestState `json:"state"`
	SourceBranch  string            `json:"source_branch"`
	TargetBranch  string            `json:"target_branch"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	FileDiffs     []FileDiff        `json:"file_diffs"`
	Labels        []string          `json:"labels,omitempty"`
	Reviewers     []string          `json:"reviewers,omitempty"`
	CommentsCount int               `json:"comments_count"`
}
