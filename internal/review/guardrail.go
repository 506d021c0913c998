// Package review contains the orchestration engine: size guardrails, AI
// review pipelines, the orchestrating bot, and the comment reply flow.
package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reviewloop/reviewloop/internal/model"
)

// Guardrail bounds what reaches the completion backend. It runs before any
// AI call.
type Guardrail struct {
	botName  string
	maxFiles int
	maxLines int
	maxBytes int
}

// NewGuardrail creates a guardrail with the given thresholds.
func NewGuardrail(botName string, maxFiles, maxLines, maxBytes int) *Guardrail {
	return &Guardrail{
		botName:  botName,
		maxFiles: maxFiles,
		maxLines: maxLines,
		maxBytes: maxBytes,
	}
}

// CheckSize returns a terminal result when the merge request has too many
// files to review. A nil result means the review may proceed.
func (g *Guardrail) CheckSize(mr *model.MergeRequest) *model.ReviewResult {
	if len(mr.FileDiffs) <= g.maxFiles {
		return nil
	}
	return &model.ReviewResult{
		MRID: mr.MRID,
		Summary: fmt.Sprintf(
			"⚠️ This merge request changes %d files, more than the limit of %d.\nSplitting it into smaller merge requests will make it reviewable.",
			len(mr.FileDiffs), g.maxFiles),
		OverallStatus: model.ReviewCommented,
		ReviewDate:    time.Now().UTC(),
	}
}

// PartitionFiles splits the diffs into oversized and normal. A file is
// oversized when its diff exceeds the line count or the byte size threshold;
// both thresholds are exclusive, so a diff exactly at the limit is normal.
// Files with an empty diff are excluded from both sets.
func (g *Guardrail) PartitionFiles(mr *model.MergeRequest) (oversized, normal []model.FileDiff) {
	for _, fd := range mr.FileDiffs {
		if fd.DiffContent == "" {
			continue
		}
		if fd.LineCount() > g.maxLines || fd.ByteSize() > g.maxBytes {
			oversized = append(oversized, fd)
		} else {
			normal = append(normal, fd)
		}
	}
	return oversized, normal
}

// OversizedFileComment builds the warning comment for one oversized file,
// anchored at line 1 of the new path.
func (g *Guardrail) OversizedFileComment(mr *model.MergeRequest, fd model.FileDiff) *model.Comment {
	return &model.Comment{
		ID:     "large_file_" + uuid.NewString(),
		MRID:   mr.MRID,
		Author: g.botName,
		Content: fmt.Sprintf(
			"⚠️ This file's diff has %d lines, more than the limit of %d.\nIt was skipped by the automated review; consider splitting it up.",
			fd.LineCount(), g.maxLines),
		CreatedAt: time.Now().UTC(),
		Type:      model.CommentFile,
		Position: &model.CommentPosition{
			NewPath: fd.NewPath,
			OldPath: fd.OldPath,
			NewLine: 1,
		},
	}
}

// OversizedSummary builds the rolled-up summary line for all skipped files.
func (g *Guardrail) OversizedSummary(oversized []model.FileDiff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following files exceed the per-file diff limit (%d lines / %d bytes) and were skipped:\n", g.maxLines, g.maxBytes)
	for _, fd := range oversized {
		fmt.Fprintf(&b, "- %s: %d lines\n", fd.NewPath, fd.LineCount())
	}
	b.WriteString("\nConsider splitting large files to keep changes reviewable.")
	return b.String()
}
