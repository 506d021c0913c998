package model

import "time"

// ReviewStatus is the terminal status of one orchestration run.
type ReviewStatus string

const (
	ReviewCommented ReviewStatus = "commented"
	ReviewError     ReviewStatus = "error"
)

// PipelineResult is the output of a single review pass. It is aggregated
// into a ReviewResult and never persisted.
type PipelineResult struct {
	Comments []*Comment `json:"comments"`
	Summary  string     `json:"summary"`
}

// ReviewResult is the terminal artifact of one review run. It is not
// retried automatically; a fresh webhook delivery is the recovery path.
type ReviewResult struct {
	MRID          string       `json:"mr_id"`
	Summary       string       `json:"summary"`
	OverallStatus ReviewStatus `json:"overall_status"`
	ReviewDate    time.Time    `json:"review_date"`
}
