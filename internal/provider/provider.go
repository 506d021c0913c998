// Package provider defines the git hosting interface the review engine
// talks through. Implementations live in the github and gitlab
// subpackages.
package provider

import (
	"context"
	"errors"

	"github.com/reviewloop/reviewloop/internal/model"
)

// ErrNotFound is returned when a merge request or comment does not exist.
var ErrNotFound = errors.New("not found")

// CommentDraft is a comment to publish. Exactly one publish mode applies:
// a non-empty ReplyTo posts the draft into the parent comment's thread, a
// non-nil Position anchors a new file comment, and otherwise the draft
// becomes a general merge request comment.
type CommentDraft struct {
	Content  string
	Position *model.CommentPosition
	ReplyTo  string
}

// Client is a git hosting provider. Merge request identifiers are the
// provider-native numbers carried as strings, matching normalized events.
type Client interface {
	// Name returns the provider name (github, gitlab).
	Name() string

	// GetMergeRequest fetches a merge request snapshot including its file
	// diffs.
	GetMergeRequest(ctx context.Context, owner, repo, mrID string) (*model.MergeRequest, error)

	// ListComments fetches all human-visible comments on a merge request,
	// with reply links populated where the provider threads them.
	ListComments(ctx context.Context, owner, repo, mrID string) ([]*model.Comment, error)

	// GetComment fetches a single comment by id.
	GetComment(ctx context.Context, owner, repo, mrID, commentID string) (*model.Comment, error)

	// CreateComment publishes a draft and returns the created comment.
	CreateComment(ctx context.Context, owner, repo, mrID string, draft CommentDraft) (*model.Comment, error)

	// ResolveThread marks the review thread containing the comment as
	// resolved on the provider side.
	ResolveThread(ctx context.Context, owner, repo, mrID, commentID string) error
}
