package model

import (
	"strings"
	"time"
)

// BotMarker prefixes every comment the bot publishes. Webhook normalizers
// use it to recognize and skip the bot's own notes.
const BotMarker = "🤖 reviewloop:"

// ResolvedMarker in a reply's text marks its discussion as resolved.
const ResolvedMarker = "[RESOLVED]"

// CommentType classifies a merge request comment.
type CommentType string

const (
	CommentGeneral CommentType = "general"
	CommentFile    CommentType = "file"
	CommentReply   CommentType = "reply"
)

// CommentPosition anchors a file comment to a diff location.
type CommentPosition struct {
	NewPath string `json:"new_path"`
	OldPath string `json:"old_path,omitempty"`
	NewLine int    `json:"new_line"`
	OldLine int    `json:"old_line,omitempty"`
}

// Comment is a single comment on a merge request. Comments form a forest:
// a comment with an empty ReplyTo is a root, everything else links to its
// parent by id.
type Comment struct {
	ID        string           `json:"comment_id"`
	MRID      string           `json:"mr_id"`
	Author    string           `json:"author"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
	Type      CommentType      `json:"comment_type"`
	ReplyTo   string           `json:"reply_to,omitempty"`
	Position  *CommentPosition `json:"position,omitempty"`
}

// DiscussionStatus is the derived state of a discussion.
type DiscussionStatus string

const (
	DiscussionActive   DiscussionStatus = "active"
	DiscussionResolved DiscussionStatus = "resolved"
)

// Discussion is a materialized view over one reply tree: the root comment
// plus its depth-bounded, time-sorted replies.
type Discussion struct {
	ID        string           `json:"discussion_id"`
	MRID      string           `json:"mr_id"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Status    DiscussionStatus `json:"status"`
	Resolved  bool             `json:"resolved"`
	Root      *Comment         `json:"root_comment"`
	Comments  []*Comment       `json:"comments"`
}

// NewDiscussion builds a Discussion from a root comment and its already
// collected replies. Resolution is derived from the replies' text.
func NewDiscussion(root *Comment, replies []*Comment) *Discussion {
	all := make([]*Comment, 0, len(replies)+1)
	all = append(all, root)
	all = append(all, replies...)

	resolved := false
	for _, c := range replies {
		if strings.Contains(c.Content, ResolvedMarker) {
			resolved = true
			break
		}
	}

	updated := root.CreatedAt
	for _, c := range all {
		if c.CreatedAt.After(updated) {
			updated = c.CreatedAt
		}
	}

	title := root.Content
	if len(title) > 50 {
		title = title[:50] + "..."
	}

	status := DiscussionActive
	if resolved {
		status = DiscussionResolved
	}

	return &Discussion{
		ID:        "discussion_" + root.ID,
		MRID:      root.MRID,
		Title:     title,
		CreatedAt: root.CreatedAt,
		UpdatedAt: updated,
		Status:    status,
		Resolved:  resolved,
		Root:      root,
		Comments:  all,
	}
}
