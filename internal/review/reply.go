package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/discussion"
	"github.com/reviewloop/reviewloop/internal/metrics"
	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
	"github.com/reviewloop/reviewloop/internal/quota"
)

// ErrDiscussionNotFound is returned when a reply targets a comment absent
// from the reconstructed discussion set. It aborts only that reply flow.
var ErrDiscussionNotFound = errors.New("discussion not found for comment")

// ErrReplyQuotaExceeded is returned when a comment has used up its reply
// budget.
var ErrReplyQuotaExceeded = errors.New("comment reply quota exceeded")

// ReplyHandler generates AI answers for replies inside review discussions.
type ReplyHandler struct {
	botName    string
	client     ai.Client
	builder    *discussion.Builder
	ledger     *quota.Ledger
	maxReplies int
	language   string
}

// NewReplyHandler creates a reply handler.
func NewReplyHandler(botName string, client ai.Client, builder *discussion.Builder, ledger *quota.Ledger, maxReplies int, language string) *ReplyHandler {
	return &ReplyHandler{
		botName:    botName,
		client:     client,
		builder:    builder,
		ledger:     ledger,
		maxReplies: maxReplies,
		language:   language,
	}
}

// Reply generates an answer to the comment using its discussion as context.
// The second return value reports whether the answer declares the issue
// resolved.
func (h *ReplyHandler) Reply(ctx context.Context, gitClient provider.Client, mr *model.MergeRequest, comment *model.Comment) (*model.Comment, bool, error) {
	if !h.ledger.CheckAndIncrement(ctx, quota.CommentRepliesKey(comment.ID), h.maxReplies) {
		metrics.QuotaRejected()
		return nil, false, fmt.Errorf("%w: comment %s already has %d replies", ErrReplyQuotaExceeded, comment.ID, h.maxReplies)
	}

	d, err := h.discussionFor(ctx, gitClient, mr, comment.ID)
	if err != nil {
		return nil, false, err
	}

	messages := []ai.Message{
		{Role: "system", Content: replySystemPrompt},
		{Role: "user", Content: h.buildContext(mr, d)},
	}
	response, err := h.client.Chat(ctx, messages, "")
	if err != nil {
		return nil, false, fmt.Errorf("generating reply: %w", err)
	}

	reply := &model.Comment{
		ID:        "bot_reply_" + uuid.NewString(),
		MRID:      mr.MRID,
		Author:    h.botName,
		Content:   response,
		CreatedAt: time.Now().UTC(),
		Type:      model.CommentReply,
		ReplyTo:   comment.ID,
	}
	return reply, strings.Contains(response, model.ResolvedMarker), nil
}

// discussionFor fetches the merge request's comments and locates the
// discussion containing the comment.
func (h *ReplyHandler) discussionFor(ctx context.Context, gitClient provider.Client, mr *model.MergeRequest, commentID string) (*model.Discussion, error) {
	comments, err := gitClient.ListComments(ctx, mr.Owner, mr.Repo, mr.MRID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}

	for _, d := range h.builder.Build(comments) {
		for _, c := range d.Comments {
			if c.ID == commentID {
				return d, nil
			}
		}
	}
	log.Printf("comment %s not found in any discussion of mr %s/%s!%s", commentID, mr.Owner, mr.Repo, mr.MRID)
	return nil, fmt.Errorf("%w: %s", ErrDiscussionNotFound, commentID)
}

const replySystemPrompt = `You are a code review assistant. Please provide helpful responses based on the context.
If you think the issue is resolved, add '[RESOLVED]' at the end of your response with a brief explanation.
If the issue is not resolved, continue providing constructive suggestions.
Please ensure your response is professional, clear, and constructive.`

// buildContext renders the merge request metadata, the diff the discussion
// is anchored to, and the discussion history into one prompt.
func (h *ReplyHandler) buildContext(mr *model.MergeRequest, d *model.Discussion) string {
	var b strings.Builder
	b.WriteString("This is a code review discussion.\n\n")
	b.WriteString("Merge Request Information:\n")
	fmt.Fprintf(&b, "Title: %s\n", mr.Title)
	fmt.Fprintf(&b, "Description: %s\n", mr.Description)

	if fd := h.discussionFile(mr, d); fd != nil {
		b.WriteString("Related File Changes:\n")
		fmt.Fprintf(&b, "File: %s TO %s\n", fd.OldPath, fd.NewPath)
		if fd.DiffContent != "" {
			fmt.Fprintf(&b, "```diff\n%s\n```\n", fd.DiffContent)
		}
	} else {
		log.Printf("no file diff matches discussion %s", d.ID)
	}

	b.WriteString("\nCurrent Discussion History:\n")
	for _, c := range d.Comments {
		fmt.Fprintf(&b, "%s: %s\n", c.Author, c.Content)
	}

	b.WriteString("\nBased on the above context:\n")
	b.WriteString("1. If the issue is resolved, add [RESOLVED] at the end with the reason\n")
	b.WriteString("2. If the issue is not resolved, continue providing suggestions\n")
	b.WriteString("3. Provide a direct response without explanations, focus on the current discussion, and be concise.\n")
	if h.language != "" {
		fmt.Fprintf(&b, "Respond in %s.\n", h.language)
	}
	return b.String()
}

// discussionFile finds the diff the discussion's root comment is anchored
// to, if any.
func (h *ReplyHandler) discussionFile(mr *model.MergeRequest, d *model.Discussion) *model.FileDiff {
	if d.Root == nil || d.Root.Position == nil || d.Root.Position.NewPath == "" {
		return nil
	}
	for i := range mr.FileDiffs {
		if mr.FileDiffs[i].NewPath == d.Root.Position.NewPath {
			return &mr.FileDiffs[i]
		}
	}
	return nil
}
