// Package gitlab implements the provider client for GitLab. Comments map
// onto GitLab discussions: the first note of a discussion is the root and
// later notes carry a reply link to it.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xanzy/go-gitlab"

	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
)

// Client implements provider.Client for GitLab.
type Client struct {
	client *gitlab.Client
	token  string
}

// Option configures the GitLab client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.client, _ = gitlab.NewClient(c.token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	}
}

// New creates a new GitLab client.
func New(token string, opts ...Option) *Client {
	client, _ := gitlab.NewClient(token)
	c := &Client{client: client, token: token}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "gitlab"
}

// projectPath encodes owner/repo for the GitLab API.
func projectPath(owner, repo string) string {
	return url.PathEscape(owner + "/" + repo)
}

func parseIID(mrID string) (int, error) {
	n, err := strconv.Atoi(mrID)
	if err != nil {
		return 0, fmt.Errorf("invalid merge request iid %q: %w", mrID, err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	var respErr *gitlab.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
}

func mapState(state string) model.MergeRequestState {
	switch state {
	case "opened":
		return model.StateOpen
	case "merged":
		return model.StateMerged
	default:
		return model.StateClosed
	}
}

// GetMergeRequest fetches a merge request snapshot including file diffs.
func (c *Client) GetMergeRequest(ctx context.Context, owner, repo, mrID string) (*model.MergeRequest, error) {
	iid, err := parseIID(mrID)
	if err != nil {
		return nil, err
	}

	mr, _, err := c.client.MergeRequests.GetMergeRequest(projectPath(owner, repo), iid, nil, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("merge request %s/%s!%d: %w", owner, repo, iid, provider.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching merge request: %w", err)
	}

	result := &model.MergeRequest{
		MRID:          mrID,
		Owner:         owner,
		Repo:          repo,
		Title:         mr.Title,
		Description:   mr.Description,
		State:         mapState(mr.State),
		SourceBranch:  mr.SourceBranch,
		TargetBranch:  mr.TargetBranch,
		Labels:        mr.Labels,
		CommentsCount: mr.UserNotesCount,
	}
	if mr.Author != nil {
		result.Author = mr.Author.Username
	}
	if mr.CreatedAt != nil {
		result.CreatedAt = *mr.CreatedAt
	}
	if mr.UpdatedAt != nil {
		result.UpdatedAt = *mr.UpdatedAt
	}
	for _, r := range mr.Reviewers {
		result.Reviewers = append(result.Reviewers, r.Username)
	}

	changes, _, err := c.client.MergeRequests.GetMergeRequestChanges(projectPath(owner, repo), iid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching merge request changes: %w", err)
	}
	for _, ch := range changes.Changes {
		fd := model.FileDiff{
			NewPath:     ch.NewPath,
			OldPath:     ch.OldPath,
			ChangeType:  model.ChangeModify,
			DiffContent: ch.Diff,
		}
		if ch.NewFile {
			fd.ChangeType = model.ChangeAdd
			fd.OldPath = ""
		} else if ch.DeletedFile {
			fd.ChangeType = model.ChangeDelete
		}
		result.FileDiffs = append(result.FileDiffs, fd)
	}

	return result, nil
}

func noteToModel(mrID string, n *gitlab.Note, replyTo string) *model.Comment {
	cm := &model.Comment{
		ID:      strconv.Itoa(n.ID),
		MRID:    mrID,
		Author:  n.Author.Username,
		Content: n.Body,
		Type:    model.CommentGeneral,
		ReplyTo: replyTo,
	}
	if n.CreatedAt != nil {
		cm.CreatedAt = *n.CreatedAt
	}
	if n.UpdatedAt != nil {
		cm.UpdatedAt = *n.UpdatedAt
	}
	if replyTo != "" {
		cm.Type = model.CommentReply
	} else if n.Position != nil {
		cm.Type = model.CommentFile
	}
	if n.Position != nil {
		cm.Position = &model.CommentPosition{
			NewPath: n.Position.NewPath,
			OldPath: n.Position.OldPath,
			NewLine: n.Position.NewLine,
			OldLine: n.Position.OldLine,
		}
	}
	return cm
}

func (c *Client) listDiscussions(ctx context.Context, owner, repo string, iid int) ([]*gitlab.Discussion, error) {
	var all []*gitlab.Discussion
	opts := &gitlab.ListMergeRequestDiscussionsOptions{PerPage: 100}
	for {
		discussions, resp, err := c.client.Discussions.ListMergeRequestDiscussions(projectPath(owner, repo), iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing discussions: %w", err)
		}
		all = append(all, discussions...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListComments fetches all non-system notes on a merge request. Notes after
// the first within a discussion become replies to the first.
func (c *Client) ListComments(ctx context.Context, owner, repo, mrID string) ([]*model.Comment, error) {
	iid, err := parseIID(mrID)
	if err != nil {
		return nil, err
	}

	discussions, err := c.listDiscussions(ctx, owner, repo, iid)
	if err != nil {
		return nil, err
	}

	var result []*model.Comment
	for _, d := range discussions {
		rootID := ""
		for _, n := range d.Notes {
			if n.System {
				continue
			}
			result = append(result, noteToModel(mrID, n, rootID))
			if rootID == "" {
				rootID = strconv.Itoa(n.ID)
			}
		}
	}
	return result, nil
}

// GetComment fetches a single note by id.
func (c *Client) GetComment(ctx context.Context, owner, repo, mrID, commentID string) (*model.Comment, error) {
	iid, err := parseIID(mrID)
	if err != nil {
		return nil, err
	}
	noteID, err := strconv.Atoi(commentID)
	if err != nil {
		return nil, fmt.Errorf("invalid note id %q: %w", commentID, err)
	}

	note, _, err := c.client.Notes.GetMergeRequestNote(projectPath(owner, repo), iid, noteID, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("note %s: %w", commentID, provider.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching note: %w", err)
	}
	return noteToModel(mrID, note, ""), nil
}

// findDiscussion returns the id of the discussion containing the note.
func (c *Client) findDiscussion(ctx context.Context, owner, repo string, iid, noteID int) (string, error) {
	discussions, err := c.listDiscussions(ctx, owner, repo, iid)
	if err != nil {
		return "", err
	}
	for _, d := range discussions {
		for _, n := range d.Notes {
			if n.ID == noteID {
				return d.ID, nil
			}
		}
	}
	return "", fmt.Errorf("discussion for note %d: %w", noteID, provider.ErrNotFound)
}

// CreateComment publishes a draft as a discussion reply, a positioned
// discussion, or a plain note.
func (c *Client) CreateComment(ctx context.Context, owner, repo, mrID string, draft provider.CommentDraft) (*model.Comment, error) {
	iid, err := parseIID(mrID)
	if err != nil {
		return nil, err
	}

	if draft.ReplyTo != "" {
		parentID, err := strconv.Atoi(draft.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("invalid parent note id %q: %w", draft.ReplyTo, err)
		}
		discussionID, err := c.findDiscussion(ctx, owner, repo, iid, parentID)
		if err != nil {
			return nil, err
		}
		note, _, err := c.client.Discussions.AddMergeRequestDiscussionNote(projectPath(owner, repo), iid, discussionID, &gitlab.AddMergeRequestDiscussionNoteOptions{
			Body: gitlab.Ptr(draft.Content),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("posting reply: %w", err)
		}
		return noteToModel(mrID, note, draft.ReplyTo), nil
	}

	if draft.Position != nil {
		// Positioned discussions need the diff refs of the latest version.
		versions, _, err := c.client.MergeRequests.GetMergeRequestDiffVersions(projectPath(owner, repo), iid, nil, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetching diff versions: %w", err)
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("merge request !%d has no diff versions", iid)
		}
		latest := versions[0]

		pos := &gitlab.PositionOptions{
			BaseSHA:      gitlab.Ptr(latest.BaseCommitSHA),
			StartSHA:     gitlab.Ptr(latest.StartCommitSHA),
			HeadSHA:      gitlab.Ptr(latest.HeadCommitSHA),
			PositionType: gitlab.Ptr("text"),
			NewPath:      gitlab.Ptr(draft.Position.NewPath),
			NewLine:      gitlab.Ptr(draft.Position.NewLine),
		}
		if draft.Position.OldPath != "" {
			pos.OldPath = gitlab.Ptr(draft.Position.OldPath)
		}
		if draft.Position.OldLine != 0 {
			pos.OldLine = gitlab.Ptr(draft.Position.OldLine)
		}

		discussion, _, err := c.client.Discussions.CreateMergeRequestDiscussion(projectPath(owner, repo), iid, &gitlab.CreateMergeRequestDiscussionOptions{
			Body:     gitlab.Ptr(draft.Content),
			Position: pos,
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("posting positioned comment: %w", err)
		}
		if len(discussion.Notes) == 0 {
			return nil, fmt.Errorf("created discussion %s has no notes", discussion.ID)
		}
		return noteToModel(mrID, discussion.Notes[0], ""), nil
	}

	note, _, err := c.client.Notes.CreateMergeRequestNote(projectPath(owner, repo), iid, &gitlab.CreateMergeRequestNoteOptions{
		Body: gitlab.Ptr(draft.Content),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("posting comment: %w", err)
	}
	return noteToModel(mrID, note, ""), nil
}

// ResolveThread resolves the discussion containing the note.
func (c *Client) ResolveThread(ctx context.Context, owner, repo, mrID, commentID string) error {
	iid, err := parseIID(mrID)
	if err != nil {
		return err
	}
	noteID, err := strconv.Atoi(commentID)
	if err != nil {
		return fmt.Errorf("invalid note id %q: %w", commentID, err)
	}

	discussionID, err := c.findDiscussion(ctx, owner, repo, iid, noteID)
	if err != nil {
		return err
	}

	_, _, err = c.client.Discussions.ResolveMergeRequestDiscussion(projectPath(owner, repo), iid, discussionID, &gitlab.ResolveMergeRequestDiscussionOptions{
		Resolved: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("resolving discussion: %w", err)
	}
	return nil
}
