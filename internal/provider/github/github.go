// Package github implements the provider client for GitHub. Merge request
// data and comments go through the REST API; resolving review threads is
// only exposed over GraphQL, so that one operation uses a GraphQL client.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/go-github/v60/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
)

// Client implements provider.Client for GitHub.
type Client struct {
	rest    *github.Client
	graphql *githubv4.Client
	token   string
}

// Option configures the GitHub client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.rest.BaseURL, _ = c.rest.BaseURL.Parse(url + "/")
		c.graphql = githubv4.NewEnterpriseClient(url+"/graphql", oauthClient(c.token))
	}
}

func oauthClient(token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(context.Background(), src)
}

// New creates a new GitHub client.
func New(token string, opts ...Option) *Client {
	c := &Client{
		rest:    github.NewClient(oauthClient(token)),
		graphql: githubv4.NewClient(oauthClient(token)),
		token:   token,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "github"
}

func parseNumber(mrID string) (int, error) {
	n, err := strconv.Atoi(mrID)
	if err != nil {
		return 0, fmt.Errorf("invalid pull request number %q: %w", mrID, err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func mapState(pr *github.PullRequest) model.MergeRequestState {
	if pr.GetMerged() {
		return model.StateMerged
	}
	if pr.GetState() == "closed" {
		return model.StateClosed
	}
	return model.StateOpen
}

func mapChangeType(status string) model.ChangeType {
	switch status {
	case "added":
		return model.ChangeAdd
	case "removed":
		return model.ChangeDelete
	default:
		return model.ChangeModify
	}
}

// GetMergeRequest fetches a pull request snapshot including file diffs.
func (c *Client) GetMergeRequest(ctx context.Context, owner, repo, mrID string) (*model.MergeRequest, error) {
	number, err := parseNumber(mrID)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.rest.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("pull request %s/%s#%d: %w", owner, repo, number, provider.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching pull request: %w", err)
	}

	mr := &model.MergeRequest{
		MRID:          mrID,
		Owner:         owner,
		Repo:          repo,
		Title:         pr.GetTitle(),
		Description:   pr.GetBody(),
		Author:        pr.GetUser().GetLogin(),
		State:         mapState(pr),
		SourceBranch:  pr.GetHead().GetRef(),
		TargetBranch:  pr.GetBase().GetRef(),
		CreatedAt:     pr.GetCreatedAt().Time,
		UpdatedAt:     pr.GetUpdatedAt().Time,
		CommentsCount: pr.GetComments() + pr.GetReviewComments(),
	}
	for _, l := range pr.Labels {
		mr.Labels = append(mr.Labels, l.GetName())
	}
	for _, r := range pr.RequestedReviewers {
		mr.Reviewers = append(mr.Reviewers, r.GetLogin())
	}

	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := c.rest.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing changed files: %w", err)
		}
		for _, f := range files {
			fd := model.FileDiff{
				NewPath:     f.GetFilename(),
				OldPath:     f.GetPreviousFilename(),
				ChangeType:  mapChangeType(f.GetStatus()),
				DiffContent: f.GetPatch(),
			}
			if fd.OldPath == "" && fd.ChangeType != model.ChangeAdd {
				fd.OldPath = fd.NewPath
			}
			mr.FileDiffs = append(mr.FileDiffs, fd)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return mr, nil
}

func issueCommentToModel(mrID string, ic *github.IssueComment) *model.Comment {
	return &model.Comment{
		ID:        strconv.FormatInt(ic.GetID(), 10),
		MRID:      mrID,
		Author:    ic.GetUser().GetLogin(),
		Content:   ic.GetBody(),
		CreatedAt: ic.GetCreatedAt().Time,
		UpdatedAt: ic.GetUpdatedAt().Time,
		Type:      model.CommentGeneral,
	}
}

func reviewCommentToModel(mrID string, rc *github.PullRequestComment) *model.Comment {
	cm := &model.Comment{
		ID:        strconv.FormatInt(rc.GetID(), 10),
		MRID:      mrID,
		Author:    rc.GetUser().GetLogin(),
		Content:   rc.GetBody(),
		CreatedAt: rc.GetCreatedAt().Time,
		UpdatedAt: rc.GetUpdatedAt().Time,
		Type:      model.CommentFile,
		Position: &model.CommentPosition{
			NewPath: rc.GetPath(),
			NewLine: rc.GetLine(),
		},
	}
	if id := rc.GetInReplyTo(); id != 0 {
		cm.Type = model.CommentReply
		cm.ReplyTo = strconv.FormatInt(id, 10)
	}
	return cm
}

// ListComments fetches issue comments and review comments on a pull
// request. Review comment reply links come from in_reply_to_id.
func (c *Client) ListComments(ctx context.Context, owner, repo, mrID string) ([]*model.Comment, error) {
	number, err := parseNumber(mrID)
	if err != nil {
		return nil, err
	}

	var result []*model.Comment

	issueOpts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.rest.Issues.ListComments(ctx, owner, repo, number, issueOpts)
		if err != nil {
			return nil, fmt.Errorf("listing issue comments: %w", err)
		}
		for _, ic := range comments {
			result = append(result, issueCommentToModel(mrID, ic))
		}
		if resp.NextPage == 0 {
			break
		}
		issueOpts.Page = resp.NextPage
	}

	reviewOpts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.rest.PullRequests.ListComments(ctx, owner, repo, number, reviewOpts)
		if err != nil {
			return nil, fmt.Errorf("listing review comments: %w", err)
		}
		for _, rc := range comments {
			result = append(result, reviewCommentToModel(mrID, rc))
		}
		if resp.NextPage == 0 {
			break
		}
		reviewOpts.Page = resp.NextPage
	}

	return result, nil
}

// GetComment fetches a single comment by id, checking review comments
// first and falling back to issue comments.
func (c *Client) GetComment(ctx context.Context, owner, repo, mrID, commentID string) (*model.Comment, error) {
	id, err := strconv.ParseInt(commentID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid comment id %q: %w", commentID, err)
	}

	rc, _, err := c.rest.PullRequests.GetComment(ctx, owner, repo, id)
	if err == nil {
		return reviewCommentToModel(mrID, rc), nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("fetching review comment: %w", err)
	}

	ic, _, err := c.rest.Issues.GetComment(ctx, owner, repo, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("comment %s: %w", commentID, provider.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching issue comment: %w", err)
	}
	return issueCommentToModel(mrID, ic), nil
}

// CreateComment publishes a draft as a reply, a positioned review comment,
// or a general issue comment.
func (c *Client) CreateComment(ctx context.Context, owner, repo, mrID string, draft provider.CommentDraft) (*model.Comment, error) {
	number, err := parseNumber(mrID)
	if err != nil {
		return nil, err
	}

	if draft.ReplyTo != "" {
		parentID, err := strconv.ParseInt(draft.ReplyTo, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parent comment id %q: %w", draft.ReplyTo, err)
		}
		rc, _, err := c.rest.PullRequests.CreateCommentInReplyTo(ctx, owner, repo, number, draft.Content, parentID)
		if err != nil {
			return nil, fmt.Errorf("posting reply: %w", err)
		}
		return reviewCommentToModel(mrID, rc), nil
	}

	if draft.Position != nil {
		// Review comments are anchored to the head commit.
		pr, _, err := c.rest.PullRequests.Get(ctx, owner, repo, number)
		if err != nil {
			return nil, fmt.Errorf("fetching pull request head: %w", err)
		}
		rc, _, err := c.rest.PullRequests.CreateComment(ctx, owner, repo, number, &github.PullRequestComment{
			Body:     github.String(draft.Content),
			Path:     github.String(draft.Position.NewPath),
			CommitID: github.String(pr.GetHead().GetSHA()),
			Line:     github.Int(draft.Position.NewLine),
			Side:     github.String("RIGHT"),
		})
		if err != nil {
			return nil, fmt.Errorf("posting review comment: %w", err)
		}
		return reviewCommentToModel(mrID, rc), nil
	}

	ic, _, err := c.rest.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.String(draft.Content),
	})
	if err != nil {
		return nil, fmt.Errorf("posting comment: %w", err)
	}
	return issueCommentToModel(mrID, ic), nil
}

// ResolveThread resolves the review thread containing the comment. Thread
// resolution has no REST endpoint, so this looks the thread up and mutates
// it over GraphQL.
func (c *Client) ResolveThread(ctx context.Context, owner, repo, mrID, commentID string) error {
	number, err := parseNumber(mrID)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(commentID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid comment id %q: %w", commentID, err)
	}

	var query struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					Nodes []struct {
						ID       githubv4.ID
						Comments struct {
							Nodes []struct {
								DatabaseID int64 `graphql:"databaseId"`
							}
						} `graphql:"comments(first: 100)"`
					}
				} `graphql:"reviewThreads(first: 100)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}
	if err := c.graphql.Query(ctx, &query, vars); err != nil {
		return fmt.Errorf("looking up review threads: %w", err)
	}

	var threadID githubv4.ID
	for _, thread := range query.Repository.PullRequest.ReviewThreads.Nodes {
		for _, comment := range thread.Comments.Nodes {
			if comment.DatabaseID == id {
				threadID = thread.ID
				break
			}
		}
	}
	if threadID == nil {
		return fmt.Errorf("review thread for comment %s: %w", commentID, provider.ErrNotFound)
	}

	var mutation struct {
		ResolveReviewThread struct {
			Thread struct {
				IsResolved githubv4.Boolean
			}
		} `graphql:"resolveReviewThread(input: $input)"`
	}
	input := githubv4.ResolveReviewThreadInput{ThreadID: threadID}
	if err := c.graphql.Mutate(ctx, &mutation, input, nil); err != nil {
		return fmt.Errorf("resolving review thread: %w", err)
	}
	return nil
}
