// Package discussion rebuilds threaded discussions from the flat comment
// list a provider returns. Traversal is iterative with an explicit depth
// budget; malformed reply graphs (cycles, missing parents) degrade to
// truncated or promoted discussions instead of failing.
package discussion

import (
	"sort"

	"github.com/reviewloop/reviewloop/internal/model"
)

// DefaultMaxDepth bounds how many reply levels below a root are collected.
const DefaultMaxDepth = 10

// Builder groups comments into discussions.
type Builder struct {
	maxDepth int
}

// NewBuilder creates a builder. A non-positive maxDepth uses DefaultMaxDepth.
func NewBuilder(maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Builder{maxDepth: maxDepth}
}

func sortByTime(comments []*model.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
}

// Build groups the comments into discussions, one per root. A comment is a
// root when it has no reply link or its parent is not in the list. Replies
// deeper than the depth budget are dropped. Discussions come back ordered
// by root creation time.
func (b *Builder) Build(comments []*model.Comment) []*model.Discussion {
	byID := make(map[string]*model.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	children := make(map[string][]*model.Comment)
	var roots []*model.Comment
	for _, c := range comments {
		if c.ReplyTo == "" || byID[c.ReplyTo] == nil {
			roots = append(roots, c)
		} else {
			children[c.ReplyTo] = append(children[c.ReplyTo], c)
		}
	}
	sortByTime(roots)

	visited := make(map[string]bool, len(comments))
	discussions := make([]*model.Discussion, 0, len(roots))
	build := func(root *model.Comment) {
		if visited[root.ID] {
			return
		}
		visited[root.ID] = true
		replies := b.collectReplies(root, children, visited)
		sortByTime(replies)
		discussions = append(discussions, model.NewDiscussion(root, replies))
	}

	for _, root := range roots {
		build(root)
	}

	// Reply cycles are reachable from no root. Promote their oldest member
	// so every comment still lands in exactly one discussion.
	remaining := make([]*model.Comment, 0)
	for _, c := range comments {
		if !visited[c.ID] {
			remaining = append(remaining, c)
		}
	}
	sortByTime(remaining)
	for _, c := range remaining {
		build(c)
	}

	sort.SliceStable(discussions, func(i, j int) bool {
		return discussions[i].Root.CreatedAt.Before(discussions[j].Root.CreatedAt)
	})
	return discussions
}

type frame struct {
	comment *model.Comment
	depth   int
}

// collectReplies walks the reply tree below root breadth-first. The depth
// budget and the visited set both act as hard stops, so reply cycles
// terminate instead of looping.
func (b *Builder) collectReplies(root *model.Comment, children map[string][]*model.Comment, visited map[string]bool) []*model.Comment {
	var replies []*model.Comment

	queue := make([]frame, 0, len(children[root.ID]))
	for _, c := range children[root.ID] {
		queue = append(queue, frame{comment: c, depth: 1})
	}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		if f.depth > b.maxDepth || visited[f.comment.ID] {
			continue
		}
		visited[f.comment.ID] = true
		replies = append(replies, f.comment)

		for _, c := range children[f.comment.ID] {
			queue = append(queue, frame{comment: c, depth: f.depth + 1})
		}
	}
	return replies
}

// FindRoot walks reply links upward from the comment to its discussion
// root. The walk is bounded by a seen set, so a cycle yields the last
// comment reached before revisiting.
func FindRoot(comments []*model.Comment, commentID string) (*model.Comment, bool) {
	byID := make(map[string]*model.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	cur, ok := byID[commentID]
	if !ok {
		return nil, false
	}

	seen := make(map[string]bool)
	for cur.ReplyTo != "" {
		if seen[cur.ID] {
			break
		}
		seen[cur.ID] = true
		parent, ok := byID[cur.ReplyTo]
		if !ok {
			break
		}
		cur = parent
	}
	return cur, true
}
