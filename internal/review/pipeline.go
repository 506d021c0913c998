package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/model"
)

// Pipeline is one independent review pass over a merge request's diffs.
type Pipeline interface {
	Name() string
	Enabled() bool
	Review(ctx context.Context, mr *model.MergeRequest) (*model.PipelineResult, error)
}

// aiReviewComment is one item in the structured response the completion
// backend is asked to produce.
type aiReviewComment struct {
	FilePath      string `json:"file_path"`
	NewLineNumber int    `json:"new_line_number"`
	Content       string `json:"content"`
	Type          string `json:"type"` // suggestion, issue, praise
}

type aiReviewResponse struct {
	Summary  string            `json:"summary"`
	Comments []aiReviewComment `json:"comments"`
}

// extractJSON returns the first brace-balanced JSON object in text.
// Completion output often wraps the object in fences or prose; scanning for
// balance tolerates both.
func extractJSON(text string) (string, bool) {
	start := -1
	depth := 0
	for i, ch := range text {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// parseReviewResponse parses the completion output. Malformed responses
// degrade to a result with an explanatory summary and zero comments.
func parseReviewResponse(response string) aiReviewResponse {
	jsonStr, ok := extractJSON(strings.TrimSpace(response))
	if !ok {
		log.Printf("review response has no JSON object: %.200s", response)
		return aiReviewResponse{Summary: "Failed to parse review response"}
	}
	var parsed aiReviewResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		log.Printf("parsing review response: %v: %.200s", err, response)
		return aiReviewResponse{Summary: "Failed to parse review response"}
	}
	return parsed
}

// commentFromAI turns one structured response item into a file comment,
// anchored at the reported path and line (line 1 if omitted).
func commentFromAI(pipelineName, mrID string, ac aiReviewComment) *model.Comment {
	line := ac.NewLineNumber
	if line <= 0 {
		line = 1
	}
	return &model.Comment{
		ID:        strings.ToLower(strings.ReplaceAll(pipelineName, " ", "_")) + "_" + uuid.NewString(),
		MRID:      mrID,
		Author:    pipelineName,
		Content:   ac.Content,
		CreatedAt: time.Now().UTC(),
		Type:      model.CommentFile,
		Position: &model.CommentPosition{
			NewPath: ac.FilePath,
			NewLine: line,
		},
	}
}

const responseFormatPrompt = `Return the review as JSON; new_line_number is the line number in the new file:
{
  "summary": "overall summary",
  "comments": [
    {
      "file_path": "path/to/file",
      "new_line_number": 123,
      "content": "specific comment",
      "type": "suggestion|issue|praise"
    }
  ]
}
`

// buildReviewPrompt renders the merge request metadata plus every diff into
// one user prompt. Each pass sends a single completion request, never one
// per file.
func buildReviewPrompt(mr *model.MergeRequest, language string) string {
	var b strings.Builder
	b.WriteString("Please review the following code changes and provide feedback:\n")
	fmt.Fprintf(&b, "Title: %s\n", mr.Title)
	fmt.Fprintf(&b, "Description: %s\n", mr.Description)
	b.WriteString("Changes:\n")
	for i, fd := range mr.FileDiffs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "file_old_path: %s\n", fd.OldPath)
		fmt.Fprintf(&b, "file_new_path: %s\n", fd.NewPath)
		fmt.Fprintf(&b, "```diff\n%s\n```", fd.DiffContent)
	}
	if language != "" {
		fmt.Fprintf(&b, "\n\nWrite the summary and all comments in %s.", language)
	}
	return b.String()
}

// runPass performs the shared pipeline flow: one completion request over
// all diffs, structural parse with degradation, praise filtering.
// maxPerFile <= 0 means unlimited comments per file.
func runPass(ctx context.Context, client ai.Client, name, systemPrompt string, mr *model.MergeRequest, language string, maxPerFile int) (*model.PipelineResult, error) {
	session := ai.NewSessionID()
	messages := []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildReviewPrompt(mr, language)},
	}

	response, err := client.Chat(ctx, messages, session)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", name, err)
	}

	parsed := parseReviewResponse(response)

	var comments []*model.Comment
	perFile := make(map[string]int)
	for _, ac := range parsed.Comments {
		if ac.Type == "praise" {
			continue
		}
		if maxPerFile > 0 && perFile[ac.FilePath] >= maxPerFile {
			continue
		}
		perFile[ac.FilePath]++
		comments = append(comments, commentFromAI(name, mr.MRID, ac))
	}

	return &model.PipelineResult{Comments: comments, Summary: parsed.Summary}, nil
}
