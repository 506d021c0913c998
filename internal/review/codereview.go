package review

import (
	"context"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/model"
)

// CodeReviewPipeline reviews code style, naming, and potential issues
// alongside the business intent of the change.
type CodeReviewPipeline struct {
	client   ai.Client
	language string
	enabled  bool
}

// NewCodeReviewPipeline creates the code review pass.
func NewCodeReviewPipeline(client ai.Client, language string) *CodeReviewPipeline {
	return &CodeReviewPipeline{client: client, language: language, enabled: true}
}

// Name returns the pipeline name used in summaries and comment authors.
func (p *CodeReviewPipeline) Name() string { return "Code Review" }

// Enabled reports whether the pass runs.
func (p *CodeReviewPipeline) Enabled() bool { return p.enabled }

const codeReviewSystemPrompt = `You are a professional code review assistant, focused on providing constructive code improvement suggestions.
` + responseFormatPrompt + `
Business Analysis:
1. PR purpose
2. Implementation completeness
3. Solution design

Code Analysis:
1. Code style
2. Naming conventions
3. Potential issues
4. Performance considerations
5. Spelling errors and typos in the code and the title
6. Whether the title and description reflect the changes

Summary includes:
1. Business goal
2. Implementation review
3. Key suggestions`

// Review runs the pass over the merge request's diffs.
func (p *CodeReviewPipeline) Review(ctx context.Context, mr *model.MergeRequest) (*model.PipelineResult, error) {
	return runPass(ctx, p.client, p.Name(), codeReviewSystemPrompt, mr, p.language, 0)
}
