package review

import (
	"context"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/model"
)

// maxLogicCommentsPerFile bounds how many findings the logic pass keeps per
// file so one noisy file does not flood the merge request.
const maxLogicCommentsPerFile = 2

// LogicReviewPipeline reviews business logic and implementation soundness.
type LogicReviewPipeline struct {
	client   ai.Client
	language string
	enabled  bool
}

// NewLogicReviewPipeline creates the logic review pass.
func NewLogicReviewPipeline(client ai.Client, language string) *LogicReviewPipeline {
	return &LogicReviewPipeline{client: client, language: language, enabled: true}
}

// Name returns the pipeline name used in summaries and comment authors.
func (p *LogicReviewPipeline) Name() string { return "Logic Review" }

// Enabled reports whether the pass runs.
func (p *LogicReviewPipeline) Enabled() bool { return p.enabled }

const logicReviewSystemPrompt = `You are a professional code review assistant, focused on providing constructive code improvement suggestions.
` + responseFormatPrompt + `
Business Analysis:
1. PR purpose
2. Implementation completeness
3. Solution design
4. Potential issues

Summary includes:
1. Business goal
2. Implementation review
3. Key suggestions`

// Review runs the pass over the merge request's diffs.
func (p *LogicReviewPipeline) Review(ctx context.Context, mr *model.MergeRequest) (*model.PipelineResult, error) {
	return runPass(ctx, p.client, p.Name(), logicReviewSystemPrompt, mr, p.language, maxLogicCommentsPerFile)
}
