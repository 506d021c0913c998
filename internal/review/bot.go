package review

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reviewloop/reviewloop/internal/metrics"
	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
	"github.com/reviewloop/reviewloop/internal/quota"
)

// Bot orchestrates one end-to-end review run: quota gate, size guardrails,
// sequential pipelines, aggregation, and comment publication. It also
// drives the comment reply flow.
type Bot struct {
	name                string
	ledger              *quota.Ledger
	guardrail           *Guardrail
	pipelines           []Pipeline
	replies             *ReplyHandler
	maxMRReviewsPerHour int
}

// NewBot creates the orchestrator.
func NewBot(name string, ledger *quota.Ledger, guardrail *Guardrail, pipelines []Pipeline, replies *ReplyHandler, maxMRReviewsPerHour int) *Bot {
	return &Bot{
		name:                name,
		ledger:              ledger,
		guardrail:           guardrail,
		pipelines:           pipelines,
		replies:             replies,
		maxMRReviewsPerHour: maxMRReviewsPerHour,
	}
}

// ReviewMR runs the full review and publishes every aggregated comment plus
// a synthetic summary comment. Publish failures are logged per comment and
// never abort the batch.
func (b *Bot) ReviewMR(ctx context.Context, client provider.Client, mr *model.MergeRequest) *model.ReviewResult {
	result, comments := b.runReview(ctx, mr)

	if result.Summary != "" {
		comments = append(comments, &model.Comment{
			ID:        "summary_" + uuid.NewString(),
			MRID:      mr.MRID,
			Author:    b.name,
			Content:   result.Summary,
			CreatedAt: time.Now().UTC(),
			Type:      model.CommentGeneral,
		})
	}

	for _, c := range comments {
		b.publish(ctx, client, mr, c)
	}

	if result.OverallStatus == model.ReviewError {
		metrics.ReviewFailed()
	} else {
		metrics.ReviewCompleted()
	}
	return result
}

// runReview executes the state machine up to aggregation and returns the
// terminal result plus the comments to publish.
func (b *Bot) runReview(ctx context.Context, mr *model.MergeRequest) (*model.ReviewResult, []*model.Comment) {
	if !b.ledger.CheckAndIncrement(ctx, quota.MRReviewsKey(), b.maxMRReviewsPerHour) {
		log.Printf("mr %s/%s!%s rejected: hourly review budget (%d) exhausted", mr.Owner, mr.Repo, mr.MRID, b.maxMRReviewsPerHour)
		metrics.QuotaRejected()
		return &model.ReviewResult{
			MRID:          mr.MRID,
			Summary:       fmt.Sprintf("⚠️ The hourly merge request review budget (%d) is exhausted. Try again later.", b.maxMRReviewsPerHour),
			OverallStatus: model.ReviewError,
			ReviewDate:    time.Now().UTC(),
		}, nil
	}

	if sizeResult := b.guardrail.CheckSize(mr); sizeResult != nil {
		return sizeResult, nil
	}

	var comments []*model.Comment
	var summaries []string

	oversized, normal := b.guardrail.PartitionFiles(mr)
	for _, fd := range oversized {
		comments = append(comments, b.guardrail.OversizedFileComment(mr, fd))
	}
	if len(oversized) > 0 {
		summaries = append(summaries, b.guardrail.OversizedSummary(oversized))
	}

	// Pipelines only see the guardrail-filtered diffs.
	filtered := *mr
	filtered.FileDiffs = normal

	type failure struct {
		name string
		err  error
	}
	var failed []failure
	enabled := 0

	for _, p := range b.pipelines {
		if !p.Enabled() {
			log.Printf("pipeline %s disabled, skipping", p.Name())
			continue
		}
		enabled++
		log.Printf("running pipeline %s for mr %s/%s!%s", p.Name(), mr.Owner, mr.Repo, mr.MRID)
		result, err := p.Review(ctx, &filtered)
		if err != nil {
			log.Printf("pipeline %s failed: %v", p.Name(), err)
			failed = append(failed, failure{name: p.Name(), err: err})
			continue
		}
		comments = append(comments, result.Comments...)
		if result.Summary != "" {
			summaries = append(summaries, fmt.Sprintf("[%s] %s", p.Name(), result.Summary))
		}
	}

	if len(failed) > 0 {
		notices := make([]string, len(failed))
		for i, f := range failed {
			notices[i] = fmt.Sprintf("%s: %v", f.name, f.err)
		}
		summaries = append(summaries, "\n⚠️ The following pipelines failed: "+strings.Join(notices, ", "))
	}

	if enabled > 0 && len(failed) == enabled {
		log.Printf("all pipelines failed for mr %s/%s!%s", mr.Owner, mr.Repo, mr.MRID)
		return &model.ReviewResult{
			MRID:          mr.MRID,
			Summary:       strings.Join(summaries, "\n"),
			OverallStatus: model.ReviewError,
			ReviewDate:    time.Now().UTC(),
		}, nil
	}

	return &model.ReviewResult{
		MRID:          mr.MRID,
		Summary:       strings.Join(summaries, "\n"),
		OverallStatus: model.ReviewCommented,
		ReviewDate:    time.Now().UTC(),
	}, comments
}

// HandleComment answers a reply inside a review discussion and publishes
// the answer. When the answer declares the issue resolved, the provider
// thread is resolved as well.
func (b *Bot) HandleComment(ctx context.Context, client provider.Client, mr *model.MergeRequest, comment *model.Comment) (*model.Comment, error) {
	reply, resolved, err := b.replies.Reply(ctx, client, mr, comment)
	if err != nil {
		return nil, err
	}
	metrics.ReplyGenerated()

	published, err := b.publish(ctx, client, mr, reply)
	if err != nil {
		return nil, fmt.Errorf("publishing reply: %w", err)
	}

	if resolved {
		if err := client.ResolveThread(ctx, mr.Owner, mr.Repo, mr.MRID, comment.ID); err != nil {
			log.Printf("resolving thread for comment %s: %v", comment.ID, err)
		}
	}
	return published, nil
}

// publish sends one comment through the provider with the bot content
// prefix. Failures are logged and counted, not propagated to the batch.
func (b *Bot) publish(ctx context.Context, client provider.Client, mr *model.MergeRequest, c *model.Comment) (*model.Comment, error) {
	draft := provider.CommentDraft{
		Content:  model.BotMarker + " " + c.Content,
		Position: c.Position,
		ReplyTo:  c.ReplyTo,
	}
	published, err := client.CreateComment(ctx, mr.Owner, mr.Repo, mr.MRID, draft)
	if err != nil {
		log.Printf("publishing comment %s on mr %s/%s!%s: %v", c.ID, mr.Owner, mr.Repo, mr.MRID, err)
		metrics.CommentFailed()
		return nil, err
	}
	metrics.CommentPosted()
	return published, nil
}
