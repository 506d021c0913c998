package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reviewloop/reviewloop/internal/discussion"
	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
	"github.com/reviewloop/reviewloop/internal/quota"
	"github.com/reviewloop/reviewloop/internal/store"
)

// Clients resolves provider clients by name. The registry package's
// Registry satisfies it.
type Clients interface {
	Get(name string) provider.Client
}

// ErrProviderNotConfigured is returned when no client exists for the
// requested provider.
var ErrProviderNotConfigured = errors.New("provider not configured")

// ErrReviewLimitReached is returned when a merge request has used up its
// lifetime review budget.
var ErrReviewLimitReached = errors.New("merge request review limit reached")

// lifetimeCounterTTL bounds how long per-MR review counters live. The
// counter store expires every key, so "lifetime" is approximated with a
// TTL far beyond any merge request's active review window.
const lifetimeCounterTTL = 30 * 24 * time.Hour

// Service is the entrypoint both the webhook dispatch path and the manual
// API use: it resolves the provider, fetches fresh snapshots, enforces the
// per-MR lifetime cap, and delegates to the bot.
type Service struct {
	clients      Clients
	bot          *Bot
	builder      *discussion.Builder
	store        store.Store
	maxMRReviews int
}

// NewService creates the review service.
func NewService(clients Clients, bot *Bot, builder *discussion.Builder, s store.Store, maxMRReviews int) *Service {
	return &Service{
		clients:      clients,
		bot:          bot,
		builder:      builder,
		store:        s,
		maxMRReviews: maxMRReviews,
	}
}

func (s *Service) client(providerName string) (provider.Client, error) {
	client := s.clients.Get(providerName)
	if client == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, providerName)
	}
	return client, nil
}

// ReviewMR runs a full review of the merge request. checkLimit enforces the
// per-MR lifetime review cap; manual re-triggers may bypass it.
func (s *Service) ReviewMR(ctx context.Context, providerName, owner, repo, mrID string, checkLimit bool) (*model.ReviewResult, error) {
	client, err := s.client(providerName)
	if err != nil {
		return nil, err
	}

	key := quota.MRReviewCountKey(owner, repo, mrID)
	if checkLimit {
		count, _, err := s.store.Get(ctx, key)
		if err != nil {
			// Fail closed, same policy as the ledger.
			return nil, fmt.Errorf("reading review count: %w", err)
		}
		if count >= int64(s.maxMRReviews) {
			return nil, fmt.Errorf("%w: %s/%s!%s reviewed %d times (max %d)", ErrReviewLimitReached, owner, repo, mrID, count, s.maxMRReviews)
		}
	}

	mr, err := client.GetMergeRequest(ctx, owner, repo, mrID)
	if err != nil {
		return nil, fmt.Errorf("fetching merge request: %w", err)
	}

	result := s.bot.ReviewMR(ctx, client, mr)

	if checkLimit {
		if _, err := s.store.IncrementWithExpiry(ctx, key, lifetimeCounterTTL); err != nil {
			log.Printf("incrementing review count for %s/%s!%s: %v", owner, repo, mrID, err)
		}
	}
	return result, nil
}

// HandleComment answers a reply inside a review discussion.
func (s *Service) HandleComment(ctx context.Context, providerName, owner, repo, mrID, commentID string) (*model.Comment, error) {
	client, err := s.client(providerName)
	if err != nil {
		return nil, err
	}

	mr, err := client.GetMergeRequest(ctx, owner, repo, mrID)
	if err != nil {
		return nil, fmt.Errorf("fetching merge request: %w", err)
	}
	original, err := client.GetComment(ctx, owner, repo, mrID, commentID)
	if err != nil {
		return nil, fmt.Errorf("fetching comment: %w", err)
	}

	return s.bot.HandleComment(ctx, client, mr, original)
}

// Discussions reconstructs all discussions on the merge request.
func (s *Service) Discussions(ctx context.Context, providerName, owner, repo, mrID string) ([]*model.Discussion, error) {
	client, err := s.client(providerName)
	if err != nil {
		return nil, err
	}

	comments, err := client.ListComments(ctx, owner, repo, mrID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return s.builder.Build(comments), nil
}
