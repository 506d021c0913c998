// Package quota bounds repeated actions against the shared counter store.
// Four independent scopes use the same primitive with different keys: the
// process-wide AI-call and MR-review budgets, the per-MR review cap and the
// per-comment reply cap. Scopes are checked independently; exhausting any
// one of them aborts the whole operation.
package quota

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reviewloop/reviewloop/internal/store"
)

// Well-known counter keys.
const (
	aiRequestsKey     = "rate_limit:ai_requests"
	mrReviewsKey      = "rate_limit:mr_reviews"
	mrReviewCountKey  = "rate_limit:mr_review_count:%s/%s/%s"
	commentRepliesKey = "rate_limit:comment_replies:%s"
)

// AIRequestsKey is the process-wide AI call budget scope.
func AIRequestsKey() string { return aiRequestsKey }

// MRReviewsKey is the process-wide MR review budget scope.
func MRReviewsKey() string { return mrReviewsKey }

// MRReviewCountKey is the per-merge-request review cap scope.
func MRReviewCountKey(owner, repo, mrID string) string {
	return fmt.Sprintf(mrReviewCountKey, owner, repo, mrID)
}

// CommentRepliesKey is the per-comment reply cap scope.
func CommentRepliesKey(commentID string) string {
	return fmt.Sprintf(commentRepliesKey, commentID)
}

// Ledger counts and bounds repeated actions. It is the only component that
// mutates quota counters.
type Ledger struct {
	store store.Store
	ttl   time.Duration
}

// NewLedger creates a ledger over the given store. Counters created by this
// ledger expire after ttl.
func NewLedger(s store.Store, ttl time.Duration) *Ledger {
	return &Ledger{store: s, ttl: ttl}
}

// CheckAndIncrement consumes one unit of the named scope and reports
// whether the action is allowed. The increment is a single atomic store
// operation; when the counter is already past max the call is rejected,
// not queued. If the store is unreachable the ledger fails closed.
func (l *Ledger) CheckAndIncrement(ctx context.Context, key string, max int) bool {
	count, err := l.store.IncrementWithExpiry(ctx, key, l.ttl)
	if err != nil {
		log.Printf("quota: store unreachable for %s, failing closed: %v", key, err)
		return false
	}
	if count > int64(max) {
		log.Printf("quota: limit reached for %s: %d/%d", key, count, max)
		return false
	}
	return true
}

// Remaining returns how many units of the named scope are left, clamped at
// zero. A missing counter means the full budget is available. If the store
// is unreachable the ledger fails closed and reports zero.
func (l *Ledger) Remaining(ctx context.Context, key string, max int) int {
	count, ok, err := l.store.Get(ctx, key)
	if err != nil {
		log.Printf("quota: store unreachable for %s, failing closed: %v", key, err)
		return 0
	}
	if !ok {
		return max
	}
	remaining := max - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}
