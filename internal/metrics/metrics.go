package metrics

import (
	"sync/atomic"
)

// Metrics tracks operational metrics.
type Metrics struct {
	WebhooksReceived  uint64 `json:"webhooks_received"`
	WebhooksProcessed uint64 `json:"webhooks_processed"`
	ReviewsCompleted  uint64 `json:"reviews_completed"`
	ReviewsFailed     uint64 `json:"reviews_failed"`
	RepliesGenerated  uint64 `json:"replies_generated"`
	CommentsPosted    uint64 `json:"comments_posted"`
	CommentsFailed    uint64 `json:"comments_failed"`
	QuotaRejections   uint64 `json:"quota_rejections"`
}

var global = &Metrics{}

// WebhookReceived increments the count of webhooks received.
func WebhookReceived() { atomic.AddUint64(&global.WebhooksReceived, 1) }

// WebhookProcessed increments the count of webhooks fully processed.
func WebhookProcessed() { atomic.AddUint64(&global.WebhooksProcessed, 1) }

// ReviewCompleted increments the count of review runs that finished.
func ReviewCompleted() { atomic.AddUint64(&global.ReviewsCompleted, 1) }

// ReviewFailed increments the count of review runs that ended in error.
func ReviewFailed() { atomic.AddUint64(&global.ReviewsFailed, 1) }

// ReplyGenerated increments the count of AI replies produced.
func ReplyGenerated() { atomic.AddUint64(&global.RepliesGenerated, 1) }

// CommentPosted increments the count of comments published.
func CommentPosted() { atomic.AddUint64(&global.CommentsPosted, 1) }

// CommentFailed increments the count of comment publish failures.
func CommentFailed() { atomic.AddUint64(&global.CommentsFailed, 1) }

// QuotaRejected increments the count of operations stopped by a quota.
func QuotaRejected() { atomic.AddUint64(&global.QuotaRejections, 1) }

// Get returns a snapshot of the current metrics.
func Get() Metrics {
	return Metrics{
		WebhooksReceived:  atomic.LoadUint64(&global.WebhooksReceived),
		WebhooksProcessed: atomic.LoadUint64(&global.WebhooksProcessed),
		ReviewsCompleted:  atomic.LoadUint64(&global.ReviewsCompleted),
		ReviewsFailed:     atomic.LoadUint64(&global.ReviewsFailed),
		RepliesGenerated:  atomic.LoadUint64(&global.RepliesGenerated),
		CommentsPosted:    atomic.LoadUint64(&global.CommentsPosted),
		CommentsFailed:    atomic.LoadUint64(&global.CommentsFailed),
		QuotaRejections:   atomic.LoadUint64(&global.QuotaRejections),
	}
}

// Reset resets all metrics to zero (useful for testing).
func Reset() {
	atomic.StoreUint64(&global.WebhooksReceived, 0)
	atomic.StoreUint64(&global.WebhooksProcessed, 0)
	atomic.StoreUint64(&global.ReviewsCompleted, 0)
	atomic.StoreUint64(&global.ReviewsFailed, 0)
	atomic.StoreUint64(&global.RepliesGenerated, 0)
	atomic.StoreUint64(&global.CommentsPosted, 0)
	atomic.StoreUint64(&global.CommentsFailed, 0)
	atomic.StoreUint64(&global.QuotaRejections, 0)
}
