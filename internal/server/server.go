package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/dispatch"
	"github.com/reviewloop/reviewloop/internal/event"
	"github.com/reviewloop/reviewloop/internal/metrics"
	"github.com/reviewloop/reviewloop/internal/provider"
	"github.com/reviewloop/reviewloop/internal/quota"
	"github.com/reviewloop/reviewloop/internal/review"
	"github.com/reviewloop/reviewloop/internal/webhook"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// Server is the HTTP surface: webhooks, the manual review API, health
// and metrics.
type Server struct {
	cfg          *config.Config
	svc          *review.Service
	pool         *dispatch.Pool
	debouncer    *event.Debouncer
	ledger       *quota.Ledger
	mux          *http.ServeMux
	httpServer   *httpServer
	httpServerMu sync.RWMutex  // protects httpServer pointer
	ready        chan struct{} // closed when server is ready to accept connections
}

// New creates a new Server.
func New(cfg *config.Config, svc *review.Service, pool *dispatch.Pool, debouncer *event.Debouncer, ledger *quota.Ledger) *Server {
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		pool:      pool,
		debouncer: debouncer,
		ledger:    ledger,
		mux:       http.NewServeMux(),
		ready:     make(chan struct{}),
	}
	s.routes()
	return s
}

// Ready returns a channel that is closed when the server is ready to accept connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// routes sets up the HTTP routes.
func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", s.handleMetrics)

	if s.cfg.Providers.GitHub.WebhookSecret != "" {
		s.mux.Handle("/webhook/github", webhook.NewGitHubHandler(
			s.cfg.Providers.GitHub.WebhookSecret,
			s.cfg.IsRepoAllowed,
			s.handleEvent,
		))
	}

	if s.cfg.Providers.GitLab.WebhookSecret != "" {
		s.mux.Handle("/webhook/gitlab", webhook.NewGitLabHandler(
			s.cfg.Providers.GitLab.WebhookSecret,
			s.cfg.IsRepoAllowed,
			s.handleEvent,
		))
	}

	s.mux.HandleFunc("POST /api/v1/pulls/{owner}/{repo}/{mr}/review", s.handleManualReview)
	s.mux.HandleFunc("POST /api/v1/pulls/{owner}/{repo}/{mr}/comments/{id}/reply", s.handleManualReply)
	s.mux.HandleFunc("GET /api/v1/pulls/{owner}/{repo}/{mr}/discussions", s.handleDiscussions)
}

// handleHealth responds with server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]interface{}{
		"github_configured":     s.cfg.Providers.GitHub.Token != "",
		"gitlab_configured":     s.cfg.Providers.GitLab.Token != "",
		"queue_length":          s.pool.QueueLength(),
		"ai_requests_remaining": s.ledger.Remaining(ctx, quota.AIRequestsKey(), s.cfg.Limits.MaxAIRequestsPerHour),
		"mr_reviews_remaining":  s.ledger.Remaining(ctx, quota.MRReviewsKey(), s.cfg.Limits.MaxMRReviewsPerHour),
	}

	health := HealthResponse{
		Status: "ok",
		Checks: checks,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleMetrics responds with current operational metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics.Get())
}

// handleEvent hands a normalized webhook event to the dispatch pool. The
// webhook response goes out before the review runs.
func (s *Server) handleEvent(e *event.Event) error {
	metrics.WebhookReceived()

	if !s.debouncer.ShouldProcess(e) {
		log.Printf("Duplicate delivery for %s, skipping", e.Key())
		return nil
	}

	var task dispatch.Task
	switch e.Type {
	case event.TypeMROpened:
		task = dispatch.Task{
			Kind: "review", Owner: e.RepoOwner, Repo: e.RepoName, MRID: e.MRID,
			Run: func(ctx context.Context) error {
				_, err := s.svc.ReviewMR(ctx, e.Provider, e.RepoOwner, e.RepoName, e.MRID, true)
				return err
			},
		}
	case event.TypeMRComment:
		task = dispatch.Task{
			Kind: "reply", Owner: e.RepoOwner, Repo: e.RepoName, MRID: e.MRID,
			Run: func(ctx context.Context) error {
				_, err := s.svc.HandleComment(ctx, e.Provider, e.RepoOwner, e.RepoName, e.MRID, e.CommentID)
				return err
			},
		}
	default:
		return nil
	}

	if _, err := s.pool.Enqueue(task); err != nil {
		return err
	}
	metrics.WebhookProcessed()
	return nil
}

// providerFrom resolves the provider for a manual API call: an explicit
// ?provider= wins, otherwise the single configured provider is assumed.
func (s *Server) providerFrom(r *http.Request) (string, bool) {
	if p := r.URL.Query().Get("provider"); p != "" {
		return p, true
	}
	github := s.cfg.Providers.GitHub.Token != ""
	gitlab := s.cfg.Providers.GitLab.Token != ""
	switch {
	case github && !gitlab:
		return "github", true
	case gitlab && !github:
		return "gitlab", true
	default:
		return "", false
	}
}

// handleManualReview triggers a review synchronously and returns the result.
func (s *Server) handleManualReview(w http.ResponseWriter, r *http.Request) {
	providerName, ok := s.providerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "provider query parameter is required")
		return
	}

	owner, repo, mrID := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("mr")
	result, err := s.svc.ReviewMR(r.Context(), providerName, owner, repo, mrID, true)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleManualReply generates a reply to the given comment.
func (s *Server) handleManualReply(w http.ResponseWriter, r *http.Request) {
	providerName, ok := s.providerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "provider query parameter is required")
		return
	}

	owner, repo, mrID := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("mr")
	published, err := s.svc.HandleComment(r.Context(), providerName, owner, repo, mrID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, published)
}

// handleDiscussions returns the reconstructed discussions of a merge request.
func (s *Server) handleDiscussions(w http.ResponseWriter, r *http.Request) {
	providerName, ok := s.providerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "provider query parameter is required")
		return
	}

	owner, repo, mrID := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("mr")
	discussions, err := s.svc.Discussions(r.Context(), providerName, owner, repo, mrID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mr_id":       mrID,
		"discussions": discussions,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps review service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrProviderNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, review.ErrDiscussionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, review.ErrReviewLimitReached), errors.Is(err, review.ErrReplyQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
