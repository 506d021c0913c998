package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/discussion"
	"github.com/reviewloop/reviewloop/internal/dispatch"
	"github.com/reviewloop/reviewloop/internal/event"
	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
	"github.com/reviewloop/reviewloop/internal/quota"
	"github.com/reviewloop/reviewloop/internal/review"
	"github.com/reviewloop/reviewloop/internal/store"
)

// stubGit is a goroutine-safe in-memory provider client.
type stubGit struct {
	mu       sync.Mutex
	mr       *model.MergeRequest
	comments []*model.Comment
	created  []provider.CommentDraft
	mrCalls  int
}

func (s *stubGit) Name() string { return "stub" }

func (s *stubGit) GetMergeRequest(ctx context.Context, owner, repo, mrID string) (*model.MergeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mrCalls++
	if s.mr == nil {
		return nil, provider.ErrNotFound
	}
	return s.mr, nil
}

func (s *stubGit) ListComments(ctx context.Context, owner, repo, mrID string) ([]*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments, nil
}

func (s *stubGit) GetComment(ctx context.Context, owner, repo, mrID, commentID string) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.ID == commentID {
			return c, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (s *stubGit) CreateComment(ctx context.Context, owner, repo, mrID string, draft provider.CommentDraft) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, draft)
	return &model.Comment{ID: "published", MRID: mrID, Content: draft.Content, ReplyTo: draft.ReplyTo}, nil
}

func (s *stubGit) ResolveThread(ctx context.Context, owner, repo, mrID, commentID string) error {
	return nil
}

func (s *stubGit) mergeRequestCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mrCalls
}

func (s *stubGit) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func (s *stubGit) firstCreated() provider.CommentDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[0]
}

type stubClients map[string]provider.Client

func (s stubClients) Get(name string) provider.Client { return s[name] }

// stubAI always answers with the same completion.
type stubAI struct{ resp string }

func (s *stubAI) Chat(ctx context.Context, messages []ai.Message, sessionID string) (string, error) {
	return s.resp, nil
}

// okPipeline emits a fixed pass result.
type okPipeline struct{}

func (okPipeline) Name() string  { return "Code Review" }
func (okPipeline) Enabled() bool { return true }
func (okPipeline) Review(ctx context.Context, mr *model.MergeRequest) (*model.PipelineResult, error) {
	return &model.PipelineResult{
		Summary: "looks fine",
		Comments: []*model.Comment{{
			ID: "c1", MRID: mr.MRID, Content: "consider a rename",
			Type: model.CommentFile, Position: &model.CommentPosition{NewPath: "main.go", NewLine: 1},
		}},
	}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers.GitLab.Token = "token"
	cfg.Providers.GitLab.WebhookSecret = "secret"
	cfg.Providers.GitHub.WebhookSecret = "gh-secret"
	cfg.Repos = "owner/repo"
	return cfg
}

func testMergeRequest() *model.MergeRequest {
	return &model.MergeRequest{
		MRID: "42", Owner: "owner", Repo: "repo",
		Title: "Add feature", State: model.StateOpen,
		FileDiffs: []model.FileDiff{{
			NewPath: "main.go", ChangeType: model.ChangeModify,
			DiffContent: "@@ -1 +1 @@\n-old\n+new",
		}},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, git *stubGit) *Server {
	t.Helper()

	mem := store.NewMemory()
	ledger := quota.NewLedger(mem, time.Hour)
	builder := discussion.NewBuilder(0)
	replies := review.NewReplyHandler("bot", &stubAI{resp: "try a guard clause"}, builder, ledger, 2, "")
	bot := review.NewBot("bot", ledger, review.NewGuardrail("bot", 20, 1000, 100000), []review.Pipeline{okPipeline{}}, replies, 100)
	svc := review.NewService(stubClients{"gitlab": git}, bot, builder, mem, 100)

	pool := dispatch.NewPool(dispatch.Config{Workers: 1, QueueSize: 8}, nil)
	t.Cleanup(pool.Shutdown)

	return New(cfg, svc, pool, event.NewDebouncer(time.Minute), ledger)
}

func doRequest(srv *Server, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubGit{})

	rec := doRequest(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if _, ok := health.Checks["queue_length"]; !ok {
		t.Error("missing queue_length check")
	}
	if _, ok := health.Checks["gitlab_configured"]; !ok {
		t.Error("missing gitlab_configured check")
	}
	if got, ok := health.Checks["ai_requests_remaining"]; !ok || got.(float64) != float64(testConfig().Limits.MaxAIRequestsPerHour) {
		t.Errorf("ai_requests_remaining = %v, want the full budget", got)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubGit{})

	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", rec.Code, http.StatusOK)
	}

	var m map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("Failed to parse metrics response: %v", err)
	}
	if _, ok := m["webhooks_received"]; !ok {
		t.Error("missing webhooks_received counter")
	}
}

func TestServer_WebhookTriggersReview(t *testing.T) {
	git := &stubGit{mr: testMergeRequest()}
	srv := newTestServer(t, testConfig(), git)

	payload := `{
		"object_kind": "merge_request",
		"project": {"path_with_namespace": "owner/repo"},
		"object_attributes": {"iid": 42, "action": "open"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", strings.NewReader(payload))
	req.Header.Set("X-Gitlab-Token", "secret")
	req.Header.Set("X-Gitlab-Event", "Merge Request Hook")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The review runs on the pool after the webhook response goes out.
	deadline := time.After(2 * time.Second)
	for git.createdCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("review never published a comment")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if draft := git.firstCreated(); !strings.HasPrefix(draft.Content, model.BotMarker) {
		t.Errorf("published comment %q should carry the bot marker", draft.Content)
	}
}

func TestServer_DuplicateDeliveryDebounced(t *testing.T) {
	git := &stubGit{mr: testMergeRequest()}
	srv := newTestServer(t, testConfig(), git)

	payload := `{
		"object_kind": "merge_request",
		"project": {"path_with_namespace": "owner/repo"},
		"object_attributes": {"iid": 42, "action": "open"}
	}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", strings.NewReader(payload))
		req.Header.Set("X-Gitlab-Token", "secret")
		req.Header.Set("X-Gitlab-Event", "Merge Request Hook")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d", i, rec.Code)
		}
	}

	deadline := time.After(2 * time.Second)
	for git.mergeRequestCalls() == 0 {
		select {
		case <-deadline:
			t.Fatal("review never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Give a would-be second run time to surface.
	time.Sleep(50 * time.Millisecond)
	if calls := git.mergeRequestCalls(); calls != 1 {
		t.Errorf("merge request fetched %d times, want 1", calls)
	}
}

func TestServer_ManualReview(t *testing.T) {
	git := &stubGit{mr: testMergeRequest()}
	srv := newTestServer(t, testConfig(), git)

	rec := doRequest(srv, http.MethodPost, "/api/v1/pulls/owner/repo/42/review", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result model.ReviewResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse review result: %v", err)
	}
	if result.OverallStatus != model.ReviewCommented {
		t.Errorf("overall_status = %q, want %q", result.OverallStatus, model.ReviewCommented)
	}
	if git.createdCount() == 0 {
		t.Error("manual review should publish comments")
	}
}

func TestServer_ManualReview_UnknownMR(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubGit{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/pulls/owner/repo/42/review", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_ManualReply_UnknownComment(t *testing.T) {
	git := &stubGit{mr: testMergeRequest()}
	srv := newTestServer(t, testConfig(), git)

	rec := doRequest(srv, http.MethodPost, "/api/v1/pulls/owner/repo/42/comments/999/reply", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d, body = %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}

func TestServer_Discussions(t *testing.T) {
	git := &stubGit{
		mr: testMergeRequest(),
		comments: []*model.Comment{
			{ID: "1", MRID: "42", Content: "root", CreatedAt: time.Now().Add(-time.Hour)},
			{ID: "2", MRID: "42", Content: "reply", ReplyTo: "1", CreatedAt: time.Now()},
		},
	}
	srv := newTestServer(t, testConfig(), git)

	rec := doRequest(srv, http.MethodGet, "/api/v1/pulls/owner/repo/42/discussions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		MRID        string              `json:"mr_id"`
		Discussions []*model.Discussion `json:"discussions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse discussions response: %v", err)
	}
	if len(resp.Discussions) != 1 {
		t.Fatalf("discussions = %d, want 1", len(resp.Discussions))
	}
	if len(resp.Discussions[0].Comments) != 2 {
		t.Errorf("comments = %d, want 2", len(resp.Discussions[0].Comments))
	}
}

func TestServer_ProviderParamRequiredWhenAmbiguous(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.GitHub.Token = "also-set"
	srv := newTestServer(t, cfg, &stubGit{mr: testMergeRequest()})

	rec := doRequest(srv, http.MethodPost, "/api/v1/pulls/owner/repo/42/review", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(srv, http.MethodPost, "/api/v1/pulls/owner/repo/42/review?provider=gitlab", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status with explicit provider = %d, want %d", rec.Code, http.StatusOK)
	}
}
