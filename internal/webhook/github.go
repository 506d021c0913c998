package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/reviewloop/reviewloop/internal/event"
	"github.com/reviewloop/reviewloop/internal/model"
)

// GitHubHandler handles GitHub webhook requests.
type GitHubHandler struct {
	secret  string
	allowed RepoFilter
	handler EventHandler
}

// NewGitHubHandler creates a new GitHub webhook handler.
func NewGitHubHandler(secret string, allowed RepoFilter, handler EventHandler) *GitHubHandler {
	return &GitHubHandler{
		secret:  secret,
		allowed: allowed,
		handler: handler,
	}
}

type gitHubPayload struct {
	Action     string `json:"action"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	PullRequest struct {
		Number int  `json:"number"`
		Draft  bool `json:"draft"`
	} `json:"pull_request"`
	Comment struct {
		ID          int64  `json:"id"`
		Body        string `json:"body"`
		InReplyToID int64  `json:"in_reply_to_id"`
	} `json:"comment"`
}

// ServeHTTP implements http.Handler.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		// Endpoint verification; GitHub only ever POSTs real deliveries.
		respondJSON(w, http.StatusOK, map[string]string{"status": "webhook verified"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, fmt.Errorf("%w: reading body", ErrMalformedEvent))
		return
	}

	if err := h.verifySignature(body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		respondError(w, err)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		respondError(w, fmt.Errorf("%w: missing X-GitHub-Event header", ErrMalformedEvent))
		return
	}

	evt, err := h.normalize(eventType, body)
	if err != nil {
		respondError(w, err)
		return
	}
	if evt == nil {
		respondJSON(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	if evt.Type == event.TypePing {
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "webhook configured successfully",
			"event":   "ping",
		})
		return
	}

	if err := h.handler(evt); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s task for %s/%s#%s scheduled", evt.Type, evt.RepoOwner, evt.RepoName, evt.MRID),
	})
}

// verifySignature checks the X-Hub-Signature-256 HMAC over the payload.
func (h *GitHubHandler) verifySignature(payload []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrAuthentication)
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return fmt.Errorf("%w: invalid signature format", ErrAuthentication)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return fmt.Errorf("%w: invalid signature encoding", ErrAuthentication)
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return fmt.Errorf("%w: invalid signature", ErrAuthentication)
	}
	return nil
}

// normalize maps a GitHub event onto the canonical model. A nil event with
// a nil error means the delivery is deliberately ignored.
func (h *GitHubHandler) normalize(eventType string, body []byte) (*event.Event, error) {
	var payload gitHubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing payload: %v", ErrMalformedEvent, err)
	}

	owner := payload.Repository.Owner.Login
	repo := payload.Repository.Name
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: missing repository information", ErrMalformedEvent)
	}

	if !h.allowed(owner, repo) {
		return nil, nil
	}

	base := event.Event{
		Provider:  "github",
		RepoOwner: owner,
		RepoName:  repo,
	}

	switch eventType {
	case "ping":
		base.Type = event.TypePing
		return &base, nil

	case "pull_request":
		// Only freshly opened, non-draft pull requests trigger a review.
		if payload.Action != "opened" || payload.PullRequest.Draft {
			return nil, nil
		}
		base.Type = event.TypeMROpened
		base.MRID = strconv.Itoa(payload.PullRequest.Number)
		return &base, nil

	case "pull_request_review_comment":
		if payload.Action != "created" {
			return nil, nil
		}
		// Only replies inside an existing thread, and never our own notes.
		if payload.Comment.InReplyToID == 0 {
			return nil, nil
		}
		if strings.Contains(payload.Comment.Body, model.BotMarker) {
			return nil, nil
		}
		base.Type = event.TypeMRComment
		base.MRID = strconv.Itoa(payload.PullRequest.Number)
		base.CommentID = strconv.FormatInt(payload.Comment.ID, 10)
		base.CommentBody = payload.Comment.Body
		return &base, nil
	}

	return nil, nil
}
