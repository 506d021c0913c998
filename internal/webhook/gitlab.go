package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/reviewloop/reviewloop/internal/event"
	"github.com/reviewloop/reviewloop/internal/model"
)

// GitLabHandler handles GitLab webhook requests.
type GitLabHandler struct {
	secret  string
	allowed RepoFilter
	handler EventHandler
}

// NewGitLabHandler creates a new GitLab webhook handler.
func NewGitLabHandler(secret string, allowed RepoFilter, handler EventHandler) *GitLabHandler {
	return &GitLabHandler{
		secret:  secret,
		allowed: allowed,
		handler: handler,
	}
}

type gitLabPayload struct {
	ObjectKind string `json:"object_kind"`
	EventType  string `json:"event_type"`
	Project    struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		ID             int64  `json:"id"`
		IID            int    `json:"iid"`
		Action         string `json:"action"`
		NoteableType   string `json:"noteable_type"`
		Type           string `json:"type"`
		Note           string `json:"note"`
		Draft          bool   `json:"draft"`
		WorkInProgress bool   `json:"work_in_progress"`
	} `json:"object_attributes"`
	MergeRequest struct {
		IID int `json:"iid"`
	} `json:"merge_request"`
}

// ServeHTTP implements http.Handler.
func (h *GitLabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, map[string]string{"status": "webhook verified"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, fmt.Errorf("%w: reading body", ErrMalformedEvent))
		return
	}

	token := r.Header.Get("X-Gitlab-Token")
	if token == "" {
		respondError(w, fmt.Errorf("%w: missing token", ErrAuthentication))
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		respondError(w, fmt.Errorf("%w: invalid token", ErrAuthentication))
		return
	}

	eventType := r.Header.Get("X-Gitlab-Event")
	if eventType == "" {
		respondError(w, fmt.Errorf("%w: missing X-Gitlab-Event header", ErrMalformedEvent))
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
		"message": fmt.Sprintf("%s task for %s/%s!%s scheduled", evt.Type, evt.RepoOwner, evt.RepoName, evt.MRID),
	})
}

// normalize maps a GitLab event onto the canonical model. A nil event with
// a nil error means the delivery is deliberately ignored.
func (h *GitLabHandler) normalize(eventType string, body []byte) (*event.Event, error) {
	var payload gitLabPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing payload: %v", ErrMalformedEvent, err)
	}

	parts := strings.SplitN(payload.Project.PathWithNamespace, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: missing project information", ErrMalformedEvent)
	}
	owner, repo := parts[0], parts[1]

	if !h.allowed(owner, repo) {
		return nil, nil
	}

	base := event.Event{
		Provider:  "gitlab",
		RepoOwner: owner,
		RepoName:  repo,
	}

	switch eventType {
	case "System Hook":
		// GitLab has no ping event; project creation doubles as the
		// configuration handshake.
		if payload.EventType == "project_create" {
			base.Type = event.TypePing
			return &base, nil
		}
		return nil, nil

	case "Merge Request Hook":
		if payload.ObjectAttributes.Action != "open" {
			return nil, nil
		}
		if payload.ObjectAttributes.Draft || payload.ObjectAttributes.WorkInProgress {
			return nil, nil
		}
		base.Type = event.TypeMROpened
		base.MRID = strconv.Itoa(payload.ObjectAttributes.IID)
		return &base, nil

	case "Note Hook":
		if payload.ObjectAttributes.NoteableType != "MergeRequest" {
			return nil, nil
		}
		// Only discussion replies; top-level notes do not trigger the bot.
		if payload.ObjectAttributes.Type != "DiscussionNote" {
			return nil, nil
		}
		if strings.Contains(payload.ObjectAttributes.Note, model.BotMarker) {
			return nil, nil
		}
		base.Type = event.TypeMRComment
		base.MRID = strconv.Itoa(payload.MergeRequest.IID)
		base.CommentID = strconv.FormatInt(payload.ObjectAttributes.ID, 10)
		base.CommentBody = payload.ObjectAttributes.Note
		return &base, nil
	}

	return nil, nil
}
