// Package webhook turns provider-native webhook requests into canonical
// events. Each handler verifies the transport credential first, then maps
// its provider's payload shape onto event.Event, filtering out drafts,
// non-reply notes, disallowed repos and the bot's own comments.
package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reviewloop/reviewloop/internal/event"
)

var (
	// ErrAuthentication means the webhook signature or token did not verify.
	ErrAuthentication = errors.New("webhook authentication failed")

	// ErrMalformedEvent means required headers or payload fields are absent.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// RepoFilter reports whether events for a repository should be processed.
// Events for filtered repos are silently dropped, not rejected.
type RepoFilter func(owner, repo string) bool

// EventHandler consumes a normalized event. It should return quickly;
// anything slow belongs on the background dispatcher.
type EventHandler func(e *event.Event) error

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAuthentication):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrMalformedEvent):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
