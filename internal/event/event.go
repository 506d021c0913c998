package event

// Type represents the canonical type of a webhook event.
type Type string

const (
	// TypePing is the provider's webhook configuration test event.
	TypePing Type = "ping"

	// TypeMROpened fires when a non-draft merge request is first opened.
	TypeMROpened Type = "mr_opened"

	// TypeMRComment fires when someone replies inside a review discussion.
	TypeMRComment Type = "mr_comment"
)

// Event is a normalized webhook event. Provider-specific payload shapes are
// mapped onto this one model by the webhook package.
type Event struct {
	Type     Type
	Provider string // github or gitlab

	RepoOwner string
	RepoName  string

	// MRID is the provider-native merge request number as a string.
	MRID string

	// Comment fields, set for TypeMRComment only.
	CommentID   string
	CommentBody string
}

// Key returns a unique key for this event (used for debouncing).
func (e *Event) Key() string {
	return e.Provider + "/" + e.RepoOwner + "/" + e.RepoName + "/" + string(e.Type) + "/" + e.MRID + "/" + e.CommentID
}
