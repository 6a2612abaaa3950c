// internal/types/models.go
package types

import "time"

// Document is a snapshot of a watched source document. Marker is the
// source-provided version token (RFC 3339 last-edited time for Notion),
// which compares lexicographically in chronological order.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Marker  string `json:"marker"`
}

// Notification kinds. Only mentions and replies are actionable; everything
// else (favourites, boosts, follows) is ignored by the detector.
const (
	KindMention = "mention"
	KindReply   = "reply"
)

// Notification is one inbound event from the social source. Immutable once
// fetched; dedup is tracked separately by id in the processed set.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	StatusID  string    `json:"status_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Passage is one retrieved supporting snippet with its similarity score.
type Passage struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Content status tags. Draft content has not touched the destination
// service; the publisher flips it to published or failed exactly once.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// GeneratedContent is one finished piece of content produced by the
// pipeline. ReplyToID is the destination status to reply to; empty means a
// new top-level post. Origin records what triggered it (a document id or a
// notification id).
type GeneratedContent struct {
	ID          ContentID `json:"id"`
	Text        string    `json:"text"`
	ImageURL    string    `json:"image_url,omitempty"`
	ReplyToID   string    `json:"reply_to_id,omitempty"`
	Origin      string    `json:"origin"`
	Status      string    `json:"status"`
	PostID      string    `json:"post_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Listener phases. A listener only polls while running; a stop request is
// observed at the top of the next cycle or sleep, never mid-cycle.
const (
	PhaseStopped  = "stopped"
	PhaseStarting = "starting"
	PhaseRunning  = "running"
	PhaseStopping = "stopping"
)

// ListenerStatus is a point-in-time snapshot of one listener, owned by the
// listener loop and read by the supervisor for status reporting.
type ListenerStatus struct {
	Name        string        `json:"name"`
	Phase       string        `json:"phase"`
	Interval    time.Duration `json:"interval"`
	LastRun     time.Time     `json:"last_run,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	ErrorStreak int           `json:"error_streak"`
}
