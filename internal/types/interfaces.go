// internal/types/interfaces.go
package types

import "context"

// DocumentSource is the read-only view of the watched document workspace.
// ListDocuments returns ids and version markers only; FetchDocument returns
// the full content and is called fresh at generation time so a post is never
// built from a snapshot cached across polls.
type DocumentSource interface {
	ListDocuments(ctx context.Context) ([]Document, error)
	FetchDocument(ctx context.Context, id string) (*Document, error)
}

// NotificationSource lists recent inbound notifications, newest batch first
// as returned by the service. Deduplication is the caller's job.
type NotificationSource interface {
	ListNotifications(ctx context.Context) ([]Notification, error)
}

// Retriever queries the supporting-passage index. Failures are best-effort
// for callers: the pipeline proceeds with no passages rather than aborting.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]Passage, error)
}

// ImageGenerator produces an image for a prompt and returns a URL reference.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Poster publishes text (optionally with an image, optionally as a reply)
// to the destination service and returns the assigned post id.
type Poster interface {
	Post(ctx context.Context, text, imageURL, replyToID string) (string, error)
}

// MarkerStore is the durable documentId -> last-processed-marker mapping.
type MarkerStore interface {
	Marker(documentID string) (string, bool, error)
	SetMarker(documentID, marker string) error
}

// ProcessedStore is the durable append-only set of handled notification ids.
type ProcessedStore interface {
	Has(id string) (bool, error)
	Mark(id string) error
}

// ContentStore is the durable log of published content.
type ContentStore interface {
	Append(content *GeneratedContent) error
	Recent(limit int) ([]*GeneratedContent, error)
}
