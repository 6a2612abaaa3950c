// Package publish posts finished content to the destination service and
// records the result. It owns the only durable side effect of the content
// path: the published-content log. Marker and processed-set advancement
// stay with the listener, which only advances them after Publish succeeds.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/mastopilot/internal/types"
)

// Announcer receives a short human-readable note about each publish.
type Announcer interface {
	Announce(text string)
}

// Publisher posts draft content and flips its status exactly once.
type Publisher struct {
	poster   types.Poster
	contents types.ContentStore
	announce Announcer
}

// New creates a Publisher. contents may be nil to skip the log; announce
// may be nil to skip operator announcements.
func New(poster types.Poster, contents types.ContentStore, announce Announcer) *Publisher {
	return &Publisher{poster: poster, contents: contents, announce: announce}
}

// Publish posts the draft. On success the content carries the
// destination-assigned id and status published, and is appended to the
// content log. On failure the status flips to failed and the error is
// returned without touching any store, leaving the event eligible for a
// retry on a later cycle.
func (p *Publisher) Publish(ctx context.Context, content *types.GeneratedContent) error {
	if content.Status != types.StatusDraft {
		return fmt.Errorf("content %s is %s, not draft", content.ID, content.Status)
	}

	postID, err := p.poster.Post(ctx, content.Text, content.ImageURL, content.ReplyToID)
	if err != nil {
		content.Status = types.StatusFailed
		return fmt.Errorf("post content %s: %w", content.ID, err)
	}

	content.PostID = postID
	content.Status = types.StatusPublished
	content.PublishedAt = time.Now().UTC()

	if p.contents != nil {
		if err := p.contents.Append(content); err != nil {
			// The post is out; a log write failure must not make the caller
			// treat the publish as failed and repost.
			slog.Error("content log append failed", "content", content.ID, "error", err)
		}
	}
	if p.announce != nil {
		kind := "post"
		if content.ReplyToID != "" {
			kind = "reply"
		}
		p.announce.Announce(fmt.Sprintf("Published %s %s:\n%s", kind, postID, content.Text))
	}
	return nil
}
