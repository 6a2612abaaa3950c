package listener

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/mastopilot/internal/detect"
	"github.com/user/mastopilot/internal/types"
)

// PostComposer generates a draft post from an updated document.
type PostComposer interface {
	ComposePost(ctx context.Context, documentID string) (*types.GeneratedContent, error)
}

// ReplyComposer generates a draft reply to a notification.
type ReplyComposer interface {
	ComposeReply(ctx context.Context, n types.Notification) (*types.GeneratedContent, error)
}

// Publisher posts a draft to the destination service.
type Publisher interface {
	Publish(ctx context.Context, content *types.GeneratedContent) error
}

// DocumentCycle returns the poll cycle for the document watcher: list
// documents, detect marker changes, and for each qualifying document
// generate and publish a post. The stored marker is advanced only after a
// confirmed publish, so a failed event is re-offered on the next cycle.
// Per-document failures are logged and skipped; only a fetch failure
// fails the cycle.
func DocumentCycle(source types.DocumentSource, markers types.MarkerStore, composer PostComposer, pub Publisher, callTimeout time.Duration) CycleFunc {
	return func(ctx context.Context) error {
		listCtx, cancel := context.WithTimeout(ctx, callTimeout)
		docs, err := source.ListDocuments(listCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}

		qualifying, err := detect.Documents(docs, markers)
		if err != nil {
			return fmt.Errorf("detect document changes: %w", err)
		}

		for _, doc := range qualifying {
			if err := publishDocument(ctx, doc, markers, composer, pub, callTimeout); err != nil {
				slog.Error("document event failed", "document", doc.ID, "error", err)
			}
		}
		return nil
	}
}

func publishDocument(ctx context.Context, doc types.Document, markers types.MarkerStore, composer PostComposer, pub Publisher, callTimeout time.Duration) error {
	genCtx, cancel := context.WithTimeout(ctx, callTimeout)
	content, err := composer.ComposePost(genCtx, doc.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("compose post: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, callTimeout)
	err = pub.Publish(pubCtx, content)
	cancel()
	if err != nil {
		return err
	}

	if err := markers.SetMarker(doc.ID, doc.Marker); err != nil {
		return fmt.Errorf("advance marker for %s: %w", doc.ID, err)
	}
	slog.Info("document post published", "document", doc.ID, "marker", doc.Marker, "post", content.PostID)
	return nil
}

// NotificationCycle returns the poll cycle for the notification watcher:
// list notifications, drop kinds that never get replies and anything
// already processed, then generate and publish a reply for the rest. A
// notification enters the processed set only after its reply is
// confirmed published.
func NotificationCycle(source types.NotificationSource, processed types.ProcessedStore, composer ReplyComposer, pub Publisher, callTimeout time.Duration) CycleFunc {
	return func(ctx context.Context) error {
		listCtx, cancel := context.WithTimeout(ctx, callTimeout)
		notifs, err := source.ListNotifications(listCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}

		qualifying, err := detect.Notifications(notifs, processed)
		if err != nil {
			return fmt.Errorf("detect notifications: %w", err)
		}

		for _, n := range qualifying {
			if err := publishReply(ctx, n, processed, composer, pub, callTimeout); err != nil {
				slog.Error("notification event failed", "notification", n.ID, "error", err)
			}
		}
		return nil
	}
}

func publishReply(ctx context.Context, n types.Notification, processed types.ProcessedStore, composer ReplyComposer, pub Publisher, callTimeout time.Duration) error {
	genCtx, cancel := context.WithTimeout(ctx, callTimeout)
	content, err := composer.ComposeReply(genCtx, n)
	cancel()
	if err != nil {
		return fmt.Errorf("compose reply: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, callTimeout)
	err = pub.Publish(pubCtx, content)
	cancel()
	if err != nil {
		return err
	}

	if err := processed.Mark(n.ID); err != nil {
		return fmt.Errorf("mark notification %s processed: %w", n.ID, err)
	}
	slog.Info("reply published", "notification", n.ID, "author", n.Author, "post", content.PostID)
	return nil
}
