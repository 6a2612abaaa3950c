// internal/retrieval/refresh.go
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/mastopilot/internal/types"
)

// Refresher re-embeds the watched documents into the index on a cron
// schedule, so retrieval context tracks source edits even between
// qualifying document events.
type Refresher struct {
	source  types.DocumentSource
	index   *Index
	cron    *cron.Cron
	timeout time.Duration
}

// NewRefresher creates a refresher that rebuilds index from source.
// timeout bounds each rebuild run.
func NewRefresher(source types.DocumentSource, index *Index, timeout time.Duration) *Refresher {
	return &Refresher{
		source:  source,
		index:   index,
		cron:    cron.New(),
		timeout: timeout,
	}
}

// Start registers the schedule (standard 5-field cron or a descriptor like
// "@hourly") and starts the ticker. One refresh runs immediately so the
// index is populated before the first qualifying event.
func (r *Refresher) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.refresh); err != nil {
		return err
	}
	go r.refresh()
	r.cron.Start()
	slog.Info("retrieval refresh scheduled", "schedule", schedule)
	return nil
}

// Stop stops the cron ticker.
func (r *Refresher) Stop() {
	r.cron.Stop()
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	docs, err := r.source.ListDocuments(ctx)
	if err != nil {
		slog.Error("retrieval refresh: list documents failed", "error", err)
		return
	}
	for i, doc := range docs {
		full, err := r.source.FetchDocument(ctx, doc.ID)
		if err != nil {
			slog.Error("retrieval refresh: fetch document failed", "document", doc.ID, "error", err)
			return
		}
		docs[i] = *full
	}
	if err := r.index.Rebuild(ctx, docs); err != nil {
		slog.Error("retrieval refresh: rebuild failed", "error", err)
	}
}
