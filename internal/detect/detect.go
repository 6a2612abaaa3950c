// Package detect decides which fetched source items qualify for processing.
// It is pure comparison logic: no external calls, no state mutation.
package detect

import (
	"fmt"

	"github.com/user/mastopilot/internal/types"
)

// Documents returns the subset of docs whose fetched marker is strictly
// newer than the stored one, or that have no stored marker yet (first
// sight). Markers compare as strings; RFC 3339 timestamps order
// lexicographically. An exactly-equal marker never qualifies, so a
// duplicate fetch cannot reprocess a document.
func Documents(docs []types.Document, markers types.MarkerStore) ([]types.Document, error) {
	var qualifying []types.Document
	for _, doc := range docs {
		stored, ok, err := markers.Marker(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("read marker for %s: %w", doc.ID, err)
		}
		if ok && doc.Marker <= stored {
			continue
		}
		qualifying = append(qualifying, doc)
	}
	return qualifying, nil
}

// Notifications returns, in fetch order, the notifications that are
// mentions or replies and have not been processed before.
func Notifications(notifs []types.Notification, processed types.ProcessedStore) ([]types.Notification, error) {
	var qualifying []types.Notification
	for _, n := range notifs {
		if n.Kind != types.KindMention && n.Kind != types.KindReply {
			continue
		}
		done, err := processed.Has(n.ID)
		if err != nil {
			return nil, fmt.Errorf("check processed %s: %w", n.ID, err)
		}
		if done {
			continue
		}
		qualifying = append(qualifying, n)
	}
	return qualifying, nil
}
