//go:build integration

package test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/mastopilot/internal/automation"
	"github.com/user/mastopilot/internal/listener"
	"github.com/user/mastopilot/internal/pipeline"
	"github.com/user/mastopilot/internal/publish"
	"github.com/user/mastopilot/internal/state"
	"github.com/user/mastopilot/internal/types"
	"github.com/user/mastopilot/pkg/llm"
)

type memorySource struct {
	mu   sync.Mutex
	docs map[string]types.Document
}

func (m *memorySource) ListDocuments(context.Context) ([]types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []types.Document
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (m *memorySource) FetchDocument(_ context.Context, id string) (*types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.docs[id]
	return &doc, nil
}

type memoryNotifs struct {
	mu     sync.Mutex
	notifs []types.Notification
}

func (m *memoryNotifs) ListNotifications(context.Context) ([]types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Notification(nil), m.notifs...), nil
}

type echoProvider struct{}

func (echoProvider) Complete(_ context.Context, messages []llm.Message) (string, error) {
	// Short deterministic completion derived from the user prompt.
	user := strings.ReplaceAll(messages[len(messages)-1].Content, "\n", " ")
	if len(user) > 40 {
		user = user[:40]
	}
	return "generated: " + user, nil
}

type memoryPoster struct {
	mu    sync.Mutex
	posts []string
}

func (m *memoryPoster) Post(_ context.Context, text, imageURL, replyToID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, text)
	return "post-" + time.Now().Format("150405.000000000"), nil
}

func (m *memoryPoster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	markers := state.NewMarkerStore(filepath.Join(dir, "markers.json"))
	processed := state.NewProcessedStore(filepath.Join(dir, "processed.json"))
	contents := state.NewContentStore(filepath.Join(dir, "contents.json"))

	source := &memorySource{docs: map[string]types.Document{
		"doc1": {ID: "doc1", Title: "Services", Content: "We build Go daemons.", Marker: "2024-05-01T10:00:00Z"},
	}}
	notifs := &memoryNotifs{notifs: []types.Notification{
		{ID: "n1", Kind: types.KindMention, StatusID: "s1", Author: "alice", Text: "do you do consulting?"},
	}}
	poster := &memoryPoster{}

	pipe := pipeline.New(echoProvider{}, source, pipeline.Options{CharLimit: 500})
	pub := publish.New(poster, contents, nil)

	sup := automation.New(
		listener.New("documents", 20*time.Millisecond,
			listener.DocumentCycle(source, markers, pipe, pub, time.Second)),
		listener.New("notifications", 20*time.Millisecond,
			listener.NotificationCycle(notifs, processed, pipe, pub, time.Second)),
	)
	sup.Start()
	defer sup.Stop(2 * time.Second)

	waitFor(t, func() bool { return poster.count() >= 2 })

	// One post for the document, one reply for the mention.
	if marker, ok, _ := markers.Marker("doc1"); !ok || marker != "2024-05-01T10:00:00Z" {
		t.Errorf("marker = %q ok=%v", marker, ok)
	}
	if ok, _ := processed.Has("n1"); !ok {
		t.Error("mention not marked processed")
	}

	// Steady state: no new events, no new posts.
	before := poster.count()
	time.Sleep(100 * time.Millisecond)
	if poster.count() != before {
		t.Errorf("posts grew from %d to %d without new events", before, poster.count())
	}

	// A strictly newer marker produces exactly one more post.
	source.mu.Lock()
	doc := source.docs["doc1"]
	doc.Marker = "2024-05-02T09:00:00Z"
	doc.Content = "We build Go daemons and bots."
	source.docs["doc1"] = doc
	source.mu.Unlock()

	waitFor(t, func() bool { return poster.count() == before+1 })

	if !sup.Stop(2 * time.Second) {
		t.Fatal("supervisor did not stop cleanly")
	}

	recent, err := contents.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != before+1 {
		t.Errorf("content log entries = %d, want %d", len(recent), before+1)
	}
	for _, c := range recent {
		if c.Status != types.StatusPublished || c.PostID == "" {
			t.Errorf("logged content not published: %+v", c)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
