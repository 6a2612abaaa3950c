package publish

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/mastopilot/internal/state"
	"github.com/user/mastopilot/internal/types"
)

type fakePoster struct {
	postID string
	err    error
	calls  int
}

func (f *fakePoster) Post(context.Context, string, string, string) (string, error) {
	f.calls++
	return f.postID, f.err
}

type recordingAnnouncer struct {
	messages []string
}

func (r *recordingAnnouncer) Announce(text string) {
	r.messages = append(r.messages, text)
}

func draft() *types.GeneratedContent {
	return &types.GeneratedContent{
		ID:        types.NewContentID(),
		Text:      "hello fediverse #go",
		Origin:    "doc1",
		Status:    types.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}
}

func TestPublishSuccess(t *testing.T) {
	contents := state.NewContentStore(filepath.Join(t.TempDir(), "contents.json"))
	announcer := &recordingAnnouncer{}
	pub := New(&fakePoster{postID: "m123"}, contents, announcer)

	content := draft()
	if err := pub.Publish(context.Background(), content); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if content.Status != types.StatusPublished {
		t.Errorf("status = %q", content.Status)
	}
	if content.PostID != "m123" {
		t.Errorf("post id = %q", content.PostID)
	}
	if content.PublishedAt.IsZero() {
		t.Error("published_at not set")
	}

	recent, err := contents.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].PostID != "m123" {
		t.Errorf("content log = %+v", recent)
	}
	if len(announcer.messages) != 1 || !strings.Contains(announcer.messages[0], "m123") {
		t.Errorf("announcements = %v", announcer.messages)
	}
}

func TestPublishFailureFlipsToFailedAndSkipsLog(t *testing.T) {
	contents := state.NewContentStore(filepath.Join(t.TempDir(), "contents.json"))
	pub := New(&fakePoster{err: errors.New("instance down")}, contents, nil)

	content := draft()
	if err := pub.Publish(context.Background(), content); err == nil {
		t.Fatal("expected publish error")
	}
	if content.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", content.Status)
	}
	if content.PostID != "" {
		t.Errorf("post id = %q, want empty", content.PostID)
	}

	recent, err := contents.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("failed publish must not be logged, got %+v", recent)
	}
}

func TestPublishRejectsNonDraft(t *testing.T) {
	poster := &fakePoster{postID: "m1"}
	pub := New(poster, nil, nil)

	content := draft()
	content.Status = types.StatusPublished
	if err := pub.Publish(context.Background(), content); err == nil {
		t.Fatal("expected error for non-draft content")
	}
	if poster.calls != 0 {
		t.Error("poster must not be called for non-draft content")
	}
}

func TestPublishReplyAnnouncedAsReply(t *testing.T) {
	announcer := &recordingAnnouncer{}
	pub := New(&fakePoster{postID: "m9"}, nil, announcer)

	content := draft()
	content.ReplyToID = "orig-1"
	if err := pub.Publish(context.Background(), content); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(announcer.messages) != 1 || !strings.Contains(announcer.messages[0], "reply") {
		t.Errorf("announcements = %v", announcer.messages)
	}
}
