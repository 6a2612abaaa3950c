package listener

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/user/mastopilot/internal/state"
	"github.com/user/mastopilot/internal/types"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartIsIdempotent(t *testing.T) {
	ran := make(chan struct{}, 10)
	l := New("docs", time.Hour, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	defer l.Stop(time.Second)

	if !l.Start() {
		t.Fatal("first Start should launch the loop")
	}
	<-ran
	if l.Start() {
		t.Error("second Start must be a no-op")
	}
	waitFor(t, func() bool { return l.Status().Phase == types.PhaseRunning })
	if len(ran) != 0 {
		t.Error("second Start spawned another loop")
	}
}

func TestStopMidSleepIsFast(t *testing.T) {
	ran := make(chan struct{}, 1)
	l := New("docs", time.Hour, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	l.Start()
	<-ran

	start := time.Now()
	if !l.Stop(time.Second) {
		t.Fatal("Stop timed out")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("stop during a 1h sleep took %v", elapsed)
	}
	if phase := l.Status().Phase; phase != types.PhaseStopped {
		t.Errorf("phase = %q, want stopped", phase)
	}
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	l := New("docs", time.Hour, func(context.Context) error {
		close(entered)
		<-release
		return nil
	})

	l.Start()
	<-entered

	l.RequestStop()
	if l.AwaitStopped(50 * time.Millisecond) {
		t.Fatal("listener stopped while a cycle was in flight")
	}
	if phase := l.Status().Phase; phase != types.PhaseStopping {
		t.Errorf("phase = %q, want stopping", phase)
	}

	close(release)
	if !l.AwaitStopped(time.Second) {
		t.Fatal("listener did not stop after the cycle finished")
	}
}

func TestRestartAfterStop(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	l := New("docs", time.Hour, func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	l.Start()
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return runs == 1 })
	l.Stop(time.Second)

	if !l.Start() {
		t.Fatal("restart after stop should launch a new loop")
	}
	defer l.Stop(time.Second)
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return runs == 2 })
}

func TestErrorStreakCountsAndResets(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	var streaks []int
	hook := func(name string, streak int, err error) {
		mu.Lock()
		streaks = append(streaks, streak)
		mu.Unlock()
	}

	nextErr := func() error {
		mu.Lock()
		defer mu.Unlock()
		if len(errs) == 0 {
			return nil
		}
		err := errs[0]
		errs = errs[1:]
		return err
	}
	mu.Lock()
	errs = []error{errors.New("down"), errors.New("still down"), nil, errors.New("down again")}
	mu.Unlock()

	l := New("docs", time.Millisecond, func(context.Context) error { return nextErr() }, WithErrorHook(hook))
	l.Start()
	defer l.Stop(time.Second)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(streaks) >= 3
	})

	mu.Lock()
	got := append([]int(nil), streaks[:3]...)
	mu.Unlock()
	// Two failures, a success resetting the count, then a fresh failure.
	want := []int{1, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("streaks = %v, want prefix %v", got, want)
		}
	}
}

func TestSuccessClearsLastError(t *testing.T) {
	var mu sync.Mutex
	checked := make(chan struct{})
	calls := 0
	l := New("docs", time.Millisecond, func(context.Context) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			return errors.New("transient outage")
		case 2:
			// Hold the success until the failed state has been observed.
			<-checked
		}
		return nil
	})
	l.Start()
	defer l.Stop(time.Second)

	// The first cycle fails and records the error.
	waitFor(t, func() bool { return l.Status().ErrorStreak == 1 })
	if st := l.Status(); st.LastError == "" {
		t.Fatal("failed cycle did not record an error")
	}
	close(checked)

	// The next success clears both the streak and the error string.
	waitFor(t, func() bool { return l.Status().ErrorStreak == 0 })
	if st := l.Status(); st.LastError != "" {
		t.Errorf("last error = %q after a successful cycle", st.LastError)
	}
}

// --- cycle fakes ---

type scriptedDocs struct {
	mu   sync.Mutex
	docs []types.Document
	err  error
}

func (s *scriptedDocs) ListDocuments(context.Context) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]types.Document(nil), s.docs...), nil
}

func (s *scriptedDocs) FetchDocument(_ context.Context, id string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.docs {
		if s.docs[i].ID == id {
			doc := s.docs[i]
			return &doc, nil
		}
	}
	return nil, fmt.Errorf("document %s not found", id)
}

type scriptedNotifs struct {
	notifs []types.Notification
	err    error
}

func (s *scriptedNotifs) ListNotifications(context.Context) ([]types.Notification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.notifs, nil
}

type fakeComposer struct {
	posts   []string
	replies []string
	failFor map[string]error
}

func (f *fakeComposer) ComposePost(_ context.Context, documentID string) (*types.GeneratedContent, error) {
	if err := f.failFor[documentID]; err != nil {
		return nil, err
	}
	f.posts = append(f.posts, documentID)
	return &types.GeneratedContent{
		ID:     types.NewContentID(),
		Text:   "post for " + documentID,
		Origin: documentID,
		Status: types.StatusDraft,
	}, nil
}

func (f *fakeComposer) ComposeReply(_ context.Context, n types.Notification) (*types.GeneratedContent, error) {
	if err := f.failFor[n.ID]; err != nil {
		return nil, err
	}
	f.replies = append(f.replies, n.ID)
	return &types.GeneratedContent{
		ID:        types.NewContentID(),
		Text:      "reply to " + n.Author,
		ReplyToID: n.StatusID,
		Origin:    n.ID,
		Status:    types.StatusDraft,
	}, nil
}

type fakePublisher struct {
	failNext  int
	published []*types.GeneratedContent
}

func (f *fakePublisher) Publish(_ context.Context, content *types.GeneratedContent) error {
	if f.failNext > 0 {
		f.failNext--
		content.Status = types.StatusFailed
		return errors.New("instance down")
	}
	content.Status = types.StatusPublished
	content.PostID = fmt.Sprintf("m%d", len(f.published)+1)
	f.published = append(f.published, content)
	return nil
}

func TestDocumentCycleMarkerAdvancesOnlyAfterPublish(t *testing.T) {
	markers := state.NewMarkerStore(filepath.Join(t.TempDir(), "markers.json"))
	source := &scriptedDocs{docs: []types.Document{{ID: "doc1", Title: "T", Content: "body", Marker: "2024-01-01T00:00:00Z"}}}
	composer := &fakeComposer{}
	pub := &fakePublisher{failNext: 1}
	cycle := DocumentCycle(source, markers, composer, pub, time.Second)

	// First cycle: publish fails, the marker must not move.
	if err := cycle(context.Background()); err != nil {
		t.Fatalf("per-event failure must not fail the cycle: %v", err)
	}
	if _, ok, _ := markers.Marker("doc1"); ok {
		t.Fatal("marker advanced despite failed publish")
	}

	// Second cycle: the same update is re-offered and now succeeds.
	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	marker, ok, err := markers.Marker("doc1")
	if err != nil || !ok || marker != "2024-01-01T00:00:00Z" {
		t.Fatalf("marker = %q ok=%v err=%v", marker, ok, err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}

	// Third cycle: equal marker never qualifies again.
	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(composer.posts) != 2 {
		t.Errorf("compose calls = %d, want 2 (one failed publish retry, no repeat after success)", len(composer.posts))
	}

	// A strictly newer marker qualifies once more.
	source.mu.Lock()
	source.docs[0].Marker = "2024-01-02T00:00:00Z"
	source.mu.Unlock()
	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 2 {
		t.Errorf("published = %d, want 2", len(pub.published))
	}
	if marker, _, _ := markers.Marker("doc1"); marker != "2024-01-02T00:00:00Z" {
		t.Errorf("marker = %q", marker)
	}
}

func TestDocumentCycleFetchFailureFailsCycle(t *testing.T) {
	markers := state.NewMarkerStore(filepath.Join(t.TempDir(), "markers.json"))
	composer := &fakeComposer{}
	cycle := DocumentCycle(&scriptedDocs{err: errors.New("api down")}, markers, composer, &fakePublisher{}, time.Second)

	if err := cycle(context.Background()); err == nil {
		t.Fatal("fetch failure must fail the cycle")
	}
	if len(composer.posts) != 0 {
		t.Error("no generation should run when the fetch fails")
	}
}

func TestDocumentCyclePerEventIsolation(t *testing.T) {
	markers := state.NewMarkerStore(filepath.Join(t.TempDir(), "markers.json"))
	source := &scriptedDocs{docs: []types.Document{
		{ID: "doc1", Marker: "2024-03-01T00:00:00Z"},
		{ID: "doc2", Marker: "2024-03-01T00:00:00Z"},
	}}
	composer := &fakeComposer{failFor: map[string]error{"doc1": errors.New("model refused")}}
	pub := &fakePublisher{}
	cycle := DocumentCycle(source, markers, composer, pub, time.Second)

	if err := cycle(context.Background()); err != nil {
		t.Fatalf("one bad event must not fail the cycle: %v", err)
	}
	if len(pub.published) != 1 || pub.published[0].Origin != "doc2" {
		t.Fatalf("published = %+v, want doc2 only", pub.published)
	}
	if _, ok, _ := markers.Marker("doc1"); ok {
		t.Error("failed event's marker advanced")
	}
	if marker, _, _ := markers.Marker("doc2"); marker != "2024-03-01T00:00:00Z" {
		t.Errorf("doc2 marker = %q", marker)
	}
}

func TestNotificationCycleRepliesOnceAndMarksProcessed(t *testing.T) {
	processed := state.NewProcessedStore(filepath.Join(t.TempDir(), "processed.json"))
	source := &scriptedNotifs{notifs: []types.Notification{
		{ID: "n1", Kind: "favourite", StatusID: "s1", Author: "bob"},
		{ID: "n2", Kind: types.KindMention, StatusID: "s2", Author: "alice", Text: "hey @bot"},
	}}
	composer := &fakeComposer{}
	pub := &fakePublisher{}
	cycle := NotificationCycle(source, processed, composer, pub, time.Second)

	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 1 || pub.published[0].ReplyToID != "s2" {
		t.Fatalf("published = %+v, want one reply to s2", pub.published)
	}
	if ok, _ := processed.Has("n2"); !ok {
		t.Error("n2 not marked processed after publish")
	}
	if ok, _ := processed.Has("n1"); ok {
		t.Error("favourite n1 must never enter the processed set")
	}

	// Re-delivery of the same batch produces nothing new.
	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(composer.replies) != 1 {
		t.Errorf("compose calls = %d, want 1", len(composer.replies))
	}
}

func TestNotificationCycleFailedPublishRetriesLater(t *testing.T) {
	processed := state.NewProcessedStore(filepath.Join(t.TempDir(), "processed.json"))
	source := &scriptedNotifs{notifs: []types.Notification{
		{ID: "n5", Kind: types.KindReply, StatusID: "s5", Author: "carol", Text: "what about pricing?"},
	}}
	pub := &fakePublisher{failNext: 1}
	cycle := NotificationCycle(source, processed, &fakeComposer{}, pub, time.Second)

	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ok, _ := processed.Has("n5"); ok {
		t.Fatal("notification marked processed despite failed publish")
	}

	if err := cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ok, _ := processed.Has("n5"); !ok {
		t.Error("notification not marked processed after successful retry")
	}
	if len(pub.published) != 1 {
		t.Errorf("published = %d, want 1", len(pub.published))
	}
}
