// Package pipeline turns one qualifying event into finished draft content.
// It performs no durable side effects: no posting, no marker or
// processed-set mutation, so a failed or interrupted run is safely
// retryable on a later cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/user/mastopilot/internal/types"
	"github.com/user/mastopilot/pkg/llm"
)

var (
	// ErrEmptyCompletion is returned when the model produced no usable text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrTooLong is returned when the completion exceeds the destination
	// character limit. Overlong content is never silently truncated.
	ErrTooLong = errors.New("completion exceeds character limit")
)

// Options configures a Pipeline.
type Options struct {
	// Retriever supplies supporting passages; nil disables retrieval.
	Retriever types.Retriever
	// Images generates an illustration for new posts; nil disables images.
	Images types.ImageGenerator
	// CharLimit is the destination service's post length limit.
	CharLimit int
	// TopK is how many supporting passages to retrieve.
	TopK int
	// MaxConcurrent bounds generation calls across all listeners.
	MaxConcurrent int64
}

// Pipeline assembles context, calls the language model, and optionally the
// image service, producing GeneratedContent with status draft.
type Pipeline struct {
	provider  llm.Provider
	source    types.DocumentSource
	retriever types.Retriever
	images    types.ImageGenerator
	charLimit int
	topK      int
	sem       *semaphore.Weighted
}

// New creates a Pipeline.
func New(provider llm.Provider, source types.DocumentSource, opts Options) *Pipeline {
	if opts.CharLimit <= 0 {
		opts.CharLimit = 500
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	return &Pipeline{
		provider:  provider,
		source:    source,
		retriever: opts.Retriever,
		images:    opts.Images,
		charLimit: opts.CharLimit,
		topK:      opts.TopK,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// ComposePost builds a new post for an updated document. The document
// content is re-fetched fresh so the post never reflects a snapshot cached
// from an earlier poll.
func (p *Pipeline) ComposePost(ctx context.Context, documentID string) (*types.GeneratedContent, error) {
	doc, err := p.source.FetchDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	passages := p.retrieve(ctx, doc.Content)
	text, err := p.complete(ctx, postMessages(doc, passages, p.charLimit))
	if err != nil {
		return nil, err
	}

	content := &types.GeneratedContent{
		ID:        types.NewContentID(),
		Text:      text,
		Origin:    doc.ID,
		Status:    types.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}

	// Image generation is best-effort and applies to new posts only.
	if p.images != nil {
		if url, err := p.generateImage(ctx, text); err != nil {
			slog.Warn("image generation degraded, continuing text-only", "document", doc.ID, "error", err)
		} else {
			content.ImageURL = url
		}
	}

	return content, nil
}

// ComposeReply builds a reply to a mention or reply notification. Replies
// never get images.
func (p *Pipeline) ComposeReply(ctx context.Context, n types.Notification) (*types.GeneratedContent, error) {
	passages := p.retrieve(ctx, n.Text)
	text, err := p.complete(ctx, replyMessages(n, passages, p.charLimit))
	if err != nil {
		return nil, err
	}

	return &types.GeneratedContent{
		ID:        types.NewContentID(),
		Text:      text,
		ReplyToID: n.StatusID,
		Origin:    n.ID,
		Status:    types.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// retrieve queries the supporting-passage index. Failures degrade to an
// empty result; a broken index must not abort the event.
func (p *Pipeline) retrieve(ctx context.Context, text string) []types.Passage {
	if p.retriever == nil || p.topK <= 0 {
		return nil
	}
	passages, err := p.retriever.Query(ctx, text, p.topK)
	if err != nil {
		slog.Warn("retrieval degraded, continuing without passages", "error", err)
		return nil
	}
	return passages
}

// complete runs one bounded model call and validates the result against
// the destination length limit.
func (p *Pipeline) complete(ctx context.Context, messages []llm.Message) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire generation slot: %w", err)
	}
	defer p.sem.Release(1)

	raw, err := p.provider.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}

	text := cleanCompletion(raw)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	if n := utf8.RuneCountInString(text); n > p.charLimit {
		return "", fmt.Errorf("%w: %d > %d", ErrTooLong, n, p.charLimit)
	}
	return text, nil
}

func (p *Pipeline) generateImage(ctx context.Context, postText string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire generation slot: %w", err)
	}
	prompt, err := p.provider.Complete(ctx, imageMessages(postText))
	p.sem.Release(1)
	if err != nil {
		return "", fmt.Errorf("derive image prompt: %w", err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("derive image prompt: %w", ErrEmptyCompletion)
	}

	url, err := p.images.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	return url, nil
}

var (
	leadingNumberRe = regexp.MustCompile(`^\d+[.)]\s*`)
	prefixLabelRe   = regexp.MustCompile(`(?i)^(post|mastodon post|reply|here's the (post|reply)):\s*`)
)

// cleanCompletion strips the numbering and label prefixes models sometimes
// add despite instructions. Only the head of the completion is touched;
// numbered lists inside the text stay intact.
func cleanCompletion(raw string) string {
	text := strings.TrimSpace(raw)
	text = leadingNumberRe.ReplaceAllString(text, "")
	text = prefixLabelRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
