// internal/retrieval/chunker.go
package retrieval

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one indexable slice of a document.
type Chunk struct {
	Source string
	Title  string
	Text   string
}

// Chunker splits document content into token-capped chunks along paragraph
// boundaries.
type Chunker struct {
	counter   func(string) int
	maxTokens int
	minChars  int
}

// NewChunker creates a chunker using the cl100k_base tokenizer. maxTokens
// caps each chunk; very short fragments (under ~25 chars) are dropped as
// noise.
func NewChunker(maxTokens int) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	counter := func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
	return newChunkerWithCounter(counter, maxTokens), nil
}

func newChunkerWithCounter(counter func(string) int, maxTokens int) *Chunker {
	return &Chunker{
		counter:   counter,
		maxTokens: maxTokens,
		minChars:  25,
	}
}

// Split breaks content into chunks, merging adjacent paragraphs until the
// token cap is reached. The document title (first "# " heading, or source
// id) is carried on every chunk so retrieved passages stay attributable.
func (c *Chunker) Split(source, content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	title := source
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "# "); ok {
			title = strings.TrimSpace(after)
			break
		}
	}

	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n\n")
		if len(text) >= c.minChars {
			chunks = append(chunks, Chunk{Source: source, Title: title, Text: text})
		}
		current = nil
		currentTokens = 0
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		tokens := c.counter(para)
		if currentTokens > 0 && currentTokens+tokens > c.maxTokens {
			flush()
		}
		current = append(current, para)
		currentTokens += tokens
		if currentTokens >= c.maxTokens {
			flush()
		}
	}
	flush()

	return chunks
}
