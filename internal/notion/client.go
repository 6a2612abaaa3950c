// internal/notion/client.go
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/user/mastopilot/internal/types"
)

const notionVersion = "2022-06-28"

// Config for the Notion client. Exactly one of DatabaseID or PageIDs is
// expected; if both are set the database wins, matching the upstream
// behavior.
type Config struct {
	BaseURL    string
	APIKey     string
	DatabaseID string
	PageIDs    []string
}

// Client reads documents from a Notion workspace. It implements
// types.DocumentSource. The underlying HTTP client retries transient
// failures transparently.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a Notion client.
func New(config Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Client{
		config:     config,
		httpClient: rc.StandardClient(),
	}
}

// ListDocuments returns the watched pages with their version markers.
// Content is left empty; it is fetched fresh per page at generation time.
func (c *Client) ListDocuments(ctx context.Context) ([]types.Document, error) {
	if c.config.DatabaseID != "" {
		return c.listDatabasePages(ctx)
	}

	var docs []types.Document
	for _, id := range c.config.PageIDs {
		p, err := c.retrievePage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("retrieve page %s: %w", id, err)
		}
		docs = append(docs, types.Document{ID: p.ID, Title: pageTitle(*p), Marker: p.LastEditedTime})
	}
	return docs, nil
}

func (c *Client) listDatabasePages(ctx context.Context) ([]types.Document, error) {
	var docs []types.Document
	cursor := ""
	for {
		body := map[string]any{}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var result queryResult
		if err := c.do(ctx, http.MethodPost, "/databases/"+c.config.DatabaseID+"/query", body, &result); err != nil {
			return nil, fmt.Errorf("query database: %w", err)
		}
		for _, p := range result.Results {
			docs = append(docs, types.Document{ID: p.ID, Title: pageTitle(p), Marker: p.LastEditedTime})
		}
		if !result.HasMore || result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	return docs, nil
}

// FetchDocument retrieves the full page content as markdown-ish text.
func (c *Client) FetchDocument(ctx context.Context, id string) (*types.Document, error) {
	p, err := c.retrievePage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieve page %s: %w", id, err)
	}

	var parts []string
	title := pageTitle(*p)
	if title != "" {
		parts = append(parts, "# "+title)
	}

	blocks, err := c.listBlocks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list blocks for %s: %w", id, err)
	}
	for _, b := range blocks {
		if text := blockText(b); text != "" {
			parts = append(parts, text)
		}
		if b.HasChildren {
			children, err := c.listBlocks(ctx, b.ID)
			if err != nil {
				return nil, fmt.Errorf("list child blocks for %s: %w", b.ID, err)
			}
			for _, child := range children {
				if text := blockText(child); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}

	return &types.Document{
		ID:      p.ID,
		Title:   title,
		Content: strings.Join(parts, "\n\n"),
		Marker:  p.LastEditedTime,
	}, nil
}

func (c *Client) retrievePage(ctx context.Context, id string) (*page, error) {
	var p page
	if err := c.do(ctx, http.MethodGet, "/pages/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) listBlocks(ctx context.Context, id string) ([]block, error) {
	var blocks []block
	cursor := ""
	for {
		path := "/blocks/" + id + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var list blockList
		if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
			return nil, err
		}
		blocks = append(blocks, list.Results...)
		if !list.HasMore || list.NextCursor == "" {
			break
		}
		cursor = list.NextCursor
	}
	return blocks, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Notion-Version", notionVersion)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notion API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, respBody); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// pageTitle pulls the title property off a page, if any.
func pageTitle(p page) string {
	for _, prop := range p.Properties {
		if prop.Type != "title" {
			continue
		}
		var sb strings.Builder
		for _, t := range prop.Title {
			sb.WriteString(t.PlainText)
		}
		return sb.String()
	}
	return ""
}

// blockText renders one block as markdown text.
func blockText(b block) string {
	switch b.Type {
	case "paragraph":
		return joinRichText(b.Paragraph, "", "")
	case "heading_1":
		return joinRichText(b.Heading1, "# ", "")
	case "heading_2":
		return joinRichText(b.Heading2, "## ", "")
	case "heading_3":
		return joinRichText(b.Heading3, "### ", "")
	case "bulleted_list_item":
		return joinRichText(b.BulletedListItem, "- ", "")
	case "numbered_list_item":
		return joinRichText(b.NumberedListItem, "1. ", "")
	case "code":
		return joinRichText(b.Code, "```\n", "\n```")
	}
	return ""
}

func joinRichText(tb *textBlock, prefix, suffix string) string {
	if tb == nil || len(tb.RichText) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range tb.RichText {
		sb.WriteString(t.PlainText)
	}
	if sb.Len() == 0 {
		return ""
	}
	return prefix + sb.String() + suffix
}
