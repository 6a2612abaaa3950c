// internal/mastodon/client.go
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/user/mastopilot/internal/types"
)

// Config for the Mastodon client.
type Config struct {
	BaseURL     string
	AccessToken string
}

// Client talks to a Mastodon instance. It implements both
// types.NotificationSource and types.Poster.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a Mastodon client.
func New(config Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Client{
		config:     config,
		httpClient: rc.StandardClient(),
	}
}

// account is the subset of a Mastodon account object we use.
type account struct {
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

// status is the subset of a Mastodon status object we use.
type status struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	InReplyToID string    `json:"in_reply_to_id"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url"`
}

// notification is one entry of GET /api/v1/notifications.
type notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   account   `json:"account"`
	Status    *status   `json:"status"`
}

// VerifyCredentials checks the access token and returns the account name.
func (c *Client) VerifyCredentials(ctx context.Context) (string, error) {
	var acct account
	if err := c.get(ctx, "/api/v1/accounts/verify_credentials", &acct); err != nil {
		return "", fmt.Errorf("verify credentials: %w", err)
	}
	return acct.Username, nil
}

// ListNotifications returns recent notifications in fetch order. Status
// bodies arrive as HTML and are converted to plain markdown; the leading
// @-mention is stripped so prompts see only the message itself.
func (c *Client) ListNotifications(ctx context.Context) ([]types.Notification, error) {
	var raw []notification
	if err := c.get(ctx, "/api/v1/notifications?limit=20", &raw); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]types.Notification, 0, len(raw))
	for _, n := range raw {
		mapped := types.Notification{
			ID:        n.ID,
			Kind:      n.Type,
			Author:    n.Account.Acct,
			CreatedAt: n.CreatedAt,
		}
		if mapped.Author == "" {
			mapped.Author = n.Account.Username
		}
		if n.Status != nil {
			mapped.StatusID = n.Status.ID
			mapped.Text = cleanStatusText(n.Status.Content)
			if n.Type == "mention" && n.Status.InReplyToID != "" {
				mapped.Kind = types.KindReply
			}
		}
		out = append(out, mapped)
	}
	return out, nil
}

// Post publishes a status. If imageURL is set, the image is uploaded as a
// media attachment first; an upload failure degrades to a text-only post
// rather than failing the publish. Returns the new status id.
func (c *Client) Post(ctx context.Context, text, imageURL, replyToID string) (string, error) {
	body := map[string]any{"status": text}
	if replyToID != "" {
		body["in_reply_to_id"] = replyToID
	}
	if imageURL != "" {
		mediaID, err := c.uploadMedia(ctx, imageURL)
		if err != nil {
			slog.Warn("media upload failed, posting text-only", "error", err)
		} else {
			body["media_ids"] = []string{mediaID}
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal status: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v1/statuses", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	var posted status
	if err := c.send(req, &posted); err != nil {
		return "", fmt.Errorf("post status: %w", err)
	}
	return posted.ID, nil
}

// uploadMedia downloads the image and uploads it as a media attachment,
// returning the media id.
func (c *Client) uploadMedia(ctx context.Context, imageURL string) (string, error) {
	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create image request: %w", err)
	}
	imgResp, err := c.httpClient.Do(imgReq)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer imgResp.Body.Close()
	if imgResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: status %d", imgResp.StatusCode)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, imgResp.Body); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v2/media", &buf)
	if err != nil {
		return "", fmt.Errorf("create media request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	var media struct {
		ID string `json:"id"`
	}
	if err := c.send(req, &media); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	return media.ID, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mastodon API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// cleanStatusText converts a status HTML body to plain markdown and strips
// leading @-mentions.
func cleanStatusText(html string) string {
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		text = html
	}
	words := strings.Fields(text)
	for len(words) > 0 && strings.HasPrefix(strings.TrimLeft(words[0], "[\\"), "@") {
		words = words[1:]
	}
	return strings.Join(words, " ")
}
