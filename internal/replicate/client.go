// internal/replicate/client.go
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Config for the Replicate client. Model is "owner/name" or
// "owner/name:version".
type Config struct {
	BaseURL  string
	APIToken string
	Model    string
}

// Client generates images through the Replicate predictions API. It
// implements types.ImageGenerator. A prediction is created, then polled
// until it succeeds, fails, or the context expires.
type Client struct {
	config       Config
	httpClient   *http.Client
	pollInterval time.Duration
}

// New creates a Replicate client.
func New(config Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Client{
		config:       config,
		httpClient:   rc.StandardClient(),
		pollInterval: 2 * time.Second,
	}
}

// prediction is the subset of a Replicate prediction object we use.
// Output is a URL string or a list of URL strings depending on the model.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Generate creates a prediction for the prompt and polls until it
// completes, returning the output image URL.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	p, err := c.create(ctx, prompt)
	if err != nil {
		return "", err
	}

	for {
		switch p.Status {
		case "succeeded":
			return outputURL(p.Output)
		case "failed", "canceled":
			return "", fmt.Errorf("prediction %s: %s", p.Status, p.Error)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for prediction: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		p, err = c.fetch(ctx, p.ID)
		if err != nil {
			return "", err
		}
	}
}

func (c *Client) create(ctx context.Context, prompt string) (*prediction, error) {
	body := map[string]any{
		"input": map[string]any{"prompt": prompt},
	}
	path := "/predictions"
	// Model references with an explicit version go to the generic endpoint;
	// bare model names use the model-scoped endpoint with the latest version.
	if _, version, ok := strings.Cut(c.config.Model, ":"); ok {
		body["version"] = version
	} else {
		path = "/models/" + c.config.Model + "/predictions"
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)

	var p prediction
	if err := c.send(req, &p); err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	return &p, nil
}

func (c *Client) fetch(ctx context.Context, id string) (*prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)

	var p prediction
	if err := c.send(req, &p); err != nil {
		return nil, fmt.Errorf("fetch prediction: %w", err)
	}
	return &p, nil
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
		return fmt.Errorf("replicate API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// outputURL extracts the image URL from a prediction output, which is
// either a string or a list of strings.
func outputURL(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}
	return "", fmt.Errorf("prediction output has no image URL: %s", string(raw))
}
