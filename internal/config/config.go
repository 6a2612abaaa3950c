package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	HTTP     struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Notion struct {
		BaseURL    string   `json:"base_url"`
		APIKey     string   `json:"api_key"`
		DatabaseID string   `json:"database_id"`
		PageIDs    []string `json:"page_ids"`
	} `json:"notion"`
	Mastodon struct {
		BaseURL     string `json:"base_url"`
		AccessToken string `json:"access_token"`
		CharLimit   int    `json:"char_limit"`
	} `json:"mastodon"`
	LLM struct {
		BaseURL     string  `json:"base_url"`
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		EmbedModel  string  `json:"embed_model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
	} `json:"llm"`
	Replicate struct {
		BaseURL  string `json:"base_url"`
		APIToken string `json:"api_token"`
		Model    string `json:"model"`
	} `json:"replicate"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	Automation struct {
		AutoStart               bool   `json:"auto_start"`
		DocumentPollSeconds     int    `json:"document_poll_seconds"`
		NotificationPollSeconds int    `json:"notification_poll_seconds"`
		CallTimeoutSeconds      int    `json:"call_timeout_seconds"`
		StopTimeoutSeconds      int    `json:"stop_timeout_seconds"`
		TopK                    int    `json:"top_k"`
		RefreshSchedule         string `json:"refresh_schedule"`
	} `json:"automation"`
}

// Load reads the config file, writing defaults if it doesn't exist, then
// applies environment variable overrides (highest precedence).
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".mastopilot"),
		LogLevel: "info",
	}
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8764"
	cfg.Notion.BaseURL = "https://api.notion.com/v1"
	cfg.Mastodon.BaseURL = "https://mastodon.social"
	cfg.Mastodon.CharLimit = 500
	cfg.LLM.BaseURL = "https://openrouter.ai/api/v1"
	cfg.LLM.Model = "nvidia/nemotron-3-nano-30b-a3b:free"
	cfg.LLM.EmbedModel = "text-embedding-3-small"
	cfg.LLM.MaxTokens = 1000
	cfg.LLM.Temperature = 0.7
	cfg.Replicate.BaseURL = "https://api.replicate.com/v1"
	cfg.Automation.AutoStart = true
	cfg.Automation.DocumentPollSeconds = 300
	cfg.Automation.NotificationPollSeconds = 60
	cfg.Automation.CallTimeoutSeconds = 60
	cfg.Automation.StopTimeoutSeconds = 120
	cfg.Automation.TopK = 10
	cfg.Automation.RefreshSchedule = "@hourly"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		cfg.Notion.APIKey = v
	}
	if v := os.Getenv("NOTION_DATABASE_ID"); v != "" {
		cfg.Notion.DatabaseID = v
	}
	if v := os.Getenv("NOTION_PAGE_ID"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Notion.PageIDs = ids
	}
	if v := os.Getenv("MASTODON_INSTANCE_URL"); v != "" {
		v = strings.TrimRight(strings.TrimSpace(v), "/")
		if !strings.HasPrefix(v, "http") {
			v = "https://" + v
		}
		cfg.Mastodon.BaseURL = v
	}
	if v := os.Getenv("MASTODON_ACCESS_TOKEN"); v != "" {
		cfg.Mastodon.AccessToken = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("REPLICATE_API_TOKEN"); v != "" {
		cfg.Replicate.APIToken = v
	}
	if v := os.Getenv("REPLICATE_MODEL"); v != "" {
		cfg.Replicate.Model = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
}

// Validate rejects configurations the daemon cannot safely run with.
// Poll intervals and timeouts must be explicit positive values; there is no
// fallback interval for a missing or invalid one.
func (c *Config) Validate() error {
	if c.Automation.DocumentPollSeconds < 1 {
		return fmt.Errorf("automation.document_poll_seconds must be >= 1, got %d", c.Automation.DocumentPollSeconds)
	}
	if c.Automation.NotificationPollSeconds < 1 {
		return fmt.Errorf("automation.notification_poll_seconds must be >= 1, got %d", c.Automation.NotificationPollSeconds)
	}
	if c.Automation.CallTimeoutSeconds < 1 {
		return fmt.Errorf("automation.call_timeout_seconds must be >= 1, got %d", c.Automation.CallTimeoutSeconds)
	}
	if c.Automation.StopTimeoutSeconds < 1 {
		return fmt.Errorf("automation.stop_timeout_seconds must be >= 1, got %d", c.Automation.StopTimeoutSeconds)
	}
	if c.Mastodon.CharLimit < 1 {
		return fmt.Errorf("mastodon.char_limit must be >= 1, got %d", c.Mastodon.CharLimit)
	}
	if c.Automation.TopK < 0 {
		return fmt.Errorf("automation.top_k must be >= 0, got %d", c.Automation.TopK)
	}
	return nil
}

// Save writes the config to path using atomic write (temp file + rename).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
