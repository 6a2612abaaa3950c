package main

import (
	"strings"
	"testing"
)

func TestFormatConfigListGroupsSections(t *testing.T) {
	out := formatConfigList(map[string]any{
		"data_dir":              "/home/u/.mastopilot",
		"mastodon.base_url":     "https://mastodon.social",
		"mastodon.char_limit":   500,
		"automation.auto_start": true,
		"mastodon.access_token": "***oken",
		"notion.database_id":    "abc123",
	})

	// Sections separated by blank lines, keys sorted within them.
	blocks := strings.Split(strings.TrimRight(out, "\n"), "\n\n")
	if len(blocks) != 4 {
		t.Fatalf("sections = %d, want 4:\n%s", len(blocks), out)
	}
	if !strings.HasPrefix(blocks[0], "automation.auto_start") {
		t.Errorf("first section = %q", blocks[0])
	}
	mastodonBlock := blocks[2]
	lines := strings.Split(mastodonBlock, "\n")
	if len(lines) != 3 || !strings.Contains(lines[0], "access_token") {
		t.Errorf("mastodon section = %q", mastodonBlock)
	}
	if !strings.Contains(out, "***oken") {
		t.Error("masked secret missing from output")
	}
}

func TestFormatConfigListAlignsKeys(t *testing.T) {
	out := formatConfigList(map[string]any{
		"log_level":           "info",
		"mastodon.char_limit": 500,
	})
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		if !strings.Contains(line, " = ") {
			t.Errorf("line %q missing aligned separator", line)
		}
		if idx := strings.Index(line, " = "); idx != len("mastodon.char_limit") {
			t.Errorf("line %q not padded to widest key", line)
		}
	}
}
