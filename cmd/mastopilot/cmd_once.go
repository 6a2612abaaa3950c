package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/mastopilot/internal/mastodon"
	"github.com/user/mastopilot/internal/notion"
	"github.com/user/mastopilot/internal/pipeline"
	"github.com/user/mastopilot/internal/publish"
	"github.com/user/mastopilot/internal/replicate"
	"github.com/user/mastopilot/internal/types"
	"github.com/user/mastopilot/pkg/llm"
	"github.com/user/mastopilot/pkg/llm/openai"
)

var (
	onceDocument string
	onceDryRun   bool
)

func init() {
	onceCmd.Flags().StringVar(&onceDocument, "document", "", "document id to post about (required)")
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "compose only, print the draft without posting")
	onceCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(onceCmd)
}

// onceCmd composes a single post outside the daemon. It does not touch
// markers, so the next poll still treats the document normally.
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Compose one post for a document and optionally publish it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		source := notion.New(notion.Config{
			BaseURL:    cfg.Notion.BaseURL,
			APIKey:     cfg.Notion.APIKey,
			DatabaseID: cfg.Notion.DatabaseID,
			PageIDs:    cfg.Notion.PageIDs,
		})
		provider := openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})

		var images types.ImageGenerator
		if !onceDryRun && cfg.Replicate.APIToken != "" && cfg.Replicate.Model != "" {
			images = replicate.New(replicate.Config{
				BaseURL:  cfg.Replicate.BaseURL,
				APIToken: cfg.Replicate.APIToken,
				Model:    cfg.Replicate.Model,
			})
		}

		pipe := pipeline.New(provider, source, pipeline.Options{
			Images:    images,
			CharLimit: cfg.Mastodon.CharLimit,
		})

		timeout := time.Duration(cfg.Automation.CallTimeoutSeconds) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), 3*timeout)
		defer cancel()

		content, err := pipe.ComposePost(ctx, onceDocument)
		if err != nil {
			return fmt.Errorf("compose post: %w", err)
		}

		if onceDryRun {
			fmt.Fprintln(os.Stdout, content.Text)
			if content.ImageURL != "" {
				fmt.Fprintf(os.Stdout, "\n[image] %s\n", content.ImageURL)
			}
			return nil
		}

		masto := mastodon.New(mastodon.Config{
			BaseURL:     cfg.Mastodon.BaseURL,
			AccessToken: cfg.Mastodon.AccessToken,
		})
		pub := publish.New(masto, nil, nil)
		if err := pub.Publish(ctx, content); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Published post %s\n", content.PostID)
		return nil
	},
}
