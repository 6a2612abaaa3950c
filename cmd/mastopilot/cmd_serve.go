package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/mastopilot/internal/automation"
	"github.com/user/mastopilot/internal/config"
	"github.com/user/mastopilot/internal/control"
	"github.com/user/mastopilot/internal/listener"
	"github.com/user/mastopilot/internal/mastodon"
	"github.com/user/mastopilot/internal/notion"
	"github.com/user/mastopilot/internal/pipeline"
	"github.com/user/mastopilot/internal/publish"
	"github.com/user/mastopilot/internal/replicate"
	"github.com/user/mastopilot/internal/retrieval"
	"github.com/user/mastopilot/internal/state"
	"github.com/user/mastopilot/internal/telegram"
	"github.com/user/mastopilot/internal/types"
	"github.com/user/mastopilot/pkg/llm"
	"github.com/user/mastopilot/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mastopilot daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "mastopilot.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	callTimeout := time.Duration(cfg.Automation.CallTimeoutSeconds) * time.Second
	stopTimeout := time.Duration(cfg.Automation.StopTimeoutSeconds) * time.Second

	// Stores
	markers := state.NewMarkerStore(filepath.Join(cfg.DataDir, "markers.json"))
	processed := state.NewProcessedStore(filepath.Join(cfg.DataDir, "processed.json"))
	contents := state.NewContentStore(filepath.Join(cfg.DataDir, "contents.json"))

	// External services
	source := notion.New(notion.Config{
		BaseURL:    cfg.Notion.BaseURL,
		APIKey:     cfg.Notion.APIKey,
		DatabaseID: cfg.Notion.DatabaseID,
		PageIDs:    cfg.Notion.PageIDs,
	})
	masto := mastodon.New(mastodon.Config{
		BaseURL:     cfg.Mastodon.BaseURL,
		AccessToken: cfg.Mastodon.AccessToken,
	})
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		EmbedModel:  cfg.LLM.EmbedModel,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), callTimeout)
	account, err := masto.VerifyCredentials(verifyCtx)
	cancelVerify()
	if err != nil {
		slog.Warn("mastodon credential check failed, continuing", "error", err)
	} else {
		slog.Info("mastodon credentials verified", "account", account)
	}

	// Supporting-passage index, refreshed on a schedule.
	var retriever types.Retriever
	if cfg.LLM.EmbedModel != "" {
		chunker, err := retrieval.NewChunker(512)
		if err != nil {
			return fmt.Errorf("create chunker: %w", err)
		}
		index := retrieval.NewIndex(provider, chunker)
		retriever = index

		refresher := retrieval.NewRefresher(source, index, callTimeout)
		if err := refresher.Start(cfg.Automation.RefreshSchedule); err != nil {
			return fmt.Errorf("start index refresher: %w", err)
		}
		defer refresher.Stop()
	} else {
		slog.Warn("retrieval disabled (no embed model)")
	}

	var images types.ImageGenerator
	if cfg.Replicate.APIToken != "" && cfg.Replicate.Model != "" {
		images = replicate.New(replicate.Config{
			BaseURL:  cfg.Replicate.BaseURL,
			APIToken: cfg.Replicate.APIToken,
			Model:    cfg.Replicate.Model,
		})
	} else {
		slog.Warn("image generation disabled (no replicate credentials)")
	}

	pipe := pipeline.New(provider, source, pipeline.Options{
		Retriever: retriever,
		Images:    images,
		CharLimit: cfg.Mastodon.CharLimit,
		TopK:      cfg.Automation.TopK,
	})

	// Operator announcements
	var notifier *telegram.Notifier
	var announcer publish.Announcer
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		notifier, err = telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		announcer = notifier
		slog.Info("telegram notifier enabled", "chat_id", cfg.Telegram.ChatID)
	} else {
		slog.Warn("telegram notifier disabled (no token or chat id)")
	}

	pub := publish.New(masto, contents, announcer)

	// Every fifth consecutive cycle failure pages the operator.
	var opts []listener.Option
	if notifier != nil {
		opts = append(opts, listener.WithErrorHook(func(name string, streak int, err error) {
			if streak%5 == 0 {
				notifier.AnnounceError(name, streak, err)
			}
		}))
	}

	sup := automation.New(
		listener.New("documents",
			time.Duration(cfg.Automation.DocumentPollSeconds)*time.Second,
			listener.DocumentCycle(source, markers, pipe, pub, callTimeout),
			opts...),
		listener.New("notifications",
			time.Duration(cfg.Automation.NotificationPollSeconds)*time.Second,
			listener.NotificationCycle(masto, processed, pipe, pub, callTimeout),
			opts...),
	)

	if cfg.Automation.AutoStart {
		sup.Start()
	}
	defer sup.Stop(stopTimeout)

	slog.Info("mastopilot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"auto_start", cfg.Automation.AutoStart,
		"document_poll_seconds", cfg.Automation.DocumentPollSeconds,
		"notification_poll_seconds", cfg.Automation.NotificationPollSeconds,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	// Control HTTP server
	if cfg.HTTP.Enabled {
		controlSrv := control.NewServer(sup, contents, stopTimeout)
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: controlSrv,
		}
		go func() {
			slog.Info("control server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("control server error", "error", err)
			}
		}()
		defer httpServer.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			wasRunning := sup.Running()
			if !sup.Stop(stopTimeout) {
				slog.Warn("listeners still busy at restart")
			}
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				if wasRunning {
					sup.Start()
				}
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file and resume listeners; a failed re-exec
				// must leave the daemon in its pre-SIGHUP state.
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				if wasRunning {
					sup.Start()
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		if !sup.Stop(stopTimeout) {
			slog.Warn("listeners still busy at shutdown")
		}
		return nil
	}
}

// controlURL builds a URL on the local control server for CLI commands
// that talk to a running daemon.
func controlURL(cfg *config.Config, path string) string {
	return "http://" + cfg.HTTP.Listen + path
}
