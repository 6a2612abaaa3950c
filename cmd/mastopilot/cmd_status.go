package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/mastopilot/internal/types"
)

func init() {
	rootCmd.AddCommand(statusCmd, startCmd, haltCmd)
}

func controlRequest(method, path string, out any) error {
	cfg := loadConfig()
	if !cfg.HTTP.Enabled {
		return fmt.Errorf("control server disabled in config (http.enabled = false)")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, controlURL(cfg, path), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		if msg := body["error"]; msg != "" {
			return fmt.Errorf("daemon: %s", msg)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type automationStatus struct {
	Running   bool                   `json:"running"`
	Listeners []types.ListenerStatus `json:"listeners"`
}

func printStatus(status *automationStatus) {
	if status.Running {
		fmt.Fprintln(os.Stdout, "Automation: running")
	} else {
		fmt.Fprintln(os.Stdout, "Automation: stopped")
	}
	for _, l := range status.Listeners {
		lastRun := "never"
		if !l.LastRun.IsZero() {
			lastRun = l.LastRun.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(os.Stdout, "  %-14s %-9s interval=%s last_run=%s", l.Name, l.Phase, l.Interval, lastRun)
		if l.ErrorStreak > 0 {
			fmt.Fprintf(os.Stdout, " errors=%d last_error=%q", l.ErrorStreak, l.LastError)
		}
		fmt.Fprintln(os.Stdout)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show automation status of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var status automationStatus
		if err := controlRequest("GET", "/api/automation/status", &status); err != nil {
			return err
		}
		printStatus(&status)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start automation in the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var status automationStatus
		if err := controlRequest("POST", "/api/automation/start", &status); err != nil {
			return err
		}
		printStatus(&status)
		return nil
	},
}

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Stop automation in the running daemon without shutting it down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var status automationStatus
		if err := controlRequest("POST", "/api/automation/stop", &status); err != nil {
			return err
		}
		printStatus(&status)
		return nil
	},
}
