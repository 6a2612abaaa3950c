package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// daemonPID locates the running daemon through its PID file and confirms
// the process is alive with signal 0.
func daemonPID(dataDir string) (*os.Process, int, error) {
	pidPath := filepath.Join(dataDir, "mastopilot.pid")

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("daemon not running (%s does not exist)", pidPath)
		}
		return nil, 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("PID file %s is corrupt: %w", pidPath, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, 0, fmt.Errorf("daemon not running (stale PID file for process %d)", pid)
	}
	return proc, pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut down the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		proc, pid, err := daemonPID(cfg.DataDir)
		if err != nil {
			return err
		}

		// Show what is being interrupted; a listener may be mid-cycle.
		var status automationStatus
		if err := controlRequest("GET", "/api/automation/status", &status); err == nil {
			printStatus(&status)
		}

		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal daemon: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Stopping daemon (PID %d)...\n", pid)

		// Listeners drain before exit, so allow the configured stop window
		// plus a little slack before declaring the shutdown stuck.
		deadline := time.Now().Add(time.Duration(cfg.Automation.StopTimeoutSeconds)*time.Second + 5*time.Second)
		for time.Now().Before(deadline) {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				fmt.Fprintln(os.Stdout, "Daemon stopped.")
				return nil
			}
			time.Sleep(200 * time.Millisecond)
		}
		return fmt.Errorf("daemon (PID %d) still running after %ds", pid, cfg.Automation.StopTimeoutSeconds)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon in place",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		proc, pid, err := daemonPID(cfg.DataDir)
		if err != nil {
			return err
		}

		if err := proc.Signal(syscall.SIGHUP); err != nil {
			return fmt.Errorf("signal daemon: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Restarting daemon (PID %d)...\n", pid)

		// The daemon re-execs itself and keeps its PID. Give it a moment to
		// drain listeners and come back, then confirm it is still alive.
		time.Sleep(time.Second)
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return fmt.Errorf("daemon (PID %d) exited during restart", pid)
		}
		fmt.Fprintln(os.Stdout, "Daemon restarted.")
		return nil
	},
}
