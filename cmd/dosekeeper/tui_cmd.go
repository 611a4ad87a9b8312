package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/tui"
	"github.com/spf13/cobra"
)

const (
	healthTimeout   = 500 * time.Millisecond
	spawnReadiness = 5 * time.Second
	spawnPoll      = 250 * time.Millisecond
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the medication dashboard",
	Long: `Open the interactive medication dashboard.

If no daemon answers at --api, one is started in the background listening on
that address. It keeps running after the dashboard closes.`,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !daemonReachable(apiAddr) {
		fmt.Printf("No dosekeeper daemon at %s, starting one in the background\n", apiAddr)
		if err := spawnDaemon(); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}
	}

	if err := tui.New(apiAddr).Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// daemonReachable reports whether a dosekeeper daemon answers /health at addr.
// A degraded daemon (503 with a health body) still counts as running, so a
// second one is not spawned on top of it.
func daemonReachable(addr string) bool {
	client := http.Client{Timeout: healthTimeout}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var health controlplane.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Version != ""
}

// waitForDaemon polls addr until it answers or timeout elapses.
func waitForDaemon(addr string, timeout, poll time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if daemonReachable(addr) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon not reachable at %s after %s", addr, timeout)
		}
		time.Sleep(poll)
	}
}

func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"daemon"}
	if u, err := url.Parse(apiAddr); err == nil && u.Host != "" {
		args = append(args, "--listen", u.Host)
	}
	proc := exec.Command(exe, args...)
	configureDaemonProc(proc)

	// The dashboard owns the terminal from here on.
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil

	if err := proc.Start(); err != nil {
		return err
	}

	fmt.Printf("Daemon started (pid %d), waiting for it to listen\n", proc.Process.Pid)
	return waitForDaemon(apiAddr, spawnReadiness, spawnPoll)
}
