// Package localexec delivers notifications by running an allowlisted desktop
// notification command on the local machine.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fentz26/dosekeeper/internal/connectors"
)

// allowedCommands is the strict allowlist of notification binaries.
var allowedCommands = map[string]bool{
	"notify-send": true,
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// LocalExec implements connectors.Notifier with a desktop notification command.
type LocalExec struct {
	command string
	appName string
	run     Runner
}

// New creates a LocalExec using notify-send.
func New(appName string) *LocalExec {
	return &LocalExec{command: "notify-send", appName: appName, run: runCommand}
}

// WithRunner replaces the process runner.
func (l *LocalExec) WithRunner(r Runner) *LocalExec {
	l.run = r
	return l
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks if a command is in the allowlist.
func (l *LocalExec) IsAllowed(cmd string) bool {
	return allowedCommands[cmd]
}

// Notify shows a desktop notification. The tag is passed as a stack hint so a
// newer notification for the same medication replaces the old one.
func (l *LocalExec) Notify(ctx context.Context, n connectors.Notification) error {
	if !l.IsAllowed(l.command) {
		return fmt.Errorf("command not allowed: %s", l.command)
	}

	args := []string{"--app-name", l.appName}
	if n.Tag != "" {
		args = append(args, "--hint", "string:x-dunst-stack-tag:"+n.Tag)
	}
	args = append(args, n.Title, n.Body)

	out, err := l.run(ctx, l.command, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return connectors.ErrNotificationUnavailable
		}
		return fmt.Errorf("%s: %w: %s", l.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Vibrate is a no-op on desktops.
func (l *LocalExec) Vibrate(ctx context.Context, p connectors.Pattern) error {
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
