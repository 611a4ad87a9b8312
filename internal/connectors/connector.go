// Package connectors defines the notification port used by the reminder
// controller and the adapters that deliver it.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotificationUnavailable means the notifier cannot deliver right now.
// Callers skip the notification and carry on.
var ErrNotificationUnavailable = errors.New("notification unavailable")

// Notification is a single user-facing alert. Notifications sharing a Tag
// replace each other instead of stacking.
type Notification struct {
	Tag   string `json:"tag"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier delivers notifications and vibration requests.
type Notifier interface {
	// Name returns the connector identifier.
	Name() string

	// Notify requests a notification. It must not block for long.
	Notify(ctx context.Context, n Notification) error

	// Vibrate requests a haptic pattern. Adapters without haptics return nil.
	Vibrate(ctx context.Context, p Pattern) error
}

// Pattern is a vibration pattern in alternating on/off milliseconds.
type Pattern []int

// Named vibration patterns selectable in the user profile.
var (
	PatternDefault  = Pattern{500, 200, 500}
	PatternShort    = Pattern{200}
	PatternLong     = Pattern{1000}
	PatternPulse    = Pattern{200, 100, 200}
	PatternReminder = Pattern{500, 200, 500, 200, 1000}
)

// PatternByName resolves a profile setting to a pattern.
func PatternByName(name string) (Pattern, error) {
	switch name {
	case "", "default":
		return PatternDefault, nil
	case "short":
		return PatternShort, nil
	case "long":
		return PatternLong, nil
	case "pulse":
		return PatternPulse, nil
	}
	return nil, fmt.Errorf("unknown vibration pattern %q", name)
}

// Duration returns the total length of the pattern.
func (p Pattern) Duration() time.Duration {
	var ms int
	for _, v := range p {
		ms += v
	}
	return time.Duration(ms) * time.Millisecond
}

// Tag helpers keep notification identities stable across restarts.
func DoseTag(medicationID string) string { return "dose-" + medicationID }
func RefillTag(medicationID string) string { return "refill-" + medicationID }
func GuardianTag(medicationID string) string { return "guardian-" + medicationID }

// Noop accepts everything and delivers nothing.
type Noop struct{}

func (Noop) Name() string { return "none" }
func (Noop) Notify(ctx context.Context, n Notification) error { return nil }
func (Noop) Vibrate(ctx context.Context, p Pattern) error { return nil }
