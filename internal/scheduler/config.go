// Package scheduler runs the due-dose scan loop and the periodic jobs.
package scheduler

import "time"

// ScanInterval is the fixed cadence of the due-dose scan.
const ScanInterval = 30 * time.Second

// Config defines the periodic job schedules in standard five-field cron syntax.
type Config struct {
	// RefillSweep checks every medication for low stock.
	RefillSweep string `yaml:"refill_sweep"`
	// WeeklySummary sends the seven-day adherence summary.
	WeeklySummary string `yaml:"weekly_summary"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		RefillSweep:   "0 9 * * *",
		WeeklySummary: "0 9 * * 1",
	}
}
