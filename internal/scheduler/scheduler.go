package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/reminder"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Controller is the reminder surface the scheduler drives.
type Controller interface {
	Tick(ctx context.Context, now time.Time) (*models.ActiveReminder, error)
	RefillSweep(ctx context.Context, now time.Time) int
	WeeklySummary(ctx context.Context, now time.Time) reminder.AdherenceReport
}

// Scheduler owns the repeating scan task and the cron jobs.
type Scheduler struct {
	ctrl     Controller
	config   *Config
	logger   *zap.Logger
	now      func() time.Time
	interval time.Duration

	cron      *cron.Cron
	refillID  cron.EntryID
	summaryID cron.EntryID

	// Stats
	mu          sync.Mutex
	running     bool
	ticks       int
	tickErrors  int
	lastTick    time.Time
	lastError   string
	sweeps      int
	refillsSent int
	summaries   int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler. Invalid cron expressions are rejected here.
func New(ctrl Controller, cfg *Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sch := &Scheduler{
		ctrl:     ctrl,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		interval: ScanInterval,
		cron:     cron.New(),
		ctx:      ctx,
		cancel:   cancel,
	}

	var err error
	sch.refillID, err = sch.cron.AddFunc(cfg.RefillSweep, func() { sch.RunRefillSweep() })
	if err != nil {
		cancel()
		return nil, fmt.Errorf("refill sweep schedule %q: %w", cfg.RefillSweep, err)
	}
	sch.summaryID, err = sch.cron.AddFunc(cfg.WeeklySummary, func() { sch.RunWeeklySummary() })
	if err != nil {
		cancel()
		return nil, fmt.Errorf("weekly summary schedule %q: %w", cfg.WeeklySummary, err)
	}
	return sch, nil
}

// WithClock replaces the time source.
func (sch *Scheduler) WithClock(now func() time.Time) *Scheduler {
	sch.now = now
	return sch
}

// WithInterval overrides the scan cadence. Only tests should need this.
func (sch *Scheduler) WithInterval(d time.Duration) *Scheduler {
	if d > 0 {
		sch.interval = d
	}
	return sch
}

// Start begins the scan loop and the cron jobs.
func (sch *Scheduler) Start() {
	sch.mu.Lock()
	sch.running = true
	sch.mu.Unlock()

	sch.wg.Add(1)
	go sch.scanLoop()
	sch.cron.Start()
	sch.logger.Info("scheduler started", zap.Duration("scan_interval", sch.interval))
}

// Stop gracefully stops the scheduler and waits for running jobs.
func (sch *Scheduler) Stop() {
	sch.cancel()
	<-sch.cron.Stop().Done()
	sch.wg.Wait()

	sch.mu.Lock()
	sch.running = false
	sch.mu.Unlock()
	sch.logger.Info("scheduler stopped")
}

// scanLoop scans once immediately, then on every tick.
func (sch *Scheduler) scanLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()

	sch.TickNow()
	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.TickNow()
		}
	}
}

// TickNow runs a single scan synchronously.
func (sch *Scheduler) TickNow() *models.ActiveReminder {
	now := sch.now()
	active, err := sch.ctrl.Tick(sch.ctx, now)

	sch.mu.Lock()
	sch.ticks++
	sch.lastTick = now
	if err != nil {
		sch.tickErrors++
		sch.lastError = err.Error()
	}
	sch.mu.Unlock()

	if err != nil {
		sch.logger.Error("scan failed", zap.Error(err))
	}
	return active
}

// RunRefillSweep runs the refill job once.
func (sch *Scheduler) RunRefillSweep() int {
	sent := sch.ctrl.RefillSweep(sch.ctx, sch.now())

	sch.mu.Lock()
	sch.sweeps++
	sch.refillsSent += sent
	sch.mu.Unlock()

	sch.logger.Info("refill sweep finished", zap.Int("alerts", sent))
	return sent
}

// RunWeeklySummary runs the adherence summary job once.
func (sch *Scheduler) RunWeeklySummary() reminder.AdherenceReport {
	r := sch.ctrl.WeeklySummary(sch.ctx, sch.now())

	sch.mu.Lock()
	sch.summaries++
	sch.mu.Unlock()
	return r
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	stats := map[string]interface{}{
		"running":          sch.running,
		"scan_interval":    sch.interval.String(),
		"ticks":            sch.ticks,
		"tick_errors":      sch.tickErrors,
		"last_error":       sch.lastError,
		"refill_sweeps":    sch.sweeps,
		"refill_alerts":    sch.refillsSent,
		"weekly_summaries": sch.summaries,
	}
	if !sch.lastTick.IsZero() {
		stats["last_tick"] = sch.lastTick
	}
	if sch.running {
		stats["next_refill_sweep"] = sch.cron.Entry(sch.refillID).Next
		stats["next_weekly_summary"] = sch.cron.Entry(sch.summaryID).Next
	}
	return stats
}
