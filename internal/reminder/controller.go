package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/dosekeeper/internal/audit"
	"github.com/fentz26/dosekeeper/internal/connectors"
	"github.com/fentz26/dosekeeper/internal/inventory"
	"github.com/fentz26/dosekeeper/internal/metrics"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/regimen"
	"github.com/fentz26/dosekeeper/internal/registry"
	"go.uber.org/zap"
)

// ErrStaleReminder is raised internally when the active reminder points at a
// medication that was deleted or archived. Callers never see it.
var ErrStaleReminder = errors.New("stale reminder")

// DefaultGuardianAfter is how overdue a dose must be before the guardian is told.
const DefaultGuardianAfter = 30 * time.Minute

// Action is a user response to the active reminder.
type Action string

const (
	ActionTake   Action = "take"
	ActionSkip   Action = "skip"
	ActionSnooze Action = "snooze"
)

// Guardian configures escalation of unanswered reminders.
type Guardian struct {
	Enabled bool
	Name    string
	After   time.Duration
}

// Options wires the controller's collaborators. Zero values get safe defaults.
type Options struct {
	Notifier  connectors.Notifier
	Audit     audit.Recorder
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Vibration connectors.Pattern
	Guardian  Guardian
}

// Outcome describes the effect of a resolution call. Applied is false when
// there was nothing to resolve.
type Outcome struct {
	Applied    bool                 `json:"applied"`
	Action     Action               `json:"action,omitempty"`
	Medication *models.Medication   `json:"medication,omitempty"`
	Dose       *models.DoseLogEntry `json:"dose,omitempty"`
}

// Controller owns the active reminder slot. Every registry mutation made by
// the daemon goes through it so scans and user actions never interleave.
type Controller struct {
	reg       *registry.Registry
	notifier  connectors.Notifier
	audit     audit.Recorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
	vibration connectors.Pattern
	guardian  Guardian

	mu       sync.Mutex
	active   *models.ActiveReminder
	problems []models.Problem
}

// NewController creates a controller over reg.
func NewController(reg *registry.Registry, opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = connectors.Noop{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.Vibration) == 0 {
		opts.Vibration = connectors.PatternDefault
	}
	if opts.Guardian.After <= 0 {
		opts.Guardian.After = DefaultGuardianAfter
	}

	return &Controller{
		reg:       reg,
		notifier:  opts.Notifier,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		vibration: opts.Vibration,
		guardian:  opts.Guardian,
	}
}

// Active returns the current reminder, or nil when idle.
func (c *Controller) Active() *models.ActiveReminder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCopy()
}

// Problems returns the evaluation failures seen by the last scan.
func (c *Controller) Problems() []models.Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Problem, len(c.problems))
	copy(out, c.problems)
	return out
}

// Tick runs one scan. When the slot is free and something is due, the first
// due medication becomes the active reminder and a notification is requested.
func (c *Controller) Tick(ctx context.Context, now time.Time) (*models.ActiveReminder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	if c.active != nil {
		c.checkActiveLocked(ctx, now)
	}

	meds := c.reg.List("")
	c.updateLowStock(meds)

	due, problems := Scan(meds, c.active, now)
	c.setProblems(problems)
	if due == nil {
		return c.activeCopy(), nil
	}

	err := c.activateLocked(ctx, due, now)
	return c.activeCopy(), err
}

// Take logs the dose for the active reminder and schedules the next one.
func (c *Controller) Take(ctx context.Context, medicationID string, now time.Time) (Outcome, error) {
	return c.Resolve(ctx, ActionTake, medicationID, now)
}

// Skip reschedules the active reminder without logging a dose.
func (c *Controller) Skip(ctx context.Context, medicationID string, now time.Time) (Outcome, error) {
	return c.Resolve(ctx, ActionSkip, medicationID, now)
}

// Snooze defers the active reminder by regimen.SnoozeInterval.
func (c *Controller) Snooze(ctx context.Context, medicationID string, now time.Time) (Outcome, error) {
	return c.Resolve(ctx, ActionSnooze, medicationID, now)
}

// Resolve applies action to the active reminder. A call that does not match
// the active reminder changes nothing, so a double submit is harmless.
func (c *Controller) Resolve(ctx context.Context, action Action, medicationID string, now time.Time) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.MedicationID != medicationID {
		c.logger.Debug("no matching active reminder",
			zap.String("action", string(action)),
			zap.String("medication_id", medicationID))
		return Outcome{Action: action}, nil
	}

	out, err := c.resolveLocked(ctx, action, medicationID, now)
	if errors.Is(err, ErrStaleReminder) {
		c.logger.Info("clearing stale reminder", zap.String("medication_id", medicationID))
		c.clearLocked()
		return Outcome{Action: action}, nil
	}
	if err != nil {
		c.record(auditAction(action), resolveInputs(action, medicationID, now), audit.OutcomeFailure, medicationID, err.Error())
		return Outcome{Action: action}, err
	}

	c.clearLocked()
	return out, nil
}

// LogDoseNow records an unprompted dose, as if the user took it from the
// medication list. It clears the active reminder only when it belongs to the
// same medication.
func (c *Controller) LogDoseNow(ctx context.Context, medicationID string, now time.Time) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	med, ok := c.reg.Get(medicationID)
	if !ok {
		return Outcome{}, registry.ErrNotFound
	}
	if med.IsArchived() {
		return Outcome{}, fmt.Errorf("%w: %s is archived", models.ErrInvalidMedication, med.Name)
	}

	out, err := c.takeLocked(ctx, med, now, audit.ActionDoseManual)
	if err != nil {
		return Outcome{}, err
	}
	if c.active != nil && c.active.MedicationID == medicationID {
		c.clearLocked()
	}
	return out, nil
}

// RefillSweep sends a refill alert for every medication that is low on stock
// and has not been alerted for its current fill. It returns the number sent.
func (c *Controller) RefillSweep(ctx context.Context, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	sent := 0
	for _, med := range c.reg.List(models.LifecycleActive) {
		if !inventory.NeedsRefillAlert(&med) {
			continue
		}
		if updated := c.refillAlertLocked(ctx, med, now); updated.RefillNotified {
			sent++
		}
	}
	c.updateLowStock(c.reg.List(""))
	return sent
}

// Save creates or edits a medication.
func (c *Controller) Save(ctx context.Context, id string, patch models.MedicationPatch, now time.Time) (models.Medication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Save(ctx, id, patch, now)
}

// Archive soft-deletes a medication and drops its reminder if one is active.
func (c *Controller) Archive(ctx context.Context, id string, now time.Time) (models.Medication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	med, err := c.reg.Archive(ctx, id, now)
	if err != nil {
		return models.Medication{}, err
	}
	c.forgetLocked(id)
	return med, nil
}

// Restore brings an archived medication back into scanning.
func (c *Controller) Restore(ctx context.Context, id string, now time.Time) (models.Medication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Restore(ctx, id, now)
}

// Delete removes a medication permanently and drops its reminder if one is active.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reg.Delete(ctx, id); err != nil {
		return err
	}
	c.forgetLocked(id)
	return nil
}

func (c *Controller) resolveLocked(ctx context.Context, action Action, medicationID string, now time.Time) (Outcome, error) {
	med, ok := c.reg.Get(medicationID)
	if !ok || med.IsArchived() {
		return Outcome{}, ErrStaleReminder
	}

	switch action {
	case ActionTake:
		return c.takeLocked(ctx, med, now, audit.ActionDoseTake)

	case ActionSkip:
		updated, err := c.reg.Update(ctx, medicationID, now, func(m *models.Medication) error {
			m.NextDose = regimen.NextDoseAfter(m, now)
			m.LastNotified = nil
			m.GuardianNotified = false
			return nil
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("reschedule after skip: %w", err)
		}
		c.metrics.DosesSkipped.Inc()
		c.record(audit.ActionDoseSkip, resolveInputs(action, medicationID, now), audit.OutcomeSuccess, medicationID, "")
		c.logger.Info("dose skipped",
			zap.String("medication_id", medicationID),
			zap.Time("next_dose", updated.NextDose))
		return Outcome{Applied: true, Action: action, Medication: &updated}, nil

	case ActionSnooze:
		updated, err := c.reg.Update(ctx, medicationID, now, func(m *models.Medication) error {
			m.NextDose = now.Add(regimen.SnoozeInterval)
			return nil
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("reschedule after snooze: %w", err)
		}
		c.metrics.DosesSnoozed.Inc()
		c.record(audit.ActionDoseSnooze, resolveInputs(action, medicationID, now), audit.OutcomeSuccess, medicationID, "")
		c.logger.Info("dose snoozed",
			zap.String("medication_id", medicationID),
			zap.Time("next_dose", updated.NextDose))
		return Outcome{Applied: true, Action: action, Medication: &updated}, nil
	}

	return Outcome{}, fmt.Errorf("unknown action %q", action)
}

// takeLocked advances the schedule and inventory and logs the dose in one
// registry write, so a retry after a failed save cannot log the dose twice.
func (c *Controller) takeLocked(ctx context.Context, med models.Medication, now time.Time, auditAct string) (Outcome, error) {
	updated, entry, err := c.reg.RecordDose(ctx, med.ID, models.DoseLogEntry{
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Dosage:         med.Dosage,
		Timestamp:      now,
	}, now, func(m *models.Medication) error {
		m.NextDose = regimen.NextDoseAfter(m, now)
		inventory.Consume(m)
		m.LastNotified = nil
		m.GuardianNotified = false
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("record dose: %w", err)
	}

	c.metrics.DosesTaken.Inc()
	c.record(auditAct, resolveInputs(ActionTake, med.ID, now), audit.OutcomeSuccess, med.ID, "")
	c.logger.Info("dose taken",
		zap.String("medication_id", med.ID),
		zap.String("name", med.Name),
		zap.Time("next_dose", updated.NextDose))

	if inventory.NeedsRefillAlert(&updated) {
		updated = c.refillAlertLocked(ctx, updated, now)
	}
	return Outcome{Applied: true, Action: ActionTake, Medication: &updated, Dose: &entry}, nil
}

func (c *Controller) activateLocked(ctx context.Context, due *models.Medication, now time.Time) error {
	c.active = &models.ActiveReminder{MedicationID: due.ID, ActivatedAt: now}
	c.metrics.RemindersActivated.Inc()
	c.metrics.ActiveReminder.Set(1)
	c.record(audit.ActionReminderActivate, map[string]interface{}{
		"medication_id": due.ID,
		"next_dose":     due.NextDose,
		"now":           now,
	}, audit.OutcomeSuccess, due.ID, "")
	c.logger.Info("reminder activated",
		zap.String("medication_id", due.ID),
		zap.String("name", due.Name),
		zap.Time("next_dose", due.NextDose))

	c.vibrate(ctx, connectors.PatternReminder)

	// Already pushed for this due instance, e.g. before a restart.
	if due.LastNotified != nil && !due.LastNotified.Before(due.NextDose) {
		c.metrics.Notification("dose", "suppressed")
		return nil
	}

	sent := c.notify(ctx, "dose", connectors.Notification{
		Tag:   connectors.DoseTag(due.ID),
		Title: "Time for " + due.Name,
		Body:  due.Dosage,
	})
	if !sent {
		return nil
	}

	_, err := c.reg.Update(ctx, due.ID, now, func(m *models.Medication) error {
		t := now
		m.LastNotified = &t
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// checkActiveLocked drops a reminder whose medication went away and escalates
// one that has been ignored for too long.
func (c *Controller) checkActiveLocked(ctx context.Context, now time.Time) {
	id := c.active.MedicationID
	med, ok := c.reg.Get(id)
	if !ok || med.IsArchived() {
		c.logger.Info("clearing stale reminder", zap.String("medication_id", id))
		c.clearLocked()
		return
	}

	if !c.guardian.Enabled || med.GuardianNotified || now.Sub(med.NextDose) < c.guardian.After {
		return
	}

	title := med.Name + " not taken"
	if c.guardian.Name != "" {
		title = c.guardian.Name + ": " + title
	}
	sent := c.notify(ctx, "guardian", connectors.Notification{
		Tag:   connectors.GuardianTag(id),
		Title: title,
		Body:  fmt.Sprintf("%s was due at %s", med.Dosage, med.NextDose.Format("15:04")),
	})
	if !sent {
		return
	}
	c.vibrate(ctx, c.vibration)

	if _, err := c.reg.Update(ctx, id, now, func(m *models.Medication) error {
		m.GuardianNotified = true
		return nil
	}); err != nil {
		c.logger.Error("failed to mark guardian notified", zap.String("medication_id", id), zap.Error(err))
		return
	}
	c.record(audit.ActionGuardianAlert, map[string]interface{}{"medication_id": id, "now": now}, audit.OutcomeSuccess, id, c.guardian.Name)
}

func (c *Controller) refillAlertLocked(ctx context.Context, med models.Medication, now time.Time) models.Medication {
	sent := c.notify(ctx, "refill", connectors.Notification{
		Tag:   connectors.RefillTag(med.ID),
		Title: "Refill " + med.Name,
		Body:  fmt.Sprintf("%d doses left", *med.RemainingDoses),
	})
	if !sent {
		return med
	}
	c.vibrate(ctx, c.vibration)

	updated, err := c.reg.Update(ctx, med.ID, now, func(m *models.Medication) error {
		m.RefillNotified = true
		return nil
	})
	if err != nil {
		c.logger.Error("failed to mark refill notified", zap.String("medication_id", med.ID), zap.Error(err))
		return med
	}
	c.record(audit.ActionRefillAlert, map[string]interface{}{
		"medication_id": med.ID,
		"remaining":     *med.RemainingDoses,
	}, audit.OutcomeSuccess, med.ID, "")
	return updated
}

// notify reports whether the notification was delivered.
func (c *Controller) notify(ctx context.Context, kind string, n connectors.Notification) bool {
	err := c.notifier.Notify(ctx, n)
	switch {
	case err == nil:
		c.metrics.Notification(kind, "sent")
		return true
	case errors.Is(err, connectors.ErrNotificationUnavailable):
		c.metrics.Notification(kind, "unavailable")
		c.logger.Debug("notification unavailable", zap.String("tag", n.Tag))
	default:
		c.metrics.Notification(kind, "failed")
		c.logger.Warn("notification failed", zap.String("tag", n.Tag), zap.Error(err))
	}
	return false
}

func (c *Controller) vibrate(ctx context.Context, p connectors.Pattern) {
	if err := c.notifier.Vibrate(ctx, p); err != nil && !errors.Is(err, connectors.ErrNotificationUnavailable) {
		c.logger.Debug("vibration failed", zap.Error(err))
	}
}

func (c *Controller) record(action string, inputs interface{}, outcome, medicationID, details string) {
	if _, err := c.audit.Record(action, inputs, outcome, medicationID, details); err != nil {
		c.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (c *Controller) setProblems(problems []models.Problem) {
	seen := make(map[string]bool, len(c.problems))
	for _, p := range c.problems {
		seen[p.MedicationID] = true
	}
	for _, p := range problems {
		if !seen[p.MedicationID] {
			c.logger.Warn("regimen evaluation failed",
				zap.String("medication_id", p.MedicationID),
				zap.String("name", p.Name),
				zap.String("error", p.Error))
		}
	}
	c.problems = problems
	c.metrics.RegimenProblems.Set(float64(len(problems)))
}

func (c *Controller) updateLowStock(meds []models.Medication) {
	c.metrics.LowStockMedications.Set(float64(inventory.Summarize(meds).LowStock))
}

func (c *Controller) forgetLocked(id string) {
	if c.active != nil && c.active.MedicationID == id {
		c.clearLocked()
	}
}

func (c *Controller) clearLocked() {
	c.active = nil
	c.metrics.ActiveReminder.Set(0)
}

func (c *Controller) activeCopy() *models.ActiveReminder {
	if c.active == nil {
		return nil
	}
	a := *c.active
	return &a
}

func auditAction(a Action) string {
	switch a {
	case ActionTake:
		return audit.ActionDoseTake
	case ActionSkip:
		return audit.ActionDoseSkip
	case ActionSnooze:
		return audit.ActionDoseSnooze
	}
	return "dose." + string(a)
}

func resolveInputs(a Action, medicationID string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"action":        string(a),
		"medication_id": medicationID,
		"now":           now,
	}
}
