// Package controlplane provides the HTTP API and service layer for dosekeeper.
package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/dosekeeper/internal/audit"
	"github.com/fentz26/dosekeeper/internal/inventory"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/regimen"
	"github.com/fentz26/dosekeeper/internal/registry"
	"github.com/fentz26/dosekeeper/internal/reminder"
	"go.uber.org/zap"
)

// AuditLog reads back decision records. The SQLite store implements it.
type AuditLog interface {
	ListPDR(medicationID string, limit int) ([]models.PDREntry, error)
}

// StatsSource reports scheduler statistics.
type StatsSource interface {
	GetStats() map[string]interface{}
}

// MedicationView is a medication plus its derived state at request time.
type MedicationView struct {
	models.Medication
	Phase      *regimen.PhaseInfo `json:"phase,omitempty"`
	PhaseError string             `json:"phase_error,omitempty"`
	Due        bool               `json:"due"`
	LowStock   bool               `json:"low_stock"`
}

// ReminderView is the active reminder with its medication.
type ReminderView struct {
	models.ActiveReminder
	Medication models.Medication `json:"medication"`
}

// StatsResponse combines adherence and inventory figures.
type StatsResponse struct {
	Adherence reminder.AdherenceReport `json:"adherence"`
	Inventory inventory.Summary        `json:"inventory"`
}

// Service provides the control plane business logic.
type Service struct {
	reg      *registry.Registry
	ctrl     *reminder.Controller
	pdr      audit.Recorder
	auditLog AuditLog
	sched    StatsSource
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new control plane service.
func NewService(reg *registry.Registry, ctrl *reminder.Controller, pdr audit.Recorder, now func() time.Time) *Service {
	if pdr == nil {
		pdr = audit.Discard{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{reg: reg, ctrl: ctrl, pdr: pdr, logger: zap.NewNop(), now: now}
}

// WithLogger sets the logger used for failed audit writes.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithAuditLog enables GET /audit.
func (s *Service) WithAuditLog(a AuditLog) *Service {
	s.auditLog = a
	return s
}

// WithScheduler enables GET /scheduler.
func (s *Service) WithScheduler(sch StatsSource) *Service {
	s.sched = sch
	return s
}

// --- Medication Operations ---

// ListMedications returns medications filtered by lifecycle: active (the
// default), archived or all.
func (s *Service) ListMedications(status string) ([]MedicationView, error) {
	var lc models.Lifecycle
	switch status {
	case "", "active":
		lc = models.LifecycleActive
	case "archived":
		lc = models.LifecycleArchived
	case "all":
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, status)
	}

	now := s.now()
	meds := s.reg.List(lc)
	views := make([]MedicationView, 0, len(meds))
	for _, m := range meds {
		views = append(views, s.view(m, now))
	}
	return views, nil
}

// GetMedication returns a single medication with derived state.
func (s *Service) GetMedication(id string) (*MedicationView, error) {
	m, ok := s.reg.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	v := s.view(m, s.now())
	return &v, nil
}

// CreateMedication adds a medication.
func (s *Service) CreateMedication(ctx context.Context, patch models.MedicationPatch) (*models.Medication, error) {
	m, err := s.ctrl.Save(ctx, "", patch, s.now())
	if err != nil {
		return nil, err
	}
	s.record(audit.ActionMedicationCreate, patch, audit.OutcomeSuccess, m.ID, m.Name)
	return &m, nil
}

// UpdateMedication applies an edit.
func (s *Service) UpdateMedication(ctx context.Context, id string, patch models.MedicationPatch) (*models.Medication, error) {
	m, err := s.ctrl.Save(ctx, id, patch, s.now())
	if err != nil {
		return nil, err
	}
	s.record(audit.ActionMedicationEdit, patch, audit.OutcomeSuccess, m.ID, "")
	return &m, nil
}

// ArchiveMedication soft-deletes a medication.
func (s *Service) ArchiveMedication(ctx context.Context, id string) (*models.Medication, error) {
	m, err := s.ctrl.Archive(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.record(audit.ActionMedicationArchive, map[string]string{"id": id}, audit.OutcomeSuccess, id, "")
	return &m, nil
}

// RestoreMedication un-archives a medication.
func (s *Service) RestoreMedication(ctx context.Context, id string) (*models.Medication, error) {
	m, err := s.ctrl.Restore(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.record(audit.ActionMedicationRestore, map[string]string{"id": id}, audit.OutcomeSuccess, id, "")
	return &m, nil
}

// DeleteMedication removes a medication permanently.
func (s *Service) DeleteMedication(ctx context.Context, id string) error {
	if err := s.ctrl.Delete(ctx, id); err != nil {
		return err
	}
	s.record(audit.ActionMedicationDelete, map[string]string{"id": id}, audit.OutcomeSuccess, id, "")
	return nil
}

// LogDose records a dose taken outside a reminder.
func (s *Service) LogDose(ctx context.Context, id string) (reminder.Outcome, error) {
	return s.ctrl.LogDoseNow(ctx, id, s.now())
}

// --- Reminder Operations ---

// ActiveReminder returns the current reminder or nil.
func (s *Service) ActiveReminder() *ReminderView {
	a := s.ctrl.Active()
	if a == nil {
		return nil
	}
	m, ok := s.reg.Get(a.MedicationID)
	if !ok {
		return nil
	}
	return &ReminderView{ActiveReminder: *a, Medication: m}
}

// Resolve answers the active reminder.
func (s *Service) Resolve(ctx context.Context, action reminder.Action, medicationID string) (reminder.Outcome, error) {
	if medicationID == "" {
		return reminder.Outcome{}, fmt.Errorf("%w: medication_id is required", ErrBadRequest)
	}
	return s.ctrl.Resolve(ctx, action, medicationID, s.now())
}

// --- Reporting ---

// DoseLog returns the newest dose log entries.
func (s *Service) DoseLog(limit int) []models.DoseLogEntry {
	return s.reg.DoseLog(limit)
}

// Stats returns adherence over the last days days plus an inventory summary.
func (s *Service) Stats(days int) StatsResponse {
	return StatsResponse{
		Adherence: s.ctrl.Adherence(s.now(), days),
		Inventory: inventory.Summarize(s.reg.List(models.LifecycleActive)),
	}
}

// Problems returns medications whose regimen failed evaluation.
func (s *Service) Problems() []models.Problem {
	return s.ctrl.Problems()
}

// SchedulerStats returns scheduler statistics, or nil without a scheduler.
func (s *Service) SchedulerStats() map[string]interface{} {
	if s.sched == nil {
		return map[string]interface{}{"running": false}
	}
	return s.sched.GetStats()
}

// AuditTrail returns recent decision records.
func (s *Service) AuditTrail(medicationID string, limit int) ([]models.PDREntry, error) {
	if s.auditLog == nil {
		return []models.PDREntry{}, nil
	}
	entries, err := s.auditLog.ListPDR(medicationID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	return entries, nil
}

func (s *Service) view(m models.Medication, now time.Time) MedicationView {
	v := MedicationView{Medication: m, LowStock: inventory.IsLowStock(&m)}
	if m.IsCyclic() {
		info, err := regimen.CyclePhase(&m, now)
		if err != nil {
			v.PhaseError = err.Error()
		} else {
			v.Phase = &info
		}
	}
	v.Due, _ = regimen.IsDue(&m, now)
	return v
}

// record writes a decision record. A failed write never fails the request.
func (s *Service) record(action string, inputs interface{}, outcome, medicationID, details string) {
	if _, err := s.pdr.Record(action, inputs, outcome, medicationID, details); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("medication_id", medicationID),
			zap.Error(err))
	}
}
