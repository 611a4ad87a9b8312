// Package models defines the core domain types for dosekeeper.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Lifecycle represents whether a medication is in use or soft-deleted.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archived"
)

// ErrInvalidMedication is returned when a medication fails validation at the save boundary.
var ErrInvalidMedication = errors.New("invalid medication")

// CyclicFrequencyHours is the fixed dosing interval of a cyclic regimen.
const CyclicFrequencyHours = 24

// Cycle describes an active/rest day regimen such as a contraceptive pack.
type Cycle struct {
	ActiveDays int       `json:"active_days"`
	RestDays   int       `json:"rest_days"`
	StartDate  time.Time `json:"start_date"`
}

// Medication is a single medication record with its regimen and inventory.
type Medication struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Dosage         string    `json:"dosage"`
	Notes          string    `json:"notes,omitempty"`
	FrequencyHours int       `json:"frequency_hours"`
	NextDose       time.Time `json:"next_dose"`
	Cycle          *Cycle    `json:"cycle,omitempty"`

	// Inventory tracking is opt-in; nil means "not tracked".
	Quantity        *int `json:"quantity,omitempty"`
	RemainingDoses  *int `json:"remaining_doses,omitempty"`
	RefillThreshold *int `json:"refill_threshold,omitempty"`
	RefillNotified  bool `json:"refill_notified"`

	// LastNotified is when a push notification was sent for the current NextDose.
	LastNotified     *time.Time `json:"last_notified,omitempty"`
	GuardianNotified bool       `json:"guardian_notified"`

	Lifecycle Lifecycle `json:"lifecycle"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCyclic reports whether the medication follows an active/rest day regimen.
func (m *Medication) IsCyclic() bool {
	return m.Cycle != nil
}

// IsArchived reports whether the medication has been soft-deleted.
func (m *Medication) IsArchived() bool {
	return m.Lifecycle == LifecycleArchived
}

// Clone returns a deep copy so callers cannot alias registry state.
func (m Medication) Clone() Medication {
	out := m
	if m.Cycle != nil {
		c := *m.Cycle
		out.Cycle = &c
	}
	out.Quantity = cloneInt(m.Quantity)
	out.RemainingDoses = cloneInt(m.RemainingDoses)
	out.RefillThreshold = cloneInt(m.RefillThreshold)
	if m.LastNotified != nil {
		t := *m.LastNotified
		out.LastNotified = &t
	}
	return out
}

// Validate checks the record-level invariants. Cycle lengths are deliberately
// not checked here: a zero-length cycle is stored and rejected at evaluation time.
func (m *Medication) Validate() error {
	var problems []string
	if strings.TrimSpace(m.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(m.Dosage) == "" {
		problems = append(problems, "dosage is required")
	}
	if m.FrequencyHours <= 0 {
		problems = append(problems, "frequency_hours must be positive")
	}
	if m.NextDose.IsZero() {
		problems = append(problems, "next_dose is required")
	}
	if m.Cycle != nil {
		if m.FrequencyHours != CyclicFrequencyHours {
			problems = append(problems, "cyclic regimens dose every 24 hours")
		}
		if m.Cycle.StartDate.IsZero() {
			problems = append(problems, "cycle start_date is required")
		}
		if m.Cycle.ActiveDays < 0 || m.Cycle.RestDays < 0 {
			problems = append(problems, "cycle day counts cannot be negative")
		}
	}
	switch m.Lifecycle {
	case LifecycleActive, LifecycleArchived:
	default:
		problems = append(problems, fmt.Sprintf("unknown lifecycle %q", m.Lifecycle))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMedication, strings.Join(problems, "; "))
	}
	return nil
}

// DoseLogEntry is an immutable record of a dose actually taken. Name and
// dosage are snapshotted so history survives later edits.
type DoseLogEntry struct {
	ID             string    `json:"id"`
	MedicationID   string    `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Timestamp      time.Time `json:"timestamp"`
}

// ActiveReminder is the single in-flight dose prompt. It is never persisted.
type ActiveReminder struct {
	MedicationID string    `json:"medication_id"`
	ActivatedAt  time.Time `json:"activated_at"`
}

// Problem reports a medication whose regimen could not be evaluated.
type Problem struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Error        string `json:"error"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	InputsHash   string    `json:"inputs_hash"`
	Outcome      string    `json:"outcome"`
	MedicationID string    `json:"medication_id,omitempty"`
	Details      string    `json:"details,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a small helper for building optional inventory fields.
func IntPtr(v int) *int {
	return &v
}
