// Package regimen classifies a medication's dosing state at a reference time.
//
// All functions are pure: the caller supplies "now", nothing here reads the
// wall clock.
package regimen

import (
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/dosekeeper/internal/models"
)

// ErrInvalidRegimen indicates a cyclic medication whose cycle cannot be evaluated.
var ErrInvalidRegimen = errors.New("invalid regimen")

// SnoozeInterval is how far a snoozed dose is deferred.
const SnoozeInterval = 15 * time.Minute

// Phase is the position of a cyclic regimen within its cycle.
type Phase string

const (
	PhaseActive       Phase = "active"
	PhaseRest         Phase = "rest"
	PhasePendingStart Phase = "pending_start"
)

// PhaseInfo is the result of CyclePhase. DayIndex is 1-based; both day
// fields are zero for PhasePendingStart.
type PhaseInfo struct {
	Phase     Phase `json:"phase"`
	DayIndex  int   `json:"day_index"`
	TotalDays int   `json:"total_days"`
}

// Interval returns the time between doses. Cyclic regimens always make one
// dosing decision per day.
func Interval(med *models.Medication) time.Duration {
	if med.IsCyclic() {
		return models.CyclicFrequencyHours * time.Hour
	}
	return time.Duration(med.FrequencyHours) * time.Hour
}

// NextDoseAfter returns the next scheduled dose for a dose resolved at now.
func NextDoseAfter(med *models.Medication, now time.Time) time.Time {
	return now.Add(Interval(med))
}

// NormalizeDay moves t to noon of its calendar day in loc, so day arithmetic
// is not disturbed by DST shifts or evaluation close to midnight.
func NormalizeDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from a to b as seen in loc.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	a = NormalizeDay(a, loc)
	b = NormalizeDay(b, loc)
	// Re-anchor in UTC so a 23h or 25h DST day still counts as one.
	ua := time.Date(a.Year(), a.Month(), a.Day(), 12, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 12, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

// CyclePhase computes where a cyclic medication sits in its cycle. The day is
// counted from max(now, NextDose) so a dose scheduled later today or tomorrow
// is classified by the day it falls on.
func CyclePhase(med *models.Medication, now time.Time) (PhaseInfo, error) {
	c := med.Cycle
	if c == nil {
		return PhaseInfo{}, fmt.Errorf("%w: medication %s is not cyclic", ErrInvalidRegimen, med.ID)
	}
	if c.ActiveDays < 0 || c.RestDays < 0 {
		return PhaseInfo{}, fmt.Errorf("%w: negative day count (active=%d rest=%d)", ErrInvalidRegimen, c.ActiveDays, c.RestDays)
	}
	total := c.ActiveDays + c.RestDays
	if total <= 0 {
		return PhaseInfo{}, fmt.Errorf("%w: cycle length must be positive", ErrInvalidRegimen)
	}

	reference := now
	if med.NextDose.After(now) {
		reference = med.NextDose
	}

	days := DaysBetween(c.StartDate, reference, now.Location())
	if days < 0 {
		return PhaseInfo{Phase: PhasePendingStart}, nil
	}

	dayInCycle := days % total
	if dayInCycle < c.ActiveDays {
		return PhaseInfo{Phase: PhaseActive, DayIndex: dayInCycle + 1, TotalDays: c.ActiveDays}, nil
	}
	return PhaseInfo{Phase: PhaseRest, DayIndex: dayInCycle - c.ActiveDays + 1, TotalDays: c.RestDays}, nil
}

// IsDue reports whether med should be surfaced as a reminder at now. Rest
// days and a not-yet-started cycle suppress reminders regardless of NextDose.
func IsDue(med *models.Medication, now time.Time) (bool, error) {
	if med.IsArchived() || med.NextDose.After(now) {
		return false, nil
	}
	if !med.IsCyclic() {
		return true, nil
	}
	info, err := CyclePhase(med, now)
	if err != nil {
		return false, err
	}
	return info.Phase == PhaseActive, nil
}
