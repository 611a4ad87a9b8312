package models

import (
	"errors"
	"testing"
	"time"
)

func TestPatchApplyNew(t *testing.T) {
	next := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	name, dosage, freq := "Amoxicillin", "500mg", 8

	m, err := MedicationPatch{Name: &name, Dosage: &dosage, FrequencyHours: &freq, NextDose: &next}.Apply(nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if m.Lifecycle != LifecycleActive {
		t.Errorf("Expected new medication to be active, got %s", m.Lifecycle)
	}
	if m.IsCyclic() {
		t.Error("Expected fixed-interval medication")
	}
}

func TestPatchApplyCyclicDefaults(t *testing.T) {
	next := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	name, dosage, freq := "BirthControlPillX", "1 tablet", 12
	cyclic := true

	m, err := MedicationPatch{Name: &name, Dosage: &dosage, FrequencyHours: &freq, NextDose: &next, Cyclic: &cyclic}.Apply(nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if m.FrequencyHours != CyclicFrequencyHours {
		t.Errorf("Expected frequency %d, got %d", CyclicFrequencyHours, m.FrequencyHours)
	}
	if m.Cycle.ActiveDays != DefaultActiveDays || m.Cycle.RestDays != DefaultRestDays {
		t.Errorf("Expected %d/%d, got %d/%d", DefaultActiveDays, DefaultRestDays, m.Cycle.ActiveDays, m.Cycle.RestDays)
	}
	if !m.Cycle.StartDate.Equal(next) {
		t.Errorf("Expected start date %s, got %s", next, m.Cycle.StartDate)
	}
}

func TestPatchApplyEditKeepsUnsetFields(t *testing.T) {
	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	base := Medication{
		ID:             "m1",
		Name:           "BirthControlPillX",
		Dosage:         "1 tablet",
		FrequencyHours: 24,
		NextDose:       start,
		Cycle:          &Cycle{ActiveDays: 24, RestDays: 4, StartDate: start},
		Quantity:       IntPtr(28),
		Lifecycle:      LifecycleActive,
	}
	notes := "evening"

	m, err := MedicationPatch{Notes: &notes, ClearQuantity: true}.Apply(&base)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if m.Cycle.ActiveDays != 24 || m.Cycle.RestDays != 4 {
		t.Errorf("Expected existing cycle kept, got %+v", m.Cycle)
	}
	if m.Quantity != nil {
		t.Error("Expected quantity cleared")
	}
	if base.Quantity == nil || base.Notes != "" {
		t.Error("Expected base to be left untouched")
	}

	off := false
	m, err = MedicationPatch{Cyclic: &off}.Apply(&base)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if m.Cycle != nil {
		t.Error("Expected cycle removed")
	}
}

func TestPatchApplyRevalidates(t *testing.T) {
	base := Medication{
		ID:             "m1",
		Name:           "Amoxicillin",
		Dosage:         "500mg",
		FrequencyHours: 8,
		NextDose:       time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Lifecycle:      LifecycleActive,
	}

	tests := []struct {
		name  string
		patch MedicationPatch
	}{
		{"empty name", MedicationPatch{Name: new(string)}},
		{"zero frequency", MedicationPatch{FrequencyHours: new(int)}},
		{"negative active days", func() MedicationPatch {
			on, neg := true, -1
			return MedicationPatch{Cyclic: &on, ActiveDays: &neg}
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.patch.Apply(&base)
			if !errors.Is(err, ErrInvalidMedication) {
				t.Errorf("Expected ErrInvalidMedication, got %v", err)
			}
		})
	}
}

func TestPatchApplyAllowsZeroLengthCycle(t *testing.T) {
	next := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	name, dosage, zero := "Odd", "1", 0
	on := true

	m, err := MedicationPatch{Name: &name, Dosage: &dosage, NextDose: &next, Cyclic: &on, ActiveDays: &zero, RestDays: &zero}.Apply(nil)
	if err != nil {
		t.Fatalf("Expected zero-length cycle to be storable, got %v", err)
	}
	if m.Cycle.ActiveDays+m.Cycle.RestDays != 0 {
		t.Errorf("Expected zero-length cycle, got %+v", m.Cycle)
	}
}
