package models

import "time"

// Default cycle lengths for a new cyclic regimen (a 28-day pill pack).
const (
	DefaultActiveDays = 21
	DefaultRestDays   = 7
)

// MedicationPatch carries the fields of a create or edit request. Nil fields
// are left untouched on edit.
type MedicationPatch struct {
	Name           *string    `json:"name,omitempty"`
	Dosage         *string    `json:"dosage,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	FrequencyHours *int       `json:"frequency_hours,omitempty"`
	NextDose       *time.Time `json:"next_dose,omitempty"`

	Cyclic         *bool      `json:"cyclic,omitempty"`
	ActiveDays     *int       `json:"active_days,omitempty"`
	RestDays       *int       `json:"rest_days,omitempty"`
	CycleStartDate *time.Time `json:"cycle_start_date,omitempty"`

	Quantity             *int `json:"quantity,omitempty"`
	ClearQuantity        bool `json:"clear_quantity,omitempty"`
	RefillThreshold      *int `json:"refill_threshold,omitempty"`
	ClearRefillThreshold bool `json:"clear_refill_threshold,omitempty"`
}

// Apply merges the patch onto base (nil for a new medication) and revalidates
// the result. Inventory depletion state is not touched here.
func (p MedicationPatch) Apply(base *Medication) (Medication, error) {
	var m Medication
	if base != nil {
		m = base.Clone()
	} else {
		m.Lifecycle = LifecycleActive
	}

	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Dosage != nil {
		m.Dosage = *p.Dosage
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if p.FrequencyHours != nil {
		m.FrequencyHours = *p.FrequencyHours
	}
	if p.NextDose != nil {
		m.NextDose = *p.NextDose
	}

	cyclic := m.Cycle != nil
	if p.Cyclic != nil {
		cyclic = *p.Cyclic
	}
	if cyclic {
		c := Cycle{ActiveDays: DefaultActiveDays, RestDays: DefaultRestDays}
		if m.Cycle != nil {
			c = *m.Cycle
		}
		if p.ActiveDays != nil {
			c.ActiveDays = *p.ActiveDays
		}
		if p.RestDays != nil {
			c.RestDays = *p.RestDays
		}
		if p.CycleStartDate != nil {
			c.StartDate = *p.CycleStartDate
		}
		if c.StartDate.IsZero() {
			c.StartDate = m.NextDose
		}
		m.Cycle = &c
		m.FrequencyHours = CyclicFrequencyHours
	} else {
		m.Cycle = nil
	}

	switch {
	case p.ClearQuantity:
		m.Quantity = nil
	case p.Quantity != nil:
		m.Quantity = IntPtr(*p.Quantity)
	}
	switch {
	case p.ClearRefillThreshold:
		m.RefillThreshold = nil
	case p.RefillThreshold != nil:
		m.RefillThreshold = IntPtr(*p.RefillThreshold)
	}

	if err := m.Validate(); err != nil {
		return Medication{}, err
	}
	return m, nil
}
