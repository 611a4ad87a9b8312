// Package reminder detects due doses and drives the single active reminder
// through take, skip and snooze.
package reminder

import (
	"time"

	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/regimen"
)

// Scan returns the first due medication in registry order, or nil when
// nothing is due or a reminder is already active. Medications whose regimen
// cannot be evaluated are reported as problems and treated as not due.
func Scan(meds []models.Medication, active *models.ActiveReminder, now time.Time) (*models.Medication, []models.Problem) {
	var due *models.Medication
	var problems []models.Problem

	for i := range meds {
		m := &meds[i]
		ok, err := regimen.IsDue(m, now)
		if err != nil {
			problems = append(problems, models.Problem{MedicationID: m.ID, Name: m.Name, Error: err.Error()})
			continue
		}
		if ok && due == nil && active == nil {
			found := m.Clone()
			due = &found
		}
	}
	return due, problems
}
