package regimen

import (
	"fmt"
	"time"

	"github.com/fentz26/dosekeeper/internal/models"
)

// ExpectedDoses estimates how many doses med called for in [from, to). The
// window is clipped to the medication's creation time. Cyclic regimens count
// one dose per active day; fixed-interval ones count whole intervals.
func ExpectedDoses(med *models.Medication, from, to time.Time) (int, error) {
	if !med.CreatedAt.IsZero() && med.CreatedAt.After(from) {
		from = med.CreatedAt
	}
	if !to.After(from) {
		return 0, nil
	}

	if !med.IsCyclic() {
		interval := Interval(med)
		if interval <= 0 {
			return 0, nil
		}
		return int(to.Sub(from) / interval), nil
	}

	c := med.Cycle
	total := c.ActiveDays + c.RestDays
	if c.ActiveDays < 0 || c.RestDays < 0 || total <= 0 {
		return 0, fmt.Errorf("%w: cycle length must be positive", ErrInvalidRegimen)
	}

	loc := to.Location()
	days := DaysBetween(from, to, loc)
	count := 0
	for i := 0; i < days; i++ {
		n := DaysBetween(c.StartDate, from, loc) + i
		if n < 0 {
			continue
		}
		if n%total < c.ActiveDays {
			count++
		}
	}
	return count, nil
}
