// Package inventory derives low-stock status from a medication's dose counts.
package inventory

import "github.com/fentz26/dosekeeper/internal/models"

// IsLowStock reports whether an active, inventory-tracked medication is at or
// below its refill threshold.
func IsLowStock(med *models.Medication) bool {
	if med.IsArchived() || med.RemainingDoses == nil || med.RefillThreshold == nil {
		return false
	}
	return *med.RemainingDoses <= *med.RefillThreshold
}

// NeedsRefillAlert reports whether a low-stock alert has not yet been sent
// for the current fill.
func NeedsRefillAlert(med *models.Medication) bool {
	return IsLowStock(med) && !med.RefillNotified
}

// Consume records one dose taken. Untracked inventory is left alone; the
// count may go to zero or below, which reads as "probably empty".
func Consume(med *models.Medication) {
	if med.RemainingDoses == nil {
		return
	}
	v := *med.RemainingDoses - 1
	med.RemainingDoses = &v
}

// ApplyQuantityEdit carries depletion state across an edit. A changed
// quantity (including newly set or cleared) is treated as a fresh fill; an
// unchanged one keeps the previous remaining count and notification flag.
// prev is nil when next is a new medication.
func ApplyQuantityEdit(prev *models.Medication, next *models.Medication) {
	var prevQty *int
	if prev != nil {
		prevQty = prev.Quantity
	}

	if prev != nil && sameQuantity(prevQty, next.Quantity) {
		next.RemainingDoses = copyInt(prev.RemainingDoses)
		next.RefillNotified = prev.RefillNotified
		return
	}

	next.RemainingDoses = copyInt(next.Quantity)
	next.RefillNotified = false
}

// Summary aggregates inventory across the active medications.
type Summary struct {
	Tracked  int `json:"tracked"`
	LowStock int `json:"low_stock"`
	// AverageRemaining is over tracked medications, rounded down.
	AverageRemaining int `json:"average_remaining"`
}

// Summarize builds a Summary over meds; archived records are skipped.
func Summarize(meds []models.Medication) Summary {
	var s Summary
	total := 0
	for i := range meds {
		m := &meds[i]
		if m.IsArchived() || m.RemainingDoses == nil {
			continue
		}
		s.Tracked++
		total += *m.RemainingDoses
		if IsLowStock(m) {
			s.LowStock++
		}
	}
	if s.Tracked > 0 {
		s.AverageRemaining = total / s.Tracked
	}
	return s
}

func sameQuantity(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
