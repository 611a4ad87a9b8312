package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/dosekeeper/internal/connectors"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/regimen"
	"go.uber.org/zap"
)

// AdherenceTag identifies the weekly summary notification.
const AdherenceTag = "adherence-weekly"

// AdherenceRow is the per-medication line of an adherence report.
type AdherenceRow struct {
	MedicationID string  `json:"medication_id"`
	Name         string  `json:"name"`
	Taken        int     `json:"taken"`
	Expected     int     `json:"expected"`
	Rate         float64 `json:"rate"`
}

// AdherenceReport compares logged doses with the schedule over a window.
type AdherenceReport struct {
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Days     int            `json:"days"`
	Taken    int            `json:"taken"`
	Expected int            `json:"expected"`
	Rate     float64        `json:"rate"`
	Rows     []AdherenceRow `json:"rows"`
}

// BuildAdherence computes a report for the active medications in meds.
// counts maps medication id to doses logged in the window.
func BuildAdherence(meds []models.Medication, counts map[string]int, from, to time.Time) AdherenceReport {
	r := AdherenceReport{
		From: from,
		To:   to,
		Days: int(to.Sub(from) / (24 * time.Hour)),
		Rows: []AdherenceRow{},
	}
	for i := range meds {
		m := &meds[i]
		if m.IsArchived() {
			continue
		}
		expected, err := regimen.ExpectedDoses(m, from, to)
		if err != nil {
			expected = 0
		}
		row := AdherenceRow{
			MedicationID: m.ID,
			Name:         m.Name,
			Taken:        counts[m.ID],
			Expected:     expected,
			Rate:         rate(counts[m.ID], expected),
		}
		r.Rows = append(r.Rows, row)
		r.Taken += row.Taken
		r.Expected += row.Expected
	}
	r.Rate = rate(r.Taken, r.Expected)
	return r
}

// Adherence reports over the last days days ending at now.
func (c *Controller) Adherence(now time.Time, days int) AdherenceReport {
	if days <= 0 {
		days = 7
	}
	from := now.AddDate(0, 0, -days)
	return BuildAdherence(c.reg.List(""), c.reg.DoseCounts(from), from, now)
}

// WeeklySummary sends the seven-day adherence summary as a notification.
func (c *Controller) WeeklySummary(ctx context.Context, now time.Time) AdherenceReport {
	r := c.Adherence(now, 7)
	if r.Expected == 0 && r.Taken == 0 {
		return r
	}

	c.notify(ctx, "summary", connectors.Notification{
		Tag:   AdherenceTag,
		Title: "Weekly adherence",
		Body:  fmt.Sprintf("Taken %d of %d doses (%.0f%%)", r.Taken, r.Expected, r.Rate*100),
	})
	c.logger.Info("weekly adherence",
		zap.Int("taken", r.Taken),
		zap.Int("expected", r.Expected),
		zap.Float64("rate", r.Rate))
	return r
}

func rate(taken, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	return float64(taken) / float64(expected)
}
