// Package registry owns the medication collection and the dose log.
//
// Every mutation is applied to a copy, written back in full through the
// Persister, and only then becomes visible. Callers outside the reminder
// controller must use Save/Archive/Restore/Delete; dose bookkeeping goes
// through Update, AppendDose and RecordDose.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/dosekeeper/internal/inventory"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a medication id is not in the registry.
var ErrNotFound = errors.New("medication not found")

// Persister loads and stores whole collections. No partial writes are assumed.
type Persister interface {
	LoadMedications(ctx context.Context) ([]models.Medication, error)
	SaveMedications(ctx context.Context, meds []models.Medication) error
	LoadDoseLog(ctx context.Context) ([]models.DoseLogEntry, error)
	SaveDoseLog(ctx context.Context, entries []models.DoseLogEntry) error
}

// Registry is the in-memory medication collection backed by a Persister.
type Registry struct {
	persister Persister

	mu    sync.RWMutex
	meds  []models.Medication
	doses []models.DoseLogEntry
}

// New creates an empty registry. Call Load to populate it.
func New(p Persister) *Registry {
	return &Registry{persister: p}
}

// Load replaces the in-memory state with the persisted collections.
func (r *Registry) Load(ctx context.Context) error {
	meds, err := r.persister.LoadMedications(ctx)
	if err != nil {
		return fmt.Errorf("load medications: %w", err)
	}
	doses, err := r.persister.LoadDoseLog(ctx)
	if err != nil {
		return fmt.Errorf("load dose log: %w", err)
	}

	r.mu.Lock()
	r.meds = meds
	r.doses = doses
	r.mu.Unlock()
	return nil
}

// List returns medications in registry order. An empty lifecycle returns all.
func (r *Registry) List(lifecycle models.Lifecycle) []models.Medication {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Medication, 0, len(r.meds))
	for _, m := range r.meds {
		if lifecycle != "" && m.Lifecycle != lifecycle {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// Get returns a copy of the medication with the given id.
func (r *Registry) Get(id string) (models.Medication, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return r.meds[i].Clone(), true
	}
	return models.Medication{}, false
}

// Save creates (empty id) or edits a medication from a patch. Quantity
// changes reset the depletion count; a moved NextDose re-arms notifications.
func (r *Registry) Save(ctx context.Context, id string, patch models.MedicationPatch, now time.Time) (models.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev *models.Medication
	idx := -1
	if id != "" {
		idx = r.indexOf(id)
		if idx < 0 {
			return models.Medication{}, ErrNotFound
		}
		p := r.meds[idx].Clone()
		prev = &p
	}

	next, err := patch.Apply(prev)
	if err != nil {
		return models.Medication{}, err
	}
	inventory.ApplyQuantityEdit(prev, &next)

	if prev == nil {
		next.ID = uuid.New().String()
		next.CreatedAt = now
	} else if !prev.NextDose.Equal(next.NextDose) {
		next.LastNotified = nil
		next.GuardianNotified = false
	}
	next.UpdatedAt = now

	meds := r.copyMeds()
	if idx >= 0 {
		meds[idx] = next
	} else {
		meds = append(meds, next)
	}
	if err := r.commitMeds(ctx, meds); err != nil {
		return models.Medication{}, err
	}
	return next.Clone(), nil
}

// Archive soft-deletes a medication. Archiving twice is harmless.
func (r *Registry) Archive(ctx context.Context, id string, now time.Time) (models.Medication, error) {
	return r.setLifecycle(ctx, id, models.LifecycleArchived, now)
}

// Restore returns an archived medication to active use.
func (r *Registry) Restore(ctx context.Context, id string, now time.Time) (models.Medication, error) {
	return r.setLifecycle(ctx, id, models.LifecycleActive, now)
}

func (r *Registry) setLifecycle(ctx context.Context, id string, lc models.Lifecycle, now time.Time) (models.Medication, error) {
	return r.Update(ctx, id, now, func(m *models.Medication) error {
		m.Lifecycle = lc
		return nil
	})
}

// Delete permanently removes a medication. Dose log entries are kept.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}
	meds := r.copyMeds()
	meds = append(meds[:idx], meds[idx+1:]...)
	return r.commitMeds(ctx, meds)
}

// Update applies fn to a copy of the medication and persists the result.
// It is the mutation path for dose resolution; fn must keep the record valid.
func (r *Registry) Update(ctx context.Context, id string, now time.Time, fn func(*models.Medication) error) (models.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.Medication{}, ErrNotFound
	}

	next := r.meds[idx].Clone()
	if err := fn(&next); err != nil {
		return models.Medication{}, err
	}
	if err := next.Validate(); err != nil {
		return models.Medication{}, err
	}
	next.UpdatedAt = now

	meds := r.copyMeds()
	meds[idx] = next
	if err := r.commitMeds(ctx, meds); err != nil {
		return models.Medication{}, err
	}
	return next.Clone(), nil
}

// AppendDose adds an entry to the dose log and persists the whole log.
func (r *Registry) AppendDose(ctx context.Context, entry models.DoseLogEntry) (models.DoseLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	doses := make([]models.DoseLogEntry, len(r.doses), len(r.doses)+1)
	copy(doses, r.doses)
	doses = append(doses, entry)

	if err := r.persister.SaveDoseLog(ctx, doses); err != nil {
		return models.DoseLogEntry{}, fmt.Errorf("save dose log: %w", err)
	}
	r.doses = doses
	return entry, nil
}

// RecordDose applies fn to the medication and appends entry to the dose log
// as one unit. Medications are saved first; if the dose log then fails to
// save, the previous medications are written back and neither change is kept.
func (r *Registry) RecordDose(ctx context.Context, id string, entry models.DoseLogEntry, now time.Time, fn func(*models.Medication) error) (models.Medication, models.DoseLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.Medication{}, models.DoseLogEntry{}, ErrNotFound
	}

	next := r.meds[idx].Clone()
	if err := fn(&next); err != nil {
		return models.Medication{}, models.DoseLogEntry{}, err
	}
	if err := next.Validate(); err != nil {
		return models.Medication{}, models.DoseLogEntry{}, err
	}
	next.UpdatedAt = now

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	doses := make([]models.DoseLogEntry, len(r.doses), len(r.doses)+1)
	copy(doses, r.doses)
	doses = append(doses, entry)

	meds := r.copyMeds()
	meds[idx] = next
	if err := r.persister.SaveMedications(ctx, meds); err != nil {
		return models.Medication{}, models.DoseLogEntry{}, fmt.Errorf("save medications: %w", err)
	}
	if err := r.persister.SaveDoseLog(ctx, doses); err != nil {
		err = fmt.Errorf("save dose log: %w", err)
		if rbErr := r.persister.SaveMedications(ctx, r.meds); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("roll back medications: %w", rbErr))
		}
		return models.Medication{}, models.DoseLogEntry{}, err
	}

	r.meds = meds
	r.doses = doses
	return next.Clone(), entry, nil
}

// DoseLog returns the newest entries first. limit <= 0 returns everything.
func (r *Registry) DoseLog(limit int) []models.DoseLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.DoseLogEntry, len(r.doses))
	copy(out, r.doses)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DoseCounts returns the number of logged doses per medication id since t.
func (r *Registry) DoseCounts(since time.Time) map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, d := range r.doses {
		if d.Timestamp.Before(since) {
			continue
		}
		counts[d.MedicationID]++
	}
	return counts
}

func (r *Registry) indexOf(id string) int {
	for i := range r.meds {
		if r.meds[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) copyMeds() []models.Medication {
	meds := make([]models.Medication, len(r.meds))
	copy(meds, r.meds)
	return meds
}

func (r *Registry) commitMeds(ctx context.Context, meds []models.Medication) error {
	if err := r.persister.SaveMedications(ctx, meds); err != nil {
		return fmt.Errorf("save medications: %w", err)
	}
	r.meds = meds
	return nil
}
