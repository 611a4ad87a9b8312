// Package memory provides an in-process persister, used by tests and by the
// daemon when started with --db=:memory:.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/fentz26/dosekeeper/internal/models"
)

// ErrInjected is returned when a test has armed a save failure.
var ErrInjected = errors.New("injected save failure")

// Store keeps full collections in memory.
type Store struct {
	mu    sync.RWMutex
	meds  []models.Medication
	doses []models.DoseLogEntry

	// FailSaves makes every save return ErrInjected.
	FailSaves bool
	// Saves counts successful medication save-backs.
	Saves int
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) LoadMedications(ctx context.Context) ([]models.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Medication, len(s.meds))
	for i, m := range s.meds {
		out[i] = m.Clone()
	}
	return out, nil
}

func (s *Store) SaveMedications(ctx context.Context, meds []models.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves {
		return ErrInjected
	}
	s.meds = make([]models.Medication, len(meds))
	for i, m := range meds {
		s.meds[i] = m.Clone()
	}
	s.Saves++
	return nil
}

func (s *Store) LoadDoseLog(ctx context.Context) ([]models.DoseLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DoseLogEntry, len(s.doses))
	copy(out, s.doses)
	return out, nil
}

func (s *Store) SaveDoseLog(ctx context.Context, entries []models.DoseLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves {
		return ErrInjected
	}
	s.doses = make([]models.DoseLogEntry, len(entries))
	copy(s.doses, entries)
	return nil
}

// SetFailSaves toggles save failures under the store lock.
func (s *Store) SetFailSaves(fail bool) {
	s.mu.Lock()
	s.FailSaves = fail
	s.mu.Unlock()
}
