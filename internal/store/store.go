// Package store provides SQLite-backed persistence for dosekeeper.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the dosekeeper SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS medications (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		notes TEXT,
		frequency_hours INTEGER NOT NULL,
		next_dose DATETIME NOT NULL,
		cyclic INTEGER NOT NULL DEFAULT 0,
		active_days INTEGER,
		rest_days INTEGER,
		cycle_start DATETIME,
		quantity INTEGER,
		remaining_doses INTEGER,
		refill_threshold INTEGER,
		refill_notified INTEGER NOT NULL DEFAULT 0,
		last_notified DATETIME,
		guardian_notified INTEGER NOT NULL DEFAULT 0,
		lifecycle TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dose_log (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		medication_id TEXT NOT NULL,
		medication_name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		medication_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_medications_position ON medications(position);
	CREATE INDEX IF NOT EXISTS idx_dose_log_medication_id ON dose_log(medication_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_medication_id ON pdr(medication_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Medication Operations ---

// LoadMedications returns the whole collection in registry order.
func (s *Store) LoadMedications(ctx context.Context) ([]models.Medication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, dosage, notes, frequency_hours, next_dose, cyclic, active_days, rest_days, cycle_start,
		       quantity, remaining_doses, refill_threshold, refill_notified, last_notified, guardian_notified,
		       lifecycle, created_at, updated_at
		FROM medications ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	meds := []models.Medication{}
	for rows.Next() {
		var (
			m                                   models.Medication
			notes                               sql.NullString
			cyclic, refillNotified, guardianNot bool
			activeDays, restDays                sql.NullInt64
			cycleStart, lastNotified            sql.NullTime
			quantity, remaining, threshold      sql.NullInt64
			lifecycle                           string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Dosage, &notes, &m.FrequencyHours, &m.NextDose, &cyclic,
			&activeDays, &restDays, &cycleStart, &quantity, &remaining, &threshold, &refillNotified,
			&lastNotified, &guardianNot, &lifecycle, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}

		m.Notes = notes.String
		if cyclic {
			m.Cycle = &models.Cycle{
				ActiveDays: int(activeDays.Int64),
				RestDays:   int(restDays.Int64),
				StartDate:  cycleStart.Time,
			}
		}
		m.Quantity = intFromNull(quantity)
		m.RemainingDoses = intFromNull(remaining)
		m.RefillThreshold = intFromNull(threshold)
		m.RefillNotified = refillNotified
		if lastNotified.Valid {
			t := lastNotified.Time
			m.LastNotified = &t
		}
		m.GuardianNotified = guardianNot
		m.Lifecycle = models.Lifecycle(lifecycle)
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// SaveMedications replaces the stored collection in a single transaction.
func (s *Store) SaveMedications(ctx context.Context, meds []models.Medication) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM medications`); err != nil {
		return fmt.Errorf("clear medications: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO medications (id, position, name, dosage, notes, frequency_hours, next_dose, cyclic,
			active_days, rest_days, cycle_start, quantity, remaining_doses, refill_threshold, refill_notified,
			last_notified, guardian_notified, lifecycle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range meds {
		var activeDays, restDays sql.NullInt64
		var cycleStart sql.NullTime
		if m.Cycle != nil {
			activeDays = sql.NullInt64{Int64: int64(m.Cycle.ActiveDays), Valid: true}
			restDays = sql.NullInt64{Int64: int64(m.Cycle.RestDays), Valid: true}
			cycleStart = sql.NullTime{Time: m.Cycle.StartDate.UTC(), Valid: true}
		}
		var lastNotified sql.NullTime
		if m.LastNotified != nil {
			lastNotified = sql.NullTime{Time: m.LastNotified.UTC(), Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			m.ID, i, m.Name, m.Dosage, m.Notes, m.FrequencyHours, m.NextDose.UTC(), m.Cycle != nil,
			activeDays, restDays, cycleStart, nullFromInt(m.Quantity), nullFromInt(m.RemainingDoses),
			nullFromInt(m.RefillThreshold), m.RefillNotified, lastNotified, m.GuardianNotified,
			string(m.Lifecycle), m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert medication %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Dose Log Operations ---

// LoadDoseLog returns the dose log in append order.
func (s *Store) LoadDoseLog(ctx context.Context) ([]models.DoseLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, medication_id, medication_name, dosage, timestamp FROM dose_log ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query dose log: %w", err)
	}
	defer rows.Close()

	entries := []models.DoseLogEntry{}
	for rows.Next() {
		var e models.DoseLogEntry
		if err := rows.Scan(&e.ID, &e.MedicationID, &e.MedicationName, &e.Dosage, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan dose: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveDoseLog replaces the stored dose log in a single transaction.
func (s *Store) SaveDoseLog(ctx context.Context, entries []models.DoseLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dose_log`); err != nil {
		return fmt.Errorf("clear dose log: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dose_log (id, position, medication_id, medication_name, dosage, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, i, e.MedicationID, e.MedicationName, e.Dosage, e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert dose %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, medicationID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:           uuid.New().String(),
		Action:       action,
		InputsHash:   inputsHash,
		Outcome:      outcome,
		MedicationID: medicationID,
		Details:      details,
		Timestamp:    now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, medication_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.MedicationID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the most recent decision records, optionally for one medication.
func (s *Store) ListPDR(medicationID string, limit int) ([]models.PDREntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, medication_id, details, timestamp FROM pdr`
	var args []interface{}

	if medicationID != "" {
		query += ` WHERE medication_id = ?`
		args = append(args, medicationID)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var medID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &medID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.MedicationID = medID.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullFromInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
