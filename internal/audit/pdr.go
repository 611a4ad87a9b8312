// Package audit provides PDR (Process Decision Record) writing for dosekeeper.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/dosekeeper/internal/models"
)

// Actions recorded in the decision trail.
const (
	ActionMedicationCreate  = "medication.create"
	ActionMedicationEdit    = "medication.edit"
	ActionMedicationArchive = "medication.archive"
	ActionMedicationRestore = "medication.restore"
	ActionMedicationDelete  = "medication.delete"
	ActionReminderActivate  = "reminder.activate"
	ActionDoseTake          = "dose.take"
	ActionDoseSkip          = "dose.skip"
	ActionDoseSnooze        = "dose.snooze"
	ActionDoseManual        = "dose.manual"
	ActionRefillAlert       = "refill.alert"
	ActionGuardianAlert     = "guardian.alert"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
	OutcomeFailure = "failure"
)

// Sink persists decision records. The SQLite store implements it.
type Sink interface {
	WritePDR(action, inputsHash, outcome, medicationID, details string) (*models.PDREntry, error)
}

// Recorder is what the rest of the daemon depends on.
type Recorder interface {
	Record(action string, inputs interface{}, outcome, medicationID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	sink Sink
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s Sink) *PDRWriter {
	return &PDRWriter{sink: s}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, medicationID, details string) (*models.PDREntry, error) {
	return w.sink.WritePDR(action, hashInputs(inputs), outcome, medicationID, details)
}

// Discard drops every record. Used when the daemon runs without SQLite.
type Discard struct{}

func (Discard) Record(action string, inputs interface{}, outcome, medicationID, details string) (*models.PDREntry, error) {
	return nil, nil
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
