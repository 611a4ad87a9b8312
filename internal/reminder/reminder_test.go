package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/dosekeeper/internal/connectors"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/registry"
	"github.com/fentz26/dosekeeper/internal/store/memory"
)

var now = time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu    sync.Mutex
	notes []connectors.Notification
	vibes []connectors.Pattern
	err   error
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Notify(ctx context.Context, n connectors.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeNotifier) Vibrate(ctx context.Context, p connectors.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vibes = append(f.vibes, p)
	return nil
}

func (f *fakeNotifier) count(tag string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, note := range f.notes {
		if note.Tag == tag {
			n++
		}
	}
	return n
}

type fixture struct {
	reg      *registry.Registry
	store    *memory.Store
	notifier *fakeNotifier
	ctrl     *Controller
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st := memory.New()
	reg := registry.New(st)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	n := &fakeNotifier{}
	opts.Notifier = n
	return &fixture{reg: reg, store: st, notifier: n, ctrl: NewController(reg, opts)}
}

func (f *fixture) add(t *testing.T, p models.MedicationPatch) models.Medication {
	t.Helper()
	m, err := f.ctrl.Save(context.Background(), "", p, now)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return m
}

func fixed(name string, freq int, next time.Time) models.MedicationPatch {
	dosage := "500mg"
	return models.MedicationPatch{Name: &name, Dosage: &dosage, FrequencyHours: &freq, NextDose: &next}
}

func cyclic(name string, start, next time.Time) models.MedicationPatch {
	p := fixed(name, 24, next)
	on := true
	p.Cyclic = &on
	p.CycleStartDate = &start
	return p
}

func withStock(p models.MedicationPatch, qty, threshold int) models.MedicationPatch {
	p.Quantity = &qty
	p.RefillThreshold = &threshold
	return p
}

func TestScanFirstMatchInRegistryOrder(t *testing.T) {
	meds := []models.Medication{
		{ID: "later", Name: "Later", Dosage: "1", FrequencyHours: 8, NextDose: now.Add(time.Hour), Lifecycle: models.LifecycleActive},
		{ID: "first", Name: "First", Dosage: "1", FrequencyHours: 8, NextDose: now.Add(-time.Minute), Lifecycle: models.LifecycleActive},
		{ID: "second", Name: "Second", Dosage: "1", FrequencyHours: 8, NextDose: now.Add(-2 * time.Hour), Lifecycle: models.LifecycleActive},
	}

	due, problems := Scan(meds, nil, now)
	if due == nil || due.ID != "first" {
		t.Fatalf("Expected first due medication in order, got %+v", due)
	}
	if len(problems) != 0 {
		t.Errorf("Expected no problems, got %v", problems)
	}

	due, _ = Scan(meds, &models.ActiveReminder{MedicationID: "second"}, now)
	if due != nil {
		t.Errorf("Expected occupied slot to block scan, got %s", due.ID)
	}
}

func TestScanSkipsArchived(t *testing.T) {
	meds := []models.Medication{
		{ID: "old", Name: "Old", Dosage: "1", FrequencyHours: 8, NextDose: now.Add(-time.Hour), Lifecycle: models.LifecycleArchived},
	}
	if due, _ := Scan(meds, nil, now); due != nil {
		t.Errorf("Expected archived medication not to be due")
	}
}

func TestScanReportsProblemsAndContinues(t *testing.T) {
	meds := []models.Medication{
		{ID: "broken", Name: "Broken", Dosage: "1", FrequencyHours: 24, NextDose: now.Add(-time.Hour),
			Cycle: &models.Cycle{StartDate: now}, Lifecycle: models.LifecycleActive},
		{ID: "ok", Name: "Ok", Dosage: "1", FrequencyHours: 8, NextDose: now.Add(-time.Hour), Lifecycle: models.LifecycleActive},
	}

	due, problems := Scan(meds, nil, now)
	if due == nil || due.ID != "ok" {
		t.Fatalf("Expected scan to continue past the broken regimen, got %+v", due)
	}
	if len(problems) != 1 || problems[0].MedicationID != "broken" {
		t.Errorf("Expected one problem for broken, got %v", problems)
	}
}

func TestAmoxicillinScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	amox := f.add(t, withStock(fixed("Amoxicillin", 8, now.Add(-time.Hour)), 30, 5))

	active, err := f.ctrl.Tick(ctx, now)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if active == nil || active.MedicationID != amox.ID {
		t.Fatalf("Expected Amoxicillin to be active, got %+v", active)
	}
	if f.notifier.count(connectors.DoseTag(amox.ID)) != 1 {
		t.Error("Expected one dose notification")
	}

	out, err := f.ctrl.Take(ctx, amox.ID, now)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !out.Applied {
		t.Fatal("Expected take to apply")
	}

	log := f.reg.DoseLog(0)
	if len(log) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(log))
	}
	if log[0].Dosage != "500mg" || !log[0].Timestamp.Equal(now) {
		t.Errorf("Unexpected log entry: %+v", log[0])
	}

	got, _ := f.reg.Get(amox.ID)
	if !got.NextDose.Equal(now.Add(8 * time.Hour)) {
		t.Errorf("Expected next dose %s, got %s", now.Add(8*time.Hour), got.NextDose)
	}
	if *got.RemainingDoses != 29 {
		t.Errorf("Expected 29 remaining, got %d", *got.RemainingDoses)
	}
	if got.LastNotified != nil {
		t.Error("Expected notification bookkeeping reset after take")
	}
	if f.ctrl.Active() != nil {
		t.Error("Expected slot cleared after take")
	}
}

func TestTakeReschedulesByFrequency(t *testing.T) {
	for _, freq := range []int{1, 6, 8, 12, 24, 48} {
		f := newFixture(t, Options{})
		ctx := context.Background()
		m := f.add(t, withStock(fixed("Med", freq, now.Add(-time.Minute)), 10, 0))
		f.ctrl.Tick(ctx, now)

		at := now.Add(3 * time.Minute)
		if _, err := f.ctrl.Take(ctx, m.ID, at); err != nil {
			t.Fatalf("freq %d: Take failed: %v", freq, err)
		}
		got, _ := f.reg.Get(m.ID)
		want := at.Add(time.Duration(freq) * time.Hour)
		if !got.NextDose.Equal(want) {
			t.Errorf("freq %d: expected next dose %s, got %s", freq, want, got.NextDose)
		}
		if *got.RemainingDoses != 9 {
			t.Errorf("freq %d: expected remaining 9, got %d", freq, *got.RemainingDoses)
		}
	}
}

func TestTakeDoesNotClampRemaining(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, withStock(fixed("Med", 8, now.Add(-time.Minute)), 0, 0))
	f.ctrl.Tick(ctx, now)

	if _, err := f.ctrl.Take(ctx, m.ID, now); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	got, _ := f.reg.Get(m.ID)
	if *got.RemainingDoses != -1 {
		t.Errorf("Expected remaining -1, got %d", *got.RemainingDoses)
	}
}

func TestSkip(t *testing.T) {
	tests := []struct {
		name  string
		patch models.MedicationPatch
		want  time.Duration
	}{
		{"fixed", withStock(fixed("Ibuprofen", 6, now.Add(-time.Minute)), 20, 2), 6 * time.Hour},
		{"cyclic", withStock(cyclic("BirthControlPillX", now.AddDate(0, 0, -3), now.Add(-time.Minute)), 28, 2), 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			ctx := context.Background()
			m := f.add(t, tt.patch)
			f.ctrl.Tick(ctx, now)

			out, err := f.ctrl.Skip(ctx, m.ID, now)
			if err != nil || !out.Applied {
				t.Fatalf("Skip failed: %v applied=%v", err, out.Applied)
			}
			got, _ := f.reg.Get(m.ID)
			if !got.NextDose.Equal(now.Add(tt.want)) {
				t.Errorf("Expected next dose %s, got %s", now.Add(tt.want), got.NextDose)
			}
			if *got.RemainingDoses != *m.RemainingDoses {
				t.Errorf("Expected remaining unchanged, got %d", *got.RemainingDoses)
			}
			if len(f.reg.DoseLog(0)) != 0 {
				t.Error("Expected no dose log entry after skip")
			}
		})
	}
}

func TestSnooze(t *testing.T) {
	tests := []struct {
		name  string
		patch models.MedicationPatch
	}{
		{"fixed", withStock(fixed("Ibuprofen", 6, now.Add(-time.Minute)), 20, 2)},
		{"cyclic", withStock(cyclic("BirthControlPillX", now.AddDate(0, 0, -3), now.Add(-time.Minute)), 28, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			ctx := context.Background()
			m := f.add(t, tt.patch)
			f.ctrl.Tick(ctx, now)

			if _, err := f.ctrl.Snooze(ctx, m.ID, now); err != nil {
				t.Fatalf("Snooze failed: %v", err)
			}
			got, _ := f.reg.Get(m.ID)
			if !got.NextDose.Equal(now.Add(900 * time.Second)) {
				t.Errorf("Expected next dose %s, got %s", now.Add(15*time.Minute), got.NextDose)
			}
			if *got.RemainingDoses != *m.RemainingDoses {
				t.Error("Expected remaining unchanged after snooze")
			}
			if len(f.reg.DoseLog(0)) != 0 {
				t.Error("Expected no dose log entry after snooze")
			}
		})
	}
}

func TestSnoozedReminderFiresAgain(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now.Add(-time.Minute)))

	f.ctrl.Tick(ctx, now)
	f.ctrl.Snooze(ctx, m.ID, now)

	if a, _ := f.ctrl.Tick(ctx, now.Add(10*time.Minute)); a != nil {
		t.Error("Expected no reminder before the snooze ends")
	}
	a, _ := f.ctrl.Tick(ctx, now.Add(15*time.Minute))
	if a == nil || a.MedicationID != m.ID {
		t.Fatal("Expected reminder again after snooze")
	}
	if f.notifier.count(connectors.DoseTag(m.ID)) != 2 {
		t.Errorf("Expected a second push after snooze, got %d", f.notifier.count(connectors.DoseTag(m.ID)))
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, withStock(fixed("Med", 8, now.Add(-time.Minute)), 10, 0))
	f.ctrl.Tick(ctx, now)

	if out, _ := f.ctrl.Take(ctx, m.ID, now); !out.Applied {
		t.Fatal("Expected first take to apply")
	}
	before, _ := f.reg.Get(m.ID)
	saves := f.store.Saves

	later := now.Add(time.Minute)
	for _, action := range []Action{ActionTake, ActionSkip, ActionSnooze} {
		out, err := f.ctrl.Resolve(ctx, action, m.ID, later)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", action, err)
		}
		if out.Applied {
			t.Errorf("%s: expected no-op on resolved reminder", action)
		}
	}

	after, _ := f.reg.Get(m.ID)
	if !after.NextDose.Equal(before.NextDose) || *after.RemainingDoses != *before.RemainingDoses {
		t.Error("Expected registry state unchanged by repeated resolution")
	}
	if f.store.Saves != saves {
		t.Error("Expected no save-back from a no-op")
	}
	if len(f.reg.DoseLog(0)) != 1 {
		t.Errorf("Expected exactly one log entry, got %d", len(f.reg.DoseLog(0)))
	}
}

func TestResolveOtherMedicationIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.add(t, fixed("A", 8, now.Add(-time.Minute)))
	b := f.add(t, fixed("B", 8, now.Add(-time.Minute)))
	f.ctrl.Tick(ctx, now)

	out, err := f.ctrl.Take(ctx, b.ID, now)
	if err != nil || out.Applied {
		t.Fatalf("Expected no-op for non-active medication, got %v %v", out.Applied, err)
	}
	if active := f.ctrl.Active(); active == nil || active.MedicationID != a.ID {
		t.Error("Expected reminder for A to remain active")
	}
}

func TestAtMostOneActiveReminder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.add(t, fixed("A", 8, now.Add(-time.Minute)))
	b := f.add(t, fixed("B", 8, now.Add(-time.Minute)))

	for i := 0; i < 3; i++ {
		active, _ := f.ctrl.Tick(ctx, now.Add(time.Duration(i)*30*time.Second))
		if active == nil || active.MedicationID != a.ID {
			t.Fatalf("Tick %d: expected A to stay active, got %+v", i, active)
		}
	}
	if f.notifier.count(connectors.DoseTag(a.ID)) != 1 || f.notifier.count(connectors.DoseTag(b.ID)) != 0 {
		t.Error("Expected exactly one notification while the slot is occupied")
	}

	f.ctrl.Take(ctx, a.ID, now)
	active, _ := f.ctrl.Tick(ctx, now.Add(time.Minute))
	if active == nil || active.MedicationID != b.ID {
		t.Errorf("Expected B after A resolved, got %+v", active)
	}
}

func TestStaleReminderIsSilentNoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now.Add(-time.Minute)))
	f.ctrl.Tick(ctx, now)

	// Removed behind the controller's back.
	if err := f.reg.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	out, err := f.ctrl.Take(ctx, m.ID, now)
	if err != nil || out.Applied {
		t.Fatalf("Expected silent no-op, got %v %v", out.Applied, err)
	}
	if f.ctrl.Active() != nil {
		t.Error("Expected stale slot cleared")
	}
	if len(f.reg.DoseLog(0)) != 0 {
		t.Error("Expected no dose logged for a deleted medication")
	}
}

func TestArchiveClearsActiveReminder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now.Add(-time.Minute)))
	f.ctrl.Tick(ctx, now)

	if _, err := f.ctrl.Archive(ctx, m.ID, now); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if f.ctrl.Active() != nil {
		t.Error("Expected slot cleared on archive")
	}
	if a, _ := f.ctrl.Tick(ctx, now.Add(time.Minute)); a != nil {
		t.Error("Expected archived medication not to fire")
	}

	f.ctrl.Restore(ctx, m.ID, now)
	if a, _ := f.ctrl.Tick(ctx, now.Add(2*time.Minute)); a == nil {
		t.Error("Expected restored medication to fire again")
	}
}

func TestCyclicRestDayIsNotDue(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.add(t, cyclic("BirthControlPillX", now.AddDate(0, 0, -23), now.Add(-time.Hour)))

	if a, _ := f.ctrl.Tick(ctx, now); a != nil {
		t.Errorf("Expected no reminder on a rest day, got %+v", a)
	}
}

func TestCyclicActiveDayIsDue(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, cyclic("BirthControlPillX", now.AddDate(0, 0, -5), now.Add(-time.Hour)))

	a, _ := f.ctrl.Tick(ctx, now)
	if a == nil || a.MedicationID != m.ID {
		t.Fatalf("Expected reminder on an active day, got %+v", a)
	}
}

func TestPushSuppressedForSameDueInstance(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now.Add(-time.Hour)))

	f.ctrl.Tick(ctx, now)
	got, _ := f.reg.Get(m.ID)
	if got.LastNotified == nil || !got.LastNotified.Equal(now) {
		t.Fatalf("Expected LastNotified recorded, got %v", got.LastNotified)
	}

	// A restarted daemon has an empty slot but the same persisted record.
	restarted := NewController(f.reg, Options{Notifier: f.notifier})
	if a, _ := restarted.Tick(ctx, now.Add(time.Minute)); a == nil {
		t.Fatal("Expected reminder to be re-activated after restart")
	}
	if f.notifier.count(connectors.DoseTag(m.ID)) != 1 {
		t.Errorf("Expected no second push for the same dose, got %d", f.notifier.count(connectors.DoseTag(m.ID)))
	}
}

func TestNotificationUnavailableKeepsReminder(t *testing.T) {
	f := newFixture(t, Options{})
	f.notifier.err = connectors.ErrNotificationUnavailable
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now.Add(-time.Hour)))

	a, err := f.ctrl.Tick(ctx, now)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if a == nil {
		t.Fatal("Expected reminder active even without notifications")
	}
	got, _ := f.reg.Get(m.ID)
	if got.LastNotified != nil {
		t.Error("Expected LastNotified to stay unset when nothing was delivered")
	}
}

func TestRefillAlertOncePerFill(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, withStock(fixed("Med", 8, now.Add(-time.Minute)), 3, 2))

	f.ctrl.Tick(ctx, now)
	out, err := f.ctrl.Take(ctx, m.ID, now)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !out.Medication.RefillNotified {
		t.Error("Expected refill flagged after reaching threshold")
	}
	if f.notifier.count(connectors.RefillTag(m.ID)) != 1 {
		t.Fatalf("Expected one refill alert, got %d", f.notifier.count(connectors.RefillTag(m.ID)))
	}

	next := now.Add(8 * time.Hour)
	f.ctrl.Tick(ctx, next)
	f.ctrl.Take(ctx, m.ID, next)
	if f.notifier.count(connectors.RefillTag(m.ID)) != 1 {
		t.Error("Expected no second refill alert for the same fill")
	}

	// Refilling re-arms the alert.
	qty := 30
	edited, err := f.ctrl.Save(ctx, m.ID, models.MedicationPatch{Quantity: &qty}, next)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if edited.RefillNotified || *edited.RemainingDoses != 30 {
		t.Errorf("Expected fresh fill, got %+v", edited)
	}
}

func TestRefillSweep(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	low := f.add(t, withStock(fixed("Low", 8, now.Add(time.Hour)), 2, 5))
	f.add(t, withStock(fixed("Plenty", 8, now.Add(time.Hour)), 50, 5))
	f.add(t, fixed("Untracked", 8, now.Add(time.Hour)))

	if sent := f.ctrl.RefillSweep(ctx, now); sent != 1 {
		t.Errorf("Expected 1 refill alert, got %d", sent)
	}
	if sent := f.ctrl.RefillSweep(ctx, now); sent != 0 {
		t.Errorf("Expected sweep to be quiet once notified, got %d", sent)
	}
	if f.notifier.count(connectors.RefillTag(low.ID)) != 1 {
		t.Error("Expected exactly one alert for Low")
	}
}

func TestGuardianEscalatesOnce(t *testing.T) {
	f := newFixture(t, Options{Guardian: Guardian{Enabled: true, Name: "Mom", After: 30 * time.Minute}})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now))

	f.ctrl.Tick(ctx, now)
	f.ctrl.Tick(ctx, now.Add(29*time.Minute))
	if f.notifier.count(connectors.GuardianTag(m.ID)) != 0 {
		t.Fatal("Expected no escalation before the threshold")
	}

	f.ctrl.Tick(ctx, now.Add(30*time.Minute))
	f.ctrl.Tick(ctx, now.Add(31*time.Minute))
	if f.notifier.count(connectors.GuardianTag(m.ID)) != 1 {
		t.Errorf("Expected exactly one escalation, got %d", f.notifier.count(connectors.GuardianTag(m.ID)))
	}

	f.ctrl.Take(ctx, m.ID, now.Add(32*time.Minute))
	got, _ := f.reg.Get(m.ID)
	if got.GuardianNotified {
		t.Error("Expected guardian flag reset after take")
	}
}

func TestGuardianDisabled(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now))

	f.ctrl.Tick(ctx, now)
	f.ctrl.Tick(ctx, now.Add(2*time.Hour))
	if f.notifier.count(connectors.GuardianTag(m.ID)) != 0 {
		t.Error("Expected no escalation when guardian is disabled")
	}
}

func TestLogDoseNow(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.add(t, withStock(fixed("A", 8, now.Add(-time.Minute)), 10, 0))
	b := f.add(t, withStock(fixed("B", 12, now.Add(4*time.Hour)), 10, 0))
	f.ctrl.Tick(ctx, now)

	out, err := f.ctrl.LogDoseNow(ctx, b.ID, now)
	if err != nil || !out.Applied {
		t.Fatalf("LogDoseNow failed: %v", err)
	}
	if !out.Medication.NextDose.Equal(now.Add(12 * time.Hour)) {
		t.Errorf("Expected next dose in 12h, got %s", out.Medication.NextDose)
	}
	if active := f.ctrl.Active(); active == nil || active.MedicationID != a.ID {
		t.Error("Expected A's reminder to survive a manual dose of B")
	}

	if _, err := f.ctrl.LogDoseNow(ctx, a.ID, now); err != nil {
		t.Fatalf("LogDoseNow failed: %v", err)
	}
	if f.ctrl.Active() != nil {
		t.Error("Expected manual dose of A to clear its reminder")
	}
	if len(f.reg.DoseLog(0)) != 2 {
		t.Errorf("Expected 2 log entries, got %d", len(f.reg.DoseLog(0)))
	}
}

func TestLogDoseNowUnknown(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.ctrl.LogDoseNow(context.Background(), "missing", now); err != registry.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFailedSaveKeepsReminder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now.Add(-time.Minute)))
	f.ctrl.Tick(ctx, now)

	f.store.SetFailSaves(true)
	if _, err := f.ctrl.Skip(ctx, m.ID, now); err == nil {
		t.Fatal("Expected error from failed save-back")
	}
	if f.ctrl.Active() == nil {
		t.Error("Expected reminder to stay active so the user can retry")
	}
}

// medsFailStore fails medication saves while armed and lets dose log saves through.
type medsFailStore struct {
	*memory.Store
	mu   sync.Mutex
	fail bool
}

func (s *medsFailStore) arm(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *medsFailStore) SaveMedications(ctx context.Context, meds []models.Medication) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return memory.ErrInjected
	}
	return s.Store.SaveMedications(ctx, meds)
}

func TestTakeRetryAfterFailedSaveLogsOnce(t *testing.T) {
	st := &medsFailStore{Store: memory.New()}
	reg := registry.New(st)
	ctx := context.Background()
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ctrl := NewController(reg, Options{Notifier: &fakeNotifier{}})
	m, err := ctrl.Save(ctx, "", withStock(fixed("Med", 8, now.Add(-time.Minute)), 10, 2), now)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	ctrl.Tick(ctx, now)

	st.arm(true)
	if _, err := ctrl.Take(ctx, m.ID, now); err == nil {
		t.Fatal("Expected error when medications cannot be saved")
	}
	if ctrl.Active() == nil {
		t.Error("Expected reminder to stay active after failed take")
	}
	if got := len(reg.DoseLog(0)); got != 0 {
		t.Errorf("Expected 0 dose entries after failed take, got %d", got)
	}
	if persisted, _ := st.LoadDoseLog(ctx); len(persisted) != 0 {
		t.Errorf("Expected nothing persisted to the dose log, got %d entries", len(persisted))
	}

	st.arm(false)
	out, err := ctrl.Take(ctx, m.ID, now)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if !out.Applied {
		t.Error("Expected retry to apply")
	}
	if got := len(reg.DoseLog(0)); got != 1 {
		t.Errorf("Expected 1 dose entry, got %d", got)
	}
	if persisted, _ := st.LoadDoseLog(ctx); len(persisted) != 1 {
		t.Errorf("Expected 1 persisted dose entry, got %d", len(persisted))
	}
	got, _ := reg.Get(m.ID)
	if *got.RemainingDoses != 9 {
		t.Errorf("Expected remaining 9, got %d", *got.RemainingDoses)
	}
}

func TestSkipResetsGuardianForNextDose(t *testing.T) {
	f := newFixture(t, Options{Guardian: Guardian{Enabled: true, Name: "Mom", After: 30 * time.Minute}})
	ctx := context.Background()
	m := f.add(t, fixed("Med", 8, now))

	f.ctrl.Tick(ctx, now)
	f.ctrl.Tick(ctx, now.Add(30*time.Minute))
	if f.notifier.count(connectors.GuardianTag(m.ID)) != 1 {
		t.Fatalf("Expected one escalation, got %d", f.notifier.count(connectors.GuardianTag(m.ID)))
	}

	if _, err := f.ctrl.Skip(ctx, m.ID, now.Add(31*time.Minute)); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	got, _ := f.reg.Get(m.ID)
	if got.GuardianNotified || got.LastNotified != nil {
		t.Error("Expected skip to reset notification flags")
	}

	next := got.NextDose
	f.ctrl.Tick(ctx, next)
	f.ctrl.Tick(ctx, next.Add(30*time.Minute))
	if f.notifier.count(connectors.GuardianTag(m.ID)) != 2 {
		t.Errorf("Expected the missed next dose to escalate again, got %d escalations", f.notifier.count(connectors.GuardianTag(m.ID)))
	}
}

func TestProblemsExposed(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	zero := 0
	p := cyclic("Broken", now, now.Add(-time.Hour))
	p.ActiveDays = &zero
	p.RestDays = &zero
	broken := f.add(t, p)

	f.ctrl.Tick(ctx, now)
	problems := f.ctrl.Problems()
	if len(problems) != 1 || problems[0].MedicationID != broken.ID {
		t.Errorf("Expected one problem for Broken, got %v", problems)
	}
}
