package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/dosekeeper/internal/config"
	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func testConfig(dbPath string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DBPath = dbPath
	cfg.Notifier.Kind = config.NotifierNone
	return cfg
}

// serve starts the daemon's API on a test server and points the CLI client at it.
func serve(t *testing.T, d *daemon) {
	t.Helper()
	ts := httptest.NewServer(d.server.Handler())
	prev := apiAddr
	apiAddr = ts.URL
	t.Cleanup(func() {
		ts.Close()
		apiAddr = prev
	})
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-05-11T08:30:00Z", time.Date(2026, 5, 11, 8, 30, 0, 0, time.UTC), false},
		{"2026-05-12 21:00", time.Date(2026, 5, 12, 21, 0, 0, 0, time.UTC), false},
		{"08:15", time.Date(2026, 5, 10, 8, 15, 0, 0, time.UTC), false},
		{"tomorrow", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWhen(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMedFlagsPatchOnlyChanged(t *testing.T) {
	now := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	fs := pflag.NewFlagSet("edit", pflag.ContinueOnError)
	var f medFlags
	f.register(fs)
	fs.BoolVar(&f.noRefill, "no-refill", false, "")

	if err := fs.Parse([]string{"--name", "Ibuprofen", "--quantity", "30", "--cycle-start", "2026-05-01", "--no-refill"}); err != nil {
		t.Fatal(err)
	}

	p, err := f.patch(fs, now)
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	if p.Name == nil || *p.Name != "Ibuprofen" {
		t.Errorf("Expected name set, got %v", p.Name)
	}
	if p.Dosage != nil || p.FrequencyHours != nil || p.Cyclic != nil {
		t.Error("Expected unset flags to stay nil")
	}
	if p.Quantity == nil || *p.Quantity != 30 {
		t.Errorf("Expected quantity 30, got %v", p.Quantity)
	}
	if p.CycleStartDate == nil || p.CycleStartDate.Day() != 1 {
		t.Errorf("Expected cycle start parsed, got %v", p.CycleStartDate)
	}
	if !p.ClearRefillThreshold {
		t.Error("Expected refill threshold cleared")
	}

	fs2 := pflag.NewFlagSet("bad", pflag.ContinueOnError)
	var g medFlags
	g.register(fs2)
	fs2.Parse([]string{"--cycle-start", "May 1"})
	if _, err := g.patch(fs2, now); err == nil {
		t.Error("Expected error for bad cycle start")
	}
}

func TestNewNotifier(t *testing.T) {
	tests := []struct {
		kind string
		url  string
		want string
	}{
		{config.NotifierDesktop, "", "localexec"},
		{config.NotifierWebhook, "http://localhost:1/hook", "webhook"},
		{config.NotifierNone, "", "none"},
	}

	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.Notifier = config.NotifierConfig{Kind: tt.kind, WebhookURL: tt.url}
		n, err := newNotifier(cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("newNotifier(%s) failed: %v", tt.kind, err)
		}
		if n.Name() != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, n.Name())
		}
	}

	cfg := config.DefaultConfig()
	cfg.Notifier.Kind = "pager"
	if _, err := newNotifier(cfg, zap.NewNop()); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestDaemonMemoryStore(t *testing.T) {
	d, err := newDaemon(context.Background(), testConfig(config.MemoryDB), zap.NewNop())
	if err != nil {
		t.Fatalf("newDaemon failed: %v", err)
	}
	serve(t, d)

	health, err := CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.OK || health.DB != "memory" {
		t.Errorf("Expected healthy memory daemon, got %+v", health)
	}

	name, dosage, every := "Vitamin D", "1000IU", 24
	next := time.Now().Add(time.Hour)
	resp, err := apiPost("/medications", models.MedicationPatch{Name: &name, Dosage: &dosage, FrequencyHours: &every, NextDose: &next})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	var med models.Medication
	json.Unmarshal(resp, &med)

	resp, err = apiGet("/medications/" + med.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var view controlplane.MedicationView
	json.Unmarshal(resp, &view)
	if view.Name != name || view.Due {
		t.Errorf("Unexpected view: %+v", view)
	}

	rem, err := fetchReminder()
	if err != nil || rem != nil {
		t.Errorf("Expected no reminder, got %v %v", rem, err)
	}

	if err := apiDelete("/medications/" + med.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, err = apiGet("/medications/" + med.ID)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected 404 after delete, got %v", err)
	}
}

func TestDaemonSQLiteReload(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "dosekeeper.db"))

	d, err := newDaemon(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newDaemon failed: %v", err)
	}
	serve(t, d)

	name, dosage := "Pill", "1 tablet"
	cyclic := true
	next := time.Now().Add(time.Hour)
	if _, err := apiPost("/medications", models.MedicationPatch{Name: &name, Dosage: &dosage, Cyclic: &cyclic, NextDose: &next}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	resp, err := apiGet("/audit")
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	var entries []models.PDREntry
	json.Unmarshal(resp, &entries)
	if len(entries) != 1 {
		t.Errorf("Expected 1 audit record, got %d", len(entries))
	}
	d.close()

	d2, err := newDaemon(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer d2.close()

	meds := d2.reg.List(models.LifecycleActive)
	if len(meds) != 1 || meds[0].Cycle == nil {
		t.Fatalf("Expected cyclic medication reloaded, got %+v", meds)
	}
	if meds[0].Cycle.ActiveDays != models.DefaultActiveDays {
		t.Errorf("Expected default active days, got %d", meds[0].Cycle.ActiveDays)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	if got := apiErrorMessage([]byte(`{"error":"medication not found"}`)); got != "medication not found" {
		t.Errorf("Expected error field, got %q", got)
	}
	if got := apiErrorMessage([]byte("invalid json\n")); got != "invalid json" {
		t.Errorf("Expected raw text, got %q", got)
	}
}
