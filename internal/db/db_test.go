package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestMigrateIdempotent(t *testing.T) {
	d := openTestDB(t)
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestJobEvents(t *testing.T) {
	d := openTestDB(t)

	if err := d.LogJobEvent("j1", "created", "workspace-setup", 1, ""); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := d.LogJobEvent("j1", "stage_completed", "workspace-setup", 1, "ok"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := d.LogJobEvent("j2", "created", "workspace-setup", 1, ""); err != nil {
		t.Fatalf("log: %v", err)
	}

	events, err := d.JobEvents("j1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != "created" || events[1].Event != "stage_completed" {
		t.Errorf("wrong order: %s, %s", events[0].Event, events[1].Event)
	}
	if events[1].Detail != "ok" {
		t.Errorf("detail = %q", events[1].Detail)
	}

	recent, err := d.RecentEvents(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent events, got %d", len(recent))
	}
	if recent[0].JobID != "j2" {
		t.Errorf("most recent should be j2, got %s", recent[0].JobID)
	}
}

func TestProcessRuns(t *testing.T) {
	d := openTestDB(t)

	if run, err := d.LastProcessRun("none"); err != nil || run != nil {
		t.Errorf("expected nil,nil for unknown job, got %v,%v", run, err)
	}

	if err := d.RecordProcessRun("j1", 137, 4200, 1<<30, 85.5, "memory limit exceeded"); err != nil {
		t.Fatalf("record: %v", err)
	}
	run, err := d.LastProcessRun("j1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if run.ExitCode != 137 || run.PeakRSS != 1<<30 || run.Reason != "memory limit exceeded" {
		t.Errorf("unexpected row: %+v", run)
	}
}

func TestRecordValidation(t *testing.T) {
	d := openTestDB(t)
	if err := d.RecordValidation("j1", false, "embedded credential detected", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestReset(t *testing.T) {
	d := openTestDB(t)
	if err := d.LogJobEvent("j1", "created", "", 1, ""); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	events, err := d.JobEvents("j1")
	if err != nil {
		t.Fatalf("query after reset: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty after reset, got %d", len(events))
	}
}
