package statedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndListRuns(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	now := time.Now()
	run := Run{
		Command:     "build",
		Product:     "acme",
		Environment: "dev",
		StartedAt:   now,
		FinishedAt:  now.Add(time.Second),
		OK:          true,
	}
	if err := db.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := db.Runs(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Command != "build" || !runs[0].OK {
		t.Errorf("runs[0] = %+v, want command=build ok=true", runs[0])
	}
}

func TestRunsFiltersByProduct(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	now := time.Now()
	db.RecordRun(ctx, Run{Command: "build", Product: "acme", Environment: "dev", StartedAt: now, FinishedAt: now, OK: true})
	db.RecordRun(ctx, Run{Command: "build", Product: "other", Environment: "dev", StartedAt: now, FinishedAt: now, OK: true})

	runs, err := db.Runs(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Product != "acme" {
		t.Fatalf("runs = %+v, want exactly one acme run", runs)
	}
}
