package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/world"
)

func TestSQLiteIndex_RunAndEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	rl := idx.RecordRun(RunInfo{ID: "run-1", MapName: "grid", Scenario: "small_spawn", Seed: 42})
	_ = rl.WriteTick(world.TickLogEntry{Tick: 1, Digest: "d1"})
	_ = rl.WriteTick(world.TickLogEntry{Tick: 2, Digest: "d2", Events: []world.Event{
		world.CarReachedBorder(3, mapmodel.IntersectionID(4)),
		world.PedReachedBuilding(5, mapmodel.BuildingID(6)),
	}})
	_ = rl.WriteTick(world.TickLogEntry{Tick: 3, Digest: "d3", Events: []world.Event{
		world.CarReachedBorder(7, mapmodel.IntersectionID(0)),
	}})
	idx.FinishRun("run-1", 3, "done")

	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	n, err := idx.CountTicks(ctx, "run-1")
	if err != nil || n != 3 {
		t.Fatalf("CountTicks=%d err=%v want=3", n, err)
	}

	borders, err := idx.EventsByKind(ctx, "run-1", world.EvCarReachedBorder)
	if err != nil {
		t.Fatalf("EventsByKind: %v", err)
	}
	if len(borders) != 2 {
		t.Fatalf("border events=%d want=2", len(borders))
	}
	if borders[0].Tick != 2 || borders[0].Event != world.CarReachedBorder(3, 4) {
		t.Fatalf("first border event mismatch: %+v", borders[0])
	}
	if borders[1].Tick != 3 || borders[1].Event.Car != 7 {
		t.Fatalf("second border event mismatch: %+v", borders[1])
	}

	all, err := idx.EventsByKind(ctx, "run-1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("all events=%d err=%v want=3", len(all), err)
	}

	runs, err := idx.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Seed != 42 || runs[0].EndTick != 3 || runs[0].Summary != "done" {
		t.Fatalf("runs mismatch: %+v", runs)
	}
	if runs[0].FinishedAt.IsZero() {
		t.Fatalf("finished_at not recorded")
	}
}

func TestSQLiteIndex_CloseCommitsPending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	rl := idx.RecordRun(RunInfo{ID: "r", MapName: "m", Scenario: "s", Seed: 1})
	_ = rl.WriteTick(world.TickLogEntry{Tick: 9, Digest: "x"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Writes after close are ignored.
	_ = rl.WriteTick(world.TickLogEntry{Tick: 10})

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var digest string
	if err := db.QueryRow(`SELECT digest FROM ticks WHERE run_id='r' AND tick=9`).Scan(&digest); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if digest != "x" {
		t.Fatalf("digest=%q want=x", digest)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	rl := &RunLog{s: s, id: "r"}
	_ = rl.WriteTick(world.TickLogEntry{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
