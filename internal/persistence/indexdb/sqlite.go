package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of runs and their events. Writes go
// through one background goroutine that batches them into transactions; the zstd
// event log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRun
	reqFinish
	reqFlush
)

type req struct {
	kind reqKind

	runID  string
	tick   world.TickLogEntry
	run    RunInfo
	finish finishRow
	done   chan struct{}
}

// RunInfo is the row written when a run starts.
type RunInfo struct {
	ID        string    `json:"id"`
	MapName   string    `json:"map_name"`
	Scenario  string    `json:"scenario"`
	Seed      uint64    `json:"seed"`
	StartedAt time.Time `json:"started_at"`

	FinishedAt time.Time    `json:"finished_at,omitzero"`
	EndTick    simtime.Tick `json:"end_tick"`
	Summary    string       `json:"summary,omitempty"`
}

type finishRow struct {
	tick    simtime.Tick
	summary string
	at      time.Time
}

// EventRow is one indexed event.
type EventRow struct {
	RunID string
	Tick  simtime.Tick
	Seq   int
	Event world.Event
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTickTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			map_name TEXT NOT NULL,
			scenario TEXT NOT NULL,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			end_tick INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			events INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			car INTEGER NOT NULL,
			ped INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS events_kind ON events(run_id, kind, tick);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes, commits, and closes the database. Safe to call twice.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun registers a run and returns its tick logger. The run row is never dropped.
func (s *SQLiteIndex) RecordRun(info RunInfo) *RunLog {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	if !s.closed.Load() {
		s.ch <- req{kind: reqRun, run: info}
	}
	return &RunLog{s: s, id: info.ID}
}

func (s *SQLiteIndex) FinishRun(runID string, tick simtime.Tick, summary string) {
	if s.closed.Load() {
		return
	}
	s.ch <- req{kind: reqFinish, runID: runID, finish: finishRow{tick: tick, summary: summary, at: time.Now()}}
}

// Flush blocks until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) writeTick(runID string, entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, runID: runID, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
	}
}

// RunLog indexes the ticks of one run.
type RunLog struct {
	s  *SQLiteIndex
	id string
}

func (l *RunLog) ID() string { return l.id }

func (l *RunLog) WriteTick(entry world.TickLogEntry) error { return l.s.writeTick(l.id, entry) }

var _ world.TickLogger = (*RunLog)(nil)

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,map_name,scenario,seed,started_at) VALUES(?,?,?,?,?)`)
	finishRun, _ := s.db.Prepare(`UPDATE runs SET finished_at=?, end_tick=?, summary=? WHERE run_id=?`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,events) VALUES(?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,tick,seq,kind,car,ped,raw_json) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, finishRun, insertTick, insertEvent} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// An idle open transaction would hold the only connection; the ticker bounds that.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			flushIfNeeded()
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			if insertRun == nil {
				continue
			}
			ri := r.run
			if _, err := tx.Stmt(insertRun).Exec(ri.ID, ri.MapName, ri.Scenario, int64(ri.Seed), ri.StartedAt.UTC().Format(time.RFC3339Nano)); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqFinish:
			if finishRun == nil {
				continue
			}
			f := r.finish
			if _, err := tx.Stmt(finishRun).Exec(f.at.UTC().Format(time.RFC3339Nano), int64(f.tick), f.summary, r.runID); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqTick:
			e := r.tick
			if insertTick == nil || insertEvent == nil {
				continue
			}
			if _, err := tx.Stmt(insertTick).Exec(r.runID, int64(e.Tick), e.Digest, len(e.Events)); err != nil {
				rollback()
				continue
			}
			opCount++
			for seq, ev := range e.Events {
				raw, _ := json.Marshal(ev)
				if _, err := tx.Stmt(insertEvent).Exec(r.runID, int64(e.Tick), seq, ev.Kind.String(), int64(ev.Car), int64(ev.Ped), string(raw)); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		flushIfNeeded()
	}
}
