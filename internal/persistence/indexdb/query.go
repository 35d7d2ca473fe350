package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

// Runs lists indexed runs, newest first. Call Flush first to see recent writes.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, map_name, scenario, seed, started_at, finished_at, end_tick, summary
		 FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			ri       RunInfo
			seed     int64
			started  string
			finished sql.NullString
			endTick  int64
		)
		if err := rows.Scan(&ri.ID, &ri.MapName, &ri.Scenario, &seed, &started, &finished, &endTick, &ri.Summary); err != nil {
			return nil, err
		}
		ri.Seed = uint64(seed)
		ri.EndTick = simtime.Tick(endTick)
		ri.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			ri.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// EventsByKind returns the events of one run in tick order. An empty kind matches all.
func (s *SQLiteIndex) EventsByKind(ctx context.Context, runID string, kind world.EventKind) ([]EventRow, error) {
	q := `SELECT tick, seq, raw_json FROM events WHERE run_id=?`
	args := []any{runID}
	if kind != 0 {
		q += ` AND kind=?`
		args = append(args, kind.String())
	}
	q += ` ORDER BY tick, seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			tick int64
			row  EventRow
			raw  string
		)
		if err := rows.Scan(&tick, &row.Seq, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &row.Event); err != nil {
			return nil, err
		}
		row.RunID = runID
		row.Tick = simtime.Tick(tick)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountTicks returns how many ticks of a run were indexed.
func (s *SQLiteIndex) CountTicks(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE run_id=?`, runID).Scan(&n)
	return n, err
}
