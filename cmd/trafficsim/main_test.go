package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "trafficsim.ai/internal/persistence/log"
	"trafficsim.ai/internal/sim/geom"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/scenario"
	"trafficsim.ai/internal/sim/world"
)

// execute runs the CLI in-process and returns what it printed on stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func commonFlags(dir string) []string {
	return []string{"--grid", "3x3", "--store-path", filepath.Join(dir, "objects"), "--log-level", "error"}
}

func TestParseGrid(t *testing.T) {
	cols, rows, err := parseGrid("4x3")
	require.NoError(t, err)
	assert.Equal(t, 4, cols)
	assert.Equal(t, 3, rows)

	for _, bad := range []string{"4", "ax3", "1x5", "3x"} {
		_, _, err := parseGrid(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunRecordsAndReplays(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events")
	index := filepath.Join(dir, "runs.db")

	out, err := execute(t, append([]string{"run", "--seed", "5", "--events-dir", events, "--index", index}, commonFlags(dir)...)...)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 2, out)
	require.Equal(t, "run", fields[0])
	runID := strings.TrimSuffix(fields[1], ":")
	assert.Contains(t, out, "0 active trips, 0 pending")

	out, err = execute(t, append([]string{"runs", "--index", index}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "small_spawn")

	out, err = execute(t, append([]string{"runs", "events", runID, "--index", index, "--kind", "ped_reached_building"}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "reached building")

	out, err = execute(t, append([]string{"replay", "--events-dir", events, "--run-id", runID, "--verify", "--index", index}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "ticks logged")
	assert.Contains(t, out, "replay ok")
}

func TestReplayDetectsWrongSeed(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events")

	out, err := execute(t, append([]string{"run", "--seed", "5", "--events-dir", events}, commonFlags(dir)...)...)
	require.NoError(t, err)
	runID := strings.TrimSuffix(strings.Fields(out)[1], ":")

	_, err = execute(t, append([]string{"replay", "--events-dir", events, "--run-id", runID, "--verify", "--seed", "6"}, commonFlags(dir)...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestScenarioSaveExportImport(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "small.bundle")

	out, err := execute(t, append([]string{"scenario", "save", "--builtin", "small_spawn"}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "saved scenario small_spawn for map grid")

	out, err = execute(t, append([]string{"scenario", "list"}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Equal(t, "small_spawn\n", out)

	_, err = execute(t, append([]string{"scenario", "export", "small_spawn", bundlePath}, commonFlags(dir)...)...)
	require.NoError(t, err)

	sqliteFlags := []string{"--grid", "3x3", "--store-backend", "sqlite", "--store-path", filepath.Join(dir, "objects.db"), "--log-level", "error"}
	out, err = execute(t, append([]string{"scenario", "import", bundlePath}, sqliteFlags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "imported small_spawn for map grid")

	out, err = execute(t, append([]string{"scenario", "list"}, sqliteFlags...)...)
	require.NoError(t, err)
	assert.Equal(t, "small_spawn\n", out)

	out, err = execute(t, append([]string{"scenario", "describe", "small_spawn"}, sqliteFlags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"scenario_name": "small_spawn"`)
}

func TestScenarioSaveNeedsExactlyOneSource(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, append([]string{"scenario", "save"}, commonFlags(dir)...)...)
	require.Error(t, err)
}

func TestScenarioValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walkers.json")
	doc := `{
  "scenario_name": "walkers",
  "map_name": "grid",
  "spawn_over_time": [
    {"num_agents": 12, "start_tick": 0, "stop_tick": 50, "start_neighborhood": "_everywhere_",
     "goal": {"kind": "neighborhood", "name": "_everywhere_"}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := execute(t, append([]string{"scenario", "validate", path}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "walkers: ok, 12 of 12 agents would spawn")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"scenario_name":"bad","map_name":"grid","spawn_over_time":[{"num_agents":1,"start_tick":9,"stop_tick":9,"start_neighborhood":"a","goal":{"kind":"border","intersection_id":0}}]}`), 0o644))
	_, err = execute(t, append([]string{"scenario", "validate", bad}, commonFlags(dir)...)...)
	require.ErrorIs(t, err, scenario.ErrEmptySpawnWindow)
}

func TestNeighborhoodSaveAndExportPoly(t *testing.T) {
	dir := t.TempDir()
	m, err := mapmodel.Grid(mapmodel.GridConfig{Cols: 3, Rows: 3, BusRoute: true})
	require.NoError(t, err)

	nb := scenario.NeighborhoodBuilder{MapName: m.Name(), Name: "downtown"}
	for _, c := range (geom.Bounds{MinX: 10, MinY: 10, MaxX: 200, MaxY: 200}).Corners() {
		nb.Points = append(nb.Points, m.GPSBounds().ToGPS(c))
	}
	polyPath, err := nb.SaveAsOsmosis(filepath.Join(dir, "in"))
	require.NoError(t, err)

	out, err := execute(t, append([]string{"neighborhood", "save", polyPath}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "saved neighborhood downtown")

	out, err = execute(t, append([]string{"neighborhood", "list"}, commonFlags(dir)...)...)
	require.NoError(t, err)
	assert.Equal(t, "downtown\n", out)

	outDir := filepath.Join(dir, "out")
	out, err = execute(t, append([]string{"neighborhood", "export-poly", "downtown", "--out", outDir}, commonFlags(dir)...)...)
	require.NoError(t, err)
	exported := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(outDir, "downtown.poly"), exported)

	want, err := os.ReadFile(polyPath)
	require.NoError(t, err)
	got, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

type plainTickLog struct{ n int }

func (p *plainTickLog) WriteTick(world.TickLogEntry) error { p.n++; return nil }

func TestTickSinksNeedDigestIfAnySinkDoes(t *testing.T) {
	empty := world.TickLogEntry{Tick: 1}
	busy := world.TickLogEntry{Tick: 2, Events: []world.Event{world.PedReachedBuilding(1, 0)}}

	el := persistlog.NewEventLogger(t.TempDir(), "run")
	var sinks tickSinks
	sinks.add(el, el.Close)
	assert.False(t, sinks.NeedsDigest(empty))
	assert.True(t, sinks.NeedsDigest(busy))

	plain := &plainTickLog{}
	sinks.add(plain, func() error { return nil })
	assert.True(t, sinks.NeedsDigest(empty))

	require.NoError(t, sinks.WriteTick(busy))
	assert.Equal(t, 1, plain.n)
	require.NoError(t, sinks.Close())
}

func TestUnknownScenarioFails(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, append([]string{"run", "--scenario", "nope"}, commonFlags(dir)...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "nope"`)
}
