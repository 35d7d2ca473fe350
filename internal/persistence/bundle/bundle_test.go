package bundle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsim.ai/internal/persistence/objects"
)

type hood struct {
	Name   string      `json:"name"`
	Points [][2]float64 `json:"points"`
}

type scen struct {
	Name string `json:"scenario_name"`
	Map  string `json:"map_name"`
}

func TestExportWriteReadImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := objects.NewFileStore(filepath.Join(dir, "src"))
	require.NoError(t, src.Save(ctx, objects.Scenarios, "grid", "rush", scen{Name: "rush", Map: "grid"}))
	require.NoError(t, src.Save(ctx, objects.Neighborhoods, "grid", "north", hood{Name: "north", Points: [][2]float64{{0, 0}, {1, 0}, {1, 1}}}))
	require.NoError(t, src.Save(ctx, objects.Neighborhoods, "grid", "south", hood{Name: "south"}))

	b, err := Export(ctx, src, "grid", "rush", []string{"south", "north"})
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "south"}, b.NeighborhoodNames())

	path := filepath.Join(dir, "out", "rush.bundle.zst")
	require.NoError(t, Write(path, b))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "rush", h.Scenario)
	assert.Equal(t, Version, h.Version)

	got, err := Read(path)
	require.NoError(t, err)
	assert.JSONEq(t, string(b.Scenario), string(got.Scenario))

	dst, err := objects.OpenSQLite(filepath.Join(dir, "dst.db"))
	require.NoError(t, err)
	defer dst.Close()

	var checked []string
	require.NoError(t, Import(ctx, dst, got, func(ns, name string, _ []byte) error {
		checked = append(checked, ns+"/"+name)
		return nil
	}))
	assert.Equal(t, []string{"neighborhoods/north", "neighborhoods/south", "scenarios/rush"}, checked)

	var s scen
	require.NoError(t, dst.Load(ctx, objects.Scenarios, "grid", "rush", &s))
	assert.Equal(t, scen{Name: "rush", Map: "grid"}, s)

	var n hood
	require.NoError(t, dst.Load(ctx, objects.Neighborhoods, "grid", "north", &n))
	assert.Len(t, n.Points, 3)
}

func TestExportMissingNeighborhood(t *testing.T) {
	ctx := context.Background()
	src := objects.NewFileStore(t.TempDir())
	require.NoError(t, src.Save(ctx, objects.Scenarios, "grid", "rush", scen{Name: "rush"}))

	_, err := Export(ctx, src, "grid", "rush", []string{"ghost"})
	assert.ErrorIs(t, err, objects.ErrNotFound)
}

func TestImportCheckFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	src := objects.NewFileStore(t.TempDir())
	require.NoError(t, src.Save(ctx, objects.Scenarios, "grid", "rush", scen{Name: "rush"}))
	require.NoError(t, src.Save(ctx, objects.Neighborhoods, "grid", "north", hood{Name: "north"}))
	b, err := Export(ctx, src, "grid", "rush", []string{"north"})
	require.NoError(t, err)

	dst := objects.NewFileStore(t.TempDir())
	bad := errors.New("bad scenario")
	err = Import(ctx, dst, b, func(ns, _ string, _ []byte) error {
		if ns == objects.Scenarios {
			return bad
		}
		return nil
	})
	assert.ErrorIs(t, err, bad)

	names, err := dst.List(ctx, objects.Neighborhoods, "grid")
	require.NoError(t, err)
	assert.Empty(t, names)
}
