package objects

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name   string `json:"name"`
	Points []int  `json:"points"`
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sq, err := OpenSQLite(filepath.Join(dir, "db", "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(dir, "files")),
		"sqlite": sq,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, Neighborhoods, "grid", "zeta", doc{Name: "zeta", Points: []int{1}}))
			require.NoError(t, s.Save(ctx, Neighborhoods, "grid", "alpha", doc{Name: "alpha", Points: []int{1, 2}}))
			require.NoError(t, s.Save(ctx, Neighborhoods, "other", "beta", doc{Name: "beta"}))
			// Overwrite.
			require.NoError(t, s.Save(ctx, Neighborhoods, "grid", "zeta", doc{Name: "zeta", Points: []int{3}}))

			var got doc
			require.NoError(t, s.Load(ctx, Neighborhoods, "grid", "zeta", &got))
			assert.Equal(t, doc{Name: "zeta", Points: []int{3}}, got)

			names, err := s.List(ctx, Neighborhoods, "grid")
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "zeta"}, names)

			all, err := s.LoadAll(ctx, Neighborhoods, "grid")
			require.NoError(t, err)
			require.Len(t, all, 2)
			var first doc
			require.NoError(t, all[0].Decode(&first))
			assert.Equal(t, "alpha", first.Name)

			empty, err := s.LoadAll(ctx, Scenarios, "grid")
			require.NoError(t, err)
			assert.Empty(t, empty)

			err = s.Load(ctx, Scenarios, "grid", "missing", &got)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.Save(ctx, Scenarios, "grid", "../escape", got), ErrInvalidKey)
			assert.ErrorIs(t, s.Save(ctx, Scenarios, "", "x", got), ErrInvalidKey)
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	require.NoError(t, s.Save(context.Background(), Scenarios, "montlake", "rush", doc{Name: "rush"}))

	_, err := os.Stat(filepath.Join(root, "scenarios", "montlake", "rush.json"))
	require.NoError(t, err)
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()
	s, err := Open("file", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "o.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("s3", dir)
	assert.Error(t, err)
}
