package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore lays objects out as <root>/<ns>/<map>/<name>.json.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) dir(ns, mapName string) string {
	return filepath.Join(s.root, ns, mapName)
}

func (s *FileStore) Save(ctx context.Context, ns, mapName, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(ns, mapName, name); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", keyString(ns, mapName, name), err)
	}
	dir := s.dir(ns, mapName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name+".json"))
}

func (s *FileStore) Load(ctx context.Context, ns, mapName, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(ns, mapName, name); err != nil {
		return err
	}
	b, err := os.ReadFile(filepath.Join(s.dir(ns, mapName), name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", keyString(ns, mapName, name), ErrNotFound)
	}
	if err != nil {
		return err
	}
	return Object{Name: name, Data: b}.Decode(v)
}

func (s *FileStore) LoadAll(ctx context.Context, ns, mapName string) ([]Object, error) {
	names, err := s.List(ctx, ns, mapName)
	if err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(s.dir(ns, mapName), name+".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, Object{Name: name, Data: b})
	}
	return out, nil
}

// List returns object names in lexical order; a missing directory is empty.
func (s *FileStore) List(ctx context.Context, ns, mapName string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(ns, mapName); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir(ns, mapName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".json"))
	}
	return names, nil
}

func (s *FileStore) Close() error { return nil }
