// Package objects persists named JSON documents grouped by namespace and map name,
// for example scenarios/montlake/weekday_rush.
package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	Scenarios     = "scenarios"
	Neighborhoods = "neighborhoods"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

type Object struct {
	Name string
	Data []byte
}

func (o Object) Decode(v any) error {
	if err := json.Unmarshal(o.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", o.Name, err)
	}
	return nil
}

type Store interface {
	Save(ctx context.Context, ns, mapName, name string, v any) error
	Load(ctx context.Context, ns, mapName, name string, v any) error
	// LoadAll returns every object under (ns, mapName) ordered by name.
	LoadAll(ctx context.Context, ns, mapName string) ([]Object, error)
	List(ctx context.Context, ns, mapName string) ([]string, error)
	Close() error
}

// Open picks a backend by name: "file" (location is a directory) or "sqlite"
// (location is a database path).
func Open(backend, location string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(location), nil
	case "sqlite":
		return OpenSQLite(location)
	}
	return nil, fmt.Errorf("unknown object store backend %q", backend)
}

func checkKey(parts ...string) error {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, p)
		}
	}
	return nil
}

func keyString(ns, mapName, name string) string {
	return ns + "/" + mapName + "/" + name
}
