package objects

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps every object as a row of one table keyed by (namespace, map, name).
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
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
		`CREATE TABLE IF NOT EXISTS objects (
			namespace TEXT NOT NULL,
			map_name TEXT NOT NULL,
			name TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, map_name, name)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, ns, mapName, name string, v any) error {
	if err := checkKey(ns, mapName, name); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", keyString(ns, mapName, name), err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects(namespace,map_name,name,json,updated_at) VALUES(?,?,?,?,?)`,
		ns, mapName, name, string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, ns, mapName, name string, v any) error {
	if err := checkKey(ns, mapName, name); err != nil {
		return err
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT json FROM objects WHERE namespace=? AND map_name=? AND name=?`,
		ns, mapName, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", keyString(ns, mapName, name), ErrNotFound)
	}
	if err != nil {
		return err
	}
	return Object{Name: name, Data: []byte(raw)}.Decode(v)
}

func (s *SQLiteStore) LoadAll(ctx context.Context, ns, mapName string) ([]Object, error) {
	if err := checkKey(ns, mapName); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, json FROM objects WHERE namespace=? AND map_name=? ORDER BY name`,
		ns, mapName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		out = append(out, Object{Name: name, Data: []byte(raw)})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context, ns, mapName string) ([]string, error) {
	objs, err := s.LoadAll(ctx, ns, mapName)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	return names, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
