// Package bundle packs a scenario and the neighborhoods it references into one
// zstd file so they can move between object stores.
package bundle

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"trafficsim.ai/internal/persistence/objects"
)

const Version = 1

var ErrVersion = errors.New("unsupported bundle version")

type Header struct {
	Version   int       `json:"version"`
	MapName   string    `json:"map_name"`
	Scenario  string    `json:"scenario"`
	CreatedAt time.Time `json:"created_at"`
}

// Bundle carries documents as raw JSON so they survive a round trip byte for byte.
type Bundle struct {
	Header Header `json:"header"`

	Scenario      json.RawMessage            `json:"scenario"`
	Neighborhoods map[string]json.RawMessage `json:"neighborhoods"`
}

// NeighborhoodNames returns the bundled neighborhood names in lexical order.
func (b Bundle) NeighborhoodNames() []string {
	names := make([]string, 0, len(b.Neighborhoods))
	for n := range b.Neighborhoods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func Write(path string, b Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(b.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&b); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func Read(path string) (Bundle, error) {
	var b Bundle
	f, err := os.Open(path)
	if err != nil {
		return b, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return b, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return b, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return b, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return b, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&b); err != nil {
		return b, fmt.Errorf("gob decode: %w", err)
	}
	return b, nil
}

// ReadHeader decodes only the first line, for listing bundles cheaply.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// Export loads a scenario and the named neighborhoods from store.
func Export(ctx context.Context, store objects.Store, mapName, scenario string, neighborhoods []string) (Bundle, error) {
	b := Bundle{
		Header: Header{
			Version:   Version,
			MapName:   mapName,
			Scenario:  scenario,
			CreatedAt: time.Now().UTC(),
		},
		Neighborhoods: map[string]json.RawMessage{},
	}
	if err := store.Load(ctx, objects.Scenarios, mapName, scenario, &b.Scenario); err != nil {
		return b, fmt.Errorf("export scenario: %w", err)
	}
	for _, n := range neighborhoods {
		var raw json.RawMessage
		if err := store.Load(ctx, objects.Neighborhoods, mapName, n, &raw); err != nil {
			return b, fmt.Errorf("export neighborhood %s: %w", n, err)
		}
		b.Neighborhoods[n] = raw
	}
	return b, nil
}

// CheckFunc vets one document before Import writes anything.
type CheckFunc func(ns, name string, data []byte) error

// Import checks every document first, then saves neighborhoods followed by the scenario.
func Import(ctx context.Context, store objects.Store, b Bundle, check CheckFunc) error {
	names := b.NeighborhoodNames()
	if check != nil {
		for _, n := range names {
			if err := check(objects.Neighborhoods, n, b.Neighborhoods[n]); err != nil {
				return fmt.Errorf("neighborhood %s: %w", n, err)
			}
		}
		if err := check(objects.Scenarios, b.Header.Scenario, b.Scenario); err != nil {
			return fmt.Errorf("scenario %s: %w", b.Header.Scenario, err)
		}
	}
	for _, n := range names {
		if err := store.Save(ctx, objects.Neighborhoods, b.Header.MapName, n, b.Neighborhoods[n]); err != nil {
			return err
		}
	}
	return store.Save(ctx, objects.Scenarios, b.Header.MapName, b.Header.Scenario, b.Scenario)
}
