package scenario

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"trafficsim.ai/internal/sim/geom"
)

// WriteOsmosis renders the neighborhood in the Osmosis polygon filter format:
// name, "1", one "lon lat" line per vertex with the first repeated, then END twice.
func (nb NeighborhoodBuilder) WriteOsmosis(w io.Writer) error {
	if len(nb.Points) == 0 {
		return fmt.Errorf("%s: %w", nb.Name, ErrTooFewPoints)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", nb.Name)
	fmt.Fprintf(bw, "1\n")
	for i := 0; i <= len(nb.Points); i++ {
		pt := nb.Points[i%len(nb.Points)]
		fmt.Fprintf(bw, "     %s    %s\n", formatCoord(pt.Longitude), formatCoord(pt.Latitude))
	}
	fmt.Fprintf(bw, "END\n")
	fmt.Fprintf(bw, "END\n")
	return bw.Flush()
}

// SaveAsOsmosis writes <dir>/<name>.poly and returns its path.
func (nb NeighborhoodBuilder) SaveAsOsmosis(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, nb.Name+".poly")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := nb.WriteOsmosis(f); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func formatCoord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// ParseOsmosis reads a single-ring polygon filter file. The closing vertex is dropped.
func ParseOsmosis(r io.Reader, mapName string) (NeighborhoodBuilder, error) {
	nb := NeighborhoodBuilder{MapName: mapName}
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nb, err
	}
	if len(lines) < 4 {
		return nb, fmt.Errorf("polygon file too short: %d lines", len(lines))
	}
	nb.Name = lines[0]
	ring := lines[2:]
	end := -1
	for i, l := range ring {
		if l == "END" {
			end = i
			break
		}
	}
	if end < 0 {
		return nb, fmt.Errorf("polygon %s: missing END", nb.Name)
	}
	for i, l := range ring[:end] {
		fields := strings.Fields(l)
		if len(fields) != 2 {
			return nb, fmt.Errorf("polygon %s vertex %d: want 2 fields, got %d", nb.Name, i, len(fields))
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nb, fmt.Errorf("polygon %s vertex %d: %w", nb.Name, i, err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nb, fmt.Errorf("polygon %s vertex %d: %w", nb.Name, i, err)
		}
		nb.Points = append(nb.Points, geom.LonLat{Longitude: lon, Latitude: lat})
	}
	if n := len(nb.Points); n > 1 && nb.Points[0] == nb.Points[n-1] {
		nb.Points = nb.Points[:n-1]
	}
	return nb, nil
}
