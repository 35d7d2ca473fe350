package scenario

import (
	"context"
	"fmt"

	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/geom"
	"trafficsim.ai/internal/sim/mapmodel"
)

// NeighborhoodBuilder is the persisted form of a neighborhood. Points are stored as
// GPS coordinates so they survive small changes to the map's local frame.
type NeighborhoodBuilder struct {
	MapName string        `json:"map_name"`
	Name    string        `json:"name"`
	Points  []geom.LonLat `json:"points"`
}

func (nb NeighborhoodBuilder) Finalize(gps geom.GPSBounds) (*Neighborhood, error) {
	if len(nb.Points) < 3 {
		return nil, fmt.Errorf("%s has %d points: %w", nb.Name, len(nb.Points), ErrTooFewPoints)
	}
	pts := make([]geom.Pt2D, 0, len(nb.Points))
	for _, ll := range nb.Points {
		pt, ok := geom.Pt2DFromGPS(ll, gps)
		if !ok {
			return nil, fmt.Errorf("polygon %s has bad pt %s: %w", nb.Name, ll, ErrUnprojectablePoint)
		}
		pts = append(pts, pt)
	}
	poly, err := geom.NewPolygon(pts)
	if err != nil {
		return nil, fmt.Errorf("polygon %s: %w", nb.Name, err)
	}
	return &Neighborhood{MapName: nb.MapName, Name: nb.Name, Polygon: poly}, nil
}

func (nb NeighborhoodBuilder) Save(ctx context.Context, store objects.Store) error {
	return store.Save(ctx, objects.Neighborhoods, nb.MapName, nb.Name, nb)
}

func LoadNeighborhoodBuilder(ctx context.Context, store objects.Store, mapName, name string) (NeighborhoodBuilder, error) {
	var nb NeighborhoodBuilder
	err := store.Load(ctx, objects.Neighborhoods, mapName, name, &nb)
	return nb, err
}

type Neighborhood struct {
	MapName string
	Name    string
	Polygon geom.Polygon
}

// FindMatchingBuildings returns buildings whose footprint center lies inside the
// polygon. Partial overlap is ignored.
func (n *Neighborhood) FindMatchingBuildings(m *mapmodel.Map) []mapmodel.BuildingID {
	var out []mapmodel.BuildingID
	for _, b := range m.AllBuildings() {
		if n.Polygon.Contains(b.Center()) {
			out = append(out, b.ID)
		}
	}
	return out
}

// FindMatchingRoads matches on the first center point of each road only.
func (n *Neighborhood) FindMatchingRoads(m *mapmodel.Map) []mapmodel.RoadID {
	var out []mapmodel.RoadID
	for _, r := range m.AllRoads() {
		if n.Polygon.Contains(r.FirstPt()) {
			out = append(out, r.ID)
		}
	}
	return out
}

// MakeEverywhere covers the rectangle from the origin to the map's max corner.
func MakeEverywhere(m *mapmodel.Map) *Neighborhood {
	b := m.Bounds()
	return &Neighborhood{
		MapName: m.Name(),
		Name:    Everywhere,
		Polygon: geom.Rectangle(geom.Bounds{MaxX: b.MaxX, MaxY: b.MaxY}),
	}
}

// LoadAllNeighborhoods finalizes every persisted neighborhood of a map, keyed by the
// name it was stored under.
func LoadAllNeighborhoods(ctx context.Context, store objects.Store, mapName string, gps geom.GPSBounds) (map[string]*Neighborhood, error) {
	objs, err := store.LoadAll(ctx, objects.Neighborhoods, mapName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Neighborhood, len(objs))
	for _, o := range objs {
		var nb NeighborhoodBuilder
		if err := o.Decode(&nb); err != nil {
			return nil, err
		}
		n, err := nb.Finalize(gps)
		if err != nil {
			return nil, err
		}
		out[o.Name] = n
	}
	return out, nil
}
