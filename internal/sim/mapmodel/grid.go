package mapmodel

import (
	"math"

	"trafficsim.ai/internal/sim/geom"
)

// GridConfig describes a synthetic Manhattan-style map: Cols x Rows intersections joined
// by two-way roads, a border stub leading off every perimeter intersection, and small
// buildings lining the interior roads.
type GridConfig struct {
	Name             string
	Cols             int
	Rows             int
	BlockSize        float64
	BuildingsPerRoad int
	Origin           geom.LonLat

	// OneWayBorders makes the top stubs inbound only and the bottom stubs outbound only.
	OneWayBorders bool
	// BusRoute adds stops along the bottom and top rows and one looping route over them.
	BusRoute bool
}

func (c *GridConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "grid"
	}
	if c.Cols < 2 {
		c.Cols = 3
	}
	if c.Rows < 2 {
		c.Rows = 3
	}
	if c.BlockSize <= 0 {
		c.BlockSize = 120
	}
	if c.BuildingsPerRoad <= 0 {
		c.BuildingsPerRoad = 2
	}
	if c.Origin == (geom.LonLat{}) {
		c.Origin = geom.NewLonLat(-122.3321, 47.6062)
	}
}

var (
	twoWay   = []LaneType{LaneDriving, LaneParking, LaneSidewalk}
	stubLane = []LaneType{LaneDriving, LaneSidewalk}
)

// GridRaw produces the raw description of a grid map.
func GridRaw(cfg GridConfig) Raw {
	cfg.applyDefaults()
	b := cfg.BlockSize
	margin := b / 2
	maxX := 2*margin + float64(cfg.Cols-1)*b
	maxY := 2*margin + float64(cfg.Rows-1)*b

	r := Raw{Name: cfg.Name, GPSOrigin: cfg.Origin}
	at := func(col, row int) int { return row*cfg.Cols + col }
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Cols; col++ {
			r.Intersections = append(r.Intersections, RawIntersection{
				Point: geom.Pt2D{X: margin + float64(col)*b, Y: margin + float64(row)*b},
			})
		}
	}

	var horizontal [][]int
	for row := 0; row < cfg.Rows; row++ {
		var roads []int
		for col := 0; col+1 < cfg.Cols; col++ {
			roads = append(roads, len(r.Roads))
			r.Roads = append(r.Roads, RawRoad{Src: at(col, row), Dst: at(col+1, row), Forward: twoWay, Backward: twoWay})
		}
		horizontal = append(horizontal, roads)
	}
	for col := 0; col < cfg.Cols; col++ {
		for row := 0; row+1 < cfg.Rows; row++ {
			r.Roads = append(r.Roads, RawRoad{Src: at(col, row), Dst: at(col, row+1), Forward: twoWay, Backward: twoWay})
		}
	}
	interior := len(r.Roads)

	stub := func(pt geom.Pt2D, to int, inbound, outbound bool) {
		r.Intersections = append(r.Intersections, RawIntersection{Point: pt, Border: true})
		road := RawRoad{Src: len(r.Intersections) - 1, Dst: to}
		if inbound {
			road.Forward = stubLane
		}
		if outbound {
			road.Backward = stubLane
		}
		r.Roads = append(r.Roads, road)
	}
	for row := 0; row < cfg.Rows; row++ {
		y := margin + float64(row)*b
		stub(geom.Pt2D{X: 0, Y: y}, at(0, row), true, true)
		stub(geom.Pt2D{X: maxX, Y: y}, at(cfg.Cols-1, row), true, true)
	}
	for col := 0; col < cfg.Cols; col++ {
		x := margin + float64(col)*b
		stub(geom.Pt2D{X: x, Y: 0}, at(col, 0), !cfg.OneWayBorders, true)
		stub(geom.Pt2D{X: x, Y: maxY}, at(col, cfg.Rows-1), true, !cfg.OneWayBorders)
	}

	offset := math.Min(20, b/4)
	half := math.Min(5, b/16)
	for idx := 0; idx < interior; idx++ {
		road := r.Roads[idx]
		from := r.Intersections[road.Src].Point
		to := r.Intersections[road.Dst].Point
		dir := to.Sub(from).Scale(1 / from.DistanceTo(to))
		left := geom.Pt2D{X: -dir.Y, Y: dir.X}
		for k := 0; k < cfg.BuildingsPerRoad; k++ {
			frac := float64(k+1) / float64(cfg.BuildingsPerRoad+1)
			c := from.Add(to.Sub(from).Scale(frac)).Add(left.Scale(offset))
			r.Buildings = append(r.Buildings, RawBuilding{
				Road: idx,
				Points: []geom.Pt2D{
					{X: c.X - half, Y: c.Y - half},
					{X: c.X + half, Y: c.Y - half},
					{X: c.X + half, Y: c.Y + half},
					{X: c.X - half, Y: c.Y + half},
				},
			})
		}
	}

	if cfg.BusRoute {
		route := RawBusRoute{Name: "loop"}
		addStop := func(road int) {
			route.Stops = append(route.Stops, len(r.BusStops))
			r.BusStops = append(r.BusStops, RawBusStop{Road: road, Dist: b / 2})
		}
		for _, road := range horizontal[0] {
			addStop(road)
		}
		top := horizontal[cfg.Rows-1]
		for i := len(top) - 1; i >= 0; i-- {
			addStop(top[i])
		}
		r.BusRoutes = append(r.BusRoutes, route)
	}
	return r
}

// Grid builds a synthetic grid map.
func Grid(cfg GridConfig) (*Map, error) {
	return Build(GridRaw(cfg))
}
