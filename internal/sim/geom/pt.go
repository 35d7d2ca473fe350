package geom

import (
	"fmt"
	"math"
)

// Pt2D is a point in map-local coordinates, in meters. Y grows downwards, the way the
// projection from GPS lays the map out.
type Pt2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func NewPt2D(x, y float64) Pt2D { return Pt2D{X: x, Y: y} }

func (p Pt2D) Add(o Pt2D) Pt2D { return Pt2D{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Pt2D) Sub(o Pt2D) Pt2D { return Pt2D{X: p.X - o.X, Y: p.Y - o.Y} }

func (p Pt2D) Scale(f float64) Pt2D { return Pt2D{X: p.X * f, Y: p.Y * f} }

// DistanceTo returns the straight-line distance in meters.
func (p Pt2D) DistanceTo(o Pt2D) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func (p Pt2D) String() string { return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y) }

// Center returns the average of pts. Building footprints are small and roughly convex,
// so the vertex average stands in for the area centroid.
func Center(pts []Pt2D) Pt2D {
	if len(pts) == 0 {
		return Pt2D{}
	}
	var sum Pt2D
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Scale(1.0 / float64(len(pts)))
}

// PolylineLength sums the segment lengths of pts.
func PolylineLength(pts []Pt2D) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += pts[i-1].DistanceTo(pts[i])
	}
	return total
}

// PointAlong walks dist meters along pts, clamping to the endpoints.
func PointAlong(pts []Pt2D, dist float64) Pt2D {
	if len(pts) == 0 {
		return Pt2D{}
	}
	if dist <= 0 {
		return pts[0]
	}
	for i := 1; i < len(pts); i++ {
		seg := pts[i-1].DistanceTo(pts[i])
		if dist <= seg && seg > 0 {
			return pts[i-1].Add(pts[i].Sub(pts[i-1]).Scale(dist / seg))
		}
		dist -= seg
	}
	return pts[len(pts)-1]
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// NewBounds returns an empty box that the first Update will snap to.
func NewBounds() Bounds {
	return Bounds{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
	}
}

func (b *Bounds) Update(p Pt2D) {
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
}

func (b Bounds) Contains(p Pt2D) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Corners returns the rectangle ring starting at the min corner, clockwise on screen.
func (b Bounds) Corners() []Pt2D {
	return []Pt2D{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY},
		{X: b.MinX, Y: b.MaxY},
	}
}
