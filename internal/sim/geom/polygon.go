package geom

import (
	"errors"
	"math"
)

// ErrDegeneratePolygon is returned when fewer than 3 distinct vertices remain.
var ErrDegeneratePolygon = errors.New("polygon needs at least 3 points")

// boundaryEps is how close (meters) a point may sit to an edge and still count as on it.
const boundaryEps = 1e-9

// Polygon is a simple closed ring. The closing vertex is implicit.
type Polygon struct {
	vertices []Pt2D
}

// NewPolygon builds a polygon from pts. A trailing copy of the first point is dropped.
func NewPolygon(pts []Pt2D) (Polygon, error) {
	vs := append([]Pt2D(nil), pts...)
	if len(vs) > 1 && vs[0] == vs[len(vs)-1] {
		vs = vs[:len(vs)-1]
	}
	if len(vs) < 3 {
		return Polygon{}, ErrDegeneratePolygon
	}
	return Polygon{vertices: vs}, nil
}

// Rectangle returns the polygon covering b.
func Rectangle(b Bounds) Polygon {
	return Polygon{vertices: b.Corners()}
}

// Vertices returns a copy of the ring without the closing vertex.
func (p Polygon) Vertices() []Pt2D {
	return append([]Pt2D(nil), p.vertices...)
}

func (p Polygon) Len() int { return len(p.vertices) }

// Bounds returns the axis-aligned box around the ring.
func (p Polygon) Bounds() Bounds {
	b := NewBounds()
	for _, v := range p.vertices {
		b.Update(v)
	}
	return b
}

// Contains reports whether pt is inside the ring or on its boundary, using ray casting.
func (p Polygon) Contains(pt Pt2D) bool {
	n := len(p.vertices)
	if n < 3 {
		return false
	}
	if !p.Bounds().Contains(pt) {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi := p.vertices[i]
		vj := p.vertices[j]
		if onSegment(pt, vi, vj) {
			return true
		}
		if (vi.Y > pt.Y) != (vj.Y > pt.Y) &&
			pt.X < (vj.X-vi.X)*(pt.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

func onSegment(pt, a, b Pt2D) bool {
	cross := (b.X-a.X)*(pt.Y-a.Y) - (b.Y-a.Y)*(pt.X-a.X)
	if math.Abs(cross) > boundaryEps*math.Max(1, a.DistanceTo(b)) {
		return false
	}
	return pt.X >= math.Min(a.X, b.X)-boundaryEps && pt.X <= math.Max(a.X, b.X)+boundaryEps &&
		pt.Y >= math.Min(a.Y, b.Y)-boundaryEps && pt.Y <= math.Max(a.Y, b.Y)+boundaryEps
}
