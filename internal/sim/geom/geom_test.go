package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(t *testing.T) Polygon {
	t.Helper()
	p, err := NewPolygon([]Pt2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}})
	require.NoError(t, err)
	return p
}

func TestPolygonContains(t *testing.T) {
	p := square(t)
	tests := []struct {
		name string
		pt   Pt2D
		want bool
	}{
		{"interior", Pt2D{5, 5}, true},
		{"outside", Pt2D{11, 5}, false},
		{"corner", Pt2D{0, 0}, true},
		{"edge", Pt2D{10, 3}, true},
		{"far corner", Pt2D{10, 10}, true},
		{"just outside edge", Pt2D{10.001, 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Contains(tt.pt))
		})
	}
}

func TestPolygonConcave(t *testing.T) {
	// An L shape: the notch at (7,7) is outside.
	p, err := NewPolygon([]Pt2D{{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}})
	require.NoError(t, err)
	assert.True(t, p.Contains(Pt2D{2, 8}))
	assert.False(t, p.Contains(Pt2D{7, 7}))
}

func TestNewPolygonDropsClosingVertex(t *testing.T) {
	p := square(t)
	assert.Equal(t, 4, p.Len())

	_, err := NewPolygon([]Pt2D{{0, 0}, {1, 1}, {0, 0}})
	assert.ErrorIs(t, err, ErrDegeneratePolygon)
}

func TestRectangleMatchesBounds(t *testing.T) {
	b := NewBounds()
	b.Update(Pt2D{3, 4})
	b.Update(Pt2D{-1, 9})
	r := Rectangle(b)
	for _, c := range b.Corners() {
		assert.True(t, r.Contains(c), "corner %v", c)
	}
	assert.Equal(t, b, r.Bounds())
}

func TestGPSRoundTrip(t *testing.T) {
	gps := GPSBoundsAround(NewLonLat(-122.3, 47.6), Pt2D{X: 2000, Y: 1500})
	for _, pt := range []Pt2D{{0, 0}, {1999, 1499}, {250.5, 700.25}, {2000, 0}} {
		ll := gps.ToGPS(pt)
		back, ok := Pt2DFromGPS(ll, gps)
		require.True(t, ok, "pt %v projected outside bounds", pt)
		assert.InDelta(t, pt.X, back.X, 1e-6)
		assert.InDelta(t, pt.Y, back.Y, 1e-6)
	}
}

func TestPt2DFromGPSOutside(t *testing.T) {
	gps := GPSBounds{MinLon: 0, MinLat: 0, MaxLon: 0.01, MaxLat: 0.01}
	_, ok := Pt2DFromGPS(NewLonLat(0.02, 0.005), gps)
	assert.False(t, ok)
}

func TestCenter(t *testing.T) {
	assert.Equal(t, Pt2D{5, 5}, Center([]Pt2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}))
	assert.Equal(t, Pt2D{}, Center(nil))
}

func TestPointAlong(t *testing.T) {
	line := []Pt2D{{0, 0}, {10, 0}, {10, 10}}
	assert.InDelta(t, 20.0, PolylineLength(line), 1e-9)
	assert.Equal(t, Pt2D{5, 0}, PointAlong(line, 5))
	assert.Equal(t, Pt2D{10, 4}, PointAlong(line, 14))
	assert.Equal(t, Pt2D{10, 10}, PointAlong(line, 99))
	assert.Equal(t, Pt2D{0, 0}, PointAlong(line, -1))
}
