package geom

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean radius used by the haversine distance.
const EarthRadiusMeters = 6371000.0

// LonLat is a geographic coordinate in degrees.
type LonLat struct {
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
}

func NewLonLat(lon, lat float64) LonLat { return LonLat{Longitude: lon, Latitude: lat} }

func (ll LonLat) String() string { return fmt.Sprintf("(%v, %v)", ll.Longitude, ll.Latitude) }

// DistanceMeters is the haversine great-circle distance.
func (ll LonLat) DistanceMeters(o LonLat) float64 {
	lat1 := ll.Latitude * math.Pi / 180
	lat2 := o.Latitude * math.Pi / 180
	dLat := (o.Latitude - ll.Latitude) * math.Pi / 180
	dLon := (o.Longitude - ll.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// GPSBounds is the geographic box a map was cut from. Map-local coordinates are meters
// east of MinLon (X) and meters south of MaxLat (Y).
type GPSBounds struct {
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
}

func (b GPSBounds) Contains(ll LonLat) bool {
	return ll.Longitude >= b.MinLon && ll.Longitude <= b.MaxLon &&
		ll.Latitude >= b.MinLat && ll.Latitude <= b.MaxLat
}

// MaxWorldPt is the local point of the far corner of the box.
func (b GPSBounds) MaxWorldPt() Pt2D {
	width := NewLonLat(b.MinLon, b.MinLat).DistanceMeters(NewLonLat(b.MaxLon, b.MinLat))
	height := NewLonLat(b.MinLon, b.MinLat).DistanceMeters(NewLonLat(b.MinLon, b.MaxLat))
	return Pt2D{X: width, Y: height}
}

// Pt2DFromGPS projects ll into map-local coordinates. It returns false when ll lies
// outside the bounds.
func Pt2DFromGPS(ll LonLat, b GPSBounds) (Pt2D, bool) {
	if !b.Contains(ll) {
		return Pt2D{}, false
	}
	height := b.MaxWorldPt().Y
	x := ll.DistanceMeters(NewLonLat(b.MinLon, ll.Latitude))
	y := height - ll.DistanceMeters(NewLonLat(ll.Longitude, b.MinLat))
	return Pt2D{X: x, Y: y}, true
}

// ToGPS inverts Pt2DFromGPS for points inside the box.
func (b GPSBounds) ToGPS(pt Pt2D) LonLat {
	height := b.MaxWorldPt().Y
	lat := b.MinLat + ((height-pt.Y)/EarthRadiusMeters)*180/math.Pi
	latRad := lat * math.Pi / 180
	s := math.Sin(pt.X/(2*EarthRadiusMeters)) / math.Cos(latRad)
	dLon := 2 * math.Asin(math.Max(-1, math.Min(1, s))) * 180 / math.Pi
	return LonLat{
		Longitude: clamp(b.MinLon+dLon, b.MinLon, b.MaxLon),
		Latitude:  clamp(lat, b.MinLat, b.MaxLat),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// GPSBoundsAround returns a box anchored at origin (its min corner) that is large enough
// to hold a local map of the given size.
func GPSBoundsAround(origin LonLat, size Pt2D) GPSBounds {
	dLat := (size.Y / EarthRadiusMeters) * 180 / math.Pi * 1.0001
	// Meridians converge northwards, so size the longitude span at the top edge.
	latRad := (origin.Latitude + dLat) * math.Pi / 180
	dLon := (size.X / (EarthRadiusMeters * math.Cos(latRad))) * 180 / math.Pi * 1.0001
	return GPSBounds{
		MinLon: origin.Longitude,
		MinLat: origin.Latitude,
		MaxLon: origin.Longitude + dLon,
		MaxLat: origin.Latitude + dLat,
	}
}
