package visualizer

import "github.com/golang/geo/s2"

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the region covering every marker of a pass. When the covering
// longitude range crosses the antimeridian, East is West plus the span, so it
// exceeds 180.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Corners returns [[south, west], [north, east]], the pair Leaflet's
// fitBounds takes.
func (b Bounds) Corners() [2][2]float64 {
	return [2][2]float64{{b.South, b.West}, {b.North, b.East}}
}

// Center returns the midpoint of b.
func (b Bounds) Center() Coordinate {
	lng := (b.West + b.East) / 2
	if lng > 180 {
		lng -= 360
	}
	return Coordinate{Lat: (b.South + b.North) / 2, Lng: lng}
}

// FitOptions are the constants applied whenever the view is fitted.
type FitOptions struct {
	Padding int `json:"padding"`
	MaxZoom int `json:"maxZoom"`
}

// DefaultFitOptions matches the dashboard's stock map settings.
func DefaultFitOptions() FitOptions {
	return FitOptions{Padding: 50, MaxZoom: 15}
}

type boundsBuilder struct {
	rect s2.Rect
}

func newBoundsBuilder() *boundsBuilder {
	return &boundsBuilder{rect: s2.EmptyRect()}
}

func (b *boundsBuilder) add(c Coordinate) {
	b.rect = b.rect.AddPoint(s2.LatLngFromDegrees(c.Lat, c.Lng))
}

func (b *boundsBuilder) bounds() (Bounds, bool) {
	if b.rect.IsEmpty() {
		return Bounds{}, false
	}
	lo, hi := b.rect.Lo(), b.rect.Hi()
	out := Bounds{
		South: lo.Lat.Degrees(),
		West:  lo.Lng.Degrees(),
		North: hi.Lat.Degrees(),
		East:  hi.Lng.Degrees(),
	}
	if b.rect.Lng.IsInverted() {
		out.East += 360
	}
	return out, true
}
