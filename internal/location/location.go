// Package location supplies the optional geolocation attached to captured
// candidates and classifies the daylight conditions at capture time.
package location

import (
	"context"
	"fmt"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// Provider returns the current coordinate when one is known.
type Provider interface {
	Current(ctx context.Context) (Coordinate, bool)
}

// Static always reports the same coordinate.
type Static struct {
	Coordinate Coordinate
}

// NewStatic returns a provider for c, or nil if c is out of range.
func NewStatic(lat, lon float64) *Static {
	c := Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return nil
	}
	return &Static{Coordinate: c}
}

func (s *Static) Current(_ context.Context) (Coordinate, bool) {
	if s == nil {
		return Coordinate{}, false
	}
	return s.Coordinate, true
}

// Lookup asks p for the current position. A nil provider means location is
// disabled.
func Lookup(ctx context.Context, p Provider) *Coordinate {
	if p == nil {
		return nil
	}
	c, ok := p.Current(ctx)
	if !ok || !c.Valid() {
		return nil
	}
	return &c
}
