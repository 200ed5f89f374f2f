// Package geofence checks a captured position against the expected site
// location.
package geofence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// earthRadius is the mean Earth radius in meters.
const earthRadius = 6371008.8

var (
	ErrInvalidThresholds = errors.New("invalid geofence thresholds")
	ErrNoFix             = errors.New("location unavailable")
)

// Tier is the outcome of a proximity check.
type Tier string

const (
	TierVerified Tier = "verified"
	TierWarn     Tier = "warn"
	TierBlock    Tier = "block"
)

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Fix is a position reported by a location provider.
type Fix struct {
	Coordinate
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Thresholds are the radii in meters. Positions between Entry and Block
// form the warn band. Entry <= Block.
type Thresholds struct {
	Entry float64 `json:"entry" yaml:"entry"`
	Block float64 `json:"block" yaml:"block"`
}

// Validate checks the radii are non-negative and ordered.
func (t Thresholds) Validate() error {
	if t.Entry < 0 || t.Block < 0 {
		return fmt.Errorf("%w: radii must be non-negative", ErrInvalidThresholds)
	}
	if t.Entry > t.Block {
		return fmt.Errorf("%w: want entry <= block, got %.0f/%.0f",
			ErrInvalidThresholds, t.Entry, t.Block)
	}
	return nil
}

// StartThresholds uses a single radius for every tier. Starting an audit
// either passes or is blocked.
func StartThresholds(radius float64) Thresholds {
	return Thresholds{Entry: radius, Block: radius}
}

// Result is the outcome of Classify.
type Result struct {
	Distance float64 `json:"distance_m"`
	Tier     Tier    `json:"tier"`
}

// Verified reports whether the position is within the entry radius.
func (r Result) Verified() bool {
	return r.Tier == TierVerified
}

// Distance returns the great-circle distance between two coordinates in
// meters.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return 2 * earthRadius * math.Asin(math.Sqrt(h))
}

// Classify places the captured position in a tier. Anything beyond the
// entry radius up to and including the block radius needs confirmation.
func Classify(captured, expected Coordinate, th Thresholds) Result {
	d := Distance(captured, expected)
	switch {
	case d <= th.Entry:
		return Result{Distance: d, Tier: TierVerified}
	case d <= th.Block:
		return Result{Distance: d, Tier: TierWarn}
	default:
		return Result{Distance: d, Tier: TierBlock}
	}
}

// Provider supplies the device position.
type Provider interface {
	CurrentLocation(ctx context.Context) (Fix, error)
}

// StaticProvider always reports the same position.
type StaticProvider struct {
	Fix Fix
	Err error
}

func (p StaticProvider) CurrentLocation(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	if p.Err != nil {
		return Fix{}, p.Err
	}
	fix := p.Fix
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now().UTC()
	}
	return fix, nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
