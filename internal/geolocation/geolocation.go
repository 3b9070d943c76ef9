// Package geolocation abstracts the device positioning service a rider app
// samples from.
package geolocation

import (
	"context"
	"errors"
	"time"

	"github.com/joloLG/joloRide/internal/models"
)

var (
	ErrPermissionDenied    = errors.New("geolocation: permission denied")
	ErrPositionUnavailable = errors.New("geolocation: position unavailable")
	ErrTimeout             = errors.New("geolocation: timeout")
	ErrUnsupported         = errors.New("geolocation: unsupported")
)

// Position is one fix reported by the device.
type Position struct {
	Lat       float64
	Lng       float64
	Accuracy  float64
	Timestamp time.Time
}

func (p Position) Coord() models.Coord { return models.Coord{Lat: p.Lat, Lng: p.Lng} }

// Reading is delivered on a watch channel. Exactly one of Position and Err is
// meaningful.
type Reading struct {
	Position Position
	Err      error
}

type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge bounds how old a cached fix may be. Zero forces a fresh one.
	MaximumAge time.Duration
}

func DefaultOptions() Options {
	return Options{HighAccuracy: true, Timeout: 10 * time.Second}
}

// Source is a positioning service. Watch streams readings until ctx ends,
// then closes the channel.
type Source interface {
	Current(ctx context.Context, opts Options) (Position, error)
	Watch(ctx context.Context, opts Options) (<-chan Reading, error)
}

// Message turns a positioning failure into text fit for a rider.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location permission denied. Please enable location access."
	case errors.Is(err, ErrPositionUnavailable):
		return "Location information is unavailable."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out."
	case errors.Is(err, ErrUnsupported):
		return "Geolocation is not supported on this device."
	default:
		return "An unknown error occurred while retrieving location."
	}
}

// Fatal reports failures after which sampling should not be retried.
func Fatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported)
}
