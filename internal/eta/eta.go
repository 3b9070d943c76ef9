package eta

import (
	"math"

	"github.com/joloLG/joloRide/internal/geo"
	"github.com/joloLG/joloRide/internal/models"
)

// DefaultSpeedKmh is the assumed average delivery speed.
const DefaultSpeedKmh = 30.0

// Estimate is the derived distance and arrival time shown to a customer.
type Estimate struct {
	DistanceKm float64 `json:"distance_km"`
	Minutes    int     `json:"eta_minutes"`
}

// Minutes converts a distance to whole minutes at speedKmh.
// Naive ETA: distance / speed. In prod use a routing engine.
func Minutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return int(math.Round(distanceKm / speedKmh * 60))
}

// Between derives the estimate from a rider position to a destination.
// Distance is rounded to two decimals for display; minutes use the exact value.
func Between(from, to models.Coord, speedKmh float64) Estimate {
	d := geo.Haversine(from, to)
	return Estimate{DistanceKm: geo.Round(d, 2), Minutes: Minutes(d, speedKmh)}
}
