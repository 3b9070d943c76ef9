package location

import (
	"context"
	"errors"

	"github.com/joloLG/joloRide/internal/models"
)

var ErrNoLocation = errors.New("location: no stored position")

// Store keeps one current sample per rider plus an append-only trail per
// (rider, order). Upsert never lets an older sample replace a newer one; it
// returns whatever is current after the call and whether s was applied.
type Store interface {
	Upsert(ctx context.Context, s models.Sample) (models.Sample, bool, error)
	Current(ctx context.Context, riderID string) (models.Sample, error)
	AppendHistory(ctx context.Context, s models.Sample) error
	History(ctx context.Context, riderID, orderID string) ([]models.Sample, error)
}

// Proximity is implemented by stores that can answer radius queries.
type Proximity interface {
	Nearby(ctx context.Context, center models.Coord, radiusKm float64, limit int) ([]Nearby, error)
}

type Nearby struct {
	models.Sample
	DistanceKm float64 `json:"distance_km"`
}
