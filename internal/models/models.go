package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Sample is one position fix reported for a rider. OrderID is empty when the
// rider is not carrying an order.
type Sample struct {
	RiderID   string    `json:"rider_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s Sample) Coord() Coord { return Coord{Lat: s.Lat, Lng: s.Lng} }

// NewerThan reports whether s should replace cur as a rider's current position.
// Equal timestamps are accepted so a retried post is idempotent.
func (s Sample) NewerThan(cur Sample) bool {
	return !s.Timestamp.Before(cur.Timestamp)
}
