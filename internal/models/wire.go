package models

import "time"

// LocationUpdate is the body a rider device posts to the location endpoint.
// Timestamps travel as Unix milliseconds.
type LocationUpdate struct {
	RiderID  string      `json:"riderId" validate:"required"`
	OrderID  string      `json:"orderId,omitempty"`
	Location LocationFix `json:"location"`
}

type LocationFix struct {
	Lat       *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng       *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`
}

// NewLocationUpdate builds the wire form of s.
func NewLocationUpdate(s Sample) LocationUpdate {
	lat, lng := s.Lat, s.Lng
	return LocationUpdate{
		RiderID: s.RiderID,
		OrderID: s.OrderID,
		Location: LocationFix{
			Lat:       &lat,
			Lng:       &lng,
			Timestamp: s.Timestamp.UnixMilli(),
			Accuracy:  s.Accuracy,
		},
	}
}

// Sample converts the update, stamping now when the device sent no time.
func (u LocationUpdate) Sample(now time.Time) Sample {
	s := Sample{RiderID: u.RiderID, OrderID: u.OrderID, Accuracy: u.Location.Accuracy, Timestamp: now}
	if u.Location.Lat != nil {
		s.Lat = *u.Location.Lat
	}
	if u.Location.Lng != nil {
		s.Lng = *u.Location.Lng
	}
	if u.Location.Timestamp > 0 {
		s.Timestamp = time.UnixMilli(u.Location.Timestamp).UTC()
	}
	return s
}
