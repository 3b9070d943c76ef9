package geo

import (
	"math"
	"testing"

	"github.com/joloLG/joloRide/internal/models"
)

func TestHaversineZero(t *testing.T) {
	p := models.Coord{Lat: 12.6767, Lng: 123.9649}
	if d := Haversine(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := models.Coord{Lat: 12.99, Lng: 124.02}
	b := models.Coord{Lat: 12.6767, Lng: 123.9649}
	if Haversine(a, b) != Haversine(b, a) {
		t.Fatalf("expected symmetric distance, got %f vs %f", Haversine(a, b), Haversine(b, a))
	}
}

func TestHaversineOneDegreeLatitude(t *testing.T) {
	d := Haversine(models.Coord{Lat: 10, Lng: 120}, models.Coord{Lat: 11, Lng: 120})
	if math.Abs(d-111)/111 > 0.01 {
		t.Fatalf("expected ~111km, got %f", d)
	}
}

func TestHaversineDeliveryScenario(t *testing.T) {
	dest := models.Coord{Lat: 12.6767, Lng: 123.9649}
	rider := models.Coord{Lat: 12.6867, Lng: 123.9649}
	if d := Round(Haversine(rider, dest), 2); d != 1.11 {
		t.Fatalf("expected 1.11km, got %f", d)
	}
}

func TestNearestOrdersAndLimits(t *testing.T) {
	center := models.Coord{Lat: 0, Lng: 0}
	pts := []models.Coord{{Lat: 0.3, Lng: 0}, {Lat: 0.1, Lng: 0}, {Lat: 5, Lng: 5}, {Lat: 0.2, Lng: 0}}
	got := Nearest(center, pts, func(c models.Coord) models.Coord { return c }, 100, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Item.Lat != 0.1 || got[1].Item.Lat != 0.2 {
		t.Fatalf("unexpected order: %+v", got)
	}
}
