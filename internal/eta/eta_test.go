package eta

import (
	"testing"

	"github.com/joloLG/joloRide/internal/models"
)

func TestMinutesAtThirtyKmh(t *testing.T) {
	cases := map[float64]int{0: 0, 15: 30, 30: 60, 45: 90}
	for d, want := range cases {
		if got := Minutes(d, DefaultSpeedKmh); got != want {
			t.Fatalf("distance %v: expected %d, got %d", d, want, got)
		}
	}
}

func TestMinutesFallsBackToDefaultSpeed(t *testing.T) {
	if got := Minutes(15, 0); got != 30 {
		t.Fatalf("expected default speed to apply, got %d", got)
	}
}

func TestBetweenDeliveryScenario(t *testing.T) {
	est := Between(models.Coord{Lat: 12.6867, Lng: 123.9649}, models.Coord{Lat: 12.6767, Lng: 123.9649}, DefaultSpeedKmh)
	if est.DistanceKm != 1.11 {
		t.Fatalf("expected 1.11km, got %v", est.DistanceKm)
	}
	if est.Minutes != 2 {
		t.Fatalf("expected 2 minutes, got %d", est.Minutes)
	}
}
