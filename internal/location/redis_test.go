package location

import (
	"testing"
	"time"

	"github.com/joloLG/joloRide/internal/models"
)

func TestSampleFromHash(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s, err := sampleFromHash("R1", map[string]string{
		"lat": "12.6667", "lng": "123.9667", "acc": "8.5", "ts": "1714557600000", "order": "O1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.RiderID != "R1" || s.OrderID != "O1" || s.Lat != 12.6667 || s.Accuracy != 8.5 || !s.Timestamp.Equal(ts) {
		t.Fatalf("unexpected sample %+v", s)
	}
}

func TestSampleFromHashRejectsCorruptFields(t *testing.T) {
	if _, err := sampleFromHash("R1", map[string]string{"lat": "x", "lng": "1", "ts": "1"}); err == nil {
		t.Fatal("expected bad lat rejected")
	}
	if _, err := sampleFromHash("R1", map[string]string{"lat": "1", "lng": "1"}); err == nil {
		t.Fatal("expected missing ts rejected")
	}
}

func TestKeys(t *testing.T) {
	if currentKey("R1") != "rider:loc:R1" || historyListKey("R1", "O1") != "rider:history:R1:O1" {
		t.Fatal("unexpected key layout")
	}
}

func TestNearbyQuerySearchesByRadiusNearestFirst(t *testing.T) {
	q := nearbyQuery(models.Coord{Lat: 12.6667, Lng: 123.9667}, 5, 20)
	if q.Longitude != 123.9667 || q.Latitude != 12.6667 {
		t.Fatalf("expected lng/lat order preserved, got %v,%v", q.Longitude, q.Latitude)
	}
	if q.Radius != 5 || q.RadiusUnit != "km" || q.Sort != "ASC" || q.Count != 20 {
		t.Fatalf("unexpected query %+v", q.GeoSearchQuery)
	}
	if !q.WithCoord || !q.WithDist {
		t.Fatal("expected coordinates and distances requested")
	}
}
