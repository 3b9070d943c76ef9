package geolocation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/joloLG/joloRide/internal/geo"
	"github.com/joloLG/joloRide/internal/models"
)

var route = []models.Coord{{Lat: 12.6667, Lng: 123.9667}, {Lat: 12.6767, Lng: 123.9667}}

func TestAtInterpolatesAlongRoute(t *testing.T) {
	s := NewSimulator(route, 30)
	if got := s.At(0); got != route[0] {
		t.Fatalf("expected start of route, got %+v", got)
	}
	total := geo.Haversine(route[0], route[1])
	half := time.Duration(total / 2 / 30 * float64(time.Hour))
	mid := s.At(half)
	if math.Abs(geo.Haversine(route[0], mid)-total/2) > 0.01 {
		t.Fatalf("expected midpoint, got %+v", mid)
	}
	if got := s.At(24 * time.Hour); got != route[1] {
		t.Fatalf("expected end of route, got %+v", got)
	}
}

func TestCurrentReturnsQueuedFailuresFirst(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s := NewSimulator(route, 30)
	s.Now = func() time.Time { return now }
	s.FailNext(ErrTimeout, ErrPositionUnavailable)
	ctx := context.Background()

	if _, err := s.Current(ctx, DefaultOptions()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, err := s.Current(ctx, DefaultOptions()); !errors.Is(err, ErrPositionUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	p, err := s.Current(ctx, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if p.Coord() != route[0] || !p.Timestamp.Equal(now) {
		t.Fatalf("unexpected position %+v", p)
	}
}

func TestEmptyRouteIsUnavailable(t *testing.T) {
	s := NewSimulator(nil, 30)
	if _, err := s.Current(context.Background(), DefaultOptions()); !errors.Is(err, ErrPositionUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := s.Watch(context.Background(), DefaultOptions()); !errors.Is(err, ErrPositionUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	s := NewSimulator(route, 30)
	s.Every = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Watch(ctx, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-ch:
		if r.Err != nil {
			t.Fatalf("unexpected error %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("no reading")
	}
	cancel()
	for range ch {
	}
}

func TestMessage(t *testing.T) {
	cases := map[error]string{
		ErrPermissionDenied:    "Location permission denied. Please enable location access.",
		ErrPositionUnavailable: "Location information is unavailable.",
		ErrTimeout:             "Location request timed out.",
		errors.New("boom"):     "An unknown error occurred while retrieving location.",
	}
	for err, want := range cases {
		if got := Message(err); got != want {
			t.Errorf("Message(%v) = %q, want %q", err, got, want)
		}
	}
	if !Fatal(ErrPermissionDenied) || Fatal(ErrTimeout) {
		t.Fatal("only denial should be fatal")
	}
}
