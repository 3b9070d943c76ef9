package geolocation

import (
	"context"
	"sync"
	"time"

	"github.com/joloLG/joloRide/internal/geo"
	"github.com/joloLG/joloRide/internal/models"
)

// Simulator moves a virtual device along a route at constant speed. It stands
// in for a phone's positioning service in the reporter binary and in tests.
type Simulator struct {
	Route    []models.Coord
	SpeedKmh float64
	Accuracy float64
	// Every is the watch cadence.
	Every time.Duration
	Now   func() time.Time

	mu       sync.Mutex
	start    time.Time
	failures []error
}

func NewSimulator(route []models.Coord, speedKmh float64) *Simulator {
	return &Simulator{Route: route, SpeedKmh: speedKmh, Accuracy: 10, Every: time.Second}
}

// FailNext queues errors returned by the next calls, one per call, before
// positions resume.
func (s *Simulator) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

func (s *Simulator) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Simulator) Current(ctx context.Context, opts Options) (Position, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if ctx.Err() != nil {
		return Position{}, ErrTimeout
	}
	return s.next()
}

func (s *Simulator) next() (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return Position{}, err
	}
	if len(s.Route) == 0 {
		return Position{}, ErrPositionUnavailable
	}
	now := s.now()
	if s.start.IsZero() {
		s.start = now
	}
	c := s.At(now.Sub(s.start))
	return Position{Lat: c.Lat, Lng: c.Lng, Accuracy: s.Accuracy, Timestamp: now}, nil
}

func (s *Simulator) Watch(ctx context.Context, opts Options) (<-chan Reading, error) {
	if len(s.Route) == 0 {
		return nil, ErrPositionUnavailable
	}
	every := s.Every
	if every <= 0 {
		every = time.Second
	}
	ch := make(chan Reading, 1)
	go func() {
		defer close(ch)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p, err := s.next()
				select {
				case ch <- Reading{Position: p, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// At returns where the device is after travelling for elapsed. It stops at
// the last waypoint.
func (s *Simulator) At(elapsed time.Duration) models.Coord {
	if len(s.Route) == 0 {
		return models.Coord{}
	}
	remaining := s.SpeedKmh * elapsed.Hours()
	for i := 0; i+1 < len(s.Route); i++ {
		a, b := s.Route[i], s.Route[i+1]
		seg := geo.Haversine(a, b)
		if seg <= 0 {
			continue
		}
		if remaining <= seg {
			f := remaining / seg
			return models.Coord{Lat: a.Lat + (b.Lat-a.Lat)*f, Lng: a.Lng + (b.Lng-a.Lng)*f}
		}
		remaining -= seg
	}
	return s.Route[len(s.Route)-1]
}
