// Package reporter samples a rider device's position and forwards each fix
// to the API.
package reporter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joloLG/joloRide/internal/geolocation"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/observability"
)

const (
	DefaultInterval = 5 * time.Second
	forwardTimeout  = 5 * time.Second
)

// Sink delivers an accepted sample to the location store.
type Sink interface {
	Forward(ctx context.Context, s models.Sample) error
}

// State is what a rider screen shows about tracking.
type State struct {
	Tracking bool
	Location *models.Sample
	Error    string
}

// Reporter runs a continuous watch and a fixed-interval poll against a
// Source. Both feed the same current value; a sample older than the current
// one is ignored.
type Reporter struct {
	Source   geolocation.Source
	Sink     Sink
	RiderID  string
	Interval time.Duration
	Options  geolocation.Options
	Logger   *slog.Logger

	mu       sync.Mutex
	orderID  string
	current  *models.Sample
	lastErr  error
	tracking bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(src geolocation.Source, sink Sink, riderID string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		Source:   src,
		Sink:     sink,
		RiderID:  riderID,
		Interval: DefaultInterval,
		Options:  geolocation.DefaultOptions(),
		Logger:   logger,
	}
}

// SetOrder tags subsequent samples with the order being carried. An empty id
// clears it.
func (r *Reporter) SetOrder(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderID = orderID
}

// Start takes an initial fix and then begins watching and polling. A denied
// permission stops everything and is returned; other failures are recorded in
// State and sampling continues. Calling Start while tracking is a no-op.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.tracking {
		r.mu.Unlock()
		return nil
	}
	r.lastErr = nil
	r.mu.Unlock()

	pos, err := r.Source.Current(ctx, r.Options)
	if err != nil {
		r.fail("initial", err)
		if geolocation.Fatal(err) {
			return err
		}
	} else {
		r.accept(ctx, "initial", pos)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracking {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	watch, werr := r.Source.Watch(runCtx, r.Options)
	if werr != nil {
		if geolocation.Fatal(werr) {
			cancel()
			r.lastErr = werr
			return werr
		}
		r.Logger.Warn("location watch unavailable, polling only", "rider_id", r.RiderID, "error", werr)
	}
	r.tracking = true
	r.cancel = cancel
	if watch != nil {
		r.wg.Add(1)
		go r.watchLoop(runCtx, watch)
	}
	r.wg.Add(1)
	go r.pollLoop(runCtx)
	r.Logger.Info("location tracking started", "rider_id", r.RiderID, "interval", r.interval())
	return nil
}

// Stop ends sampling and waits for the reporter's goroutines. It is safe to
// call when not tracking and more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	wasTracking := r.tracking
	r.tracking = false
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	if wasTracking {
		r.Logger.Info("location tracking stopped", "rider_id", r.RiderID)
	}
}

func (r *Reporter) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := State{Tracking: r.tracking, Error: geolocation.Message(r.lastErr)}
	if r.current != nil {
		cp := *r.current
		st.Location = &cp
	}
	return st
}

func (r *Reporter) interval() time.Duration {
	if r.Interval <= 0 {
		return DefaultInterval
	}
	return r.Interval
}

func (r *Reporter) watchLoop(ctx context.Context, ch <-chan geolocation.Reading) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rd, ok := <-ch:
			if !ok {
				return
			}
			if rd.Err != nil {
				r.fail("watch", rd.Err)
				continue
			}
			r.accept(ctx, "watch", rd.Position)
		}
	}
}

func (r *Reporter) pollLoop(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(r.interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pos, err := r.Source.Current(ctx, r.Options)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// interval failures are only logged unless they are fatal
				if geolocation.Fatal(err) {
					r.fail("interval", err)
				} else {
					r.Logger.Debug("interval location update failed", "rider_id", r.RiderID, "error", err)
				}
				continue
			}
			r.accept(ctx, "interval", pos)
		}
	}
}

func (r *Reporter) accept(ctx context.Context, source string, pos geolocation.Position) {
	r.mu.Lock()
	s := models.Sample{
		RiderID:   r.RiderID,
		OrderID:   r.orderID,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Accuracy:  pos.Accuracy,
		Timestamp: pos.Timestamp,
	}
	if r.current != nil && !s.NewerThan(*r.current) {
		r.mu.Unlock()
		observability.ReporterSamplesTotal.WithLabelValues("stale").Inc()
		return
	}
	r.current = &s
	r.lastErr = nil
	r.mu.Unlock()
	observability.ReporterSamplesTotal.WithLabelValues(source).Inc()

	if r.Sink == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
		defer cancel()
		if err := r.Sink.Forward(fctx, s); err != nil {
			observability.ReporterForwardFailures.Inc()
			r.Logger.Warn("failed to forward rider location", "rider_id", s.RiderID, "error", err)
		}
	}()
}

func (r *Reporter) fail(source string, err error) {
	fatal := geolocation.Fatal(err)
	r.mu.Lock()
	r.lastErr = err
	cancel := r.cancel
	if fatal {
		r.tracking = false
	}
	r.mu.Unlock()
	r.Logger.Warn("location sample failed", "rider_id", r.RiderID, "source", source, "error", err)
	if fatal && cancel != nil {
		// denial is not retried; Stop still joins the goroutines
		cancel()
	}
}
