// Package tracking derives what a customer sees about an order in transit:
// the rider's last position, distance to the drop-off and an ETA.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joloLG/joloRide/internal/eta"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/observability"
	"github.com/joloLG/joloRide/internal/storage"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultMaxSampleAge = 2 * time.Minute
)

var ErrOrderNotFound = errors.New("tracking: order not found")

type OrderSource interface {
	GetOrder(ctx context.Context, id string) (models.Order, error)
}

type LocationSource interface {
	Current(ctx context.Context, riderID string) (models.Sample, error)
}

// Update is one rendering of the tracking view. Location and Estimate are
// both nil whenever there is nothing trustworthy to show.
type Update struct {
	OrderID  string               `json:"order_id"`
	Status   models.Status        `json:"status"`
	Display  models.DisplayStatus `json:"display_status"`
	RiderID  string               `json:"rider_id,omitempty"`
	Location *models.Sample       `json:"location"`
	Estimate *eta.Estimate        `json:"estimate"`
	At       time.Time            `json:"at"`
}

// Visible reports whether the view has anything to draw.
func (u Update) Visible() bool { return u.Estimate != nil }

type Consumer struct {
	Orders       OrderSource
	Locations    LocationSource
	Interval     time.Duration
	SpeedKmh     float64
	MaxSampleAge time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewConsumer(orders OrderSource, locations LocationSource, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		Orders:       orders,
		Locations:    locations,
		Interval:     DefaultInterval,
		SpeedKmh:     eta.DefaultSpeedKmh,
		MaxSampleAge: DefaultMaxSampleAge,
		Logger:       logger,
	}
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Evaluate runs one tracking cycle for orderID. Only a missing or unreadable
// order is an error; every other gap yields an Update with no estimate.
func (c *Consumer) Evaluate(ctx context.Context, orderID string) (Update, error) {
	o, err := c.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return Update{}, ErrOrderNotFound
	}
	if err != nil {
		observability.TrackingPollsTotal.WithLabelValues("order_error").Inc()
		return Update{}, err
	}
	u := Update{OrderID: o.ID, Status: o.Status, Display: o.Status.Display(), RiderID: o.RiderID, At: c.now()}

	result := c.fill(ctx, o, &u)
	observability.TrackingPollsTotal.WithLabelValues(result).Inc()
	return u, nil
}

func (c *Consumer) fill(ctx context.Context, o models.Order, u *Update) string {
	switch {
	case !o.Status.EnRoute():
		return "not_en_route"
	case o.RiderID == "":
		return "no_rider"
	case o.Destination == nil:
		return "no_destination"
	}
	s, err := c.Locations.Current(ctx, o.RiderID)
	if err != nil {
		// a failed fetch is no data for this cycle
		c.Logger.Debug("tracking location fetch failed", "order_id", o.ID, "rider_id", o.RiderID, "error", err)
		return "no_location"
	}
	if c.MaxSampleAge > 0 && u.At.Sub(s.Timestamp) > c.MaxSampleAge {
		return "stale"
	}
	est := eta.Between(s.Coord(), *o.Destination, c.SpeedKmh)
	u.Location = &s
	u.Estimate = &est
	return "ok"
}

// Run evaluates immediately and then every Interval, handing each Update to
// render. It returns when ctx ends, render fails, the order reaches a
// terminal status, or the order leaves the en-route phase after being in it.
func (c *Consumer) Run(ctx context.Context, orderID string, render func(Update) error) error {
	observability.TrackingSessions.Inc()
	defer observability.TrackingSessions.Dec()

	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	wasEnRoute := false
	for {
		u, err := c.Evaluate(ctx, orderID)
		switch {
		case errors.Is(err, ErrOrderNotFound):
			return err
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Warn("tracking order fetch failed", "order_id", orderID, "error", err)
			u = Update{OrderID: orderID, At: c.now()}
		}
		if err := render(u); err != nil {
			return err
		}
		if u.Status != "" {
			enRoute := u.Status.EnRoute()
			if u.Status.Terminal() || (wasEnRoute && !enRoute) {
				return nil
			}
			wasEnRoute = wasEnRoute || enRoute
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
