// Package dispatch is the rider-facing board: orders up for grabs, orders in
// hand, today's numbers, and the actions a rider takes on them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joloLG/joloRide/internal/feed"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/orders"
	"github.com/joloLG/joloRide/internal/storage"
)

const DefaultPageSize = 10

// Snapshot is everything the board shows a rider at one moment.
type Snapshot struct {
	RiderID   string             `json:"rider_id"`
	Active    bool               `json:"active"`
	Available []models.Candidate `json:"available"`
	Mine      []models.Order     `json:"mine"`
	Stats     models.RiderStats  `json:"stats"`
}

// Result pairs a successful action with the refreshed board.
type Result struct {
	Order models.Order `json:"order"`
	Board *Snapshot    `json:"board"`
}

type Board struct {
	Engine   *orders.Engine
	Orders   storage.OrderStore
	Profiles storage.ProfileStore
	Hub      *feed.Hub
	PageSize int
	Logger   *slog.Logger
	Now      func() time.Time
}

func (b *Board) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

func (b *Board) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b *Board) pageSize() int {
	if b.PageSize <= 0 {
		return DefaultPageSize
	}
	return b.PageSize
}

func (b *Board) rider(ctx context.Context, riderID string) (models.Profile, error) {
	p, err := b.Profiles.GetProfile(ctx, riderID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Profile{}, orders.ErrRiderNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	switch p.Role {
	case models.RoleRider:
		return p, nil
	case models.RoleCustomer, models.RoleAdmin:
	}
	return models.Profile{}, fmt.Errorf("profile %s is %s: %w", riderID, p.Role, orders.ErrRoleNotAllowed)
}

// ListAvailable returns the newest pending, unassigned orders. An inactive
// rider sees none.
func (b *Board) ListAvailable(ctx context.Context, riderID string) ([]models.Candidate, error) {
	p, err := b.rider(ctx, riderID)
	if err != nil {
		return nil, err
	}
	return b.available(ctx, p)
}

func (b *Board) available(ctx context.Context, p models.Profile) ([]models.Candidate, error) {
	if !p.Active {
		return []models.Candidate{}, nil
	}
	return b.Orders.ListCandidates(ctx, b.pageSize())
}

// ListMine returns the orders the rider holds and has not finished.
func (b *Board) ListMine(ctx context.Context, riderID string) ([]models.Order, error) {
	if _, err := b.rider(ctx, riderID); err != nil {
		return nil, err
	}
	return b.Orders.ListByRider(ctx, riderID, models.ActiveStatuses)
}

func (b *Board) Stats(ctx context.Context, riderID string) (models.RiderStats, error) {
	p, err := b.rider(ctx, riderID)
	if err != nil {
		return models.RiderStats{}, err
	}
	mine, err := b.Orders.ListByRider(ctx, riderID, models.ActiveStatuses)
	if err != nil {
		return models.RiderStats{}, err
	}
	return b.stats(ctx, p, len(mine))
}

func (b *Board) stats(ctx context.Context, p models.Profile, active int) (models.RiderStats, error) {
	n, earned, err := b.Orders.DeliveredSince(ctx, p.ID, storage.StartOfDay(b.now()))
	if err != nil {
		return models.RiderStats{}, fmt.Errorf("delivered today: %w", err)
	}
	return models.RiderStats{
		RiderID:         p.ID,
		Active:          p.Active,
		ActiveOrders:    active,
		CompletedToday:  n,
		EarningsToday:   earned,
		TotalDeliveries: p.TotalDeliveries,
		TotalEarnings:   p.TotalEarnings,
	}, nil
}

// Snapshot reads the whole board for a rider.
func (b *Board) Snapshot(ctx context.Context, riderID string) (Snapshot, error) {
	p, err := b.rider(ctx, riderID)
	if err != nil {
		return Snapshot{}, err
	}
	avail, err := b.available(ctx, p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("available orders: %w", err)
	}
	mine, err := b.Orders.ListByRider(ctx, riderID, models.ActiveStatuses)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rider orders: %w", err)
	}
	st, err := b.stats(ctx, p, len(mine))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{RiderID: p.ID, Active: p.Active, Available: avail, Mine: mine, Stats: st}, nil
}

func (b *Board) Claim(ctx context.Context, riderID, orderID string) (Result, error) {
	return b.act(ctx, riderID, func(a models.Actor) (models.Order, error) {
		return b.Engine.Claim(ctx, a, orderID)
	})
}

func (b *Board) Pass(ctx context.Context, riderID, orderID string) (Result, error) {
	return b.act(ctx, riderID, func(a models.Actor) (models.Order, error) {
		return b.Engine.Pass(ctx, a, orderID)
	})
}

func (b *Board) Advance(ctx context.Context, riderID, orderID string, next models.Status) (Result, error) {
	return b.act(ctx, riderID, func(a models.Actor) (models.Order, error) {
		return b.Engine.Advance(ctx, a, orderID, next)
	})
}

func (b *Board) Cancel(ctx context.Context, riderID, orderID string) (Result, error) {
	return b.act(ctx, riderID, func(a models.Actor) (models.Order, error) {
		return b.Engine.Cancel(ctx, a, orderID)
	})
}

// act runs one engine action and refreshes the board. A snapshot failure
// after a committed action is logged and the board left nil so the caller
// re-fetches.
func (b *Board) act(ctx context.Context, riderID string, fn func(models.Actor) (models.Order, error)) (Result, error) {
	o, err := fn(models.Actor{ID: riderID, Role: models.RoleRider})
	if err != nil {
		return Result{}, err
	}
	snap, err := b.Snapshot(ctx, riderID)
	if err != nil {
		b.logger().Warn("board refresh after action failed", "rider_id", riderID, "order_id", o.ID, "error", err)
		return Result{Order: o}, nil
	}
	return Result{Order: o, Board: &snap}, nil
}

// SetActive toggles whether the rider is accepting new orders.
func (b *Board) SetActive(ctx context.Context, riderID string, active bool) (models.Profile, error) {
	if _, err := b.rider(ctx, riderID); err != nil {
		return models.Profile{}, err
	}
	p, err := b.Profiles.SetActive(ctx, riderID, active)
	if err != nil {
		return models.Profile{}, err
	}
	b.logger().Info("rider availability changed", "rider_id", riderID, "active", active)
	if b.Hub != nil {
		// nudge this rider's other screens
		_ = b.Hub.Publish(ctx, models.OrderEvent{Type: models.EventUpdate, RiderID: riderID, At: b.now()})
	}
	return p, nil
}

// Watch sends a snapshot now and again after every change signal until ctx
// ends or send fails.
func (b *Board) Watch(ctx context.Context, riderID string, send func(Snapshot) error) error {
	if b.Hub == nil {
		return errors.New("dispatch: no change feed")
	}
	sub := b.Hub.Subscribe(feed.Filter{})
	defer sub.Close()

	snap, err := b.Snapshot(ctx, riderID)
	if err != nil {
		return err
	}
	if err := send(snap); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C:
			if !ok {
				return nil
			}
			snap, err := b.Snapshot(ctx, riderID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.logger().Warn("board refresh failed", "rider_id", riderID, "error", err)
				continue
			}
			if err := send(snap); err != nil {
				return err
			}
		}
	}
}
