package storage

import (
	"context"
	"errors"
	"time"

	"github.com/joloLG/joloRide/internal/models"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrGuardFailed = errors.New("storage: guard failed")
	// ErrQuotaReached is returned instead of ErrGuardFailed when the
	// assigning rider is at its Guard.Quota.
	ErrQuotaReached = errors.New("storage: rider quota reached")
)

// Guard is the precondition of a conditional order write. It is evaluated by
// the store in the same step as the write.
type Guard struct {
	Statuses   []models.Status // current status must be one of these
	Unassigned bool            // rider_id must be null
	RiderID    string          // rider_id must equal this when non-empty
	// Quota caps the orders Update.AssignRider has been assigned since
	// QuotaSince. Zero means no cap. Stores count and write under one lock.
	Quota      int
	QuotaSince time.Time
}

func (g Guard) Allows(o models.Order) bool {
	ok := false
	for _, s := range g.Statuses {
		if o.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if g.Unassigned && o.RiderID != "" {
		return false
	}
	if g.RiderID != "" && o.RiderID != g.RiderID {
		return false
	}
	return true
}

// Update is applied atomically when its Guard holds.
type Update struct {
	Status           models.Status
	AssignRider      string
	ClearRider       bool
	ConfirmedAt      *time.Time
	ClearConfirmedAt bool
	DeliveredAt      *time.Time
	// CreditRider adds one delivery and the order's delivery fee to the
	// holding rider's totals.
	CreditRider bool
	// TouchRider stamps last_order_at on the assigned rider.
	TouchRider bool
	At         time.Time
}

// OrderStore persists orders. UpdateOrderIf returns the current order together
// with ErrGuardFailed when the guard does not hold.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (models.Order, error)
	UpdateOrderIf(ctx context.Context, id string, g Guard, u Update) (models.Order, error)
	ListCandidates(ctx context.Context, limit int) ([]models.Candidate, error)
	ListByRider(ctx context.Context, riderID string, statuses []models.Status) ([]models.Order, error)
	DeliveredSince(ctx context.Context, riderID string, since time.Time) (int, float64, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	SetActive(ctx context.Context, id string, active bool) (models.Profile, error)
}

// StartOfDay returns local midnight of t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
