package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/observability"
	"github.com/joloLG/joloRide/internal/payments"
	"github.com/joloLG/joloRide/internal/storage"
)

// Publisher receives a change event after every committed write.
type Publisher interface {
	Publish(ctx context.Context, e models.OrderEvent) error
}

// Engine is the only writer of order status. Every transition is a single
// guarded write in the order store; the engine reads beforehand only to pick
// the guard and to explain a rejection.
type Engine struct {
	Orders   storage.OrderStore
	Profiles storage.ProfileStore
	Feed     Publisher        // optional
	Payments payments.Settler // optional
	Logger   *slog.Logger
	Now      func() time.Time
}

var validate = validator.New()

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Claim assigns a pending, unassigned order to the calling rider. Of any
// number of concurrent claims on one order exactly one succeeds.
func (e *Engine) Claim(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
	switch actor.Role {
	case models.RoleRider:
	case models.RoleCustomer, models.RoleAdmin:
		return models.Order{}, fmt.Errorf("claim %s as %s: %w", orderID, actor.Role, ErrRoleNotAllowed)
	default:
		return models.Order{}, fmt.Errorf("claim %s: %w", orderID, ErrRoleNotAllowed)
	}
	rider, err := e.rider(ctx, actor.ID)
	if err != nil {
		observability.ClaimsTotal.WithLabelValues("rejected").Inc()
		return models.Order{}, fmt.Errorf("claim %s: %w", orderID, err)
	}
	now := e.now()
	start := time.Now()
	o, err := e.Orders.UpdateOrderIf(ctx, orderID,
		storage.Guard{
			Statuses:   []models.Status{models.StatusPending},
			Unassigned: true,
			Quota:      rider.DailyQuota,
			QuotaSince: storage.StartOfDay(now),
		},
		storage.Update{Status: models.StatusConfirmed, AssignRider: rider.ID, ConfirmedAt: &now, TouchRider: true, At: now},
	)
	switch {
	case errors.Is(err, storage.ErrQuotaReached):
		observability.ClaimsTotal.WithLabelValues("rejected").Inc()
		return models.Order{}, fmt.Errorf("claim %s: quota %d: %w", orderID, rider.DailyQuota, ErrQuotaReached)
	case errors.Is(err, storage.ErrGuardFailed):
		observability.ClaimsTotal.WithLabelValues("conflict").Inc()
		if o.Status == models.StatusCancelled {
			return models.Order{}, fmt.Errorf("claim %s from %s: %w", orderID, o.Status, ErrInvalidTransition)
		}
		return models.Order{}, fmt.Errorf("claim %s: %w", orderID, ErrAlreadyAssigned)
	case errors.Is(err, storage.ErrNotFound):
		observability.ClaimsTotal.WithLabelValues("not_found").Inc()
		return models.Order{}, fmt.Errorf("claim %s: %w", orderID, ErrOrderNotFound)
	case err != nil:
		observability.ClaimsTotal.WithLabelValues("error").Inc()
		return models.Order{}, fmt.Errorf("claim %s: %w", orderID, err)
	}
	observability.ClaimsTotal.WithLabelValues("success").Inc()
	e.committed(ctx, o, start)
	e.logger().Info("order claimed", "order_id", o.ID, "rider_id", rider.ID)
	return o, nil
}

// Pass returns an order the caller holds to the pool, as long as it has not
// been picked up.
func (e *Engine) Pass(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
	switch actor.Role {
	case models.RoleRider:
	case models.RoleCustomer, models.RoleAdmin:
		return models.Order{}, fmt.Errorf("pass %s as %s: %w", orderID, actor.Role, ErrRoleNotAllowed)
	default:
		return models.Order{}, fmt.Errorf("pass %s: %w", orderID, ErrRoleNotAllowed)
	}
	now := e.now()
	start := time.Now()
	o, err := e.Orders.UpdateOrderIf(ctx, orderID,
		storage.Guard{Statuses: models.PrePickupStatuses, RiderID: actor.ID},
		storage.Update{Status: models.StatusPending, ClearRider: true, ClearConfirmedAt: true, At: now},
	)
	switch {
	case errors.Is(err, storage.ErrGuardFailed):
		if o.RiderID != actor.ID {
			return models.Order{}, fmt.Errorf("pass %s: %w", orderID, ErrNotAssignedRider)
		}
		return models.Order{}, fmt.Errorf("pass %s from %s: %w", orderID, o.Status, ErrInvalidTransition)
	case errors.Is(err, storage.ErrNotFound):
		return models.Order{}, fmt.Errorf("pass %s: %w", orderID, ErrOrderNotFound)
	case err != nil:
		return models.Order{}, fmt.Errorf("pass %s: %w", orderID, err)
	}
	e.committed(ctx, o, start)
	e.logger().Info("order passed", "order_id", o.ID, "rider_id", actor.ID)
	return o, nil
}

// Advance moves an order one step along the delivery sequence. next must be
// the immediate successor of the current status.
func (e *Engine) Advance(ctx context.Context, actor models.Actor, orderID string, next models.Status) (models.Order, error) {
	switch actor.Role {
	case models.RoleRider, models.RoleAdmin:
	case models.RoleCustomer:
		return models.Order{}, fmt.Errorf("advance %s as %s: %w", orderID, actor.Role, ErrRoleNotAllowed)
	default:
		return models.Order{}, fmt.Errorf("advance %s: %w", orderID, ErrRoleNotAllowed)
	}
	cur, err := e.get(ctx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("advance %s: %w", orderID, err)
	}
	if actor.Role == models.RoleRider && cur.RiderID != actor.ID {
		return models.Order{}, fmt.Errorf("advance %s: %w", orderID, ErrNotAssignedRider)
	}
	want, ok := cur.Status.Next()
	if !ok || !cur.Status.Active() || next != want {
		return models.Order{}, fmt.Errorf("advance %s from %s to %s: %w", orderID, cur.Status, next, ErrInvalidTransition)
	}

	now := e.now()
	u := storage.Update{Status: next, At: now}
	if next == models.StatusDelivered {
		u.DeliveredAt = &now
		u.CreditRider = true
	}
	start := time.Now()
	o, err := e.Orders.UpdateOrderIf(ctx, orderID,
		storage.Guard{Statuses: []models.Status{cur.Status}, RiderID: cur.RiderID}, u)
	switch {
	case errors.Is(err, storage.ErrGuardFailed):
		if o.RiderID != cur.RiderID {
			return models.Order{}, fmt.Errorf("advance %s: %w", orderID, ErrNotAssignedRider)
		}
		return models.Order{}, fmt.Errorf("advance %s from %s to %s: %w", orderID, o.Status, next, ErrInvalidTransition)
	case errors.Is(err, storage.ErrNotFound):
		return models.Order{}, fmt.Errorf("advance %s: %w", orderID, ErrOrderNotFound)
	case err != nil:
		return models.Order{}, fmt.Errorf("advance %s: %w", orderID, err)
	}
	e.committed(ctx, o, start)
	e.logger().Info("order advanced", "order_id", o.ID, "status", o.Status, "rider_id", o.RiderID)
	if o.Status == models.StatusDelivered {
		e.settle(ctx, o, "capture")
	}
	return o, nil
}

// Cancel ends an order from any non-terminal status. Riders and admins may
// cancel any order, customers only their own.
func (e *Engine) Cancel(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
	switch actor.Role {
	case models.RoleRider, models.RoleAdmin:
	case models.RoleCustomer:
		cur, err := e.get(ctx, orderID)
		if err != nil {
			return models.Order{}, fmt.Errorf("cancel %s: %w", orderID, err)
		}
		if cur.UserID != actor.ID {
			return models.Order{}, fmt.Errorf("cancel %s: not the customer's order: %w", orderID, ErrRoleNotAllowed)
		}
	default:
		return models.Order{}, fmt.Errorf("cancel %s: %w", orderID, ErrRoleNotAllowed)
	}
	now := e.now()
	start := time.Now()
	o, err := e.Orders.UpdateOrderIf(ctx, orderID,
		storage.Guard{Statuses: []models.Status{models.StatusPending, models.StatusConfirmed, models.StatusPreparing, models.StatusPickedUp, models.StatusDelivering}},
		storage.Update{Status: models.StatusCancelled, At: now},
	)
	switch {
	case errors.Is(err, storage.ErrGuardFailed):
		return models.Order{}, fmt.Errorf("cancel %s from %s: %w", orderID, o.Status, ErrInvalidTransition)
	case errors.Is(err, storage.ErrNotFound):
		return models.Order{}, fmt.Errorf("cancel %s: %w", orderID, ErrOrderNotFound)
	case err != nil:
		return models.Order{}, fmt.Errorf("cancel %s: %w", orderID, err)
	}
	e.committed(ctx, o, start)
	e.logger().Info("order cancelled", "order_id", o.ID, "by", actor.ID, "role", actor.Role)
	e.settle(ctx, o, "release")
	return o, nil
}

// Get returns an order if the actor is allowed to see it.
func (e *Engine) Get(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
	o, err := e.get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return o, nil
	case models.RoleCustomer:
		if o.UserID == actor.ID {
			return o, nil
		}
	case models.RoleRider:
		if o.RiderID == actor.ID || (o.Status == models.StatusPending && o.RiderID == "") {
			return o, nil
		}
	}
	return models.Order{}, fmt.Errorf("get %s: %w", orderID, ErrRoleNotAllowed)
}

func (e *Engine) get(ctx context.Context, orderID string) (models.Order, error) {
	o, err := e.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Order{}, ErrOrderNotFound
	}
	return o, err
}

func (e *Engine) rider(ctx context.Context, id string) (models.Profile, error) {
	p, err := e.Profiles.GetProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Profile{}, ErrRiderNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	switch p.Role {
	case models.RoleRider:
	case models.RoleCustomer, models.RoleAdmin:
		return models.Profile{}, fmt.Errorf("profile %s is %s: %w", id, p.Role, ErrRoleNotAllowed)
	}
	if !p.Active {
		return models.Profile{}, ErrRiderInactive
	}
	return p, nil
}

func (e *Engine) committed(ctx context.Context, o models.Order, start time.Time) {
	observability.TransitionLatency.Observe(time.Since(start).Seconds())
	observability.TransitionsTotal.WithLabelValues(string(o.Status)).Inc()
	e.publish(ctx, models.EventUpdate, o)
}

func (e *Engine) publish(ctx context.Context, t models.EventType, o models.Order) {
	if e.Feed == nil {
		return
	}
	ev := models.OrderEvent{Type: t, OrderID: o.ID, Status: o.Status, RiderID: o.RiderID, At: o.UpdatedAt}
	if err := e.Feed.Publish(ctx, ev); err != nil {
		observability.FeedPublishErrors.Inc()
		e.logger().Warn("order event publish failed", "order_id", o.ID, "error", err)
	}
}

// settle runs after the transition committed; a failure is logged and never
// undoes the status change.
func (e *Engine) settle(ctx context.Context, o models.Order, action string) {
	if e.Payments == nil || o.PaymentRef == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	var err error
	switch action {
	case "capture":
		err = e.Payments.Capture(ctx, o.PaymentRef)
	default:
		err = e.Payments.Release(ctx, o.PaymentRef)
	}
	if err != nil {
		observability.PaymentSettlements.WithLabelValues(action, "error").Inc()
		e.logger().Error("payment settlement failed", "order_id", o.ID, "action", action, "error", err)
		return
	}
	observability.PaymentSettlements.WithLabelValues(action, "success").Inc()
}

// NewOrder is the checkout payload accepted by Create.
type NewOrder struct {
	Items         []NewItem     `json:"items" validate:"required,min=1,dive"`
	DeliveryFee   float64       `json:"delivery_fee" validate:"gte=0"`
	Address       string        `json:"dropoff_address" validate:"required"`
	Destination   *models.Coord `json:"dropoff" validate:"omitempty"`
	Landmark      string        `json:"landmark"`
	PaymentMethod string        `json:"payment_method" validate:"required"`
	PaymentRef    string        `json:"payment_intent_id"`
}

type NewItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// Create records a customer's checkout as a pending order and announces it.
func (e *Engine) Create(ctx context.Context, actor models.Actor, in NewOrder) (models.Order, error) {
	switch actor.Role {
	case models.RoleCustomer:
	case models.RoleRider, models.RoleAdmin:
		return models.Order{}, fmt.Errorf("create order as %s: %w", actor.Role, ErrRoleNotAllowed)
	default:
		return models.Order{}, fmt.Errorf("create order: %w", ErrRoleNotAllowed)
	}
	if err := validate.Struct(in); err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if d := in.Destination; d != nil && (d.Lat < -90 || d.Lat > 90 || d.Lng < -180 || d.Lng > 180) {
		return models.Order{}, fmt.Errorf("%w: dropoff out of range", ErrInvalidOrder)
	}
	now := e.now()
	o := models.Order{
		ID:            uuid.NewString(),
		Status:        models.StatusPending,
		UserID:        actor.ID,
		DeliveryFee:   in.DeliveryFee,
		Address:       in.Address,
		Destination:   in.Destination,
		Landmark:      in.Landmark,
		PaymentMethod: in.PaymentMethod,
		PaymentRef:    in.PaymentRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, models.Item{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
		o.Subtotal += float64(it.Quantity) * it.UnitPrice
	}
	o.TotalAmount = o.Subtotal + o.DeliveryFee
	if err := e.Orders.CreateOrder(ctx, &o); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Order{}, fmt.Errorf("create order: customer %s: %w", actor.ID, ErrInvalidOrder)
		}
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}
	e.publish(ctx, models.EventInsert, o)
	e.logger().Info("order created", "order_id", o.ID, "user_id", o.UserID, "total", o.TotalAmount)
	return o, nil
}
