package models

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPreparing  Status = "preparing"
	StatusPickedUp   Status = "picked_up"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// sequence is the forward delivery path. cancelled sits outside it.
var sequence = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusPickedUp,
	StatusDelivering,
	StatusDelivered,
}

// ActiveStatuses are the statuses of an order a rider currently holds.
var ActiveStatuses = []Status{StatusConfirmed, StatusPreparing, StatusPickedUp, StatusDelivering}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if st == StatusCancelled {
		return st, true
	}
	for _, v := range sequence {
		if v == st {
			return st, true
		}
	}
	return "", false
}

// Next returns the only status an order may advance to from s.
func (s Status) Next() (Status, bool) {
	for i, v := range sequence {
		if v == s && i+1 < len(sequence) {
			return sequence[i+1], true
		}
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// EnRoute is the phase in which live tracking is meaningful.
func (s Status) EnRoute() bool {
	return s == StatusPickedUp || s == StatusDelivering
}

// PrePickupStatuses are the held statuses in which a rider may still pass.
var PrePickupStatuses = []Status{StatusConfirmed, StatusPreparing}

func (s Status) Active() bool {
	for _, v := range ActiveStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// DisplayStatus is the collapsed customer-facing vocabulary.
type DisplayStatus string

const (
	DisplayPending    DisplayStatus = "PENDING"
	DisplayAssigned   DisplayStatus = "ASSIGNED"
	DisplayDelivering DisplayStatus = "DELIVERING"
	DisplayCompleted  DisplayStatus = "COMPLETED"
	DisplayCancelled  DisplayStatus = "CANCELLED"
)

func (s Status) Display() DisplayStatus {
	switch s {
	case StatusPending:
		return DisplayPending
	case StatusConfirmed, StatusPreparing:
		return DisplayAssigned
	case StatusPickedUp, StatusDelivering:
		return DisplayDelivering
	case StatusDelivered:
		return DisplayCompleted
	default:
		return DisplayCancelled
	}
}

type Item struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Order struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	UserID        string     `json:"user_id"`
	RiderID       string     `json:"rider_id,omitempty"`
	Subtotal      float64    `json:"subtotal"`
	DeliveryFee   float64    `json:"delivery_fee"`
	TotalAmount   float64    `json:"total_amount"`
	Address       string     `json:"dropoff_address"`
	Destination   *Coord     `json:"dropoff,omitempty"`
	Landmark      string     `json:"landmark,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	PaymentRef    string     `json:"-"`
	Items         []Item     `json:"items,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// Candidate is a row of the dispatch candidate view: an unassigned order with
// the customer's display fields.
type Candidate struct {
	Order
	CustomerName    string `json:"customer_name"`
	CustomerMobile  string `json:"customer_mobile"`
	CustomerAddress string `json:"customer_address,omitempty"`
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// OrderEvent signals that an order row changed. Consumers re-fetch; the fields
// are only good enough for filtering.
type OrderEvent struct {
	Type    EventType `json:"type"`
	OrderID string    `json:"order_id"`
	Status  Status    `json:"status"`
	RiderID string    `json:"rider_id,omitempty"`
	At      time.Time `json:"at"`
}
