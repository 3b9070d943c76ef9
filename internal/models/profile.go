package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleRider    Role = "rider"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleRider, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Profile struct {
	ID              string     `json:"id"`
	FullName        string     `json:"full_name"`
	Mobile          string     `json:"mobile"`
	Address         string     `json:"address,omitempty"`
	Role            Role       `json:"role"`
	Active          bool       `json:"is_active"`
	Position        *Coord     `json:"position,omitempty"`
	PositionAt      *time.Time `json:"position_updated_at,omitempty"`
	DailyQuota      int        `json:"daily_quota"`
	TotalDeliveries int        `json:"total_deliveries"`
	TotalEarnings   float64    `json:"total_earnings"`
	LastOrderAt     *time.Time `json:"last_order_at,omitempty"`
}

// Actor is the authenticated caller of a dispatch operation.
type Actor struct {
	ID   string
	Role Role
}

type RiderStats struct {
	RiderID         string  `json:"rider_id"`
	Active          bool    `json:"is_active"`
	ActiveOrders    int     `json:"active_orders"`
	CompletedToday  int     `json:"completed_today"`
	EarningsToday   float64 `json:"earnings_today"`
	TotalDeliveries int     `json:"total_deliveries"`
	TotalEarnings   float64 `json:"total_earnings"`
}
