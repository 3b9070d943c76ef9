package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joloLG/joloRide/internal/models"
)

// MemoryStore keeps orders and profiles in process. Conditional writes hold
// the store lock across check and write.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]*models.Order
	profiles map[string]*models.Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*models.Order),
		profiles: make(map[string]*models.Profile),
	}
}

func (m *MemoryStore) PutProfile(p models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = &p
}

func (m *MemoryStore) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return *p, nil
}

func (m *MemoryStore) SetActive(ctx context.Context, id string, active bool) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	p.Active = active
	return *p, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if _, ok := m.profiles[o.UserID]; !ok {
		return fmt.Errorf("customer %s: %w", o.UserID, ErrNotFound)
	}
	cp := cloneOrder(*o)
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return cloneOrder(*o), nil
}

func (m *MemoryStore) UpdateOrderIf(ctx context.Context, id string, g Guard, u Update) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if !g.Allows(*o) {
		return cloneOrder(*o), ErrGuardFailed
	}
	if g.Quota > 0 && u.AssignRider != "" && m.countAssigned(u.AssignRider, g.QuotaSince) >= g.Quota {
		return cloneOrder(*o), ErrQuotaReached
	}
	next := *o
	next.Status = u.Status
	switch {
	case u.AssignRider != "":
		next.RiderID = u.AssignRider
	case u.ClearRider:
		next.RiderID = ""
	}
	if u.ConfirmedAt != nil {
		t := *u.ConfirmedAt
		next.ConfirmedAt = &t
	}
	if u.ClearConfirmedAt {
		next.ConfirmedAt = nil
	}
	if u.DeliveredAt != nil {
		t := *u.DeliveredAt
		next.DeliveredAt = &t
	}
	next.UpdatedAt = u.At

	var rider *models.Profile
	if u.CreditRider || u.TouchRider {
		rider, ok = m.profiles[next.RiderID]
		if !ok {
			return cloneOrder(*o), fmt.Errorf("rider %s: %w", next.RiderID, ErrNotFound)
		}
	}
	*o = next
	if u.CreditRider {
		rider.TotalDeliveries++
		rider.TotalEarnings += next.DeliveryFee
	}
	if u.TouchRider {
		t := u.At
		rider.LastOrderAt = &t
	}
	return cloneOrder(*o), nil
}

func (m *MemoryStore) ListCandidates(ctx context.Context, limit int) ([]models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Candidate, 0)
	for _, o := range m.orders {
		if o.Status != models.StatusPending || o.RiderID != "" {
			continue
		}
		c := models.Candidate{Order: cloneOrder(*o)}
		if p, ok := m.profiles[o.UserID]; ok {
			c.CustomerName, c.CustomerMobile, c.CustomerAddress = p.FullName, p.Mobile, p.Address
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListByRider(ctx context.Context, riderID string, statuses []models.Status) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, o := range m.orders {
		if o.RiderID != riderID || !statusIn(o.Status, statuses) {
			continue
		}
		out = append(out, cloneOrder(*o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// countAssigned expects m.mu to be held.
func (m *MemoryStore) countAssigned(riderID string, since time.Time) int {
	n := 0
	for _, o := range m.orders {
		if o.RiderID == riderID && o.ConfirmedAt != nil && !o.ConfirmedAt.Before(since) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) DeliveredSince(ctx context.Context, riderID string, since time.Time) (int, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, fees := 0, 0.0
	for _, o := range m.orders {
		if o.RiderID != riderID || o.Status != models.StatusDelivered || o.DeliveredAt == nil || o.DeliveredAt.Before(since) {
			continue
		}
		n++
		fees += o.DeliveryFee
	}
	return n, fees, nil
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func cloneOrder(o models.Order) models.Order {
	if o.Items != nil {
		o.Items = append([]models.Item(nil), o.Items...)
	}
	if o.Destination != nil {
		d := *o.Destination
		o.Destination = &d
	}
	return o
}
