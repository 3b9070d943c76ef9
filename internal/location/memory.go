package location

import (
	"context"
	"sort"
	"sync"

	"github.com/joloLG/joloRide/internal/geo"
	"github.com/joloLG/joloRide/internal/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	current map[string]models.Sample
	history map[string][]models.Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current: make(map[string]models.Sample),
		history: make(map[string][]models.Sample),
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, s models.Sample) (models.Sample, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.current[s.RiderID]; ok && !s.NewerThan(cur) {
		return cur, false, nil
	}
	m.current[s.RiderID] = s
	return s, true, nil
}

func (m *MemoryStore) Current(ctx context.Context, riderID string) (models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.current[riderID]
	if !ok {
		return models.Sample{}, ErrNoLocation
	}
	return s, nil
}

func (m *MemoryStore) AppendHistory(ctx context.Context, s models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := historyKey(s.RiderID, s.OrderID)
	m.history[k] = append(m.history[k], s)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, riderID, orderID string) ([]models.Sample, error) {
	m.mu.RLock()
	out := append([]models.Sample(nil), m.history[historyKey(riderID, orderID)]...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) Nearby(ctx context.Context, center models.Coord, radiusKm float64, limit int) ([]Nearby, error) {
	m.mu.RLock()
	all := make([]models.Sample, 0, len(m.current))
	for _, s := range m.current {
		all = append(all, s)
	}
	m.mu.RUnlock()
	ranked := geo.Nearest(center, all, models.Sample.Coord, radiusKm, limit)
	out := make([]Nearby, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, Nearby{Sample: r.Item, DistanceKm: geo.Round(r.DistanceKm, 2)})
	}
	return out, nil
}

func historyKey(riderID, orderID string) string { return riderID + "/" + orderID }
