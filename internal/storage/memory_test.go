package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joloLG/joloRide/internal/models"
)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	m.PutProfile(models.Profile{ID: "C1", Role: models.RoleCustomer, FullName: "Ana", Mobile: "0917"})
	m.PutProfile(models.Profile{ID: "R1", Role: models.RoleRider, Active: true})
	return m
}

func TestUpdateOrderIfGuardFailureLeavesOrder(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	now := time.Now()
	if err := m.CreateOrder(ctx, &models.Order{ID: "O1", Status: models.StatusPending, UserID: "C1", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	cur, err := m.UpdateOrderIf(ctx, "O1",
		Guard{Statuses: []models.Status{models.StatusConfirmed}, RiderID: "R1"},
		Update{Status: models.StatusPreparing, At: now})
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed, got %v", err)
	}
	if cur.Status != models.StatusPending {
		t.Fatalf("expected current order returned unchanged, got %s", cur.Status)
	}
}

func TestUpdateOrderIfQuotaCountsAssignedToday(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	now := time.Now()
	for _, id := range []string{"O1", "O2"} {
		if err := m.CreateOrder(ctx, &models.Order{ID: id, Status: models.StatusPending, UserID: "C1", CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	claim := func(id string) (models.Order, error) {
		return m.UpdateOrderIf(ctx, id,
			Guard{Statuses: []models.Status{models.StatusPending}, Unassigned: true, Quota: 1, QuotaSince: StartOfDay(now)},
			Update{Status: models.StatusConfirmed, AssignRider: "R1", ConfirmedAt: &now, At: now})
	}
	if _, err := claim("O1"); err != nil {
		t.Fatal(err)
	}
	cur, err := claim("O2")
	if !errors.Is(err, ErrQuotaReached) {
		t.Fatalf("expected ErrQuotaReached, got %v", err)
	}
	if cur.Status != models.StatusPending || cur.RiderID != "" {
		t.Fatalf("expected O2 untouched, got %+v", cur)
	}
}

func TestUpdateOrderIfCreditsRider(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	now := time.Now()
	_ = m.CreateOrder(ctx, &models.Order{ID: "O1", Status: models.StatusDelivering, UserID: "C1", RiderID: "R1", DeliveryFee: 49, CreatedAt: now})
	_, err := m.UpdateOrderIf(ctx, "O1",
		Guard{Statuses: []models.Status{models.StatusDelivering}, RiderID: "R1"},
		Update{Status: models.StatusDelivered, DeliveredAt: &now, CreditRider: true, At: now})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := m.GetProfile(ctx, "R1")
	if p.TotalDeliveries != 1 || p.TotalEarnings != 49 {
		t.Fatalf("expected rider credited, got %+v", p)
	}
	n, fees, _ := m.DeliveredSince(ctx, "R1", StartOfDay(now))
	if n != 1 || fees != 49 {
		t.Fatalf("expected 1 delivery worth 49, got %d %v", n, fees)
	}
}

func TestListCandidatesNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	base := time.Now()
	for i, id := range []string{"A", "B", "C"} {
		_ = m.CreateOrder(ctx, &models.Order{ID: id, Status: models.StatusPending, UserID: "C1", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	_ = m.CreateOrder(ctx, &models.Order{ID: "taken", Status: models.StatusConfirmed, RiderID: "R1", UserID: "C1", CreatedAt: base.Add(time.Hour)})

	got, err := m.ListCandidates(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "C" || got[1].ID != "B" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if got[0].CustomerName != "Ana" {
		t.Fatalf("expected customer fields joined, got %+v", got[0])
	}
}

func TestCreateOrderUnknownCustomer(t *testing.T) {
	err := NewMemoryStore().CreateOrder(context.Background(), &models.Order{ID: "O1", UserID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
