package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/joloLG/joloRide/internal/models"
)

func TestBuildGuardedUpdateClaim(t *testing.T) {
	now := time.Now()
	q, args := buildGuardedUpdate("O1",
		Guard{Statuses: []models.Status{models.StatusPending}, Unassigned: true},
		Update{Status: models.StatusConfirmed, AssignRider: "R1", ConfirmedAt: &now, At: now})
	for _, frag := range []string{"rider_id = $4", "confirmed_at = $5", "o.status = ANY($6)", "o.rider_id IS NULL", "RETURNING"} {
		if !strings.Contains(q, frag) {
			t.Fatalf("expected %q in query:\n%s", frag, q)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
}

func TestBuildGuardedUpdatePass(t *testing.T) {
	q, args := buildGuardedUpdate("O1",
		Guard{Statuses: []models.Status{models.StatusConfirmed, models.StatusPreparing}, RiderID: "R1"},
		Update{Status: models.StatusPending, ClearRider: true, ClearConfirmedAt: true, At: time.Now()})
	for _, frag := range []string{"rider_id = NULL", "confirmed_at = NULL", "o.rider_id = $5"} {
		if !strings.Contains(q, frag) {
			t.Fatalf("expected %q in query:\n%s", frag, q)
		}
	}
	if args[4] != "R1" {
		t.Fatalf("expected rider guard arg, got %v", args[4])
	}
}
