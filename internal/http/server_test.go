package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joloLG/joloRide/internal/auth"
	"github.com/joloLG/joloRide/internal/dispatch"
	"github.com/joloLG/joloRide/internal/feed"
	"github.com/joloLG/joloRide/internal/location"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/orders"
	"github.com/joloLG/joloRide/internal/storage"
	"github.com/joloLG/joloRide/internal/tracking"
)

type recordingLog struct{ samples []models.Sample }

func (r *recordingLog) PublishLocation(ctx context.Context, s models.Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

// archivingLog appends every published sample to a history store, as the
// location archiver does downstream of the topic.
type archivingLog struct {
	history   location.Store
	published int
}

func (a *archivingLog) PublishLocation(ctx context.Context, s models.Sample) error {
	a.published++
	if s.OrderID == "" {
		return nil
	}
	return a.history.AppendHistory(ctx, s)
}

type fixture struct {
	srv   *Server
	store *storage.MemoryStore
	locs  *location.MemoryStore
	log   *recordingLog
	auth  *auth.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	store.PutProfile(models.Profile{ID: "C1", Role: models.RoleCustomer, FullName: "Ana"})
	store.PutProfile(models.Profile{ID: "R1", Role: models.RoleRider, Active: true})
	store.PutProfile(models.Profile{ID: "R2", Role: models.RoleRider, Active: true})
	store.PutProfile(models.Profile{ID: "A1", Role: models.RoleAdmin})
	locs := location.NewMemoryStore()
	hub := feed.NewHub(logger)
	eng := &orders.Engine{Orders: store, Profiles: store, Feed: hub, Logger: logger}
	board := &dispatch.Board{Engine: eng, Orders: store, Profiles: store, Hub: hub, Logger: logger}
	rec := &recordingLog{}
	a := auth.New("test-secret", time.Hour)
	srv := NewServer(Deps{
		Engine:      eng,
		Board:       board,
		Tracking:    tracking.NewConsumer(store, locs, logger),
		Locations:   locs,
		Orders:      store,
		Profiles:    store,
		LocationLog: rec,
		Auth:        a,
	}, logger)
	return &fixture{srv: srv, store: store, locs: locs, log: rec, auth: a}
}

func (f *fixture) do(t *testing.T, actor models.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, _ := json.Marshal(b)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if actor.ID != "" {
		tok, err := f.auth.Issue(actor)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (f *fixture) pending(t *testing.T, id string) {
	t.Helper()
	err := f.store.CreateOrder(context.Background(), &models.Order{
		ID: id, Status: models.StatusPending, UserID: "C1", DeliveryFee: 40,
		Destination: &models.Coord{Lat: 12.6767, Lng: 123.9667}, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

var (
	rider1 = models.Actor{ID: "R1", Role: models.RoleRider}
	rider2 = models.Actor{ID: "R2", Role: models.RoleRider}
	cust   = models.Actor{ID: "C1", Role: models.RoleCustomer}
	admin  = models.Actor{ID: "A1", Role: models.RoleAdmin}
)

func TestPostLocationValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing lat", `{"riderId":"R1","location":{"lng":123.9}}`, http.StatusBadRequest},
		{"missing rider", `{"location":{"lat":12.6,"lng":123.9}}`, http.StatusBadRequest},
		{"unknown order", `{"riderId":"R1","orderId":"nope","location":{"lat":12.6,"lng":123.9}}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, rider1, "POST", "/riders/location", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
			e := decodeBody[apiError](t, rr)
			if e.Code == "" || e.Error == "" {
				t.Fatalf("expected error body, got %+v", e)
			}
		})
	}
}

func TestPostLocationUnknownRider(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, admin, "POST", "/riders/location", `{"riderId":"R9","location":{"lat":12.6,"lng":123.9}}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPostLocationForOtherRiderForbidden(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, rider2, "POST", "/riders/location", `{"riderId":"R1","location":{"lat":12.6,"lng":123.9}}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestPostLocationStaleKeepsNewer(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "O1")
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := map[string]any{"riderId": "R1", "orderId": "O1", "location": map[string]any{"lat": 12.67, "lng": 123.96, "timestamp": ts.UnixMilli()}}
	older := map[string]any{"riderId": "R1", "orderId": "O1", "location": map[string]any{"lat": 12.50, "lng": 123.90, "timestamp": ts.Add(-time.Second).UnixMilli()}}

	rr := f.do(t, rider1, "POST", "/riders/location", newer)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, rider1, "POST", "/riders/location", older)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for stale sample, got %d", rr.Code)
	}
	resp := decodeBody[locationResponse](t, rr)
	if !resp.Success || !resp.Stale || resp.Location.Lat != 12.67 {
		t.Fatalf("expected stale flag with newer location echoed, got %+v", resp)
	}

	rr = f.do(t, cust, "GET", "/riders/location?riderId=R1", nil)
	got := decodeBody[struct {
		Location models.Sample `json:"location"`
	}](t, rr)
	if got.Location.Lat != 12.67 || !got.Location.Timestamp.Equal(ts) {
		t.Fatalf("expected newer sample retained, got %+v", got.Location)
	}
	trail, _ := f.locs.History(context.Background(), "R1", "O1")
	if len(trail) != 2 || len(f.log.samples) != 2 {
		t.Fatalf("expected both samples logged, history=%d published=%d", len(trail), len(f.log.samples))
	}
}

func TestPostLocationArchivedHistoryWrittenOnce(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "O1")
	arch := &archivingLog{history: f.locs}
	f.srv.LocationLog = arch
	f.srv.HistoryArchived = true

	body := map[string]any{"riderId": "R1", "orderId": "O1", "location": map[string]any{"lat": 12.67, "lng": 123.96}}
	if rr := f.do(t, rider1, "POST", "/riders/location", body); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	trail, err := f.locs.History(context.Background(), "R1", "O1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || arch.published != 1 {
		t.Fatalf("expected one trail point and one publish, got history=%d published=%d", len(trail), arch.published)
	}

	f.srv.LocationLog = nil
	if rr := f.do(t, rider1, "POST", "/riders/location", body); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	trail, _ = f.locs.History(context.Background(), "R1", "O1")
	if len(trail) != 2 {
		t.Fatalf("expected handler to append when no log is configured, got %d", len(trail))
	}
}

func TestGetLocationNotFound(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, cust, "GET", "/riders/location?riderId=R2", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := f.do(t, cust, "GET", "/riders/location", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, models.Actor{}, "GET", "/dispatch", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := f.do(t, models.Actor{}, "GET", "/healthz", nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz must be public, got %d", rr.Code)
	}
}

func TestClaimConflictIs409(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "O1")

	rr := f.do(t, rider1, "POST", "/dispatch/orders/O1/claim", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decodeBody[dispatch.Result](t, rr)
	if res.Order.RiderID != "R1" || res.Board == nil || len(res.Board.Mine) != 1 {
		t.Fatalf("unexpected claim result %+v", res)
	}

	rr = f.do(t, rider2, "POST", "/dispatch/orders/O1/claim", nil)
	if rr.Code != http.StatusConflict || decodeBody[apiError](t, rr).Code != "conflict" {
		t.Fatalf("expected 409 conflict, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, rider1, "POST", "/dispatch/orders/missing/claim", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := f.do(t, cust, "POST", "/dispatch/orders/O1/claim", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rr.Code)
	}
}

func TestAdvanceAndTracking(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "O1")
	f.do(t, rider1, "POST", "/dispatch/orders/O1/claim", nil)

	rr := f.do(t, rider1, "POST", "/dispatch/orders/O1/advance", map[string]string{"status": "delivered"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected skip rejected with 409, got %d", rr.Code)
	}
	if rr := f.do(t, rider1, "POST", "/dispatch/orders/O1/advance", map[string]string{"status": "teleported"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
	for _, st := range []string{"preparing", "picked_up"} {
		if rr := f.do(t, rider1, "POST", "/dispatch/orders/O1/advance", map[string]string{"status": st}); rr.Code != http.StatusOK {
			t.Fatalf("advance to %s: %d %s", st, rr.Code, rr.Body.String())
		}
	}

	rr = f.do(t, cust, "GET", "/orders/O1/tracking", nil)
	u := decodeBody[tracking.Update](t, rr)
	if rr.Code != http.StatusOK || u.Estimate != nil {
		t.Fatalf("expected empty tracking without a sample, got %d %+v", rr.Code, u)
	}

	_, _, _ = f.locs.Upsert(context.Background(), models.Sample{RiderID: "R1", Lat: 12.6667, Lng: 123.9667, Timestamp: time.Now().UTC()})
	rr = f.do(t, cust, "GET", "/orders/O1/tracking", nil)
	u = decodeBody[tracking.Update](t, rr)
	if u.Estimate == nil || u.Estimate.DistanceKm != 1.11 || u.Estimate.Minutes != 2 {
		t.Fatalf("expected 1.11 km / 2 min, got %+v", u.Estimate)
	}
	if rr := f.do(t, rider2, "GET", "/orders/O1/tracking", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected other rider forbidden, got %d", rr.Code)
	}
}

func TestCreateAndCancelOrder(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"items":           []map[string]any{{"product_id": "P1", "name": "Pandesal", "quantity": 10, "unit_price": 5}},
		"delivery_fee":    30,
		"dropoff_address": "Tabaco City",
		"payment_method":  "cod",
	}
	rr := f.do(t, cust, "POST", "/orders", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	o := decodeBody[models.Order](t, rr)
	if o.TotalAmount != 80 || o.Status != models.StatusPending {
		t.Fatalf("unexpected order %+v", o)
	}
	if rr := f.do(t, cust, "POST", "/orders", map[string]any{"items": []any{}}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if rr := f.do(t, cust, "POST", "/orders/"+o.ID+"/cancel", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected cancel 200, got %d", rr.Code)
	}
	if rr := f.do(t, cust, "POST", "/orders/"+o.ID+"/cancel", nil); rr.Code != http.StatusConflict {
		t.Fatalf("expected second cancel 409, got %d", rr.Code)
	}
}

func TestSetActiveAndNearby(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, rider1, "PUT", "/riders/R1/active", map[string]bool{"active": false}); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := f.do(t, rider1, "PUT", "/riders/R2/active", map[string]bool{"active": false}); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	f.pending(t, "O1")
	avail := decodeBody[map[string][]models.Candidate](t, f.do(t, rider1, "GET", "/dispatch/available", nil))
	if len(avail["orders"]) != 0 {
		t.Fatalf("inactive rider should see no candidates, got %d", len(avail["orders"]))
	}

	_, _, _ = f.locs.Upsert(context.Background(), models.Sample{RiderID: "R2", Lat: 12.67, Lng: 123.96, Timestamp: time.Now()})
	rr := f.do(t, admin, "GET", "/riders/nearby?lat=12.67&lng=123.96&radiusKm=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	near := decodeBody[map[string][]location.Nearby](t, rr)
	if len(near["riders"]) != 1 || near["riders"][0].RiderID != "R2" {
		t.Fatalf("unexpected nearby result %+v", near)
	}
	if rr := f.do(t, cust, "GET", "/riders/nearby?lat=12.67&lng=123.96", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestReadiness(t *testing.T) {
	f := newFixture(t)
	f.srv.Checks = []Check{{Name: "postgres", Fn: func(ctx context.Context) error { return io.ErrUnexpectedEOF }}}
	rr := f.do(t, models.Actor{}, "GET", "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "postgres") {
		t.Fatalf("expected 503 naming postgres, got %d %s", rr.Code, rr.Body.String())
	}
}
