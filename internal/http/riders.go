package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/joloLG/joloRide/internal/location"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/observability"
	"github.com/joloLG/joloRide/internal/storage"
)

// canActAsRider reports whether actor may write or read data owned by the
// rider riderID.
func canActAsRider(actor models.Actor, riderID string) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleRider:
		return actor.ID == riderID
	case models.RoleCustomer:
		return false
	}
	return false
}

func (s *Server) requireRiderProfile(r *http.Request, riderID string) error {
	p, err := s.Profiles.GetProfile(r.Context(), riderID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", riderID, errRiderNotFound)
	}
	if err != nil {
		return err
	}
	if p.Role != models.RoleRider {
		return fmt.Errorf("%s is not a rider: %w", riderID, errRiderNotFound)
	}
	return nil
}

type locationResponse struct {
	Success  bool          `json:"success"`
	Stale    bool          `json:"stale"`
	Location models.Sample `json:"location"`
}

func (s *Server) handlePostLocation(w http.ResponseWriter, r *http.Request) {
	var body models.LocationUpdate
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validateBody(body); err != nil {
		observability.LocationSamplesTotal.WithLabelValues("invalid").Inc()
		s.writeError(w, r, err)
		return
	}
	if !canActAsRider(actorFrom(r), body.RiderID) {
		s.writeError(w, r, errForbidden)
		return
	}
	ctx := r.Context()
	if err := s.requireRiderProfile(r, body.RiderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.OrderID != "" {
		if _, err := s.Orders.GetOrder(ctx, body.OrderID); err != nil {
			s.writeError(w, r, fmt.Errorf("order %s: %w", body.OrderID, err))
			return
		}
	}

	sample := body.Sample(s.now())
	cur, applied, err := s.Locations.Upsert(ctx, sample)
	if err != nil {
		observability.LocationSamplesTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, fmt.Errorf("store location: %w", err))
		return
	}
	result := "accepted"
	if !applied {
		result = "stale"
	}
	observability.LocationSamplesTotal.WithLabelValues(result).Inc()

	if sample.OrderID != "" && !s.archivesHistory() {
		if err := s.Locations.AppendHistory(ctx, sample); err != nil {
			s.logger.Warn("location history append failed", "rider_id", sample.RiderID, "order_id", sample.OrderID, "error", err)
		}
	}
	if s.LocationLog != nil {
		if err := s.LocationLog.PublishLocation(ctx, sample); err != nil {
			s.logger.Warn("location publish failed", "rider_id", sample.RiderID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, locationResponse{Success: true, Stale: !applied, Location: cur})
}

// archivesHistory reports whether trail points reach history through the
// location log instead of the handler.
func (s *Server) archivesHistory() bool {
	return s.HistoryArchived && s.LocationLog != nil
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	riderID := r.URL.Query().Get("riderId")
	if riderID == "" {
		s.writeError(w, r, badRequest("riderId is required"))
		return
	}
	cur, err := s.Locations.Current(r.Context(), riderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": cur})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["id"]
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		s.writeError(w, r, badRequest("orderId is required"))
		return
	}
	actor := actorFrom(r)
	if !canActAsRider(actor, riderID) {
		// a customer may replay the trail of their own order
		if _, err := s.Engine.Get(r.Context(), actor, orderID); err != nil || actor.Role != models.RoleCustomer {
			s.writeError(w, r, errForbidden)
			return
		}
	}
	trail, err := s.Locations.History(r.Context(), riderID, orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rider_id": riderID, "order_id": orderID, "history": trail})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if actorFrom(r).Role != models.RoleAdmin {
		s.writeError(w, r, errForbidden)
		return
	}
	prox, ok := s.Locations.(location.Proximity)
	if !ok {
		s.writeError(w, r, errNotImplemented)
		return
	}
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		s.writeError(w, r, badRequest("lat and lng must be valid coordinates"))
		return
	}
	radius, limit := 5.0, 20
	if v := q.Get("radiusKm"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			s.writeError(w, r, badRequest("radiusKm must be a positive number"))
			return
		}
		radius = f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}
	near, err := prox.Nearby(r.Context(), models.Coord{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"riders": near})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["id"]
	if !canActAsRider(actorFrom(r), riderID) {
		s.writeError(w, r, errForbidden)
		return
	}
	var body struct {
		Active *bool `json:"active" validate:"required"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validateBody(body); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Board.SetActive(r.Context(), riderID, *body.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rider_id": p.ID, "active": p.Active})
}
