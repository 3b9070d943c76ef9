package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/joloLG/joloRide/internal/dispatch"
	"github.com/joloLG/joloRide/internal/models"
)

// riderOnly returns the calling rider's id, or writes 403 for anyone else.
func (s *Server) riderOnly(w http.ResponseWriter, r *http.Request) (string, bool) {
	a := actorFrom(r)
	switch a.Role {
	case models.RoleRider:
		return a.ID, true
	case models.RoleCustomer, models.RoleAdmin:
	}
	s.writeError(w, r, errForbidden)
	return "", false
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderOnly(w, r)
	if !ok {
		return
	}
	snap, err := s.Board.Snapshot(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderOnly(w, r)
	if !ok {
		return
	}
	list, err := s.Board.ListAvailable(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderOnly(w, r)
	if !ok {
		return
	}
	list, err := s.Board.ListMine(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderOnly(w, r)
	if !ok {
		return
	}
	st, err := s.Board.Stats(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) boardAction(w http.ResponseWriter, r *http.Request, fn func(riderID, orderID string) (dispatch.Result, error)) {
	id, ok := s.riderOnly(w, r)
	if !ok {
		return
	}
	res, err := fn(id, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.boardAction(w, r, func(riderID, orderID string) (dispatch.Result, error) {
		return s.Board.Claim(r.Context(), riderID, orderID)
	})
}

func (s *Server) handlePass(w http.ResponseWriter, r *http.Request) {
	s.boardAction(w, r, func(riderID, orderID string) (dispatch.Result, error) {
		return s.Board.Pass(r.Context(), riderID, orderID)
	})
}

func (s *Server) handleBoardCancel(w http.ResponseWriter, r *http.Request) {
	s.boardAction(w, r, func(riderID, orderID string) (dispatch.Result, error) {
		return s.Board.Cancel(r.Context(), riderID, orderID)
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status" validate:"required"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validateBody(body); err != nil {
		s.writeError(w, r, err)
		return
	}
	next, ok := models.ParseStatus(body.Status)
	if !ok {
		s.writeError(w, r, badRequest("unknown status "+body.Status))
		return
	}
	s.boardAction(w, r, func(riderID, orderID string) (dispatch.Result, error) {
		return s.Board.Advance(r.Context(), riderID, orderID, next)
	})
}
