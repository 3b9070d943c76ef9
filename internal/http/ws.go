package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/joloLG/joloRide/internal/dispatch"
	"github.com/joloLG/joloRide/internal/feed"
	"github.com/joloLG/joloRide/internal/tracking"
)

// upgrade switches to a WebSocket and returns a context that ends when the
// peer disconnects.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*feed.Session, context.Context, context.CancelFunc, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "route", routeTemplate(r), "error", err)
		return nil, nil, nil, false
	}
	sess := feed.NewSession(conn)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	go func() {
		select {
		case <-sess.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	return sess, ctx, cancel, true
}

func (s *Server) handleDispatchWS(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderOnly(w, r)
	if !ok {
		return
	}
	// fail before upgrading so the client gets a proper status
	if _, err := s.Board.Snapshot(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, ctx, cancel, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer cancel()
	defer sess.Close()
	err := s.Board.Watch(ctx, id, func(snap dispatch.Snapshot) error { return sess.Send(snap) })
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("dispatch stream ended", "rider_id", id, "error", err)
	}
}

func (s *Server) handleTrackingWS(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	actor := actorFrom(r)
	if _, err := s.Engine.Get(r.Context(), actor, orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, ctx, cancel, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer cancel()
	defer sess.Close()
	err := s.Tracking.Run(ctx, orderID, func(u tracking.Update) error { return sess.Send(u) })
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("tracking stream ended", "order_id", orderID, "error", err)
	}
	_ = sess.Send(map[string]any{"order_id": orderID, "done": true})
}
