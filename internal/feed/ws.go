package feed

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Session represents a connected display. Writes are serialized; Done closes
// when the peer goes away.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func NewSession(conn *websocket.Conn) *Session {
	s := &Session{conn: conn, done: make(chan struct{})}
	go s.readLoop()
	return s
}

// readLoop discards inbound frames; its only job is noticing disconnects.
func (s *Session) readLoop() {
	defer s.Close()
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
