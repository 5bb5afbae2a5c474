package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// Subscriber is one live WebSocket connection plus the set of session ids
// it is interested in. An empty filter set means every session. Subscribers
// are pure event sinks; they never own sessions.
type Subscriber struct {
	ID   string
	conn *websocket.Conn

	sendCh chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	filter map[string]struct{}
}

func newSubscriber(conn *websocket.Conn, sendBuf int) *Subscriber {
	return &Subscriber{
		ID:     core.NewID(),
		conn:   conn,
		sendCh: make(chan []byte, sendBuf),
		done:   make(chan struct{}),
		filter: make(map[string]struct{}),
	}
}

func (s *Subscriber) addFilter(sessionID string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter[sessionID] = struct{}{}
}

func (s *Subscriber) removeFilter(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filter, sessionID)
}

func (s *Subscriber) clearFilter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = make(map[string]struct{})
}

// matches reports whether an event for sessionID should be delivered.
func (s *Subscriber) matches(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[sessionID]
	return ok
}

// send queues data for the write pump. If the buffer is full the event is
// dropped for this subscriber only.
func (s *Subscriber) send(data []byte, logger logging.Logger) {
	select {
	case s.sendCh <- data:
	case <-s.done:
	default:
		logger.Warn("broadcast.subscriber.buffer_full", "subscriber_id", s.ID)
	}
}

// reply queues a command reply for this subscriber only. Like send it never
// blocks the read loop: a saturated buffer drops the reply.
func (s *Subscriber) reply(v any, logger logging.Logger) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case s.sendCh <- data:
	case <-s.done:
	default:
		logger.Warn("broadcast.subscriber.reply_dropped", "subscriber_id", s.ID)
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
	_ = s.conn.Close()
}

// writePump drains the send channel onto the wire. A write failure closes
// the subscriber so the read loop exits promptly instead of waiting for a
// read deadline.
func (s *Subscriber) writePump(logger logging.Logger) {
	defer s.close()
	for {
		select {
		case data := <-s.sendCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("broadcast.subscriber.write_failed", "subscriber_id", s.ID, "error", err.Error())
				return
			}
		case <-s.done:
			return
		}
	}
}
