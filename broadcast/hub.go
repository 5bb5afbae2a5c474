// Package broadcast fans the event bus out to live WebSocket subscribers.
// Each subscriber carries an optional session-id filter (empty filter means
// everything) and a buffered send channel drained by a dedicated write pump;
// a subscriber that cannot keep up has events dropped rather than blocking
// delivery to the others.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentdock/bus"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// MessageSender forwards a subscriber's send command into a live session's
// prompt stream. Implemented by the engine.
type MessageSender interface {
	SendMessage(ctx context.Context, sessionID, text string) bool
}

const (
	writeWait        = 10 * time.Second
	defaultSendBuf   = 256
	closeGracePeriod = 5 * time.Second
)

// Command is an inbound subscriber message.
type Command struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

type ack struct {
	Type      string `json:"type"`
	Op        string `json:"op"`
	SessionID string `json:"sessionId,omitempty"`
	OK        bool   `json:"ok"`
}

type errorReply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Options configure a Hub.
type Options struct {
	// SendBuffer is the per-subscriber channel buffer size.
	SendBuffer int
	Logger     logging.Logger
	Upgrader   websocket.Upgrader
}

// Hub owns the subscriber set and the bus attachment. Create one per
// process and Close it at shutdown.
type Hub struct {
	events *bus.Bus
	sender MessageSender
	logger logging.Logger

	sendBuf  int
	upgrader websocket.Upgrader
	busID    string

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewHub creates a Hub attached to the bus.
func NewHub(events *bus.Bus, sender MessageSender, optFns ...func(o *Options)) *Hub {
	opts := Options{
		SendBuffer: defaultSendBuf,
		Logger:     logging.NoOpLogger{},
		Upgrader:   websocket.Upgrader{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &Hub{
		events:   events,
		sender:   sender,
		logger:   opts.Logger,
		sendBuf:  opts.SendBuffer,
		upgrader: opts.Upgrader,
		subs:     make(map[string]*Subscriber),
	}
	h.busID = events.Attach(h.handleEvent)
	return h
}

// ServeHTTP upgrades the request to a WebSocket subscriber connection and
// serves its command loop until disconnect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("broadcast.upgrade.failed", "error", err.Error())
		return
	}
	sub := h.attach(conn)
	defer h.Detach(sub.ID)
	h.readLoop(r.Context(), sub)
}

// attach registers a connection as a subscriber with an empty filter and
// starts its write pump.
func (h *Hub) attach(conn *websocket.Conn) *Subscriber {
	sub := newSubscriber(conn, h.sendBuf)
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	go sub.writePump(h.logger)

	h.logger.Info("broadcast.subscriber.attached", "subscriber_id", sub.ID)
	return sub
}

// Detach removes a subscriber and closes its connection.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.close()
	h.logger.Info("broadcast.subscriber.detached", "subscriber_id", id)
}

// Close detaches the hub from the bus and disconnects all subscribers.
func (h *Hub) Close() {
	h.events.Detach(h.busID)

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(closeGracePeriod),
		)
		sub.close()
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// handleEvent delivers one published event to every subscriber whose filter
// matches. Delivery to a saturated or dead subscriber is skipped, not
// retried, and never blocks the others.
func (h *Hub) handleEvent(ev core.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("broadcast.marshal.failed", "error", err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.matches(ev.SessionID) {
			sub.send(data, h.logger)
		}
	}
}

// readLoop consumes subscriber commands until the connection drops. Acks
// and error replies go to the originating subscriber only, never through
// the broadcast path.
func (h *Hub) readLoop(ctx context.Context, sub *Subscriber) {
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			sub.reply(errorReply{Type: "error", Error: "malformed command"}, h.logger)
			continue
		}

		switch cmd.Type {
		case "subscribe":
			sub.addFilter(cmd.SessionID)
			sub.reply(ack{Type: "ack", Op: "subscribe", SessionID: cmd.SessionID, OK: true}, h.logger)
		case "unsubscribe":
			sub.removeFilter(cmd.SessionID)
			sub.reply(ack{Type: "ack", Op: "unsubscribe", SessionID: cmd.SessionID, OK: true}, h.logger)
		case "subscribe_all":
			sub.clearFilter()
			sub.reply(ack{Type: "ack", Op: "subscribe_all", OK: true}, h.logger)
		case "send":
			ok := h.sender != nil && h.sender.SendMessage(ctx, cmd.SessionID, cmd.Message)
			sub.reply(ack{Type: "ack", Op: "send", SessionID: cmd.SessionID, OK: ok}, h.logger)
		default:
			sub.reply(errorReply{Type: "error", Error: "unknown command type: " + cmd.Type}, h.logger)
		}
	}
}
