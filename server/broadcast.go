package server

// This file holds the event hub: websocket subscribers receive execution,
// approval, gateway and kill-switch events as they happen.

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/pulse/schedule"
)

// Event types published on /ws
const (
	EventExecutionStarted  = "execution.started"
	EventExecutionFinished = "execution.finished"
	EventApprovalCreated   = "approval.created"
	EventApprovalResolved  = "approval.resolved"
	EventGatewayExecuted   = "gateway.executed"
	EventKillSwitchChanged = "killswitch.changed"
	EventPong              = "pong"
)

// MaxClients bounds concurrent event subscribers
const MaxClients = 100

// Event is one message on the stream
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Hub fans events out to websocket clients. It implements the broadcaster
// interfaces of the scheduler, the approval gate and the gateway.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	drops   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

// NewHub creates an empty hub
func NewHub(log *zap.SugaredLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.Named("hub"),
	}
}

var (
	_ schedule.ExecutionBroadcaster = (*Hub)(nil)
	_ approval.Broadcaster          = (*Hub)(nil)
	_ execution.Broadcaster         = (*Hub)(nil)
)

// registerClient adds c, refusing it when the hub is full or stopped
func (h *Hub) registerClient(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	if len(h.clients) >= MaxClients {
		h.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", c.id,
			"max_clients", MaxClients)
		return false
	}
	h.clients[c] = true
	h.logger.Infow("Client connected", "client_id", c.id, "total_clients", len(h.clients))
	return true
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.logger.Infow("Client disconnected", "client_id", c.id, "total_clients", total)
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Drops returns how many events were dropped for slow clients
func (h *Hub) Drops() int64 {
	return h.drops.Load()
}

// Publish sends an event to every client and returns how many accepted it.
// Slow clients lose the event rather than blocking the publisher.
func (h *Hub) Publish(eventType string, data interface{}) int {
	ev := &Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		if c.enqueue(ev) {
			sent++
		} else {
			h.drops.Add(1)
		}
	}
	if dropped := len(h.clients) - sent; dropped > 0 {
		h.logger.Debugw("Event dropped for slow clients", "type", eventType, "dropped", dropped)
	}
	return sent
}

// sendTo delivers ev to one client if it is still registered
func (h *Hub) sendTo(c *Client, ev *Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	return c.enqueue(ev)
}

// Stop disconnects every client
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// BroadcastExecutionStarted publishes a job run that just began
func (h *Hub) BroadcastExecutionStarted(exec *schedule.Execution) {
	h.Publish(EventExecutionStarted, exec)
}

// BroadcastExecutionFinished publishes a job run that reached a terminal status
func (h *Hub) BroadcastExecutionFinished(exec *schedule.Execution) {
	h.Publish(EventExecutionFinished, exec)
}

// BroadcastApprovalCreated publishes a new pending request
func (h *Hub) BroadcastApprovalCreated(req *approval.Request) {
	h.Publish(EventApprovalCreated, req)
}

// BroadcastApprovalResolved publishes an approve, reject or expiry
func (h *Hub) BroadcastApprovalResolved(req *approval.Request) {
	h.Publish(EventApprovalResolved, req)
}

// BroadcastGatewayExecuted publishes a dispatched (not replayed) outcome
func (h *Hub) BroadcastGatewayExecuted(outcome *execution.Outcome) {
	h.Publish(EventGatewayExecuted, outcome)
}

// BroadcastKillSwitchChanged publishes every kill-switch write
func (h *Hub) BroadcastKillSwitchChanged(state execution.KillSwitchState) {
	h.Publish(EventKillSwitchChanged, state)
}
