package ws

import (
	"context"
	"sync"
	"time"

	"github.com/dmchat/internal/event"
	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/presence"
)

const (
	eventBufSize = 256
	ackTimeout   = 5 * time.Second
)

// Acknowledger помечает сообщение прочитанным по подтверждению получателя (chat.Service).
type Acknowledger interface {
	Acknowledge(ctx context.Context, viewerID, messageID string) error
}

type kind int

const (
	kindConnected kind = iota
	kindDisconnected
	kindAcknowledged
)

// hubEvent — всё, что меняет состояние hub, приходит одним типизированным потоком.
type hubEvent struct {
	kind      kind
	client    *Client
	messageID string
}

// Hub is the single owner of connection lifecycle: every connect, disconnect and
// acknowledgement is consumed by Run, one at a time.
type Hub struct {
	reg         *presence.Registry
	broadcaster *presence.Broadcaster
	acks        Acknowledger
	maxConns    int

	events chan hubEvent
	done   chan struct{}

	// clients tracks every started client (including replaced ones) for shutdown.
	mu      sync.Mutex
	clients map[*Client]struct{}
	ackWg   sync.WaitGroup
}

func NewHub(reg *presence.Registry, acks Acknowledger, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		reg:         reg,
		broadcaster: presence.NewBroadcaster(reg),
		acks:        acks,
		maxConns:    maxConns,
		events:      make(chan hubEvent, eventBufSize),
		done:        make(chan struct{}),
		clients:     make(map[*Client]struct{}),
	}
}

// Run consumes hub events until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// после close(done) pumps больше не ставят события в очередь
			close(h.done)
			h.shutdown()
			return
		case ev := <-h.events:
			h.dispatch(ctx, ev)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, ev hubEvent) {
	switch ev.kind {
	case kindConnected:
		h.connect(ev.client)
	case kindDisconnected:
		h.disconnect(ev.client)
	case kindAcknowledged:
		h.acknowledge(ctx, ev.client, ev.messageID)
	}
}

func (h *Hub) connect(c *Client) {
	if _, known := h.reg.Lookup(c.userID); !known && h.reg.Len() >= h.maxConns {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if prev := h.reg.Register(c.userID, c); prev != nil {
		// переподключение: старый сокет больше не используется
		prev.Close()
	}
	logger.Infof("ws connected user=%s online=%d", c.userID, h.reg.Len())
	h.broadcaster.Broadcast()
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	removed := h.reg.UnregisterConn(c.userID, c)
	c.Close()
	if !removed {
		return
	}
	logger.Infof("ws disconnected user=%s online=%d", c.userID, h.reg.Len())
	h.broadcaster.Broadcast()
}

// acknowledge runs persistence off the dispatcher so a slow database never delays presence.
func (h *Hub) acknowledge(ctx context.Context, c *Client, messageID string) {
	if h.acks == nil {
		return
	}
	h.ackWg.Add(1)
	go func() {
		defer h.ackWg.Done()
		actx, cancel := context.WithTimeout(ctx, ackTimeout)
		defer cancel()
		if err := h.acks.Acknowledge(actx, c.userID, messageID); err != nil {
			logger.Errorf("ws acknowledge message=%s user=%s: %v", messageID, c.userID, err)
			c.Send(event.Err("failed to acknowledge"))
		}
	}()
}

func (h *Hub) shutdown() {
	h.reg.Drain()
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
	h.ackWg.Wait()
}

func (h *Hub) post(ev hubEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Register hands a started client to the dispatcher.
func (h *Hub) Register(c *Client) {
	if !h.post(hubEvent{kind: kindConnected, client: c}) {
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	h.post(hubEvent{kind: kindDisconnected, client: c})
}

func (h *Hub) Acknowledge(c *Client, messageID string) {
	h.post(hubEvent{kind: kindAcknowledged, client: c, messageID: messageID})
}

// HandleMessage разбирает входящее событие клиента.
func (h *Hub) HandleMessage(c *Client, msg event.Incoming) {
	switch msg.Type {
	case event.Acknowledge:
		if msg.MessageID == "" {
			c.Send(event.Err("message_id required"))
			return
		}
		h.Acknowledge(c, msg.MessageID)
	default:
		c.Send(event.Err("unknown event type"))
	}
}

// Online returns the current presence snapshot.
func (h *Hub) Online() []string {
	return h.reg.Snapshot()
}
