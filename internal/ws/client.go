package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmchat/internal/event"
	"github.com/dmchat/internal/logger"
)

// Options — параметры соединения (из config: WS_*).
type Options struct {
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client is one authenticated WebSocket connection.
// Lifecycle: NewClient -> Hub.Register -> Start -> [readPump, writePump] -> Close -> Wait.
// Registering first keeps the connect event ahead of any disconnect the pumps may post.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan event.Outgoing
	userID string
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, opts Options) *Client {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan event.Outgoing, opts.SendBufferSize),
		userID: userID,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) Start() {
	c.wg.Add(2)
	go c.writePump(c.ctx)
	go c.readPump(c.ctx)
}

func (c *Client) Wait() {
	c.wg.Wait()
}

// Send queues ev without blocking. A full buffer means the peer is not reading:
// the client is closed, and its read pump reports the disconnect to the hub.
func (c *Client) Send(ev event.Outgoing) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
		return false
	}
}

// Close is safe to call repeatedly from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.userID, err)
			}
			return
		}

		var msg event.Incoming
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Errorf("ws unmarshal error user=%s: %v", c.userID, err)
			c.Send(event.Err("invalid json"))
			continue
		}
		c.hub.HandleMessage(c, msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-c.done:
			return
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(ev event.Outgoing) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
		return err
	}
	buf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(buf)
	buf.Reset()
	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		// битое событие пропускаем, соединение живо
		logger.Errorf("ws marshal error user=%s: %v", c.userID, err)
		return nil
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
