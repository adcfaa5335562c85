// Package logstream serves the logsSubscribe PubSub method over WebSocket,
// pushing a logsNotification for every transaction the bank executes.
package logstream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// JSON-RPC error codes.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Options configures a Hub.
type Options struct {
	// BufferSize is the per-client outbound queue. A client whose queue is
	// full is disconnected. Defaults to 256.
	BufferSize int
	// WriteTimeout bounds a single frame write. Defaults to 10s.
	WriteTimeout time.Duration
	Logger       *log.Logger
}

// Hub fans transaction logs out to WebSocket subscribers. It is a
// bank.ReceiptSink and an http.Handler.
type Hub struct {
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
	logger       *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	nextSubID atomic.Int64
	wg        sync.WaitGroup
}

// Compile-time interface checks.
var (
	_ bank.ReceiptSink = (*Hub)(nil)
	_ http.Handler     = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub(opts Options) *Hub {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize:   opts.BufferSize,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}
}

// client is one WebSocket connection. All writes go through send so that
// a single goroutine owns the connection's write side.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan interface{}

	mu   sync.Mutex
	subs map[int64]solana.LogsFilter
	gone bool
}

// ServeHTTP upgrades the request and serves PubSub requests until the peer
// disconnects or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("logstream: upgrade: %v", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan interface{}, h.bufferSize),
		subs: make(map[int64]solana.LogsFilter),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(1)
	h.mu.Unlock()
	observability.UpdateLogSubscribers(count)

	go c.writeLoop()
	c.readLoop()
}

// OnTransaction delivers meta to every subscription whose filter matches.
func (h *Hub) OnTransaction(_ context.Context, meta *solana.TransactionMeta) {
	n := solana.LogNotification{
		Signature: meta.Signature,
		Slot:      meta.Slot,
		Logs:      meta.LogMessages,
	}
	if meta.Err != nil {
		n.Err = meta.Err.Error()
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		for id, filter := range c.subs {
			if !filter.Matches(meta.AccountKeys) {
				continue
			}
			if !c.enqueueLocked(solana.NewLogsNotification(id, n)) {
				break
			}
			observability.RecordLogNotification()
		}
		c.mu.Unlock()
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines to exit.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		c.disconnectLocked()
		c.mu.Unlock()
	}
	h.wg.Wait()
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	observability.UpdateLogSubscribers(count)
}

func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.disconnectLocked()
		c.mu.Unlock()
		c.hub.remove(c)
	}()

	for {
		var req solana.WSRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Printf("logstream: read: %v", err)
			}
			return
		}
		c.handle(&req)
	}
}

func (c *client) handle(req *solana.WSRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Method {
	case solana.MethodLogsSubscribe:
		filter, err := solana.ParseLogsFilter(req.Params)
		if err != nil {
			c.enqueueLocked(errorResponse(req.ID, codeInvalidParams, err.Error()))
			return
		}
		id := c.hub.nextSubID.Add(1)
		c.subs[id] = filter
		c.enqueueLocked(resultResponse(req.ID, id))

	case solana.MethodLogsUnsubscribe:
		var id int64
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &id) != nil {
			c.enqueueLocked(errorResponse(req.ID, codeInvalidParams, "expected subscription id"))
			return
		}
		_, ok := c.subs[id]
		delete(c.subs, id)
		c.enqueueLocked(resultResponse(req.ID, ok))

	default:
		c.enqueueLocked(errorResponse(req.ID, codeMethodNotFound, "Method not found"))
	}
}

// enqueueLocked queues msg without blocking. A full queue disconnects the
// client; the return value reports whether the client is still connected.
func (c *client) enqueueLocked(msg interface{}) bool {
	if c.gone {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.hub.logger.Printf("logstream: dropping slow subscriber %s", c.conn.RemoteAddr())
		c.disconnectLocked()
		return false
	}
}

func (c *client) disconnectLocked() {
	if c.gone {
		return
	}
	c.gone = true
	close(c.send)
}

func (c *client) writeLoop() {
	defer c.hub.wg.Done()
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.hub.logger.Printf("logstream: write: %v", err)
			// Drain so enqueue never blocks; readLoop exits once the
			// connection is closed.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func resultResponse(id uint64, result interface{}) *solana.WSResponse {
	raw, _ := json.Marshal(result)
	return &solana.WSResponse{JSONRPC: "2.0", ID: id, Result: raw}
}

func errorResponse(id uint64, code int, message string) *solana.WSResponse {
	return &solana.WSResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &solana.RPCError{Code: code, Message: message},
	}
}
