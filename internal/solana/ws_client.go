package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned by a LogsClient after Close.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds a single read.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription ID.
	SubscribeTimeout time.Duration
	// BufferSize is the capacity of each notification channel.
	BufferSize int
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        1024,
	}
}

// LogsClient implements WSClient using gorilla/websocket. Subscriptions
// survive reconnects: after a dropped connection every active filter is
// subscribed again and its channel is moved to the new subscription ID.
type LogsClient struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	mu      sync.RWMutex
	subs    map[int64]chan LogNotification
	filters map[int64]LogsFilter

	pendingMu sync.Mutex
	pending   map[uint64]*pendingSub

	dropped atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// Compile-time interface check.
var _ WSClient = (*LogsClient)(nil)

// NewWSClient connects to endpoint. A nil config uses DefaultWSConfig.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*LogsClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &LogsClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[int64]chan LogNotification),
		filters:  make(map[int64]LogsFilter),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *LogsClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs subscribes to transaction logs matching the filter. The
// returned channel is closed by Close. Notifications that find the channel
// full are dropped and counted by Dropped.
func (c *LogsClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	ch := make(chan LogNotification, c.config.BufferSize)
	if _, err := c.subscribe(ctx, filter, ch, 0); err != nil {
		return nil, err
	}
	return ch, nil
}

// pendingSub is a logsSubscribe request awaiting its subscription ID. The
// read loop registers ch under the new ID before signalling confirm, so a
// notification sent right after the confirmation always finds its channel.
type pendingSub struct {
	filter   LogsFilter
	ch       chan LogNotification
	replaces int64 // previous subscription ID after a reconnect, or 0
	confirm  chan int64
}

// subscribe sends a logsSubscribe request and waits for its subscription ID.
func (c *LogsClient) subscribe(ctx context.Context, filter LogsFilter, ch chan LogNotification, replaces int64) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req, err := NewLogsSubscribeRequest(reqID, filter)
	if err != nil {
		return 0, err
	}

	confirm := make(chan int64, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = &pendingSub{filter: filter, ch: ch, replaces: replaces, confirm: confirm}
	c.pendingMu.Unlock()

	// abandon removes the request. When the read loop has already claimed it,
	// the subscription is registered and the confirmation is imminent.
	abandon := func(cause error) (int64, error) {
		c.pendingMu.Lock()
		_, owned := c.pending[reqID]
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
		if owned {
			return 0, cause
		}
		select {
		case subID, ok := <-confirm:
			if ok {
				return subID, nil
			}
		case <-c.done:
		}
		return 0, ErrClientClosed
	}

	if err := c.writeJSON(req); err != nil {
		return abandon(fmt.Errorf("write subscribe: %w", err))
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirm:
		if !ok {
			return 0, ErrClientClosed
		}
		return subID, nil
	case <-timer.C:
		return abandon(fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout))
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		return abandon(ctx.Err())
	}
}

// Dropped returns the number of notifications discarded because a
// subscriber's channel was full.
func (c *LogsClient) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *LogsClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close closes the connection and every subscription channel.
func (c *LogsClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, p := range c.pending {
		close(p.confirm)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	return nil
}

// readLoop dispatches incoming messages and triggers reconnects with
// exponential backoff on read errors.
func (c *LogsClient) readLoop() {
	defer c.wg.Done()

	delay := c.config.ReconnectDelay
	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if !c.reconnecting.Swap(true) {
				c.logger.Printf("ws: read failed, reconnecting in %s: %v", delay, err)
				go c.reconnect(conn, delay)
			}
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		delay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

func (c *LogsClient) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}

// reconnect replaces stale with a fresh connection and resubscribes.
func (c *LogsClient) reconnect(stale *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	if !c.sleep(delay) {
		return
	}

	c.connMu.Lock()
	if c.conn == stale {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		c.logger.Printf("ws: reconnect failed: %v", err)
		return
	}
	c.resubscribeAll()
}

func (c *LogsClient) resubscribeAll() {
	type active struct {
		filter LogsFilter
		ch     chan LogNotification
	}
	c.mu.RLock()
	subs := make(map[int64]active, len(c.subs))
	for id, ch := range c.subs {
		subs[id] = active{filter: c.filters[id], ch: ch}
	}
	c.mu.RUnlock()

	for oldID, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.subscribe(ctx, sub.filter, sub.ch, oldID)
		cancel()
		if err != nil {
			c.logger.Printf("ws: resubscribe %d failed: %v", oldID, err)
		}
	}
}

func (c *LogsClient) handleMessage(message []byte) {
	var notif WSNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == MethodLogsNotification {
		c.handleLogsNotification(&notif)
		return
	}

	var resp WSResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		c.logger.Printf("ws: undecodable message: %v", err)
		return
	}
	if resp.Error != nil {
		c.logger.Printf("ws: request %d failed: %v", resp.ID, resp.Error)
		return
	}

	var subID int64
	if err := json.Unmarshal(resp.Result, &subID); err != nil {
		return
	}
	c.pendingMu.Lock()
	p, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	c.mu.Lock()
	if p.replaces != 0 {
		// Move the channel only if it is still registered under the old ID.
		if cur, live := c.subs[p.replaces]; live && cur == p.ch {
			delete(c.subs, p.replaces)
			delete(c.filters, p.replaces)
			c.subs[subID] = p.ch
			c.filters[subID] = p.filter
		}
	} else {
		c.subs[subID] = p.ch
		c.filters[subID] = p.filter
	}
	c.mu.Unlock()

	p.confirm <- subID
}

// handleLogsNotification never blocks the read loop: a full subscriber
// channel loses the notification.
func (c *LogsClient) handleLogsNotification(notif *WSNotification) {
	if notif.Params == nil {
		return
	}
	value := notif.Params.Result.Value
	n := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.subs[notif.Params.Subscription]
	if !ok {
		return
	}
	select {
	case ch <- n:
	default:
		c.dropped.Add(1)
		c.logger.Printf("ws: subscription %d is full, dropped %s", notif.Params.Subscription, n.Signature)
	}
}

func (c *LogsClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error in readLoop.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
