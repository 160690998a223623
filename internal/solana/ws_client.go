package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns the default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 60 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// subscription tracks one logs subscription across reconnects.
type subscription struct {
	filter LogsFilter
	ch     chan LogNotification
	subID  int64 // current server-side id, 0 while resubscribing
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint   string
	config     WSConfig
	commitment Commitment
	log        *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs holds subscriptions in registration order; bySubID maps the
	// live server-side subscription ids back to them.
	subsMu  sync.Mutex
	subs    []*subscription
	bySubID map[int64]*subscription

	// pendingSubs maps request id to the subscription awaiting its id.
	pendingMu   sync.Mutex
	pendingSubs map[uint64]chan int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, commitment Commitment, cfg *WSConfig, log *zap.Logger) (*WSClientImpl, error) {
	config := DefaultWSConfig()
	if cfg != nil {
		config = *cfg
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      config,
		commitment:  commitment,
		log:         log,
		bySubID:     make(map[int64]*subscription),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *wsNotifyParams `json:"params"`
}

type wsNotifyParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Logs      []string    `json:"logs"`
			Err       interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	sub := &subscription{
		filter: filter,
		// Buffered so a burst does not stall the read loop; the stream
		// manager applies the lossy policy downstream.
		ch: make(chan LogNotification, 4096),
	}

	subID, err := c.sendSubscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub.subID = subID
	c.subsMu.Lock()
	c.subs = append(c.subs, sub)
	c.bySubID[subID] = sub
	c.subsMu.Unlock()

	return sub.ch, nil
}

// sendSubscribe issues logsSubscribe and waits for the subscription id.
func (c *WSClientImpl) sendSubscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	reqID := c.requestID.Add(1)

	mentions := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentions["mentions"] = filter.Mentions
	} else {
		mentions["all"] = nil
	}

	commitment := c.commitment
	if filter.Commitment != "" {
		commitment = filter.Commitment
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": string(commitment)},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		cleanup()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(30 * time.Second):
		cleanup()
		return 0, fmt.Errorf("subscription timeout")
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		cleanup()
		return 0, ctx.Err()
	}
}

// readLoop consumes messages and dispatches notifications; on read errors
// it triggers reconnection with jittered exponential backoff.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	boff := &backoff.Backoff{
		Min:    c.config.ReconnectDelay,
		Max:    c.config.MaxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			if !c.reconnect(boff) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Warn("websocket read failed, reconnecting", zap.Error(err))
			c.connMu.Lock()
			conn.Close()
			c.conn = nil
			c.connMu.Unlock()
			continue
		}
		boff.Reset()

		var resp wsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.log.Debug("unparseable websocket message", zap.Error(err))
			continue
		}

		switch {
		case resp.Method == "logsNotification" && resp.Params != nil:
			c.dispatch(resp.Params)
		case resp.ID != 0 && resp.Result != nil:
			var subID int64
			if err := json.Unmarshal(resp.Result, &subID); err != nil {
				continue
			}
			c.pendingMu.Lock()
			if ch, ok := c.pendingSubs[resp.ID]; ok {
				ch <- subID
				delete(c.pendingSubs, resp.ID)
			}
			c.pendingMu.Unlock()
		}
	}
}

// dispatch routes a notification to its subscription channel. Full
// channels drop the notification; the aggregator's freshness window
// compensates for the gap.
func (c *WSClientImpl) dispatch(params *wsNotifyParams) {
	c.subsMu.Lock()
	sub, ok := c.bySubID[params.Subscription]
	c.subsMu.Unlock()
	if !ok {
		return
	}

	note := LogNotification{
		Signature: params.Result.Value.Signature,
		Slot:      params.Result.Context.Slot,
		Logs:      params.Result.Value.Logs,
		Err:       params.Result.Value.Err,
	}

	select {
	case sub.ch <- note:
	default:
	}
}

// reconnect re-dials and re-establishes subscriptions in registration
// order. Returns false when the client is closing.
func (c *WSClientImpl) reconnect(boff *backoff.Backoff) bool {
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(boff.Duration()):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.log.Warn("reconnect failed", zap.Error(err))
			continue
		}

		c.subsMu.Lock()
		ordered := append([]*subscription(nil), c.subs...)
		c.bySubID = make(map[int64]*subscription, len(ordered))
		c.subsMu.Unlock()

		ok := true
		for _, sub := range ordered {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			subID, err := c.sendSubscribe(ctx, sub.filter)
			cancel()
			if err != nil {
				c.log.Warn("resubscribe failed", zap.Error(err))
				ok = false
				break
			}
			c.subsMu.Lock()
			sub.subID = subID
			c.bySubID[subID] = sub
			c.subsMu.Unlock()
		}
		if !ok {
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()
			continue
		}

		c.log.Info("websocket reconnected",
			zap.String("endpoint", c.endpoint),
			zap.Int("subscriptions", len(ordered)))
		return true
	}
}

// pingLoop keeps the connection alive.
func (c *WSClientImpl) pingLoop() {
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
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

// Close shuts down the connection and all subscription channels.
func (c *WSClientImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for _, sub := range c.subs {
		close(sub.ch)
	}
	c.subs = nil
	c.bySubID = make(map[int64]*subscription)
	c.subsMu.Unlock()

	return nil
}

var _ WSClient = (*WSClientImpl)(nil)
