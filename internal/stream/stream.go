// Package stream maintains a websocket subscription to the venue's
// mini-ticker feed and keeps the live price cache current.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/cache"
	"github.com/gmcnicol/pairtrader/internal/config"
)

const defaultStreamURL = "wss://stream.binance.com:9443/stream"

// Client manages the websocket connection for real-time prices.
type Client struct {
	logger   *zap.Logger
	cache    *cache.Cache
	url      string
	symbols  []string
	conn     *websocket.Conn
	mu       sync.Mutex
	delay    time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	isopen   bool
	handlers []Handler
}

// Handler is a callback invoked for every price update.
type Handler func(symbol string, price decimal.Decimal)

// streamEnvelope is the combined-stream frame: the stream name plus the
// raw payload.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// miniTickerMessage is the 24hr mini-ticker payload. Prices arrive as
// strings.
type miniTickerMessage struct {
	EventType string          `json:"e"`
	Symbol    string          `json:"s"`
	Close     decimal.Decimal `json:"c"`
}

// NewClient creates a streaming client for the given symbols.
func NewClient(cfg *config.Config, c *cache.Cache, symbols []string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		logger:  logger.With(zap.String("component", "stream")),
		cache:   c,
		url:     defaultStreamURL,
		symbols: symbols,
		delay:   cfg.StreamReconnectDelay,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the websocket connection and starts the read loop.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.isopen = false
	}

	wsURL := c.url + "?streams=" + c.streamNames()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	c.isopen = true

	go c.handleMessages(conn)

	c.logger.Info("Websocket connected",
		zap.String("url", c.url),
		zap.Int("symbols", len(c.symbols)))
	return nil
}

// streamNames builds the combined-stream path: lowercase symbols joined
// with "/" and suffixed with the mini-ticker channel.
func (c *Client) streamNames() string {
	names := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		names = append(names, strings.ToLower(s)+"@miniTicker")
	}
	return strings.Join(names, "/")
}

// RegisterHandler adds a callback for price updates.
func (c *Client) RegisterHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Close terminates the connection and stops reconnecting.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.isopen = false
}

// handleMessages processes incoming frames until the connection drops,
// then schedules a reconnect.
func (c *Client) handleMessages(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.isopen = false
		c.mu.Unlock()
		c.reconnect()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var env streamEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Error("Websocket read error", zap.Error(err))
				}
				return
			}
			c.processMessage(env.Data)
		}
	}
}

// processMessage handles a single mini-ticker payload.
func (c *Client) processMessage(raw json.RawMessage) {
	var msg miniTickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Error("Failed to parse ticker message", zap.Error(err))
		return
	}
	if msg.Symbol == "" {
		return
	}

	c.cache.SetPrice(msg.Symbol, msg.Close)

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()
	for _, h := range handlers {
		h(msg.Symbol, msg.Close)
	}
}

// reconnect retries the connection with a fixed delay until it succeeds
// or the client is closed.
func (c *Client) reconnect() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.delay):
		}

		c.logger.Info("Attempting websocket reconnection")
		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			continue
		}
		return
	}
}
