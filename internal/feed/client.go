// Package feed delivers bid/ask quotes over a reconnecting WebSocket.
package feed

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"grid_hedger/internal/core"
	"grid_hedger/pkg/websocket"

	"github.com/shopspring/decimal"
)

// quoteMessage is the wire form pushed by the quote server
type quoteMessage struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Ts     int64  `json:"ts"`
}

type subscribeRequest struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

// Client implements core.QuoteFeed over a single WebSocket connection.
// Subscriptions survive reconnects: the full set is replayed on connect.
type Client struct {
	ws     *websocket.Client
	logger core.ILogger

	mu        sync.Mutex
	callbacks map[string]func(core.Quote)
}

// NewClient builds a feed client for the given quote server URL
func NewClient(url string, logger core.ILogger) *Client {
	c := &Client{
		logger:    logger.WithField("component", "quote_feed"),
		callbacks: make(map[string]func(core.Quote)),
	}
	c.ws = websocket.NewClient(url, c.handleMessage, c.logger)
	c.ws.SetOnConnected(c.resubscribe)
	return c
}

// Start connects and begins dispatching quotes
func (c *Client) Start() {
	c.ws.Start()
}

// Stop closes the connection
func (c *Client) Stop() {
	c.ws.Stop()
}

// Subscribe registers a callback for one symbol's quotes. A second subscribe
// for the same symbol replaces the callback.
func (c *Client) Subscribe(symbol string, callback func(core.Quote)) error {
	c.mu.Lock()
	c.callbacks[symbol] = callback
	c.mu.Unlock()

	// Send may fail while disconnected; resubscribe replays on connect
	if err := c.ws.Send(subscribeRequest{Op: "subscribe", Symbol: symbol}); err != nil {
		c.logger.Debug("Subscribe deferred until connect", "symbol", symbol, "error", err.Error())
	}
	return nil
}

// Unsubscribe drops the callback for one symbol
func (c *Client) Unsubscribe(symbol string) error {
	c.mu.Lock()
	_, known := c.callbacks[symbol]
	delete(c.callbacks, symbol)
	c.mu.Unlock()
	if !known {
		return nil
	}

	if err := c.ws.Send(subscribeRequest{Op: "unsubscribe", Symbol: symbol}); err != nil {
		c.logger.Debug("Unsubscribe send failed", "symbol", symbol, "error", err.Error())
	}
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.callbacks))
	for symbol := range c.callbacks {
		symbols = append(symbols, symbol)
	}
	c.mu.Unlock()

	for _, symbol := range symbols {
		if err := c.ws.Send(subscribeRequest{Op: "subscribe", Symbol: symbol}); err != nil {
			c.logger.Warn("Resubscribe failed", "symbol", symbol, "error", err.Error())
		}
	}
	if len(symbols) > 0 {
		c.logger.Info("Resubscribed quote symbols", "count", len(symbols))
	}
}

func (c *Client) handleMessage(message []byte) {
	quote, err := parseQuote(message)
	if err != nil {
		c.logger.Warn("Dropping malformed quote", "error", err.Error())
		return
	}

	c.mu.Lock()
	callback := c.callbacks[quote.Symbol]
	c.mu.Unlock()
	if callback != nil {
		callback(quote)
	}
}

func parseQuote(message []byte) (core.Quote, error) {
	var msg quoteMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return core.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	if msg.Symbol == "" {
		return core.Quote{}, fmt.Errorf("quote without symbol")
	}

	bid, err := decimal.NewFromString(msg.Bid)
	if err != nil {
		return core.Quote{}, fmt.Errorf("bad bid %q: %w", msg.Bid, err)
	}
	ask, err := decimal.NewFromString(msg.Ask)
	if err != nil {
		return core.Quote{}, fmt.Errorf("bad ask %q: %w", msg.Ask, err)
	}
	if ask.LessThan(bid) {
		return core.Quote{}, fmt.Errorf("crossed quote: bid %s > ask %s", bid, ask)
	}

	at := time.Now()
	if msg.Ts > 0 {
		at = time.UnixMilli(msg.Ts)
	}
	return core.Quote{Symbol: msg.Symbol, Bid: bid, Ask: ask, Valid: true, At: at}, nil
}
