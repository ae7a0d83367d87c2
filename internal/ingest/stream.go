package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/polywatch/engine/internal/store"
)

// Reconnection and heartbeat tuning.
const (
	initialBackoff   = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterPercent    = 0.2
	heartbeatTimeout = 60 * time.Second
	writeTimeout     = 10 * time.Second
)

// wsTrade is a trade event from the market channel. Field presence
// varies between message variants, so everything is optional.
type wsTrade struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Price        json.RawMessage `json:"price"`
	Size         json.RawMessage `json:"size"`
	Outcome      string          `json:"outcome"`
	Maker        string          `json:"maker"`
	MakerAddress string          `json:"maker_address"`
	ProxyWallet  string          `json:"proxyWallet"`
	Timestamp    string          `json:"timestamp"`
}

// LiveFeed maintains a WebSocket subscription to the Polymarket market
// channel and records trade events into a TradeBuffer. It is a pure
// supplement to REST polling: losing the connection degrades freshness,
// never correctness.
type LiveFeed struct {
	url    string
	buffer *TradeBuffer

	conn   *websocket.Conn
	connMu sync.Mutex

	// assetIndex maps outcome token IDs to market/condition IDs.
	assetIndex   map[string]string
	assetIndexMu sync.RWMutex

	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLiveFeed creates a feed writing into buffer.
func NewLiveFeed(url string, buffer *TradeBuffer) *LiveFeed {
	return &LiveFeed{
		url:        url,
		buffer:     buffer,
		assetIndex: make(map[string]string),
		backoff:    initialBackoff,
		stopChan:   make(chan struct{}),
	}
}

// SetAssetIndex replaces the token-to-market mapping used for
// subscription and event routing.
func (f *LiveFeed) SetAssetIndex(index map[string]string) {
	f.assetIndexMu.Lock()
	defer f.assetIndexMu.Unlock()
	f.assetIndex = index
}

// Start begins the listener with automatic reconnection.
func (f *LiveFeed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.runLoop(ctx)
}

// Stop shuts the feed down and waits for the read loop to exit.
func (f *LiveFeed) Stop() {
	close(f.stopChan)
	f.closeConnection()
	f.wg.Wait()
}

// runLoop handles connection, reading, and reconnection with backoff.
func (f *LiveFeed) runLoop(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			slog.Error("live_feed_connect_failed", "error", err, "backoff", f.backoff)
			f.waitBackoff(ctx)
			continue
		}

		if err := f.readLoop(ctx); err != nil {
			slog.Warn("live_feed_read_error", "error", err)
		}

		f.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		default:
			f.waitBackoff(ctx)
		}
	}
}

// connect dials the WebSocket and subscribes to the market channel for
// the current asset set.
func (f *LiveFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.assetIndexMu.RLock()
	assetIDs := make([]string, 0, len(f.assetIndex))
	for id := range f.assetIndex {
		assetIDs = append(assetIDs, id)
	}
	f.assetIndexMu.RUnlock()

	sub := map[string]interface{}{
		"type":       "market",
		"assets_ids": assetIDs,
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	f.backoff = initialBackoff
	f.touch()
	slog.Info("live_feed_connected", "subscribed_assets", len(assetIDs))
	return nil
}

// readLoop reads and parses messages until the connection breaks.
func (f *LiveFeed) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.stopChan:
			return nil
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection closed")
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		f.touch()

		for _, trade := range f.parseTrades(data) {
			f.buffer.Add(trade)
		}
	}
}

// parseTrades extracts trade events from a raw message. Non-trade
// messages (book snapshots, price changes) are ignored.
func (f *LiveFeed) parseTrades(data []byte) []store.Trade {
	var events []wsTrade
	if err := json.Unmarshal(data, &events); err != nil {
		var single wsTrade
		if err := json.Unmarshal(data, &single); err != nil {
			return nil
		}
		events = []wsTrade{single}
	}

	var trades []store.Trade
	for _, event := range events {
		if event.EventType != "trade" && event.EventType != "last_trade_price" {
			continue
		}

		trade, err := f.convertEvent(event)
		if err != nil {
			continue
		}
		trades = append(trades, trade)
	}
	return trades
}

// convertEvent maps a trade event to the domain trade. Events without a
// resolvable wallet or market are dropped: they cannot feed wallet
// aggregation.
func (f *LiveFeed) convertEvent(event wsTrade) (store.Trade, error) {
	wallet := coalesce(event.ProxyWallet, event.MakerAddress, event.Maker)
	if wallet == "" {
		return store.Trade{}, store.ErrMalformedRecord
	}

	marketID := event.Market
	if marketID == "" {
		f.assetIndexMu.RLock()
		marketID = f.assetIndex[event.AssetID]
		f.assetIndexMu.RUnlock()
	}
	if marketID == "" {
		return store.Trade{}, store.ErrMalformedRecord
	}

	side, err := parseSide(event.Outcome)
	if err != nil {
		return store.Trade{}, err
	}

	size, err := decimalField(event.Size)
	if err != nil {
		return store.Trade{}, store.ErrMalformedRecord
	}
	price, err := decimalField(event.Price)
	if err != nil {
		return store.Trade{}, store.ErrMalformedRecord
	}
	value, _ := size.Mul(price).Float64()
	if value <= 0 {
		return store.Trade{}, store.ErrMalformedRecord
	}

	return store.Trade{
		ID:        fmt.Sprintf("ws-%s-%s-%s", event.AssetID, wallet, event.Timestamp),
		MarketID:  marketID,
		Wallet:    wallet,
		Side:      side,
		SizeUSD:   value,
		Timestamp: parseWSTimestamp(event.Timestamp),
	}, nil
}

// touch records message receipt for heartbeat accounting.
func (f *LiveFeed) touch() {
	f.lastMsgMu.Lock()
	f.lastMsg = time.Now()
	f.lastMsgMu.Unlock()
}

// closeConnection closes the active connection if any.
func (f *LiveFeed) closeConnection() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

// waitBackoff sleeps for the current backoff with jitter, then grows it.
func (f *LiveFeed) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(f.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := f.backoff + jitter

	select {
	case <-ctx.Done():
	case <-f.stopChan:
	case <-time.After(wait):
	}

	f.backoff = time.Duration(float64(f.backoff) * backoffFactor)
	if f.backoff > maxBackoff {
		f.backoff = maxBackoff
	}
}

// parseWSTimestamp parses the millisecond epoch strings the WS sends,
// falling back to now for absent values.
func parseWSTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC()
	}

	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err != nil || ms <= 0 {
		return time.Now().UTC()
	}
	if ms > 1e12 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Unix(ms, 0).UTC()
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
