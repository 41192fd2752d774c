package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterPercent  = 0.2

	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
)

// TradeHint is called when a live trade for a tracked wallet is seen.
// It is a best-effort fast-path signal; the polling reconciler remains
// the source of truth.
type TradeHint func(wallet string)

// LiveListener watches the live trade stream for tracked wallets and
// fires a hint so a reconcile pass can run ahead of the next tick.
type LiveListener struct {
	url     string
	wallets map[string]bool
	onTrade TradeHint

	conn    *websocket.Conn
	connMu  sync.Mutex
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewLiveListener creates a listener for the given wallet set.
func NewLiveListener(url string, wallets []string, onTrade TradeHint) *LiveListener {
	set := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		set[strings.ToLower(w)] = true
	}
	return &LiveListener{
		url:     url,
		wallets: set,
		onTrade: onTrade,
		backoff: initialBackoff,
	}
}

// Start begins the listener with automatic reconnection. Non-blocking.
func (l *LiveListener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)
}

// Stop closes the connection and waits for the loop to exit.
func (l *LiveListener) Stop() {
	l.closeConnection()
	l.wg.Wait()
}

func (l *LiveListener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Println("[INFO] live listener stopped")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			log.Printf("[WARN] live listener connect failed: %v (retry in %v)", err, l.backoff)
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] live listener read error: %v", err)
		}
		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

type subscribeMessage struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Wallets []string `json:"wallets"`
}

type liveTradeEvent struct {
	Type        string `json:"type"`
	ProxyWallet string `json:"proxyWallet"`
}

func (l *LiveListener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, l.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	wallets := make([]string, 0, len(l.wallets))
	for w := range l.wallets {
		wallets = append(wallets, w)
	}
	sub := subscribeMessage{Type: "subscribe", Channel: "activity", Wallets: wallets}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	l.backoff = initialBackoff
	log.Printf("[INFO] live listener connected (%d wallets)", len(wallets))
	return nil
}

func (l *LiveListener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection closed")
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var evt liveTradeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue // non-trade frames are expected
		}
		wallet := strings.ToLower(evt.ProxyWallet)
		if wallet == "" || !l.wallets[wallet] {
			continue
		}
		l.onTrade(wallet)
	}
}

func (l *LiveListener) waitBackoff(ctx context.Context) {
	jitter := 1 + (rand.Float64()*2-1)*jitterPercent
	wait := time.Duration(float64(l.backoff) * jitter)

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * backoffFactor)
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}

func (l *LiveListener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}
