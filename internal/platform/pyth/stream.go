package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orionbet/orionkeeper/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	readWait          = 60 * time.Second
	reconnectDelay    = time.Second
	maxReconnectDelay = 60 * time.Second
)

// QuoteHandler receives every streamed quote.
type QuoteHandler func(ctx context.Context, q domain.PriceQuote)

// Stream follows one feed on the Hermes WebSocket and reconnects with
// exponential backoff until its context is cancelled.
type Stream struct {
	wsURL  string
	feedID string
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []QuoteHandler
}

// NewStream creates a stream for feedID on wsURL, e.g.
// "wss://hermes.pyth.network/ws".
func NewStream(wsURL, feedID string, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:  wsURL,
		feedID: feedID,
		logger: logger.With(slog.String("component", "pyth_stream")),
	}
}

// OnQuote registers h for every price update.
func (s *Stream) OnQuote(h QuoteHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Run blocks until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	attempt := 0
	for {
		start := time.Now()
		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		// A connection that stayed up for a while resets the backoff.
		if time.Since(start) > maxReconnectDelay {
			attempt = 0
		}
		delay := backoff(attempt)
		attempt++
		s.logger.Warn("price stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
			slog.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *Stream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("pyth/ws: connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeRequest{Type: "subscribe", IDs: []string{s.feedID}}); err != nil {
		return fmt.Errorf("pyth/ws: subscribe: %w", err)
	}
	s.logger.Info("price stream connected", slog.String("feed", s.feedID))

	want := normalizeID(s.feedID)
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("pyth/ws: read: %w", err)
		}
		s.handleMessage(ctx, want, raw)
	}
}

func (s *Stream) handleMessage(ctx context.Context, want string, raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	switch msg.Type {
	case "price_update":
		if normalizeID(msg.PriceFeed.ID) != want {
			return
		}
		q, err := msg.PriceFeed.Quote()
		if err != nil {
			s.logger.Debug("dropping malformed update", slog.String("error", err.Error()))
			return
		}
		s.mu.RLock()
		handlers := s.handlers
		s.mu.RUnlock()
		for _, h := range handlers {
			h(ctx, q)
		}
	case "response":
		if msg.Error != "" {
			s.logger.Error("subscription rejected", slog.String("error", msg.Error))
		}
	}
}

// backoff returns 1s, 2s, 4s, ... capped at one minute.
func backoff(attempt int) time.Duration {
	if attempt > 6 {
		return maxReconnectDelay
	}
	d := reconnectDelay << attempt
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
