package pyth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orionbet/orionkeeper/internal/domain"
)

func TestStreamDeliversMatchingUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != "subscribe" || len(sub.IDs) != 1 {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response","status":"success"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"price_update","price_feed":{"id":"ffff","price":{"price":"1","expo":0}}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"price_update","price_feed":{"id":"E62DF6C8B4A85FE1A67DB44DC12DE5DB330F7AC66B72DC658AFEDF0F4A415B43","price":{"price":"6500000000000","conf":"0","expo":-8,"publish_time":1700000000}}}`))
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), feed, logger)
	got := make(chan domain.PriceQuote, 4)
	s.OnQuote(func(_ context.Context, q domain.PriceQuote) { got <- q })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case q := <-got:
		if q.Price != 65000 || q.PublishTime != 1700000000 {
			t.Fatalf("unexpected quote %+v", q)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no quote received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if len(got) != 0 {
		t.Fatalf("unexpected extra quotes: %d", len(got))
	}
}
