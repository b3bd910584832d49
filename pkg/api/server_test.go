package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/HarshJ2508/order-execution-sys/pkg/engine"
	"github.com/HarshJ2508/order-execution-sys/pkg/util"
)

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	log := zap.NewNop().Sugar()
	eng := engine.New(log, util.RealClock{}, 64)
	hub := NewHub(log, eng, 64)
	eng.SetBroadcaster(hub)
	eng.Start()
	go hub.Run()

	srv := NewServer(log, eng, hub, []string{"*"}, 50)
	ts := httptest.NewServer(srv.Handler())
	return ts, func() {
		ts.Close()
		eng.Stop()
	}
}

// session wraps a WebSocket connection and buffers frames so that a
// broadcast arriving ahead of the frame a test is waiting for is not lost.
type session struct {
	conn    *websocket.Conn
	id      string
	pending []map[string]interface{}
}

func dialSession(t *testing.T, ts *httptest.Server) *session {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	s := &session{conn: conn}
	hello := s.next(t)
	id, _ := hello["id"].(string)
	if id == "" {
		t.Fatalf("hello = %v, want an assigned id", hello)
	}
	s.id = id
	return s
}

func (s *session) close() { s.conn.Close() }

func (s *session) next(t *testing.T) map[string]interface{} {
	t.Helper()
	s.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return msg
}

// await returns the first frame of the wanted type, buffering everything
// else for later awaits.
func (s *session) await(t *testing.T, wantType string) map[string]interface{} {
	t.Helper()
	for i, msg := range s.pending {
		if typ, _ := msg["type"].(string); typ == wantType {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return msg
		}
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := s.next(t)
		if typ, _ := msg["type"].(string); typ == wantType {
			return msg
		}
		s.pending = append(s.pending, msg)
	}
	t.Fatalf("no %q frame before deadline, buffered %v", wantType, s.pending)
	return nil
}

func (s *session) send(t *testing.T, payload string) {
	t.Helper()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestEndToEndMatchAndBroadcast(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	buyer := dialSession(t, ts)
	defer buyer.close()
	seller := dialSession(t, ts)
	defer seller.close()

	buyer.send(t, `{"type":"bid","qty":10,"price":100,"orderType":"limit"}`)
	ack := buyer.await(t, "ack")
	if id, _ := ack["orderId"].(string); id == "" {
		t.Fatalf("ack = %v, want an order id", ack)
	}

	seller.send(t, `{"type":"ask","qty":10,"price":100,"orderType":"limit"}`)
	seller.await(t, "ack")

	// Both sessions receive the trade broadcast.
	for _, s := range []*session{buyer, seller} {
		msg := s.await(t, "trade")
		trade, _ := msg["trade"].(map[string]interface{})
		if trade["quantity"].(float64) != 10 {
			t.Fatalf("trade = %v, want qty 10", trade)
		}
		if trade["buyerParticipantId"].(string) != buyer.id {
			t.Fatalf("buyer = %v, want %s", trade["buyerParticipantId"], buyer.id)
		}
	}

	// Reporting surface sees the executed trade.
	resp, err := http.Get(ts.URL + "/trades")
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	defer resp.Body.Close()
	var trades struct {
		Trades []struct {
			Quantity int64 `json:"quantity"`
		} `json:"trades"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		t.Fatalf("decode trades: %v", err)
	}
	if len(trades.Trades) != 1 || trades.Trades[0].Quantity != 10 {
		t.Fatalf("trades = %+v", trades)
	}

	stats, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer stats.Body.Close()
	var statsBody struct {
		Stats struct {
			Volume24h  int64 `json:"volume24h"`
			TradeCount int   `json:"tradeCount"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(stats.Body).Decode(&statsBody); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if statsBody.Stats.Volume24h != 10 || statsBody.Stats.TradeCount != 1 {
		t.Fatalf("stats = %+v", statsBody.Stats)
	}

	// Per-participant history.
	hist, err := http.Get(fmt.Sprintf("%s/participants/%s/trades", ts.URL, buyer.id))
	if err != nil {
		t.Fatalf("get participant trades: %v", err)
	}
	defer hist.Body.Close()
	if hist.StatusCode != http.StatusOK {
		t.Fatalf("participant trades status = %d", hist.StatusCode)
	}
}

func TestEndToEndRejection(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	s := dialSession(t, ts)
	defer s.close()

	// Market bid against an empty ask book.
	s.send(t, `{"type":"bid","qty":5,"orderType":"market"}`)
	msg := s.await(t, "error")
	if msg["code"].(string) != "NoCounterparty" {
		t.Fatalf("code = %v, want NoCounterparty", msg["code"])
	}

	// Unknown command tags are rejected, not ignored.
	s.send(t, `{"type":"bogus"}`)
	msg = s.await(t, "error")
	if msg["code"].(string) != "UnknownCommand" {
		t.Fatalf("code = %v, want UnknownCommand", msg["code"])
	}
}

func TestEndToEndDisconnectCleanup(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	watcher := dialSession(t, ts)
	defer watcher.close()
	leaver := dialSession(t, ts)

	leaver.send(t, `{"type":"ask","qty":5,"price":100,"orderType":"limit"}`)
	leaver.await(t, "ack")
	leaver.close()

	// The leaver's resting order is purged once the session drops.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/order-book")
		if err != nil {
			t.Fatalf("get order-book: %v", err)
		}
		var bookBody struct {
			Asks []json.RawMessage `json:"asks"`
		}
		err = json.NewDecoder(resp.Body).Decode(&bookBody)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode order-book: %v", err)
		}
		if len(bookBody.Asks) == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("ask book still holds the disconnected session's order")
}

func TestSessionChurn(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	watcher := dialSession(t, ts)
	defer watcher.close()

	// Sessions that connect and drop immediately must not take the server
	// down, even while commands are generating broadcasts.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.Close()
		watcher.send(t, fmt.Sprintf(`{"type":"bid","qty":1,"price":%d,"orderType":"limit"}`, 50+i))
		watcher.await(t, "ack")
	}

	// The surviving session still gets its identity-first contract honored
	// for newcomers and the server still answers.
	late := dialSession(t, ts)
	late.close()
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}
