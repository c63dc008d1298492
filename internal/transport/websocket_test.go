package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testDialer() *WebSocketDialer {
	cfg := DefaultWebSocketConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.BufferSize = 100
	return NewWebSocketDialer(cfg, nil)
}

// waitClosed drains messages until the channel closes.
func waitClosed(t *testing.T, conn Conn) CloseEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-conn.Messages():
			if !ok {
				return conn.CloseEvent()
			}
		case <-timeout:
			t.Fatal("timeout waiting for connection to close")
		}
	}
}

func TestWebSocket_Dial(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := conn.Close(CloseNormal, ReasonClientClosing); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	ev := waitClosed(t, conn)
	if !ev.Local {
		t.Error("expected Local close event")
	}
	if ev.Code != CloseNormal {
		t.Errorf("Code = %d, want %d", ev.Code, CloseNormal)
	}
}

func TestWebSocket_DialRefused(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {})
	addr := wsURL(server)
	server.Close()

	if _, err := testDialer().Dial(context.Background(), addr); err == nil {
		t.Fatal("expected dial error for closed server")
	}
}

func TestWebSocket_Send(t *testing.T) {
	received := make(chan []byte, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	testMsg := []byte(`{"type":"hello"}`)
	if err := conn.Send(testMsg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(testMsg) {
			t.Errorf("received %q, want %q", got, testMsg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for server to receive message")
	}
}

func TestWebSocket_Messages(t *testing.T) {
	testMessages := []string{
		`{"type": "test", "data": 1}`,
		`{"type": "test", "data": 2}`,
		`{"type": "test", "data": 3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-conn.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestWebSocket_RemoteClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(4001, "server restarting"),
			time.Now().Add(time.Second),
		)
		// Wait for the client's close reply
		conn.ReadMessage()
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	ev := waitClosed(t, conn)
	if ev.Local {
		t.Error("expected remote close event")
	}
	if ev.Code != 4001 {
		t.Errorf("Code = %d, want 4001", ev.Code)
	}
	if ev.Reason != "server restarting" {
		t.Errorf("Reason = %q, want %q", ev.Reason, "server restarting")
	}
}

func TestWebSocket_AbnormalClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the TCP connection without a close frame
		conn.UnderlyingConn().Close()
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	ev := waitClosed(t, conn)
	if ev.Code != CloseAbnormal {
		t.Errorf("Code = %d, want %d", ev.Code, CloseAbnormal)
	}
	if ev.Err == nil {
		t.Error("expected Err on abnormal close")
	}
}

func TestWebSocket_CloseSendsCode(t *testing.T) {
	var mu sync.Mutex
	var gotCode int
	var gotText string
	done := make(chan struct{})

	server := mockWSServer(t, func(conn *websocket.Conn) {
		defer close(done)
		_, _, err := conn.ReadMessage()
		if ce, ok := err.(*websocket.CloseError); ok {
			mu.Lock()
			gotCode, gotText = ce.Code, ce.Text
			mu.Unlock()
		}
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	conn.Close(CloseHealthCheck, ReasonHealthCheck)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for server to observe close")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotCode != CloseHealthCheck {
		t.Errorf("server saw code %d, want %d", gotCode, CloseHealthCheck)
	}
	if gotText != ReasonHealthCheck {
		t.Errorf("server saw reason %q, want %q", gotText, ReasonHealthCheck)
	}
}

func TestWebSocket_SendAfterClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	conn, err := testDialer().Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := conn.Close(CloseNormal, ""); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := conn.Close(CloseNormal, ""); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if err := conn.Send([]byte("test")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDefaultWebSocketConfig(t *testing.T) {
	cfg := DefaultWebSocketConfig()
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.WriteTimeout)
	}
	if cfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %v, want 1000", cfg.BufferSize)
	}
}
