package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

func testHubConfig() config.WebSocketConfig {
	cfg := config.GetDefaults().WebSocket
	cfg.Username = "admin"
	cfg.Password = "secret"
	cfg.MaxConnections = 2
	return cfg
}

func startHub(t *testing.T, cfg config.WebSocketConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user, pass string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return event
}

func TestHandleWebSocketAuth(t *testing.T) {
	_, srv := startHub(t, testHubConfig())

	_, resp, err := dial(t, srv, "admin", "wrong")
	if err == nil {
		t.Fatal("Expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %v", resp)
	}

	conn, _, err := dial(t, srv, "admin", "secret")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()
}

func TestHubMaxConnections(t *testing.T) {
	hub, srv := startHub(t, testHubConfig())

	for i := 0; i < 2; i++ {
		conn, _, err := dial(t, srv, "admin", "secret")
		if err != nil {
			t.Fatalf("Dial %d failed: %v", i, err)
		}
		defer conn.Close()
	}
	waitForClients(t, hub, 2)

	_, resp, err := dial(t, srv, "admin", "secret")
	if err == nil {
		t.Fatal("Expected the third connection to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %v", resp)
	}
}

func TestHubPublishDocument(t *testing.T) {
	cfg := testHubConfig()
	cfg.Events.BroadcastConnections = false
	hub, srv := startHub(t, cfg)

	conn, _, err := dial(t, srv, "admin", "secret")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.PublishDocument(DocumentProcessedEvent{
		RequestID:    "req-1",
		Source:       "http",
		Format:       "json",
		Status:       "ok",
		Findings:     []privacy.Finding{{Category: privacy.CategoryEmail, Count: 2}},
		Replacements: 2,
	})

	event := readEvent(t, conn)
	if event["type"] != string(EventTypeDocumentProcessed) || event["request_id"] != "req-1" {
		t.Errorf("Unexpected event: %v", event)
	}
	data := event["data"].(map[string]any)
	if data["replacements"] != float64(2) {
		t.Errorf("Unexpected data: %v", data)
	}
}

func TestHubSubscription(t *testing.T) {
	cfg := testHubConfig()
	cfg.Events.BroadcastConnections = false
	hub, srv := startHub(t, cfg)

	conn, _, err := dial(t, srv, "admin", "secret")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	err = conn.WriteJSON(ClientMessage{
		Type: "subscribe",
		Data: SubscriptionRequest{
			Events: []EventType{EventTypeDocumentProcessed},
			Filter: &EventFilter{Categories: []string{"iban"}},
		},
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// The pong proves the subscription was handled before publishing.
	if err := conn.WriteJSON(ClientMessage{Type: "ping"}); err != nil {
		t.Fatalf("Failed to ping: %v", err)
	}
	if event := readEvent(t, conn); event["type"] != string(EventTypePong) {
		t.Fatalf("Expected pong, got %v", event)
	}

	hub.PublishSystemStatus(SystemStatusEvent{Status: "healthy"})
	hub.PublishDocument(DocumentProcessedEvent{RequestID: "email-only", Findings: []privacy.Finding{{Category: privacy.CategoryEmail, Count: 1}}})
	hub.PublishDocument(DocumentProcessedEvent{RequestID: "with-iban", Findings: []privacy.Finding{{Category: privacy.CategoryIBAN, Count: 1}}})

	event := readEvent(t, conn)
	if event["request_id"] != "with-iban" {
		t.Errorf("Expected only the iban document, got %v", event)
	}
}

func TestHubEventToggles(t *testing.T) {
	cfg := testHubConfig()
	cfg.Events.BroadcastDocuments = false
	cfg.Events.BroadcastConnections = false
	hub, srv := startHub(t, cfg)

	conn, _, err := dial(t, srv, "admin", "secret")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.PublishDocument(DocumentProcessedEvent{RequestID: "dropped"})
	hub.PublishSystemStatus(SystemStatusEvent{Status: "healthy"})

	event := readEvent(t, conn)
	if event["type"] != string(EventTypeSystemStatus) {
		t.Errorf("Expected system_status, got %v", event)
	}
	data := event["data"].(map[string]any)
	if data["connected_clients"] != float64(1) {
		t.Errorf("Expected 1 connected client, got %v", data["connected_clients"])
	}
}

func TestHubConnectionEvents(t *testing.T) {
	hub, srv := startHub(t, testHubConfig())

	first, _, err := dial(t, srv, "admin", "secret")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer first.Close()
	waitForClients(t, hub, 1)

	second, _, err := dial(t, srv, "admin", "secret")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitForClients(t, hub, 2)

	event := readEvent(t, first)
	data := event["data"].(map[string]any)
	if event["type"] != string(EventTypeConnection) || data["action"] != "connected" {
		t.Errorf("Expected a connected event, got %v", event)
	}

	second.Close()
	event = readEvent(t, first)
	data = event["data"].(map[string]any)
	if data["action"] != "disconnected" {
		t.Errorf("Expected a disconnected event, got %v", event)
	}

	stats := hub.GetStats()
	if stats.TotalConnections != 2 || stats.ActiveConnections != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := testHubConfig()
	cfg.AllowedOrigins = []string{"https://dashboard.example.com"}
	hub := NewHub(cfg, zap.NewNop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://dashboard.example.com", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := hub.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := getClientIP(r); got != "203.0.113.7" {
		t.Errorf("Expected first forwarded address, got %q", got)
	}
}

func TestRequireAuth(t *testing.T) {
	hub := NewHub(testHubConfig(), zap.NewNop())
	handler := hub.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		user     string
		pass     string
		setAuth  bool
		expected int
	}{
		{"NoCredentials", "", "", false, http.StatusUnauthorized},
		{"WrongPassword", "admin", "nope", true, http.StatusUnauthorized},
		{"Valid", "admin", "secret", true, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Fatalf("Expected %d, got %d", tt.expected, rec.Code)
			}
			if tt.expected == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("Expected a WWW-Authenticate challenge")
			}
		})
	}
}
