package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDocumentProcessed is sent after every protected document
	EventTypeDocumentProcessed EventType = "document_processed"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DocumentProcessedEvent describes one protected document. It never carries
// document content, only categories and counts.
type DocumentProcessedEvent struct {
	RequestID    string            `json:"request_id"`
	Source       string            `json:"source"`
	Format       string            `json:"format"`
	Status       string            `json:"status"`
	Categories   []string          `json:"categories"`
	Findings     []privacy.Finding `json:"findings"`
	Replacements int               `json:"replacements"`
	ProcessingMS float64           `json:"processing_ms"`
	Error        string            `json:"error,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	TotalDocuments   int64    `json:"total_documents"`
	FailedDocuments  int64    `json:"failed_documents"`
	TotalReplaced    int64    `json:"total_replaced"`
	Categories       []string `json:"categories"`
	Annotator        bool     `json:"annotator"`
	ConnectedClients int      `json:"connected_clients"`
	MemoryUsage      string   `json:"memory_usage"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows document events.
type EventFilter struct {
	Categories []string `json:"categories,omitempty"` // only documents with findings in these categories
	OnlyFailed bool     `json:"only_failed,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.Mutex
	subscription *SubscriptionRequest
	lastPing     time.Time
}

func (c *Client) setSubscription(sub *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = sub
}

// Subscription returns the current subscription, nil for all events.
func (c *Client) Subscription() *SubscriptionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}

func (c *Client) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}
