package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types pushed over WebSocket
const (
	NotificationTypeCommissionUpdate = "commission_update"
	NotificationTypePaymentResult    = "payment_result"
)

// Notification represents a message sent over WebSocket
type Notification struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	UserID  string      `json:"userID,omitempty"`
}

// Client represents a connected WebSocket client
type Client struct {
	UserID primitive.ObjectID
	Conn   *websocket.Conn
}

// Hub maintains the set of active clients. The accept flow returns
// before payment settles, so the hub is how a client learns the async
// outcome without polling.
type Hub struct {
	clients    map[primitive.ObjectID]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[primitive.ObjectID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = client
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserID]; ok && current == client {
				delete(h.clients, client.UserID)
			}
			client.Conn.Close()
			h.mu.Unlock()
		case <-h.done:
			h.mu.Lock()
			for _, client := range h.clients {
				client.Conn.Close()
			}
			h.clients = make(map[primitive.ObjectID]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and closes every connection.
func (h *Hub) Stop() {
	close(h.done)
}

// SendToUser sends a message to a specific user
func (h *Hub) SendToUser(userID primitive.ObjectID, notification Notification) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user not connected")
	}

	return client.Conn.WriteJSON(notification)
}

// NotifyPaymentResult pushes the settled payment outcome to the client
// who is waiting on an accepted commission.
func (h *Hub) NotifyPaymentResult(clientID primitive.ObjectID, commissionData interface{}, succeeded bool) error {
	message := "Payment captured, your commission is now in progress"
	if !succeeded {
		message = "Payment failed, your commission is still awaiting approval"
	}
	return h.SendToUser(clientID, Notification{
		Type:    NotificationTypePaymentResult,
		Message: message,
		Data:    commissionData,
	})
}

// NotifyCommissionUpdate pushes a commission state change to a user.
func (h *Hub) NotifyCommissionUpdate(userID primitive.ObjectID, commissionData interface{}, message string) error {
	return h.SendToUser(userID, Notification{
		Type:    NotificationTypeCommissionUpdate,
		Message: message,
		Data:    commissionData,
	})
}
