package gateway

import (
	"sync"

	"github.com/amira/goalflow/pkg/flow"
)

// ClientRegistry maps verified user identities to their live connection.
// A user has at most one connection; a newer one displaces the old.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Add registers a client under its user id, closing any previous
// connection for the same user.
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	prev := r.clients[client.UserID]
	r.clients[client.UserID] = client
	r.mu.Unlock()

	if prev != nil && prev != client {
		prev.Close()
	}
}

// Remove drops a client, but only if it is still the registered connection
// for its user.
func (r *ClientRegistry) Remove(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.clients[client.UserID]; ok && current == client {
		delete(r.clients, client.UserID)
	}
}

// Lookup implements flow.ChannelResolver.
func (r *ClientRegistry) Lookup(userID string) (flow.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[userID]
	if !ok {
		return nil, false
	}
	return client, true
}

// Get returns the raw client for a user.
func (r *ClientRegistry) Get(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[userID]
	return client, ok
}

// All returns every connected client.
func (r *ClientRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
