// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package broadcast implements the Live Stats Broadcast (§4.O): a
// WebSocket push channel carrying a single stats_update message, adapted
// from the teacher's internal/websocket hub.
package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/model"
)

// MessageTypeStatsUpdate is the hub's one message type.
const MessageTypeStatsUpdate = "stats_update"

// Message is the envelope written to every connected client.
type Message struct {
	Type string            `json:"type"`
	Data model.SystemStats `json:"data"`
}

// Hub maintains the set of connected clients and fans stats snapshots out
// to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve implements suture.Service: it runs the hub's event loop until ctx
// is canceled, then closes every connected client.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Msg("broadcast hub stopped")
			return ctx.Err()

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.Info().Int("total_clients", len(h.clients)).Msg("broadcast client connected")

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logging.Info().Int("total_clients", len(h.clients)).Msg("broadcast client disconnected")

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// broadcastToClients fans message out to every client in deterministic
// (ID-sorted) order, dropping any client whose send buffer is full.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// BroadcastStats pushes a fresh stats snapshot to every connected client.
// The send is best-effort: a full broadcast buffer drops the update rather
// than blocking the caller.
func (h *Hub) BroadcastStats(stats model.SystemStats) {
	message := Message{Type: MessageTypeStatsUpdate, Data: stats}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("broadcast channel full, dropping stats_update message")
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
