// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package broadcast

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/stats"
)

// Handler upgrades /ws connections, registers each client with the hub,
// and then queues the current stats snapshot to it.
type Handler struct {
	hub      *Hub
	register *stats.Register
	upgrader websocket.Upgrader
}

// NewHandler wires a Handler around an already-running Hub and the live
// Stats Register.
func NewHandler(hub *Hub, register *stats.Register) *Handler {
	return &Handler{
		hub:      hub,
		register: register,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Mount registers the bare WS upgrade route on router, per §4.O - this is
// the one in-scope HTTP surface in this repository.
func (h *Handler) Mount(router chi.Router) {
	router.Get("/ws", h.ServeWS)
}

// ServeWS upgrades the connection, registers the client, and pushes the
// current stats snapshot as the first message.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("broadcast: websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()

	client.send <- Message{Type: MessageTypeStatsUpdate, Data: h.register.GetStats()}
}
