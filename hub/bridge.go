package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

const clientBuffer = 64

// Bridge exposes the hub's event stream over WebSocket so dashboards
// can watch production state without speaking the broker protocol.
type Bridge struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	handle   Handle

	mu      sync.Mutex
	clients map[*bridgeClient]struct{}
	started bool
}

type bridgeClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewBridge creates a WebSocket bridge over the hub
func NewBridge(h *Hub, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		hub:    h,
		logger: logger.With("component", "hub-bridge"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*bridgeClient]struct{}),
	}
}

// Start subscribes to all hub events and serves the WebSocket endpoint
func (b *Bridge) Start(port int, path string) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bridge", "Start", "bridge already running")
	}
	b.started = true
	b.mu.Unlock()

	b.handle = b.hub.Subscribe(">", b.broadcast)

	mux := http.NewServeMux()
	mux.HandleFunc(path, b.handleUpgrade)
	b.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		b.logger.Info("websocket bridge listening", "addr", b.server.Addr, "path", path)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.logger.Error("websocket bridge failed", "error", err)
		}
	}()
	return nil
}

func (b *Bridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &bridgeClient{conn: conn, send: make(chan []byte, clientBuffer)}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.Info("websocket client connected", "remote", r.RemoteAddr, "clients", count)

	go b.writePump(client)
	go b.readPump(client)
}

// broadcast serializes a hub event and queues it to every client. A
// client with a full send buffer is dropped rather than blocking the
// publisher.
func (b *Bridge) broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("event not serializable, skipping broadcast", "topic", event.Topic, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		select {
		case client.send <- payload:
		default:
			b.logger.Warn("client send buffer full, dropping client")
			delete(b.clients, client)
			close(client.send)
		}
	}
}

func (b *Bridge) writePump(client *bridgeClient) {
	for payload := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.remove(client)
			return
		}
	}
	client.conn.Close()
}

// readPump discards inbound frames; its job is detecting disconnects
func (b *Bridge) readPump(client *bridgeClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			b.remove(client)
			return
		}
	}
}

func (b *Bridge) remove(client *bridgeClient) {
	b.mu.Lock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.send)
	}
	count := len(b.clients)
	b.mu.Unlock()

	client.conn.Close()
	b.logger.Info("websocket client disconnected", "clients", count)
}

// Stop unsubscribes from the hub, closes all clients and shuts the
// server down within the given timeout.
func (b *Bridge) Stop(timeout time.Duration) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false

	for client := range b.clients {
		delete(b.clients, client)
		close(client.send)
	}
	b.mu.Unlock()

	b.hub.Unsubscribe(b.handle)

	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := b.server.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "Bridge", "Stop", "shutdown http server")
		}
	}
	return nil
}
