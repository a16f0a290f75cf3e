// Package server coordinates session registration, message broadcast, and
// connection cleanup for the GoChat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat/internal/auth"
)

// Authenticator verifies a bearer credential and returns its claims.
type Authenticator interface {
	Verify(credential string) (auth.Claims, error)
}

// Hub is the service object shared by every connection: it owns the session
// registry and broadcaster and tracks connection goroutines for shutdown.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	verifier    Authenticator
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a Hub verifying credentials with verifier.
func NewHub(verifier Authenticator, logger *slog.Logger) *Hub {
	registry := NewRegistry()
	return &Hub{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, logger),
		verifier:    verifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Registry returns the hub's session registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Attach starts the lifecycle of client in its own goroutine using the raw
// Authorization header value from the handshake request.
func (h *Hub) Attach(client *Client, authorization string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		client.run(authorization)
	}()
	return nil
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// shutdownClients closes every registered connection. Each lifecycle then
// runs its own teardown.
func (h *Hub) shutdownClients() int {
	conns := h.registry.Snapshot(nil)
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.logger.Warn("Error closing client connection", "remote_addr", conn.RemoteAddr(), "error", err)
		}
	}
	return len(conns)
}

// Shutdown stops accepting connections, closes the live ones and waits for
// every connection goroutine to finish or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown")

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	closed := h.shutdownClients()
	h.logger.Info("Closed client connections", "count", closed)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
