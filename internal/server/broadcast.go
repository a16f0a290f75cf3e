package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Broadcaster fans envelopes out to every registered connection except an
// optional excluded sender.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster returns a Broadcaster reading recipients from registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast serializes env once and enqueues it to each connection in a
// registry snapshot taken now, skipping exclude. A failing recipient is
// logged and skipped. It returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(env Envelope, exclude Conn) int {
	payload, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("Error encoding broadcast envelope", "type", env.Type, "error", err)
		return 0
	}

	recipients := b.registry.Snapshot(exclude)
	b.logger.Debug("Broadcasting message", "type", env.Type, "recipients", len(recipients))

	delivered := 0
	for _, conn := range recipients {
		if err := b.deliver(conn, payload); err != nil {
			b.logger.Warn("Broadcast delivery failed",
				"kind", KindDeliveryFailure.String(),
				"remote_addr", conn.RemoteAddr(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// deliver enqueues payload to one recipient, turning a panic into an error
// so one broken handle cannot take the rest of the fan-out down.
func (b *Broadcaster) deliver(conn Conn, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindDeliveryFailure, "", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := conn.Enqueue(payload); err != nil {
		return newError(KindDeliveryFailure, "", err)
	}
	return nil
}
