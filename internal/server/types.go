// Package server defines the message envelope and connection handle types
// shared by the registry, broadcaster and client lifecycle.
package server

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the wire format of Envelope.Timestamp (UTC, seconds).
const TimestampLayout = "2006-01-02 15:04:05"

// MessageKind tells user-authored content apart from system notifications.
type MessageKind string

const (
	KindMessage      MessageKind = "message"
	KindNotification MessageKind = "notification"
)

// Envelope is the JSON object sent to clients, one per text frame.
type Envelope struct {
	Type      MessageKind `json:"type"`
	Timestamp string      `json:"timestamp"`
	Content   string      `json:"content"`
}

func newEnvelope(kind MessageKind, content string, at time.Time) Envelope {
	return Envelope{
		Type:      kind,
		Timestamp: at.UTC().Format(TimestampLayout),
		Content:   content,
	}
}

// ChatMessage builds the envelope for text sent by name.
func ChatMessage(name, text string, at time.Time) Envelope {
	return newEnvelope(KindMessage, fmt.Sprintf("%s: %s", name, text), at)
}

// JoinNotice builds the notification announcing name's arrival.
func JoinNotice(name string, at time.Time) Envelope {
	return newEnvelope(KindNotification, fmt.Sprintf("%s has joined the chat!", name), at)
}

// LeaveNotice builds the notification announcing name's departure.
func LeaveNotice(name string, at time.Time) Envelope {
	return newEnvelope(KindNotification, fmt.Sprintf("%s left the chat.", name), at)
}

//go:generate mockgen -source=types.go -destination=mocks/mock_conn.go -package=mocks

// Conn is the send capability a Session holds for its peer. The transport
// owns the underlying socket; holders only enqueue to it or ask it to close.
type Conn interface {
	// Enqueue queues payload for delivery without blocking.
	Enqueue(payload []byte) error
	// RemoteAddr identifies the peer in logs.
	RemoteAddr() string
	// Close asks the transport to shut the connection down.
	Close() error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
