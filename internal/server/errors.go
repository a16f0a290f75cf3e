package server

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/gochat/internal/auth"
)

var (
	// ErrAlreadyRegistered is returned by Registry.Register when the
	// credential is already bound to a live session.
	ErrAlreadyRegistered = errors.New("credential already registered")
	// ErrSendBufferFull is returned by Client.Enqueue when the outbound
	// queue has no room left.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnClosed is returned by Client.Enqueue after teardown.
	ErrConnClosed = errors.New("connection closed")
	// ErrHubClosed is returned by Hub.Attach once shutdown has begun.
	ErrHubClosed = errors.New("hub is shut down")
)

// ErrorKind classifies every failure a connection can run into.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthMissing
	KindAuthExpired
	KindAuthInvalid
	KindAuthMismatch
	KindCredentialReplay
	KindTransportDisconnect
	KindProtocolViolation
	KindDeliveryFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthMissing:
		return "auth_missing"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindAuthMismatch:
		return "auth_mismatch"
	case KindCredentialReplay:
		return "credential_replay"
	case KindTransportDisconnect:
		return "transport_disconnect"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindDeliveryFailure:
		return "delivery_failure"
	default:
		return "unknown"
	}
}

// Error is the tagged failure carried through one connection's lifecycle.
type Error struct {
	Kind ErrorKind
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, name string, err error) *Error {
	return &Error{Kind: kind, Name: name, Err: err}
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// authErrorKind maps a Verifier failure to its kind.
func authErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return KindAuthExpired
	case errors.Is(err, auth.ErrMissingCredential):
		return KindAuthMissing
	default:
		return KindAuthInvalid
	}
}
