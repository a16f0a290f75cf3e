// Package server implements the GoChat relay: authenticated WebSocket
// sessions that share one registry and broadcast to each other.
//
// The implementation is organized into specialized files for configuration,
// the session registry, broadcasting, the per-connection lifecycle, routing
// and HTTP handlers. A single Hub built by New is shared by every connection;
// there is no package-level state.
package server
