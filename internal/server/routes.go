// Package server wires HTTP handlers into a ServeMux for the GoChat
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("POST /token", s.TokenHandler)
	mux.HandleFunc("GET /sessions", s.SessionsHandler)
	mux.HandleFunc("GET /ws/{name}", s.WebSocketHandler)
	return mux
}
