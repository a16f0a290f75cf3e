// Package server exposes HTTP handlers, including WebSocket upgrades,
// credential issuance, health checks and the online session listing.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const maxTokenRequestBytes = 4096

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// TokenResponse carries the bearer value clients put in Authorization.
type TokenResponse struct {
	Token string `json:"token"`
}

// SessionsResponse lists who is currently connected.
type SessionsResponse struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WebSocketHandler upgrades GET /ws/{name} and hands the connection to the
// hub. Authentication happens after the upgrade so that every failure can be
// reported with the same close code.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.TrimSpace(name) == "" {
		http.Error(w, "Display name is required in the connection path.", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	// The HTTP server's read deadline survives the hijack; idle sessions
	// must stay open indefinitely.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Warn("Error clearing read deadline", "remote_addr", r.RemoteAddr, "error", err)
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, name, s.cfg)
	if err := s.hub.Attach(client, r.Header.Get("Authorization")); err != nil {
		s.logger.Warn("Refusing connection", "remote_addr", r.RemoteAddr, "error", err)
		_ = client.Close()
	}
}

// TokenHandler issues a signed credential for the requested display name.
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenRequestBytes)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return
	}

	token, err := s.issuer.Issue(req.Username)
	if err != nil {
		s.logger.Error("Error issuing credential", "name", req.Username, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not issue token"})
		return
	}

	s.logger.Info("Issued credential", "name", req.Username, "expires_at", token.Claims.ExpiresAt)
	writeJSON(w, http.StatusOK, TokenResponse{Token: token.Bearer()})
}

// SessionsHandler reports the live sessions.
func (s *Server) SessionsHandler(w http.ResponseWriter, _ *http.Request) {
	names := s.hub.registry.Names()
	writeJSON(w, http.StatusOK, SessionsResponse{Count: len(names), Names: names})
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch fe := verrs[0]; fe.Tag() {
		case "required":
			return "username is required"
		case "max":
			return "username must be at most " + fe.Param() + " characters"
		}
	}
	return "invalid request"
}
