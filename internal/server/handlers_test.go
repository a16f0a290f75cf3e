package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/auth"
)

// TestHealthHandler verifies the health endpoint body and content type.
func TestHealthHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, path := range []string{"/", "/health"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, "GoChat server is running!", string(body))
		})
	}
}

// TestTokenHandler verifies issuance responses and request validation.
func TestTokenHandler(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Routes()

	verifier, err := auth.NewVerifier([]byte(testSecret), fixedClock)
	require.NoError(t, err)

	t.Run("issues a verifiable bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"username":"alice"}`))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var out TokenResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))

		credential, err := auth.ParseBearer(out.Token)
		require.NoError(t, err)
		claims, err := verifier.Verify(credential)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.DisplayName)
		require.Equal(t, testNow.Add(time.Hour), claims.ExpiresAt)
	})

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid JSON", `{"username":`, "invalid JSON body"},
		{"missing username", `{}`, "username is required"},
		{"blank username", `{"username":"   "}`, "username is required"},
		{"username too long", `{"username":"` + strings.Repeat("a", 65) + `"}`, "username must be at most 64 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, http.StatusBadRequest, rr.Code)
			var out errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
			require.Equal(t, tt.wantErr, out.Error)
		})
	}
}

// TestRoutesMethods verifies method restrictions on each route.
func TestRoutesMethods(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Routes()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/token", http.StatusMethodNotAllowed},
		{http.MethodPost, "/ws/alice", http.StatusMethodNotAllowed},
		{http.MethodPost, "/sessions", http.StatusMethodNotAllowed},
		{http.MethodGet, "/ws/alice", http.StatusBadRequest},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			require.Equal(t, tt.want, rr.Code)
		})
	}
}

// TestSessionsHandler verifies the online listing follows the registry.
func TestSessionsHandler(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	connect(t, srv, ts, "bob", 1)
	connect(t, srv, ts, "alice", 2)

	resp, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out SessionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, SessionsResponse{Count: 2, Names: []string{"alice", "bob"}}, out)
}

// TestWebSocketOriginCheck verifies disallowed browser origins are refused
// at the handshake while listed and absent origins pass.
func TestWebSocketOriginCheck(t *testing.T) {
	srv, ts := newTestServer(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"https://chat.example.com"}
	})
	token := issueToken(t, ts, "alice")

	dialer := websocket.Dialer{HandshakeTimeout: readTimeout}

	header := http.Header{}
	header.Set("Authorization", token)
	header.Set("Origin", "https://evil.example.com")
	conn, resp, err := dialer.Dial(wsURL(ts, "alice"), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Nil(t, conn)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header.Set("Origin", "HTTPS://Chat.Example.com")
	conn, resp, err = dialer.Dial(wsURL(ts, "alice"), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()
	waitForSessions(t, srv, 1)
}
