package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/logging"
)

const (
	testSecret  = "relay-test-secret-0123456789"
	readTimeout = 2 * time.Second
)

var testNow = time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// newTestServer builds a Server on a fixed clock behind an httptest server.
// Both are torn down when the test ends.
func newTestServer(t *testing.T, customize func(cfg *Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := NewConfig()
	cfg.TokenSecret = testSecret
	if customize != nil {
		customize(cfg)
	}

	srv, err := New(cfg, logging.Discard(), WithClock(fixedClock))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
	})
	return srv, ts
}

// issueToken requests a credential for name and returns the bearer value.
func issueToken(t *testing.T, ts *httptest.Server, name string) string {
	t.Helper()

	body, err := json.Marshal(TokenRequest{Username: name})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, strings.HasPrefix(out.Token, "Bearer "), "token %q", out.Token)
	return out.Token
}

func wsURL(ts *httptest.Server, name string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + url.PathEscape(name)
}

// dial opens a WebSocket to /ws/{name} with the given Authorization value.
func dial(t *testing.T, ts *httptest.Server, name, authorization string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if authorization != "" {
		header.Set("Authorization", authorization)
	}
	dialer := websocket.Dialer{HandshakeTimeout: readTimeout}
	conn, resp, err := dialer.Dial(wsURL(ts, name), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect issues a credential for name, dials with it and waits until the
// registry holds want sessions.
func connect(t *testing.T, srv *Server, ts *httptest.Server, name string, want int) (*websocket.Conn, string) {
	t.Helper()
	token := issueToken(t, ts, name)
	conn := dial(t, ts, name, token)
	waitForSessions(t, srv, want)
	return conn, token
}

func waitForSessions(t *testing.T, srv *Server, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Hub().Registry().Len() == want
	}, readTimeout, 5*time.Millisecond, "expected %d registered sessions", want)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))

	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

// expectNoMessage waits for a read timeout. A timed-out gorilla connection
// fails every later read, so conn must not be read again afterwards.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))

	_, payload, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, received %s", payload)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// expectClose reads until the server closes the connection and returns the
// close frame it sent.
func expectClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))

	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func closeWebSocket(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	require.NoError(t, err)
	_ = conn.Close()
}

// fakeConn is a minimal Conn that records what it was sent.
type fakeConn struct {
	addr string

	mu       sync.Mutex
	payloads [][]byte
	err      error
	closed   bool
}

func newFakeConn(addr string) *fakeConn { return &fakeConn{addr: addr} }

func (f *fakeConn) Enqueue(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeConn) RemoteAddr() string { return f.addr }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}
