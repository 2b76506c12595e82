package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wenjin27/lingvox/internal/config"
	"github.com/wenjin27/lingvox/internal/observability"
	"github.com/wenjin27/lingvox/internal/protocol"
	"github.com/wenjin27/lingvox/internal/session"
)

type echoRunner struct{}

func (echoRunner) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	outbound <- protocol.NewConnectionEvent(s.ClientID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			switch msg.(type) {
			case protocol.PingCommand:
				outbound <- protocol.PongEvent{Pong: true, Timestamp: 1}
			case protocol.DisconnectCommand:
				return nil
			}
		}
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		HeartbeatInterval:        15 * time.Second,
		HeartbeatDeadMultiple:    4,
		AllowAnyOrigin:           true,
	}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%s_%d", t.Name(), time.Now().UnixNano()))
	audioDir := t.TempDir()
	srv := New(cfg, sessions, echoRunner{}, metrics, audioDir)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts, audioDir
}

func TestHealthAndStatus(t *testing.T) {
	_, ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	statusRes, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer statusRes.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(statusRes.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if _, ok := payload["active_sessions"]; !ok {
		t.Fatalf("missing active_sessions in status: %+v", payload)
	}
}

func TestStaticAudioServing(t *testing.T) {
	_, ts, audioDir := newTestServer(t)

	name := "123_client_abcd.wav"
	if err := os.WriteFile(filepath.Join(audioDir, name), []byte("fake-wav"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res, err := http.Get(ts.URL + "/static/audio/" + name)
	if err != nil {
		t.Fatalf("GET artifact error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("artifact status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestVoiceWSConnectAndPing(t *testing.T) {
	_, ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/voice-assistant"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var connected map[string]any
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connection event: %v", err)
	}
	if connected["type"] != "connection" || connected["client_id"] == "" {
		t.Fatalf("connection event = %+v", connected)
	}

	if err := conn.WriteJSON(map[string]any{"ping": true}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong map[string]any
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong["pong"] != true {
		t.Fatalf("pong event = %+v", pong)
	}
}

func TestVoiceWSRejectsInvalidCommand(t *testing.T) {
	_, ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/voice-assistant"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var connected map[string]any
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connection event: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"nonsense"}`)); err != nil {
		t.Fatalf("write invalid command: %v", err)
	}
	var errEvent map[string]any
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if errEvent["type"] != "error" || errEvent["code"] != "invalid_command" {
		t.Fatalf("error event = %+v", errEvent)
	}
}
