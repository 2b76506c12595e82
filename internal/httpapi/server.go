package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wenjin27/lingvox/internal/config"
	"github.com/wenjin27/lingvox/internal/observability"
	"github.com/wenjin27/lingvox/internal/protocol"
	"github.com/wenjin27/lingvox/internal/session"
	"github.com/wenjin27/lingvox/internal/voice"
)

// ConnectionRunner drives one websocket connection's pipeline.
type ConnectionRunner interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	runner   ConnectionRunner
	metrics  *observability.Metrics
	audioDir string
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, runner ConnectionRunner, metrics *observability.Metrics, audioDir string) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		runner:   runner,
		metrics:  metrics,
		audioDir: audioDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Other websites must
				// not be able to drive a user's mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/status", s.handleStatus)

	r.Handle("/static/audio/*", http.StripPrefix("/static/audio/", http.FileServer(http.Dir(s.audioDir))))

	r.Get("/ws/voice-assistant", s.handleVoiceWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions": s.sessions.ActiveCount(),
		"sessions":        s.sessions.Snapshot(),
	})
}

func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice runner not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := s.sessions.Create()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.runner.RunConnection(ctx, sess, inbound, outbound)
		cancel()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				s.metrics.WSMessages.WithLabelValues("outbound", eventTypeOf(msg)).Inc()
			}
		}
	}()

	readDeadline := s.cfg.HeartbeatInterval * time.Duration(s.cfg.HeartbeatDeadMultiple) * 2
	if readDeadline <= 0 {
		readDeadline = 120 * time.Second
	}
	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var parsed any
		switch msgType {
		case websocket.BinaryMessage:
			parsed = voice.AudioFrame(data)
			s.metrics.WSMessages.WithLabelValues("inbound", "audio_frame").Inc()
		case websocket.TextMessage:
			parsed, err = protocol.ParseClientCommand(data)
			if err != nil {
				errEvent := protocol.NewErrorEvent("invalid_command", err.Error())
				select {
				case outbound <- errEvent:
				default:
					// Keep websocket writes single-threaded; drop if the
					// outbound queue is saturated.
				}
				continue
			}
			s.metrics.WSMessages.WithLabelValues("inbound", commandNameOf(parsed)).Inc()
		default:
			continue
		}

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func commandNameOf(v any) string {
	switch v.(type) {
	case protocol.StartCommand:
		return string(protocol.CommandStart)
	case protocol.StopCommand:
		return string(protocol.CommandStop)
	case protocol.SetParamsCommand:
		return string(protocol.CommandSetParams)
	case protocol.SendAudioCommand:
		return string(protocol.CommandSendAudio)
	case protocol.DisconnectCommand:
		return string(protocol.CommandDisconnect)
	case protocol.PlaybackCompleteCommand:
		return string(protocol.CommandPlaybackComplete)
	case protocol.PlaybackErrorCommand:
		return string(protocol.CommandPlaybackError)
	case protocol.PingCommand:
		return string(protocol.CommandPing)
	default:
		return "unknown"
	}
}

func eventTypeOf(v any) string {
	switch m := v.(type) {
	case protocol.ConnectionEvent:
		return string(m.Type)
	case protocol.RecordingEvent:
		return string(m.Type)
	case protocol.ASRResultEvent:
		return string(m.Type)
	case protocol.LLMStreamStartEvent:
		return string(m.Type)
	case protocol.LLMStreamChunkEvent:
		return string(m.Type)
	case protocol.LLMStreamEndEvent:
		return string(m.Type)
	case protocol.TTSSentenceCompleteEvent:
		return string(m.Type)
	case protocol.ErrorEvent:
		return string(m.Type)
	case protocol.ParamsEvent:
		return string(m.Type)
	case protocol.PlaybackAckEvent:
		return string(m.Type)
	case protocol.PongEvent:
		return string(protocol.EventPong)
	default:
		return "unknown"
	}
}
