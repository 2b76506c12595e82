package asr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeBackend is a scripted recognition server. The handler receives each
// decoded request and returns zero or more responses to send back.
func fakeBackend(t *testing.T, handler func(req request) []response) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			for _, res := range handler(req) {
				if err := conn.WriteJSON(res); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func testClientConfig(url string) ClientConfig {
	return ClientConfig{
		ServerURL:         url,
		Timeout:           100 * time.Millisecond,
		MaxAttempts:       3,
		RetryBackoff:      10 * time.Millisecond,
		StreamChunkLen:    64,
		StreamSettlePoll:  20 * time.Millisecond,
		StreamSettleCount: 5,
	}
}

func TestRecognizeSegmentDirectSuccess(t *testing.T) {
	ts := fakeBackend(t, func(req request) []response {
		if req.Type != "recognize" {
			t.Errorf("request type = %q, want recognize", req.Type)
		}
		return []response{{RequestID: req.RequestID, Status: "ok", Text: "你好世界", SpeakerVerified: true}}
	})
	defer ts.Close()

	c, err := Dial(context.Background(), testClientConfig(wsURL(ts)))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	res, err := c.RecognizeSegment(context.Background(), make([]byte, 3200), true)
	if err != nil {
		t.Fatalf("RecognizeSegment() error = %v", err)
	}
	if res.Text != "你好世界" || !res.SpeakerVerified {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Mode != ModeDirect {
		t.Fatalf("result mode = %q, want %q", res.Mode, ModeDirect)
	}
}

func TestRecognizeSegmentRetriesThenStreamingFallback(t *testing.T) {
	var direct, streamStarts atomic.Int32
	ts := fakeBackend(t, func(req request) []response {
		switch req.Type {
		case "recognize":
			direct.Add(1)
			// Placeholder text is never a valid result.
			return []response{{RequestID: req.RequestID, Status: "ok", Text: "等待识别结果..."}}
		case "stream_start":
			streamStarts.Add(1)
			return nil
		case "stream_chunk":
			if req.IsEnd {
				return []response{{RequestID: req.RequestID, Status: "ok", Text: "fallback worked"}}
			}
			return nil
		}
		return nil
	})
	defer ts.Close()

	c, err := Dial(context.Background(), testClientConfig(wsURL(ts)))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	res, err := c.RecognizeSegment(context.Background(), make([]byte, 3200), false)
	if err != nil {
		t.Fatalf("RecognizeSegment() error = %v", err)
	}
	if res.Text != "fallback worked" {
		t.Fatalf("result text = %q, want fallback result", res.Text)
	}
	if res.Mode != ModeStream {
		t.Fatalf("result mode = %q, want %q", res.Mode, ModeStream)
	}
	if got := direct.Load(); got != 3 {
		t.Fatalf("direct attempts = %d, want 3", got)
	}
	if got := streamStarts.Load(); got != 1 {
		t.Fatalf("stream starts = %d, want 1", got)
	}
}

func TestRecognizeSegmentTimeoutBound(t *testing.T) {
	var requests atomic.Int32
	ts := fakeBackend(t, func(req request) []response {
		if req.Type == "recognize" {
			requests.Add(1)
		}
		// Never answer anything.
		return nil
	})
	defer ts.Close()

	c, err := Dial(context.Background(), testClientConfig(wsURL(ts)))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	_, err = c.RecognizeSegment(context.Background(), make([]byte, 3200), false)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("direct attempts = %d, want exactly 3", got)
	}
}

func TestRecognizeSegmentNoSpeechShortCircuits(t *testing.T) {
	var requests atomic.Int32
	ts := fakeBackend(t, func(req request) []response {
		requests.Add(1)
		return []response{{RequestID: req.RequestID, Status: "no_speech"}}
	})
	defer ts.Close()

	c, err := Dial(context.Background(), testClientConfig(wsURL(ts)))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	_, err = c.RecognizeSegment(context.Background(), make([]byte, 3200), false)
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("error = %v, want ErrNoSpeech", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (no_speech is definitive)", got)
	}
}

func TestRecognizeSegmentMergesPartialStreamingResults(t *testing.T) {
	ts := fakeBackend(t, func(req request) []response {
		switch req.Type {
		case "recognize":
			return nil // force the fallback
		case "stream_chunk":
			if req.IsEnd {
				return []response{
					{RequestID: req.RequestID, Status: "ok", Text: "partial", Partial: true},
					{RequestID: req.RequestID, Status: "ok", Text: "partial complete", Partial: false},
				}
			}
		}
		return nil
	})
	defer ts.Close()

	c, err := Dial(context.Background(), testClientConfig(wsURL(ts)))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	res, err := c.RecognizeSegment(context.Background(), make([]byte, 3200), false)
	if err != nil {
		t.Fatalf("RecognizeSegment() error = %v", err)
	}
	if res.Text != "partial complete" {
		t.Fatalf("result text = %q, want final merged text", res.Text)
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText(" hello \U0001F600world ")
	if got != "hello world" {
		t.Fatalf("SanitizeText = %q, want %q", got, "hello world")
	}
}

func TestIsValidResultRejectsPlaceholders(t *testing.T) {
	if IsValidResult("等待识别结果...") {
		t.Fatalf("placeholder should not be valid")
	}
	if IsValidResult("   ") {
		t.Fatalf("blank text should not be valid")
	}
	if !IsValidResult("turn on the lights") {
		t.Fatalf("normal text should be valid")
	}
}
