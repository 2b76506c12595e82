package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wenjin27/lingvox/internal/audio"
	"github.com/wenjin27/lingvox/internal/reliability"
)

var (
	// ErrNoSpeech means the recognizer saw the audio but found no speech.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrTimeout means every attempt, including the streaming fallback,
	// failed to produce a valid result in time.
	ErrTimeout = errors.New("recognition timed out")
	// ErrClosed means the client connection has been shut down.
	ErrClosed = errors.New("recognition client closed")
)

// Recognition modes, reported on each Result for observability.
const (
	ModeDirect = "direct"
	ModeStream = "stream"
)

// Result is one terminal recognition outcome.
type Result struct {
	Text            string
	SpeakerVerified bool
	Mode            string
}

// Recognizer turns one speech segment into text.
type Recognizer interface {
	RecognizeSegment(ctx context.Context, pcm []byte, verifySpeaker bool) (Result, error)
	Close() error
}

// ClientConfig tunes the websocket recognition client.
type ClientConfig struct {
	ServerURL      string
	SampleRate     int
	Timeout        time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	StreamChunkLen int

	// Settle window for the streaming fallback: how long, and in how
	// many polls, to wait for a late result to materialize.
	StreamSettlePoll  time.Duration
	StreamSettleCount int
}

func (c *ClientConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.StreamChunkLen <= 0 {
		c.StreamChunkLen = 8192
	}
	if c.StreamSettlePoll <= 0 {
		c.StreamSettlePoll = 500 * time.Millisecond
	}
	if c.StreamSettleCount <= 0 {
		c.StreamSettleCount = 10
	}
}

type request struct {
	Type          string `json:"type"`
	RequestID     string `json:"request_id"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	VerifySpeaker bool   `json:"verify_speaker,omitempty"`
	IsEnd         bool   `json:"is_end,omitempty"`
}

type response struct {
	RequestID       string `json:"request_id"`
	Status          string `json:"status"`
	Text            string `json:"text"`
	SpeakerVerified bool   `json:"speaker_verified"`
	Partial         bool   `json:"partial"`
}

// Client maintains one websocket connection to the recognition backend
// and correlates responses to requests by id.
type Client struct {
	cfg  ClientConfig
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan response

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the recognition connection and starts the read loop.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	cfg.applyDefaults()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial recognition websocket: %w", err)
	}
	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// RecognizeSegment sends the segment for recognition. Direct attempts run
// first with a short backoff between them; if none yields a valid result
// the segment is replayed once in chunked streaming mode. Speaker
// verification is orthogonal: an unverified result is still returned,
// tagged, never discarded.
func (c *Client) RecognizeSegment(ctx context.Context, pcm []byte, verifySpeaker bool) (Result, error) {
	wav, err := audio.EncodeWAVPCM16LE(pcm, c.cfg.SampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encode segment: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(wav)

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.cfg.RetryBackoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-c.done:
				return Result{}, ErrClosed
			}
		}

		res, err := c.recognizeOnce(ctx, payload, verifySpeaker)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrNoSpeech):
			// Definitive answer, not worth another attempt.
			return Result{}, err
		case errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled):
			return Result{}, err
		}
	}

	// All direct attempts exhausted; replay the segment chunk by chunk.
	res, err := c.recognizeStreaming(ctx, payload, verifySpeaker)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (c *Client) recognizeOnce(ctx context.Context, payload string, verifySpeaker bool) (Result, error) {
	id := uuid.NewString()
	ch := c.register(id)
	defer c.unregister(id)

	req := request{
		Type:          "recognize",
		RequestID:     id,
		AudioBase64:   payload,
		SampleRate:    c.cfg.SampleRate,
		VerifySpeaker: verifySpeaker,
	}
	if err := c.writeJSON(req); err != nil {
		return Result{}, fmt.Errorf("send recognition request: %w", err)
	}
	return c.awaitResult(ctx, ch, c.cfg.Timeout)
}

// Pacing between streamed chunks keeps the backend's inbound buffer calm.
const streamChunkPacing = 10 * time.Millisecond

func (c *Client) recognizeStreaming(ctx context.Context, payload string, verifySpeaker bool) (Result, error) {
	id := uuid.NewString()
	ch := c.register(id)
	defer c.unregister(id)

	if err := c.writeJSON(request{Type: "stream_start", RequestID: id, SampleRate: c.cfg.SampleRate, VerifySpeaker: verifySpeaker}); err != nil {
		return Result{}, fmt.Errorf("start streaming recognition: %w", err)
	}

	chunkLen := c.cfg.StreamChunkLen
	for off := 0; off < len(payload); off += chunkLen {
		end := off + chunkLen
		if end > len(payload) {
			end = len(payload)
		}
		req := request{
			Type:        "stream_chunk",
			RequestID:   id,
			AudioBase64: payload[off:end],
			IsEnd:       end == len(payload),
		}
		if err := c.writeJSON(req); err != nil {
			return Result{}, fmt.Errorf("send streaming chunk: %w", err)
		}
		if !req.IsEnd {
			select {
			case <-time.After(streamChunkPacing):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-c.done:
				return Result{}, ErrClosed
			}
		}
	}

	// Settle period: partial results may trickle in; keep the best merged
	// text seen so far and prefer it over reporting a bare timeout.
	var merged string
	var verified bool
	deadline := time.Now().Add(c.cfg.StreamSettlePoll * time.Duration(c.cfg.StreamSettleCount))
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		wait := c.cfg.StreamSettlePoll
		if remaining < wait {
			wait = remaining
		}
		res, err := c.awaitResponse(ctx, ch, wait)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return Result{}, err
		}
		switch res.Status {
		case "no_speech":
			if merged == "" {
				return Result{}, ErrNoSpeech
			}
			return Result{Text: merged, SpeakerVerified: verified, Mode: ModeStream}, nil
		case "error":
			return Result{}, fmt.Errorf("recognition backend error for stream %s", id)
		}
		if IsValidResult(res.Text) {
			merged = SanitizeText(res.Text)
			verified = res.SpeakerVerified
		}
		if !res.Partial {
			break
		}
	}
	if merged == "" {
		return Result{}, ErrTimeout
	}
	return Result{Text: merged, SpeakerVerified: verified, Mode: ModeStream}, nil
}

func (c *Client) awaitResult(ctx context.Context, ch <-chan response, timeout time.Duration) (Result, error) {
	res, err := c.awaitResponse(ctx, ch, timeout)
	if err != nil {
		return Result{}, err
	}
	switch res.Status {
	case "no_speech":
		return Result{}, ErrNoSpeech
	case "error":
		return Result{}, fmt.Errorf("recognition backend error: %s", res.Status)
	}
	if reliability.IsRetryableRecognitionStatus(res.Status) {
		return Result{}, ErrTimeout
	}
	if !IsValidResult(res.Text) {
		return Result{}, ErrTimeout
	}
	return Result{Text: SanitizeText(res.Text), SpeakerVerified: res.SpeakerVerified, Mode: ModeDirect}, nil
}

func (c *Client) awaitResponse(ctx context.Context, ch <-chan response, timeout time.Duration) (response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res, ok := <-ch:
		if !ok {
			return response{}, ErrClosed
		}
		return res, nil
	case <-timer.C:
		return response{}, ErrTimeout
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-c.done:
		return response{}, ErrClosed
	}
}

func (c *Client) register(id string) chan response {
	ch := make(chan response, 8)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) writeJSON(v any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var res response
		if err := json.Unmarshal(data, &res); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[res.RequestID]
		c.mu.Unlock()
		if !ok {
			// Stale response for a purged correlation entry.
			continue
		}
		select {
		case ch <- res:
		default:
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
