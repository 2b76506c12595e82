package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wenjin27/lingvox/internal/asr"
	"github.com/wenjin27/lingvox/internal/audio"
	"github.com/wenjin27/lingvox/internal/chat"
	"github.com/wenjin27/lingvox/internal/llm"
	"github.com/wenjin27/lingvox/internal/observability"
	"github.com/wenjin27/lingvox/internal/protocol"
	"github.com/wenjin27/lingvox/internal/session"
	"github.com/wenjin27/lingvox/internal/tts"
)

// AudioFrame is one inbound binary PCM frame, forwarded by the gateway
// alongside parsed text commands.
type AudioFrame []byte

// Config tunes per-connection behavior.
type Config struct {
	FrameSize             int
	SampleRate            int
	Segmenter             audio.SegmenterConfig
	HeartbeatInterval     time.Duration
	HeartbeatDeadMultiple int
	RecordMaxFrames       int
	ProgressInterval      time.Duration
	TTSJobTimeout         time.Duration
	TTSJobDelay           time.Duration
}

func (c *Config) applyDefaults() {
	if c.FrameSize <= 0 {
		c.FrameSize = 3200
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.HeartbeatDeadMultiple < 2 {
		c.HeartbeatDeadMultiple = 4
	}
	if c.RecordMaxFrames <= 0 {
		c.RecordMaxFrames = 600 // one minute of 100ms frames
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = time.Second
	}
}

// DialRecognizer opens the per-session recognition sub-connection.
// serverURL overrides the configured backend when non-empty.
type DialRecognizer func(ctx context.Context, serverURL string) (asr.Recognizer, error)

// Runner builds and drives one pipeline per websocket connection.
type Runner struct {
	cfg       Config
	sessions  *session.Manager
	metrics   *observability.Metrics
	dialASR   DialRecognizer
	chat      *chat.Orchestrator
	tts       tts.Provider
	artifacts *tts.ArtifactStore
}

func NewRunner(cfg Config, sessions *session.Manager, metrics *observability.Metrics, dialASR DialRecognizer, orchestrator *chat.Orchestrator, ttsProvider tts.Provider, artifacts *tts.ArtifactStore) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:       cfg,
		sessions:  sessions,
		metrics:   metrics,
		dialASR:   dialASR,
		chat:      orchestrator,
		tts:       ttsProvider,
		artifacts: artifacts,
	}
}

// RunConnection owns one connection's task set: command dispatch,
// recording/segmentation, recognition, reply streaming, synthesis, and
// the heartbeat. It returns when the peer disconnects, the heartbeat
// declares the connection dead, or a disconnect command arrives.
func (r *Runner) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{
		runner:   r,
		clientID: sess.ClientID,
		ctx:      ctx,
		cancel:   cancel,
		outbound: outbound,
	}
	c.queue = tts.NewQueue(tts.QueueConfig{
		ClientID:   sess.ClientID,
		JobTimeout: r.cfg.TTSJobTimeout,
		JobDelay:   r.cfg.TTSJobDelay,
	}, r.tts, r.artifacts, c.onSynthesisEvent)
	c.queue.Start()
	defer c.teardown()

	c.send(protocol.NewConnectionEvent(sess.ClientID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return c.heartbeat(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.dispatchLoop(gctx, inbound)
	})
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// conn is the mutable state of one live connection. All fields past the
// mutex are owned by this connection's tasks only.
type conn struct {
	runner   *Runner
	clientID string
	ctx      context.Context
	cancel   context.CancelFunc
	outbound chan<- any
	queue    *tts.Queue

	mu         sync.Mutex
	recognizer asr.Recognizer
	recCancel  context.CancelFunc
	recFrames  chan []byte
	recDone    chan struct{}

	teardownOnce sync.Once
}

var errConnectionDead = errors.New("connection dead: missed heartbeats")

func (c *conn) heartbeat(ctx context.Context) error {
	interval := c.runner.cfg.HeartbeatInterval
	deadAfter := interval * time.Duration(c.runner.cfg.HeartbeatDeadMultiple)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s, err := c.runner.sessions.Get(c.clientID)
			if err != nil {
				return nil
			}
			if time.Since(s.LastActivityAt) > deadAfter {
				return errConnectionDead
			}
		}
	}
}

func (c *conn) dispatchLoop(ctx context.Context, inbound <-chan any) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			_ = c.runner.sessions.Touch(c.clientID)
			if done := c.dispatch(ctx, msg); done {
				return nil
			}
		}
	}
}

// dispatch maps one command to exactly one handler. Unknown payloads get
// a structured error without altering state.
func (c *conn) dispatch(ctx context.Context, msg any) (done bool) {
	switch cmd := msg.(type) {
	case protocol.StartCommand:
		c.handleStart(ctx, cmd)
	case protocol.StopCommand:
		c.handleStop()
	case protocol.SetParamsCommand:
		c.handleSetParams(cmd)
	case protocol.SendAudioCommand:
		c.handleSendAudio(cmd)
	case AudioFrame:
		c.feedAudio([]byte(cmd))
	case protocol.PingCommand:
		c.send(protocol.PongEvent{Pong: true, Timestamp: float64(time.Now().UnixMilli()) / 1000})
	case protocol.PlaybackCompleteCommand:
		_ = c.runner.sessions.SetPlayback(c.clientID, false)
		c.send(protocol.PlaybackAckEvent{Type: protocol.EventPlaybackAck, Status: "complete"})
	case protocol.PlaybackErrorCommand:
		log.Printf("client %s playback error: %s", c.clientID, cmd.Message)
		_ = c.runner.sessions.SetPlayback(c.clientID, false)
		c.send(protocol.PlaybackAckEvent{Type: protocol.EventPlaybackAck, Status: "error"})
	case protocol.DisconnectCommand:
		return true
	default:
		c.send(protocol.NewErrorEvent("unsupported_command", fmt.Sprintf("unsupported command %T", msg)))
	}
	return false
}

func (c *conn) handleStart(ctx context.Context, cmd protocol.StartCommand) {
	params := session.Params{Model: cmd.Model, HistoryID: cmd.HistoryID, UserID: cmd.UserID}
	if err := c.runner.sessions.Activate(c.clientID, params); err != nil {
		c.send(protocol.NewErrorEvent("session_not_found", err.Error()))
		return
	}

	c.mu.Lock()
	if c.recFrames != nil {
		c.mu.Unlock()
		ev := protocol.NewRecordingEvent(protocol.RecordingInfo)
		ev.Message = "recording already active"
		c.send(ev)
		return
	}
	if c.recognizer == nil {
		rec, err := c.runner.dialASR(ctx, cmd.ServerURL)
		if err != nil {
			c.mu.Unlock()
			c.send(protocol.NewErrorEvent("asr_unavailable", err.Error()))
			return
		}
		c.recognizer = rec
	}
	rctx, rcancel := context.WithCancel(ctx)
	frames := make(chan []byte, 256)
	done := make(chan struct{})
	c.recCancel = rcancel
	c.recFrames = frames
	c.recDone = done
	c.mu.Unlock()

	c.runner.metrics.SessionEvents.WithLabelValues("recording_started").Inc()
	_ = c.runner.sessions.SetRecording(c.clientID, true)
	c.send(protocol.NewRecordingEvent(protocol.RecordingStarted))

	go c.recordingTask(rctx, frames, done)
}

func (c *conn) handleStop() {
	c.mu.Lock()
	cancel, done := c.recCancel, c.recDone
	c.recCancel, c.recFrames, c.recDone = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		// Always safe to call; reported, not fatal.
		ev := protocol.NewRecordingEvent(protocol.RecordingInfo)
		ev.Message = "no active recording"
		c.send(ev)
		return
	}
	cancel()
	<-done
	_ = c.runner.sessions.SetRecording(c.clientID, false)
	c.send(protocol.NewRecordingEvent(protocol.RecordingStopped))
}

func (c *conn) handleSetParams(cmd protocol.SetParamsCommand) {
	patch := session.Params{
		Model:     cmd.Model,
		HistoryID: cmd.HistoryID,
		UserID:    cmd.UserID,
		Provider:  cmd.Provider,
		Voice:     cmd.Voice,
		Character: cmd.Character,
		Emotion:   cmd.Emotion,
	}
	effective, err := c.runner.sessions.UpdateParams(c.clientID, patch)
	if err != nil {
		c.send(protocol.NewErrorEvent("session_not_found", err.Error()))
		return
	}
	c.queue.SetParams(tts.Params{Voice: effective.Voice, Character: effective.Character, Emotion: effective.Emotion})
	c.send(protocol.ParamsEvent{
		Type:   protocol.EventParams,
		Status: "updated",
		Params: map[string]string{
			"model":      effective.Model,
			"history_id": effective.HistoryID,
			"user_id":    effective.UserID,
			"provider":   effective.Provider,
			"voice":      effective.Voice,
			"character":  effective.Character,
			"emotion":    effective.Emotion,
		},
	})
}

func (c *conn) handleSendAudio(cmd protocol.SendAudioCommand) {
	data, err := base64.StdEncoding.DecodeString(cmd.AudioBase64)
	if err != nil {
		c.send(protocol.NewErrorEvent("invalid_audio", "audio_base64 is not valid base64"))
		return
	}
	c.feedAudio(data)
}

// feedAudio slices raw PCM into fixed-size frames for the recording task.
// Audio arriving while no recording is active is dropped.
func (c *conn) feedAudio(data []byte) {
	c.mu.Lock()
	frames := c.recFrames
	c.mu.Unlock()
	if frames == nil {
		return
	}

	frameSize := c.runner.cfg.FrameSize
	for off := 0; off < len(data); off += frameSize {
		end := off + frameSize
		if end > len(data) {
			end = len(data)
		}
		frame := make([]byte, end-off)
		copy(frame, data[off:end])
		select {
		case frames <- frame:
		case <-c.ctx.Done():
			return
		default:
			// Segmentation fell behind; dropping is better than stalling
			// the dispatch loop.
		}
	}
}

// recordingTask consumes frames, detects speech segments, and runs each
// segment through recognition and reply streaming sequentially. A
// progress reporter runs alongside it.
func (c *conn) recordingTask(ctx context.Context, frames <-chan []byte, done chan<- struct{}) {
	defer close(done)

	segmenter := audio.NewSegmenter(c.runner.cfg.Segmenter, nil)
	var frameCount atomic.Int64

	progressDone := make(chan struct{})
	go c.progressReporter(ctx, &frameCount, progressDone)
	defer func() { <-progressDone }()

	for {
		select {
		case <-ctx.Done():
			// A stop mid-speech still flushes a valid segment. Its
			// recognition and reply run detached on the connection
			// context so the stop ack is not held behind them.
			if segment, ok := segmenter.Flush(); ok {
				go c.processSegment(segment)
			}
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			total := frameCount.Add(1)
			if segment, ok := segmenter.Push(frame); ok {
				c.runner.metrics.SegmentsDetected.Inc()
				c.processSegment(segment)
			}
			if total >= int64(c.runner.cfg.RecordMaxFrames) {
				ev := protocol.NewRecordingEvent(protocol.RecordingInfo)
				ev.Message = "maximum recording length reached"
				c.send(ev)
				if segment, ok := segmenter.Flush(); ok {
					c.processSegment(segment)
				}
				return
			}
		}
	}
}

func (c *conn) progressReporter(ctx context.Context, frameCount *atomic.Int64, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.runner.cfg.ProgressInterval)
	defer ticker.Stop()

	total := c.runner.cfg.RecordMaxFrames
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := int(frameCount.Load())
			ev := protocol.NewRecordingEvent(protocol.RecordingProgress)
			ev.Current = current
			ev.Total = total
			ev.Percentage = float64(current) / float64(total) * 100
			c.send(ev)
		}
	}
}

// processSegment runs recognition and, on valid text, the reply stream.
// Uses the connection context so a completed segment's reply survives a
// stop command.
func (c *conn) processSegment(segment audio.Segment) {
	c.mu.Lock()
	recognizer := c.recognizer
	c.mu.Unlock()
	if recognizer == nil {
		return
	}

	result, err := recognizer.RecognizeSegment(c.ctx, segment.PCM, true)
	// Failures span the direct attempts and the streaming fallback, so
	// they carry a combined mode label; successes report the mode that
	// actually produced the text.
	switch {
	case errors.Is(err, asr.ErrNoSpeech):
		c.runner.metrics.RecognitionAttempts.WithLabelValues("combined", "no_speech").Inc()
		ev := protocol.NewRecordingEvent(protocol.RecordingInfo)
		ev.Message = "no speech detected"
		c.send(ev)
		return
	case errors.Is(err, asr.ErrTimeout):
		c.runner.metrics.RecognitionAttempts.WithLabelValues("combined", "timeout").Inc()
		c.send(protocol.NewErrorEvent("asr_timeout", "recognition timed out"))
		return
	case err != nil:
		c.runner.metrics.RecognitionAttempts.WithLabelValues("combined", "error").Inc()
		c.send(protocol.NewErrorEvent("asr_error", err.Error()))
		return
	}
	mode := result.Mode
	if mode == "" {
		mode = asr.ModeDirect
	}
	c.runner.metrics.RecognitionAttempts.WithLabelValues(mode, "ok").Inc()

	completed := protocol.NewRecordingEvent(protocol.RecordingCompleted)
	completed.Text = result.Text
	c.send(completed)
	c.send(protocol.ASRResultEvent{Type: protocol.EventASRResult, Text: result.Text})

	c.streamReply(result.Text)
}

func (c *conn) streamReply(userText string) {
	s, err := c.runner.sessions.Get(c.clientID)
	if err != nil {
		return
	}

	recognizedAt := time.Now()
	var firstToken sync.Once

	err = c.runner.chat.StreamReply(c.ctx, s.Params.Model, s.Params.HistoryID, s.Params.UserID, userText, chat.StreamCallbacks{
		OnStart: func() {
			c.send(protocol.LLMStreamStartEvent{Type: protocol.EventLLMStreamStart})
		},
		OnChunk: func(text string) {
			firstToken.Do(func() {
				c.runner.metrics.ObserveFirstTokenLatency(time.Since(recognizedAt))
			})
			c.send(protocol.LLMStreamChunkEvent{Type: protocol.EventLLMStreamChunk, Content: text})
		},
		OnSentence: func(text string, final bool) {
			c.queue.Enqueue(text, final)
		},
		OnEnd: func(full, messageID string, usage *llm.Usage) {
			ev := protocol.LLMStreamEndEvent{Type: protocol.EventLLMStreamEnd, FullText: full, MessageID: messageID}
			if usage != nil {
				ev.TokenInfo = &protocol.TokenUsage{
					PromptTokens:     usage.PromptTokens,
					CompletionTokens: usage.CompletionTokens,
					TotalTokens:      usage.TotalTokens,
				}
			}
			c.send(ev)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.send(protocol.NewErrorEvent("llm_error", err.Error()))
	}
}

func (c *conn) onSynthesisEvent(e tts.Event) {
	if e.Err != nil {
		c.runner.metrics.SynthesisJobs.WithLabelValues("error").Inc()
		c.send(protocol.NewErrorEvent("tts_error", fmt.Sprintf("synthesis failed for %q: %v", e.Text, e.Err)))
		return
	}
	c.runner.metrics.SynthesisJobs.WithLabelValues("ok").Inc()
	_ = c.runner.sessions.SetPlayback(c.clientID, true)
	c.send(protocol.TTSSentenceCompleteEvent{
		Type:     protocol.EventTTSSentenceComplete,
		Text:     e.Text,
		AudioURL: e.AudioURL,
		Final:    e.Final,
	})
}

// send queues one outbound event without ever blocking the pipeline; the
// gateway's writer drains the channel.
func (c *conn) send(v any) {
	select {
	case c.outbound <- v:
	case <-c.ctx.Done():
	default:
		log.Printf("client %s outbound queue full, dropping %T", c.clientID, v)
	}
}

// teardown cancels every task, closes the recognition sub-connection,
// and releases session-scoped resources. Idempotent.
func (c *conn) teardown() {
	c.teardownOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		cancel, done := c.recCancel, c.recDone
		recognizer := c.recognizer
		c.recCancel, c.recFrames, c.recDone = nil, nil, nil
		c.recognizer = nil
		c.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		c.queue.Close()
		if recognizer != nil {
			_ = recognizer.Close()
		}
		if err := c.runner.artifacts.CleanupClient(c.clientID); err != nil {
			log.Printf("client %s artifact cleanup: %v", c.clientID, err)
		}
		if _, ok := c.runner.sessions.Close(c.clientID); ok {
			c.runner.metrics.SessionEvents.WithLabelValues("closed").Inc()
		}
	})
}
