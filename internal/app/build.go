package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/wenjin27/lingvox/internal/asr"
	"github.com/wenjin27/lingvox/internal/audio"
	"github.com/wenjin27/lingvox/internal/chat"
	"github.com/wenjin27/lingvox/internal/config"
	"github.com/wenjin27/lingvox/internal/history"
	"github.com/wenjin27/lingvox/internal/httpapi"
	"github.com/wenjin27/lingvox/internal/llm"
	"github.com/wenjin27/lingvox/internal/observability"
	"github.com/wenjin27/lingvox/internal/session"
	"github.com/wenjin27/lingvox/internal/tts"
	"github.com/wenjin27/lingvox/internal/voice"
)

// BuildResult holds the assembled service graph.
type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Runner   *voice.Runner
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources
	// (DB pools, audio artifacts, etc).
	Cleanup func() error
}

// Build wires config into a runnable service.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	llmProvider, err := llm.NewProvider(llm.Config{
		Mode:    cfg.LLMProvider,
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
	})
	if err != nil {
		_ = historyStore.Close()
		return nil, fmt.Errorf("llm provider init failed: %w", err)
	}

	ttsProvider, err := tts.NewProvider(tts.Config{
		Mode:    cfg.TTSProvider,
		APIBase: cfg.TTSAPIBase,
	})
	if err != nil {
		_ = historyStore.Close()
		return nil, fmt.Errorf("tts provider init failed: %w", err)
	}

	artifacts, err := tts.NewArtifactStore(cfg.AudioDir, "/static/audio")
	if err != nil {
		_ = historyStore.Close()
		return nil, fmt.Errorf("audio artifact store init failed: %w", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := chat.NewOrchestrator(llmProvider, historyStore, cfg.HistoryWindow, cfg.HistoryTimeout)

	dialASR := func(ctx context.Context, serverURL string) (asr.Recognizer, error) {
		if strings.TrimSpace(serverURL) == "" {
			serverURL = cfg.ASRServerURL
		}
		return asr.Dial(ctx, asr.ClientConfig{
			ServerURL:      serverURL,
			SampleRate:     cfg.SampleRate,
			Timeout:        cfg.ASRTimeout,
			MaxAttempts:    cfg.ASRMaxAttempts,
			RetryBackoff:   cfg.ASRRetryBackoff,
			StreamChunkLen: cfg.ASRStreamChunkLen,
		})
	}

	runner := voice.NewRunner(voice.Config{
		FrameSize:  cfg.FrameSize,
		SampleRate: cfg.SampleRate,
		Segmenter: audio.SegmenterConfig{
			RMSGate:          cfg.RMSGate,
			WindowFrames:     cfg.VADWindowFrames,
			MinSpeechFrames:  cfg.MinSpeechFrames,
			MaxSilenceFrames: cfg.MaxSilenceFrames,
			MinSegmentFrames: audio.DefaultSegmenterConfig().MinSegmentFrames,
		},
		HeartbeatInterval:     cfg.HeartbeatInterval,
		HeartbeatDeadMultiple: cfg.HeartbeatDeadMultiple,
		TTSJobTimeout:         cfg.TTSJobTimeout,
		TTSJobDelay:           cfg.TTSJobDelay,
	}, sessions, metrics, dialASR, orchestrator, ttsProvider, artifacts)

	api := httpapi.New(cfg, sessions, runner, metrics, artifacts.Dir())

	cleanup := func() error {
		var errs []string
		if err := historyStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Runner:   runner,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
