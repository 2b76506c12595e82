package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Session lifecycle.
	SessionInactivityTimeout time.Duration
	HeartbeatInterval        time.Duration
	HeartbeatDeadMultiple    int

	// Audio segmentation.
	SampleRate       int
	FrameSize        int
	VADWindowFrames  int
	RMSGate          float64
	MinSpeechFrames  int
	MaxSilenceFrames int

	// Recognition backend.
	ASRServerURL      string
	ASRTimeout        time.Duration
	ASRMaxAttempts    int
	ASRRetryBackoff   time.Duration
	ASRStreamChunkLen int

	// LLM backend. The model itself is a per-session parameter carried by
	// the start command, not a server-side knob.
	LLMProvider string
	LLMBaseURL  string
	LLMAPIKey   string

	// Speech synthesis.
	TTSProvider   string
	TTSAPIBase    string
	TTSJobTimeout time.Duration
	TTSJobDelay   time.Duration
	AudioDir      string

	// Chat history persistence.
	DatabaseURL    string
	HistoryWindow  int
	HistoryTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "lingvox"),
		AllowAnyOrigin:           false,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		HeartbeatInterval:        15 * time.Second,
		HeartbeatDeadMultiple:    4,
		SampleRate:               16000,
		// 100ms of PCM16 mono at 16kHz.
		FrameSize:         3200,
		VADWindowFrames:   30,
		RMSGate:           180,
		MinSpeechFrames:   3,
		MaxSilenceFrames:  10,
		ASRServerURL:      envOrDefault("ASR_SERVER_URL", "ws://127.0.0.1:8765"),
		ASRTimeout:        5 * time.Second,
		ASRMaxAttempts:    3,
		ASRRetryBackoff:   500 * time.Millisecond,
		ASRStreamChunkLen: 8192,
		LLMProvider:       envOrDefault("LLM_PROVIDER", "auto"),
		LLMBaseURL:        trimmedEnv("LLM_BASE_URL"),
		LLMAPIKey:         trimmedEnv("LLM_API_KEY"),
		TTSProvider:       envOrDefault("TTS_PROVIDER", "auto"),
		TTSAPIBase:        envOrDefault("TTS_API_BASE", "http://127.0.0.1:5000"),
		TTSJobTimeout:     20 * time.Second,
		TTSJobDelay:       100 * time.Millisecond,
		AudioDir:          envOrDefault("AUDIO_STORAGE_DIR", "static/audio"),
		DatabaseURL:       trimmedEnv("DATABASE_URL"),
		HistoryWindow:     10,
		HistoryTimeout:    2 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = durationFromEnv("APP_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatDeadMultiple, err = intFromEnv("APP_HEARTBEAT_DEAD_MULTIPLE", cfg.HeartbeatDeadMultiple); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.SampleRate, err = intFromEnv("AUDIO_SAMPLE_RATE", cfg.SampleRate); err != nil {
		return Config{}, err
	}
	if cfg.FrameSize, err = intFromEnv("AUDIO_FRAME_SIZE", cfg.FrameSize); err != nil {
		return Config{}, err
	}
	if cfg.VADWindowFrames, err = intFromEnv("AUDIO_VAD_WINDOW_FRAMES", cfg.VADWindowFrames); err != nil {
		return Config{}, err
	}
	if cfg.RMSGate, err = float64FromEnv("AUDIO_RMS_GATE", cfg.RMSGate); err != nil {
		return Config{}, err
	}
	if cfg.MinSpeechFrames, err = intFromEnv("AUDIO_MIN_SPEECH_FRAMES", cfg.MinSpeechFrames); err != nil {
		return Config{}, err
	}
	if cfg.MaxSilenceFrames, err = intFromEnv("AUDIO_MAX_SILENCE_FRAMES", cfg.MaxSilenceFrames); err != nil {
		return Config{}, err
	}
	if cfg.ASRTimeout, err = durationFromEnv("ASR_TIMEOUT", cfg.ASRTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ASRMaxAttempts, err = intFromEnv("ASR_MAX_ATTEMPTS", cfg.ASRMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.ASRRetryBackoff, err = durationFromEnv("ASR_RETRY_BACKOFF", cfg.ASRRetryBackoff); err != nil {
		return Config{}, err
	}
	if cfg.ASRStreamChunkLen, err = intFromEnv("ASR_STREAM_CHUNK_LEN", cfg.ASRStreamChunkLen); err != nil {
		return Config{}, err
	}
	if cfg.TTSJobTimeout, err = durationFromEnv("TTS_JOB_TIMEOUT", cfg.TTSJobTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TTSJobDelay, err = durationFromEnv("TTS_JOB_DELAY", cfg.TTSJobDelay); err != nil {
		return Config{}, err
	}
	if cfg.HistoryWindow, err = intFromEnv("HISTORY_WINDOW", cfg.HistoryWindow); err != nil {
		return Config{}, err
	}
	if cfg.HistoryTimeout, err = durationFromEnv("HISTORY_TIMEOUT", cfg.HistoryTimeout); err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.HeartbeatInterval < time.Second {
		return Config{}, fmt.Errorf("APP_HEARTBEAT_INTERVAL must be at least 1s")
	}
	if cfg.HeartbeatDeadMultiple < 2 {
		return Config{}, fmt.Errorf("APP_HEARTBEAT_DEAD_MULTIPLE must be at least 2")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_SAMPLE_RATE must be positive")
	}
	if cfg.FrameSize <= 0 || cfg.FrameSize%2 != 0 {
		return Config{}, fmt.Errorf("AUDIO_FRAME_SIZE must be a positive even byte count")
	}
	if cfg.VADWindowFrames <= 0 {
		return Config{}, fmt.Errorf("AUDIO_VAD_WINDOW_FRAMES must be positive")
	}
	if cfg.RMSGate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_RMS_GATE must be positive")
	}
	if cfg.MinSpeechFrames <= 0 {
		return Config{}, fmt.Errorf("AUDIO_MIN_SPEECH_FRAMES must be positive")
	}
	if cfg.MaxSilenceFrames <= 0 {
		return Config{}, fmt.Errorf("AUDIO_MAX_SILENCE_FRAMES must be positive")
	}
	if cfg.ASRMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("ASR_MAX_ATTEMPTS must be positive")
	}
	if cfg.ASRStreamChunkLen <= 0 {
		return Config{}, fmt.Errorf("ASR_STREAM_CHUNK_LEN must be positive")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("HISTORY_WINDOW must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func float64FromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
