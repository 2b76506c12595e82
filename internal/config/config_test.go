package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ASRMaxAttempts != 3 {
		t.Fatalf("ASRMaxAttempts = %d, want 3", cfg.ASRMaxAttempts)
	}
	if cfg.ASRTimeout != 5*time.Second {
		t.Fatalf("ASRTimeout = %v, want 5s", cfg.ASRTimeout)
	}
	if cfg.MaxSilenceFrames != 10 || cfg.MinSpeechFrames != 3 {
		t.Fatalf("segmenter defaults = %d/%d, want 10/3", cfg.MaxSilenceFrames, cfg.MinSpeechFrames)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow = %d, want 10", cfg.HistoryWindow)
	}
}

func TestLoadUsesExplicitASRServerURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ASR_SERVER_URL", "ws://10.0.0.7:8765")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ASRServerURL != "ws://10.0.0.7:8765" {
		t.Fatalf("ASRServerURL = %q, want explicit value", cfg.ASRServerURL)
	}
}

func TestLoadRejectsBadHeartbeat(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_HEARTBEAT_INTERVAL", "100ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject sub-second heartbeat interval")
	}
}

func TestLoadRejectsOddFrameSize(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUDIO_FRAME_SIZE", "3201")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject odd PCM16 frame size")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_HEARTBEAT_INTERVAL",
		"APP_HEARTBEAT_DEAD_MULTIPLE",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"AUDIO_SAMPLE_RATE",
		"AUDIO_FRAME_SIZE",
		"AUDIO_VAD_WINDOW_FRAMES",
		"AUDIO_RMS_GATE",
		"AUDIO_MIN_SPEECH_FRAMES",
		"AUDIO_MAX_SILENCE_FRAMES",
		"ASR_SERVER_URL",
		"ASR_TIMEOUT",
		"ASR_MAX_ATTEMPTS",
		"ASR_RETRY_BACKOFF",
		"ASR_STREAM_CHUNK_LEN",
		"LLM_PROVIDER",
		"LLM_BASE_URL",
		"LLM_API_KEY",
		"TTS_PROVIDER",
		"TTS_API_BASE",
		"TTS_JOB_TIMEOUT",
		"TTS_JOB_DELAY",
		"AUDIO_STORAGE_DIR",
		"DATABASE_URL",
		"HISTORY_WINDOW",
		"HISTORY_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
