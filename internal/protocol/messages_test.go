package protocol

import (
	"errors"
	"testing"
)

func TestParseClientCommandStart(t *testing.T) {
	raw := []byte(`{"command":"start","model":"m1","history_id":"h1","user_id":"u1"}`)
	cmd, err := ParseClientCommand(raw)
	if err != nil {
		t.Fatalf("ParseClientCommand() error = %v", err)
	}

	start, ok := cmd.(StartCommand)
	if !ok {
		t.Fatalf("command type = %T, want StartCommand", cmd)
	}
	if start.Model != "m1" || start.HistoryID != "h1" || start.UserID != "u1" {
		t.Fatalf("unexpected start command: %+v", start)
	}
}

func TestParseClientCommandRejectsStartWithoutModel(t *testing.T) {
	_, err := ParseClientCommand([]byte(`{"command":"start","history_id":"h1"}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientCommandRejectsUnknown(t *testing.T) {
	_, err := ParseClientCommand([]byte(`{"command":"wat"}`))
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("error = %v, want ErrUnsupportedCommand", err)
	}
}

func TestParseClientCommandBarePing(t *testing.T) {
	for _, raw := range []string{`{"ping":true}`, `{"keep_alive":true}`} {
		cmd, err := ParseClientCommand([]byte(raw))
		if err != nil {
			t.Fatalf("ParseClientCommand(%s) error = %v", raw, err)
		}
		if _, ok := cmd.(PingCommand); !ok {
			t.Fatalf("command type = %T, want PingCommand", cmd)
		}
	}
}

func TestParseClientCommandSetParams(t *testing.T) {
	raw := []byte(`{"command":"set_params","model":"m2","character":"paimon","emotion":"default"}`)
	cmd, err := ParseClientCommand(raw)
	if err != nil {
		t.Fatalf("ParseClientCommand() error = %v", err)
	}

	params, ok := cmd.(SetParamsCommand)
	if !ok {
		t.Fatalf("command type = %T, want SetParamsCommand", cmd)
	}
	if params.Model != "m2" || params.Character != "paimon" {
		t.Fatalf("unexpected set_params command: %+v", params)
	}
	if params.HistoryID != "" {
		t.Fatalf("HistoryID = %q, want empty (untouched)", params.HistoryID)
	}
}

func TestParseClientCommandRejectsEmptySendAudio(t *testing.T) {
	_, err := ParseClientCommand([]byte(`{"command":"send_audio","audio_base64":""}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func BenchmarkParseClientCommandSendAudio(b *testing.B) {
	raw := []byte(`{"command":"send_audio","audio_base64":"AQIDBAUGBwgJCgsMDQ4P"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cmd, err := ParseClientCommand(raw)
		if err != nil {
			b.Fatalf("ParseClientCommand() error = %v", err)
		}
		if _, ok := cmd.(SendAudioCommand); !ok {
			b.Fatalf("command type = %T, want SendAudioCommand", cmd)
		}
	}
}
