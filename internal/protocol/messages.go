package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command identifies client command variants.
type Command string

const (
	CommandStart            Command = "start"
	CommandStop             Command = "stop"
	CommandSetParams        Command = "set_params"
	CommandSendAudio        Command = "send_audio"
	CommandDisconnect       Command = "disconnect"
	CommandPlaybackComplete Command = "playback_complete"
	CommandPlaybackError    Command = "playback_error"
	CommandPing             Command = "ping"
)

// EventType identifies server event variants.
type EventType string

const (
	EventConnection          EventType = "connection"
	EventRecording           EventType = "recording"
	EventASRResult           EventType = "asr_result"
	EventLLMStreamStart      EventType = "llm_stream_start"
	EventLLMStreamChunk      EventType = "llm_stream_chunk"
	EventLLMStreamEnd        EventType = "llm_stream_end"
	EventTTSSentenceComplete EventType = "tts_sentence_complete"
	EventError               EventType = "error"
	EventParams              EventType = "params"
	EventPlaybackAck         EventType = "playback_ack"
	EventPong                EventType = "pong"
)

// Recording status values.
const (
	RecordingStarted   = "started"
	RecordingProgress  = "progress"
	RecordingStopped   = "stopped"
	RecordingCompleted = "completed"
	RecordingInfo      = "info"
)

var ErrUnsupportedCommand = errors.New("unsupported command")

type envelope struct {
	Command   Command `json:"command"`
	Ping      bool    `json:"ping"`
	KeepAlive bool    `json:"keep_alive"`
}

// StartCommand begins a recording session.
type StartCommand struct {
	Model     string `json:"model"`
	HistoryID string `json:"history_id"`
	UserID    string `json:"user_id"`
	ServerURL string `json:"server_url,omitempty"`
}

// StopCommand cancels the active recording task.
type StopCommand struct{}

// SetParamsCommand updates session parameters mid-connection. All fields
// are optional; empty fields leave the current value untouched.
type SetParamsCommand struct {
	Model     string `json:"model,omitempty"`
	HistoryID string `json:"history_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Voice     string `json:"voice,omitempty"`
	Character string `json:"character,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
}

// SendAudioCommand carries a base64 audio payload inside a text frame.
// Binary frames are the normal audio path; this is the fallback for
// clients that cannot send binary.
type SendAudioCommand struct {
	AudioBase64 string `json:"audio_base64"`
}

// DisconnectCommand asks the server to tear the session down.
type DisconnectCommand struct{}

// PlaybackCompleteCommand reports client-side playback completion.
type PlaybackCompleteCommand struct {
	AudioURL string `json:"audio_url,omitempty"`
}

// PlaybackErrorCommand reports a client-side playback failure.
type PlaybackErrorCommand struct {
	AudioURL string `json:"audio_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PingCommand is a liveness probe; answered with a pong event.
type PingCommand struct{}

// ParseClientCommand decodes one inbound text frame into a typed command.
func ParseClientCommand(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	// Bare liveness messages have no command tag.
	if env.Command == "" && (env.Ping || env.KeepAlive) {
		return PingCommand{}, nil
	}

	switch env.Command {
	case CommandStart:
		var cmd StartCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		if cmd.Model == "" || cmd.HistoryID == "" {
			return nil, errors.New("start requires model and history_id")
		}
		return cmd, nil
	case CommandStop:
		return StopCommand{}, nil
	case CommandSetParams:
		var cmd SetParamsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandSendAudio:
		var cmd SendAudioCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		if cmd.AudioBase64 == "" {
			return nil, errors.New("send_audio requires audio_base64")
		}
		return cmd, nil
	case CommandDisconnect:
		return DisconnectCommand{}, nil
	case CommandPlaybackComplete:
		var cmd PlaybackCompleteCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandPlaybackError:
		var cmd PlaybackErrorCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandPing:
		return PingCommand{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, env.Command)
	}
}
