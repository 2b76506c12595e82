package protocol

// ConnectionEvent is sent once after the websocket is accepted.
type ConnectionEvent struct {
	Type     EventType `json:"type"`
	ClientID string    `json:"client_id"`
	Message  string    `json:"message,omitempty"`
}

// RecordingEvent reports recording task state transitions.
type RecordingEvent struct {
	Type       EventType `json:"type"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Current    int       `json:"current,omitempty"`
	Total      int       `json:"total,omitempty"`
	Percentage float64   `json:"percentage,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// ASRResultEvent carries the recognized text for one speech segment.
type ASRResultEvent struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
}

type LLMStreamStartEvent struct {
	Type EventType `json:"type"`
}

type LLMStreamChunkEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// TokenUsage is the token accounting attached to a finished reply.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type LLMStreamEndEvent struct {
	Type      EventType   `json:"type"`
	FullText  string      `json:"full_text"`
	MessageID string      `json:"message_id,omitempty"`
	TokenInfo *TokenUsage `json:"token_info,omitempty"`
}

// TTSSentenceCompleteEvent announces one synthesized sentence. Final marks
// the flush of a trailing unterminated remainder at stream end.
type TTSSentenceCompleteEvent struct {
	Type     EventType `json:"type"`
	Text     string    `json:"text"`
	AudioURL string    `json:"audio_url"`
	Final    bool      `json:"final,omitempty"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// ParamsEvent echoes the effective session parameters after set_params.
type ParamsEvent struct {
	Type   EventType         `json:"type"`
	Status string            `json:"status"`
	Params map[string]string `json:"params"`
}

// PlaybackAckEvent confirms a playback_complete/playback_error report.
type PlaybackAckEvent struct {
	Type   EventType `json:"type"`
	Status string    `json:"status"`
}

// PongEvent answers ping/keep_alive probes.
type PongEvent struct {
	Pong      bool    `json:"pong"`
	Timestamp float64 `json:"timestamp"`
}

func NewConnectionEvent(clientID string) ConnectionEvent {
	return ConnectionEvent{Type: EventConnection, ClientID: clientID, Message: "connected"}
}

func NewRecordingEvent(status string) RecordingEvent {
	return RecordingEvent{Type: EventRecording, Status: status}
}

func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: code, Message: message}
}
