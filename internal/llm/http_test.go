package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderStreamsSSE(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"msg-1\",\"choices\":[{\"delta\":{\"content\":\"你好\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"msg-1\",\"choices\":[{\"delta\":{\"content\":\"，世界\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"msg-1\",\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":4,\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, "test-key")

	var texts []string
	var meta *StreamToken
	err := p.ChatStream(context.Background(), "m1", []Message{{Role: "user", Content: "hi"}}, func(tok StreamToken) error {
		switch tok.Kind {
		case TokenText:
			texts = append(texts, tok.Text)
		case TokenMetadata:
			copied := tok
			meta = &copied
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	if len(texts) != 2 || texts[0] != "你好" || texts[1] != "，世界" {
		t.Fatalf("texts = %v", texts)
	}
	if meta == nil {
		t.Fatalf("missing metadata token")
	}
	if meta.MessageID != "msg-1" || meta.Usage == nil || meta.Usage.TotalTokens != 9 {
		t.Fatalf("unexpected metadata token: %+v", meta)
	}
}

func TestHTTPProviderParsesInlineTokenInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello.\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"__TOKEN_INFO__{\\\"message_id\\\":\\\"m-9\\\",\\\"prompt_tokens\\\":3,\\\"completion_tokens\\\":2,\\\"total_tokens\\\":5}\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, "")

	var texts []string
	var meta *StreamToken
	err := p.ChatStream(context.Background(), "m1", nil, func(tok StreamToken) error {
		if tok.Kind == TokenText {
			texts = append(texts, tok.Text)
		} else {
			copied := tok
			meta = &copied
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	if len(texts) != 1 || texts[0] != "hello." {
		t.Fatalf("texts = %v, marker chunk must not surface as display text", texts)
	}
	if meta == nil || meta.MessageID != "m-9" || meta.Usage == nil || meta.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected metadata token: %+v", meta)
	}
}

func TestHTTPProviderReportsUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, "")
	err := p.ChatStream(context.Background(), "m1", nil, func(StreamToken) error { return nil })
	if err == nil {
		t.Fatalf("expected error for 503 response")
	}
}
