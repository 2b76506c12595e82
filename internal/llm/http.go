package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenInfoMarker prefixes an inline accounting chunk some backends emit
// as the last piece of the content stream instead of a usage object.
const TokenInfoMarker = "__TOKEN_INFO__"

// HTTPProvider streams chat completions from an OpenAI-compatible endpoint.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (p *HTTPProvider) ChatStream(ctx context.Context, model string, messages []Message, onToken TokenHandler) error {
	payload, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("llm http status %d: %s", res.StatusCode, string(body))
	}

	return p.consumeStream(res.Body, onToken)
}

func (p *HTTPProvider) consumeStream(body io.Reader, onToken TokenHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var messageID string
	metadataSent := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.ID != "" {
			messageID = chunk.ID
		}

		if chunk.Usage != nil {
			metadataSent = true
			if err := onToken(StreamToken{Kind: TokenMetadata, MessageID: messageID, Usage: chunk.Usage}); err != nil {
				return err
			}
			continue
		}

		for _, choice := range chunk.Choices {
			content := choice.Delta.Content
			if content == "" {
				continue
			}
			if strings.HasPrefix(content, TokenInfoMarker) {
				usage, id := parseTokenInfo(strings.TrimPrefix(content, TokenInfoMarker))
				if id != "" {
					messageID = id
				}
				metadataSent = true
				if err := onToken(StreamToken{Kind: TokenMetadata, MessageID: messageID, Usage: usage}); err != nil {
					return err
				}
				continue
			}
			if err := onToken(StreamToken{Kind: TokenText, Text: content}); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}

	if !metadataSent && messageID != "" {
		return onToken(StreamToken{Kind: TokenMetadata, MessageID: messageID})
	}
	return nil
}

func parseTokenInfo(raw string) (*Usage, string) {
	var info struct {
		MessageID string `json:"message_id"`
		Usage
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &info); err != nil {
		return nil, ""
	}
	return &info.Usage, info.MessageID
}
