package llm

import (
	"context"
	"strings"
)

// MockProvider streams a canned reply, split into small chunks the way a
// real backend would deliver them.
type MockProvider struct {
	Reply string
	Err   error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Reply: "好的，我明白了。I can help with that."}
}

func (m *MockProvider) ChatStream(ctx context.Context, _ string, _ []Message, onToken TokenHandler) error {
	if m.Err != nil {
		return m.Err
	}
	for _, chunk := range splitMockChunks(m.Reply) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onToken(StreamToken{Kind: TokenText, Text: chunk}); err != nil {
			return err
		}
	}
	usage := &Usage{PromptTokens: 12, CompletionTokens: len([]rune(m.Reply)), TotalTokens: 12 + len([]rune(m.Reply))}
	return onToken(StreamToken{Kind: TokenMetadata, MessageID: "mock-message", Usage: usage})
}

func splitMockChunks(s string) []string {
	runes := []rune(s)
	var out []string
	var b strings.Builder
	for i, r := range runes {
		b.WriteRune(r)
		if b.Len() >= 6 || i == len(runes)-1 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	return out
}
