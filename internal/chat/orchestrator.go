package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wenjin27/lingvox/internal/history"
	"github.com/wenjin27/lingvox/internal/llm"
)

// StreamCallbacks receive orchestration events in order. Nil callbacks
// are skipped.
type StreamCallbacks struct {
	OnStart    func()
	OnChunk    func(text string)
	OnSentence func(text string, final bool)
	OnEnd      func(fullText, messageID string, usage *llm.Usage)
}

// Orchestrator drives one model reply: prompt assembly from recent
// history, token streaming, incremental sentence splitting, and turn
// persistence.
type Orchestrator struct {
	provider       llm.Provider
	store          history.Store
	historyWindow  int
	historyTimeout time.Duration
	systemPrompt   string
}

func NewOrchestrator(provider llm.Provider, store history.Store, window int, timeout time.Duration) *Orchestrator {
	if window <= 0 {
		window = 10
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Orchestrator{
		provider:       provider,
		store:          store,
		historyWindow:  window,
		historyTimeout: timeout,
	}
}

// SetSystemPrompt installs an optional leading system message.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	o.systemPrompt = prompt
}

// StreamReply runs one full reply for userText. Sentences surface through
// OnSentence as soon as their terminator arrives; the trailing remainder
// is flushed with final=true. On upstream failure no end event is emitted,
// but a non-trivial buffered remainder is still flushed before the error
// returns.
func (o *Orchestrator) StreamReply(ctx context.Context, model, historyID, userID, userText string, cb StreamCallbacks) error {
	messages := o.buildMessages(ctx, historyID, userText)
	o.saveTurn(ctx, historyID, userID, "user", userText)

	if cb.OnStart != nil {
		cb.OnStart()
	}

	var (
		splitter  SentenceSplitter
		full      strings.Builder
		messageID string
		usage     *llm.Usage
	)

	err := o.provider.ChatStream(ctx, model, messages, func(tok llm.StreamToken) error {
		switch tok.Kind {
		case llm.TokenText:
			full.WriteString(tok.Text)
			if cb.OnChunk != nil {
				cb.OnChunk(tok.Text)
			}
			if cb.OnSentence != nil {
				for _, sentence := range splitter.Feed(tok.Text) {
					cb.OnSentence(sentence, false)
				}
			}
		case llm.TokenMetadata:
			if tok.MessageID != "" {
				messageID = tok.MessageID
			}
			if tok.Usage != nil {
				usage = tok.Usage
			}
		}
		return nil
	})
	if err != nil {
		// A dropped stream still flushes what the splitter holds, as long
		// as it is more than punctuation debris.
		if rest := strings.TrimSpace(splitter.Flush()); cb.OnSentence != nil && utf8.RuneCountInString(rest) >= 2 {
			cb.OnSentence(rest, true)
		}
		return fmt.Errorf("chat stream: %w", err)
	}

	if rest := strings.TrimSpace(splitter.Flush()); rest != "" && cb.OnSentence != nil {
		cb.OnSentence(rest, true)
	}

	reply := full.String()
	o.saveTurn(ctx, historyID, userID, "assistant", reply)

	if cb.OnEnd != nil {
		cb.OnEnd(reply, messageID, usage)
	}
	return nil
}

func (o *Orchestrator) buildMessages(ctx context.Context, historyID, userText string) []llm.Message {
	var messages []llm.Message
	if o.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: o.systemPrompt})
	}

	hctx, cancel := context.WithTimeout(ctx, o.historyTimeout)
	defer cancel()
	turns, err := o.store.RecentTurns(hctx, historyID, o.historyWindow)
	if err != nil {
		// A history outage degrades to a contextless prompt, never a
		// failed reply.
		log.Printf("history load failed for %s: %v", historyID, err)
	}
	for _, t := range turns {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: userText})
}

func (o *Orchestrator) saveTurn(ctx context.Context, historyID, userID, role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, o.historyTimeout)
	defer cancel()
	if err := o.store.SaveTurn(sctx, history.Turn{HistoryID: historyID, UserID: userID, Role: role, Content: content}); err != nil {
		log.Printf("history save failed for %s: %v", historyID, err)
	}
}
