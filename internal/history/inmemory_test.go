package history

import (
	"context"
	"fmt"
	"testing"
)

func TestInMemoryStoreRecentTurnsWindow(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		err := s.SaveTurn(ctx, Turn{HistoryID: "h1", UserID: "u1", Role: role, Content: fmt.Sprintf("turn-%d", i)})
		if err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	turns, err := s.RecentTurns(ctx, "h1", 10)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 10 {
		t.Fatalf("len(turns) = %d, want 10", len(turns))
	}
	if turns[0].Content != "turn-5" || turns[9].Content != "turn-14" {
		t.Fatalf("window = [%s .. %s], want [turn-5 .. turn-14]", turns[0].Content, turns[9].Content)
	}
}

func TestInMemoryStoreIsolatesConversations(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.SaveTurn(ctx, Turn{HistoryID: "h1", Role: "user", Content: "a"}); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	turns, err := s.RecentTurns(ctx, "h2", 10)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d, want 0 for unrelated conversation", len(turns))
	}
}
