package history

import (
	"context"
	"time"
)

// Turn is a single user or assistant message within a conversation.
type Turn struct {
	ID        string    `json:"id"`
	HistoryID string    `json:"history_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves conversation turns.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, historyID string, limit int) ([]Turn, error)
	Close() error
}
