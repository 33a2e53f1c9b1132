// Package session persists conversation history as an append-only
// message log keyed by (user, session).
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

const titleMaxLen = 60

// ErrNotFound marks a missing session for the caller to map to 404.
var ErrNotFound = errors.New("session not found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment records that a file rode along with a message. Content
// bytes are not persisted.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Metadata summarizes how an assistant message was produced.
type Metadata struct {
	ToolsUsed      []string `json:"tools_used,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	ExecutionMs    int64    `json:"execution_ms,omitempty"`
	TranslatedFrom string   `json:"translated_from,omitempty"`
	TranslatedTo   string   `json:"translated_to,omitempty"`
	Truncated      bool     `json:"truncated,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Metadata    Metadata     `json:"metadata,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

type Session struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	MessageCount  int       `json:"message_count"`
}

// Summary is a Session without its message list, for listings.
type Summary struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	MessageCount  int       `json:"message_count"`
}

// Store is the conversation persistence contract. All operations are
// scoped by userID; implementations serialize writes per session.
type Store interface {
	// Append adds a message, creating the session on first write. It is
	// idempotent on (sessionID, message.ID).
	Append(ctx context.Context, userID, sessionID string, msg Message) error

	// List returns summaries most-recent-first by last update.
	List(ctx context.Context, userID string, limit int) ([]Summary, error)

	// Get returns the full session or ErrNotFound.
	Get(ctx context.Context, userID, sessionID string) (*Session, error)

	// Delete removes a session and reports whether anything was removed.
	Delete(ctx context.Context, userID, sessionID string) (bool, error)

	Close() error
}

// deriveTitle builds the session title from the first user message.
func deriveTitle(msg Message) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = "New conversation"
	}
	if len(text) > titleMaxLen {
		cut := text[:titleMaxLen]
		if idx := strings.LastIndex(cut, " "); idx > titleMaxLen/2 {
			cut = cut[:idx]
		}
		text = cut
	}
	return text
}
