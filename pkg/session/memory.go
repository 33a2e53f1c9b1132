package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Used for tests and for
// running without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string]*Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, userID, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userSessions, ok := s.sessions[userID]
	if !ok {
		userSessions = make(map[string]*Session)
		s.sessions[userID] = userSessions
	}

	now := s.now().UTC()
	sess, ok := userSessions[sessionID]
	if !ok {
		sess = &Session{
			SessionID: sessionID,
			UserID:    userID,
			Title:     deriveTitle(msg),
			CreatedAt: now,
		}
		userSessions[sessionID] = sess
	}

	for _, existing := range sess.Messages {
		if existing.ID == msg.ID {
			return nil
		}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.Messages = append(sess.Messages, msg)
	sess.MessageCount = len(sess.Messages)
	sess.LastUpdatedAt = now
	return nil
}

func (s *MemoryStore) List(_ context.Context, userID string, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []Summary
	for _, sess := range s.sessions[userID] {
		summaries = append(summaries, Summary{
			SessionID:     sess.SessionID,
			UserID:        sess.UserID,
			Title:         sess.Title,
			CreatedAt:     sess.CreatedAt,
			LastUpdatedAt: sess.LastUpdatedAt,
			MessageCount:  sess.MessageCount,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastUpdatedAt.After(summaries[j].LastUpdatedAt)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *MemoryStore) Get(_ context.Context, userID, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate the stored message list.
	out := *sess
	out.Messages = make([]Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID][sessionID]; !ok {
		return false, nil
	}
	delete(s.sessions[userID], sessionID)
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
