package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMsg(id, text string) Message {
	return Message{ID: id, Role: RoleUser, Text: text}
}

func TestMemoryStoreAppendCreatesSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Append(ctx, "u1", "s1", userMsg("m1", "How much nitrogen does rice need?"))
	require.NoError(t, err)

	sess, err := store.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "How much nitrogen does rice need?", sess.Title)
	assert.Equal(t, 1, sess.MessageCount)
	require.Len(t, sess.Messages, 1)
	assert.False(t, sess.Messages[0].Timestamp.IsZero())
}

func TestMemoryStoreAppendIdempotentOnMessageID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	msg := userMsg("m1", "hello")
	require.NoError(t, store.Append(ctx, "u1", "s1", msg))
	require.NoError(t, store.Append(ctx, "u1", "s1", msg))
	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("m2", "again")))

	sess, err := store.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.MessageCount)
	assert.Len(t, sess.Messages, sess.MessageCount)
}

func TestMemoryStoreListMostRecentFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	store.now = func() time.Time { return clock }

	for i, id := range []string{"s1", "s2", "s3"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Append(ctx, "u1", id, userMsg("m1", "q")))
	}

	// Touching s1 moves it to the front.
	clock = base.Add(time.Hour)
	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("m2", "followup")))

	summaries, err := store.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "s1", summaries[0].SessionID)
	assert.Equal(t, "s3", summaries[1].SessionID)

	limited, err := store.List(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStoreScopedByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("m1", "mine")))

	_, err := store.Get(ctx, "u2", "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	summaries, err := store.List(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	removed, err := store.Delete(ctx, "u2", "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("m1", "q")))

	removed, err := store.Delete(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = store.Get(ctx, "u1", "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", "s1", userMsg("m1", "q")))

	sess, err := store.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	sess.Messages[0].Text = "mutated"

	again, err := store.Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "q", again.Messages[0].Text)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"short text kept", "Best crop for sandy soil?", "Best crop for sandy soil?"},
		{"empty falls back", "   ", "New conversation"},
		{
			"long text cut at word boundary",
			"What is the recommended fertilizer schedule for wheat grown in the northern plains during winter",
			"What is the recommended fertilizer schedule for wheat grown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveTitle(Message{Text: tt.text})
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), titleMaxLen)
		})
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		driver  string
		dialect string
	}{
		{"postgres://u:p@localhost/agrosage", "postgres", "postgres"},
		{"postgresql://u:p@localhost/agrosage", "postgres", "postgres"},
		{"mysql://u:p@tcp(localhost:3306)/agrosage", "mysql", "mysql"},
		{"/var/lib/agrosage/sessions.db", "sqlite3", "sqlite"},
	}
	for _, tt := range tests {
		driver, dialect, _ := parseDSN(tt.dsn)
		assert.Equal(t, tt.driver, driver, tt.dsn)
		assert.Equal(t, tt.dialect, dialect, tt.dsn)
	}
}

func TestConvertToPostgresPlaceholders(t *testing.T) {
	got := convertToPostgresPlaceholders("INSERT INTO t (a, b) VALUES (?, ?) ON CONFLICT DO NOTHING")
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2) ON CONFLICT DO NOTHING", got)
	assert.False(t, strings.Contains(got, "?"))
}
