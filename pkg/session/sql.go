package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements Store on a SQL database. Concurrency is handled
// by database-level locking; no Go mutex is held across queries.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createSessionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    title VARCHAR(255) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_updated_at TIMESTAMP NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id)
)`

const createSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, last_updated_at)`

const createMessagesSchemaSQL = `
CREATE TABLE IF NOT EXISTS session_messages (
    id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    seq INTEGER NOT NULL,
    role VARCHAR(50) NOT NULL,
    text TEXT,
    attachments_json TEXT,
    metadata_json TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, id)
)`

const createMessagesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id, seq)`

// OpenSQL opens a database by DSN and picks the dialect from its
// scheme. "postgres://..." and "mysql://..." select servers; anything
// else is treated as a SQLite file path.
func OpenSQL(dsn string) (*SQLStore, error) {
	driver, dialect, cleaned := parseDSN(dsn)

	db, err := sql.Open(driver, cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	return NewSQLStore(db, dialect)
}

func parseDSN(dsn string) (driver, dialect, cleaned string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", "postgres", dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", "mysql", strings.TrimPrefix(dsn, "mysql://")
	default:
		return "sqlite3", "sqlite", dsn
	}
}

func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Execute each statement separately for SQLite compatibility.
	statements := []string{
		createSessionsSchemaSQL,
		createSessionsIndexSQL,
		createMessagesSchemaSQL,
		createMessagesIndexSQL,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Append(ctx context.Context, userID, sessionID string, msg Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	owner, exists, err := s.sessionOwnerTx(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if exists && owner != userID {
		// Session ids are globally unique; a colliding write from another
		// user is rejected rather than merged.
		return fmt.Errorf("session %s does not belong to user", sessionID)
	}

	if !exists {
		query := s.placeholders(`INSERT INTO sessions (session_id, user_id, title, created_at, last_updated_at, message_count)
            VALUES (?, ?, ?, ?, ?, 0)`)
		if _, err := tx.ExecContext(ctx, query, sessionID, userID, deriveTitle(msg), now, now); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	attachmentsJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	seq, err := s.nextSeqTx(ctx, tx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	result, err := tx.ExecContext(ctx, s.insertMessageQuery(),
		msg.ID, sessionID, seq, string(msg.Role), msg.Text,
		string(attachmentsJSON), string(metadataJSON), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	// Idempotence on message id: a duplicate insert affects zero rows
	// and must not bump the session counters.
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted > 0 {
		touch := s.placeholders(`UPDATE sessions SET last_updated_at = ?, message_count = message_count + 1
            WHERE session_id = ?`)
		if _, err := tx.ExecContext(ctx, touch, now, sessionID); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, userID string, limit int) ([]Summary, error) {
	query := `SELECT session_id, user_id, title, created_at, last_updated_at, message_count
              FROM sessions WHERE user_id = ? ORDER BY last_updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	query = s.placeholders(query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.SessionID, &sum.UserID, &sum.Title,
			&sum.CreatedAt, &sum.LastUpdatedAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	query := s.placeholders(`SELECT session_id, user_id, title, created_at, last_updated_at, message_count
        FROM sessions WHERE session_id = ? AND user_id = ?`)

	var sess Session
	err := s.db.QueryRowContext(ctx, query, sessionID, userID).Scan(
		&sess.SessionID, &sess.UserID, &sess.Title,
		&sess.CreatedAt, &sess.LastUpdatedAt, &sess.MessageCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	msgQuery := s.placeholders(`SELECT id, role, text, attachments_json, metadata_json, created_at
        FROM session_messages WHERE session_id = ? ORDER BY seq ASC`)

	rows, err := s.db.QueryContext(ctx, msgQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		var role, attachmentsJSON, metadataJSON string
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &attachmentsJSON, &metadataJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = Role(role)
		if attachmentsJSON != "" && attachmentsJSON != "null" {
			if err := json.Unmarshal([]byte(attachmentsJSON), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
			}
		}
		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return &sess, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.placeholders(`DELETE FROM sessions WHERE session_id = ? AND user_id = ?`)
	result, err := tx.ExecContext(ctx, query, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	if removed == 0 {
		return false, nil
	}

	msgQuery := s.placeholders(`DELETE FROM session_messages WHERE session_id = ?`)
	if _, err := tx.ExecContext(ctx, msgQuery, sessionID); err != nil {
		return false, fmt.Errorf("failed to delete messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *SQLStore) sessionOwnerTx(ctx context.Context, tx *sql.Tx, sessionID string) (string, bool, error) {
	query := s.placeholders(`SELECT user_id FROM sessions WHERE session_id = ?`)

	var owner string
	err := tx.QueryRowContext(ctx, query, sessionID).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to check session owner: %w", err)
	}
	return owner, true, nil
}

func (s *SQLStore) nextSeqTx(ctx context.Context, tx *sql.Tx, sessionID string) (int, error) {
	query := s.placeholders(`SELECT COALESCE(MAX(seq), 0) + 1 FROM session_messages WHERE session_id = ?`)

	var seq int
	if err := tx.QueryRowContext(ctx, query, sessionID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *SQLStore) insertMessageQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO session_messages (id, session_id, seq, role, text, attachments_json, metadata_json, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
                ON CONFLICT (session_id, id) DO NOTHING`
	case "mysql":
		return `INSERT IGNORE INTO session_messages (id, session_id, seq, role, text, attachments_json, metadata_json, created_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	default: // sqlite
		return `INSERT INTO session_messages (id, session_id, seq, role, text, attachments_json, metadata_json, created_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT (session_id, id) DO NOTHING`
	}
}

func (s *SQLStore) placeholders(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	return convertToPostgresPlaceholders(query)
}

// convertToPostgresPlaceholders converts ? to $1, $2, etc. in one pass.
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", paramNum)
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

var _ Store = (*SQLStore)(nil)
