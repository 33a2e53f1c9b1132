package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLUserStore implements UserStore on a SQL database. Concurrency is
// handled by database-level locking.
type SQLUserStore struct {
	db      *sql.DB
	dialect string
}

const createUsersSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    full_name VARCHAR(255),
    role VARCHAR(50) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL,
    last_login TIMESTAMP NULL,
    PRIMARY KEY (id)
)`

const createUsersEmailIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`

// OpenSQL opens a database by DSN and picks the dialect from its
// scheme. "postgres://..." and "mysql://..." select servers; anything
// else is treated as a SQLite file path.
func OpenSQL(dsn string) (*SQLUserStore, error) {
	driver, dialect, cleaned := parseDSN(dsn)

	db, err := sql.Open(driver, cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to open user database: %w", err)
	}

	return NewSQLUserStore(db, dialect)
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

func NewSQLUserStore(db *sql.DB, dialect string) (*SQLUserStore, error) {
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

	s := &SQLUserStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLUserStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Execute each statement separately for SQLite compatibility.
	for _, stmt := range []string{createUsersSchemaSQL, createUsersEmailIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLUserStore) Close() error {
	return s.db.Close()
}

func (s *SQLUserStore) Create(ctx context.Context, user *User) error {
	if existing, err := s.GetByEmail(ctx, user.Email); err == nil && existing != nil {
		return ErrDuplicateEmail
	}

	query := s.placeholders(`INSERT INTO users (id, email, password_hash, full_name, role, is_active, created_at, last_login)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FullName,
		string(user.Role), user.IsActive, user.CreatedAt, nullableTime(user.LastLogin))
	if err != nil {
		// The unique email index catches the write race the pre-check
		// cannot.
		if isDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := s.placeholders(`SELECT id, email, password_hash, full_name, role, is_active, created_at, last_login
        FROM users WHERE email = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	query := s.placeholders(`SELECT id, email, password_hash, full_name, role, is_active, created_at, last_login
        FROM users WHERE id = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLUserStore) Update(ctx context.Context, user *User) error {
	query := s.placeholders(`UPDATE users SET email = ?, password_hash = ?, full_name = ?, role = ?, is_active = ?, last_login = ?
        WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query,
		user.Email, user.PasswordHash, user.FullName, string(user.Role),
		user.IsActive, nullableTime(user.LastLogin), user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLUserStore) Delete(ctx context.Context, id string) error {
	query := s.placeholders(`DELETE FROM users WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLUserStore) List(ctx context.Context) ([]*User, error) {
	query := `SELECT id, email, password_hash, full_name, role, is_active, created_at, last_login
        FROM users ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLUserStore) CountByRole(ctx context.Context, role Role) (int, error) {
	query := s.placeholders(`SELECT COUNT(*) FROM users WHERE role = ?`)

	var count int
	if err := s.db.QueryRowContext(ctx, query, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLUserStore) scanUser(row rowScanner) (*User, error) {
	user, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return user, err
}

func scanUserRow(row rowScanner) (*User, error) {
	var user User
	var role string
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName,
		&role, &user.IsActive, &user.CreatedAt, &lastLogin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Role = Role(role)
	if lastLogin.Valid {
		user.LastLogin = lastLogin.Time
	}
	return &user, nil
}

func (s *SQLUserStore) placeholders(query string) string {
	if s.dialect != "postgres" {
		return query
	}

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

func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ UserStore = (*SQLUserStore)(nil)
