package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/chatroom-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates all tables if they do not exist yet.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, username, password_hash, color, is_moderator, created_at`

// CreateUser creates a user with the given display color.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, color, passwordHash string) (*store.User, error) {
	if color == "" {
		color = store.DefaultColor
	}
	query := `
		INSERT INTO users (username, password_hash, color)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, color)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username. The column collation makes it case-insensitive.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// UpdateUserColor stores a new display color for the user.
func (s *SQLiteStore) UpdateUserColor(ctx context.Context, userID int64, color string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET color = ? WHERE id = ?`, color, userID)
	if err != nil {
		return fmt.Errorf("update color: %w", err)
	}
	return requireAffected(result, "user")
}

// UpdateUsername renames the user. A name held by another user yields store.ErrConflict.
func (s *SQLiteStore) UpdateUsername(ctx context.Context, userID int64, username string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET username = ? WHERE id = ?`, username, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", username, store.ErrConflict)
		}
		return fmt.Errorf("update username: %w", err)
	}
	return requireAffected(result, "user")
}

// ListUsers lists all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Color, &user.IsModerator, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Color,
		&user.IsModerator,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== BanStore implementation ====

// IsBanned reports whether a ban record exists for the user.
func (s *SQLiteStore) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bans WHERE user_id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query ban: %w", err)
	}
	return exists, nil
}

// BanUser persists a ban record.
func (s *SQLiteStore) BanUser(ctx context.Context, userID, bannedBy int64, reason string) error {
	query := `
		INSERT INTO bans (user_id, banned_by, reason, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, userID, bannedBy, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// UnbanUser deletes the ban record.
func (s *SQLiteStore) UnbanUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return requireAffected(result, "ban")
}

// ListBans lists all ban records, newest first.
func (s *SQLiteStore) ListBans(ctx context.Context) ([]*store.Ban, error) {
	query := `
		SELECT b.user_id, u.username, b.banned_by, COALESCE(m.username, ''), b.reason, b.created_at
		FROM bans b
		JOIN users u ON u.id = b.user_id
		LEFT JOIN users m ON m.id = b.banned_by
		ORDER BY b.created_at DESC, b.user_id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var bans []*store.Ban
	for rows.Next() {
		var ban store.Ban
		if err := rows.Scan(&ban.UserID, &ban.Username, &ban.BannedBy, &ban.BannedByName, &ban.Reason, &ban.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		bans = append(bans, &ban)
	}

	return bans, rows.Err()
}

// ==== ModeratorStore implementation ====

// IsModerator reports whether the user holds the moderator flag.
func (s *SQLiteStore) IsModerator(ctx context.Context, userID int64) (bool, error) {
	var isModerator bool
	err := s.db.QueryRowContext(ctx, `SELECT is_moderator FROM users WHERE id = ?`, userID).Scan(&isModerator)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return false, fmt.Errorf("query moderator flag: %w", err)
	}
	return isModerator, nil
}

// SetModerator sets or clears the moderator flag.
func (s *SQLiteStore) SetModerator(ctx context.Context, userID int64, isModerator bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_moderator = ? WHERE id = ?`, isModerator, userID)
	if err != nil {
		return fmt.Errorf("update moderator flag: %w", err)
	}
	return requireAffected(result, "user")
}

// ListModeratorIDs returns IDs of all flagged users.
func (s *SQLiteStore) ListModeratorIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE is_moderator = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query moderators: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan moderator: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and fills in its ID and CreatedAt.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (user_id, body, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.UserID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.user_id, u.username, m.body, m.created_at, m.edited_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.id = ?
	`
	var msg store.Message
	var editedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(&msg.ID, &msg.UserID, &msg.Username, &msg.Body, &msg.CreatedAt, &editedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}

	return &msg, nil
}

// UpdateMessage replaces message content and records the edit time.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id int64, body string, editedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET body = ?, edited_at = ? WHERE id = ?`, body, editedAt, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return requireAffected(result, "message")
}

// ListMessages returns up to limit most recent messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT m.id, m.user_id, u.username, m.body, m.created_at, m.edited_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var editedAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Username, &msg.Body, &msg.CreatedAt, &editedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if editedAt.Valid {
			msg.EditedAt = &editedAt.Time
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// newest-first from the query; callers want time order
	slices.Reverse(messages)
	return messages, nil
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
