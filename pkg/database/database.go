package database

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	sqlite "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrParentNotFound indicates the parent message does not exist.
	ErrParentNotFound = errors.New("parent message not found")
	// ErrIDConflict indicates an identifier collision on insert. Callers
	// regenerate the identifier and retry; it is never surfaced to users.
	ErrIDConflict = errors.New("identifier conflict")
	// ErrTokenNotFound indicates the credential token is unknown.
	ErrTokenNotFound = errors.New("token not found")
)

// SQLite extended result codes for constraint violations.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)

	// randInt64N draws identifier candidates; replaced in tests to force
	// collisions deterministically.
	randInt64N func(n int64) int64
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows multiple readers and one writer at the same time
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Dedicated write connection: exactly 1 connection, no pooling
	// (serializes writes instead of tripping SQLITE_BUSY)
	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	db := &DB{
		conn:       conn,
		writeConn:  writeConn,
		randInt64N: rand.Int64N,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- User table
CREATE TABLE IF NOT EXISTS User (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

-- Token table (opaque credentials issued at login)
CREATE TABLE IF NOT EXISTS Token (
	token TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (user_id) REFERENCES User(id) ON DELETE CASCADE
);

-- Message table
CREATE TABLE IF NOT EXISTS Message (
	id INTEGER PRIMARY KEY,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	author_id INTEGER NOT NULL,
	parent_id INTEGER,
	FOREIGN KEY (author_id) REFERENCES User(id),
	FOREIGN KEY (parent_id) REFERENCES Message(id)
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_messages_parent ON Message(parent_id) WHERE parent_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_messages_roots ON Message(created_at DESC) WHERE parent_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_tokens_user ON Token(user_id);
`

	_, err := db.conn.Exec(schema)
	return err
}

// User represents a registered user record
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    int64 // Unix timestamp in milliseconds
}

// Message represents a message record joined with its author's display name
type Message struct {
	ID         int64
	Content    string
	CreatedAt  int64 // Unix timestamp in milliseconds
	AuthorID   int64
	AuthorName string
	ParentID   *int64

	// Thread the message belongs to; populated by ListPage for ordering.
	RootID        int64
	RootCreatedAt int64
}

// ThreadPage is one page of root messages with their full reply threads.
type ThreadPage struct {
	Page       int
	TotalPages int
	Messages   []*Message
}

// nowMillis returns current time as Unix timestamp in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// constraintCode returns the SQLite extended result code for a constraint
// violation, or 0 when err is not a constraint error.
func constraintCode(err error) int {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqliteConstraintPrimaryKey, sqliteConstraintUnique:
			return serr.Code()
		}
	}
	return 0
}
