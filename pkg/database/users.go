package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateUser persists a new user under a freshly generated identifier.
// Identifier collisions are retried; a duplicate username fails with
// ErrUsernameTaken.
func (db *DB) CreateUser(username, passwordHash string) (*User, error) {
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		userID, err := db.NewID(KindUser)
		if err != nil {
			return nil, err
		}

		now := nowMillis()
		_, err = db.writeConn.Exec(`
			INSERT INTO User (id, username, password_hash, created_at)
			VALUES (?, ?, ?, ?)
		`, userID, username, passwordHash, now)

		switch constraintCode(err) {
		case sqliteConstraintPrimaryKey:
			continue
		case sqliteConstraintUnique:
			return nil, ErrUsernameTaken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert user: %w", err)
		}

		return &User{
			ID:           userID,
			Username:     username,
			PasswordHash: passwordHash,
			CreatedAt:    now,
		}, nil
	}

	return nil, fmt.Errorf("failed to insert user: %w", ErrIDConflict)
}

// GetUser returns a user by ID.
func (db *DB) GetUser(userID int64) (*User, error) {
	user := &User{}
	err := db.conn.QueryRow(`
		SELECT id, username, password_hash, created_at
		FROM User
		WHERE id = ?
	`, userID).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByName returns a user by display name.
func (db *DB) GetUserByName(username string) (*User, error) {
	user := &User{}
	err := db.conn.QueryRow(`
		SELECT id, username, password_hash, created_at
		FROM User
		WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// InsertToken persists an opaque credential token for a user.
func (db *DB) InsertToken(token string, userID int64) error {
	_, err := db.writeConn.Exec(`
		INSERT INTO Token (token, user_id, created_at)
		VALUES (?, ?, ?)
	`, token, userID, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// LookupToken resolves a credential token to its user.
func (db *DB) LookupToken(token string) (*User, error) {
	user := &User{}
	err := db.conn.QueryRow(`
		SELECT u.id, u.username, u.password_hash, u.created_at
		FROM Token t
		INNER JOIN User u ON u.id = t.user_id
		WHERE t.token = ?
	`, token).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
