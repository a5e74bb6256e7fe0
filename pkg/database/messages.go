package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PageSize is the number of root messages per thread page.
const PageSize = 10

// maxInsertAttempts bounds identifier-conflict retries on insert.
const maxInsertAttempts = 10

// PostMessage validates the parent reference, persists the message under a
// freshly generated identifier, and returns the stored row joined with the
// author's display name. Identifier collisions against concurrent posts are
// retried internally and never surfaced.
func (db *DB) PostMessage(authorID int64, content string, parentID *int64) (*Message, error) {
	if parentID != nil {
		exists, err := db.messageExists(*parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to check parent: %w", err)
		}
		if !exists {
			return nil, ErrParentNotFound
		}
	}

	author, err := db.GetUser(authorID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		messageID, err := db.NewID(KindMessage)
		if err != nil {
			return nil, err
		}

		now := nowMillis()
		var parentVal sql.NullInt64
		if parentID != nil {
			parentVal = sql.NullInt64{Valid: true, Int64: *parentID}
		}

		_, err = db.writeConn.Exec(`
			INSERT INTO Message (id, content, created_at, author_id, parent_id)
			VALUES (?, ?, ?, ?, ?)
		`, messageID, content, now, authorID, parentVal)

		if constraintCode(err) == sqliteConstraintPrimaryKey {
			// Lost the race for this identifier; redraw and retry.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}

		return &Message{
			ID:         messageID,
			Content:    content,
			CreatedAt:  now,
			AuthorID:   authorID,
			AuthorName: author.Username,
			ParentID:   parentID,
		}, nil
	}

	return nil, fmt.Errorf("failed to insert message: %w", ErrIDConflict)
}

// GetMessage returns a single message by ID joined with its author name.
func (db *DB) GetMessage(messageID int64) (*Message, error) {
	msg := &Message{}
	var parentID sql.NullInt64

	err := db.conn.QueryRow(`
		SELECT m.id, m.content, m.created_at, m.author_id, u.username, m.parent_id
		FROM Message m
		INNER JOIN User u ON u.id = m.author_id
		WHERE m.id = ?
	`, messageID).Scan(
		&msg.ID,
		&msg.Content,
		&msg.CreatedAt,
		&msg.AuthorID,
		&msg.AuthorName,
		&parentID,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		msg.ParentID = &parentID.Int64
	}
	return msg, nil
}

// messageExists checks if a message exists
func (db *DB) messageExists(messageID int64) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM Message WHERE id = ?)`, messageID).Scan(&exists)
	return exists, err
}

// CountRootMessages returns the total number of top-level messages.
func (db *DB) CountRootMessages() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM Message WHERE parent_id IS NULL`).Scan(&count)
	return count, err
}

// ListPage returns one page of reply threads. Root messages are selected
// newest first; for each selected root the full reachable thread is expanded
// and flattened. Rows are ordered by their root's timestamp descending, then
// root id, then the row's own timestamp ascending, so each thread reads root
// first with replies oldest-to-newest. A page past the end yields an empty
// message list with the true total page count.
func (db *DB) ListPage(page int) (*ThreadPage, error) {
	if page < 1 {
		page = 1
	}

	totalRoots, err := db.CountRootMessages()
	if err != nil {
		return nil, fmt.Errorf("failed to count roots: %w", err)
	}
	totalPages := (totalRoots + PageSize - 1) / PageSize

	roots, err := db.listRootPage(page)
	if err != nil {
		return nil, err
	}

	messages := make([]*Message, 0, len(roots))
	rootOf := make(map[int64]*Message, len(roots))
	frontier := make([]int64, 0, len(roots))
	for _, root := range roots {
		root.RootID = root.ID
		root.RootCreatedAt = root.CreatedAt
		rootOf[root.ID] = root
		frontier = append(frontier, root.ID)
		messages = append(messages, root)
	}

	// Iterative frontier expansion keyed strictly by parent_id: each round
	// fetches the direct children of the previous round until none remain.
	for len(frontier) > 0 {
		children, err := db.listChildren(frontier)
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, child := range children {
			parent := rootOf[*child.ParentID]
			child.RootID = parent.RootID
			child.RootCreatedAt = parent.RootCreatedAt
			rootOf[child.ID] = child
			frontier = append(frontier, child.ID)
			messages = append(messages, child)
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.RootCreatedAt != b.RootCreatedAt {
			return a.RootCreatedAt > b.RootCreatedAt
		}
		if a.RootID != b.RootID {
			return a.RootID > b.RootID
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})

	return &ThreadPage{
		Page:       page,
		TotalPages: totalPages,
		Messages:   messages,
	}, nil
}

// listRootPage returns the root messages for a page, newest threads first.
func (db *DB) listRootPage(page int) ([]*Message, error) {
	offset := (page - 1) * PageSize

	rows, err := db.conn.Query(`
		SELECT m.id, m.content, m.created_at, m.author_id, u.username, m.parent_id
		FROM Message m
		INNER JOIN User u ON u.id = m.author_id
		WHERE m.parent_id IS NULL
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// listChildren returns all messages whose parent_id is in the given set.
func (db *DB) listChildren(parentIDs []int64) ([]*Message, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]interface{}, len(parentIDs))
	for i, id := range parentIDs {
		args[i] = id
	}

	rows, err := db.conn.Query(`
		SELECT m.id, m.content, m.created_at, m.author_id, u.username, m.parent_id
		FROM Message m
		INNER JOIN User u ON u.id = m.author_id
		WHERE m.parent_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// scanMessages is a helper to scan multiple message rows
func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message

	for rows.Next() {
		msg := &Message{}
		var parentID sql.NullInt64

		err := rows.Scan(
			&msg.ID,
			&msg.Content,
			&msg.CreatedAt,
			&msg.AuthorID,
			&msg.AuthorName,
			&parentID,
		)
		if err != nil {
			return nil, err
		}

		if parentID.Valid {
			msg.ParentID = &parentID.Int64
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// IsNotFound reports whether err is a row-absence error from a lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrParentNotFound)
}
