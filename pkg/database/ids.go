package database

import "fmt"

// IDKind selects the identifier space a new identifier is drawn from.
// Messages and users have independent spaces.
type IDKind string

const (
	// KindMessage is the message identifier space.
	KindMessage IDKind = "message"
	// KindUser is the user identifier space.
	KindUser IDKind = "user"
)

// Identifiers are drawn uniformly from a fixed 6-digit numeric range.
const (
	idMin = 100000
	idMax = 999999
)

// maxIDAttempts bounds the draw-and-check loop so an exhausted identifier
// space fails loudly instead of spinning forever.
const maxIDAttempts = 100

// NewID draws a fresh identifier for the given kind, redrawing until the
// candidate is absent from persisted storage. Generation and insert are not
// atomic: a concurrent generator can win the same identifier, which surfaces
// as ErrIDConflict on insert and is retried there.
func (db *DB) NewID(kind IDKind) (int64, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := idMin + db.randInt64N(idMax-idMin+1)

		exists, err := db.idExists(kind, candidate)
		if err != nil {
			return 0, fmt.Errorf("failed to check identifier: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("exhausted identifier attempts for kind %q", kind)
}

func (db *DB) idExists(kind IDKind, id int64) (bool, error) {
	var query string
	switch kind {
	case KindMessage:
		query = `SELECT EXISTS(SELECT 1 FROM Message WHERE id = ?)`
	case KindUser:
		query = `SELECT EXISTS(SELECT 1 FROM User WHERE id = ?)`
	default:
		return false, fmt.Errorf("unknown identifier kind %q", kind)
	}

	var exists bool
	err := db.conn.QueryRow(query, id).Scan(&exists)
	return exists, err
}
