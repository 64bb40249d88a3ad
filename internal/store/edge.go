package store

import (
	"database/sql"
	"time"
)

// EdgeKind is the kind of a signal transition.
type EdgeKind string

const (
	// EdgeRise is an off-to-on transition of a channel.
	EdgeRise EdgeKind = "rise"
	// EdgeFall is an on-to-off transition of a channel.
	EdgeFall EdgeKind = "fall"
	// EdgePulse is a consumed one-shot pulse.
	EdgePulse EdgeKind = "pulse"
)

// Edge is one recorded signal transition.
type Edge struct {
	ID        int64
	SessionID string
	Channel   string
	Kind      EdgeKind
	At        time.Time
}

// EdgeRepository records and queries signal edges.
type EdgeRepository struct {
	db *sql.DB
}

// Edges returns the edge repository for this store.
func (s *Store) Edges() *EdgeRepository {
	return &EdgeRepository{db: s.db}
}

// Record inserts an edge and sets its ID.
func (r *EdgeRepository) Record(e *Edge) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO signal_edges (session_id, channel, kind, at) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Channel, string(e.Kind), e.At,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession returns the edges of a session in the order they happened.
// A non-positive limit returns all of them.
func (r *EdgeRepository) ListBySession(sessionID string, limit int) ([]Edge, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, session_id, channel, kind, at
		 FROM signal_edges WHERE session_id = ? ORDER BY id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Channel, &kind, &e.At); err != nil {
			return nil, err
		}
		e.Kind = EdgeKind(kind)
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return edges, nil
}

// CountBySession returns, per channel, how many rising edges and pulses a
// session produced.
func (r *EdgeRepository) CountBySession(sessionID string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT channel, COUNT(*) FROM signal_edges
		 WHERE session_id = ? AND kind IN ('rise', 'pulse')
		 GROUP BY channel`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var channel string
		var n int
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, err
		}
		counts[channel] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
