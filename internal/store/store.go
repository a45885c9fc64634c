// Package store persists the peer inventory: every peer the daemon has
// ever seen, keyed by device address. The database survives restarts so
// operators can inspect peers found during earlier discovery runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"wifip2p/p2p"
)

// Peer is one inventory row: the device snapshot plus sighting times.
type Peer struct {
	Address     string    `json:"address"`
	Name        string    `json:"name,omitempty"`
	PrimaryType string    `json:"primary_type,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Store is a SQLite-backed peer inventory.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	// Sighting times are stored as unix seconds.
	schema := `
	CREATE TABLE IF NOT EXISTS peers (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		primary_type TEXT NOT NULL DEFAULT '',
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_peers_last_seen ON peers(last_seen);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Upsert records a sighting of dev. A new peer gets first_seen set; a
// known peer keeps its first_seen and its name/type when the new
// sighting omits them (peers do not always report both in every signal).
func (s *Store) Upsert(ctx context.Context, dev p2p.Device) error {
	if dev.Address == "" {
		return fmt.Errorf("peer address is required")
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peers (address, name, primary_type, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE peers.name END,
			primary_type = CASE WHEN excluded.primary_type != '' THEN excluded.primary_type ELSE peers.primary_type END,
			last_seen = excluded.last_seen
	`, dev.Address, dev.Name, dev.PrimaryType, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert peer: %w", err)
	}
	return nil
}

// Get retrieves a single peer by address. Returns nil, nil when the
// peer has never been seen.
func (s *Store) Get(ctx context.Context, address string) (*Peer, error) {
	var (
		peer                Peer
		firstSeen, lastSeen int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT address, name, primary_type, first_seen, last_seen
		FROM peers WHERE address = ?
	`, address).Scan(&peer.Address, &peer.Name, &peer.PrimaryType, &firstSeen, &lastSeen)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query peer: %w", err)
	}

	peer.FirstSeen = time.Unix(firstSeen, 0).UTC()
	peer.LastSeen = time.Unix(lastSeen, 0).UTC()
	return &peer, nil
}

// List returns all known peers, most recently seen first.
func (s *Store) List(ctx context.Context) ([]Peer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, name, primary_type, first_seen, last_seen
		FROM peers
		ORDER BY last_seen DESC, address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	peers := []Peer{}
	for rows.Next() {
		var (
			peer                Peer
			firstSeen, lastSeen int64
		)
		if err := rows.Scan(&peer.Address, &peer.Name, &peer.PrimaryType, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		peer.FirstSeen = time.Unix(firstSeen, 0).UTC()
		peer.LastSeen = time.Unix(lastSeen, 0).UTC()
		peers = append(peers, peer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating peers: %w", err)
	}

	return peers, nil
}

// Delete removes a peer from the inventory.
func (s *Store) Delete(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM peers WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("failed to delete peer: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
