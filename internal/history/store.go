// Package history persists finished build trees to SQLite.
//
// Persistence runs on the event path via the aggregator's build-finished
// hook; failures are logged by the caller and never reach the producer.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vk/buildtreego/internal/aggregator"
)

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	root_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	state       TEXT NOT NULL,
	errors      INTEGER NOT NULL,
	warnings    INTEGER NOT NULL,
	started_at  TIMESTAMP,
	finished_at TIMESTAMP,
	recorded_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS build_nodes (
	build_id  INTEGER NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
	node_id   TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	state     TEXT NOT NULL,
	severity  TEXT NOT NULL,
	started_at  TIMESTAMP,
	finished_at TIMESTAMP,
	PRIMARY KEY (build_id, node_id)
);
`

// Store records finished builds.
type Store struct {
	db *sql.DB
}

// BuildRecord is one row of the builds table.
type BuildRecord struct {
	ID         int64
	RootID     string
	Title      string
	State      string
	Errors     int
	Warnings   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// NodeRecord is one flattened node of a recorded build.
type NodeRecord struct {
	NodeID   string
	ParentID string
	Name     string
	State    string
	Severity string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveBuild flattens the finished tree rooted at rootID into one build row
// plus its node rows.
func (s *Store) SaveBuild(ctx context.Context, rootID string, snap *aggregator.TreeSnapshot) error {
	root := snap.Find(rootID)
	if root == nil {
		return fmt.Errorf("build root %q not in snapshot", rootID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	title := root.Title
	if title == "" {
		title = root.Name
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO builds (root_id, title, state, errors, warnings, started_at, finished_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		root.ID, title, root.State, root.Errors, root.Warnings, root.Start, root.End, time.Now())
	if err != nil {
		return fmt.Errorf("insert build row: %w", err)
	}
	buildID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("build row id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO build_nodes (build_id, node_id, parent_id, name, state, severity, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var walk func(n *aggregator.NodeSnapshot) error
	walk = func(n *aggregator.NodeSnapshot) error {
		if _, err := stmt.ExecContext(ctx, buildID, n.ID, n.ParentID, n.Name, n.State, n.Severity, n.Start, n.End); err != nil {
			return fmt.Errorf("insert node %q: %w", n.ID, err)
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return err
	}

	return tx.Commit()
}

// RecentBuilds returns the newest builds first, up to limit rows.
func (s *Store) RecentBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root_id, title, state, errors, warnings, started_at, finished_at
		 FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []BuildRecord
	for rows.Next() {
		var r BuildRecord
		if err := rows.Scan(&r.ID, &r.RootID, &r.Title, &r.State, &r.Errors, &r.Warnings, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Nodes returns the flattened node rows of one recorded build.
func (s *Store) Nodes(ctx context.Context, buildID int64) ([]NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, parent_id, name, state, severity
		 FROM build_nodes WHERE build_id = ? ORDER BY rowid`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query build nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NodeRecord
	for rows.Next() {
		var r NodeRecord
		if err := rows.Scan(&r.NodeID, &r.ParentID, &r.Name, &r.State, &r.Severity); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
