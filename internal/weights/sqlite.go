package weights

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotter stores weights in a SQLite table, rewritten in one
// transaction per save.
type SQLiteSnapshotter struct {
	conn *sql.DB
}

// NewSQLiteSnapshotter opens (or creates) the database at path.
func NewSQLiteSnapshotter(path string) (*SQLiteSnapshotter, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	conn.SetMaxOpenConns(1)

	s := &SQLiteSnapshotter{conn: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSnapshotter) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS weights (
		entry_id TEXT PRIMARY KEY,
		weight INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS snapshot_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Load reads all rows. An empty table yields an empty map.
func (s *SQLiteSnapshotter) Load(ctx context.Context) (map[string]int64, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT entry_id, weight FROM weights`)
	if err != nil {
		return nil, fmt.Errorf("query weights: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			w  int64
		)
		if err := rows.Scan(&id, &w); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		out[id] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weights: %w", err)
	}
	return out, nil
}

// Save replaces the table contents with data.
func (s *SQLiteSnapshotter) Save(ctx context.Context, data map[string]int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weights`); err != nil {
		return fmt.Errorf("clear weights: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO weights (entry_id, weight) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, w := range data {
		if _, err := stmt.ExecContext(ctx, id, w); err != nil {
			return fmt.Errorf("insert weight %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (key, value) VALUES ('saved_at', datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`); err != nil {
		return fmt.Errorf("update meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSnapshotter) Close() error {
	return s.conn.Close()
}
