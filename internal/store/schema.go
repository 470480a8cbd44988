package store

import (
	"context"
	"fmt"

	"github.com/ChienNQuang/Note/internal/errs"
)

// DefaultUserID and DefaultUserName identify the single local actor.
const (
	DefaultUserID   = "default_user"
	DefaultUserName = "Local User"
)

// ─── Schema ──────────────────────────────────────────────────────────────────

// Every statement is create-if-not-exists, so bootstrapping an
// initialized database changes nothing.
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		email       TEXT,
		preferences TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id          TEXT    PRIMARY KEY,
		content     TEXT    NOT NULL,
		parent_id   TEXT,
		order_index INTEGER NOT NULL DEFAULT 0,
		properties  TEXT,
		tags        TEXT,
		created_at  TEXT    NOT NULL,
		updated_at  TEXT    NOT NULL,
		created_by  TEXT    NOT NULL,
		version     INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (parent_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_parent       ON nodes(parent_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent_order ON nodes(parent_id, order_index, created_at);
	CREATE INDEX IF NOT EXISTS idx_nodes_updated      ON nodes(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_nodes_content      ON nodes(content);

	CREATE TABLE IF NOT EXISTS node_links (
		source_node_id TEXT NOT NULL,
		target_node_id TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		PRIMARY KEY (source_node_id, target_node_id),
		FOREIGN KEY (source_node_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (target_node_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_links_target ON node_links(target_node_id);

	CREATE TABLE IF NOT EXISTS daily_notes (
		date    TEXT PRIMARY KEY,
		node_id TEXT NOT NULL UNIQUE,
		FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
		content,
		content='nodes',
		content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS nodes_fts_insert AFTER INSERT ON nodes BEGIN
		INSERT INTO nodes_fts(rowid, content) VALUES (new.rowid, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS nodes_fts_delete AFTER DELETE ON nodes BEGIN
		INSERT INTO nodes_fts(nodes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	END;

	CREATE TRIGGER IF NOT EXISTS nodes_fts_update AFTER UPDATE OF content ON nodes BEGIN
		INSERT INTO nodes_fts(nodes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		INSERT INTO nodes_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
`

func (s *Store) bootstrap(ctx context.Context) error {
	const op = "store.bootstrap"

	err := s.WithTransaction(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return ensureDefaultUser(ctx, q)
	})
	if err != nil {
		return errs.E(errs.KindStoreUnavailable, op, err)
	}

	var id string
	err = s.WithConnection(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx,
			`SELECT id FROM users ORDER BY created_at, id LIMIT 1`,
		).Scan(&id)
	})
	if err != nil {
		return errs.E(errs.KindStoreUnavailable, op, fmt.Errorf("load local user: %w", err))
	}

	s.userMu.Lock()
	s.userID = id
	s.userMu.Unlock()
	return nil
}

// ensureDefaultUser inserts the local actor when the users table is empty.
func ensureDefaultUser(ctx context.Context, q Querier) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	now := FormatTime(Now())
	if _, err := q.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		DefaultUserID, DefaultUserName, now, now,
	); err != nil {
		return fmt.Errorf("insert default user: %w", err)
	}
	return nil
}
