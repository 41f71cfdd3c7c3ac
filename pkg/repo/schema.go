package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

// Schema for the entity store. Timestamps are unix nanoseconds so that
// ordering comparisons are plain integer comparisons. Subordinate rows
// (labels, tags, vectors) reference their owners by GUID and are removed
// by the owning entity's delete cascade.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		guid            TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		active          INTEGER NOT NULL DEFAULT 1,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		first_name      TEXT NOT NULL DEFAULT '',
		last_name       TEXT NOT NULL DEFAULT '',
		email           TEXT NOT NULL,
		password        TEXT NOT NULL,
		active          INTEGER NOT NULL DEFAULT 1,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL,
		UNIQUE (tenant_guid, email)
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		user_guid       TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		bearer_token    TEXT NOT NULL UNIQUE,
		active          INTEGER NOT NULL DEFAULT 1,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS graphs (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		name            TEXT NOT NULL,
		vector_index    TEXT,
		data            TEXT,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		graph_guid      TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		data            TEXT,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		graph_guid      TEXT NOT NULL,
		from_guid       TEXT NOT NULL,
		to_guid         TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		cost            REAL NOT NULL DEFAULT 0,
		data            TEXT,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS labels (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		graph_guid      TEXT NOT NULL,
		node_guid       TEXT,
		edge_guid       TEXT,
		label           TEXT NOT NULL,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		graph_guid      TEXT NOT NULL,
		node_guid       TEXT,
		edge_guid       TEXT,
		tag_key         TEXT NOT NULL,
		tag_value       TEXT NOT NULL DEFAULT '',
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vectors (
		guid            TEXT PRIMARY KEY,
		tenant_guid     TEXT NOT NULL,
		graph_guid      TEXT NOT NULL,
		node_guid       TEXT,
		edge_guid       TEXT,
		model           TEXT NOT NULL DEFAULT '',
		dimensionality  INTEGER NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		embedding       TEXT NOT NULL,
		created_utc     INTEGER NOT NULL,
		last_update_utc INTEGER NOT NULL
	)`,

	// Enumeration orderings and scope lookups.
	`CREATE INDEX IF NOT EXISTS idx_users_tenant ON users (tenant_guid, created_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_tenant ON credentials (tenant_guid, created_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_graphs_tenant ON graphs (tenant_guid, created_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_graph ON nodes (tenant_guid, graph_guid, created_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_graph_name ON nodes (tenant_guid, graph_guid, name)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_graph ON edges (tenant_guid, graph_guid, created_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges (graph_guid, from_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges (graph_guid, to_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_labels_node ON labels (node_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_labels_edge ON labels (edge_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_labels_graph ON labels (tenant_guid, graph_guid, label)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_node ON tags (node_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_edge ON tags (edge_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_graph ON tags (tenant_guid, graph_guid, tag_key)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_graph ON vectors (tenant_guid, graph_guid, created_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_node ON vectors (node_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_edge ON vectors (edge_guid)`,
}

func (c *Client) initializeSchema(ctx context.Context) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w: schema: %v", graph.ErrStorage, err)
			}
		}
		return nil
	})
}
