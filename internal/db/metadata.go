//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/pkg/version"
)

// MetadataTable is the key/value table recording the last run.
const MetadataTable = "etl_run_metadata"

func metadataIdent(schema string) string {
	return pgx.Identifier{schema, MetadataTable}.Sanitize()
}

// RunMetadata builds the metadata recorded for a finished run. counts holds
// the loaded row count per output table.
func RunMetadata(runID string, counts map[string]int) map[string]string {
	md := map[string]string{
		"run_id":      runID,
		"version":     version.Short(),
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	}
	for name, n := range counts {
		md["rows."+name] = fmt.Sprintf("%d", n)
	}
	return md
}

// SaveMetadata upserts metadata into the run metadata table, creating it
// when needed. All keys are written in one transaction.
func SaveMetadata(ctx context.Context, pool *pgxpool.Pool, schema string, metadata map[string]string) error {
	ident := metadataIdent(schema)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`, ident))
	if err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
            INSERT INTO %s (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, ident), key, metadata[key])
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}

	logging.Debug().
		Int("keys", len(metadata)).
		Msg("Saved run metadata")

	return nil
}

// GetMetadataValue retrieves a single metadata value by key.
func GetMetadataValue(ctx context.Context, pool *pgxpool.Pool, schema, key string) (string, error) {
	var value string
	err := pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT value FROM %s WHERE key = $1
    `, metadataIdent(schema)), key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, pool *pgxpool.Pool, schema string) (map[string]string, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT key, value FROM %s`, metadataIdent(schema)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}
