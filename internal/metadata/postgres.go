package metadata

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	cfg  CatalogConfig
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool: pool,
		cfg:  cfg,
	}

	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Println("[metadata] connected to PostgreSQL catalog")
	return w, nil
}

// initSchema creates the collected_files table if it doesn't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	_, err := w.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// RecordFile upserts one processed file. Reprocessing a file (at-least-once
// delivery) bumps its attempt count instead of adding a row.
func (w *PostgresWriter) RecordFile(ctx context.Context, rec FileRecord) error {
	query := `
		INSERT INTO collected_files (
			solution, log_date, file_name, cycle_id, source_path, destination,
			archive_uri, compressed_bytes, extracted_bytes, remote_created_at, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (solution, log_date, file_name)
		DO UPDATE SET
			cycle_id = EXCLUDED.cycle_id,
			destination = EXCLUDED.destination,
			archive_uri = EXCLUDED.archive_uri,
			compressed_bytes = EXCLUDED.compressed_bytes,
			extracted_bytes = EXCLUDED.extracted_bytes,
			processed_at = EXCLUDED.processed_at,
			attempts = collected_files.attempts + 1
	`

	var archiveURI *string
	if rec.ArchiveURI != "" {
		archiveURI = &rec.ArchiveURI
	}

	_, err := w.pool.Exec(ctx, query,
		rec.Solution,
		rec.Date,
		rec.FileName,
		rec.CycleID,
		rec.SourcePath,
		rec.Destination,
		archiveURI,
		rec.CompressedSize,
		rec.ExtractedSize,
		rec.RemoteCreated,
		rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert collected file: %w", err)
	}
	return nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
