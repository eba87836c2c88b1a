package artifact

// index.go records conversion metadata in Postgres. The index is the audit
// trail for the service: one row per conversion, updated as the artifact is
// downloaded. Artifact bytes never enter the database; only metadata does.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/convertx/internal/core"
)

// Entry is one row of the conversion index.
type Entry struct {
	ArtifactID       uuid.UUID
	Filename         string
	Sheet            string
	Rows             int
	Columns          int
	Bytes            int64
	CreatedAt        time.Time
	DownloadCount    int
	LastDownloadedAt *time.Time
}

// Index records conversions and download activity. A nil Index disables
// indexing; the artifact store works without it.
type Index interface {
	core.AuditRecorder

	// MarkDownloaded increments the download counter for an artifact.
	MarkDownloaded(ctx context.Context, id uuid.UUID) error

	// Recent returns the newest entries, most recent first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// PgIndex is the Postgres-backed Index.
type PgIndex struct {
	pool *pgxpool.Pool
}

// NewPgIndex creates an index over an existing connection pool.
func NewPgIndex(pool *pgxpool.Pool) *PgIndex {
	return &PgIndex{pool: pool}
}

// EnsureSchema creates the conversions table if it does not exist.
func (idx *PgIndex) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS conversions (
			artifact_id        UUID PRIMARY KEY,
			filename           TEXT NOT NULL,
			sheet              TEXT NOT NULL DEFAULT '',
			row_count          INTEGER NOT NULL,
			column_count       INTEGER NOT NULL,
			output_bytes       BIGINT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL,
			download_count     INTEGER NOT NULL DEFAULT 0,
			last_downloaded_at TIMESTAMPTZ
		)`
	if _, err := idx.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating conversions table: %w", err)
	}
	return nil
}

// RecordConversion inserts one conversion row.
func (idx *PgIndex) RecordConversion(ctx context.Context, rec core.ConversionRecord) error {
	const query = `
		INSERT INTO conversions
			(artifact_id, filename, sheet, row_count, column_count, output_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := idx.pool.Exec(ctx, query,
		rec.ArtifactID, rec.Filename, rec.Sheet, rec.Rows, rec.Columns, rec.Bytes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording conversion: %w", err)
	}
	return nil
}

// MarkDownloaded bumps the download counter; unknown ids are a no-op so a
// download of an unindexed artifact still succeeds.
func (idx *PgIndex) MarkDownloaded(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE conversions
		SET download_count = download_count + 1, last_downloaded_at = now()
		WHERE artifact_id = $1`
	if _, err := idx.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("marking download: %w", err)
	}
	return nil
}

// Recent lists the newest conversions, most recent first.
func (idx *PgIndex) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const query = `
		SELECT artifact_id, filename, sheet, row_count, column_count, output_bytes,
		       created_at, download_count, last_downloaded_at
		FROM conversions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := idx.pool.Query(ctx, query, limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing conversions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			lastDown pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ArtifactID, &e.Filename, &e.Sheet, &e.Rows, &e.Columns,
			&e.Bytes, &e.CreatedAt, &e.DownloadCount, &lastDown); err != nil {
			return nil, fmt.Errorf("scanning conversion row: %w", err)
		}
		if lastDown.Valid {
			t := lastDown.Time
			e.LastDownloadedAt = &t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversions: %w", err)
	}
	return entries, nil
}
