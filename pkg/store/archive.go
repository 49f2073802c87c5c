// Copyright 2025 Certen Protocol
//
// ArchiveStore mirrors epoch and batch records into a relational
// database for queries bbolt's single-key-order cursor can't serve
// cheaply: per-owner scans across archived committees, historical range
// sync for a catching-up reader. Grounded on pkg/database's
// ProofArtifactRepository (database/sql + lib/pq, context-scoped
// QueryRowContext/ExecContext, $N placeholders) — this module has no
// migration tool in its retrieved files, so EnsureSchema issues its own
// CREATE TABLE IF NOT EXISTS rather than assuming one has already run.
//
// Archival is best-effort and additive: the bbolt tables opened by Store
// remain the source of truth for everything on the hot path (locking,
// execution, consensus submission). A nil *ArchiveStore disables
// archiving entirely; callers that don't configure a DSN never touch
// database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"

	"github.com/certen/authority-core/pkg/objtype"
)

// ArchiveStore is a secondary, query-friendly mirror of the epoch and
// batch tables, backed by Postgres.
type ArchiveStore struct {
	db *sql.DB
}

// OpenArchive connects to the Postgres database at dsn and ensures the
// archival tables exist. Pass an empty dsn to skip archiving entirely —
// callers get a nil *ArchiveStore and every Archive* method below is a
// documented no-op on a nil receiver.
func OpenArchive(dsn string) (*ArchiveStore, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping archive database: %w", err)
	}
	a := &ArchiveStore{db: db}
	if err := a.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *ArchiveStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS epochs (
			epoch          BIGINT PRIMARY KEY,
			committee_json JSONB NOT NULL,
			started_at     TIMESTAMPTZ NOT NULL,
			correlation_id UUID NOT NULL,
			archived_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			seq            BIGINT PRIMARY KEY,
			first_entry    BIGINT NOT NULL,
			last_entry     BIGINT NOT NULL,
			signature      BYTEA NOT NULL,
			correlation_id UUID NOT NULL,
			archived_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_last_entry ON batches (last_entry)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure archive schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool. Safe to call on a nil
// receiver.
func (a *ArchiveStore) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}

// ArchiveEpoch mirrors a committee snapshot into the epochs table,
// generating a fresh correlation ID for cross-referencing this write in
// logs and traces (internal bookkeeping only; never consensus-visible).
// A nil receiver is a no-op, so callers can archive unconditionally.
func (a *ArchiveStore) ArchiveEpoch(ctx context.Context, info EpochInfo) error {
	if a == nil {
		return nil
	}
	committeeJSON, err := json.Marshal(addressStakeMap(info.Committee))
	if err != nil {
		return fmt.Errorf("store: marshal committee for archive: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO epochs (epoch, committee_json, started_at, correlation_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (epoch) DO NOTHING`,
		info.Epoch, committeeJSON, info.StartedAt, uuid.New(),
	)
	if err != nil {
		return fmt.Errorf("store: archive_epoch %d: %w", info.Epoch, err)
	}
	return nil
}

// ArchiveBatch mirrors a signed batch into the batches table.
func (a *ArchiveStore) ArchiveBatch(ctx context.Context, batch SignedBatch) error {
	if a == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO batches (seq, first_entry, last_entry, signature, correlation_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (seq) DO NOTHING`,
		batch.Seq, batch.FirstEntry, batch.LastEntry, batch.Signature, uuid.New(),
	)
	if err != nil {
		return fmt.Errorf("store: archive_batch %d: %w", batch.Seq, err)
	}
	return nil
}

// EpochsArchivedSince returns every archived epoch snapshot started at or
// after since, ordered oldest first — the per-owner/historical-sync query
// bbolt's forward-only cursor can't serve without a full table scan.
func (a *ArchiveStore) EpochsArchivedSince(ctx context.Context, since time.Time) ([]EpochInfo, error) {
	if a == nil {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT epoch, committee_json, started_at
		FROM epochs
		WHERE started_at >= $1
		ORDER BY epoch ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("store: epochs_archived_since: %w", err)
	}
	defer rows.Close()

	var out []EpochInfo
	for rows.Next() {
		var (
			info          EpochInfo
			committeeJSON []byte
		)
		if err := rows.Scan(&info.Epoch, &committeeJSON, &info.StartedAt); err != nil {
			return nil, fmt.Errorf("store: scan archived epoch: %w", err)
		}
		var flat map[string]uint64
		if err := json.Unmarshal(committeeJSON, &flat); err != nil {
			return nil, fmt.Errorf("store: decode archived committee for epoch %d: %w", info.Epoch, err)
		}
		info.Committee = make(map[objtype.Address]uint64, len(flat))
		for hexAddr, stake := range flat {
			addr, err := objtype.ParseAddress(hexAddr)
			if err != nil {
				return nil, fmt.Errorf("store: decode archived committee address for epoch %d: %w", info.Epoch, err)
			}
			info.Committee[addr] = stake
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func addressStakeMap(committee map[objtype.Address]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(committee))
	for addr, stake := range committee {
		out[addr.String()] = stake
	}
	return out
}
