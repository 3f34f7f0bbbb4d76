package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbPool abstracts the database operations PostgresStorage needs. Grounded
// on the teacher's audit.Logger dbPool interface: Exec/Query/QueryRow are
// the only three verbs the storage layer needs from a pool or transaction.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage persists the audit chain in an `audit_entries` table, one
// row per SignedEntry, ordered by a monotonic sequence column. Grounded on
// the teacher's buildBatchInsert/queryBuilder idiom in ee/pkg/audit/logger.go,
// generalized from the audit_log table to audit_entries.
type PostgresStorage struct {
	pool dbPool
}

// NewPostgresStorage opens a pgxpool.Pool against connString. Callers are
// responsible for applying the `audit_entries` table's schema migration
// before first use.
func NewPostgresStorage(connString string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("audit: connect to postgres: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) Append(ctx context.Context, entry *SignedEntry) error {
	actorJSON, err := json.Marshal(entry.Actor)
	if err != nil {
		return fmt.Errorf("audit: marshal actor: %w", err)
	}
	var targetJSON []byte
	if entry.Target != nil {
		if targetJSON, err = json.Marshal(entry.Target); err != nil {
			return fmt.Errorf("audit: marshal target: %w", err)
		}
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("audit: marshal metadata: %w", err)
	}

	_, err = p.pool.Exec(ctx, `INSERT INTO audit_entries
		(id, occurred_at, event_type, severity, actor, target, action, result,
		 details, metadata, previous_hash, signature, signed_by, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.Timestamp, entry.EventType, entry.Severity, actorJSON, targetJSON,
		entry.Action, entry.Result, detailsJSON, metadataJSON, entry.PreviousHash,
		entry.Signature, entry.SignedBy, entry.SignedAt)
	if err != nil {
		return fmt.Errorf("%w: append entry %s: %v", ErrStorage, entry.ID, err)
	}
	return nil
}

func (p *PostgresStorage) AllEntries(ctx context.Context) ([]*SignedEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, occurred_at, event_type, severity, actor, target,
		action, result, details, metadata, previous_hash, signature, signed_by, signed_at
		FROM audit_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", ErrStorage, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *PostgresStorage) LastEntry(ctx context.Context) (*SignedEntry, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, occurred_at, event_type, severity, actor, target,
		action, result, details, metadata, previous_hash, signature, signed_by, signed_at
		FROM audit_entries ORDER BY seq DESC LIMIT 1`)

	entry, err := scanEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoEntries
		}
		return nil, fmt.Errorf("%w: last entry: %v", ErrStorage, err)
	}
	return entry, nil
}

// Replace truncates audit_entries and re-inserts entries in order, used by
// Import. Not wrapped in an explicit transaction beyond what the caller's
// connection defaults to single-statement autocommit; the Log already
// serializes callers of Replace behind its own append lock.
func (p *PostgresStorage) Replace(ctx context.Context, entries []*SignedEntry) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE TABLE audit_entries`); err != nil {
		return fmt.Errorf("%w: truncate for replace: %v", ErrStorage, err)
	}
	for _, entry := range entries {
		if err := p.Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

type scannableRow interface {
	Scan(dest ...any) error
}

func scanEntry(row scannableRow) (*SignedEntry, error) {
	var (
		e                         SignedEntry
		actorJSON, targetJSON     []byte
		detailsJSON, metadataJSON []byte
	)
	if err := row.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Severity, &actorJSON, &targetJSON,
		&e.Action, &e.Result, &detailsJSON, &metadataJSON, &e.PreviousHash,
		&e.Signature, &e.SignedBy, &e.SignedAt); err != nil {
		return nil, err
	}

	if len(actorJSON) > 0 {
		if err := json.Unmarshal(actorJSON, &e.Actor); err != nil {
			return nil, fmt.Errorf("audit: parse actor for %s: %w", e.ID, err)
		}
	}
	if len(targetJSON) > 0 {
		e.Target = &Target{}
		if err := json.Unmarshal(targetJSON, e.Target); err != nil {
			return nil, fmt.Errorf("audit: parse target for %s: %w", e.ID, err)
		}
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			return nil, fmt.Errorf("audit: parse details for %s: %w", e.ID, err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("audit: parse metadata for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]*SignedEntry, error) {
	var entries []*SignedEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return entries, nil
}
