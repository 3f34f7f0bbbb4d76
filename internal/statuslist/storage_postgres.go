package statuslist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbPool abstracts the database operations PostgresStorage needs, following
// the teacher's audit.Logger dbPool interface: a narrow seam that lets
// tests substitute a fake without dragging in a live Postgres connection.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage persists status lists one row per list in a
// `status_lists` table, the database-shaped backend named in spec.md §6.
type PostgresStorage struct {
	pool dbPool
}

// NewPostgresStorage opens a pgxpool.Pool against connString and wraps it as
// a Storage backend. Callers are responsible for applying the
// `status_lists` table's schema migration before first use.
func NewPostgresStorage(connString string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("statuslist: connect to postgres: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) LoadList(ctx context.Context, id string) (*List, error) {
	var (
		list         List
		metadataJSON []byte
	)
	row := p.pool.QueryRow(ctx, `SELECT id, purpose, issuer, base_url, length, allocation_cursor,
		encoded_bits, metadata, key_id, created_at
		FROM status_lists WHERE id = $1`, id)

	if err := row.Scan(&list.ID, &list.Purpose, &list.Issuer, &list.BaseURL, &list.Length,
		&list.AllocationCursor, &list.EncodedBits, &metadataJSON, &list.KeyID, &list.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrListNotFound
		}
		return nil, fmt.Errorf("statuslist: load list %s: %w", id, err)
	}

	list.Metadata = make(map[int]EntryMetadata)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &list.Metadata); err != nil {
			return nil, fmt.Errorf("statuslist: parse metadata for %s: %w", id, err)
		}
	}
	return &list, nil
}

func (p *PostgresStorage) SaveList(ctx context.Context, list *List) error {
	metadataJSON, err := json.Marshal(list.Metadata)
	if err != nil {
		return fmt.Errorf("statuslist: marshal metadata for %s: %w", list.ID, err)
	}

	_, err = p.pool.Exec(ctx, `INSERT INTO status_lists
		(id, purpose, issuer, base_url, length, allocation_cursor, encoded_bits, metadata, key_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			allocation_cursor = EXCLUDED.allocation_cursor,
			encoded_bits = EXCLUDED.encoded_bits,
			metadata = EXCLUDED.metadata`,
		list.ID, list.Purpose, list.Issuer, list.BaseURL, list.Length,
		list.AllocationCursor, list.EncodedBits, metadataJSON, list.KeyID, list.CreatedAt)
	if err != nil {
		return fmt.Errorf("statuslist: save list %s: %w", list.ID, err)
	}
	return nil
}
