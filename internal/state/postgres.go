package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/rolecounter/internal/platform/db"
)

const (
	recordCounter = "counter"
	recordACL     = "acl"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS contract_state (
	deployment TEXT NOT NULL,
	record     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (deployment, record)
)`

// PostgresStore keeps the two records as rows of contract_state, locked with
// SELECT ... FOR UPDATE for the duration of an update.
type PostgresStore struct {
	pool       *pgxpool.Pool
	deployment string
}

// NewPostgresStore builds a PostgresStore for the named deployment.
func NewPostgresStore(pool *pgxpool.Pool, deployment string) *PostgresStore {
	return &PostgresStore{pool: pool, deployment: deployment}
}

// EnsureSchema creates the contract_state table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("state/postgres: ensure schema: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT record, payload FROM contract_state WHERE deployment = $1`, s.deployment)
	if err != nil {
		return nil, fmt.Errorf("state/postgres: load: %w", err)
	}
	return scanSnapshot(rows)
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, fn UpdateFunc) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT record, payload FROM contract_state WHERE deployment = $1 FOR UPDATE`, s.deployment)
		if err != nil {
			return fmt.Errorf("state/postgres: lock: %w", err)
		}
		current, err := scanSnapshot(rows)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		records, err := encodeRecords(next)
		if err != nil {
			return err
		}
		for record, payload := range records {
			if current == nil {
				_, err = tx.Exec(ctx, `INSERT INTO contract_state (deployment, record, payload) VALUES ($1, $2, $3)`, s.deployment, record, payload)
			} else {
				_, err = tx.Exec(ctx, `UPDATE contract_state SET payload = $3, updated_at = NOW() WHERE deployment = $1 AND record = $2`, s.deployment, record, payload)
			}
			if err != nil {
				return fmt.Errorf("state/postgres: write %s: %w", record, err)
			}
		}
		return nil
	})
	if isConflict(err) {
		return ErrConflict
	}
	return err
}

func scanSnapshot(rows pgx.Rows) (*Snapshot, error) {
	defer rows.Close()
	var snap Snapshot
	seen := map[string]bool{}
	for rows.Next() {
		var record string
		var payload []byte
		if err := rows.Scan(&record, &payload); err != nil {
			return nil, fmt.Errorf("state/postgres: scan: %w", err)
		}
		switch record {
		case recordCounter:
			if err := json.Unmarshal(payload, &snap.Counter); err != nil {
				return nil, fmt.Errorf("state/postgres: decode counter: %w", err)
			}
		case recordACL:
			if err := json.Unmarshal(payload, &snap.ACL); err != nil {
				return nil, fmt.Errorf("state/postgres: decode acl: %w", err)
			}
		default:
			continue
		}
		seen[record] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state/postgres: rows: %w", err)
	}
	switch len(seen) {
	case 0:
		return nil, nil
	case 2:
		return &snap, nil
	default:
		return nil, errors.New("state/postgres: partial snapshot")
	}
}

func encodeRecords(snap *Snapshot) (map[string][]byte, error) {
	counterJSON, err := json.Marshal(snap.Counter)
	if err != nil {
		return nil, fmt.Errorf("state/postgres: encode counter: %w", err)
	}
	aclJSON, err := json.Marshal(snap.ACL)
	if err != nil {
		return nil, fmt.Errorf("state/postgres: encode acl: %w", err)
	}
	return map[string][]byte{recordCounter: counterJSON, recordACL: aclJSON}, nil
}

// isConflict matches unique_violation (two first deployments racing) and
// serialization_failure (repeatable-read write skew).
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" || pgErr.Code == "40001"
}
