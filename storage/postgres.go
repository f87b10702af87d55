package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the Postgres channel ledger changes are announced on.
const notifyChannel = "ledger_changed"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS ledger_blobs (
	owner      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, key)
);
`

// Store persists ledger blobs in Postgres and relays change notifications
// between server processes with LISTEN/NOTIFY.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the ledger_blobs table exists.
// If databaseURL is empty, NewStore returns (nil, nil) and the caller should
// fall back to a local store.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Load returns the blob stored for owner and key, or nil if there is none.
func (s *Store) Load(ctx context.Context, owner, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM ledger_blobs WHERE owner = $1 AND key = $2`,
		owner, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger blob: %w", err)
	}
	return value, nil
}

// Save upserts the blob for owner and key. Last writer wins.
func (s *Store) Save(ctx context.Context, owner, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_blobs (owner, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (owner, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		owner, key, value,
	)
	if err != nil {
		return fmt.Errorf("save ledger blob: %w", err)
	}
	return nil
}

// Publish announces a ledger change to every listening server.
func (s *Store) Publish(ctx context.Context, payload string) error {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, payload); err != nil {
		return fmt.Errorf("notify ledger change: %w", err)
	}
	return nil
}

// Listen holds one pooled connection in LISTEN mode and calls fn for every
// notification until ctx is done.
func (s *Store) Listen(ctx context.Context, fn func(payload string)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		// A cancelled wait closes the connection; UNLISTEN then fails harmlessly.
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	slog.Info("listening for ledger changes", "tag", "storage", "channel", notifyChannel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		fn(n.Payload)
	}
}
