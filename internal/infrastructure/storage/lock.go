package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MerchScanner/internal/ports"
)

// PostgresLock is the named, timeout-bounded advisory lock serializing
// ingestion passes across processes. The expiry lets a crashed holder's
// lock be stolen after the TTL instead of wedging all future runs; in
// exchange, a legitimately slow pass can lose the lock once the TTL
// elapses. Each acquisition writes a per-holder token so a late Release
// from the previous holder cannot free a lock that was stolen from it.
type PostgresLock struct {
	db     *sql.DB
	holder string
}

var _ ports.PassLocker = (*PostgresLock)(nil)

// NewPostgresLock wires a sql.DB implementation.
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

// Acquire takes the named lock if it is free or expired, recording a
// fresh holder token. Returns false without error while another holder
// is live.
func (l *PostgresLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	const query = `INSERT INTO ingest_locks (name, holder, acquired_at, expires_at)
	               VALUES ($1, $2, now(), now() + make_interval(secs => $3))
	               ON CONFLICT (name) DO UPDATE
	               SET holder = EXCLUDED.holder,
	                   acquired_at = now(),
	                   expires_at = now() + make_interval(secs => $3)
	               WHERE ingest_locks.expires_at < now()`

	result, err := l.db.ExecContext(ctx, query, name, token, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if n == 0 {
		return false, nil
	}
	l.holder = token
	return true, nil
}

// Release frees the named lock only while this instance still holds
// it. A lock stolen after TTL expiry belongs to the new holder, so the
// delete matches on the holder token and a stale release is a no-op.
func (l *PostgresLock) Release(ctx context.Context, name string) error {
	if l.holder == "" {
		return nil
	}
	const query = `DELETE FROM ingest_locks WHERE name = $1 AND holder = $2`
	if _, err := l.db.ExecContext(ctx, query, name, l.holder); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	l.holder = ""
	return nil
}
