package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/captals/primechain/pkg/hashing"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all chaind instances sharing a database.
const advisoryLockKey = int64(1_618_033_988)

// PostgresLedger persists the block chain to a PostgreSQL database.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	opts   options

	// mu keeps commit and notification of one append ahead of the next
	// append from this process, so events leave in index order.
	mu sync.Mutex
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
// The chain_blocks table must exist (see cmd/migrate).
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger, opts ...Option) *PostgresLedger {
	o := buildOptions(append([]Option{WithLogger(logger)}, opts...))
	return &PostgresLedger{pool: pool, logger: o.logger, opts: o}
}

// Append implements Ledger.
// It acquires a PostgreSQL advisory lock, reads the chain tail, checks the
// caller's previous-hash claim and inserts the new block, all within a
// single transaction.
func (l *PostgresLedger) Append(ctx context.Context, prevClaim, identityRoot, stateRoot hashing.Hash, cert *Certificate) (uint64, error) {
	admitted, err := l.opts.admit(cert)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The lock is released automatically when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return 0, fmt.Errorf("acquire advisory lock: %w", err)
	}

	next, head, err := readTail(tx.QueryRow(ctx,
		"SELECT idx, hash FROM chain_blocks ORDER BY idx DESC LIMIT 1",
	))
	if err != nil {
		return 0, err
	}
	if prevClaim != head {
		return 0, fmt.Errorf("claimed %s, head is %s: %w", prevClaim, head, ErrChainLinkage)
	}

	b := newBlock(next, head, l.opts.now(), identityRoot, stateRoot, admitted)
	if _, err := tx.Exec(ctx,
		`INSERT INTO chain_blocks (`+blockColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		blockArgs(b)...,
	); err != nil {
		return 0, fmt.Errorf("insert block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit block tx: %w", err)
	}

	l.logger.Debug("block appended",
		zap.Uint64("index", b.Index),
		zap.Stringer("hash", b.Hash),
		zap.Stringer("identity_root", b.IdentityRoot),
	)
	l.opts.notify(b)
	return b.Index, nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, index uint64) (*Block, error) {
	b, err := scanBlock(l.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM chain_blocks WHERE idx = $1`, int64(index),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get block %d: %w", index, ErrIndexOutOfRange)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (uint64, error) {
	var n int64
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chain_blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return uint64(n), nil
}

// HeadHash implements Ledger.
func (l *PostgresLedger) HeadHash(ctx context.Context) (hashing.Hash, error) {
	_, head, err := readTail(l.pool.QueryRow(ctx,
		"SELECT idx, hash FROM chain_blocks ORDER BY idx DESC LIMIT 1",
	))
	return head, err
}

// Verify implements Ledger. It streams all rows ordered by idx and validates
// the hash chain. O(n) in ledger length; may be slow for very large ledgers.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT `+blockColumns+` FROM chain_blocks ORDER BY idx ASC`,
	)
	if err != nil {
		return fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var prev *Block
	for rows.Next() {
		curr, err := scanBlock(rows)
		if err != nil {
			return fmt.Errorf("scan block row: %w", err)
		}
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}
