package chain

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/captals/primechain/pkg/hashing"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteLedger persists the block chain to a single SQLite file.
// It implements the Ledger interface.
//
// The database is opened with:
//   - WAL mode so readers proceed during an append
//   - a single connection, since SQLite allows one writer at a time
//   - a 5-second busy timeout for contention with other processes
type SQLiteLedger struct {
	db     *sql.DB
	logger *zap.Logger
	opts   options

	mu sync.Mutex // serialises Append
}

// OpenSQLite creates or opens a ledger database at path and applies the schema.
func OpenSQLite(path string, logger *zap.Logger, opts ...Option) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite ledger: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	o := buildOptions(append([]Option{WithLogger(logger)}, opts...))
	return &SQLiteLedger{db: db, logger: o.logger, opts: o}, nil
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Append implements Ledger.
func (l *SQLiteLedger) Append(ctx context.Context, prevClaim, identityRoot, stateRoot hashing.Hash, cert *Certificate) (uint64, error) {
	admitted, err := l.opts.admit(cert)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	next, head, err := readTail(tx.QueryRowContext(ctx,
		"SELECT idx, hash FROM chain_blocks ORDER BY idx DESC LIMIT 1",
	))
	if err != nil {
		return 0, err
	}
	if prevClaim != head {
		return 0, fmt.Errorf("claimed %s, head is %s: %w", prevClaim, head, ErrChainLinkage)
	}

	b := newBlock(next, head, l.opts.now(), identityRoot, stateRoot, admitted)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chain_blocks (`+blockColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		blockArgs(b)...,
	); err != nil {
		return 0, fmt.Errorf("insert block: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit block tx: %w", err)
	}

	l.logger.Debug("block appended",
		zap.Uint64("index", b.Index),
		zap.Stringer("hash", b.Hash),
	)
	l.opts.notify(b)
	return b.Index, nil
}

// Get implements Ledger.
func (l *SQLiteLedger) Get(ctx context.Context, index uint64) (*Block, error) {
	b, err := scanBlock(l.db.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM chain_blocks WHERE idx = ?`, int64(index),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get block %d: %w", index, ErrIndexOutOfRange)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Ledger.
func (l *SQLiteLedger) Len(ctx context.Context) (uint64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chain_blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return uint64(n), nil
}

// HeadHash implements Ledger.
func (l *SQLiteLedger) HeadHash(ctx context.Context) (hashing.Hash, error) {
	_, head, err := readTail(l.db.QueryRowContext(ctx,
		"SELECT idx, hash FROM chain_blocks ORDER BY idx DESC LIMIT 1",
	))
	return head, err
}

// Verify implements Ledger.
func (l *SQLiteLedger) Verify(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
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
