//go:build integration

package chain_test

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/pkg/hashing"
)

func setupPostgres(t *testing.T) *chain.PostgresLedger {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, "DELETE FROM chain_blocks"); err != nil {
		t.Fatalf("clean chain_blocks (run cmd/migrate first): %v", err)
	}
	return chain.NewPostgresLedger(pool, zap.NewNop())
}

func TestPostgresLedger_appendVerify(t *testing.T) {
	l := setupPostgres(t)

	prev := hashing.Zero
	for i := 0; i < 4; i++ {
		idx, err := l.Append(ctx, prev, root("id"), root("s"), testCert("pg"))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if idx != uint64(i) {
			t.Fatalf("append %d returned %d", i, idx)
		}
		prev, _ = l.HeadHash(ctx)
	}

	if _, err := l.Append(ctx, hashing.Zero, root("id"), root("s"), testCert("pg")); !errors.Is(err, chain.ErrChainLinkage) {
		t.Errorf("expected ErrChainLinkage, got %v", err)
	}
	if _, err := l.Get(ctx, 10); !errors.Is(err, chain.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify(): %v", err)
	}
}

func TestPostgresLedger_concurrentSameHead(t *testing.T) {
	l := setupPostgres(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(ctx, hashing.Zero, root("id"), root("s"), testCert("c")); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one success, got %d", successes)
	}
}
