package chain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/captals/primechain/pkg/hashing"
)

// verifyCheckEvery is how many blocks Verify walks between context checks.
const verifyCheckEvery = 4096

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryLedger struct {
	opts options

	mu     sync.RWMutex
	blocks []*Block
	head   hashing.Hash
}

// New creates an empty MemoryLedger.
func New(opts ...Option) *MemoryLedger {
	return &MemoryLedger{opts: buildOptions(opts)}
}

// NewWithGenesis creates a MemoryLedger seeded with an injected genesis
// block. The block must have index 0 and a zero previous hash; its digest and
// hash are recomputed. The genesis block bypasses admission and emits no
// event.
func NewWithGenesis(genesis Block, opts ...Option) (*MemoryLedger, error) {
	if genesis.Index != 0 || !genesis.PrevHash.IsZero() {
		return nil, fmt.Errorf("genesis block must have index 0 and zero previous hash")
	}
	g := genesis.Clone()
	g.Timestamp = clockTime(g.Timestamp)
	g.Seal()

	l := New(opts...)
	l.blocks = append(l.blocks, g)
	l.head = g.Hash
	return l, nil
}

// Append implements Ledger.
func (l *MemoryLedger) Append(ctx context.Context, prevClaim, identityRoot, stateRoot hashing.Hash, cert *Certificate) (uint64, error) {
	admitted, err := l.opts.admit(cert)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prevClaim != l.head {
		return 0, fmt.Errorf("claimed %s, head is %s: %w", prevClaim, l.head, ErrChainLinkage)
	}

	b := newBlock(uint64(len(l.blocks)), l.head, l.opts.now(), identityRoot, stateRoot, admitted)
	l.blocks = append(l.blocks, b)
	l.head = b.Hash

	l.opts.logger.Debug("block appended",
		zap.Uint64("index", b.Index),
		zap.Stringer("hash", b.Hash),
		zap.Stringer("identity_root", b.IdentityRoot),
	)
	l.opts.notify(b)
	return b.Index, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index uint64) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("get block %d of %d: %w", index, len(l.blocks), ErrIndexOutOfRange)
	}
	return l.blocks[index].Clone(), nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks)), nil
}

// HeadHash implements Ledger.
func (l *MemoryLedger) HeadHash(_ context.Context) (hashing.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head, nil
}

// Verify implements Ledger. It walks the chain and checks that all hashes
// are consistent. The genesis block must link to the zero hash.
//
// The walk runs over a snapshot taken under the read lock, so appends and
// readers proceed while it runs. Published blocks are never modified.
func (l *MemoryLedger) Verify(ctx context.Context) error {
	l.mu.RLock()
	blocks, head := l.blocks, l.head
	l.mu.RUnlock()

	var prev *Block
	for i, curr := range blocks {
		if i%verifyCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	if prev != nil && prev.Hash != head {
		return fmt.Errorf("head does not match last block: %w", ErrCorruptChain)
	}
	return nil
}
