package chain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/captals/primechain/pkg/hashing"
	"github.com/captals/primechain/pkg/ledgerwire"
)

var (
	// ErrChainLinkage is returned by Append when the claimed previous hash is
	// not the current head. The caller is stale or raced another submitter.
	ErrChainLinkage = errors.New("previous hash does not match chain head")

	// ErrCertificateRejected is returned by Append when the certificate fails
	// the admission check.
	ErrCertificateRejected = errors.New("certificate rejected")

	// ErrIndexOutOfRange is returned by Get for an index at or past the chain length.
	ErrIndexOutOfRange = errors.New("block index out of range")

	// ErrCorruptChain is wrapped by every Verify failure.
	ErrCorruptChain = errors.New("chain integrity check failed")
)

// Ledger is the interface for the proof-gated, append-only block chain.
// MemoryLedger, PostgresLedger and SQLiteLedger implement it.
type Ledger interface {
	// Append admits cert, then appends a block on top of prevClaim and
	// returns its index. prevClaim must equal HeadHash (the zero hash for an
	// empty ledger). A failed Append leaves the ledger unchanged.
	Append(ctx context.Context, prevClaim, identityRoot, stateRoot hashing.Hash, cert *Certificate) (uint64, error)

	// Get returns the block at the given zero-based index.
	Get(ctx context.Context, index uint64) (*Block, error)

	// Len returns the number of blocks.
	Len(ctx context.Context) (uint64, error)

	// HeadHash returns the hash of the last block, or the zero hash when empty.
	HeadHash(ctx context.Context) (hashing.Hash, error)

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error
}

// BlockAppended is emitted once for every successful Append.
type BlockAppended = ledgerwire.BlockAppended

// Notifier receives BlockAppended events in index order. Ledgers call it
// while still serialising appends, so implementations must not block.
type Notifier interface {
	BlockAppended(ev BlockAppended)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ev BlockAppended)

// BlockAppended implements Notifier.
func (f NotifierFunc) BlockAppended(ev BlockAppended) { f(ev) }

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

// BlockAppended implements Notifier.
func (ns Notifiers) BlockAppended(ev BlockAppended) {
	for _, n := range ns {
		n.BlockAppended(ev)
	}
}

// Option configures a ledger.
type Option func(*options)

type options struct {
	admitter Admitter
	clock    func() time.Time
	notifier Notifier
	logger   *zap.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		admitter: NonEmptyAdmitter,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAdmitter replaces the default NonEmptyAdmitter.
func WithAdmitter(a Admitter) Option {
	return func(o *options) { o.admitter = a }
}

// WithClock sets the ledger clock used to timestamp blocks.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithNotifier sets the sink for BlockAppended events.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger sets the ledger logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func (o *options) now() time.Time { return clockTime(o.clock()) }

// admit copies cert and runs the admission check on the copy. The copy is
// what the block stores, so a caller mutating cert after the check cannot
// change what was admitted. admit touches no ledger state, so callers run it
// before taking their write lock.
func (o *options) admit(cert *Certificate) (*Certificate, error) {
	if cert == nil {
		return nil, ErrCertificateRejected
	}
	c := cert.Clone()
	if !o.admitter.Admissible(&c) {
		return nil, ErrCertificateRejected
	}
	return &c, nil
}

func (o *options) notify(b *Block) {
	if o.notifier != nil {
		o.notifier.BlockAppended(b.Event())
	}
}
