package chain

import (
	"fmt"
	"time"

	"github.com/captals/primechain/pkg/hashing"
	"github.com/captals/primechain/pkg/ledgerwire"
)

// Certificate and Block are the ledger's wire types.
type (
	Certificate = ledgerwire.Certificate
	Block       = ledgerwire.Block
)

// newBlock builds and seals a block. It takes ownership of cert, which must
// be the copy returned by options.admit.
func newBlock(index uint64, prev hashing.Hash, ts time.Time, identityRoot, stateRoot hashing.Hash, cert *Certificate) *Block {
	b := &Block{
		Index:        index,
		PrevHash:     prev,
		Timestamp:    ts,
		IdentityRoot: identityRoot,
		StateRoot:    stateRoot,
		Certificate:  *cert,
	}
	b.Seal()
	return b
}

// verifyLink checks that curr is a well-formed successor of prev. prev is nil
// for the genesis block.
func verifyLink(prev, curr *Block) error {
	if prev == nil {
		if curr.Index != 0 {
			return fmt.Errorf("first block has index %d: %w", curr.Index, ErrCorruptChain)
		}
		if !curr.PrevHash.IsZero() {
			return fmt.Errorf("genesis block has non-zero previous hash: %w", ErrCorruptChain)
		}
	} else {
		if curr.Index != prev.Index+1 {
			return fmt.Errorf("index gap after block %d: %w", prev.Index, ErrCorruptChain)
		}
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d: %w", curr.Index, ErrCorruptChain)
		}
	}
	if curr.CertDigest != curr.Certificate.Digest() {
		return fmt.Errorf("block %d has invalid certificate digest: %w", curr.Index, ErrCorruptChain)
	}
	if curr.Hash != curr.HeaderHash() {
		return fmt.Errorf("block %d has invalid hash: %w", curr.Index, ErrCorruptChain)
	}
	return nil
}

// clockTime normalises a clock reading to what survives a round trip through
// every store: nanoseconds since the epoch, in UTC.
func clockTime(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano()).UTC()
}
