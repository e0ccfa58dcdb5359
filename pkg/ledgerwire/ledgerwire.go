// Package ledgerwire defines the block and certificate types exchanged with
// a chaind ledger, together with the hashing rules that link blocks.
//
// It depends only on pkg/hashing, so SDK users can decode and check blocks
// without linking any storage backend.
package ledgerwire

import (
	"time"

	"github.com/captals/primechain/pkg/hashing"
)

// Certificate is a claimed factorization of Composite into FactorP·FactorQ
// together with a proof blob. Integers are unsigned big-endian byte strings.
// The ledger never interprets these fields; it only hands the bundle to an
// admission check.
type Certificate struct {
	Composite hashing.Bytes `json:"composite"`
	FactorP   hashing.Bytes `json:"factor_p"`
	FactorQ   hashing.Bytes `json:"factor_q"`
	Proof     hashing.Bytes `json:"proof"`
}

// Digest returns the hash a block commits to in place of the raw certificate.
// Each field is length-prefixed so field boundaries cannot shift.
func (c *Certificate) Digest() hashing.Hash {
	return hashing.Sum(hashing.TagCertificate,
		hashing.LengthPrefixed(c.Composite),
		hashing.LengthPrefixed(c.FactorP),
		hashing.LengthPrefixed(c.FactorQ),
		hashing.LengthPrefixed(c.Proof),
	)
}

// Clone returns a deep copy of c.
func (c *Certificate) Clone() Certificate {
	return Certificate{
		Composite: cloneBytes(c.Composite),
		FactorP:   cloneBytes(c.FactorP),
		FactorQ:   cloneBytes(c.FactorQ),
		Proof:     cloneBytes(c.Proof),
	}
}

func cloneBytes(b []byte) hashing.Bytes {
	if b == nil {
		return nil
	}
	out := make(hashing.Bytes, len(b))
	copy(out, b)
	return out
}

// Block is a single admitted entry in the chain.
type Block struct {
	Index        uint64       `json:"index"`
	PrevHash     hashing.Hash `json:"prev_hash"`
	Timestamp    time.Time    `json:"timestamp"`
	IdentityRoot hashing.Hash `json:"identity_root"`
	StateRoot    hashing.Hash `json:"state_root"`
	Certificate  Certificate  `json:"certificate"`
	CertDigest   hashing.Hash `json:"cert_digest"`
	Hash         hashing.Hash `json:"hash"`
}

// HeaderHash computes the linkage hash over the block header. It reads
// CertDigest, not the certificate bytes, so the cost is independent of
// certificate size.
func (b *Block) HeaderHash() hashing.Hash {
	return hashing.Sum(hashing.TagBlock,
		hashing.Uint64(b.Index),
		b.PrevHash[:],
		hashing.Uint64(uint64(b.Timestamp.UnixNano())),
		b.IdentityRoot[:],
		b.StateRoot[:],
		b.CertDigest[:],
	)
}

// Seal sets CertDigest and Hash from the other fields.
func (b *Block) Seal() {
	b.CertDigest = b.Certificate.Digest()
	b.Hash = b.HeaderHash()
}

// Sealed reports whether CertDigest and Hash match the block's contents.
func (b *Block) Sealed() bool {
	return b.CertDigest == b.Certificate.Digest() && b.Hash == b.HeaderHash()
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	cp := *b
	cp.Certificate = b.Certificate.Clone()
	return &cp
}

// BlockAppended is emitted once for every successful append.
type BlockAppended struct {
	Index        uint64       `json:"index"`
	PrevHash     hashing.Hash `json:"prev_hash"`
	Hash         hashing.Hash `json:"hash"`
	IdentityRoot hashing.Hash `json:"identity_root"`
	StateRoot    hashing.Hash `json:"state_root"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Event returns the BlockAppended notification for b.
func (b *Block) Event() BlockAppended {
	return BlockAppended{
		Index:        b.Index,
		PrevHash:     b.PrevHash,
		Hash:         b.Hash,
		IdentityRoot: b.IdentityRoot,
		StateRoot:    b.StateRoot,
		Timestamp:    b.Timestamp,
	}
}
