// Package chain implements the proof-gated, append-only block ledger.
//
// Each block commits to an identity Merkle root, an opaque state root and the
// factorization certificate that admitted it. Blocks are linked by hash: the
// genesis block records the zero hash as its predecessor, and every later
// block records the hash of the block before it, so tampering is detectable
// via Verify.
//
// Appends are optimistic. The caller names the head it built on; if another
// append got there first the call fails with ErrChainLinkage and the caller
// must refetch the head and resubmit.
//
// Three implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and single-node deployments.
//   - PostgresLedger: durable, serialised across processes with an advisory lock.
//   - SQLiteLedger: durable, single-file, for embedded deployments.
package chain
