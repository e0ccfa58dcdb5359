// Package idmerkle builds and verifies Merkle commitments over identity
// records.
//
// Conventions, shared by the root builder, the proof builder and the
// verifier:
//
//   - Leaves are keccak256(0x00 || record encoding).
//   - A node is keccak256(0x01 || min(a, b) || max(a, b)); siblings are sorted
//     by byte value before hashing, so proofs carry no left/right flags.
//   - A level with an odd number of nodes pairs its last node with itself.
//
// Leaves keep their input order. Swapping the two members of one sibling pair
// does not change the root; moving a record into a different pair does.
package idmerkle

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/captals/primechain/pkg/hashing"
)

var (
	// ErrEmptyInput is returned when there are no records to commit to.
	ErrEmptyInput = errors.New("at least one identity record is required")

	// ErrIndexOutOfRange is returned when a proof is requested for an index
	// outside the record set.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Proof is the ordered list of sibling hashes from a leaf up to the root.
type Proof []hashing.Hash

// HashPair combines two sibling hashes in canonical order.
func HashPair(a, b hashing.Hash) hashing.Hash {
	if b.Less(a) {
		a, b = b, a
	}
	return hashing.Sum(hashing.TagNode, a[:], b[:])
}

// BuildRoot returns the Merkle root over records.
func BuildRoot(records []Record) (hashing.Hash, error) {
	return RootFromLeaves(Leaves(records))
}

// BuildProof returns the inclusion proof for records[index].
func BuildProof(records []Record, index int) (Proof, error) {
	return ProofFromLeaves(Leaves(records), index)
}

// RootFromLeaves returns the Merkle root over precomputed leaf hashes.
func RootFromLeaves(leaves []hashing.Hash) (hashing.Hash, error) {
	if len(leaves) == 0 {
		return hashing.Zero, ErrEmptyInput
	}
	level := leaves
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// ProofFromLeaves returns the inclusion proof for leaves[index].
func ProofFromLeaves(leaves []hashing.Hash, index int) (Proof, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyInput
	}
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("proof for index %d of %d records: %w", index, len(leaves), ErrIndexOutOfRange)
	}

	var proof Proof
	level := leaves
	idx := index
	for len(level) > 1 {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx // odd tail node is paired with itself
		}
		proof = append(proof, level[sibling])
		level = nextLevel(level)
		idx /= 2
	}
	return proof, nil
}

func nextLevel(level []hashing.Hash) []hashing.Hash {
	next := make([]hashing.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, HashPair(left, right))
	}
	return next
}

// VerifyProof reports whether proof links leaf to root.
func VerifyProof(proof Proof, root, leaf hashing.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return subtle.ConstantTimeCompare(computed[:], root[:]) == 1
}

// VerifyProofBytes is VerifyProof over raw byte slices, for verifiers that
// receive proofs from untrusted sources. Elements of the wrong length make the
// proof fail, but every element is still folded into the path so a malformed
// proof costs the same and answers the same as a wrong one.
func VerifyProofBytes(proof [][]byte, root, leaf []byte) bool {
	ok := 1
	computed, err := hashing.FromBytes(leaf)
	if err != nil {
		ok = 0
	}
	for _, raw := range proof {
		sibling, err := hashing.FromBytes(raw)
		if err != nil {
			ok = 0
		}
		computed = HashPair(computed, sibling)
	}
	want, err := hashing.FromBytes(root)
	if err != nil {
		ok = 0
	}
	return subtle.ConstantTimeCompare(computed[:], want[:])&ok == 1
}
