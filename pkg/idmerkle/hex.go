package idmerkle

import (
	"encoding/hex"

	"github.com/captals/primechain/pkg/hashing"
)

// BuildRootHex returns the root over records as hex without a 0x prefix.
func BuildRootHex(records []Record) (string, error) {
	root, err := BuildRoot(records)
	if err != nil {
		return "", err
	}
	return root.Hex(), nil
}

// BuildProofHex returns the proof for records[index] as hex strings without
// a 0x prefix.
func BuildProofHex(records []Record, index int) ([]string, error) {
	proof, err := BuildProof(records, index)
	if err != nil {
		return nil, err
	}
	return proof.Hex(), nil
}

// Hex encodes every proof element as hex without a 0x prefix.
func (p Proof) Hex() []string {
	out := make([]string, len(p))
	for i, h := range p {
		out[i] = h.Hex()
	}
	return out
}

// VerifyProofHex verifies a hex-encoded proof. Inputs that fail to decode are
// treated like any other non-matching proof.
func VerifyProofHex(proofHex []string, rootHex, leafHex string) bool {
	proof := make([][]byte, len(proofHex))
	for i, s := range proofHex {
		proof[i] = decodeLoose(s)
	}
	return VerifyProofBytes(proof, decodeLoose(rootHex), decodeLoose(leafHex))
}

// decodeLoose returns nil for undecodable input so the caller's length check
// rejects it.
func decodeLoose(s string) []byte {
	b, err := hex.DecodeString(hashing.StripHexPrefix(s))
	if err != nil {
		return nil
	}
	return b
}
