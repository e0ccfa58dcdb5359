package idmerkle

import (
	"encoding/binary"

	"github.com/captals/primechain/pkg/hashing"
)

// EncodedSize is the length of a serialized Record.
const EncodedSize = 3*hashing.Size + 2 + 8

// Record is one subject's identity attributes. All fields are fixed width so
// the serialization has exactly one byte representation per record.
type Record struct {
	BiometricHash hashing.Hash `json:"biometric_hash" yaml:"biometric_hash"`
	DigitalKey    hashing.Hash `json:"digital_key"    yaml:"digital_key"`
	MetadataHash  hashing.Hash `json:"metadata_hash"  yaml:"metadata_hash"`
	Category      uint16       `json:"category"       yaml:"category"`
	Nonce         uint64       `json:"nonce"          yaml:"nonce"`
}

// Encode serializes r in field order:
//
//	biometric_hash(32) | digital_key(32) | metadata_hash(32) | category(2, BE) | nonce(8, BE)
func (r Record) Encode() []byte {
	out := make([]byte, EncodedSize)
	off := copy(out, r.BiometricHash[:])
	off += copy(out[off:], r.DigitalKey[:])
	off += copy(out[off:], r.MetadataHash[:])
	binary.BigEndian.PutUint16(out[off:], r.Category)
	binary.BigEndian.PutUint64(out[off+2:], r.Nonce)
	return out
}

// Leaf returns the domain-separated leaf hash of r.
func (r Record) Leaf() hashing.Hash {
	return hashing.Sum(hashing.TagLeaf, r.Encode())
}

// Leaf is shorthand for r.Leaf().
func Leaf(r Record) hashing.Hash { return r.Leaf() }

// Leaves hashes every record in order.
func Leaves(records []Record) []hashing.Hash {
	leaves := make([]hashing.Hash, len(records))
	for i, r := range records {
		leaves[i] = r.Leaf()
	}
	return leaves
}
