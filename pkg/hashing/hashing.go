// Package hashing provides the Keccak-256 primitives shared by the identity
// commitment builder and the block ledger.
//
// Every digest is domain separated: the first byte fed to the sponge is a tag
// naming what is being hashed, so a leaf preimage can never be reinterpreted
// as an internal node, a block header or a certificate bundle.
package hashing

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the length in bytes of every digest produced by this package.
const Size = 32

// Domain tags.
const (
	TagLeaf        byte = 0x00
	TagNode        byte = 0x01
	TagBlock       byte = 0x02
	TagCertificate byte = 0x03
)

// Hash is a Keccak-256 digest.
type Hash [Size]byte

// Zero is the all-zero sentinel used as the previous hash of a genesis block
// and as the head of an empty ledger.
var Zero Hash

// Sum returns the Keccak-256 digest of tag followed by each part in order.
func Sum(tag byte, parts ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{tag})
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// Keccak256 returns the untagged Keccak-256 digest of data, as exposed by
// Solidity's keccak256.
func Keccak256(data []byte) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out Hash
	h.Sum(out[:0])
	return out
}

// IsZero reports whether h is the zero sentinel.
func (h Hash) IsZero() bool { return h == Zero }

// Less reports whether h sorts before o in byte order.
func (h Hash) Less(o Hash) bool { return bytes.Compare(h[:], o[:]) < 0 }

// Bytes returns a copy of the digest as a slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// Hex returns the lowercase hex encoding of h without a 0x prefix.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return "0x" + h.Hex() }

// MarshalText encodes h as 0x-prefixed hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes hex with or without a 0x prefix.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 32-byte hex digest. A leading 0x is optional.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(StripHexPrefix(s))
	if err != nil {
		return Zero, fmt.Errorf("decode hash %q: %w", s, err)
	}
	return FromBytes(raw)
}

// FromBytes copies a 32-byte slice into a Hash.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("hash must be %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// StripHexPrefix removes a leading 0x or 0X when present.
func StripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
