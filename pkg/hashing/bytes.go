package hashing

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Bytes is a variable-length byte string that travels as 0x-prefixed hex in
// JSON and YAML instead of base64.
type Bytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b Bytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(StripHexPrefix(string(text)))
	if err != nil {
		return fmt.Errorf("decode hex bytes: %w", err)
	}
	*b = raw
	return nil
}

// ParseBytes decodes a hex string with an optional 0x prefix.
func ParseBytes(s string) (Bytes, error) {
	var b Bytes
	if err := b.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return b, nil
}

// String implements fmt.Stringer.
func (b Bytes) String() string { return "0x" + hex.EncodeToString(b) }

// LengthPrefixed returns b preceded by its length as a big-endian uint32.
func LengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// Uint64 returns v as 8 big-endian bytes.
func Uint64(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}
