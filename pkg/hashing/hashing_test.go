package hashing_test

import (
	"encoding/json"
	"testing"

	"github.com/captals/primechain/pkg/hashing"
)

func TestKeccak256_referenceVector(t *testing.T) {
	// keccak256("abc") as computed by Solidity.
	const want = "4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"
	if got := hashing.Keccak256([]byte("abc")).Hex(); got != want {
		t.Errorf("Keccak256(abc) = %s, want %s", got, want)
	}
}

func TestSum_domainTagsDiffer(t *testing.T) {
	payload := []byte("payload")
	leaf := hashing.Sum(hashing.TagLeaf, payload)
	node := hashing.Sum(hashing.TagNode, payload)
	if leaf == node {
		t.Fatal("leaf and node digests must differ for the same payload")
	}
	if hashing.Sum(hashing.TagLeaf, payload) != leaf {
		t.Error("Sum is not deterministic")
	}
}

func TestSum_partsAreConcatenated(t *testing.T) {
	a := hashing.Sum(hashing.TagNode, []byte("ab"), []byte("cd"))
	b := hashing.Sum(hashing.TagNode, []byte("abcd"))
	if a != b {
		t.Error("Sum over parts should equal Sum over the concatenation")
	}
}

func TestParseHash(t *testing.T) {
	h := hashing.Keccak256([]byte("x"))

	for _, in := range []string{h.Hex(), "0x" + h.Hex(), "0X" + h.Hex()} {
		got, err := hashing.ParseHash(in)
		if err != nil {
			t.Fatalf("ParseHash(%q): %v", in, err)
		}
		if got != h {
			t.Errorf("ParseHash(%q) = %s, want %s", in, got, h)
		}
	}

	if _, err := hashing.ParseHash("0x1234"); err == nil {
		t.Error("expected error for short hash")
	}
	if _, err := hashing.ParseHash("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
}

func TestHash_JSON(t *testing.T) {
	h := hashing.Keccak256([]byte("json"))
	raw, err := json.Marshal(struct {
		H hashing.Hash `json:"h"`
	}{h})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"h":"` + h.String() + `"}`
	if string(raw) != want {
		t.Errorf("marshal: got %s, want %s", raw, want)
	}

	var out struct {
		H hashing.Hash `json:"h"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.H != h {
		t.Errorf("unmarshal: got %s, want %s", out.H, h)
	}
}

func TestBytes_hexText(t *testing.T) {
	b := hashing.Bytes{0xca, 0xfe}
	if b.String() != "0xcafe" {
		t.Errorf("String() = %q", b.String())
	}
	parsed, err := hashing.ParseBytes("cafe")
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed) != string(b) {
		t.Errorf("ParseBytes = %x", parsed)
	}
}

func TestZero(t *testing.T) {
	if !hashing.Zero.IsZero() {
		t.Error("Zero.IsZero() = false")
	}
	if hashing.Keccak256(nil).IsZero() {
		t.Error("digest of empty input should not be zero")
	}
}
