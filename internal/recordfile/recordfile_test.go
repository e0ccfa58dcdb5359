package recordfile_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captals/primechain/internal/recordfile"
	"github.com/captals/primechain/pkg/hashing"
	"github.com/captals/primechain/pkg/idmerkle"
)

func TestLoad_fixtureMatchesKnownRoot(t *testing.T) {
	f, err := recordfile.Load(filepath.Join("testdata", "five_records.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "five-sample-records", f.Name)
	require.Len(t, f.Records, 5)
	assert.Equal(t, hashing.Keccak256([]byte("biometric-0")), f.Records[0].BiometricHash)
	assert.Equal(t, uint16(3), f.Records[3].Category)
	assert.Equal(t, uint64(5), f.Records[4].Nonce)

	root, err := idmerkle.BuildRoot(f.Records)
	require.NoError(t, err)
	assert.Equal(t, "7d83597c5014214992d4a8257a3bf40ed2c585eec523ab75b64e756cfef34c73", root.Hex())
}

func TestParse_errors(t *testing.T) {
	cases := map[string]string{
		"unknown field": `
records:
  - biometric_hash: "0x` + strings.Repeat("ab", 32) + `"
    nonse: 3
`,
		"short hash": `
records:
  - biometric_hash: "0x1234"
`,
		"not hex": `
records:
  - digital_key: "` + strings.Repeat("zz", 32) + `"
`,
		"negative category": `
records:
  - category: -1
`,
		"not yaml": "records: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := recordfile.Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_emptyRecords(t *testing.T) {
	_, err := recordfile.Parse(strings.NewReader("name: empty\nrecords: []\n"))
	assert.True(t, errors.Is(err, recordfile.ErrNoRecords), "got %v", err)
}

func TestSaveLoadPreservesOrderAndRoot(t *testing.T) {
	in := &recordfile.File{
		Name: "round-trip",
		Records: []idmerkle.Record{
			{BiometricHash: hashing.Keccak256([]byte("z")), Category: 2, Nonce: 9},
			{DigitalKey: hashing.Keccak256([]byte("a")), Nonce: 1},
			{MetadataHash: hashing.Keccak256([]byte("m")), Category: 65535, Nonce: 1<<64 - 1},
		},
	}
	path := filepath.Join(t.TempDir(), "records.yaml")
	require.NoError(t, recordfile.Save(path, in))

	out, err := recordfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, in.Records, out.Records)

	want, _ := idmerkle.BuildRoot(in.Records)
	got, _ := idmerkle.BuildRoot(out.Records)
	assert.Equal(t, want, got)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := recordfile.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
