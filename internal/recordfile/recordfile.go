// Package recordfile reads and writes identity-record files.
//
// A record file is YAML:
//
//	name: enrolment-2026-03
//	description: optional free text
//	records:
//	  - biometric_hash: "0x3d06..."
//	    digital_key: "0x1942..."
//	    metadata_hash: "0x4a42..."
//	    category: 0
//	    nonce: 1
//
// Hashes are 32-byte hex with an optional 0x prefix. Record order is
// significant: it fixes each record's position in the commitment tree.
package recordfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/captals/primechain/pkg/idmerkle"
)

// ErrNoRecords is returned for a file whose records list is empty.
var ErrNoRecords = errors.New("records list is required and must be non-empty")

// File is the decoded content of a record file.
type File struct {
	Name        string            `yaml:"name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Records     []idmerkle.Record `yaml:"records"`
}

// Load reads and parses the record file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a record file. Unknown fields are rejected so that a typo
// cannot silently zero a record field.
func Parse(r io.Reader) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Records) == 0 {
		return nil, ErrNoRecords
	}
	return &f, nil
}

// Write encodes f as YAML to w.
func Write(w io.Writer, f *File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode record file: %w", err)
	}
	return enc.Close()
}

// Save writes f to path, replacing any existing file.
func Save(path string, f *File) error {
	var buf bytes.Buffer
	if err := Write(&buf, f); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
