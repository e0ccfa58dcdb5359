package chain

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/captals/primechain/pkg/hashing"
)

// blockColumns is the column list shared by the SQL-backed ledgers, in the
// order scanBlock expects.
const blockColumns = `idx, prev_hash, ts_unix_nano, identity_root, state_root,
	composite, factor_p, factor_q, proof, cert_digest, hash`

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// blockArgs returns the insert arguments for b in blockColumns order.
func blockArgs(b *Block) []any {
	return []any{
		int64(b.Index),
		b.PrevHash[:],
		b.Timestamp.UnixNano(),
		b.IdentityRoot[:],
		b.StateRoot[:],
		[]byte(b.Certificate.Composite),
		[]byte(b.Certificate.FactorP),
		[]byte(b.Certificate.FactorQ),
		[]byte(b.Certificate.Proof),
		b.CertDigest[:],
		b.Hash[:],
	}
}

func scanBlock(row rowScanner) (*Block, error) {
	var (
		idx, tsNano                        int64
		prev, idRoot, stRoot, digest, hash []byte
		composite, factorP, factorQ, proof []byte
	)
	if err := row.Scan(&idx, &prev, &tsNano, &idRoot, &stRoot,
		&composite, &factorP, &factorQ, &proof, &digest, &hash); err != nil {
		return nil, err
	}

	b := &Block{
		Index:     uint64(idx),
		Timestamp: time.Unix(0, tsNano).UTC(),
		Certificate: Certificate{
			Composite: composite,
			FactorP:   factorP,
			FactorQ:   factorQ,
			Proof:     proof,
		},
	}
	for _, f := range []struct {
		dst *hashing.Hash
		src []byte
		col string
	}{
		{&b.PrevHash, prev, "prev_hash"},
		{&b.IdentityRoot, idRoot, "identity_root"},
		{&b.StateRoot, stRoot, "state_root"},
		{&b.CertDigest, digest, "cert_digest"},
		{&b.Hash, hash, "hash"},
	} {
		h, err := hashing.FromBytes(f.src)
		if err != nil {
			return nil, fmt.Errorf("block %d column %s: %w", idx, f.col, err)
		}
		*f.dst = h
	}
	return b, nil
}

// readTail scans the (idx, hash) of the last block. An empty table yields
// index 0 and the zero hash.
func readTail(row rowScanner) (uint64, hashing.Hash, error) {
	var (
		idx  int64
		hash []byte
	)
	err := row.Scan(&idx, &hash)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return 0, hashing.Zero, nil
	}
	if err != nil {
		return 0, hashing.Zero, fmt.Errorf("read chain tail: %w", err)
	}
	head, err := hashing.FromBytes(hash)
	if err != nil {
		return 0, hashing.Zero, fmt.Errorf("read chain tail: %w", err)
	}
	return uint64(idx) + 1, head, nil
}
