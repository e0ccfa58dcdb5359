package factorproof

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"go.uber.org/zap"

	"github.com/captals/primechain/internal/chain"
)

// Curve is the pairing curve all keys and proofs are built on.
const Curve = ecc.BN254

// Compile compiles the factorization circuit to R1CS.
func Compile() (constraint.ConstraintSystem, error) {
	var circuit Circuit
	ccs, err := frontend.Compile(Curve.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("compile factor circuit: %w", err)
	}
	return ccs, nil
}

// Prover produces Groth16 proofs for the factorization circuit.
type Prover struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

// Setup compiles the circuit and runs a fresh Groth16 setup. The setup is
// not a multi-party ceremony: whoever runs it can forge proofs, so keys for a
// shared ledger must come from a trusted source.
func Setup() (*Prover, groth16.VerifyingKey, error) {
	ccs, err := Compile()
	if err != nil {
		return nil, nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("groth16 setup: %w", err)
	}
	return &Prover{ccs: ccs, pk: pk}, vk, nil
}

// Prove returns a serialized proof that p·q = n.
func (pr *Prover) Prove(n, p, q *big.Int) ([]byte, error) {
	assignment := &Circuit{N: n, P: p, Q: q}
	w, err := frontend.NewWitness(assignment, Curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(pr.ccs, pr.pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Certificate proves p·q and packages the result as a ledger certificate.
func (pr *Prover) Certificate(p, q *big.Int) (*chain.Certificate, error) {
	n := new(big.Int).Mul(p, q)
	proof, err := pr.Prove(n, p, q)
	if err != nil {
		return nil, err
	}
	return &chain.Certificate{
		Composite: n.Bytes(),
		FactorP:   p.Bytes(),
		FactorQ:   q.Bytes(),
		Proof:     proof,
	}, nil
}

// Groth16Admitter admits a certificate when its proof blob is a valid
// Groth16 proof, under the configured verifying key, that the prover knows a
// non-trivial factorization of Composite. The public factor fields are not
// consulted; chain it after ArithmeticAdmitter with All to check them too.
type Groth16Admitter struct {
	vk     groth16.VerifyingKey
	logger *zap.Logger
}

// NewGroth16Admitter returns an admitter verifying against vk.
func NewGroth16Admitter(vk groth16.VerifyingKey, logger *zap.Logger) *Groth16Admitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Groth16Admitter{vk: vk, logger: logger}
}

// Admissible implements chain.Admitter.
func (a *Groth16Admitter) Admissible(cert *chain.Certificate) bool {
	if err := a.verify(cert); err != nil {
		a.logger.Debug("certificate rejected", zap.Error(err))
		return false
	}
	return true
}

func (a *Groth16Admitter) verify(cert *chain.Certificate) error {
	if cert == nil || len(cert.Proof) == 0 {
		return errors.New("missing proof")
	}
	n := new(big.Int).SetBytes(cert.Composite)
	if n.Cmp(one) <= 0 {
		return errors.New("composite must exceed one")
	}
	// Larger values would be reduced modulo the scalar field.
	if n.BitLen() > MaxCompositeBits {
		return fmt.Errorf("composite has %d bits, limit is %d", n.BitLen(), MaxCompositeBits)
	}

	proof := groth16.NewProof(Curve)
	if _, err := proof.ReadFrom(bytes.NewReader(cert.Proof)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}
	w, err := frontend.NewWitness(&Circuit{N: n}, Curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	if err := groth16.Verify(proof, a.vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// SaveKeys writes the prover's proving key and vk to disk.
func (pr *Prover) SaveKeys(pkPath, vkPath string, vk groth16.VerifyingKey) error {
	if err := writeKey(pkPath, pr.pk); err != nil {
		return fmt.Errorf("save proving key: %w", err)
	}
	if err := writeKey(vkPath, vk); err != nil {
		return fmt.Errorf("save verifying key: %w", err)
	}
	return nil
}

// LoadProver compiles the circuit and reads a proving key from disk.
func LoadProver(pkPath string) (*Prover, error) {
	ccs, err := Compile()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(pkPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(Curve)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read proving key %s: %w", pkPath, err)
	}
	return &Prover{ccs: ccs, pk: pk}, nil
}

// LoadVerifyingKey reads a verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(Curve)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read verifying key %s: %w", path, err)
	}
	return vk, nil
}

type keyWriter interface {
	WriteTo(w io.Writer) (int64, error)
}

func writeKey(path string, k keyWriter) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := k.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
