package factorproof

import (
	"github.com/consensys/gnark/frontend"
)

// FactorBits bounds each secret factor. Two factors below 2^126 multiply to
// less than the BN254 scalar field modulus, so the product cannot wrap.
const FactorBits = 126

// MaxCompositeBits is the largest composite a Groth16 certificate can cover.
const MaxCompositeBits = 2 * FactorBits

// Circuit proves knowledge of a non-trivial factorization of a public
// composite N.
type Circuit struct {
	N frontend.Variable `gnark:",public"`

	P frontend.Variable
	Q frontend.Variable
}

// Define implements frontend.Circuit.
func (c *Circuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.P, c.Q), c.N)
	api.AssertIsDifferent(c.P, 1)
	api.AssertIsDifferent(c.Q, 1)

	// Range-check both factors.
	api.ToBinary(c.P, FactorBits)
	api.ToBinary(c.Q, FactorBits)
	return nil
}
