package factorproof

import (
	"math/big"

	"github.com/captals/primechain/internal/chain"
)

// DefaultRounds is the number of Miller-Rabin rounds ArithmeticAdmitter runs
// when Rounds is zero.
const DefaultRounds = 20

var one = big.NewInt(1)

// ArithmeticAdmitter admits a certificate when FactorP·FactorQ equals
// Composite, both factors exceed one and both pass a probable-prime test.
// The proof blob must be present but is not inspected.
type ArithmeticAdmitter struct {
	Rounds int
}

// Admissible implements chain.Admitter.
func (a ArithmeticAdmitter) Admissible(cert *chain.Certificate) bool {
	if cert == nil || len(cert.Composite) == 0 || len(cert.FactorP) == 0 ||
		len(cert.FactorQ) == 0 || len(cert.Proof) == 0 {
		return false
	}
	n := new(big.Int).SetBytes(cert.Composite)
	p := new(big.Int).SetBytes(cert.FactorP)
	q := new(big.Int).SetBytes(cert.FactorQ)
	if p.Cmp(one) <= 0 || q.Cmp(one) <= 0 {
		return false
	}
	if new(big.Int).Mul(p, q).Cmp(n) != 0 {
		return false
	}
	rounds := a.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	return p.ProbablyPrime(rounds) && q.ProbablyPrime(rounds)
}

// All returns an admitter that accepts a certificate only when every given
// admitter does. Admitters run in order and stop at the first rejection.
func All(admitters ...chain.Admitter) chain.Admitter {
	return chain.AdmitterFunc(func(cert *chain.Certificate) bool {
		for _, a := range admitters {
			if !a.Admissible(cert) {
				return false
			}
		}
		return true
	})
}
