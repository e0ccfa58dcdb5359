// Package factorproof provides certificate admitters for the chain ledger.
//
// ArithmeticAdmitter checks the claimed factorization directly. Groth16Admitter
// verifies a gnark Groth16 proof over BN254 that the prover knows two factors,
// neither equal to one, whose product is the certificate's composite. The two
// can be combined with All.
package factorproof
