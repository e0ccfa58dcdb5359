package chain

// Admitter decides whether a certificate may gate a new block. It must be
// safe for concurrent use and must not depend on ledger state.
type Admitter interface {
	Admissible(cert *Certificate) bool
}

// AdmitterFunc adapts a function to the Admitter interface.
type AdmitterFunc func(cert *Certificate) bool

// Admissible implements Admitter.
func (f AdmitterFunc) Admissible(cert *Certificate) bool { return f(cert) }

// NonEmptyAdmitter accepts any certificate whose composite, factors and
// proof are all non-empty. It is a placeholder: it checks nothing about the
// factorization or the proof and provides no soundness guarantee. Production
// deployments inject a real verifier with WithAdmitter.
var NonEmptyAdmitter Admitter = AdmitterFunc(func(cert *Certificate) bool {
	return len(cert.Composite) > 0 &&
		len(cert.FactorP) > 0 &&
		len(cert.FactorQ) > 0 &&
		len(cert.Proof) > 0
})
