package ecc

import "math/big"

// PaymentPoint maps a Lightning payment hash onto a secp256k1 point: the
// hash, reduced mod the curve order and treated as a scalar, multiplied
// by the generator. The result is opaque — it is carried on
// ReceivedOffer for future PTLC-style correlation between the buyer and
// seller's views of a payment, and is advisory only: it is never
// verified against the preimage the buyer eventually learns.
func PaymentPoint(paymentHash [32]byte) ([]byte, error) {
	scalar := new(big.Int).SetBytes(paymentHash[:])
	scalar.Mod(scalar, curve.N)
	if scalar.Sign() == 0 {
		scalar.SetInt64(1)
	}

	p, err := FromScalar(scalar)
	if err != nil {
		return nil, err
	}
	return p.SEC(), nil
}
