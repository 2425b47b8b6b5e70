// Package ecc implements just enough secp256k1 point arithmetic to turn
// a payment hash into the PTLC-correlation "payment point" the offer
// protocol carries; it is not used for signing.
package ecc

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Secp256k1 holds the curve parameters used by Bitcoin and Lightning.
type Secp256k1 struct {
	P  *big.Int // Prime field modulus
	A  *big.Int // Curve parameter a (0 for secp256k1)
	B  *big.Int // Curve parameter b (7 for secp256k1)
	Gx *big.Int // Generator point x coordinate
	Gy *big.Int // Generator point y coordinate
	N  *big.Int // Order of the generator point
}

var curve *Secp256k1

func init() {
	curve = &Secp256k1{}
	curve.P, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F", 16)
	curve.A = big.NewInt(0)
	curve.B = big.NewInt(7)
	curve.Gx, _ = new(big.Int).SetString("79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798", 16)
	curve.Gy, _ = new(big.Int).SetString("483ADA7726A3C4655DA4FBFC0E1108A8FD17B448A68554199C47D08FFB10D4B8", 16)
	curve.N, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
}

// Curve returns the shared secp256k1 parameter set.
func Curve() *Secp256k1 { return curve }

// Generator returns the generator point G.
func (c *Secp256k1) Generator() (*Point, error) {
	return NewPoint(c.Gx, c.Gy, c.A, c.B)
}

// IsValidScalar reports whether 0 < k < N.
func (c *Secp256k1) IsValidScalar(k *big.Int) bool {
	return k.Cmp(big.NewInt(0)) > 0 && k.Cmp(c.N) < 0
}

// GenerateScalar produces a cryptographically random valid scalar.
func (c *Secp256k1) GenerateScalar() (*big.Int, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate scalar: %w", err)
		}
		k := new(big.Int).SetBytes(buf)
		if c.IsValidScalar(k) {
			return k, nil
		}
	}
}

func (c *Secp256k1) modSquare(a *big.Int) *big.Int {
	r := new(big.Int).Mul(a, a)
	return r.Mod(r, c.P)
}

func (c *Secp256k1) modMul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Mod(r, c.P)
}

func (c *Secp256k1) modAdd(a, b *big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	return r.Mod(r, c.P)
}

// IsOnCurve checks if (x, y) satisfies y^2 = x^3 + 7 mod P.
func (c *Secp256k1) IsOnCurve(x, y *big.Int) bool {
	ySquared := c.modSquare(y)
	xCubed := c.modMul(c.modSquare(x), x)
	return ySquared.Cmp(c.modAdd(xCubed, c.B)) == 0
}
