package ecc

import (
	"fmt"
	"math/big"
)

// Point is a point on the secp256k1 curve, or the point at infinity
// when X and Y are both nil.
type Point struct {
	X, Y *big.Int
	A, B *big.Int
}

// NewPoint constructs a point and verifies it lies on the curve (unless
// it is the point at infinity).
func NewPoint(x, y, a, b *big.Int) (*Point, error) {
	if x == nil && y == nil {
		return &Point{A: new(big.Int).Set(a), B: new(big.Int).Set(b)}, nil
	}
	if x == nil || y == nil {
		return nil, fmt.Errorf("x and y must both be set or both be nil")
	}

	p := &Point{X: new(big.Int).Set(x), Y: new(big.Int).Set(y), A: new(big.Int).Set(a), B: new(big.Int).Set(b)}
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("point (%s, %s) is not on the curve", x.String(), y.String())
	}
	return p, nil
}

// IsInfinity reports whether p is the point at infinity.
func (p *Point) IsInfinity() bool { return p.X == nil && p.Y == nil }

// IsOnCurve reports whether p satisfies the curve equation.
func (p *Point) IsOnCurve() bool {
	if p.IsInfinity() {
		return true
	}
	return curve.IsOnCurve(p.X, p.Y)
}

// Add performs elliptic curve point addition.
func (p *Point) Add(other *Point) (*Point, error) {
	if p.A.Cmp(other.A) != 0 || p.B.Cmp(other.B) != 0 {
		return nil, fmt.Errorf("points are not on the same curve")
	}
	if p.IsInfinity() {
		return NewPoint(other.X, other.Y, other.A, other.B)
	}
	if other.IsInfinity() {
		return NewPoint(p.X, p.Y, p.A, p.B)
	}
	if p.X.Cmp(other.X) == 0 {
		if p.Y.Cmp(other.Y) != 0 {
			return NewPoint(nil, nil, p.A, p.B)
		}
		return p.Double()
	}

	numerator := new(big.Int).Sub(other.Y, p.Y)
	numerator.Mod(numerator, curve.P)
	denominator := new(big.Int).Sub(other.X, p.X)
	denominator.Mod(denominator, curve.P)

	slope := new(big.Int).ModInverse(denominator, curve.P)
	slope.Mul(slope, numerator)
	slope.Mod(slope, curve.P)

	x3 := new(big.Int).Mul(slope, slope)
	x3.Sub(x3, p.X)
	x3.Sub(x3, other.X)
	x3.Mod(x3, curve.P)

	y3 := new(big.Int).Sub(p.X, x3)
	y3.Mul(slope, y3)
	y3.Sub(y3, p.Y)
	y3.Mod(y3, curve.P)

	return NewPoint(x3, y3, p.A, p.B)
}

// Double performs elliptic curve point doubling.
func (p *Point) Double() (*Point, error) {
	if p.IsInfinity() {
		return NewPoint(nil, nil, p.A, p.B)
	}
	if p.Y.Sign() == 0 {
		return NewPoint(nil, nil, p.A, p.B)
	}

	numerator := new(big.Int).Mul(p.X, p.X)
	numerator.Mul(numerator, big.NewInt(3))
	numerator.Add(numerator, p.A)
	numerator.Mod(numerator, curve.P)

	denominator := new(big.Int).Mul(p.Y, big.NewInt(2))
	denominator.Mod(denominator, curve.P)

	slope := new(big.Int).ModInverse(denominator, curve.P)
	slope.Mul(slope, numerator)
	slope.Mod(slope, curve.P)

	x3 := new(big.Int).Mul(slope, slope)
	x3.Sub(x3, new(big.Int).Mul(p.X, big.NewInt(2)))
	x3.Mod(x3, curve.P)

	y3 := new(big.Int).Sub(p.X, x3)
	y3.Mul(slope, y3)
	y3.Sub(y3, p.Y)
	y3.Mod(y3, curve.P)

	return NewPoint(x3, y3, p.A, p.B)
}

// ScalarMult computes k*P using the binary double-and-add method.
func (p *Point) ScalarMult(k *big.Int) (*Point, error) {
	if k.Sign() == 0 {
		return NewPoint(nil, nil, p.A, p.B)
	}

	result, err := NewPoint(nil, nil, p.A, p.B)
	if err != nil {
		return nil, err
	}
	addend := &Point{X: new(big.Int).Set(p.X), Y: new(big.Int).Set(p.Y), A: p.A, B: p.B}

	kCopy := new(big.Int).Set(k)
	for kCopy.Sign() > 0 {
		if kCopy.Bit(0) == 1 {
			result, err = result.Add(addend)
			if err != nil {
				return nil, err
			}
		}
		addend, err = addend.Double()
		if err != nil {
			return nil, err
		}
		kCopy.Rsh(kCopy, 1)
	}
	return result, nil
}

// SEC returns the 33-byte compressed SEC encoding of the point, or nil
// for the point at infinity.
func (p *Point) SEC() []byte {
	if p.IsInfinity() {
		return nil
	}
	out := make([]byte, 33)
	if new(big.Int).And(p.Y, big.NewInt(1)).Sign() == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xBytes := p.X.Bytes()
	copy(out[33-len(xBytes):], xBytes)
	return out
}

// FromScalar computes scalar*G, i.e. the public point corresponding to
// a private scalar.
func FromScalar(scalar *big.Int) (*Point, error) {
	g, err := curve.Generator()
	if err != nil {
		return nil, err
	}
	return g.ScalarMult(scalar)
}
