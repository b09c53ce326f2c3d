// Package fixedpoint implements the UQ112.112 binary fixed-point format
// used for pool price ratios: 112 integer bits and 112 fractional bits in a
// 224-bit value carried inside a uint256.
//
// All arithmetic is performed on holiman/uint256, whose operations wrap
// modulo 2^256. The wrap is part of the published contract: cumulative
// price counters built from these values overflow by design and consumers
// must subtract them modularly.
package fixedpoint

import "github.com/holiman/uint256"

// Resolution is the number of fractional bits.
const Resolution = 112

// Q112 is the fixed-point representation of 1.
var Q112 = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)

// Encode converts an integer into UQ112.112. Inputs at or above 2^144 wrap,
// matching the modular contract; pool reserves are bounded below 2^112 and
// never do.
func Encode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(x, Resolution)
}

// Fraction returns num/den in UQ112.112. den must be nonzero; uint256.Div
// on a zero denominator yields zero, so callers guard the denominator.
func Fraction(num, den *uint256.Int) *uint256.Int {
	z := Encode(num)
	return z.Div(z, den)
}

// Mul multiplies a UQ112.112 value by a plain integer, wrapping mod 2^256.
func Mul(x *uint256.Int, y uint64) *uint256.Int {
	return new(uint256.Int).Mul(x, uint256.NewInt(y))
}

// Decode truncates a UQ112.112 value to its integer part.
func Decode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, Resolution)
}
