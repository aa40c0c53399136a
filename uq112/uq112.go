// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package uq112 implements unsigned fixed-point arithmetic with 112
// fractional bits, the encoding used by pair-pool cumulative price
// accumulators. Values are held in 256-bit integers; every operation that
// could wrap or divide by zero returns an error instead of truncating.
package uq112

import (
	"errors"

	"github.com/holiman/uint256"
)

// FractionBits is the number of fractional bits in the encoding.
const FractionBits = 112

var (
	ErrDivisionByZero = errors.New("uq112: division by zero")
	ErrOverflow       = errors.New("uq112: overflow")
	ErrUnderflow      = errors.New("uq112: underflow")
)

// Fraction encodes numerator/denominator as a UQ112x112 value.
// The intermediate numerator<<112 always fits in 256 bits.
func Fraction(numerator, denominator uint64) (*uint256.Int, error) {
	if denominator == 0 {
		return nil, ErrDivisionByZero
	}
	x := new(uint256.Int).SetUint64(numerator)
	x.Lsh(x, FractionBits)
	return x.Div(x, new(uint256.Int).SetUint64(denominator)), nil
}

// Add returns x+y, failing closed on wrap.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x-y, failing closed when y > x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// MulUint64 scales a UQ112x112 value by an integer factor.
func MulUint64(x *uint256.Int, y uint64) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, new(uint256.Int).SetUint64(y))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// DivUint64 divides a UQ112x112 value by an integer divisor.
func DivUint64(x *uint256.Int, y uint64) (*uint256.Int, error) {
	if y == 0 {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(x, new(uint256.Int).SetUint64(y)), nil
}

// Decode converts a UQ112x112 value to an integer price scaled by baseUnit,
// i.e. x * baseUnit / 2^112.
func Decode(x *uint256.Int, baseUnit uint64) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, new(uint256.Int).SetUint64(baseUnit))
	if overflow {
		return nil, ErrOverflow
	}
	return z.Rsh(z, FractionBits), nil
}
