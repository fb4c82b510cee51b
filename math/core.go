// math/core.go
// Copyright(c) 2022-2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

const Pi = gomath.Pi

// Degrees converts an angle expressed in radians to degrees
func Degrees(r float64) float64 {
	return r * 180 / gomath.Pi
}

// Radians converts an angle expressed in degrees to radians
func Radians(d float64) float64 {
	return d / 180 * gomath.Pi
}

// A number of thin wrappers around the standard library follow so that
// callers can use this package for all of their numerics.

func Sin(a float64) float64   { return gomath.Sin(a) }
func Cos(a float64) float64   { return gomath.Cos(a) }
func Sqrt(a float64) float64  { return gomath.Sqrt(a) }
func Log(a float64) float64   { return gomath.Log(a) }
func Exp(a float64) float64   { return gomath.Exp(a) }
func Pow(a, b float64) float64 { return gomath.Pow(a, b) }
func IsNaN(v float64) bool    { return gomath.IsNaN(v) }
func IsInf(v float64) bool    { return gomath.IsInf(v, 0) }
func NaN() float64            { return gomath.NaN() }

func SafeASin(a float64) float64 {
	return gomath.Asin(Clamp(a, -1, 1))
}

func Sign(v float64) float64 {
	if v > 0 {
		return 1
	} else if v < 0 {
		return -1
	}
	return 0
}

func Abs[V constraints.Integer | constraints.Float](x V) V {
	if x < 0 {
		return -x
	}
	return x
}

func Sqr[V constraints.Integer | constraints.Float](v V) V { return v * v }

func Clamp[T constraints.Ordered](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

func Lerp(x, a, b float64) float64 {
	return (1-x)*a + x*b
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !gomath.IsNaN(v) && !gomath.IsInf(v, 0)
}

// AllFinite returns the index of the first non-finite value in s, or -1
// if all of them are finite.
func AllFinite(s []float64) int {
	for i, v := range s {
		if !IsFinite(v) {
			return i
		}
	}
	return -1
}

// Linspace returns n evenly spaced values from a to b, inclusive.
func Linspace(a, b float64, n int) []float64 {
	if n == 1 {
		return []float64{a}
	}
	s := make([]float64, n)
	for i := range s {
		s[i] = Lerp(float64(i)/float64(n-1), a, b)
	}
	return s
}
