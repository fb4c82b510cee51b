// math/special.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

// J1 is the Bessel function of the first kind of order one.
func J1(x float64) float64 { return gomath.J1(x) }

// Sinc returns the normalized sinc function sin(πx)/(πx).
func Sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return gomath.Sin(Pi*x) / (Pi * x)
}

// Jinc returns J1(2πx)/x, the two-dimensional analogue of the sinc
// function; its limit at zero is π.
func Jinc(x float64) float64 {
	if x == 0 {
		return Pi
	}
	return J1(2*Pi*x) / x
}

// Legendre evaluates the (unnormalized) Legendre polynomial P_n at x and
// its derivative, using the three-term recurrence.
func Legendre(n int, x float64) (p, dp float64) {
	p0, p1 := 1.0, x
	if n == 0 {
		return 1, 0
	}
	for k := 2; k <= n; k++ {
		p0, p1 = p1, (float64(2*k-1)*x*p1-float64(k-1)*p0)/float64(k)
	}
	p = p1
	dp = float64(n) * (x*p1 - p0) / (x*x - 1)
	return
}
