// math/integrate.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"gonum.org/v1/gonum/integrate"
)

// Integrate returns the integral of the samples f over the coordinates x
// using Simpson's rule; x may be increasing or decreasing, and the sign
// of the result follows the direction of x. Fewer than three samples
// fall back to the trapezoidal rule.
func Integrate(x, f []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}

	sign := 1.0
	if x[0] > x[n-1] {
		// gonum requires increasing abscissas.
		xr, fr := make([]float64, n), make([]float64, n)
		for i := range n {
			xr[i], fr[i] = x[n-1-i], f[n-1-i]
		}
		x, f, sign = xr, fr, -1
	}

	if n < 3 {
		return sign * integrate.Trapezoidal(x, f)
	}
	return sign * integrate.Simpsons(x, f)
}
