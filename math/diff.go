// math/diff.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

// Stencil gives the three points and weights that approximate the first
// derivative at one sample of a non-uniformly spaced coordinate.
type Stencil struct {
	Index  [3]int
	Weight [3]float64
}

// GradientStencils returns second-order accurate finite difference
// stencils for the derivative with respect to x at every sample: central
// differences in the interior and one-sided second-order differences at
// both ends. With only two samples, both ends use the first-order
// difference; with a single sample the derivative is zero.
func GradientStencils(x []float64) []Stencil {
	n := len(x)
	st := make([]Stencil, n)
	switch n {
	case 0, 1:
		return st
	case 2:
		w := 1 / (x[1] - x[0])
		st[0] = Stencil{Index: [3]int{0, 1, 1}, Weight: [3]float64{-w, w, 0}}
		st[1] = st[0]
		return st
	}

	for i := 1; i < n-1; i++ {
		dx1, dx2 := x[i]-x[i-1], x[i+1]-x[i]
		st[i] = Stencil{
			Index: [3]int{i - 1, i, i + 1},
			Weight: [3]float64{
				-dx2 / (dx1 * (dx1 + dx2)),
				(dx2 - dx1) / (dx1 * dx2),
				dx1 / (dx2 * (dx1 + dx2)),
			},
		}
	}

	dx1, dx2 := x[1]-x[0], x[2]-x[1]
	st[0] = Stencil{
		Index: [3]int{0, 1, 2},
		Weight: [3]float64{
			-(2*dx1 + dx2) / (dx1 * (dx1 + dx2)),
			(dx1 + dx2) / (dx1 * dx2),
			-dx1 / (dx2 * (dx1 + dx2)),
		},
	}

	dx1, dx2 = x[n-2]-x[n-3], x[n-1]-x[n-2]
	st[n-1] = Stencil{
		Index: [3]int{n - 3, n - 2, n - 1},
		Weight: [3]float64{
			dx2 / (dx1 * (dx1 + dx2)),
			-(dx1 + dx2) / (dx1 * dx2),
			(2*dx2 + dx1) / (dx2 * (dx1 + dx2)),
		},
	}
	return st
}

// Gradient returns df/dx sampled at each x.
func Gradient(f, x []float64) []float64 {
	g := make([]float64, len(f))
	for i, s := range GradientStencils(x) {
		for j := range 3 {
			g[i] += s.Weight[j] * f[s.Index[j]]
		}
	}
	return g
}
