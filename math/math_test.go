// math/math_test.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"testing"
)

func TestGradientQuadratic(t *testing.T) {
	// Second-order stencils differentiate quadratics exactly, including on
	// non-uniform grids and at the end points.
	x := []float64{100000, 92500, 85000, 70000, 50000, 30000, 20000}
	f := make([]float64, len(x))
	for i, v := range x {
		f[i] = 3e-9*v*v - 2e-4*v + 7
	}

	g := Gradient(f, x)
	for i, v := range x {
		want := 6e-9*v - 2e-4
		if Abs(g[i]-want) > 1e-12 {
			t.Errorf("x=%g: got derivative %g, expected %g", v, g[i], want)
		}
	}
}

func TestGradientShort(t *testing.T) {
	if g := Gradient([]float64{4}, []float64{1}); g[0] != 0 {
		t.Errorf("single sample: got %v", g)
	}
	g := Gradient([]float64{1, 3}, []float64{0, 0.5})
	if g[0] != 4 || g[1] != 4 {
		t.Errorf("two samples: got %v, expected [4 4]", g)
	}
}

func TestIntegrate(t *testing.T) {
	for _, tc := range []struct {
		name string
		x    []float64
		want float64
	}{
		{"increasing", Linspace(0, 2, 9), 8.0 / 3},
		{"decreasing", Linspace(2, 0, 9), -8.0 / 3},
		{"two", []float64{0, 2}, 4},
		{"one", []float64{1}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := make([]float64, len(tc.x))
			for i, v := range tc.x {
				f[i] = v * v
			}
			if got := Integrate(tc.x, f); Abs(got-tc.want) > 1e-12 {
				t.Errorf("got %g, expected %g", got, tc.want)
			}
		})
	}
}

func TestSpecial(t *testing.T) {
	if Sinc(0) != 1 || Abs(Sinc(1)) > 1e-15 || Abs(Sinc(0.5)-2/Pi) > 1e-15 {
		t.Errorf("Sinc is broken")
	}
	if Abs(Jinc(1e-9)-Pi) > 1e-6 || Jinc(0) != Pi {
		t.Errorf("Jinc does not approach π at the origin")
	}

	// P_2(x) = (3x²-1)/2, P_2'(x) = 3x
	p, dp := Legendre(2, 0.3)
	if Abs(p-(3*0.09-1)/2) > 1e-15 || Abs(dp-0.9) > 1e-14 {
		t.Errorf("Legendre(2, 0.3) = %g, %g", p, dp)
	}
}

func TestClampAndFinite(t *testing.T) {
	if Clamp(2.0, 0, 1) != 1 || Clamp(-1, 0, 1) != 0 || Clamp(0.5, 0, 1) != 0.5 {
		t.Errorf("Clamp is broken")
	}
	if AllFinite([]float64{1, 2, NaN(), 3}) != 2 {
		t.Errorf("AllFinite didn't find the NaN")
	}
	if AllFinite([]float64{1, 2}) != -1 {
		t.Errorf("AllFinite flagged finite values")
	}
}
