// sphere/sphere_test.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sphere

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"

	"gonum.org/v1/gonum/floats"
)

func newTestTransform(t *testing.T, nlat, nlon int, gt GridType, ntrunc, jobs int) *Transform {
	t.Helper()
	g, err := NewGrid(nlat, nlon, gt, 0)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := NewTransform(g, ntrunc, jobs, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

// randomCoeffs returns coefficients for real fields: the m = 0
// coefficients are real.
func randomCoeffs(ix *Index, ntime, nlevels int, seed uint64) *field.Coeffs {
	r := rand.New(rand.NewPCG(seed, 17))
	c := field.NewCoeffs(ix.NCoeffs(), ntime, nlevels)
	for s := range c.NSamples() {
		cs := c.Sample(s)
		for i := range cs {
			im := 0.0
			if ix.Order(i) > 0 {
				im = r.NormFloat64()
			}
			cs[i] = complex(r.NormFloat64(), im)
		}
	}
	return c
}

func maxAbsDiff(a, b []complex128) float64 {
	var d float64
	for i := range a {
		d = max(d, math.Abs(real(a[i])-real(b[i])), math.Abs(imag(a[i])-imag(b[i])))
	}
	return d
}

func TestQuadrature(t *testing.T) {
	for _, tc := range []struct {
		nlat int
		gt   GridType
	}{
		{16, Gaussian}, {17, Gaussian}, {64, Gaussian}, {19, Regular}, {33, Regular},
	} {
		t.Run(tc.gt.String(), func(t *testing.T) {
			g, err := NewGrid(tc.nlat, 2*tc.nlat+2, tc.gt, 0)
			if err != nil {
				t.Fatal(err)
			}
			w, mu := g.Weights(), g.SinLatitudes()
			if s := floats.Sum(w); math.Abs(s-2) > 1e-12 {
				t.Errorf("weights sum to %.15g", s)
			}
			// ∫μ² dμ = 2/3
			var m2 float64
			for i := range w {
				m2 += w[i] * mu[i] * mu[i]
			}
			if math.Abs(m2-2.0/3) > 1e-12 {
				t.Errorf("∫μ² = %.15g", m2)
			}
			lats := g.Latitudes()
			for i := 1; i < len(lats); i++ {
				if lats[i] >= lats[i-1] {
					t.Fatalf("latitudes are not north to south: %v", lats)
				}
			}
			if gt, err := InferGridType(lats); err != nil || gt != tc.gt {
				t.Errorf("InferGridType = %v, %v", gt, err)
			}
		})
	}

	if _, err := InferGridType([]float64{80, 10, -33}); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("expected ErrInvalidGrid for irregular latitudes, got %v", err)
	}
}

func TestGridErrors(t *testing.T) {
	for _, tc := range []struct {
		nlat, nlon int
		gt         GridType
	}{
		{1, 8, Gaussian}, {2, 8, Regular}, {8, 7, Gaussian}, {8, 2, Gaussian}, {8, 16, GridType(7)},
	} {
		if _, err := NewGrid(tc.nlat, tc.nlon, tc.gt, 0); !errors.Is(err, ErrInvalidGrid) {
			t.Errorf("%d×%d %s: expected ErrInvalidGrid, got %v", tc.nlat, tc.nlon, tc.gt, err)
		}
	}

	g, _ := NewGrid(16, 32, Gaussian, 0)
	for _, T := range []int{16, 40} {
		if _, err := NewTransform(g, T, 1, nil); !errors.Is(err, ErrTruncation) {
			t.Errorf("truncation %d: expected ErrTruncation, got %v", T, err)
		}
	}
	g, _ = NewGrid(16, 20, Gaussian, 0)
	if _, err := NewTransform(g, 10, 1, nil); !errors.Is(err, ErrTruncation) {
		t.Errorf("truncation at nlon/2: expected ErrTruncation, got %v", err)
	}
}

func TestIndex(t *testing.T) {
	ix, err := NewIndex(21)
	if err != nil {
		t.Fatal(err)
	}
	if ix.NCoeffs() != 22*23/2 {
		t.Errorf("NCoeffs = %d", ix.NCoeffs())
	}
	seen := make(map[[2]int]bool)
	for i := range ix.NCoeffs() {
		m, n := ix.Order(i), ix.Degree(i)
		if m > n || n > 21 {
			t.Errorf("coefficient %d: invalid (m,n) = (%d,%d)", i, m, n)
		}
		if seen[[2]int{m, n}] {
			t.Errorf("(%d,%d) appears twice", m, n)
		}
		seen[[2]int{m, n}] = true
		if ix.Position(m, n) != i {
			t.Errorf("Position(%d, %d) = %d, expected %d", m, n, ix.Position(m, n), i)
		}
	}
	if _, err := NewIndex(-1); !errors.Is(err, ErrTruncation) {
		t.Errorf("expected ErrTruncation, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name       string
		nlat, nlon int
		gt         GridType
	}{
		{"gaussian", 24, 48, Gaussian},
		{"gaussian-odd", 17, 36, Gaussian},
		{"regular", 25, 48, Regular},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTransform(t, tc.nlat, tc.nlon, tc.gt, -1, 3)
			c := randomCoeffs(tr.Index(), 2, 3, 1)

			f, err := tr.SpectralToGrid(ctx, c)
			if err != nil {
				t.Fatal(err)
			}
			c2, err := tr.GridToSpectral(ctx, f)
			if err != nil {
				t.Fatal(err)
			}
			if d := maxAbsDiff(c.Data, c2.Data); d > 1e-10 {
				t.Errorf("coefficients differ by %g after round trip", d)
			}

			f2, err := tr.SpectralToGrid(ctx, c2)
			if err != nil {
				t.Fatal(err)
			}
			for i := range f.Data {
				if math.Abs(f.Data[i]-f2.Data[i]) > 1e-10 {
					t.Fatalf("grid values differ: %g vs %g", f.Data[i], f2.Data[i])
				}
			}
		})
	}
}

func TestParseval(t *testing.T) {
	ctx := context.Background()
	for _, gt := range []GridType{Gaussian, Regular} {
		t.Run(gt.String(), func(t *testing.T) {
			tr := newTestTransform(t, 21, 44, gt, -1, 2)
			c := randomCoeffs(tr.Index(), 1, 4, 2)
			f, err := tr.SpectralToGrid(ctx, c)
			if err != nil {
				t.Fatal(err)
			}

			sp, err := CrossSpectrum(tr.Index(), c, nil, ConventionPower, nil)
			if err != nil {
				t.Fatal(err)
			}
			want := f.Mul(f).GlobalMean(tr.Grid().Weights())
			for s, got := range sp.DegreeSum() {
				if math.Abs(got-want[s]) > 1e-10*want[s] {
					t.Errorf("sample %d: Σ spectrum = %.12g, mean square = %.12g", s, got, want[s])
				}
			}

			e, _ := CrossSpectrum(tr.Index(), c, c, ConventionEnergy, nil)
			if math.Abs(e.Data[5]-4*math.Pi*sp.Data[5]) > 1e-12*e.Data[5] {
				t.Errorf("energy convention is not 4π times the power convention")
			}
		})
	}
}

func TestSingleMode(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransform(t, 16, 32, Gaussian, -1, 1)
	ix := tr.Index()
	c := field.NewCoeffs(ix.NCoeffs(), 1, 1)
	c.Data[ix.Position(3, 5)] = complex(0.5, -2)

	f, _ := tr.SpectralToGrid(ctx, c)
	c2, _ := tr.GridToSpectral(ctx, f)
	sp, _ := CrossSpectrum(ix, c2, nil, ConventionPower, []float64{0.5})
	for n, v := range sp.Sample(0) {
		want := 0.0
		if n == 5 {
			// doubled for ±m, halved by convention, divided by the beta fraction
			want = (0.25 + 4) / 0.5
		}
		if math.Abs(v-want) > 1e-12 {
			t.Errorf("degree %d: got %g, expected %g", n, v, want)
		}
	}
}

func TestSolidBodyRotation(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransform(t, 32, 64, Gaussian, -1, 4)
	g := tr.Grid()
	a := g.Radius()
	const u0 = 20.0

	d := field.Dims{NLat: 32, NLon: 64, NTime: 1, NLevels: 2}
	wind := &field.Vector{U: field.NewScalar(d), V: field.NewScalar(d)}
	mu := g.SinLatitudes()
	for s := range d.NSamples() {
		u := wind.U.SampleData(s)
		for i := range d.NLat {
			for j := range d.NLon {
				u[i*d.NLon+j] = u0 * math.Sqrt(1-mu[i]*mu[i])
			}
		}
	}

	vrt, div, err := tr.VorticityDivergence(ctx, wind)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range div.Data {
		if math.Abs(real(v))+math.Abs(imag(v)) > 1e-18 {
			t.Fatalf("divergence coefficient %d = %g", i, v)
		}
	}

	// ζ = 2 u0 sin(φ)/a
	z, _ := tr.SpectralToGrid(ctx, vrt)
	for s := range d.NSamples() {
		zs := z.SampleData(s)
		for i := range d.NLat {
			want := 2 * u0 * mu[i] / a
			if got := zs[i*d.NLon+5]; math.Abs(got-want) > 1e-12*u0/a {
				t.Errorf("lat %d: vorticity %g, expected %g", i, got, want)
			}
		}
	}

	// And back to the wind.
	w2, err := tr.VectorFromVorticityDivergence(ctx, vrt, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range wind.U.Data {
		if math.Abs(w2.U.Data[i]-wind.U.Data[i]) > 1e-9 || math.Abs(w2.V.Data[i]) > 1e-9 {
			t.Fatalf("reconstructed wind (%g, %g), expected (%g, 0)", w2.U.Data[i], w2.V.Data[i], wind.U.Data[i])
		}
	}
}

func TestGradient(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransform(t, 24, 48, Gaussian, -1, 2)
	g := tr.Grid()
	a := g.Radius()
	mu, lon := g.SinLatitudes(), g.Longitudes()

	// f = sin φ + cos φ cos λ
	d := field.Dims{NLat: 24, NLon: 48, NTime: 1, NLevels: 1}
	f := field.NewScalar(d)
	for i := range d.NLat {
		cphi := math.Sqrt(1 - mu[i]*mu[i])
		for j := range d.NLon {
			f.Data[i*d.NLon+j] = mu[i] + cphi*math.Cos(math.Radians(lon[j]))
		}
	}

	grad, err := tr.Gradient(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	for i := range d.NLat {
		cphi := math.Sqrt(1 - mu[i]*mu[i])
		for j := range d.NLon {
			lam := math.Radians(lon[j])
			wantU := -math.Sin(lam) / a
			wantV := (cphi - mu[i]*math.Cos(lam)) / a
			k := i*d.NLon + j
			if math.Abs(grad.U.Data[k]-wantU) > 1e-12/a || math.Abs(grad.V.Data[k]-wantV) > 1e-12/a {
				t.Fatalf("(%d,%d): gradient (%g, %g), expected (%g, %g)", i, j, grad.U.Data[k], grad.V.Data[k], wantU, wantV)
			}
		}
	}
}

func TestHelmholtz(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransform(t, 20, 40, Gaussian, -1, 2)
	ix := tr.Index()
	psi := randomCoeffs(ix, 1, 2, 3)
	chi := randomCoeffs(ix, 1, 2, 4)
	for _, c := range []*field.Coeffs{psi, chi} {
		for s := range c.NSamples() {
			c.Sample(s)[0] = 0
		}
	}

	wind, err := tr.VectorFromVorticityDivergence(ctx, tr.Laplacian(psi), tr.Laplacian(chi))
	if err != nil {
		t.Fatal(err)
	}

	psiGrid, chiGrid, err := tr.StreamfunctionPotential(ctx, wind)
	if err != nil {
		t.Fatal(err)
	}
	wantPsi, _ := tr.SpectralToGrid(ctx, psi)
	wantChi, _ := tr.SpectralToGrid(ctx, chi)
	for i := range psiGrid.Data {
		if math.Abs(psiGrid.Data[i]-wantPsi.Data[i]) > 1e-8 || math.Abs(chiGrid.Data[i]-wantChi.Data[i]) > 1e-8 {
			t.Fatalf("point %d: ψ %g (expected %g), χ %g (expected %g)", i, psiGrid.Data[i], wantPsi.Data[i],
				chiGrid.Data[i], wantChi.Data[i])
		}
	}

	// The rotational part, k̂×∇ψ, and the divergent part, ∇χ, sum to
	// the wind.
	gpsi, _ := tr.Gradient(ctx, psiGrid)
	gchi, _ := tr.Gradient(ctx, chiGrid)
	sum := gpsi.Rotate().Add(gchi)
	for i := range sum.U.Data {
		if math.Abs(sum.U.Data[i]-wind.U.Data[i]) > 1e-10 || math.Abs(sum.V.Data[i]-wind.V.Data[i]) > 1e-10 {
			t.Fatalf("point %d: rotational + divergent = (%g, %g), wind = (%g, %g)", i, sum.U.Data[i],
				sum.V.Data[i], wind.U.Data[i], wind.V.Data[i])
		}
	}
}

func TestParallelEquivalence(t *testing.T) {
	ctx := context.Background()
	serial := newTestTransform(t, 16, 32, Gaussian, -1, 1)
	c := randomCoeffs(serial.Index(), 3, 4, 5)
	f, _ := serial.SpectralToGrid(ctx, c)
	ref, _ := serial.GridToSpectral(ctx, f)

	for _, jobs := range []int{2, 4, 6, 12, 5} {
		tr := newTestTransform(t, 16, 32, Gaussian, -1, jobs)
		if tr.Workers(12) != util12Workers(jobs) {
			t.Errorf("jobs %d: %d workers", jobs, tr.Workers(12))
		}
		f2, err := tr.SpectralToGrid(ctx, c)
		if err != nil {
			t.Fatal(err)
		}
		for i := range f.Data {
			if f.Data[i] != f2.Data[i] {
				t.Fatalf("jobs %d: synthesis differs at %d", jobs, i)
			}
		}
		c2, _ := tr.GridToSpectral(ctx, f2)
		for i := range ref.Data {
			if ref.Data[i] != c2.Data[i] {
				t.Fatalf("jobs %d: analysis differs at %d", jobs, i)
			}
		}
	}
}

// util12Workers gives the expected worker count for 12 samples.
func util12Workers(jobs int) int {
	return map[int]int{2: 2, 4: 4, 6: 6, 12: 12, 5: 4}[jobs]
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := newTestTransform(t, 8, 16, Gaussian, -1, 2)
	if _, err := tr.SpectralToGrid(ctx, randomCoeffs(tr.Index(), 2, 1, 6)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestVectorNormalization(t *testing.T) {
	ix, _ := NewIndex(10)
	norm := VectorNormalization(ix, EarthRadius)
	if norm[0] != 1 {
		t.Errorf("degree 0 normalization %g", norm[0])
	}
	for n, v := range norm {
		if !math.IsFinite(v) || v <= 0 {
			t.Errorf("degree %d: normalization %g", n, v)
		}
	}
	k := Kappa(ix, EarthRadius)
	if k[0] != 0 || math.Abs(k[2]-math.Sqrt(6)/EarthRadius) > 1e-20 {
		t.Errorf("Kappa = %v", k[:3])
	}
	if math.Abs(Wavelength(2, EarthRadius)*k[2]-2*math.Pi) > 1e-12 {
		t.Errorf("Wavelength and Kappa are inconsistent")
	}
}

func TestShapeMismatch(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransform(t, 8, 16, Gaussian, -1, 1)
	if _, err := tr.GridToSpectral(ctx, field.NewScalar(field.Dims{NLat: 8, NLon: 18, NTime: 1, NLevels: 1})); !errors.Is(err, field.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	a := field.NewCoeffs(tr.Index().NCoeffs(), 1, 2)
	b := field.NewCoeffs(tr.Index().NCoeffs(), 2, 1)
	if _, err := CrossSpectrum(tr.Index(), a, b, ConventionPower, nil); !errors.Is(err, field.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}
