// sphere/spectrum.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sphere

import (
	"fmt"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
)

type Convention int

const (
	// ConventionPower gives spectra whose sum over degrees is the
	// area-weighted global mean of the product of the two fields.
	ConventionPower Convention = iota
	// ConventionEnergy scales power spectra by 4π, giving the integral
	// over the unit sphere.
	ConventionEnergy
)

// CrossSpectrum returns Re(c1·conj(c2)) accumulated by total wavenumber.
// If c2 is nil, the power spectrum of c1 is returned. Coefficients with
// m > 0 stand for both ±m and so are counted twice.
//
// If betaFraction is non-nil, it gives the fraction of each level that is
// above ground and the spectra at that level are divided by it; this
// corrects the bias that masking introduces into the spectral sums.
func CrossSpectrum(ix *Index, c1, c2 *field.Coeffs, conv Convention, betaFraction []float64) (*field.Spectrum, error) {
	if c2 == nil {
		c2 = c1
	}
	if !c1.SameShape(c2) {
		return nil, fmt.Errorf("cross spectrum of %d×%d×%d and %d×%d×%d coefficients: %w", c1.NCoeffs, c1.NTime,
			c1.NLevels, c2.NCoeffs, c2.NTime, c2.NLevels, field.ErrShapeMismatch)
	}
	if c1.NCoeffs != ix.NCoeffs() {
		return nil, fmt.Errorf("%d coefficients for truncation %d: %w", c1.NCoeffs, ix.ntrunc, field.ErrShapeMismatch)
	}
	if betaFraction != nil && len(betaFraction) != c1.NLevels {
		return nil, fmt.Errorf("%d beta fractions for %d levels: %w", len(betaFraction), c1.NLevels, field.ErrShapeMismatch)
	}

	norm := 0.5
	if conv == ConventionEnergy {
		norm *= 4 * math.Pi
	}

	sp := field.NewSpectrum(ix.NDegrees(), c1.NTime, c1.NLevels)
	for s := range sp.NSamples() {
		a, b, out := c1.Sample(s), c2.Sample(s), sp.Sample(s)
		for i := range a {
			v := real(a[i])*real(b[i]) + imag(a[i])*imag(b[i])
			if ix.order[i] > 0 {
				v *= 2
			}
			out[ix.degree[i]] += v
		}

		scale := norm
		if betaFraction != nil {
			scale /= betaFraction[s%c1.NLevels]
		}
		for n := range out {
			out[n] *= scale
		}
	}
	return sp, nil
}

// VectorNormalization returns n(n+1)/a² for each degree, which converts
// vorticity and divergence spectra to kinetic energy. Degree 0 is set to
// 1 since it carries no vorticity or divergence.
func VectorNormalization(ix *Index, radius float64) []float64 {
	norm := make([]float64, ix.NDegrees())
	for n := range norm {
		norm[n] = float64(n*(n+1)) / (radius * radius)
	}
	norm[0] = 1
	return norm
}

// Kappa returns the horizontal wavenumber sqrt(n(n+1))/a of each degree.
func Kappa(ix *Index, radius float64) []float64 {
	k := make([]float64, ix.NDegrees())
	for n := range k {
		k[n] = math.Sqrt(float64(n*(n+1))) / radius
	}
	return k
}

// Wavelength returns the wavelength 2πa/sqrt(n(n+1)) of degree n.
func Wavelength(n int, radius float64) float64 {
	if n == 0 {
		return 2 * math.Pi * radius
	}
	return 2 * math.Pi * radius / math.Sqrt(float64(n*(n+1)))
}
