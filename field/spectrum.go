// field/spectrum.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package field

import (
	"fmt"

	"github.com/mmp/seba/math"
	"github.com/mmp/seba/util"

	"gonum.org/v1/gonum/floats"
)

// Spectrum holds a real quantity per spherical harmonic degree for each
// sample; Data[s*NDegrees+n] is the value at degree n of sample s.
type Spectrum struct {
	NDegrees, NTime, NLevels int
	Data                     []float64
}

func NewSpectrum(ndegrees, ntime, nlevels int) *Spectrum {
	return &Spectrum{
		NDegrees: ndegrees,
		NTime:    ntime,
		NLevels:  nlevels,
		Data:     make([]float64, ndegrees*ntime*nlevels),
	}
}

func (sp *Spectrum) NSamples() int { return sp.NTime * sp.NLevels }

func (sp *Spectrum) Sample(s int) []float64 {
	return sp.Data[s*sp.NDegrees : (s+1)*sp.NDegrees]
}

// At returns the value at degree n, time t and level k.
func (sp *Spectrum) At(n, t, k int) float64 {
	return sp.Data[(t*sp.NLevels+k)*sp.NDegrees+n]
}

func (sp *Spectrum) SameShape(o *Spectrum) bool {
	return sp.NDegrees == o.NDegrees && sp.NTime == o.NTime && sp.NLevels == o.NLevels
}

func (sp *Spectrum) mustMatch(o *Spectrum) {
	if !sp.SameShape(o) {
		panic(fmt.Sprintf("field: mismatched spectra [%d %d %d] and [%d %d %d]",
			sp.NDegrees, sp.NTime, sp.NLevels, o.NDegrees, o.NTime, o.NLevels))
	}
}

func (sp *Spectrum) Clone() *Spectrum {
	return &Spectrum{NDegrees: sp.NDegrees, NTime: sp.NTime, NLevels: sp.NLevels, Data: util.DuplicateSlice(sp.Data)}
}

func (sp *Spectrum) Add(o *Spectrum) *Spectrum {
	sp.mustMatch(o)
	r := sp.Clone()
	floats.Add(r.Data, o.Data)
	return r
}

func (sp *Spectrum) Sub(o *Spectrum) *Spectrum {
	sp.mustMatch(o)
	r := sp.Clone()
	floats.Sub(r.Data, o.Data)
	return r
}

func (sp *Spectrum) Scale(c float64) *Spectrum {
	r := sp.Clone()
	floats.Scale(c, r.Data)
	return r
}

// ScaleSamples multiplies each sample by f[s].
func (sp *Spectrum) ScaleSamples(f []float64) *Spectrum {
	if len(f) != sp.NSamples() {
		panic(fmt.Sprintf("field: %d sample factors for %d samples", len(f), sp.NSamples()))
	}
	r := sp.Clone()
	for s, fs := range f {
		floats.Scale(fs, r.Sample(s))
	}
	return r
}

// ScaleDegrees multiplies the value at each degree n by f[n], or divides
// by it if divide is set.
func (sp *Spectrum) ScaleDegrees(f []float64, divide bool) *Spectrum {
	if len(f) != sp.NDegrees {
		panic(fmt.Sprintf("field: %d degree factors for %d degrees", len(f), sp.NDegrees))
	}
	r := sp.Clone()
	for s := range r.NSamples() {
		if divide {
			floats.Div(r.Sample(s), f)
		} else {
			floats.Mul(r.Sample(s), f)
		}
	}
	return r
}

// VerticalGradient differentiates the spectrum along the level axis with
// respect to the level coordinate p.
func (sp *Spectrum) VerticalGradient(p []float64) *Spectrum {
	if len(p) != sp.NLevels {
		panic(fmt.Sprintf("field: %d coordinates for %d levels", len(p), sp.NLevels))
	}
	st := math.GradientStencils(p)
	r := NewSpectrum(sp.NDegrees, sp.NTime, sp.NLevels)
	for t := range sp.NTime {
		for k, stk := range st {
			dst := r.Sample(t*sp.NLevels + k)
			for j := range 3 {
				floats.AddScaled(dst, stk.Weight[j], sp.Sample(t*sp.NLevels+stk.Index[j]))
			}
		}
	}
	return r
}

// Cumulative returns the spectrum of cumulative sums from the largest
// degree down to each degree l: Π(l) = Σ_{n≥l} X(n).
func (sp *Spectrum) Cumulative() *Spectrum {
	r := NewSpectrum(sp.NDegrees, sp.NTime, sp.NLevels)
	for s := range sp.NSamples() {
		src, dst := sp.Sample(s), r.Sample(s)
		var sum float64
		for n := sp.NDegrees - 1; n >= 0; n-- {
			sum += src[n]
			dst[n] = sum
		}
	}
	return r
}

// DegreeSum returns the sum over all degrees for each sample.
func (sp *Spectrum) DegreeSum() []float64 {
	r := make([]float64, sp.NSamples())
	for s := range r {
		r[s] = floats.Sum(sp.Sample(s))
	}
	return r
}

// Level returns the spectra at level k for every time, as a spectrum with
// a single level.
func (sp *Spectrum) Level(k int) *Spectrum {
	r := NewSpectrum(sp.NDegrees, sp.NTime, 1)
	for t := range sp.NTime {
		copy(r.Sample(t), sp.Sample(t*sp.NLevels+k))
	}
	return r
}
