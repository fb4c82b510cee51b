// field/scalar.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package field

import (
	"fmt"

	"github.com/mmp/seba/math"
	"github.com/mmp/seba/util"

	"gonum.org/v1/gonum/floats"
)

// Scalar is a packed grid-point field together with an optional validity
// mask. When Mask is nil every point is valid. Otherwise Mask holds the
// terrain weight β ∈ [0,1] at each point and Data always holds the
// β-weighted values, so points below ground are zero.
type Scalar struct {
	Dims
	Data []float64
	Mask []float64
}

func NewScalar(d Dims) *Scalar {
	return &Scalar{Dims: d, Data: make([]float64, d.Len())}
}

// FromData wraps data, which must already be packed, as a Scalar.
func FromData(d Dims, data []float64) (*Scalar, error) {
	if err := d.check("data", len(data)); err != nil {
		return nil, err
	}
	return &Scalar{Dims: d, Data: data}, nil
}

// Constant returns a field with every value equal to v.
func Constant(d Dims, v float64) *Scalar {
	s := NewScalar(d)
	for i := range s.Data {
		s.Data[i] = v
	}
	return s
}

func (s *Scalar) Masked() bool { return s.Mask != nil }

// SampleData returns the horizontal plane of sample i; it aliases s.Data.
func (s *Scalar) SampleData(i int) []float64 {
	p := s.Plane()
	return s.Data[i*p : (i+1)*p]
}

// SampleMask returns the mask for sample i, or nil if s is unmasked.
func (s *Scalar) SampleMask(i int) []float64 {
	if s.Mask == nil {
		return nil
	}
	p := s.Plane()
	return s.Mask[i*p : (i+1)*p]
}

func (s *Scalar) Clone() *Scalar {
	return &Scalar{
		Dims: s.Dims,
		Data: util.DuplicateSlice(s.Data),
		Mask: util.DuplicateSlice(s.Mask),
	}
}

// Unmasked returns a copy of s without its mask; the data keep their
// weighting.
func (s *Scalar) Unmasked() *Scalar {
	return &Scalar{Dims: s.Dims, Data: util.DuplicateSlice(s.Data)}
}

// Unweighted returns the values of s without their mask weighting; points
// where the mask is zero are zero. The result is not masked.
func (s *Scalar) Unweighted() *Scalar {
	r := &Scalar{Dims: s.Dims, Data: make([]float64, len(s.Data))}
	for i, d := range s.Data {
		r.Data[i] = unweight(d, s.Mask, i)
	}
	return r
}

// WithMask returns a copy of s carrying beta as its mask. Unlike
// ApplyMask, the data of s must already be weighted by beta; only the
// points where beta is zero are changed, to zero.
func (s *Scalar) WithMask(beta *Scalar) (*Scalar, error) {
	if err := CheckSame("mask", s.Dims, beta.Dims); err != nil {
		return nil, err
	}
	if s.Masked() {
		return nil, fmt.Errorf("field is already masked")
	}
	r := &Scalar{Dims: s.Dims, Data: util.DuplicateSlice(s.Data), Mask: util.DuplicateSlice(beta.Data)}
	for i, b := range r.Mask {
		if b <= 0 {
			r.Data[i] = 0
		}
	}
	return r, nil
}

// ApplyMask returns a copy of s weighted by beta and carrying it as its
// mask. beta must have the same dims as s and s must not be masked
// already.
func (s *Scalar) ApplyMask(beta *Scalar) (*Scalar, error) {
	if beta == nil {
		return s.Clone(), nil
	}
	if err := CheckSame("mask", s.Dims, beta.Dims); err != nil {
		return nil, err
	}
	if s.Masked() {
		return nil, fmt.Errorf("field is already masked")
	}
	r := &Scalar{Dims: s.Dims, Data: make([]float64, len(s.Data)), Mask: util.DuplicateSlice(beta.Data)}
	floats.MulTo(r.Data, s.Data, beta.Data)
	return r, nil
}

// combineMasks returns the pointwise minimum of the two masks, which is
// the intersection of the valid regions.
func combineMasks(a, b []float64) []float64 {
	switch {
	case a == nil:
		return util.DuplicateSlice(b)
	case b == nil:
		return util.DuplicateSlice(a)
	}
	m := make([]float64, len(a))
	for i := range m {
		m[i] = min(a[i], b[i])
	}
	return m
}

// unweight returns the value whose β-weighted form is d; it is zero
// where β is.
func unweight(d float64, mask []float64, i int) float64 {
	if mask == nil {
		return d
	}
	if mask[i] > 0 {
		return d / mask[i]
	}
	return 0
}

func (s *Scalar) mustMatch(o *Scalar) {
	if s.Dims != o.Dims {
		panic(fmt.Sprintf("field: mismatched dims %s and %s", s.Dims, o.Dims))
	}
}

// combine applies op to the values of s and o. The result carries the
// combined mask and its data are weighted by it.
func (s *Scalar) combine(o *Scalar, op func(a, b float64) float64) *Scalar {
	s.mustMatch(o)
	r := &Scalar{Dims: s.Dims, Data: make([]float64, len(s.Data)), Mask: combineMasks(s.Mask, o.Mask)}
	if r.Mask == nil {
		for i := range r.Data {
			r.Data[i] = op(s.Data[i], o.Data[i])
		}
		return r
	}
	for i, m := range r.Mask {
		if m > 0 {
			r.Data[i] = m * op(unweight(s.Data[i], s.Mask, i), unweight(o.Data[i], o.Mask, i))
		}
	}
	return r
}

// Mul returns the pointwise product s·o.
func (s *Scalar) Mul(o *Scalar) *Scalar {
	if s.Mask == nil || o.Mask == nil {
		// At most one operand is weighted, so the product already is.
		s.mustMatch(o)
		r := &Scalar{Dims: s.Dims, Data: make([]float64, len(s.Data)), Mask: combineMasks(s.Mask, o.Mask)}
		floats.MulTo(r.Data, s.Data, o.Data)
		return r
	}
	return s.combine(o, func(a, b float64) float64 { return a * b })
}

func (s *Scalar) Add(o *Scalar) *Scalar {
	return s.combine(o, func(a, b float64) float64 { return a + b })
}

func (s *Scalar) Sub(o *Scalar) *Scalar {
	return s.combine(o, func(a, b float64) float64 { return a - b })
}

func (s *Scalar) Scale(c float64) *Scalar {
	r := s.Clone()
	floats.Scale(c, r.Data)
	return r
}

// ScaleLatitude multiplies each latitude row by the corresponding
// element of f.
func (s *Scalar) ScaleLatitude(f []float64) *Scalar {
	if len(f) != s.NLat {
		panic(fmt.Sprintf("field: %d latitude factors for %d latitudes", len(f), s.NLat))
	}
	r := s.Clone()
	for smp := range s.NSamples() {
		d := r.SampleData(smp)
		for i, fi := range f {
			floats.Scale(fi, d[i*s.NLon:(i+1)*s.NLon])
		}
	}
	return r
}

// ScaleSamples multiplies every value of sample i by f[i].
func (s *Scalar) ScaleSamples(f []float64) *Scalar {
	if len(f) != s.NSamples() {
		panic(fmt.Sprintf("field: %d sample factors for %d samples", len(f), s.NSamples()))
	}
	r := s.Clone()
	for smp, fs := range f {
		floats.Scale(fs, r.SampleData(smp))
	}
	return r
}

// ScaleLevels multiplies every value at level k by f[k].
func (s *Scalar) ScaleLevels(f []float64) *Scalar {
	if len(f) != s.NLevels {
		panic(fmt.Sprintf("field: %d level factors for %d levels", len(f), s.NLevels))
	}
	fs := make([]float64, s.NSamples())
	for i := range fs {
		fs[i] = f[s.Level(i)]
	}
	return s.ScaleSamples(fs)
}

// SubtractSamples returns s - m[i] for each sample i. For masked fields the
// subtracted value is weighted by the mask so that points below ground
// stay zero.
func (s *Scalar) SubtractSamples(m []float64) *Scalar {
	if len(m) != s.NSamples() {
		panic(fmt.Sprintf("field: %d sample values for %d samples", len(m), s.NSamples()))
	}
	r := s.Clone()
	for smp, v := range m {
		d := r.SampleData(smp)
		if mask := r.SampleMask(smp); mask != nil {
			floats.AddScaled(d, -v, mask)
		} else {
			floats.AddConst(-v, d)
		}
	}
	return r
}

// VerticalGradient returns the derivative of s with respect to the level
// coordinate p, using second-order finite differences along each
// column. The mask, if any, is carried through.
func (s *Scalar) VerticalGradient(p []float64) *Scalar {
	if len(p) != s.NLevels {
		panic(fmt.Sprintf("field: %d coordinates for %d levels", len(p), s.NLevels))
	}
	st := math.GradientStencils(p)
	r := &Scalar{Dims: s.Dims, Data: make([]float64, len(s.Data)), Mask: util.DuplicateSlice(s.Mask)}
	for t := range s.NTime {
		for k, stk := range st {
			dst := r.SampleData(s.Sample(t, k))
			for j := range 3 {
				floats.AddScaled(dst, stk.Weight[j], s.SampleData(s.Sample(t, stk.Index[j])))
			}
		}
	}
	return r
}

// GlobalMean returns the area-weighted mean of each sample, given the
// latitude weights w.
func (s *Scalar) GlobalMean(w []float64) []float64 {
	if len(w) != s.NLat {
		panic(fmt.Sprintf("field: %d latitude weights for %d latitudes", len(w), s.NLat))
	}
	norm := floats.Sum(w) * float64(s.NLon)
	m := make([]float64, s.NSamples())
	for smp := range m {
		d := s.SampleData(smp)
		var sum float64
		for i, wi := range w {
			sum += wi * floats.Sum(d[i*s.NLon:(i+1)*s.NLon])
		}
		m[smp] = sum / norm
	}
	return m
}

// Chunk returns a copy of the samples in c, described as a single-level
// field of c.Len() samples.
func (s *Scalar) Chunk(c util.Chunk) *Scalar {
	p := s.Plane()
	r := &Scalar{Dims: s.chunkDims(c), Data: util.DuplicateSlice(s.Data[c.Start*p : c.End*p])}
	if s.Mask != nil {
		r.Mask = util.DuplicateSlice(s.Mask[c.Start*p : c.End*p])
	}
	return r
}

// Split partitions s into n chunks of equal size along the sample axis.
func (s *Scalar) Split(n int) ([]*Scalar, error) {
	chunks, err := util.Partition(s.NSamples(), n)
	if err != nil {
		return nil, err
	}
	return util.MapSlice(chunks, s.Chunk), nil
}

// ConcatScalars joins chunks along the sample axis in order, restoring
// the dims d.
func ConcatScalars(d Dims, chunks []*Scalar) (*Scalar, error) {
	r := &Scalar{Dims: d, Data: make([]float64, 0, d.Len())}
	masked := len(chunks) > 0 && chunks[0].Masked()
	if masked {
		r.Mask = make([]float64, 0, d.Len())
	}
	for _, c := range chunks {
		if c.NLat != d.NLat || c.NLon != d.NLon || c.Masked() != masked {
			return nil, fmt.Errorf("concat: chunk %s does not match %s: %w", c.Dims, d, ErrShapeMismatch)
		}
		r.Data = append(r.Data, c.Data...)
		if masked {
			r.Mask = append(r.Mask, c.Mask...)
		}
	}
	if err := d.check("concat", len(r.Data)); err != nil {
		return nil, err
	}
	return r, nil
}
