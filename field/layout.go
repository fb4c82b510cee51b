// field/layout.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package field

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mmp/seba/util"
)

// Layout describes how an N-dimensional row-major array is laid out and
// how it maps to the packed sample-major representation. Each axis is
// named by one letter: 'x' for longitude, 'y' for latitude and 'z' for
// the vertical level; any other letter is a sample axis (time, ensemble
// member, ...). Sample axes are flattened in the order they appear.
type Layout struct {
	Axes  string
	Shape []int
	// FlipLatitude is set when the input latitudes run south to north;
	// packed fields always run north to south.
	FlipLatitude bool
	// FlipLevels is set when the input levels are ordered top-first;
	// packed fields are always surface-first.
	FlipLevels bool
}

// NewLayout validates the axis descriptor against the array shape.
func NewLayout(axes string, shape []int) (Layout, error) {
	axes = strings.ToLower(axes)
	if len(axes) != len(shape) {
		return Layout{}, fmt.Errorf("axes %q has %d axes but shape %v has %d: %w", axes, len(axes), shape,
			len(shape), ErrInvalidLayout)
	}
	for i, r := range axes {
		if strings.IndexRune(axes, r) != i {
			return Layout{}, fmt.Errorf("axes %q: axis %q repeated: %w", axes, r, ErrInvalidLayout)
		}
		if shape[i] < 1 {
			return Layout{}, fmt.Errorf("axes %q: axis %q has size %d: %w", axes, r, shape[i], ErrInvalidLayout)
		}
	}
	for _, req := range "xy" {
		if !strings.ContainsRune(axes, req) {
			return Layout{}, fmt.Errorf("axes %q: missing required axis %q: %w", axes, req, ErrInvalidLayout)
		}
	}
	return Layout{Axes: axes, Shape: slices.Clone(shape)}, nil
}

func (l Layout) axisSize(a byte) int {
	if i := strings.IndexByte(l.Axes, a); i >= 0 {
		return l.Shape[i]
	}
	return 1
}

func isSpatial(a byte) bool { return a == 'x' || a == 'y' || a == 'z' }

// SampleShape returns the sizes of the sample axes in order.
func (l Layout) SampleShape() []int {
	var s []int
	for i := range len(l.Axes) {
		if !isSpatial(l.Axes[i]) {
			s = append(s, l.Shape[i])
		}
	}
	return s
}

// Dims returns the packed dims of fields with this layout.
func (l Layout) Dims() Dims {
	return Dims{
		NLat:    l.axisSize('y'),
		NLon:    l.axisSize('x'),
		NTime:   util.Product(l.SampleShape()),
		NLevels: l.axisSize('z'),
	}
}

func (l Layout) Len() int { return util.Product(l.Shape) }

// packedStrides returns, for each input axis, the stride in the packed
// array and whether the axis is reversed.
func (l Layout) packedStrides() (strides []int, flip []bool) {
	d := l.Dims()
	strides, flip = make([]int, len(l.Axes)), make([]bool, len(l.Axes))

	// Sample axes are row-major among themselves.
	tstride := d.NLevels * d.Plane()
	for i := len(l.Axes) - 1; i >= 0; i-- {
		switch l.Axes[i] {
		case 'x':
			strides[i] = 1
		case 'y':
			strides[i], flip[i] = d.NLon, l.FlipLatitude
		case 'z':
			strides[i], flip[i] = d.Plane(), l.FlipLevels
		default:
			strides[i] = tstride
			tstride *= l.Shape[i]
		}
	}
	return
}

// walk calls f with each input index in row-major order along with the
// corresponding packed index.
func (l Layout) walk(f func(in, packed int)) {
	strides, flip := l.packedStrides()
	idx := make([]int, len(l.Shape))
	offset := func(ax int) int {
		if flip[ax] {
			return (l.Shape[ax] - 1 - idx[ax]) * strides[ax]
		}
		return idx[ax] * strides[ax]
	}

	packed := 0
	for ax := range idx {
		packed += offset(ax)
	}

	n := l.Len()
	for in := 0; in < n; in++ {
		f(in, packed)

		// Advance the odometer, updating the packed offset incrementally.
		for ax := len(idx) - 1; ax >= 0; ax-- {
			packed -= offset(ax)
			idx[ax]++
			if idx[ax] < l.Shape[ax] {
				packed += offset(ax)
				break
			}
			idx[ax] = 0
			packed += offset(ax)
		}
	}
}

// Pack reorders data, laid out according to l, into a packed Scalar.
func (l Layout) Pack(data []float64) (*Scalar, error) {
	if len(data) != l.Len() {
		return nil, fmt.Errorf("pack: expected %d values for shape %v, got %d: %w", l.Len(), l.Shape, len(data),
			ErrShapeMismatch)
	}
	s := NewScalar(l.Dims())
	l.walk(func(in, packed int) { s.Data[packed] = data[in] })
	return s, nil
}

// Unpack is the inverse of Pack.
func (l Layout) Unpack(s *Scalar) ([]float64, error) {
	if err := CheckSame("unpack", l.Dims(), s.Dims); err != nil {
		return nil, err
	}
	data := make([]float64, l.Len())
	l.walk(func(in, packed int) { data[in] = s.Data[packed] })
	return data, nil
}

// UnpackSpectrum returns the spectrum in row-major order with shape
// [degree, sample axes..., level], with the levels in input order. The
// level axis is omitted if the layout has no 'z' axis.
func (l Layout) UnpackSpectrum(sp *Spectrum) ([]float64, []int, error) {
	d := l.Dims()
	if sp.NTime != d.NTime || sp.NLevels != d.NLevels {
		return nil, nil, fmt.Errorf("unpack: spectrum has %d times and %d levels, layout %d and %d: %w",
			sp.NTime, sp.NLevels, d.NTime, d.NLevels, ErrShapeMismatch)
	}

	shape := append([]int{sp.NDegrees}, l.SampleShape()...)
	if strings.IndexByte(l.Axes, 'z') >= 0 {
		shape = append(shape, d.NLevels)
	}

	ns := sp.NSamples()
	out := make([]float64, sp.NDegrees*ns)
	for t := range sp.NTime {
		for k := range sp.NLevels {
			kin := util.Select(l.FlipLevels, sp.NLevels-1-k, k)
			src := sp.Sample(t*sp.NLevels + k)
			for n, v := range src {
				out[n*ns+t*sp.NLevels+kin] = v
			}
		}
	}
	return out, shape, nil
}
