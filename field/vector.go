// field/vector.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package field

// Vector is a horizontal vector field with zonal (U) and meridional (V)
// components of identical dims.
type Vector struct {
	U, V *Scalar
}

func (v *Vector) Dims() Dims   { return v.U.Dims }
func (v *Vector) Masked() bool { return v.U.Masked() || v.V.Masked() }

func (v *Vector) Clone() *Vector {
	return &Vector{U: v.U.Clone(), V: v.V.Clone()}
}

// Rotate returns k̂×v, the vector rotated 90 degrees counterclockwise.
func (v *Vector) Rotate() *Vector {
	return &Vector{U: v.V.Scale(-1), V: v.U.Clone()}
}

func (v *Vector) Add(o *Vector) *Vector {
	return &Vector{U: v.U.Add(o.U), V: v.V.Add(o.V)}
}

func (v *Vector) Sub(o *Vector) *Vector {
	return &Vector{U: v.U.Sub(o.U), V: v.V.Sub(o.V)}
}

func (v *Vector) Scale(c float64) *Vector {
	return &Vector{U: v.U.Scale(c), V: v.V.Scale(c)}
}

// Mul returns the product of the scalar field s and v.
func (v *Vector) Mul(s *Scalar) *Vector {
	return &Vector{U: v.U.Mul(s), V: v.V.Mul(s)}
}

// Dot returns the pointwise inner product v·o.
func (v *Vector) Dot(o *Vector) *Scalar {
	return v.U.Mul(o.U).Add(v.V.Mul(o.V))
}

func (v *Vector) ScaleLatitude(f []float64) *Vector {
	return &Vector{U: v.U.ScaleLatitude(f), V: v.V.ScaleLatitude(f)}
}

func (v *Vector) VerticalGradient(p []float64) *Vector {
	return &Vector{U: v.U.VerticalGradient(p), V: v.V.VerticalGradient(p)}
}

func (v *Vector) ApplyMask(beta *Scalar) (*Vector, error) {
	u, err := v.U.ApplyMask(beta)
	if err != nil {
		return nil, err
	}
	w, err := v.V.ApplyMask(beta)
	if err != nil {
		return nil, err
	}
	return &Vector{U: u, V: w}, nil
}

// WithMask attaches beta to both components, whose data must already be
// weighted by it.
func (v *Vector) WithMask(beta *Scalar) (*Vector, error) {
	u, err := v.U.WithMask(beta)
	if err != nil {
		return nil, err
	}
	w, err := v.V.WithMask(beta)
	if err != nil {
		return nil, err
	}
	return &Vector{U: u, V: w}, nil
}

func (v *Vector) Unweighted() *Vector {
	return &Vector{U: v.U.Unweighted(), V: v.V.Unweighted()}
}
