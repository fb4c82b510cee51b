// budget/algebra.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package budget

import (
	"context"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/sphere"
)

// Differential operators on fields that may carry a terrain mask. For a
// masked field the stored data is βφ, and the operators return β∇φ using
// β∇φ = ∇(βφ) - φ∇β, with φ recovered from the stored data wherever β > 0.
// Differentiating βφ directly would pick up the discontinuity at the
// surface. Results carry the mask of their input.

// maskOf returns the mask of s as a field, or nil if s is unmasked.
func maskOf(s *field.Scalar) *field.Scalar {
	if !s.Masked() {
		return nil
	}
	return &field.Scalar{Dims: s.Dims, Data: s.Mask}
}

// HorizontalGradient returns the horizontal gradient of s, computed
// spectrally.
func HorizontalGradient(ctx context.Context, tr *sphere.Transform, s *field.Scalar) (*field.Vector, error) {
	grad, err := tr.Gradient(ctx, s.Unmasked())
	if err != nil {
		return nil, err
	}
	beta := maskOf(s)
	if beta == nil {
		return grad, nil
	}

	bgrad, err := tr.Gradient(ctx, beta)
	if err != nil {
		return nil, err
	}
	return grad.Sub(bgrad.Mul(s.Unweighted())).WithMask(beta)
}

// VerticalGradient returns ∂s/∂p, using second-order finite differences
// along each column.
func VerticalGradient(s *field.Scalar, p []float64) (*field.Scalar, error) {
	grad := s.Unmasked().VerticalGradient(p)
	beta := maskOf(s)
	if beta == nil {
		return grad, nil
	}

	bgrad := beta.VerticalGradient(p)
	return grad.Sub(bgrad.Mul(s.Unweighted())).WithMask(beta)
}

// divergence returns ∇·v, computed spectrally. A masked v gives β∇·v by
// the same identity as HorizontalGradient.
func divergence(ctx context.Context, tr *sphere.Transform, v *field.Vector) (*field.Scalar, error) {
	_, cdiv, err := tr.VorticityDivergence(ctx, v)
	if err != nil {
		return nil, err
	}
	div, err := tr.SpectralToGrid(ctx, cdiv)
	if err != nil {
		return nil, err
	}
	beta := maskOf(v.U)
	if beta == nil {
		return div, nil
	}

	bgrad, err := tr.Gradient(ctx, beta)
	if err != nil {
		return nil, err
	}
	return div.Sub(v.Unweighted().Dot(bgrad)).WithMask(beta)
}

// ScalarAdvection returns u·∇φ for the wind u with divergence div,
// computed in flux form as ∇·(φu) - δφ.
func ScalarAdvection(ctx context.Context, tr *sphere.Transform, phi *field.Scalar, u *field.Vector,
	div *field.Scalar) (*field.Scalar, error) {
	flux, err := divergence(ctx, tr, u.Mul(phi))
	if err != nil {
		return nil, err
	}
	return flux.Sub(div.Mul(phi)), nil
}

// WindAdvection returns (u·∇)u for the wind u with vorticity vrt,
// computed in rotation form as ∇(|u|²/2) + ζ k̂×u.
func WindAdvection(ctx context.Context, tr *sphere.Transform, u *field.Vector, vrt *field.Scalar) (*field.Vector, error) {
	ke := u.Dot(u).Scale(0.5)
	grad, err := HorizontalGradient(ctx, tr, ke)
	if err != nil {
		return nil, err
	}
	return grad.Add(u.Rotate().Mul(vrt)), nil
}
