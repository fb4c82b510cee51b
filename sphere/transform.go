// sphere/transform.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sphere

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/log"
	"github.com/mmp/seba/util"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Transform performs spherical harmonic transforms on a fixed grid at a
// fixed triangular truncation. All of its operations work on batches of
// samples; samples are distributed across workers in equal contiguous
// chunks and the results are reassembled in the original order.
//
// A Transform is safe for concurrent use.
type Transform struct {
	grid *Grid
	idx  *Index
	leg  *legendreTable
	jobs int
	lg   *log.Logger
}

// DefaultTruncation returns the largest truncation the grid resolves:
// nlat-1 for Gaussian grids. Regular grids are integrated with
// Clenshaw-Curtis quadrature, which is only exact for products of fields
// up to degree (nlat-1)/2.
func DefaultTruncation(g *Grid) int {
	if g.gridType == Regular {
		return (g.nlat - 1) / 2
	}
	return g.nlat - 1
}

// NewTransform returns a Transform for the grid at truncation ntrunc
// (DefaultTruncation if ntrunc is negative) that uses up to jobs workers.
func NewTransform(g *Grid, ntrunc, jobs int, lg *log.Logger) (*Transform, error) {
	if ntrunc < 0 {
		ntrunc = DefaultTruncation(g)
	}
	if ntrunc > g.nlat-1 {
		return nil, fmt.Errorf("truncation %d: must be in [0, %d]: %w", ntrunc, g.nlat-1, ErrTruncation)
	}
	if ntrunc >= g.nlon/2 {
		return nil, fmt.Errorf("truncation %d: must be less than nlon/2 = %d: %w", ntrunc, g.nlon/2, ErrTruncation)
	}
	if jobs < 1 {
		return nil, fmt.Errorf("%d jobs: must be at least 1", jobs)
	}

	idx, err := NewIndex(ntrunc)
	if err != nil {
		return nil, err
	}

	lg.Debug("creating spherical harmonic transform", slog.String("grid", g.String()),
		slog.Int("truncation", ntrunc), slog.Int("jobs", jobs))

	return &Transform{
		grid: g,
		idx:  idx,
		leg:  getLegendreTable(g, idx),
		jobs: jobs,
		lg:   lg,
	}, nil
}

func (t *Transform) Grid() *Grid     { return t.grid }
func (t *Transform) Index() *Index   { return t.idx }
func (t *Transform) Truncation() int { return t.idx.ntrunc }
func (t *Transform) Jobs() int       { return t.jobs }

// Workers returns the number of workers used for n samples.
func (t *Transform) Workers(n int) int { return util.EvenWorkers(t.jobs, n) }

func (t *Transform) checkGrid(d field.Dims) error {
	if d.NLat != t.grid.nlat || d.NLon != t.grid.nlon {
		return fmt.Errorf("field is %d×%d but grid is %d×%d: %w", d.NLat, d.NLon, t.grid.nlat, t.grid.nlon,
			field.ErrShapeMismatch)
	}
	return nil
}

func (t *Transform) checkCoeffs(c *field.Coeffs) error {
	if c.NCoeffs != t.idx.NCoeffs() {
		return fmt.Errorf("%d coefficients given for truncation %d (%d): %w", c.NCoeffs, t.idx.ntrunc,
			t.idx.NCoeffs(), field.ErrShapeMismatch)
	}
	return nil
}

// runChunks partitions n samples across the workers and calls f for each
// chunk with a worker that is private to that call.
func runChunks[Out any](ctx context.Context, t *Transform, n int,
	f func(ctx context.Context, w *worker, c util.Chunk) (Out, error)) ([]Out, error) {
	nw := t.Workers(n)
	chunks, err := util.Partition(n, nw)
	if err != nil {
		return nil, err
	}
	return util.ParallelMap(ctx, chunks, nw, func(ctx context.Context, c util.Chunk) (Out, error) {
		return f(ctx, t.newWorker(), c)
	})
}

// GridToSpectral returns the spherical harmonic coefficients of s.
func (t *Transform) GridToSpectral(ctx context.Context, s *field.Scalar) (*field.Coeffs, error) {
	if err := t.checkGrid(s.Dims); err != nil {
		return nil, err
	}
	nc := t.idx.NCoeffs()
	chunks, err := runChunks(ctx, t, s.NSamples(), func(ctx context.Context, w *worker, c util.Chunk) (*field.Coeffs, error) {
		out := field.NewCoeffs(nc, c.Len(), 1)
		for i := range c.Len() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			w.analyze(s.SampleData(c.Start+i), out.Sample(i))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return field.ConcatCoeffs(nc, s.NTime, s.NLevels, chunks)
}

// SpectralToGrid returns the grid-point field with coefficients c.
func (t *Transform) SpectralToGrid(ctx context.Context, c *field.Coeffs) (*field.Scalar, error) {
	if err := t.checkCoeffs(c); err != nil {
		return nil, err
	}
	d := t.dims(c.NTime, c.NLevels)
	chunks, err := runChunks(ctx, t, c.NSamples(), func(ctx context.Context, w *worker, ch util.Chunk) (*field.Scalar, error) {
		out := field.NewScalar(field.Dims{NLat: d.NLat, NLon: d.NLon, NTime: ch.Len(), NLevels: 1})
		for i := range ch.Len() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			w.synthesize(c.Sample(ch.Start+i), out.SampleData(i))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return field.ConcatScalars(d, chunks)
}

func (t *Transform) dims(ntime, nlevels int) field.Dims {
	return field.Dims{NLat: t.grid.nlat, NLon: t.grid.nlon, NTime: ntime, NLevels: nlevels}
}

// VorticityDivergence returns the spectral coefficients of the vertical
// vorticity and the horizontal divergence of the wind v.
func (t *Transform) VorticityDivergence(ctx context.Context, v *field.Vector) (vrt, div *field.Coeffs, err error) {
	d := v.Dims()
	if err := field.CheckSame("meridional wind", d, v.V.Dims); err != nil {
		return nil, nil, err
	}
	if err := t.checkGrid(d); err != nil {
		return nil, nil, err
	}

	nc := t.idx.NCoeffs()
	type result struct{ vrt, div *field.Coeffs }
	chunks, err := runChunks(ctx, t, d.NSamples(), func(ctx context.Context, w *worker, c util.Chunk) (result, error) {
		r := result{vrt: field.NewCoeffs(nc, c.Len(), 1), div: field.NewCoeffs(nc, c.Len(), 1)}
		for i := range c.Len() {
			if err := ctx.Err(); err != nil {
				return result{}, err
			}
			w.vrtdiv(v.U.SampleData(c.Start+i), v.V.SampleData(c.Start+i), r.vrt.Sample(i), r.div.Sample(i))
		}
		return r, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if vrt, err = field.ConcatCoeffs(nc, d.NTime, d.NLevels, util.MapSlice(chunks, func(r result) *field.Coeffs { return r.vrt })); err != nil {
		return nil, nil, err
	}
	if div, err = field.ConcatCoeffs(nc, d.NTime, d.NLevels, util.MapSlice(chunks, func(r result) *field.Coeffs { return r.div })); err != nil {
		return nil, nil, err
	}
	return vrt, div, nil
}

// Gradient returns the horizontal gradient of s, computed spectrally.
func (t *Transform) Gradient(ctx context.Context, s *field.Scalar) (*field.Vector, error) {
	c, err := t.GridToSpectral(ctx, s)
	if err != nil {
		return nil, err
	}
	return t.SpectralGradient(ctx, c)
}

// SpectralGradient returns the horizontal gradient of the field with
// coefficients c.
func (t *Transform) SpectralGradient(ctx context.Context, c *field.Coeffs) (*field.Vector, error) {
	return t.synthesizeVector(ctx, c, nil)
}

// VectorFromVorticityDivergence returns the wind with the given spectral
// vorticity and divergence; either may be nil, in which case it is taken
// to be zero.
func (t *Transform) VectorFromVorticityDivergence(ctx context.Context, vrt, div *field.Coeffs) (*field.Vector, error) {
	var psi, chi *field.Coeffs
	if vrt != nil {
		psi = t.InverseLaplacian(vrt)
	}
	if div != nil {
		chi = t.InverseLaplacian(div)
	}
	if psi == nil && chi == nil {
		return nil, fmt.Errorf("no vorticity or divergence given")
	}
	return t.synthesizeVector(ctx, chi, psi)
}

// synthesizeVector returns ∇chi + k̂×∇psi.
func (t *Transform) synthesizeVector(ctx context.Context, chi, psi *field.Coeffs) (*field.Vector, error) {
	ref := chi
	if ref == nil {
		ref = psi
	}
	for _, c := range []*field.Coeffs{chi, psi} {
		if c == nil {
			continue
		}
		if err := t.checkCoeffs(c); err != nil {
			return nil, err
		}
		if !c.SameShape(ref) {
			return nil, fmt.Errorf("mismatched coefficient arrays: %w", field.ErrShapeMismatch)
		}
	}

	d := t.dims(ref.NTime, ref.NLevels)
	chunks, err := runChunks(ctx, t, ref.NSamples(), func(ctx context.Context, w *worker, c util.Chunk) (*field.Vector, error) {
		cd := field.Dims{NLat: d.NLat, NLon: d.NLon, NTime: c.Len(), NLevels: 1}
		out := &field.Vector{U: field.NewScalar(cd), V: field.NewScalar(cd)}
		for i := range c.Len() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var cchi, cpsi []complex128
			if chi != nil {
				cchi = chi.Sample(c.Start + i)
			}
			if psi != nil {
				cpsi = psi.Sample(c.Start + i)
			}
			w.uv(cchi, cpsi, out.U.SampleData(i), out.V.SampleData(i))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	u, err := field.ConcatScalars(d, util.MapSlice(chunks, func(v *field.Vector) *field.Scalar { return v.U }))
	if err != nil {
		return nil, err
	}
	v, err := field.ConcatScalars(d, util.MapSlice(chunks, func(v *field.Vector) *field.Scalar { return v.V }))
	if err != nil {
		return nil, err
	}
	return &field.Vector{U: u, V: v}, nil
}

// StreamfunctionPotential returns the streamfunction ψ and velocity
// potential χ of the wind v, so that v = k̂×∇ψ + ∇χ.
func (t *Transform) StreamfunctionPotential(ctx context.Context, v *field.Vector) (psi, chi *field.Scalar, err error) {
	vrt, div, err := t.VorticityDivergence(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	if psi, err = t.SpectralToGrid(ctx, t.InverseLaplacian(vrt)); err != nil {
		return nil, nil, err
	}
	if chi, err = t.SpectralToGrid(ctx, t.InverseLaplacian(div)); err != nil {
		return nil, nil, err
	}
	return psi, chi, nil
}

// Laplacian returns the coefficients of ∇²f given those of f.
func (t *Transform) Laplacian(c *field.Coeffs) *field.Coeffs {
	r := c.Clone()
	a2 := t.grid.radius * t.grid.radius
	for s := range r.NSamples() {
		cs := r.Sample(s)
		for i := range cs {
			n := float64(t.idx.degree[i])
			cs[i] *= complex(-n*(n+1)/a2, 0)
		}
	}
	return r
}

// InverseLaplacian returns the coefficients of the field whose Laplacian
// has coefficients c; the global mean (degree 0) is set to zero.
func (t *Transform) InverseLaplacian(c *field.Coeffs) *field.Coeffs {
	r := c.Clone()
	a2 := t.grid.radius * t.grid.radius
	for s := range r.NSamples() {
		cs := r.Sample(s)
		for i := range cs {
			if n := float64(t.idx.degree[i]); n == 0 {
				cs[i] = 0
			} else {
				cs[i] *= complex(-a2/(n*(n+1)), 0)
			}
		}
	}
	return r
}

///////////////////////////////////////////////////////////////////////////
// worker

// worker holds the FFT plan and scratch buffers for transforming one
// sample at a time; each goroutine uses its own.
type worker struct {
	t      *Transform
	fft    *fourier.FFT
	fa, fb []complex128
	ua, ub []complex128
}

func (t *Transform) newWorker() *worker {
	nf := t.grid.nlon/2 + 1
	return &worker{
		t:   t,
		fft: fourier.NewFFT(t.grid.nlon),
		fa:  make([]complex128, nf),
		fb:  make([]complex128, nf),
		ua:  make([]complex128, nf),
		ub:  make([]complex128, nf),
	}
}

// lat returns the Legendre table rows for latitude i.
func (w *worker) lat(i int) (p, pcos, dp []float64) {
	nc := w.t.leg.ncoeffs
	return w.t.leg.p[i*nc : (i+1)*nc], w.t.leg.pcos[i*nc : (i+1)*nc], w.t.leg.dp[i*nc : (i+1)*nc]
}

// zonal returns the zonal Fourier coefficients of row, normalized so
// that row[j] = Σ_m F_m e^{imλ_j} over positive and negative m.
func (w *worker) zonal(dst []complex128, row []float64) []complex128 {
	dst = w.fft.Coefficients(dst, row)
	scale := complex(1/float64(w.t.grid.nlon), 0)
	for m := range dst {
		dst[m] *= scale
	}
	return dst
}

// inverseZonal evaluates the zonal Fourier series with coefficients f
// (only m ≤ T may be non-zero) at each longitude.
func (w *worker) inverseZonal(f []complex128, row []float64) {
	f[0] = complex(real(f[0]), 0)
	w.fft.Sequence(row, f)
}

func (w *worker) analyze(f []float64, a []complex128) {
	clear(a)
	g, T := w.t.grid, w.t.idx.ntrunc
	for i := range g.nlat {
		fm := w.zonal(w.fa, f[i*g.nlon:(i+1)*g.nlon])
		p, _, _ := w.lat(i)
		wt := g.weights[i]
		for m := 0; m <= T; m++ {
			o := w.t.idx.offset(m)
			xr, xi := wt*real(fm[m]), wt*imag(fm[m])
			for j := o; j <= o+T-m; j++ {
				a[j] += complex(xr*p[j], xi*p[j])
			}
		}
	}
}

func (w *worker) synthesize(a []complex128, f []float64) {
	g, T := w.t.grid, w.t.idx.ntrunc
	for i := range g.nlat {
		clear(w.fa)
		p, _, _ := w.lat(i)
		for m := 0; m <= T; m++ {
			o := w.t.idx.offset(m)
			var sr, si float64
			for j := o; j <= o+T-m; j++ {
				sr += real(a[j]) * p[j]
				si += imag(a[j]) * p[j]
			}
			w.fa[m] = complex(sr, si)
		}
		w.inverseZonal(w.fa, f[i*g.nlon:(i+1)*g.nlon])
	}
}

// vrtdiv computes the vorticity and divergence coefficients by
// projecting onto the derivatives of the basis functions:
//
//	ζ_nm = (1/a) Σ_i w_i [im v_m P̄/cos φ + u_m cos φ dP̄/dμ]
//	δ_nm = (1/a) Σ_i w_i [im u_m P̄/cos φ - v_m cos φ dP̄/dμ]
func (w *worker) vrtdiv(u, v []float64, vrt, div []complex128) {
	clear(vrt)
	clear(div)
	g, T := w.t.grid, w.t.idx.ntrunc
	for i := range g.nlat {
		um := w.zonal(w.ua, u[i*g.nlon:(i+1)*g.nlon])
		vm := w.zonal(w.ub, v[i*g.nlon:(i+1)*g.nlon])
		_, pcos, dp := w.lat(i)
		wt := g.weights[i] / g.radius
		for m := 0; m <= T; m++ {
			o := w.t.idx.offset(m)
			imu := complex(0, float64(m)) * um[m] * complex(wt, 0)
			imv := complex(0, float64(m)) * vm[m] * complex(wt, 0)
			uw, vw := um[m]*complex(wt, 0), vm[m]*complex(wt, 0)
			for j := o; j <= o+T-m; j++ {
				pc, d := complex(pcos[j], 0), complex(dp[j], 0)
				vrt[j] += imv*pc + uw*d
				div[j] += imu*pc - vw*d
			}
		}
	}
}

// uv evaluates ∇chi + k̂×∇psi from the coefficients of chi and psi, either
// of which may be nil:
//
//	u = (1/a) [∂χ/(cos φ ∂λ) - ∂ψ/∂φ]
//	v = (1/a) [∂ψ/(cos φ ∂λ) + ∂χ/∂φ]
func (w *worker) uv(chi, psi []complex128, u, v []float64) {
	g, T := w.t.grid, w.t.idx.ntrunc
	for i := range g.nlat {
		clear(w.fa)
		clear(w.fb)
		_, pcos, dp := w.lat(i)
		for m := 0; m <= T; m++ {
			o := w.t.idx.offset(m)
			im := complex(0, float64(m))
			var zu, zv complex128
			for j := o; j <= o+T-m; j++ {
				pc, d := complex(pcos[j], 0), complex(dp[j], 0)
				if chi != nil {
					zu += im * chi[j] * pc
					zv += chi[j] * d
				}
				if psi != nil {
					zu -= psi[j] * d
					zv += im * psi[j] * pc
				}
			}
			w.fa[m] = zu / complex(g.radius, 0)
			w.fb[m] = zv / complex(g.radius, 0)
		}
		w.inverseZonal(w.fa, u[i*g.nlon:(i+1)*g.nlon])
		w.inverseZonal(w.fb, v[i*g.nlon:(i+1)*g.nlon])
	}
}
