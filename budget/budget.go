// budget/budget.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package budget computes the spectral energy budget of a dry hydrostatic
// atmosphere on pressure levels: kinetic and available potential energy
// spectra, their nonlinear transfers across scales, vertical fluxes and
// conversions between energy components, following Augier and Lindborg
// (2013) and Li et al. (2023).
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/log"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
	"github.com/mmp/seba/wx"

	"github.com/brunoga/deep"
)

// EnergyBudget holds the state of a budget computation. All of its fields
// are computed by New and are not modified afterward, so its diagnostics
// may be called concurrently.
type EnergyBudget struct {
	cfg    Config
	lg     *log.Logger
	tr     *sphere.Transform
	layout field.Layout
	dims   field.Dims

	pressure []float64 // surface first
	lats     []float64
	weights  []float64
	norm     []float64 // n(n+1)/a², degree 0 set to 1

	// Terrain mask and the fraction of each level above ground; beta is
	// nil if no surface pressure was given.
	beta         *field.Scalar
	betaFraction []float64
	maskedLevels []int

	// unstableLevels are the levels where the stability parameter was
	// limited at some time.
	unstableLevels []int

	// Kinematics. The wind components and everything derived from them
	// are masked.
	wind, windShear  *field.Vector
	windRot, windDiv *field.Vector
	vrt, div         *field.Scalar
	omega            *field.Scalar
	fc               []float64

	// Thermodynamics. theta is potential temperature; thetaMean holds its
	// representative mean and ganma the stability parameter for each
	// sample.
	exner       []float64
	temperature *field.Scalar
	theta       *field.Scalar
	thetaPrime  *field.Scalar
	thetaMean   []float64
	ganma       []float64
	alpha       *field.Scalar // specific volume
	phi         *field.Scalar // geopotential
	w           *field.Scalar // vertical velocity, m/s

	// Spectral vorticity and divergence of the vector fields above.
	rotdiv map[*field.Vector]rotdiv
}

type rotdiv struct {
	vrt, div *field.Coeffs
}

// New validates fs and cfg and computes everything that the budget
// diagnostics depend on. fs is copied and is not modified.
func New(ctx context.Context, fs *wx.FieldSet, cfg Config) (*EnergyBudget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fs = deep.MustCopy(fs)
	in, err := fs.Pack()
	if err != nil {
		return nil, err
	}

	eb := &EnergyBudget{
		cfg:      cfg,
		lg:       cfg.Logger,
		layout:   in.Layout,
		dims:     in.U.Dims,
		pressure: in.Pressure,
		rotdiv:   make(map[*field.Vector]rotdiv),
	}

	for _, step := range []struct {
		phase string
		init  func(context.Context) error
	}{
		{"transform", func(context.Context) error { return eb.initTransform(fs) }},
		{"mask", func(ctx context.Context) error { return eb.initMask(ctx, in) }},
		{"kinematics", func(ctx context.Context) error { return eb.initKinematics(ctx, in) }},
		{"thermodynamics", func(context.Context) error { return eb.initThermodynamics(in) }},
	} {
		if err := util.Phase(ctx, step.phase, step.init); err != nil {
			return nil, err
		}
	}

	eb.lg.Info("energy budget initialized", slog.String("grid", eb.tr.Grid().String()),
		slog.Int("truncation", eb.tr.Truncation()), slog.Int("samples", eb.dims.NSamples()),
		slog.Int("workers", eb.tr.Workers(eb.dims.NSamples())), slog.Bool("masked", eb.beta != nil),
		slog.Duration("elapsed", eb.lg.Elapsed()))
	return eb, nil
}

func (eb *EnergyBudget) initTransform(fs *wx.FieldSet) error {
	gt, err := fs.ResolveGridType()
	if err != nil {
		return err
	}
	if eb.cfg.GridType != "" {
		if gt, err = sphere.ParseGridType(eb.cfg.GridType); err != nil {
			return err
		}
	}

	g, err := sphere.NewGrid(eb.dims.NLat, eb.dims.NLon, gt, eb.cfg.Radius)
	if err != nil {
		return err
	}
	if eb.tr, err = sphere.NewTransform(g, eb.cfg.truncation(), eb.cfg.jobs(), eb.lg); err != nil {
		return err
	}

	eb.lats, eb.weights = g.Latitudes(), g.Weights()
	eb.norm = sphere.VectorNormalization(eb.tr.Index(), g.Radius())
	return nil
}

// initMask computes the terrain mask and the fraction of each level that
// lies above the surface.
func (eb *EnergyBudget) initMask(ctx context.Context, in *wx.Packed) error {
	eb.betaFraction = slices.Repeat([]float64{1}, eb.dims.NLevels)
	if in.SurfacePressure == nil {
		return nil
	}

	var err error
	eb.beta, err = wx.TerrainMask(ctx, eb.dims, eb.pressure, in.SurfacePressure, eb.cfg.SmoothTerrain, eb.tr.Jobs())
	if err != nil {
		return err
	}

	mean := eb.beta.GlobalMean(eb.weights)
	for k := range eb.dims.NLevels {
		var f float64
		for t := range eb.dims.NTime {
			f += mean[eb.dims.Sample(t, k)]
		}
		f /= float64(eb.dims.NTime)

		if f < wx.Epsilon {
			eb.maskedLevels = append(eb.maskedLevels, k)
			eb.lg.Warn("level is entirely below the surface", slog.Float64("pressure", eb.pressure[k]),
				slog.Float64("fraction", f))
		}
		eb.betaFraction[k] = max(f, wx.Epsilon)
	}
	eb.lg.Info("terrain mask", slog.Any("fraction", eb.betaFraction), slog.Bool("smoothed", eb.cfg.SmoothTerrain))
	return nil
}

// applyMask returns s weighted by the terrain mask, or s itself if there
// is no mask.
func (eb *EnergyBudget) applyMask(s *field.Scalar) (*field.Scalar, error) {
	if eb.beta == nil {
		return s, nil
	}
	return s.ApplyMask(eb.beta)
}

func (eb *EnergyBudget) applyMaskVector(v *field.Vector) (*field.Vector, error) {
	if eb.beta == nil {
		return v, nil
	}
	return v.ApplyMask(eb.beta)
}

func (eb *EnergyBudget) initKinematics(ctx context.Context, in *wx.Packed) error {
	raw := &field.Vector{U: in.U, V: in.V}

	vrtSpc, divSpc, err := eb.tr.VorticityDivergence(ctx, raw)
	if err != nil {
		return err
	}
	vrt, err := eb.tr.SpectralToGrid(ctx, vrtSpc)
	if err != nil {
		return err
	}
	div, err := eb.tr.SpectralToGrid(ctx, divSpc)
	if err != nil {
		return err
	}
	// The shear is found before masking to avoid sharp gradients at the
	// surface.
	shear := raw.VerticalGradient(eb.pressure)

	// Helmholtz decomposition: v = ∇χ + k̂×∇ψ.
	psi, chi, err := eb.tr.StreamfunctionPotential(ctx, raw)
	if err != nil {
		return err
	}
	windDiv, err := eb.tr.Gradient(ctx, chi)
	if err != nil {
		return err
	}
	psiGrad, err := eb.tr.Gradient(ctx, psi)
	if err != nil {
		return err
	}
	windRot := psiGrad.Rotate()

	if eb.wind, err = eb.applyMaskVector(raw); err != nil {
		return err
	}
	if eb.windShear, err = eb.applyMaskVector(shear); err != nil {
		return err
	}
	if eb.windDiv, err = eb.applyMaskVector(windDiv); err != nil {
		return err
	}
	if eb.windRot, err = eb.applyMaskVector(windRot); err != nil {
		return err
	}
	if eb.vrt, err = eb.applyMask(vrt); err != nil {
		return err
	}
	if eb.div, err = eb.applyMask(div); err != nil {
		return err
	}
	eb.omega = in.Omega
	eb.fc = util.MapSlice(eb.lats, wx.CoriolisParameter)

	// The vector fields that appear in nearly every cross spectrum.
	for _, v := range []*field.Vector{eb.wind, eb.windShear, eb.windRot, eb.windDiv} {
		vrt, div, err := eb.tr.VorticityDivergence(ctx, v)
		if err != nil {
			return err
		}
		eb.rotdiv[v] = rotdiv{vrt: vrt, div: div}
	}
	return nil
}

func (eb *EnergyBudget) initThermodynamics(in *wx.Packed) error {
	d := eb.dims
	eb.exner = util.MapSlice(eb.pressure, wx.Exner)

	var err error
	if eb.temperature, err = eb.applyMask(in.Temperature); err != nil {
		return err
	}

	theta := in.Temperature.ScaleLevels(util.MapSlice(eb.exner, inverse))
	eb.thetaMean = eb.representativeMean(theta)
	if eb.theta, err = eb.applyMask(theta); err != nil {
		return err
	}
	if eb.thetaPrime, err = eb.applyMask(theta.SubtractSamples(eb.thetaMean)); err != nil {
		return err
	}

	eb.ganma = make([]float64, d.NSamples())
	for t := range d.NTime {
		profile := eb.thetaMean[d.Sample(t, 0):d.Sample(t, d.NLevels)]
		g, limited := wx.StabilityParameter(profile, eb.pressure)
		copy(eb.ganma[d.Sample(t, 0):], g)
		for _, k := range limited {
			eb.lg.Warn("mean stratification is neutral or unstable; stability parameter limited",
				slog.Float64("pressure", eb.pressure[k]), slog.Int("time", t), slog.Float64("gamma", g[k]))
			if !slices.Contains(eb.unstableLevels, k) {
				eb.unstableLevels = append(eb.unstableLevels, k)
			}
		}
	}
	slices.Sort(eb.unstableLevels)

	alpha := in.Temperature.ScaleLevels(util.MapSlice(eb.pressure, func(p float64) float64 { return wx.Rd / p }))
	if eb.alpha, err = eb.applyMask(alpha); err != nil {
		return err
	}

	phi := in.Geopotential
	if phi == nil {
		phi = wx.Geopotential(in.Temperature, eb.pressure, in.SurfacePressure, in.SurfaceGeopotentialHeight)
	}
	if eb.phi, err = eb.applyMask(phi); err != nil {
		return err
	}

	// w = -ω α / g
	eb.w = eb.omega.Mul(eb.alpha).Scale(-1 / wx.G)

	if i := math.AllFinite(eb.thetaPrime.Data); i >= 0 {
		return fmt.Errorf("potential temperature perturbation is not finite at %d", i)
	}
	return nil
}

// representativeMean returns the mean of s on each pressure level for
// each time, following the configured MeanMode.
func (eb *EnergyBudget) representativeMean(s *field.Scalar) []float64 {
	if eb.cfg.MeanMode == MeanGlobal || eb.beta == nil {
		return s.Unmasked().GlobalMean(eb.weights)
	}

	weighted := s.Unmasked().Mul(eb.beta).GlobalMean(eb.weights)
	norm := eb.beta.GlobalMean(eb.weights)
	for i := range weighted {
		weighted[i] /= max(norm[i], wx.Epsilon)
	}
	return weighted
}

///////////////////////////////////////////////////////////////////////////
// Accessors

func (eb *EnergyBudget) Transform() *sphere.Transform { return eb.tr }
func (eb *EnergyBudget) Dims() field.Dims             { return eb.dims }
func (eb *EnergyBudget) Layout() field.Layout         { return eb.layout }
func (eb *EnergyBudget) Config() Config               { return eb.cfg }

// Pressure returns the pressure levels, surface first.
func (eb *EnergyBudget) Pressure() []float64 { return slices.Clone(eb.pressure) }

func (eb *EnergyBudget) Degrees() []int { return eb.tr.Index().Degrees() }

// Kappa returns the horizontal wavenumber of each degree, in 1/m.
func (eb *EnergyBudget) Kappa() []float64 {
	return sphere.Kappa(eb.tr.Index(), eb.tr.Grid().Radius())
}

// BetaFraction returns the fraction of each level that is above ground,
// limited to be at least wx.Epsilon.
func (eb *EnergyBudget) BetaFraction() []float64 { return slices.Clone(eb.betaFraction) }

// MaskedLevels returns the indices of the levels that are entirely below
// the surface; their diagnostics are not meaningful.
func (eb *EnergyBudget) MaskedLevels() []int { return slices.Clone(eb.maskedLevels) }

// UnstableLevels returns the indices of the levels where the mean
// potential temperature did not decrease with pressure at some time, so
// that the stability parameter was limited.
func (eb *EnergyBudget) UnstableLevels() []int { return slices.Clone(eb.unstableLevels) }

// Beta returns the terrain mask, or nil if the input had no surface
// pressure.
func (eb *EnergyBudget) Beta() *field.Scalar {
	if eb.beta == nil {
		return nil
	}
	return eb.beta.Clone()
}

// Wind returns the masked horizontal wind.
func (eb *EnergyBudget) Wind() *field.Vector { return eb.wind.Clone() }

// Stability returns the stability parameter for each sample.
func (eb *EnergyBudget) Stability() []float64 { return slices.Clone(eb.ganma) }
