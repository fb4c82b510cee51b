// budget/diagnostics.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package budget

import (
	"context"
	"fmt"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
)

// The diagnostics below return spectra indexed by spherical harmonic
// degree for each time and pressure level. Equation numbers refer to
// Augier and Lindborg (2013) (A&L) and Li et al. (2023).

///////////////////////////////////////////////////////////////////////////
// Cross spectra

func (eb *EnergyBudget) vorticityDivergence(ctx context.Context, v *field.Vector) (rotdiv, error) {
	if rd, ok := eb.rotdiv[v]; ok {
		return rd, nil
	}
	vrt, div, err := eb.tr.VorticityDivergence(ctx, v)
	return rotdiv{vrt: vrt, div: div}, err
}

// scalarSpectra returns the cross spectrum of a and b, or the power
// spectrum of a if b is nil, corrected for the masked fraction of each
// level.
func (eb *EnergyBudget) scalarSpectra(ctx context.Context, a, b *field.Scalar) (*field.Spectrum, error) {
	ca, err := eb.tr.GridToSpectral(ctx, a)
	if err != nil {
		return nil, err
	}
	var cb *field.Coeffs
	if b != nil {
		if cb, err = eb.tr.GridToSpectral(ctx, b); err != nil {
			return nil, err
		}
	}
	return sphere.CrossSpectrum(eb.tr.Index(), ca, cb, sphere.ConventionPower, eb.betaFraction)
}

// vectorSpectra returns the cross spectrum of the vector fields a and b,
// found from the spectra of their vorticity and divergence.
func (eb *EnergyBudget) vectorSpectra(ctx context.Context, a, b *field.Vector) (*field.Spectrum, error) {
	rda, err := eb.vorticityDivergence(ctx, a)
	if err != nil {
		return nil, err
	}
	rdb, err := eb.vorticityDivergence(ctx, b)
	if err != nil {
		return nil, err
	}

	ix := eb.tr.Index()
	sv, err := sphere.CrossSpectrum(ix, rda.vrt, rdb.vrt, sphere.ConventionPower, eb.betaFraction)
	if err != nil {
		return nil, err
	}
	sd, err := sphere.CrossSpectrum(ix, rda.div, rdb.div, sphere.ConventionPower, eb.betaFraction)
	if err != nil {
		return nil, err
	}
	return sv.Add(sd).ScaleDegrees(eb.norm, true), nil
}

// spectra accumulates a sum of weighted cross spectra; the first error
// encountered is kept and later terms are skipped.
type spectra struct {
	eb  *EnergyBudget
	ctx context.Context
	sum *field.Spectrum
	err error
}

func (eb *EnergyBudget) newSpectra(ctx context.Context) *spectra {
	return &spectra{eb: eb, ctx: ctx}
}

func (s *spectra) add(c float64, sp *field.Spectrum, err error) *spectra {
	if s.err != nil {
		return s
	}
	if err != nil {
		s.err = err
		return s
	}
	if s.sum == nil {
		s.sum = sp.Scale(c)
	} else {
		s.sum = s.sum.Add(sp.Scale(c))
	}
	return s
}

func (s *spectra) vector(c float64, a, b *field.Vector) *spectra {
	if s.err != nil {
		return s
	}
	sp, err := s.eb.vectorSpectra(s.ctx, a, b)
	return s.add(c, sp, err)
}

func (s *spectra) scalar(c float64, a, b *field.Scalar) *spectra {
	if s.err != nil {
		return s
	}
	sp, err := s.eb.scalarSpectra(s.ctx, a, b)
	return s.add(c, sp, err)
}

func (s *spectra) result() (*field.Spectrum, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sum == nil {
		d := s.eb.dims
		return field.NewSpectrum(s.eb.tr.Index().NDegrees(), d.NTime, d.NLevels), nil
	}
	return s.sum, nil
}

///////////////////////////////////////////////////////////////////////////
// Energies

// RotationalKineticEnergy returns the kinetic energy spectrum of the
// non-divergent wind (A&L Eq. 13).
func (eb *EnergyBudget) RotationalKineticEnergy(ctx context.Context) (*field.Spectrum, error) {
	sp, err := eb.scalarSpectra(ctx, eb.vrt, nil)
	if err != nil {
		return nil, err
	}
	return sp.ScaleDegrees(eb.norm, true).Scale(0.5), nil
}

// DivergentKineticEnergy returns the kinetic energy spectrum of the
// irrotational wind.
func (eb *EnergyBudget) DivergentKineticEnergy(ctx context.Context) (*field.Spectrum, error) {
	sp, err := eb.scalarSpectra(ctx, eb.div, nil)
	if err != nil {
		return nil, err
	}
	return sp.ScaleDegrees(eb.norm, true).Scale(0.5), nil
}

func (eb *EnergyBudget) HorizontalKineticEnergy(ctx context.Context) (*field.Spectrum, error) {
	rke, err := eb.RotationalKineticEnergy(ctx)
	if err != nil {
		return nil, err
	}
	dke, err := eb.DivergentKineticEnergy(ctx)
	if err != nil {
		return nil, err
	}
	return rke.Add(dke), nil
}

func (eb *EnergyBudget) VerticalKineticEnergy(ctx context.Context) (*field.Spectrum, error) {
	sp, err := eb.scalarSpectra(ctx, eb.w, nil)
	if err != nil {
		return nil, err
	}
	return sp.Scale(0.5), nil
}

// AvailablePotentialEnergy returns γ(θ', θ')/2 (A&L Eq. 10).
func (eb *EnergyBudget) AvailablePotentialEnergy(ctx context.Context) (*field.Spectrum, error) {
	sp, err := eb.scalarSpectra(ctx, eb.thetaPrime, nil)
	if err != nil {
		return nil, err
	}
	return sp.ScaleSamples(eb.ganma).Scale(0.5), nil
}

///////////////////////////////////////////////////////////////////////////
// Nonlinear transfers

// vertical returns the coefficient of the vertical transport terms.
func (eb *EnergyBudget) vertical() float64 {
	if eb.cfg.VerticalTransport {
		return 1
	}
	return 0
}

// verticalTransport adds c·[(∂u/∂p, ωv) - (v, ω ∂u/∂p)] to s.
func (s *spectra) verticalTransport(c float64, v *field.Vector) *spectra {
	if c == 0 {
		return s
	}
	eb := s.eb
	return s.vector(c, eb.windShear, v.Mul(eb.omega)).vector(-c, v, eb.windShear.Mul(eb.omega))
}

// KENonlinearTransfer returns the spectral transfer of horizontal kinetic
// energy by nonlinear interactions (A&L Eq. A2).
func (eb *EnergyBudget) KENonlinearTransfer(ctx context.Context) (*field.Spectrum, error) {
	adv, err := WindAdvection(ctx, eb.tr, eb.wind, eb.vrt)
	if err != nil {
		return nil, err
	}
	adv = adv.Add(eb.wind.Mul(eb.div).Scale(0.5))

	return eb.newSpectra(ctx).
		vector(-1, eb.wind, adv).
		verticalTransport(eb.vertical()/2, eb.wind).
		result()
}

// RKENonlinearTransfer returns the spectral transfer of rotational
// kinetic energy (Li et al. Eq. 28).
func (eb *EnergyBudget) RKENonlinearTransfer(ctx context.Context) (*field.Spectrum, error) {
	crossWind, crossRot := eb.wind.Rotate(), eb.windRot.Rotate()

	return eb.newSpectra(ctx).
		verticalTransport(eb.vertical()/2, eb.windRot).
		vector(-0.5, eb.windRot, crossWind.ScaleLatitude(eb.fc)).
		vector(-0.5, eb.wind, crossRot.ScaleLatitude(eb.fc)).
		vector(-0.5, eb.windRot, crossWind.Mul(eb.vrt)).
		vector(-0.5, eb.wind, crossRot.Mul(eb.vrt)).
		result()
}

// DKENonlinearTransfer returns the spectral transfer of divergent kinetic
// energy (Li et al. Eq. 27). The linear Coriolis term is included so
// that the rotational and divergent transfers sum to the total transfer
// plus the Coriolis linear transfer.
func (eb *EnergyBudget) DKENonlinearTransfer(ctx context.Context) (*field.Spectrum, error) {
	keGrad, err := HorizontalGradient(ctx, eb.tr, eb.wind.Dot(eb.wind))
	if err != nil {
		return nil, err
	}
	crossWind, crossDiv := eb.wind.Rotate(), eb.windDiv.Rotate()

	return eb.newSpectra(ctx).
		vector(-0.5, eb.windDiv, keGrad).
		vector(-0.5, eb.wind, eb.wind.Mul(eb.div)).
		verticalTransport(eb.vertical()/2, eb.windDiv).
		vector(-0.5, eb.windDiv, crossWind.ScaleLatitude(eb.fc)).
		vector(-0.5, eb.wind, crossDiv.ScaleLatitude(eb.fc)).
		vector(-0.5, eb.windDiv, crossWind.Mul(eb.vrt)).
		vector(-0.5, eb.wind, crossDiv.Mul(eb.vrt)).
		result()
}

// APENonlinearTransfer returns the spectral transfer of available
// potential energy (A&L Eq. A3).
func (eb *EnergyBudget) APENonlinearTransfer(ctx context.Context) (*field.Spectrum, error) {
	adv, err := ScalarAdvection(ctx, eb.tr, eb.thetaPrime, eb.wind, eb.div)
	if err != nil {
		return nil, err
	}
	adv = adv.Add(eb.div.Mul(eb.thetaPrime).Scale(0.5))

	s := eb.newSpectra(ctx).scalar(-1, eb.thetaPrime, adv)
	if vt := eb.vertical(); vt != 0 {
		grad, err := VerticalGradient(eb.thetaPrime, eb.pressure)
		if err != nil {
			return nil, err
		}
		s = s.scalar(vt/2, grad, eb.thetaPrime.Mul(eb.omega)).
			scalar(-vt/2, eb.thetaPrime, grad.Mul(eb.omega))
	}
	sp, err := s.result()
	if err != nil {
		return nil, err
	}
	return sp.ScaleSamples(eb.ganma), nil
}

///////////////////////////////////////////////////////////////////////////
// Vertical fluxes

// PressureFlux returns the vertical pressure flux -(ω, Φ) (A&L Eq. 22).
func (eb *EnergyBudget) PressureFlux(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).scalar(-1, eb.omega, eb.phi).result()
}

// TurbulentFlux returns the vertical turbulent flux of kinetic energy
// -(u, ωu)/2 (A&L Eq. 22).
func (eb *EnergyBudget) TurbulentFlux(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).vector(-0.5, eb.wind, eb.wind.Mul(eb.omega)).result()
}

// DKEVerticalFlux returns the total vertical flux of kinetic energy (A&L
// Eq. A9).
func (eb *EnergyBudget) DKEVerticalFlux(ctx context.Context) (*field.Spectrum, error) {
	pf, err := eb.PressureFlux(ctx)
	if err != nil {
		return nil, err
	}
	tf, err := eb.TurbulentFlux(ctx)
	if err != nil {
		return nil, err
	}
	return pf.Add(tf), nil
}

// APEVerticalFlux returns the vertical flux of available potential
// energy -γ(θ', ωθ')/2 (A&L Eq. A10).
func (eb *EnergyBudget) APEVerticalFlux(ctx context.Context) (*field.Spectrum, error) {
	sp, err := eb.newSpectra(ctx).scalar(-0.5, eb.thetaPrime, eb.thetaPrime.Mul(eb.omega)).result()
	if err != nil {
		return nil, err
	}
	return sp.ScaleSamples(eb.ganma), nil
}

// fluxDivergence returns ∂F/∂p for the flux computed by f.
func (eb *EnergyBudget) fluxDivergence(ctx context.Context,
	f func(context.Context) (*field.Spectrum, error)) (*field.Spectrum, error) {
	sp, err := f(ctx)
	if err != nil {
		return nil, err
	}
	return sp.VerticalGradient(eb.pressure), nil
}

func (eb *EnergyBudget) PressureFluxDivergence(ctx context.Context) (*field.Spectrum, error) {
	return eb.fluxDivergence(ctx, eb.PressureFlux)
}

func (eb *EnergyBudget) TurbulentFluxDivergence(ctx context.Context) (*field.Spectrum, error) {
	return eb.fluxDivergence(ctx, eb.TurbulentFlux)
}

// DKEVerticalFluxDivergence returns the vertical flux divergence of
// kinetic energy, which enters the budget directly.
func (eb *EnergyBudget) DKEVerticalFluxDivergence(ctx context.Context) (*field.Spectrum, error) {
	return eb.fluxDivergence(ctx, eb.DKEVerticalFlux)
}

func (eb *EnergyBudget) APEVerticalFluxDivergence(ctx context.Context) (*field.Spectrum, error) {
	return eb.fluxDivergence(ctx, eb.APEVerticalFlux)
}

///////////////////////////////////////////////////////////////////////////
// Conversions

// ConversionAPEDKE returns the conversion of available potential energy
// to divergent kinetic energy, -(ω, α) (A&L Eq. 19).
func (eb *EnergyBudget) ConversionAPEDKE(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).scalar(-1, eb.omega, eb.alpha).result()
}

// ConversionDKERKEVertical returns the part of the conversion from
// divergent to rotational kinetic energy due to vertical motion.
func (eb *EnergyBudget) ConversionDKERKEVertical(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).
		vector(-0.5, eb.windShear, eb.windRot.Mul(eb.omega)).
		vector(-0.5, eb.windRot, eb.windShear.Mul(eb.omega)).
		result()
}

// ConversionDKERKEVorticity returns the part of the conversion from
// divergent to rotational kinetic energy due to relative vorticity.
func (eb *EnergyBudget) ConversionDKERKEVorticity(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).
		vector(0.5, eb.windDiv, eb.windRot.Rotate().Mul(eb.vrt)).
		vector(-0.5, eb.windRot, eb.windDiv.Rotate().Mul(eb.vrt)).
		result()
}

// ConversionDKERKECoriolis returns the part of the conversion from
// divergent to rotational kinetic energy due to the Coriolis effect.
func (eb *EnergyBudget) ConversionDKERKECoriolis(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).
		vector(0.5, eb.windDiv, eb.windRot.Rotate().ScaleLatitude(eb.fc)).
		vector(-0.5, eb.windRot, eb.windDiv.Rotate().ScaleLatitude(eb.fc)).
		result()
}

// DKERKEConversion is the conversion from divergent to rotational kinetic
// energy along with its three parts; Total is their sum.
type DKERKEConversion struct {
	Total     *field.Spectrum
	Vertical  *field.Spectrum
	Vorticity *field.Spectrum
	Coriolis  *field.Spectrum
}

func (eb *EnergyBudget) ConversionDKERKE(ctx context.Context) (*DKERKEConversion, error) {
	var c DKERKEConversion
	var err error
	if c.Vertical, err = eb.ConversionDKERKEVertical(ctx); err != nil {
		return nil, err
	}
	if c.Vorticity, err = eb.ConversionDKERKEVorticity(ctx); err != nil {
		return nil, err
	}
	if c.Coriolis, err = eb.ConversionDKERKECoriolis(ctx); err != nil {
		return nil, err
	}
	c.Total = c.Vertical.Add(c.Vorticity).Add(c.Coriolis)
	return &c, nil
}

// CoriolisLinearTransfer returns -(u, f k̂×u).
func (eb *EnergyBudget) CoriolisLinearTransfer(ctx context.Context) (*field.Spectrum, error) {
	return eb.newSpectra(ctx).vector(-1, eb.wind, eb.wind.Rotate().ScaleLatitude(eb.fc)).result()
}

// NonConservativeTerm returns the term J(p) of A&L Eq. A11 that arises
// from the variation of the stability parameter with pressure.
func (eb *EnergyBudget) NonConservativeTerm(ctx context.Context) (*field.Spectrum, error) {
	flux, err := eb.APEVerticalFlux(ctx)
	if err != nil {
		return nil, err
	}

	d := eb.dims
	dlng := make([]float64, d.NSamples())
	for t := range d.NTime {
		lng := make([]float64, d.NLevels)
		for k := range lng {
			lng[k] = math.Log(eb.ganma[d.Sample(t, k)])
		}
		copy(dlng[d.Sample(t, 0):], math.Gradient(lng, eb.pressure))
	}
	return flux.ScaleSamples(dlng).Scale(-1), nil
}

///////////////////////////////////////////////////////////////////////////
// Tendencies

func (eb *EnergyBudget) checkTendency(name string, d field.Dims) error {
	if d != eb.dims {
		return fmt.Errorf("%s tendency has dims %s, expected %s: %w", name, d, eb.dims, field.ErrShapeMismatch)
	}
	return nil
}

// KETendency returns the kinetic energy tendency (u, ∂u/∂t) due to the
// process that produces the wind tendency tend, which must have the
// dims of the packed input fields.
func (eb *EnergyBudget) KETendency(ctx context.Context, tend *field.Vector) (*field.Spectrum, error) {
	if err := eb.checkTendency("wind", tend.Dims()); err != nil {
		return nil, err
	}
	if err := eb.checkTendency("wind", tend.V.Dims); err != nil {
		return nil, err
	}
	if !tend.Masked() {
		var err error
		if tend, err = eb.applyMaskVector(tend); err != nil {
			return nil, err
		}
	}
	return eb.vectorSpectra(ctx, eb.wind, tend)
}

// APETendency returns the available potential energy tendency
// γ(θ', ∂θ'/∂t) due to the process that produces the temperature
// tendency tend.
func (eb *EnergyBudget) APETendency(ctx context.Context, tend *field.Scalar) (*field.Spectrum, error) {
	if err := eb.checkTendency("temperature", tend.Dims); err != nil {
		return nil, err
	}

	// Tendency of the potential temperature perturbation.
	tend = tend.Unweighted()
	tp := tend.SubtractSamples(eb.representativeMean(tend)).ScaleLevels(util.MapSlice(eb.exner, inverse))
	tp, err := eb.applyMask(tp)
	if err != nil {
		return nil, err
	}

	sp, err := eb.scalarSpectra(ctx, eb.thetaPrime, tp)
	if err != nil {
		return nil, err
	}
	return sp.ScaleSamples(eb.ganma), nil
}

func inverse(v float64) float64 { return 1 / v }
