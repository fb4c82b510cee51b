// budget/results.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
	"github.com/mmp/seba/wx"

	"github.com/iancoleman/orderedmap"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrPressureRange = errors.New("invalid pressure range")

// ResultsFilenameSuffix is the conventional suffix for serialized
// results.
const ResultsFilenameSuffix = ".seba.msgpack.zst"

type Metadata struct {
	Name         string `msgpack:"name"`
	LongName     string `msgpack:"long_name"`
	StandardName string `msgpack:"standard_name"`
	Units        string `msgpack:"units"`
}

type Diagnostic struct {
	Meta     Metadata        `msgpack:"meta"`
	Spectrum *field.Spectrum `msgpack:"spectrum"`
}

const (
	unitsEnergy = "m**2 s**-2"
	unitsRate   = "watt / kilogram"
	unitsFlux   = "Pa * watt / kilogram"
)

// diagnosticMetadata describes every diagnostic that Results may hold,
// keyed by its short name.
var diagnosticMetadata = map[string]Metadata{
	"rke": {LongName: "rotational kinetic energy", StandardName: "rotational_kinetic_energy", Units: unitsEnergy},
	"dke": {LongName: "divergent kinetic energy", StandardName: "divergent_kinetic_energy", Units: unitsEnergy},
	"hke": {LongName: "horizontal kinetic energy", StandardName: "horizontal_kinetic_energy", Units: unitsEnergy},
	"vke": {LongName: "vertical kinetic energy per unit mass", StandardName: "vertical_kinetic_energy", Units: unitsEnergy},
	"ape": {LongName: "available potential energy per unit mass", StandardName: "available_potential_energy",
		Units: unitsEnergy},

	"cad": {LongName: "conversion from available potential energy to divergent kinetic energy",
		StandardName: "conversion_ape_dke", Units: unitsRate},
	"cdr_w": {LongName: "conversion from divergent to rotational kinetic energy due to vertical velocity",
		StandardName: "conversion_dke_rke_vertical_velocity", Units: unitsRate},
	"cdr_v": {LongName: "conversion from divergent to rotational kinetic energy due to relative vorticity",
		StandardName: "conversion_dke_rke_vorticity", Units: unitsRate},
	"cdr_c": {LongName: "conversion from divergent to rotational kinetic energy due to the coriolis effect",
		StandardName: "conversion_dke_rke_coriolis", Units: unitsRate},
	"cdr": {LongName: "conversion from divergent to rotational kinetic energy", StandardName: "conversion_dke_rke",
		Units: unitsRate},

	"pi_rke": {LongName: "spectral transfer of rotational kinetic energy", StandardName: "nonlinear_rke_flux",
		Units: unitsRate},
	"pi_dke": {LongName: "spectral transfer of divergent kinetic energy", StandardName: "nonlinear_dke_flux",
		Units: unitsRate},
	"pi_hke": {LongName: "spectral transfer of kinetic energy", StandardName: "nonlinear_hke_flux", Units: unitsRate},
	"pi_ape": {LongName: "spectral transfer of available potential energy", StandardName: "nonlinear_ape_flux",
		Units: unitsRate},
	"lc": {LongName: "coriolis linear transfer", StandardName: "coriolis_transfer", Units: unitsRate},

	"pf_dke": {LongName: "pressure flux", StandardName: "pressure_dke_flux", Units: unitsFlux},
	"tf_dke": {LongName: "vertical turbulent flux of kinetic energy", StandardName: "turbulent_dke_flux",
		Units: unitsFlux},
	"vf_dke": {LongName: "vertical flux of horizontal kinetic energy", StandardName: "vertical_dke_flux",
		Units: unitsFlux},
	"vf_ape": {LongName: "vertical flux of available potential energy", StandardName: "vertical_ape_flux",
		Units: unitsFlux},
	"vfd_dke": {LongName: "vertical flux divergence of horizontal kinetic energy",
		StandardName: "vertical_dke_flux_divergence", Units: unitsRate},
	"vfd_ape": {LongName: "vertical flux divergence of available potential energy",
		StandardName: "vertical_ape_flux_divergence", Units: unitsRate},
}

// Results is an ordered collection of diagnostic spectra along with the
// coordinates needed to interpret them.
type Results struct {
	Names       []string               `msgpack:"names"`
	Diagnostics map[string]*Diagnostic `msgpack:"diagnostics"`

	Degrees      []int        `msgpack:"degrees"`
	Kappa        []float64    `msgpack:"kappa"`
	Pressure     []float64    `msgpack:"pressure"` // surface first
	Layout       field.Layout `msgpack:"layout"`
	MaskedLevels []int        `msgpack:"masked_levels,omitempty"`
	Truncation   int          `msgpack:"truncation"`
	GridType     string       `msgpack:"gridtype"`
	Radius       float64      `msgpack:"radius"`

	// UnstableLevels are the levels where the stability parameter was
	// limited; APE there is not meaningful.
	UnstableLevels []int `msgpack:"unstable_levels,omitempty"`
}

func (eb *EnergyBudget) newResults() *Results {
	return &Results{
		Diagnostics:  make(map[string]*Diagnostic),
		Degrees:      eb.Degrees(),
		Kappa:        eb.Kappa(),
		Pressure:     eb.Pressure(),
		Layout:       eb.layout,
		MaskedLevels: eb.MaskedLevels(),
		Truncation:   eb.tr.Truncation(),
		GridType:     eb.tr.Grid().Type().String(),
		Radius:       eb.tr.Grid().Radius(),

		UnstableLevels: eb.UnstableLevels(),
	}
}

// Add adds the spectrum under the given short name, replacing any
// existing diagnostic of that name. Names without known metadata are
// accepted with just their name set.
func (r *Results) Add(name string, sp *field.Spectrum) {
	meta := diagnosticMetadata[name]
	meta.Name = name
	if _, ok := r.Diagnostics[name]; !ok {
		r.Names = append(r.Names, name)
	}
	r.Diagnostics[name] = &Diagnostic{Meta: meta, Spectrum: sp}
}

func (r *Results) Get(name string) (*Diagnostic, bool) {
	d, ok := r.Diagnostics[name]
	return d, ok
}

// Merge adds all of o's diagnostics to r. Both must describe the same
// degrees and levels.
func (r *Results) Merge(o *Results) error {
	if !slices.Equal(r.Degrees, o.Degrees) || !slices.Equal(r.Pressure, o.Pressure) {
		return fmt.Errorf("merge: results have different degrees or levels: %w", field.ErrShapeMismatch)
	}
	for _, name := range o.Names {
		d := o.Diagnostics[name]
		if _, ok := r.Diagnostics[name]; !ok {
			r.Names = append(r.Names, name)
		}
		r.Diagnostics[name] = d
	}
	return nil
}

// Unpack returns the named spectrum in the input layout: shape [degree,
// sample axes..., level] with the levels in input order.
func (r *Results) Unpack(name string) ([]float64, []int, error) {
	d, ok := r.Diagnostics[name]
	if !ok {
		return nil, nil, fmt.Errorf("%s: no such diagnostic", name)
	}
	return r.Layout.UnpackSpectrum(d.Spectrum)
}

// LevelMean returns the degree-summed value of the named diagnostic,
// averaged over times and over levels that are not entirely below the
// surface.
func (r *Results) LevelMean(name string) (float64, error) {
	d, ok := r.Diagnostics[name]
	if !ok {
		return 0, fmt.Errorf("%s: no such diagnostic", name)
	}
	sp := d.Spectrum
	sums := sp.DegreeSum()
	var sum float64
	var n int
	for s, v := range sums {
		if slices.Contains(r.MaskedLevels, s%sp.NLevels) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// SummaryJSON returns a JSON object with an entry for each diagnostic,
// in the order they were added.
func (r *Results) SummaryJSON() ([]byte, error) {
	summary := orderedmap.New()
	summary.Set("truncation", r.Truncation)
	summary.Set("gridtype", r.GridType)
	if r.Radius > 0 && r.Truncation > 0 {
		// Shortest resolved wavelength, km.
		summary.Set("wavelength", sphere.Wavelength(r.Truncation, r.Radius)/1000)
	}
	summary.Set("levels", len(r.Pressure))
	if len(r.MaskedLevels) > 0 {
		summary.Set("masked_levels", r.MaskedLevels)
	}
	if len(r.UnstableLevels) > 0 {
		summary.Set("unstable_levels", r.UnstableLevels)
	}

	diags := orderedmap.New()
	for _, name := range r.Names {
		mean, err := r.LevelMean(name)
		if err != nil {
			return nil, err
		}
		meta := r.Diagnostics[name].Meta
		e := orderedmap.New()
		e.Set("long_name", meta.LongName)
		e.Set("units", meta.Units)
		e.Set("mean", mean)
		diags.Set(name, e)
	}
	summary.Set("diagnostics", diags)

	return json.MarshalIndent(summary, "", "  ")
}

// LoadResults reads results written by Save.
func LoadResults(r io.Reader) (*Results, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var res Results
	if err := msgpack.NewDecoder(zr).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if res.Diagnostics == nil {
		res.Diagnostics = make(map[string]*Diagnostic)
	}
	for _, name := range res.Names {
		if _, ok := res.Diagnostics[name]; !ok {
			return nil, fmt.Errorf("%s: diagnostic listed but not present", name)
		}
	}
	// Diagnostics missing from Names are kept, after the listed ones.
	for _, name := range util.SortedMapKeys(res.Diagnostics) {
		if !slices.Contains(res.Names, name) {
			res.Names = append(res.Names, name)
		}
	}
	return &res, nil
}

// Save writes the results as zstd-compressed msgpack.
func (r *Results) Save(w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := msgpack.NewEncoder(zw).Encode(r); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Bundles

type namedSpectrum struct {
	name string
	f    func(context.Context) (*field.Spectrum, error)
}

func (eb *EnergyBudget) addAll(ctx context.Context, r *Results, diags []namedSpectrum) error {
	for _, d := range diags {
		if err := ctx.Err(); err != nil {
			return err
		}
		sp, err := util.PhaseValue(ctx, d.name, d.f)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		r.Add(d.name, sp)
		eb.lg.Debug("computed diagnostic", "name", d.name)
	}
	return nil
}

// EnergyDiagnostics returns the kinetic and available potential energy
// spectra.
func (eb *EnergyBudget) EnergyDiagnostics(ctx context.Context) (*Results, error) {
	r := eb.newResults()
	err := eb.addAll(ctx, r, []namedSpectrum{
		{"rke", eb.RotationalKineticEnergy},
		{"dke", eb.DivergentKineticEnergy},
	})
	if err != nil {
		return nil, err
	}
	r.Add("hke", r.Diagnostics["rke"].Spectrum.Add(r.Diagnostics["dke"].Spectrum))

	if err := eb.addAll(ctx, r, []namedSpectrum{
		{"vke", eb.VerticalKineticEnergy},
		{"ape", eb.AvailablePotentialEnergy},
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// NonlinearEnergyFluxes returns the conversions, the spectral transfers
// and the vertical fluxes of energy and their divergences. The transfers
// are per degree; CumulativeFlux gives the fluxes across each degree.
func (eb *EnergyBudget) NonlinearEnergyFluxes(ctx context.Context) (*Results, error) {
	r := eb.newResults()
	if err := eb.addAll(ctx, r, []namedSpectrum{{"cad", eb.ConversionAPEDKE}}); err != nil {
		return nil, err
	}

	cdr, err := eb.ConversionDKERKE(ctx)
	if err != nil {
		return nil, fmt.Errorf("cdr: %w", err)
	}
	r.Add("cdr_w", cdr.Vertical)
	r.Add("cdr_v", cdr.Vorticity)
	r.Add("cdr_c", cdr.Coriolis)
	r.Add("cdr", cdr.Total)

	if err := eb.addAll(ctx, r, []namedSpectrum{
		{"pi_rke", eb.RKENonlinearTransfer},
		{"pi_dke", eb.DKENonlinearTransfer},
	}); err != nil {
		return nil, err
	}
	r.Add("pi_hke", r.Diagnostics["pi_rke"].Spectrum.Add(r.Diagnostics["pi_dke"].Spectrum))

	if err := eb.addAll(ctx, r, []namedSpectrum{
		{"pi_ape", eb.APENonlinearTransfer},
		{"lc", eb.CoriolisLinearTransfer},
		{"pf_dke", eb.PressureFlux},
		{"tf_dke", eb.TurbulentFlux},
	}); err != nil {
		return nil, err
	}

	vf := r.Diagnostics["pf_dke"].Spectrum.Add(r.Diagnostics["tf_dke"].Spectrum)
	r.Add("vf_dke", vf)
	if err := eb.addAll(ctx, r, []namedSpectrum{{"vf_ape", eb.APEVerticalFlux}}); err != nil {
		return nil, err
	}
	r.Add("vfd_dke", vf.VerticalGradient(eb.pressure))
	r.Add("vfd_ape", r.Diagnostics["vf_ape"].Spectrum.VerticalGradient(eb.pressure))
	return r, nil
}

///////////////////////////////////////////////////////////////////////////
// Post-processing

// CumulativeFlux returns the flux across each degree l, Π(l) = Σ_{n≥l}
// T(n), for the spectral transfer T.
func CumulativeFlux(sp *field.Spectrum) *field.Spectrum {
	return sp.Cumulative()
}

// VerticalIntegration returns the mass-weighted integral (1/g)∫X dp of
// the spectrum over the levels with pressure strictly between pmin and
// pmax. p gives the pressure of each level. The result has a single
// level.
func VerticalIntegration(sp *field.Spectrum, p []float64, pmin, pmax float64) (*field.Spectrum, error) {
	if len(p) != sp.NLevels {
		return nil, fmt.Errorf("%d pressure levels for %d spectrum levels: %w", len(p), sp.NLevels,
			field.ErrShapeMismatch)
	}
	if pmin > pmax {
		pmin, pmax = pmax, pmin
	}

	levels := make([]int, len(p))
	for k := range levels {
		levels[k] = k
	}
	levels = util.FilterSlice(levels, func(k int) bool { return p[k] > pmin && p[k] < pmax })
	if len(levels) < 2 {
		return nil, fmt.Errorf("[%g, %g]: %d levels inside range: %w", pmin, pmax, len(levels), ErrPressureRange)
	}
	slices.SortFunc(levels, func(a, b int) int { return int(math.Sign(p[a] - p[b])) })

	x := make([]float64, len(levels))
	for i, k := range levels {
		x[i] = p[k]
	}

	r := field.NewSpectrum(sp.NDegrees, sp.NTime, 1)
	f := make([]float64, len(levels))
	for t := range sp.NTime {
		dst := r.Sample(t)
		for n := range sp.NDegrees {
			for i, k := range levels {
				f[i] = sp.At(n, t, k)
			}
			dst[n] = math.Integrate(x, f) / wx.G
		}
	}
	return r, nil
}
