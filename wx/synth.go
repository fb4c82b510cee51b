// wx/synth.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"context"
	"fmt"
	"slices"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/log"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
)

// Synthetic atmospheres, used for testing and for exercising the budget
// without real model output.
const (
	SynthRest = "rest" // no motion, horizontally uniform temperature
	SynthMode = "mode" // rotational wind from a single spherical harmonic streamfunction
	SynthJet  = "jet"  // zonal jets over an isolated mountain
)

var SynthKinds = []string{SynthRest, SynthMode, SynthJet}

// SynthOptions specifies a synthetic atmosphere. Zero values select
// defaults.
type SynthOptions struct {
	Kind     string
	NLat     int
	NLon     int
	NTime    int
	GridType sphere.GridType
	// Pressure levels, surface first; the default is 1000-200 hPa.
	Pressure []float64

	// Amplitude is the streamfunction amplitude (m²/s) for SynthMode and
	// the peak wind speed (m/s) for SynthJet.
	Amplitude float64
	// Degree and Order select the spherical harmonic for SynthMode.
	Degree, Order int
}

func (o *SynthOptions) setDefaults() {
	if o.NLat == 0 {
		o.NLat = 32
	}
	if o.NLon == 0 {
		o.NLon = 2 * o.NLat
	}
	if o.NTime == 0 {
		o.NTime = 1
	}
	if o.Pressure == nil {
		o.Pressure = []float64{100000, 85000, 70000, 50000, 30000, 20000}
	}
	if o.Amplitude == 0 {
		o.Amplitude = util.Select(o.Kind == SynthJet, 30.0, 1e7)
	}
	if o.Kind == SynthMode && o.Degree == 0 {
		o.Degree = 2
	}
}

// StandardTemperature returns the temperature of the standard
// troposphere at pressure p, in K.
func StandardTemperature(p float64) float64 {
	const lapse = 0.0065 // K/m
	return 288.15 * math.Pow(p/101325, Rd*lapse/G)
}

// Synthesize returns a synthetic field set with axes "tzyx".
func Synthesize(ctx context.Context, o SynthOptions, lg *log.Logger) (*FieldSet, error) {
	o.setDefaults()
	if !slices.Contains(SynthKinds, o.Kind) {
		return nil, fmt.Errorf("%q: unknown synthetic atmosphere: %w", o.Kind, ErrInvalidFieldSet)
	}

	g, err := sphere.NewGrid(o.NLat, o.NLon, o.GridType, 0)
	if err != nil {
		return nil, err
	}
	d := field.Dims{NLat: o.NLat, NLon: o.NLon, NTime: o.NTime, NLevels: len(o.Pressure)}
	lats, lons := g.Latitudes(), g.Longitudes()

	u, v := field.NewScalar(d), field.NewScalar(d)
	temp := field.NewScalar(d)
	for s := range d.NSamples() {
		tk := StandardTemperature(o.Pressure[d.Level(s)])
		for i := range temp.SampleData(s) {
			temp.SampleData(s)[i] = tk
		}
	}

	fs := &FieldSet{
		Axes:     "tzyx",
		Shape:    []int{d.NTime, d.NLevels, d.NLat, d.NLon},
		Pressure: slices.Clone(o.Pressure),
		Latitude: lats,
		GridType: o.GridType.String(),
	}

	switch o.Kind {
	case SynthMode:
		if o.Order > o.Degree {
			return nil, fmt.Errorf("order %d exceeds degree %d: %w", o.Order, o.Degree, ErrInvalidFieldSet)
		}
		tr, err := sphere.NewTransform(g, -1, 1, lg)
		if err != nil {
			return nil, err
		}
		ix := tr.Index()
		if o.Degree > ix.Truncation() {
			return nil, fmt.Errorf("degree %d exceeds truncation %d: %w", o.Degree, ix.Truncation(), ErrInvalidFieldSet)
		}
		// ζ = ∇²ψ for a single streamfunction mode.
		n := float64(o.Degree)
		vrt := field.NewCoeffs(ix.NCoeffs(), d.NTime, d.NLevels)
		div := field.NewCoeffs(ix.NCoeffs(), d.NTime, d.NLevels)
		for s := range vrt.NSamples() {
			vrt.Sample(s)[ix.Position(o.Order, o.Degree)] = complex(-n*(n+1)/math.Sqr(g.Radius())*o.Amplitude, 0)
		}
		wind, err := tr.VectorFromVorticityDivergence(ctx, vrt, div)
		if err != nil {
			return nil, err
		}
		u, v = wind.U, wind.V

	case SynthJet:
		// Jets at 45° in each hemisphere strengthening with height, over a
		// Gaussian mountain centered at 45N 90E.
		for s := range d.NSamples() {
			p := o.Pressure[d.Level(s)]
			shear := math.Clamp(1-p/P0, 0, 1) + 0.25
			us := u.SampleData(s)
			for i, lat := range lats {
				phi := math.Radians(lat)
				for j := range lons {
					us[i*d.NLon+j] = o.Amplitude * shear * math.Sqr(math.Sin(2*phi))
				}
			}
		}

		ps := make([]float64, d.Plane())
		zs := make([]float64, d.Plane())
		for i, lat := range lats {
			for j, lon := range lons {
				r2 := (math.Sqr(lat-45) + math.Sqr(lon-90)) / math.Sqr(15.0)
				zs[i*d.NLon+j] = 4000 * math.Exp(-r2)
				ps[i*d.NLon+j] = 101325 * math.Exp(-G*zs[i*d.NLon+j]/(Rd*StandardTemperature(101325)))
			}
		}
		fs.SurfacePressure, fs.SurfaceGeopotentialHeight = ps, zs
	}

	fs.U, fs.V = u.Data, v.Data
	fs.Omega = make([]float64, d.Len())
	fs.Temperature = temp.Data
	return fs, nil
}
