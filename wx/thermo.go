// wx/thermo.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/util"
)

// Exner returns the Exner function (p/p0)^(Rd/cp) for pressure p in Pa.
func Exner(p float64) float64 {
	return math.Pow(p/P0, Kappa)
}

// PotentialTemperature returns the potential temperature of air at
// temperature t (K) and pressure p (Pa).
func PotentialTemperature(t, p float64) float64 {
	return t / Exner(p)
}

// SpecificVolume returns Rd T/p, in m³/kg.
func SpecificVolume(t, p float64) float64 {
	return Rd * t / p
}

// CoriolisParameter returns 2Ω sin φ for latitude lat in degrees.
func CoriolisParameter(lat float64) float64 {
	return 2 * Omega * math.Sin(math.Radians(lat))
}

// VerticalVelocity converts the pressure vertical velocity omega (Pa/s)
// to a height vertical velocity (m/s) under hydrostatic balance.
func VerticalVelocity(omega, t, p float64) float64 {
	return -omega * SpecificVolume(t, p) / G
}

// StabilityParameter returns the static stability parameter
// γ = -Rd Π / (dθ̄/d ln p) at each pressure level, given the
// representative potential temperature profile thetaMean. Neutral or
// unstable layers would give a non-positive or infinite γ, so -dθ̄/d ln p
// is limited to be at least Epsilon; the indices of the levels where the
// limit was applied are returned as well.
func StabilityParameter(thetaMean, p []float64) (g []float64, limited []int) {
	lnp := util.MapSlice(p, math.Log)
	dtheta := math.Gradient(thetaMean, lnp)
	g = make([]float64, len(p))
	for k := range g {
		// dθ/dln p is negative in a stable atmosphere.
		d := dtheta[k]
		if d > -Epsilon {
			d = -Epsilon
			limited = append(limited, k)
		}
		g[k] = -Rd * Exner(p[k]) / d
	}
	return
}

// Geopotential integrates the hypsometric equation upward through each
// column of temperature t on pressure levels p (surface-first), starting
// from the surface pressure ps and surface geopotential height zs (m) at
// each horizontal point. Either may be nil, in which case the surface is
// taken to be at p[0] and at zero height. Levels below the surface are
// assigned the surface geopotential.
func Geopotential(t *field.Scalar, p, ps, zs []float64) *field.Scalar {
	phi := field.NewScalar(t.Dims)
	plane := t.Plane()
	for tt := range t.NTime {
		for ij := range plane {
			psfc := p[0]
			if ps != nil {
				psfc = ps[ij]
			}
			z := 0.0
			if zs != nil {
				z = zs[ij]
			}

			pprev, tprev := psfc, math.NaN()
			for k := range t.NLevels {
				s := t.Sample(tt, k)
				tk := t.Data[s*plane+ij]
				if p[k] >= psfc {
					phi.Data[s*plane+ij] = G * z
					continue
				}
				tmean := tk
				if !math.IsNaN(tprev) {
					tmean = (tk + tprev) / 2
				}
				z += Rd / G * tmean * math.Log(pprev/p[k])
				phi.Data[s*plane+ij] = G * z
				pprev, tprev = p[k], tk
			}
		}
	}
	return phi
}
