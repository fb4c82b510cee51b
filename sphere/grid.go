// sphere/grid.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sphere

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mmp/seba/math"
	"github.com/mmp/seba/util"
)

// EarthRadius is the default sphere radius, in meters.
const EarthRadius = 6371200.0

var (
	ErrInvalidGrid = errors.New("invalid grid")
	ErrTruncation  = errors.New("invalid truncation")
)

type GridType int

const (
	// Gaussian grids put latitudes at the Gauss-Legendre nodes.
	Gaussian GridType = iota
	// Regular grids have equally spaced latitudes that include both
	// poles.
	Regular
)

func (g GridType) String() string {
	switch g {
	case Gaussian:
		return "gaussian"
	case Regular:
		return "regular"
	default:
		return fmt.Sprintf("GridType(%d)", int(g))
	}
}

func ParseGridType(s string) (GridType, error) {
	switch strings.ToLower(s) {
	case "gaussian":
		return Gaussian, nil
	case "regular":
		return Regular, nil
	default:
		return 0, fmt.Errorf("%q: unknown grid type: %w", s, ErrInvalidGrid)
	}
}

// Grid is a global latitude-longitude grid. It cannot be modified after
// it is created; the accessors return copies.
type Grid struct {
	nlat, nlon int
	gridType   GridType
	radius     float64

	// Latitudes, in degrees, run from north to south. mu is the sine of
	// latitude and coslat its cosine; weights are the quadrature weights,
	// which sum to 2.
	lats, mu, coslat, weights []float64
}

// NewGrid returns the grid with the given number of latitudes and
// longitudes. If radius is zero, EarthRadius is used.
func NewGrid(nlat, nlon int, gt GridType, radius float64) (*Grid, error) {
	if radius == 0 {
		radius = EarthRadius
	}
	switch {
	case radius < 0:
		return nil, fmt.Errorf("radius %g: must be positive: %w", radius, ErrInvalidGrid)
	case nlon < 4 || nlon%2 != 0:
		return nil, fmt.Errorf("%d longitudes: must be even and at least 4: %w", nlon, ErrInvalidGrid)
	case gt == Gaussian && nlat < 2:
		return nil, fmt.Errorf("%d latitudes: gaussian grids need at least 2: %w", nlat, ErrInvalidGrid)
	case gt == Regular && nlat < 3:
		return nil, fmt.Errorf("%d latitudes: regular grids need at least 3: %w", nlat, ErrInvalidGrid)
	case gt != Gaussian && gt != Regular:
		return nil, fmt.Errorf("%s: %w", gt, ErrInvalidGrid)
	}

	g := &Grid{nlat: nlat, nlon: nlon, gridType: gt, radius: radius}
	if gt == Gaussian {
		g.mu, g.weights = gaussianNodes(nlat)
		g.lats = util.MapSlice(g.mu, func(mu float64) float64 { return math.Degrees(math.SafeASin(mu)) })
	} else {
		g.lats, g.weights = clenshawCurtisNodes(nlat)
		g.mu = util.MapSlice(g.lats, func(lat float64) float64 { return math.Sin(math.Radians(lat)) })
	}
	g.coslat = util.MapSlice(g.mu, func(mu float64) float64 { return math.Sqrt(max(0, 1-mu*mu)) })
	return g, nil
}

func (g *Grid) NLat() int       { return g.nlat }
func (g *Grid) NLon() int       { return g.nlon }
func (g *Grid) Type() GridType  { return g.gridType }
func (g *Grid) Radius() float64 { return g.radius }

// Latitudes returns the grid latitudes in degrees, north to south.
func (g *Grid) Latitudes() []float64 { return slices.Clone(g.lats) }

// Longitudes returns the grid longitudes in degrees, starting at 0.
func (g *Grid) Longitudes() []float64 {
	lon := make([]float64, g.nlon)
	for j := range lon {
		lon[j] = 360 * float64(j) / float64(g.nlon)
	}
	return lon
}

// Weights returns the latitude quadrature weights; they sum to 2 and are
// used both for the transforms and for area-weighted averages.
func (g *Grid) Weights() []float64 { return slices.Clone(g.weights) }

// SinLatitudes returns sin(φ) at each latitude.
func (g *Grid) SinLatitudes() []float64 { return slices.Clone(g.mu) }

func (g *Grid) String() string {
	return fmt.Sprintf("%s %dx%d", g.gridType, g.nlat, g.nlon)
}

// gaussianNodes returns the Gauss-Legendre nodes, in decreasing order,
// and their weights.
func gaussianNodes(n int) (x, w []float64) {
	x, w = make([]float64, n), make([]float64, n)
	for i := range (n + 1) / 2 {
		// Initial guess from the asymptotic approximation, refined by
		// Newton iteration on P_n.
		z := math.Cos(math.Pi * (float64(i) + 0.75) / (float64(n) + 0.5))
		var dp float64
		for range 100 {
			var p float64
			p, dp = math.Legendre(n, z)
			dz := p / dp
			z -= dz
			if math.Abs(dz) < 1e-16 {
				break
			}
		}
		_, dp = math.Legendre(n, z)
		x[i], x[n-1-i] = z, -z
		w[i] = 2 / ((1 - z*z) * dp * dp)
		w[n-1-i] = w[i]
	}
	if n%2 == 1 {
		x[n/2] = 0
	}
	return
}

// clenshawCurtisNodes returns equally spaced latitudes from 90 to -90,
// inclusive, along with Clenshaw-Curtis quadrature weights in sin(φ).
func clenshawCurtisNodes(nlat int) (lats, w []float64) {
	n := nlat - 1
	lats, w = math.Linspace(90, -90, nlat), make([]float64, nlat)
	for k := range nlat {
		theta := math.Pi * float64(k) / float64(n)

		sum := 1.0
		for j := 1; j <= n/2; j++ {
			b := util.Select(2*j == n, 1.0, 2.0)
			sum -= b * math.Cos(2*float64(j)*theta) / float64(4*j*j-1)
		}
		c := util.Select(k == 0 || k == n, 1.0, 2.0)
		w[k] = c * sum / float64(n)
	}
	return
}

// InferGridType determines whether the given latitudes, in degrees and in
// either order, are Gaussian or regular.
func InferGridType(lats []float64) (GridType, error) {
	n := len(lats)
	if n < 2 {
		return 0, fmt.Errorf("%d latitudes: %w", n, ErrInvalidGrid)
	}
	sorted := slices.Clone(lats)
	slices.Sort(sorted)
	slices.Reverse(sorted)

	matches := func(ref []float64) bool {
		for i := range ref {
			if math.Abs(ref[i]-sorted[i]) > 1e-3 {
				return false
			}
		}
		return true
	}

	if n >= 3 {
		if reg, _ := clenshawCurtisNodes(n); matches(reg) {
			return Regular, nil
		}
	}
	mu, _ := gaussianNodes(n)
	if matches(util.MapSlice(mu, func(mu float64) float64 { return math.Degrees(math.SafeASin(mu)) })) {
		return Gaussian, nil
	}
	return 0, fmt.Errorf("latitudes are neither gaussian nor regular: %w", ErrInvalidGrid)
}
