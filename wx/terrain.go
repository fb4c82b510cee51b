// wx/terrain.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"context"
	"fmt"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/util"
)

// Scale of the terrain mask smoothing: features finer than spherical
// harmonic degree 80 (roughly 500 km) are removed.
const terrainCutoffDegree = 80

// TerrainMask returns the terrain mask β for fields with dims d on
// pressure levels p (surface first). β is 1 where p < ps and 0 where the
// level lies below the surface. ps holds the surface pressure either for
// a single horizontal plane, in which case it applies at all times, or
// for every time. If smooth is set, β is low-pass filtered with a Lanczos
// kernel so that it varies gradually across topography; the result is
// always in [0, 1].
func TerrainMask(ctx context.Context, d field.Dims, p, ps []float64, smooth bool, jobs int) (*field.Scalar, error) {
	plane := d.Plane()
	if len(p) != d.NLevels {
		return nil, fmt.Errorf("terrain mask: %d pressure levels for %s: %w", len(p), d, field.ErrShapeMismatch)
	}
	if len(ps) != plane && len(ps) != plane*d.NTime {
		return nil, fmt.Errorf("terrain mask: %d surface pressure values for %s: %w", len(ps), d,
			field.ErrShapeMismatch)
	}

	beta := field.NewScalar(d)
	for s := range d.NSamples() {
		t, k := s/d.NLevels, d.Level(s)
		sfc := ps
		if len(ps) > plane {
			sfc = ps[t*plane : (t+1)*plane]
		}
		b := beta.SampleData(s)
		for ij := range b {
			if p[k] < sfc[ij] {
				b[ij] = 1
			}
		}
	}
	if !smooth {
		return beta, nil
	}

	fc := cutoffFrequency(d.NLon)
	kernel := lanczosKernel(fc, int(2/fc))

	samples := make([]int, d.NSamples())
	for i := range samples {
		samples[i] = i
	}
	_, err := util.ParallelMap(ctx, samples, util.EvenWorkers(jobs, len(samples)),
		func(ctx context.Context, s int) (struct{}, error) {
			b := beta.SampleData(s)
			copy(b, convolvePlane(b, d.NLat, d.NLon, kernel))
			for i, v := range b {
				b[i] = util.Select(math.IsNaN(v), 1, math.Clamp(v, 0, 1))
			}
			return struct{}{}, nil
		})
	if err != nil {
		return nil, err
	}
	return beta, nil
}

// cutoffFrequency returns the smoothing cutoff frequency, normalized by
// the sampling frequency of a grid with nlon longitudes.
func cutoffFrequency(nlon int) float64 {
	deg := func(n float64) float64 { return math.Sqrt(n * (n + 1)) }
	return deg(terrainCutoffDegree) / deg(float64(nlon))
}

// kernel2D is a square convolution kernel with side 2n+1.
type kernel2D struct {
	n int
	w []float64
}

func (k kernel2D) at(i, j int) float64 {
	side := 2*k.n + 1
	return k.w[(i+k.n)*side+j+k.n]
}

// lanczosKernel returns a circular low-pass Lanczos kernel with cutoff
// frequency fc and half-width n, normalized to sum to 1.
func lanczosKernel(fc float64, n int) kernel2D {
	n = max(n, 1)
	side := 2*n + 1
	k := kernel2D{n: n, w: make([]float64, side*side)}

	var sum float64
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			z := fc * math.Sqrt(float64(i*i+j*j))
			w := fc * math.Jinc(z) * math.Sinc(float64(i)/float64(n)) * math.Sinc(float64(j)/float64(n))
			k.w[(i+n)*side+j+n] = w
			sum += w
		}
	}
	for i := range k.w {
		k.w[i] /= sum
	}
	return k
}

// convolvePlane convolves one nlat×nlon plane with the kernel. Longitude
// is periodic; in latitude the edge rows are extended.
func convolvePlane(f []float64, nlat, nlon int, k kernel2D) []float64 {
	out := make([]float64, len(f))
	for i := range nlat {
		for j := range nlon {
			var sum float64
			for di := -k.n; di <= k.n; di++ {
				ii := math.Clamp(i-di, 0, nlat-1)
				row := f[ii*nlon : (ii+1)*nlon]
				for dj := -k.n; dj <= k.n; dj++ {
					jj := ((j-dj)%nlon + nlon) % nlon
					sum += k.at(di, dj) * row[jj]
				}
			}
			out[i*nlon+j] = sum
		}
	}
	return out
}
