// sphere/legendre.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sphere

import (
	"time"

	"github.com/mmp/seba/math"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// legendreTable stores, for each latitude and each coefficient (m, n), the
// normalized associated Legendre function P̄_nm(μ) along with P̄_nm/cos φ
// and cos φ·dP̄_nm/dμ. The latter two are the factors that appear in
// derivatives with respect to longitude and latitude; they are computed by
// recurrence so that they are finite at the poles.
//
// The functions are normalized so that ∫ P̄_nm² dμ = 1 over [-1, 1].
type legendreTable struct {
	ncoeffs int
	p       []float64 // P̄
	pcos    []float64 // P̄/cos φ, zero for m = 0
	dp      []float64 // cos φ dP̄/dμ
}

type legendreKey struct {
	gridType GridType
	nlat     int
	ntrunc   int
}

var legendreCache = expirable.NewLRU[legendreKey, *legendreTable](16, nil, 2*time.Hour)

func getLegendreTable(g *Grid, ix *Index) *legendreTable {
	key := legendreKey{gridType: g.gridType, nlat: g.nlat, ntrunc: ix.ntrunc}
	if t, ok := legendreCache.Get(key); ok {
		return t
	}
	t := computeLegendreTable(g, ix)
	legendreCache.Add(key, t)
	return t
}

func computeLegendreTable(g *Grid, ix *Index) *legendreTable {
	T, nc := ix.ntrunc, ix.NCoeffs()
	t := &legendreTable{
		ncoeffs: nc,
		p:       make([]float64, g.nlat*nc),
		pcos:    make([]float64, g.nlat*nc),
		dp:      make([]float64, g.nlat*nc),
	}

	for i := range g.nlat {
		mu, cosphi := g.mu[i], g.coslat[i]
		p := t.p[i*nc : (i+1)*nc]
		pc := t.pcos[i*nc : (i+1)*nc]
		dp := t.dp[i*nc : (i+1)*nc]

		// pmm tracks P̄_mm as m increases.
		pmm := 1 / math.Sqrt(2)
		for m := 0; m <= T; m++ {
			o := ix.offset(m)
			fm := float64(m)

			// q is the function the n-recurrence is run on: P̄ for m = 0,
			// P̄/cos φ otherwise. Both satisfy the same recurrence in n.
			var q0 float64
			if m == 0 {
				q0 = pmm
			} else {
				q0 = math.Sqrt((2*fm+1)/(2*fm)) * pmm
				pmm = q0 * cosphi
			}

			q := pc
			if m == 0 {
				q = p
			}
			q[o] = q0
			if m < T {
				q[o+1] = math.Sqrt(2*fm+3) * mu * q0
			}
			for n := m + 2; n <= T; n++ {
				fn := float64(n)
				a := math.Sqrt((4*fn*fn - 1) / (fn*fn - fm*fm))
				b := math.Sqrt(((fn-1)*(fn-1) - fm*fm) / (4*(fn-1)*(fn-1) - 1))
				q[o+n-m] = a * (mu*q[o+n-m-1] - b*q[o+n-m-2])
			}

			if m > 0 {
				for j := 0; j <= T-m; j++ {
					p[o+j] = pc[o+j] * cosphi
				}
			}

			// (1-μ²) dP̄_nm/dμ = -nμ P̄_nm + c_nm P̄_{n-1,m}; dividing by
			// cos φ gives cos φ dP̄/dμ.
			for n := m; n <= T; n++ {
				fn := float64(n)
				c := math.Sqrt((fn*fn - fm*fm) * (2*fn + 1) / (2*fn - 1))
				j := o + n - m
				if m > 0 {
					d := -fn * mu * pc[j]
					if n > m {
						d += c * pc[j-1]
					}
					dp[j] = d
				} else if cosphi > 0 {
					d := -fn * mu * p[j]
					if n > 0 {
						d += c * p[j-1]
					}
					dp[j] = d / cosphi
				}
			}
		}
	}
	return t
}
