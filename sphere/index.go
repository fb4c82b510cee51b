// sphere/index.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sphere

import (
	"fmt"
	"slices"
)

// Index describes the layout of spherical harmonic coefficients under a
// triangular truncation T: all (m, n) with 0 ≤ m ≤ n ≤ T, stored with the
// zonal wavenumber m varying slowest.
type Index struct {
	ntrunc int
	order  []int // zonal wavenumber m of each coefficient
	degree []int // total wavenumber n of each coefficient
}

func NewIndex(ntrunc int) (*Index, error) {
	if ntrunc < 0 {
		return nil, fmt.Errorf("truncation %d: %w", ntrunc, ErrTruncation)
	}
	nc := (ntrunc + 1) * (ntrunc + 2) / 2
	ix := &Index{ntrunc: ntrunc, order: make([]int, 0, nc), degree: make([]int, 0, nc)}
	for m := 0; m <= ntrunc; m++ {
		for n := m; n <= ntrunc; n++ {
			ix.order = append(ix.order, m)
			ix.degree = append(ix.degree, n)
		}
	}
	return ix, nil
}

func (ix *Index) Truncation() int { return ix.ntrunc }
func (ix *Index) NCoeffs() int    { return len(ix.order) }
func (ix *Index) NDegrees() int   { return ix.ntrunc + 1 }

// Order and Degree return the zonal and total wavenumbers of coefficient i.
func (ix *Index) Order(i int) int  { return ix.order[i] }
func (ix *Index) Degree(i int) int { return ix.degree[i] }

// ZonalWavenumbers and TotalWavenumbers return m and n for every
// coefficient.
func (ix *Index) ZonalWavenumbers() []int { return slices.Clone(ix.order) }
func (ix *Index) TotalWavenumbers() []int { return slices.Clone(ix.degree) }

// Degrees returns 0, 1, ..., T.
func (ix *Index) Degrees() []int {
	d := make([]int, ix.NDegrees())
	for i := range d {
		d[i] = i
	}
	return d
}

// Position returns the coefficient index of (m, n).
func (ix *Index) Position(m, n int) int {
	return ix.offset(m) + n - m
}

// offset returns the index of the first coefficient with order m; the
// coefficients for n = m...T follow contiguously.
func (ix *Index) offset(m int) int {
	return m*(ix.ntrunc+1) - m*(m-1)/2
}
