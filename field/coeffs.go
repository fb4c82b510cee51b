// field/coeffs.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package field

import (
	"fmt"

	"github.com/mmp/seba/util"
)

// Coeffs holds complex spherical harmonic coefficients for each sample;
// Data[s*NCoeffs+i] is coefficient i of sample s.
type Coeffs struct {
	NCoeffs, NTime, NLevels int
	Data                    []complex128
}

func NewCoeffs(ncoeffs, ntime, nlevels int) *Coeffs {
	return &Coeffs{
		NCoeffs: ncoeffs,
		NTime:   ntime,
		NLevels: nlevels,
		Data:    make([]complex128, ncoeffs*ntime*nlevels),
	}
}

func (c *Coeffs) NSamples() int { return c.NTime * c.NLevels }

// Sample returns the coefficients of sample s; it aliases c.Data.
func (c *Coeffs) Sample(s int) []complex128 {
	return c.Data[s*c.NCoeffs : (s+1)*c.NCoeffs]
}

func (c *Coeffs) SameShape(o *Coeffs) bool {
	return c.NCoeffs == o.NCoeffs && c.NTime == o.NTime && c.NLevels == o.NLevels
}

func (c *Coeffs) Clone() *Coeffs {
	return &Coeffs{NCoeffs: c.NCoeffs, NTime: c.NTime, NLevels: c.NLevels, Data: util.DuplicateSlice(c.Data)}
}

func ConcatCoeffs(ncoeffs, ntime, nlevels int, chunks []*Coeffs) (*Coeffs, error) {
	r := &Coeffs{NCoeffs: ncoeffs, NTime: ntime, NLevels: nlevels,
		Data: make([]complex128, 0, ncoeffs*ntime*nlevels)}
	for _, ch := range chunks {
		if ch.NCoeffs != ncoeffs {
			return nil, fmt.Errorf("concat: chunk has %d coefficients, expected %d: %w", ch.NCoeffs, ncoeffs, ErrShapeMismatch)
		}
		r.Data = append(r.Data, ch.Data...)
	}
	if len(r.Data) != ncoeffs*ntime*nlevels {
		return nil, fmt.Errorf("concat: got %d coefficients, expected %d: %w", len(r.Data), ncoeffs*ntime*nlevels, ErrShapeMismatch)
	}
	return r, nil
}
