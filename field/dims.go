// field/dims.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package field provides the packed array containers used throughout the
// budget computation. Grid-point fields are stored sample-major: each
// sample is one nlat×nlon horizontal plane, and sample s corresponds to
// time index s/NLevels and level s%NLevels.
package field

import (
	"errors"
	"fmt"

	"github.com/mmp/seba/util"
)

var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidLayout = errors.New("invalid layout")
)

// Dims is the packed shape of a grid-point field.
type Dims struct {
	NLat, NLon, NTime, NLevels int
}

func (d Dims) Plane() int    { return d.NLat * d.NLon }
func (d Dims) NSamples() int { return d.NTime * d.NLevels }
func (d Dims) Len() int      { return d.Plane() * d.NSamples() }

// Sample returns the sample index for time t and level k.
func (d Dims) Sample(t, k int) int { return t*d.NLevels + k }

// Level returns the level of sample s.
func (d Dims) Level(s int) int { return s % d.NLevels }

func (d Dims) String() string {
	return fmt.Sprintf("[lat %d, lon %d, time %d, level %d]", d.NLat, d.NLon, d.NTime, d.NLevels)
}

func (d Dims) check(name string, n int) error {
	if n != d.Len() {
		return fmt.Errorf("%s: expected %d values for %s, got %d: %w", name, d.Len(), d, n, ErrShapeMismatch)
	}
	return nil
}

// CheckSame returns an error unless a and b have identical dims.
func CheckSame(name string, a, b Dims) error {
	if a != b {
		return fmt.Errorf("%s: expected %s, got %s: %w", name, a, b, ErrShapeMismatch)
	}
	return nil
}

// chunkDims returns the dims of a chunk of the sample axis; chunks are
// flat runs of samples and so are described as single-level fields.
func (d Dims) chunkDims(c util.Chunk) Dims {
	return Dims{NLat: d.NLat, NLon: d.NLon, NTime: c.Len(), NLevels: 1}
}
