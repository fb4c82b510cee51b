// budget/config.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package budget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmp/seba/log"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// MeanMode selects how the representative mean of a quantity on a
// pressure level is computed.
type MeanMode int

const (
	// MeanGlobal averages over the whole sphere, including points below
	// the surface.
	MeanGlobal MeanMode = iota
	// MeanMasked weights the average by the terrain mask, so that only
	// points above the surface contribute.
	MeanMasked
)

func (m MeanMode) String() string {
	switch m {
	case MeanGlobal:
		return "global"
	case MeanMasked:
		return "masked"
	default:
		return fmt.Sprintf("MeanMode(%d)", int(m))
	}
}

func ParseMeanMode(s string) (MeanMode, error) {
	switch strings.ToLower(s) {
	case "global":
		return MeanGlobal, nil
	case "masked":
		return MeanMasked, nil
	default:
		return 0, fmt.Errorf("%q: unknown representative mean: %w", s, ErrInvalidConfig)
	}
}

// Config controls an energy budget computation. DefaultConfig returns
// the defaults; note that the zero value requests truncation zero.
type Config struct {
	// Truncation is the triangular truncation of the spectral
	// transforms; -1 selects the largest the grid supports.
	Truncation int
	// GridType overrides the grid type of the input field set when it is
	// non-empty.
	GridType string
	// Radius of the sphere in meters; zero selects sphere.EarthRadius.
	Radius float64
	// Jobs is the number of workers for the transforms; zero selects the
	// number of logical CPUs.
	Jobs int

	// SmoothTerrain applies a low-pass filter to the terrain mask.
	SmoothTerrain bool
	MeanMode      MeanMode
	// VerticalTransport includes the vertical transport terms in the
	// nonlinear transfers. They cancel when summed over all
	// wavenumbers but not degree by degree.
	VerticalTransport bool

	Logger *log.Logger
}

// DefaultConfig returns the configuration used when nothing is
// overridden.
func DefaultConfig() Config {
	return Config{Truncation: -1}
}

// Validate checks the configuration and returns an error describing
// every problem found.
func (c *Config) Validate() error {
	var e util.ErrorLogger
	e.Push("config")
	defer e.Pop()

	if c.Truncation < -1 {
		e.ErrorString("truncation %d: must be non-negative, or -1 for the default", c.Truncation)
	}
	if c.Radius < 0 {
		e.ErrorString("radius %g: must be positive", c.Radius)
	}
	if c.Jobs < 0 {
		e.ErrorString("jobs %d: must be non-negative", c.Jobs)
	}
	if c.GridType != "" {
		if _, err := sphere.ParseGridType(c.GridType); err != nil {
			e.Error(err)
		}
	}
	if c.MeanMode != MeanGlobal && c.MeanMode != MeanMasked {
		e.ErrorString("%s: unknown representative mean", c.MeanMode)
	}
	return e.Err(ErrInvalidConfig)
}

func (c *Config) jobs() int {
	if c.Jobs == 0 {
		return util.DefaultJobs()
	}
	return c.Jobs
}

func (c *Config) truncation() int {
	return max(c.Truncation, -1)
}
