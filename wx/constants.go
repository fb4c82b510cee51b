// wx/constants.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

// Physical constants for dry air, in SI units.
const (
	Rd      = 287.058     // gas constant for dry air, J/(kg K)
	Cp      = 1004.0      // specific heat at constant pressure, J/(kg K)
	Kappa   = Rd / Cp     // Poisson constant
	G       = 9.80665     // standard gravity, m/s²
	Omega   = 7.292115e-5 // Earth's rotation rate, rad/s
	P0      = 100000.0    // reference pressure for potential temperature, Pa
	Epsilon = 1e-6
)
