// wx/wx_test.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"
)

func TestThermodynamics(t *testing.T) {
	if e := Exner(P0); e != 1 {
		t.Errorf("Exner(P0) = %v, expected 1", e)
	}
	if th := PotentialTemperature(250, 50000); math.Abs(th-250/math.Pow(0.5, Kappa)) > 1e-9 {
		t.Errorf("PotentialTemperature(250, 500 hPa) = %v", th)
	}
	if f := CoriolisParameter(90); math.Abs(f-2*Omega) > 1e-15 {
		t.Errorf("CoriolisParameter(90) = %v, expected %v", f, 2*Omega)
	}
	if f := CoriolisParameter(0); f != 0 {
		t.Errorf("CoriolisParameter(0) = %v, expected 0", f)
	}

	// Rising air has negative ω and positive w.
	w := VerticalVelocity(-0.5, 280, 70000)
	if w <= 0 {
		t.Errorf("rising air has w = %v", w)
	}
	if expected := 0.5 * SpecificVolume(280, 70000) / G; math.Abs(w-expected) > 1e-12 {
		t.Errorf("VerticalVelocity(-0.5) = %v, expected %v", w, expected)
	}
}

func TestStabilityParameter(t *testing.T) {
	p := []float64{100000, 85000, 70000, 50000, 30000}
	theta := make([]float64, len(p))
	for k := range p {
		theta[k] = PotentialTemperature(StandardTemperature(p[k]), p[k])
	}
	gamma, limited := StabilityParameter(theta, p)
	for k, g := range gamma {
		if g <= 0 || !math.IsFinite(g) {
			t.Errorf("level %d: stability parameter %v for a stable atmosphere", k, g)
		}
	}
	if len(limited) != 0 {
		t.Errorf("stable atmosphere: levels %v limited", limited)
	}

	// A neutral profile is limited rather than dividing by zero.
	neutral := []float64{300, 300, 300, 300, 300}
	gamma, limited = StabilityParameter(neutral, p)
	for k, g := range gamma {
		if expected := Rd * Exner(p[k]) / Epsilon; g != expected {
			t.Errorf("level %d: stability parameter %v for a neutral atmosphere, expected %v", k, g, expected)
		}
	}
	if !slices.Equal(limited, []int{0, 1, 2, 3, 4}) {
		t.Errorf("neutral atmosphere: levels %v limited, expected all", limited)
	}

	// Only the layer where θ decreases with height is limited.
	inverted := slices.Clone(theta)
	inverted[4] = inverted[3] - 5
	if _, limited = StabilityParameter(inverted, p); !slices.Contains(limited, 4) || slices.Contains(limited, 0) {
		t.Errorf("unstable top layer: levels %v limited", limited)
	}
}

func TestGeopotential(t *testing.T) {
	p := []float64{100000, 80000, 60000, 40000}
	d := field.Dims{NLat: 2, NLon: 4, NTime: 1, NLevels: len(p)}
	temp := field.Constant(d, 250)

	phi := Geopotential(temp, p, nil, nil)
	for k := range p {
		expected := Rd * 250 * math.Log(p[0]/p[k])
		for _, v := range phi.SampleData(k) {
			if math.Abs(v-expected) > 1e-6*max(1, expected) {
				t.Errorf("level %d: geopotential %v, expected %v", k, v, expected)
			}
		}
	}

	// Below-ground levels get the surface geopotential.
	ps := slices.Repeat([]float64{70000}, d.Plane())
	zs := slices.Repeat([]float64{3000}, d.Plane())
	phi = Geopotential(temp, p, ps, zs)
	for k := range 2 {
		for _, v := range phi.SampleData(k) {
			if math.Abs(v-G*3000) > 1e-9 {
				t.Errorf("level %d below ground: geopotential %v, expected %v", k, v, G*3000)
			}
		}
	}
	expected := G*3000 + Rd*250*math.Log(70000.0/60000)
	if v := phi.SampleData(2)[0]; math.Abs(v-expected) > 1e-6 {
		t.Errorf("first level above ground: geopotential %v, expected %v", v, expected)
	}
}

func TestTerrainMask(t *testing.T) {
	p := []float64{100000, 85000, 70000, 50000, 30000}
	d := field.Dims{NLat: 16, NLon: 32, NTime: 2, NLevels: len(p)}

	t.Run("BottomLevel", func(t *testing.T) {
		ps := slices.Repeat([]float64{p[0]}, d.Plane())
		beta, err := TerrainMask(context.Background(), d, p, ps, false, 2)
		if err != nil {
			t.Fatal(err)
		}
		for s := range d.NSamples() {
			expected := float64(min(d.Level(s), 1))
			for i, b := range beta.SampleData(s) {
				if b != expected {
					t.Fatalf("sample %d point %d: beta %v, expected %v", s, i, b, expected)
				}
			}
		}
	})

	t.Run("SmoothedUniform", func(t *testing.T) {
		// A mask that doesn't vary horizontally is unchanged by smoothing.
		ps := slices.Repeat([]float64{90000}, d.Plane())
		beta, err := TerrainMask(context.Background(), d, p, ps, true, 3)
		if err != nil {
			t.Fatal(err)
		}
		for s := range d.NSamples() {
			expected := util.Select(p[d.Level(s)] < 90000, 1.0, 0.0)
			for _, b := range beta.SampleData(s) {
				if math.Abs(b-expected) > 1e-12 {
					t.Fatalf("sample %d: beta %v, expected %v", s, b, expected)
				}
			}
		}
	})

	t.Run("SmoothedBounded", func(t *testing.T) {
		ps := make([]float64, d.Plane())
		for i := range ps {
			ps[i] = util.Select(i%7 < 3, 60000.0, 101000.0)
		}
		beta, err := TerrainMask(context.Background(), d, p, ps, true, 4)
		if err != nil {
			t.Fatal(err)
		}
		for i, b := range beta.Data {
			if b < 0 || b > 1 || math.IsNaN(b) {
				t.Fatalf("point %d: beta %v outside [0,1]", i, b)
			}
		}
	})

	t.Run("PerTime", func(t *testing.T) {
		ps := make([]float64, d.Plane()*d.NTime)
		for i := range ps {
			ps[i] = util.Select(i < d.Plane(), 101000.0, 80000.0)
		}
		beta, err := TerrainMask(context.Background(), d, p, ps, false, 1)
		if err != nil {
			t.Fatal(err)
		}
		if b := beta.SampleData(d.Sample(0, 1))[0]; b != 1 {
			t.Errorf("time 0, 850 hPa: beta %v, expected 1", b)
		}
		if b := beta.SampleData(d.Sample(1, 1))[0]; b != 0 {
			t.Errorf("time 1, 850 hPa: beta %v, expected 0", b)
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		_, err := TerrainMask(context.Background(), d, p, []float64{1, 2, 3}, false, 1)
		if !errors.Is(err, field.ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})
}

func TestLanczosKernel(t *testing.T) {
	for _, nlon := range []int{64, 256, 1024} {
		fc := cutoffFrequency(nlon)
		k := lanczosKernel(fc, int(2/fc))
		var sum float64
		for _, w := range k.w {
			sum += w
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("nlon %d: kernel sums to %v", nlon, sum)
		}
		// Symmetric in both directions.
		for i := -k.n; i <= k.n; i++ {
			for j := -k.n; j <= k.n; j++ {
				if math.Abs(k.at(i, j)-k.at(-i, j)) > 1e-15 || math.Abs(k.at(i, j)-k.at(j, i)) > 1e-15 {
					t.Fatalf("nlon %d: kernel not symmetric at (%d,%d)", nlon, i, j)
				}
			}
		}
	}
}

func testFieldSet() *FieldSet {
	const nt, nz, ny, nx = 2, 3, 4, 8
	n := nt * nz * ny * nx
	ramp := func(off float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = off + float64(i)
		}
		return s
	}
	return &FieldSet{
		Axes:            "tzyx",
		Shape:           []int{nt, nz, ny, nx},
		U:               ramp(0),
		V:               ramp(1),
		Omega:           make([]float64, n),
		Temperature:     ramp(200),
		Pressure:        []float64{30000, 70000, 100000},
		SurfacePressure: slices.Repeat([]float64{95000}, ny*nx),
		Latitude:        []float64{-60, -20, 20, 60},
	}
}

func TestFieldSetValidate(t *testing.T) {
	if err := testFieldSet().Validate(); err != nil {
		t.Fatalf("valid field set: %v", err)
	}

	for _, tc := range []struct {
		name   string
		modify func(fs *FieldSet)
		expect string
	}{
		{"MissingU", func(fs *FieldSet) { fs.U = nil }, "u: required field missing"},
		{"ShortV", func(fs *FieldSet) { fs.V = fs.V[1:] }, "v: expected 192 values"},
		{"NaNTemperature", func(fs *FieldSet) { fs.Temperature[17] = math.NaN() }, "temperature: non-finite value"},
		{"Pressure", func(fs *FieldSet) { fs.Pressure[1] = 100000 }, "pressure: levels must be strictly monotone"},
		{"PressureCount", func(fs *FieldSet) { fs.Pressure = fs.Pressure[:2] }, "pressure: expected 3 levels"},
		{"SurfacePressure", func(fs *FieldSet) { fs.SurfacePressure = fs.SurfacePressure[1:] },
			"surface pressure: expected 32 values"},
		{"GridType", func(fs *FieldSet) { fs.GridType = "hexagonal" }, "unknown grid type"},
		{"Axes", func(fs *FieldSet) { fs.Axes = "tzy" }, "invalid layout"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fs := testFieldSet()
			tc.modify(fs)
			err := fs.Validate()
			if !errors.Is(err, ErrInvalidFieldSet) {
				t.Fatalf("expected ErrInvalidFieldSet, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.expect) {
				t.Errorf("error %q does not mention %q", err, tc.expect)
			}
		})
	}

	// All problems are reported together.
	fs := testFieldSet()
	fs.U, fs.Pressure = nil, []float64{1, 1, 1}
	if err := fs.Validate(); err == nil || !strings.Contains(err.Error(), "u:") ||
		!strings.Contains(err.Error(), "pressure:") {
		t.Errorf("expected both u and pressure errors, got %v", err)
	}
}

func TestFieldSetPack(t *testing.T) {
	fs := testFieldSet()
	p, err := fs.Pack()
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(p.Pressure, []float64{100000, 70000, 30000}) {
		t.Errorf("packed pressure %v is not surface first", p.Pressure)
	}
	if !p.Layout.FlipLevels || !p.Layout.FlipLatitude {
		t.Errorf("expected flipped levels and latitudes, got %+v", p.Layout)
	}

	// Input index (t=0, z=2, y=3, x=0) is the surface level at the
	// northernmost latitude.
	in := fs.U[(0*3+2)*32+3*8]
	if v := p.U.SampleData(0)[0]; v != in {
		t.Errorf("packed u[0] = %v, expected %v", v, in)
	}
	if p.Geopotential != nil {
		t.Errorf("geopotential should be nil when not provided")
	}
	if len(p.SurfacePressure) != 32 {
		t.Errorf("surface pressure has %d values", len(p.SurfacePressure))
	}

	back, err := p.Layout.Unpack(p.U)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(back, fs.U) {
		t.Errorf("unpacked u does not match input")
	}
}

func TestFieldSetSaveLoad(t *testing.T) {
	fs := testFieldSet()
	fs.GridType = "regular"

	var buf bytes.Buffer
	if err := fs.Save(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFieldSet(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Axes != fs.Axes || !slices.Equal(got.Shape, fs.Shape) || got.GridType != fs.GridType ||
		!slices.Equal(got.U, fs.U) || !slices.Equal(got.SurfacePressure, fs.SurfacePressure) {
		t.Errorf("loaded field set %s differs from saved %s", got, fs)
	}
	if got.Geopotential != nil {
		t.Errorf("empty geopotential loaded as %d values", len(got.Geopotential))
	}

	if _, err := LoadFieldSet(strings.NewReader("not zstd")); err == nil {
		t.Errorf("expected error loading garbage")
	}
}

func TestSynthesize(t *testing.T) {
	ctx := context.Background()
	for _, kind := range SynthKinds {
		t.Run(kind, func(t *testing.T) {
			fs, err := Synthesize(ctx, SynthOptions{Kind: kind, NLat: 16}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := fs.Validate(); err != nil {
				t.Fatal(err)
			}
			gt, err := fs.ResolveGridType()
			if err != nil || gt != sphere.Gaussian {
				t.Errorf("grid type %v, %v", gt, err)
			}

			var ke float64
			for i := range fs.U {
				ke += fs.U[i]*fs.U[i] + fs.V[i]*fs.V[i]
			}
			if kind == SynthRest && ke != 0 {
				t.Errorf("rest atmosphere has kinetic energy %v", ke)
			} else if kind != SynthRest && ke == 0 {
				t.Errorf("%s atmosphere has no kinetic energy", kind)
			}
			if kind == SynthJet && fs.SurfacePressure == nil {
				t.Errorf("jet atmosphere has no surface pressure")
			}
		})
	}

	if _, err := Synthesize(ctx, SynthOptions{Kind: "tornado"}, nil); !errors.Is(err, ErrInvalidFieldSet) {
		t.Errorf("expected ErrInvalidFieldSet, got %v", err)
	}
	if _, err := Synthesize(ctx, SynthOptions{Kind: SynthMode, NLat: 8, Degree: 20}, nil); err == nil {
		t.Errorf("expected error for degree beyond truncation")
	}
}
