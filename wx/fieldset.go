// wx/fieldset.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mmp/seba/field"
	"github.com/mmp/seba/math"
	"github.com/mmp/seba/sphere"
	"github.com/mmp/seba/util"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrInvalidFieldSet = errors.New("invalid field set")

// FieldSetFilenameSuffix is the conventional suffix for serialized field
// sets.
const FieldSetFilenameSuffix = ".fields.msgpack.zst"

// FieldSet is the bundle of input fields for a budget computation. The
// 3D and 4D fields all share the layout given by Axes and Shape (see
// field.Layout); units are SI: m/s, Pa/s, K, m²/s² and Pa.
type FieldSet struct {
	Axes  string `msgpack:"axes"`
	Shape []int  `msgpack:"shape"`

	U           []float64 `msgpack:"u"`
	V           []float64 `msgpack:"v"`
	Omega       []float64 `msgpack:"omega"`
	Temperature []float64 `msgpack:"t"`
	// Geopotential is optional; if it is not provided it is found by
	// integrating the hypsometric equation.
	Geopotential []float64 `msgpack:"phi,omitempty"`

	// Pressure holds the pressure of each level, in the order of the
	// level axis.
	Pressure []float64 `msgpack:"p"`

	// Surface fields are optional and have just the latitude and
	// longitude axes, in the same relative order as in Axes.
	SurfacePressure           []float64 `msgpack:"ps,omitempty"`
	SurfaceGeopotentialHeight []float64 `msgpack:"zs,omitempty"`

	// Latitude, in degrees and in input order, is used to detect
	// south-to-north input and to infer the grid type if GridType is
	// empty.
	Latitude []float64 `msgpack:"lat,omitempty"`
	GridType string    `msgpack:"gridtype,omitempty"`
}

// Packed is a FieldSet packed into the sample-major, surface-first,
// north-to-south representation used for computation.
type Packed struct {
	Layout       field.Layout
	U, V         *field.Scalar
	Omega        *field.Scalar
	Temperature  *field.Scalar
	Geopotential *field.Scalar // nil if not provided

	Pressure []float64 // surface first

	// Surface fields are packed horizontal planes, or nil.
	SurfacePressure           []float64
	SurfaceGeopotentialHeight []float64
}

// Validate checks the field set for consistency and returns an error
// describing every problem found.
func (fs *FieldSet) Validate() error {
	var e util.ErrorLogger

	l, err := field.NewLayout(fs.Axes, fs.Shape)
	if err != nil {
		e.Error(err)
		return e.Err(ErrInvalidFieldSet)
	}
	d := l.Dims()

	check := func(name string, f []float64, required, finite bool) {
		e.Push(name)
		defer e.Pop()

		if f == nil {
			if required {
				e.ErrorString("required field missing")
			}
			return
		}
		if len(f) != l.Len() {
			e.ErrorString("expected %d values for shape %v, got %d", l.Len(), l.Shape, len(f))
		} else if i := math.AllFinite(f); finite && i >= 0 {
			e.ErrorString("non-finite value %v at index %d", f[i], i)
		}
	}
	check("u", fs.U, true, true)
	check("v", fs.V, true, true)
	check("omega", fs.Omega, true, false)
	check("temperature", fs.Temperature, true, true)
	check("geopotential", fs.Geopotential, false, false)

	e.Push("pressure")
	if len(fs.Pressure) != d.NLevels {
		e.ErrorString("expected %d levels, got %d", d.NLevels, len(fs.Pressure))
	} else if !strictlyMonotone(fs.Pressure) {
		e.ErrorString("levels must be strictly monotone")
	} else if slices.Min(fs.Pressure) <= 0 {
		e.ErrorString("levels must be positive")
	}
	e.Pop()

	for _, sf := range []struct {
		name string
		f    []float64
	}{{"surface pressure", fs.SurfacePressure}, {"surface geopotential height", fs.SurfaceGeopotentialHeight}} {
		if sf.f != nil && len(sf.f) != d.Plane() {
			e.ErrorString("%s: expected %d values, got %d", sf.name, d.Plane(), len(sf.f))
		}
	}

	if fs.Latitude != nil {
		e.Push("latitude")
		if len(fs.Latitude) != d.NLat {
			e.ErrorString("expected %d values, got %d", d.NLat, len(fs.Latitude))
		} else if !strictlyMonotone(fs.Latitude) {
			e.ErrorString("values must be strictly monotone")
		}
		e.Pop()
	}
	if fs.GridType != "" {
		if _, err := sphere.ParseGridType(fs.GridType); err != nil {
			e.Error(err)
		}
	}

	return e.Err(ErrInvalidFieldSet)
}

func strictlyMonotone(s []float64) bool {
	if len(s) < 2 {
		return true
	}
	dir := math.Sign(s[1] - s[0])
	for i := 1; i < len(s); i++ {
		if dir == 0 || math.Sign(s[i]-s[i-1]) != dir {
			return false
		}
	}
	return true
}

// Layout returns the layout of the field set's 3D fields. Levels are
// flipped if pressure increases along the level axis and latitudes if
// they run from south to north.
func (fs *FieldSet) Layout() (field.Layout, error) {
	l, err := field.NewLayout(fs.Axes, fs.Shape)
	if err != nil {
		return l, err
	}
	l.FlipLevels = len(fs.Pressure) > 1 && fs.Pressure[0] < fs.Pressure[len(fs.Pressure)-1]
	l.FlipLatitude = len(fs.Latitude) > 1 && fs.Latitude[0] < fs.Latitude[len(fs.Latitude)-1]
	return l, nil
}

// surfaceLayout returns the layout of the 2D surface fields.
func (fs *FieldSet) surfaceLayout(l field.Layout) (field.Layout, error) {
	var axes []byte
	var shape []int
	for i := range len(l.Axes) {
		if c := l.Axes[i]; c == 'x' || c == 'y' {
			axes = append(axes, c)
			shape = append(shape, l.Shape[i])
		}
	}
	sl, err := field.NewLayout(string(axes), shape)
	sl.FlipLatitude = l.FlipLatitude
	return sl, err
}

// ResolveGridType returns the grid type, either as given or as inferred from
// the latitudes. Without either, the grid is taken to be Gaussian.
func (fs *FieldSet) ResolveGridType() (sphere.GridType, error) {
	if fs.GridType != "" {
		return sphere.ParseGridType(fs.GridType)
	}
	if fs.Latitude != nil {
		return sphere.InferGridType(fs.Latitude)
	}
	return sphere.Gaussian, nil
}

// Pack validates the field set and returns it in packed form.
func (fs *FieldSet) Pack() (*Packed, error) {
	if err := fs.Validate(); err != nil {
		return nil, err
	}
	l, err := fs.Layout()
	if err != nil {
		return nil, err
	}

	p := &Packed{Layout: l, Pressure: slices.Clone(fs.Pressure)}
	if l.FlipLevels {
		slices.Reverse(p.Pressure)
	}

	for _, f := range []struct {
		dst  **field.Scalar
		data []float64
	}{
		{&p.U, fs.U}, {&p.V, fs.V}, {&p.Omega, fs.Omega}, {&p.Temperature, fs.Temperature},
		{&p.Geopotential, fs.Geopotential},
	} {
		if f.data == nil {
			continue
		}
		if *f.dst, err = l.Pack(f.data); err != nil {
			return nil, err
		}
	}

	sl, err := fs.surfaceLayout(l)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst  *[]float64
		data []float64
	}{{&p.SurfacePressure, fs.SurfacePressure}, {&p.SurfaceGeopotentialHeight, fs.SurfaceGeopotentialHeight}} {
		if f.data == nil {
			continue
		}
		s, err := sl.Pack(f.data)
		if err != nil {
			return nil, err
		}
		*f.dst = s.Data
	}

	return p, nil
}

func (fs *FieldSet) String() string {
	var fields []string
	for name, f := range map[string][]float64{"u": fs.U, "v": fs.V, "omega": fs.Omega, "t": fs.Temperature,
		"phi": fs.Geopotential, "ps": fs.SurfacePressure, "zs": fs.SurfaceGeopotentialHeight} {
		if f != nil {
			fields = append(fields, name)
		}
	}
	slices.Sort(fields)
	return fmt.Sprintf("axes %q shape %v levels %d fields [%s]", fs.Axes, fs.Shape, len(fs.Pressure),
		strings.Join(fields, " "))
}

// LoadFieldSet reads a field set written by Save.
func LoadFieldSet(r io.Reader) (*FieldSet, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var fs FieldSet
	if err := msgpack.NewDecoder(zr).Decode(&fs); err != nil {
		return nil, fmt.Errorf("failed to decode field set: %w", err)
	}
	return &fs, nil
}

// Save writes the field set as zstd-compressed msgpack.
func (fs *FieldSet) Save(w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := msgpack.NewEncoder(zw).Encode(fs); err != nil {
		return fmt.Errorf("failed to encode field set: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}
