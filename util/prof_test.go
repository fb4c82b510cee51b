// util/prof_test.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime/pprof"
	"testing"
)

func TestPhaseLabels(t *testing.T) {
	ctx := context.Background()
	errStop := errors.New("stop")

	err := Phase(ctx, "mask", func(ctx context.Context) error {
		if v, ok := pprof.Label(ctx, "phase"); !ok || v != "mask" {
			t.Errorf("phase label = %q, %v", v, ok)
		}
		// Nested phases replace the label.
		n, err := PhaseValue(ctx, "ape", func(ctx context.Context) (int, error) {
			v, _ := pprof.Label(ctx, "phase")
			if v != "ape" {
				t.Errorf("nested phase label = %q", v)
			}
			return 3, nil
		})
		if n != 3 || err != nil {
			t.Errorf("PhaseValue = %d, %v", n, err)
		}
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Errorf("Phase returned %v, expected the error of its function", err)
	}
	if _, ok := pprof.Label(ctx, "phase"); ok {
		t.Errorf("label leaked out of Phase")
	}
}

func TestProfiler(t *testing.T) {
	if p, err := StartProfiler("", ""); p != nil || err != nil {
		t.Errorf("StartProfiler with no files = %v, %v", p, err)
	}
	var none *Profiler
	if err := none.Stop(); err != nil {
		t.Errorf("Stop on nil profiler: %v", err)
	}

	dir := t.TempDir()
	if _, err := StartProfiler(filepath.Join(dir, "missing", "cpu.prof"), ""); err == nil {
		t.Errorf("expected an error for an uncreatable profile file")
	}

	mem := filepath.Join(dir, "mem.prof")
	p, err := StartProfiler("", mem)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if fi, err := os.Stat(mem); err != nil || fi.Size() == 0 {
		t.Errorf("heap profile not written: %v", err)
	}
}
