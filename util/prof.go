// util/prof.go
// Copyright(c) 2022-2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"sync"
)

// Profiler writes a CPU profile while it runs and a heap profile when it
// is stopped. Samples taken inside Phase are labeled with the phase name,
// so that a profile of a budget computation can be broken down with
// "go tool pprof -tagfocus phase=...".
type Profiler struct {
	cpu, mem *os.File
	stop     sync.Once
	err      error
}

// StartProfiler starts profiling; either path may be empty to skip that
// profile. It returns nil and no error if both are empty.
func StartProfiler(cpu, mem string) (*Profiler, error) {
	if cpu == "" && mem == "" {
		return nil, nil
	}

	p := &Profiler{}
	var err error
	if cpu != "" {
		if p.cpu, err = os.Create(cpu); err != nil {
			return nil, fmt.Errorf("%s: unable to create CPU profile file: %w", cpu, err)
		} else if err = pprof.StartCPUProfile(p.cpu); err != nil {
			p.cpu.Close()
			return nil, fmt.Errorf("unable to start CPU profile: %w", err)
		}
	}
	if mem != "" {
		if p.mem, err = os.Create(mem); err != nil {
			if p.cpu != nil {
				pprof.StopCPUProfile()
				p.cpu.Close()
			}
			return nil, fmt.Errorf("%s: unable to create memory profile file: %w", mem, err)
		}
	}
	return p, nil
}

// Stop finishes the CPU profile and writes the heap profile. It may be
// called more than once and on a nil Profiler; later calls return the
// error of the first.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}
	p.stop.Do(func() {
		var errs []error
		if p.cpu != nil {
			pprof.StopCPUProfile()
			errs = append(errs, p.cpu.Close())
		}
		if p.mem != nil {
			if err := pprof.WriteHeapProfile(p.mem); err != nil {
				errs = append(errs, fmt.Errorf("unable to write memory profile file: %w", err))
			}
			errs = append(errs, p.mem.Close())
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}

// Phase runs f with the profiler label phase=name added to ctx. Goroutines
// started by f inherit the label.
func Phase(ctx context.Context, name string, f func(context.Context) error) error {
	var err error
	pprof.Do(ctx, pprof.Labels("phase", name), func(ctx context.Context) {
		err = f(ctx)
	})
	return err
}

// PhaseValue is Phase for functions that also return a value.
func PhaseValue[T any](ctx context.Context, name string, f func(context.Context) (T, error)) (T, error) {
	var v T
	err := Phase(ctx, name, func(ctx context.Context) error {
		var err error
		v, err = f(ctx)
		return err
	})
	return v, err
}
