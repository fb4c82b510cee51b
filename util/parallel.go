// util/parallel.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"golang.org/x/sync/errgroup"
)

var ErrUnevenPartition = errors.New("partition count does not evenly divide sample count")

// DefaultJobs returns the number of logical CPUs available.
func DefaultJobs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// EvenWorkers returns the number of workers to use for n independent
// samples when up to requested workers are available: the largest divisor
// of n that is no greater than requested. If the only such divisor is 1,
// the work runs sequentially.
func EvenWorkers(requested, n int) int {
	w := min(requested, n)
	for ; w > 1; w-- {
		if n%w == 0 {
			return w
		}
	}
	return 1
}

// Chunk is the half-open range [Start, End) of a sample axis.
type Chunk struct {
	Start, End int
}

func (c Chunk) Len() int { return c.End - c.Start }

// Partition splits [0,n) into nchunks contiguous chunks of equal size.
func Partition(n, nchunks int) ([]Chunk, error) {
	if nchunks < 1 || n%nchunks != 0 {
		return nil, fmt.Errorf("%d samples into %d chunks: %w", n, nchunks, ErrUnevenPartition)
	}
	sz := n / nchunks
	c := make([]Chunk, nchunks)
	for i := range c {
		c[i] = Chunk{Start: i * sz, End: (i + 1) * sz}
	}
	return c, nil
}

// ParallelMap applies f to each element of in using at most nworkers
// goroutines and returns the results in the order of the inputs. The
// result is all-or-nothing: if any call fails, the context passed to the
// remaining calls is canceled and only the first error is returned.
func ParallelMap[In, Out any](ctx context.Context, in []In, nworkers int,
	f func(context.Context, In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(in))

	if nworkers <= 1 {
		for i := range in {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := f(ctx, in[i])
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(nworkers)
	for i := range in {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := f(ctx, in[i])
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
