// util/parallel_test.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
)

func TestEvenWorkers(t *testing.T) {
	for _, tc := range []struct {
		requested, n, want int
	}{
		{8, 24, 8},
		{8, 20, 5},
		{7, 24, 6},
		{4, 7, 1},
		{16, 5, 5},
		{1, 100, 1},
		{0, 10, 1},
		{3, 1, 1},
	} {
		if got := EvenWorkers(tc.requested, tc.n); got != tc.want {
			t.Errorf("EvenWorkers(%d, %d) = %d, want %d", tc.requested, tc.n, got, tc.want)
		}
		if w := EvenWorkers(tc.requested, tc.n); tc.n%w != 0 {
			t.Errorf("EvenWorkers(%d, %d) = %d does not divide n", tc.requested, tc.n, w)
		}
	}
}

func TestPartition(t *testing.T) {
	c, err := Partition(12, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []Chunk{{0, 3}, {3, 6}, {6, 9}, {9, 12}}
	if !slices.Equal(c, want) {
		t.Errorf("Partition(12, 4) = %v, want %v", c, want)
	}

	if _, err := Partition(10, 4); !errors.Is(err, ErrUnevenPartition) {
		t.Errorf("Partition(10, 4): expected ErrUnevenPartition, got %v", err)
	}
}

func TestParallelMapOrder(t *testing.T) {
	in := make([]int, 64)
	for i := range in {
		in[i] = i
	}

	for _, nw := range []int{1, 3, 8} {
		out, err := ParallelMap(context.Background(), in, nw, func(_ context.Context, v int) (int, error) {
			return v * v, nil
		})
		if err != nil {
			t.Fatalf("nworkers %d: %v", nw, err)
		}
		for i, v := range out {
			if v != i*i {
				t.Errorf("nworkers %d: out[%d] = %d, want %d", nw, i, v, i*i)
			}
		}
	}
}

func TestParallelMapError(t *testing.T) {
	errBoom := errors.New("boom")
	var calls atomic.Int32
	out, err := ParallelMap(context.Background(), []int{0, 1, 2, 3, 4, 5}, 2,
		func(ctx context.Context, v int) (int, error) {
			calls.Add(1)
			if v == 2 {
				return 0, errBoom
			}
			return v, nil
		})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
	if out != nil {
		t.Errorf("expected no partial results, got %v", out)
	}
}

func TestParallelMapCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParallelMap(ctx, []int{1, 2}, 1, func(context.Context, int) (int, error) { return 0, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultJobs(t *testing.T) {
	if DefaultJobs() < 1 {
		t.Errorf("DefaultJobs returned %d", DefaultJobs())
	}
}
