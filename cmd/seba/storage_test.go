// cmd/seba/storage_test.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mmp/seba/wx"
)

func TestParsePath(t *testing.T) {
	for _, tc := range []struct {
		path, scheme, bucket, key string
	}{
		{"gs://wx-data/era5/2020.fields.msgpack.zst", "gs", "wx-data", "era5/2020.fields.msgpack.zst"},
		{"s3://bucket/a/b", "s3", "bucket", "a/b"},
		{"s3://bucket", "s3", "bucket", ""},
		{"/tmp/x.fields.msgpack.zst", "", "", "/tmp/x.fields.msgpack.zst"},
		{"relative/gs://x", "", "", "relative/gs://x"},
	} {
		scheme, bucket, key := ParsePath(tc.path)
		if scheme != tc.scheme || bucket != tc.bucket || key != tc.key {
			t.Errorf("ParsePath(%q) = %q, %q, %q; expected %q, %q, %q", tc.path, scheme, bucket, key,
				tc.scheme, tc.bucket, tc.key)
		}
	}
}

func TestResultsPath(t *testing.T) {
	if p := resultsPath("a/b.fields.msgpack.zst"); p != "a/b.seba.msgpack.zst" {
		t.Errorf("resultsPath = %q", p)
	}
}

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	fs, err := wx.Synthesize(ctx, wx.SynthOptions{Kind: wx.SynthRest, NLat: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	sb := NewBackends(ctx, false)
	defer sb.Close()

	path := filepath.Join(dir, "sub", "rest"+wx.FieldSetFilenameSuffix)
	b, key, err := sb.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := b.StoreObject(key, fs)
	if err != nil {
		t.Fatalf("StoreObject: %v", err)
	}

	listing, err := b.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing[path] != n {
		t.Errorf("listing %v: expected %s with %d bytes", listing, path, n)
	}

	loaded, err := loadFieldSet(sb, path)
	if err != nil {
		t.Fatalf("loadFieldSet: %v", err)
	}
	if !slices.Equal(loaded.Temperature, fs.Temperature) || loaded.Axes != fs.Axes {
		t.Errorf("field set changed in round trip")
	}

	if _, err := b.Store(filepath.Join(dir, "raw"), bytes.NewReader([]byte("hello"))); err != nil {
		t.Errorf("Store: %v", err)
	}
}

func TestDryRunBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sb := NewBackends(ctx, true)
	defer sb.Close()

	path := filepath.Join(dir, "out.bin")
	b, key, err := sb.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := b.Store(key, bytes.NewReader(make([]byte, 100))); err != nil || n != 100 {
		t.Errorf("Store = %d, %v", n, err)
	}
	if n, err := b.StoreObject(key, []float64{1, 2, 3}); err != nil || n == 0 {
		t.Errorf("StoreObject = %d, %v", n, err)
	}
	if listing, err := b.List(dir); err != nil || len(listing) != 0 {
		t.Errorf("dry run wrote files: %v %v", listing, err)
	}
}
